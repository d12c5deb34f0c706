package schema

import (
	"fmt"

	"github.com/plus3/deltasync/bitstream"
)

// Width returns the encoded width of the field in bits, and false for
// variable width kinds.
func (f Field) Width() (uint64, bool) {
	switch f.Kind {
	case KindBool:
		return 1, true
	case KindFixedPoint, KindIntegerRange:
		return uint64(f.Bits), true
	case KindVector3f:
		return 3 * uint64(f.Bits), true
	case KindUnitRotation:
		return bitstream.UnitRotationBits, true
	default:
		return 0, false
	}
}

// Read decodes one value of the field. The dynamic type of the result is
// f.Kind.ValueType().
func (f Field) Read(r *bitstream.Reader) (any, error) {
	switch f.Kind {
	case KindBool:
		return r.ReadBool()
	case KindFixedPoint:
		return r.ReadFixedPoint(f.Bits, f.Range)
	case KindVector3f:
		return r.ReadVector3f(f.Bits, f.Range)
	case KindIntegerRange:
		return r.ReadIntegerRange(f.Bits, f.Min, f.Max)
	case KindUnitRotation:
		return r.ReadUnitRotation()
	case KindShortString:
		return r.ReadShortString()
	default:
		return nil, fmt.Errorf("schema: field %s has unknown kind %q", f.Name, f.Kind)
	}
}

// Write encodes v, which must have the field's value type.
func (f Field) Write(w *bitstream.Writer, v any) error {
	switch f.Kind {
	case KindBool:
		if b, ok := v.(bool); ok {
			return w.WriteBool(b)
		}
	case KindFixedPoint:
		if x, ok := v.(float32); ok {
			return w.WriteFixedPoint(x, f.Bits, f.Range)
		}
	case KindVector3f:
		if x, ok := v.(bitstream.Vector3); ok {
			return w.WriteVector3f(x, f.Bits, f.Range)
		}
	case KindIntegerRange:
		if x, ok := v.(int32); ok {
			return w.WriteIntegerRange(x, f.Bits, f.Min, f.Max)
		}
	case KindUnitRotation:
		if x, ok := v.(bitstream.Quaternion); ok {
			return w.WriteUnitRotation(x)
		}
	case KindShortString:
		if x, ok := v.(string); ok {
			return w.WriteShortString(x)
		}
	default:
		return fmt.Errorf("schema: field %s has unknown kind %q", f.Name, f.Kind)
	}
	return fmt.Errorf("schema: field %s (%s) cannot encode %T", f.Name, f.Kind, v)
}

// Skip consumes one encoded value. Kinds with invalid encodings are decoded
// and checked so a skipped value fails exactly where a read one would.
func (f Field) Skip(r *bitstream.Reader) error {
	switch f.Kind {
	case KindIntegerRange, KindUnitRotation, KindShortString:
		_, err := f.Read(r)
		return err
	}
	if width, ok := f.Width(); ok {
		return r.SkipBits(width)
	}
	return fmt.Errorf("schema: field %s has unknown kind %q", f.Name, f.Kind)
}

// Skip consumes a mask body: a presence bit per field followed by the value
// of every present field. It reads exactly the bits a full decode would and
// rejects the same values.
func (l Layout) Skip(r *bitstream.Reader) error {
	for _, f := range l.Fields {
		present, err := r.ReadMask()
		if err != nil {
			return err
		}
		if !present {
			continue
		}
		if err := f.Skip(r); err != nil {
			return fmt.Errorf("skipping %s.%s: %w", l.Name, f.Name, err)
		}
	}
	return nil
}
