package bitstream

import (
	"fmt"
	"math"
	"unicode/utf8"
)

const (
	// UnitRotationComponentBits is the width of each of the three smallest
	// quaternion components.
	UnitRotationComponentBits = 10
	// UnitRotationBits is the total width of an encoded unit rotation.
	UnitRotationBits = 2 + 3*UnitRotationComponentBits

	// ShortStringLengthBits is the width of a short string's byte length prefix.
	ShortStringLengthBits = 6
	// MaxShortStringLength is the longest short string in bytes.
	MaxShortStringLength = 61

	unitRotationRange = math.Sqrt2 / 2
	// unitRotationSlack tolerates quantization error in the reconstructed norm.
	unitRotationSlack = 1e-3
)

// Vector3 is the wire representation of a three component vector.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is the wire representation of a rotation.
type Quaternion struct {
	X, Y, Z, W float32
}

func maxRaw(bits uint8) uint64 {
	return uint64(1)<<bits - 1
}

// ReadFixedPoint reads a value quantized to bits over [-rng, rng].
func (r *Reader) ReadFixedPoint(bits uint8, rng float64) (float32, error) {
	raw, err := r.ReadBits(bits)
	if err != nil {
		return 0, err
	}
	return float32(float64(raw)/float64(maxRaw(bits))*2*rng - rng), nil
}

// WriteFixedPoint quantizes v to bits over [-rng, rng].
func (w *Writer) WriteFixedPoint(v float32, bits uint8, rng float64) error {
	f := float64(v)
	if math.IsNaN(f) || f < -rng || f > rng {
		return fmt.Errorf("%w: %v outside ±%v", ErrOutOfRange, v, rng)
	}
	raw := uint64(math.Round((f + rng) / (2 * rng) * float64(maxRaw(bits))))
	return w.WriteBits(raw, bits)
}

// ReadVector3f reads three fixed point components.
func (r *Reader) ReadVector3f(bits uint8, rng float64) (Vector3, error) {
	var v Vector3
	var err error
	if v.X, err = r.ReadFixedPoint(bits, rng); err != nil {
		return Vector3{}, err
	}
	if v.Y, err = r.ReadFixedPoint(bits, rng); err != nil {
		return Vector3{}, err
	}
	if v.Z, err = r.ReadFixedPoint(bits, rng); err != nil {
		return Vector3{}, err
	}
	return v, nil
}

// WriteVector3f writes three fixed point components.
func (w *Writer) WriteVector3f(v Vector3, bits uint8, rng float64) error {
	for _, c := range [3]float32{v.X, v.Y, v.Z} {
		if err := w.WriteFixedPoint(c, bits, rng); err != nil {
			return err
		}
	}
	return nil
}

// ReadIntegerRange reads an integer stored as an offset from lo.
// Values above hi mean the stream was produced against a different schema.
func (r *Reader) ReadIntegerRange(bits uint8, lo, hi int64) (int32, error) {
	raw, err := r.ReadBits(bits)
	if err != nil {
		return 0, err
	}
	v := lo + int64(raw)
	if v > hi {
		return 0, fmt.Errorf("%w: integer %d above %d", ErrOutOfRange, v, hi)
	}
	return int32(v), nil
}

// WriteIntegerRange writes v as an offset from lo.
func (w *Writer) WriteIntegerRange(v int32, bits uint8, lo, hi int64) error {
	if int64(v) < lo || int64(v) > hi {
		return fmt.Errorf("%w: integer %d outside [%d, %d]", ErrOutOfRange, v, lo, hi)
	}
	return w.WriteBits(uint64(int64(v)-lo), bits)
}

// ReadUnitRotation reads a smallest-three encoded quaternion.
func (r *Reader) ReadUnitRotation() (Quaternion, error) {
	largest, err := r.ReadBits(2)
	if err != nil {
		return Quaternion{}, err
	}

	var comps [4]float64
	var sum float64
	for i := range comps {
		if uint64(i) == largest {
			continue
		}
		c, err := r.ReadFixedPoint(UnitRotationComponentBits, unitRotationRange)
		if err != nil {
			return Quaternion{}, err
		}
		comps[i] = float64(c)
		sum += comps[i] * comps[i]
	}

	if sum > 1+unitRotationSlack {
		return Quaternion{}, fmt.Errorf("%w: rotation components norm %.4f", ErrOutOfRange, sum)
	}
	comps[largest] = math.Sqrt(math.Max(0, 1-sum))

	return Quaternion{
		X: float32(comps[0]),
		Y: float32(comps[1]),
		Z: float32(comps[2]),
		W: float32(comps[3]),
	}, nil
}

// WriteUnitRotation normalizes q and writes it in smallest-three form.
func (w *Writer) WriteUnitRotation(q Quaternion) error {
	comps := [4]float64{float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)}

	var norm float64
	for _, c := range comps {
		norm += c * c
	}
	norm = math.Sqrt(norm)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return fmt.Errorf("%w: rotation cannot be normalized", ErrOutOfRange)
	}

	largest := 0
	for i := range comps {
		comps[i] /= norm
		if math.Abs(comps[i]) > math.Abs(comps[largest]) {
			largest = i
		}
	}

	// q and -q are the same rotation; keep the dropped component positive.
	sign := 1.0
	if comps[largest] < 0 {
		sign = -1
	}

	if err := w.WriteBits(uint64(largest), 2); err != nil {
		return err
	}
	for i, c := range comps {
		if i == largest {
			continue
		}
		c = math.Max(-unitRotationRange, math.Min(unitRotationRange, c*sign))
		if err := w.WriteFixedPoint(float32(c), UnitRotationComponentBits, unitRotationRange); err != nil {
			return err
		}
	}
	return nil
}

// ReadShortString reads a length prefixed UTF-8 string of at most MaxShortStringLength bytes.
func (r *Reader) ReadShortString() (string, error) {
	n, err := r.ReadBits(ShortStringLengthBits)
	if err != nil {
		return "", err
	}
	if n > MaxShortStringLength {
		return "", fmt.Errorf("%w: short string of %d bytes", ErrOutOfRange, n)
	}

	buf := make([]byte, n)
	for i := range buf {
		b, err := r.ReadBits(8)
		if err != nil {
			return "", err
		}
		buf[i] = byte(b)
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("%w: short string is not valid UTF-8", ErrOutOfRange)
	}
	return string(buf), nil
}

// WriteShortString writes s with its byte length prefix.
func (w *Writer) WriteShortString(s string) error {
	if len(s) > MaxShortStringLength {
		return fmt.Errorf("%w: short string of %d bytes", ErrOutOfRange, len(s))
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: short string is not valid UTF-8", ErrOutOfRange)
	}
	if err := w.WriteBits(uint64(len(s)), ShortStringLengthBits); err != nil {
		return err
	}
	for i := 0; i < len(s); i++ {
		if err := w.WriteBits(uint64(s[i]), 8); err != nil {
			return err
		}
	}
	return nil
}
