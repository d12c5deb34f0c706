// Package schema describes the wire layout of every replicated component type.
//
// A layout is the contract between encoder and decoder: the ordered list of
// fields, each with an encoding kind, a bit width and an optional range. Both
// peers must be built against the same layouts; Fingerprint lets them check.
package schema

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"reflect"
	"strings"

	"github.com/plus3/deltasync/bitstream"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// TypeID is the stable identifier of a component schema.
type TypeID uint16

// MaxFields is the number of fields a FieldPresenceMask can describe.
const MaxFields = 32

// Kind selects the codec of a field.
type Kind string

const (
	KindBool         Kind = "bool"
	KindFixedPoint   Kind = "fixed_point"
	KindVector3f     Kind = "vector3f"
	KindIntegerRange Kind = "integer_range"
	KindUnitRotation Kind = "unit_rotation"
	KindShortString  Kind = "short_string"
)

// ValueType returns the Go type Field.Read produces for the kind.
func (k Kind) ValueType() reflect.Type {
	switch k {
	case KindBool:
		return reflect.TypeFor[bool]()
	case KindFixedPoint:
		return reflect.TypeFor[float32]()
	case KindVector3f:
		return reflect.TypeFor[bitstream.Vector3]()
	case KindIntegerRange:
		return reflect.TypeFor[int32]()
	case KindUnitRotation:
		return reflect.TypeFor[bitstream.Quaternion]()
	case KindShortString:
		return reflect.TypeFor[string]()
	default:
		return nil
	}
}

// Field is one entry of a component layout.
type Field struct {
	Name  string  `yaml:"name"`
	Kind  Kind    `yaml:"kind"`
	Bits  uint8   `yaml:"bits,omitempty"`
	Range float64 `yaml:"range,omitempty"`
	Min   int64   `yaml:"min,omitempty"`
	Max   int64   `yaml:"max,omitempty"`
}

// Layout is the ordered field list of one component type.
type Layout struct {
	ID     TypeID  `yaml:"id"`
	Name   string  `yaml:"name"`
	Fields []Field `yaml:"fields"`
}

// Schema is a versioned set of component layouts.
type Schema struct {
	Version    int      `yaml:"version"`
	Components []Layout `yaml:"components"`

	byID map[TypeID]int
}

//go:embed builtin.yaml
var builtinYAML []byte

// Builtin returns the component schema compiled into this module.
func Builtin() *Schema {
	s, err := Parse(builtinYAML)
	if err != nil {
		panic("schema: builtin schema is invalid: " + err.Error())
	}
	return s
}

// Parse decodes and validates a YAML schema document.
func Parse(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a YAML schema document from r.
func Load(r io.Reader) (*Schema, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	return Parse(data)
}

func (s *Schema) index() error {
	if s.Version <= 0 {
		return errors.New("schema: version must be positive")
	}

	s.byID = make(map[TypeID]int, len(s.Components))
	names := make(map[string]bool, len(s.Components))
	for i, layout := range s.Components {
		if _, dup := s.byID[layout.ID]; dup {
			return fmt.Errorf("schema: duplicate component id %d", layout.ID)
		}
		if layout.Name == "" {
			return fmt.Errorf("schema: component %d has no name", layout.ID)
		}
		if names[layout.Name] {
			return fmt.Errorf("schema: duplicate component name %q", layout.Name)
		}
		if err := layout.Validate(); err != nil {
			return err
		}
		s.byID[layout.ID] = i
		names[layout.Name] = true
	}
	return nil
}

// Layout returns the layout registered under id.
func (s *Schema) Layout(id TypeID) (Layout, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Layout{}, false
	}
	return s.Components[i], true
}

// LayoutByName returns the layout with the given component name.
func (s *Schema) LayoutByName(name string) (Layout, bool) {
	for _, layout := range s.Components {
		if layout.Name == name {
			return layout, true
		}
	}
	return Layout{}, false
}

// Fingerprint hashes the canonical form of every layout. Two peers with equal
// fingerprints decode each other's streams bit for bit.
func (s *Schema) Fingerprint() [32]byte {
	var b strings.Builder
	fmt.Fprintf(&b, "version=%d\n", s.Version)
	for _, layout := range s.Components {
		fmt.Fprintf(&b, "component %d %s\n", layout.ID, layout.Name)
		for _, f := range layout.Fields {
			fmt.Fprintf(&b, "  %s %s bits=%d range=%g min=%d max=%d\n", f.Name, f.Kind, f.Bits, f.Range, f.Min, f.Max)
		}
	}
	return blake3.Sum256([]byte(b.String()))
}

// Validate checks the layout against the codec constraints.
func (l Layout) Validate() error {
	if len(l.Fields) > MaxFields {
		return fmt.Errorf("schema: %s has %d fields, at most %d fit a presence mask", l.Name, len(l.Fields), MaxFields)
	}
	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if seen[f.Name] {
			return fmt.Errorf("schema: %s.%s declared twice", l.Name, f.Name)
		}
		seen[f.Name] = true
		if err := f.Validate(); err != nil {
			return fmt.Errorf("schema: %s.%s: %w", l.Name, f.Name, err)
		}
	}
	return nil
}

// Validate checks the field's parameters for its kind.
func (f Field) Validate() error {
	switch f.Kind {
	case KindBool, KindUnitRotation, KindShortString:
		return nil
	case KindFixedPoint, KindVector3f:
		if f.Bits == 0 || f.Bits > 32 {
			return fmt.Errorf("bit width %d outside 1..32", f.Bits)
		}
		if !(f.Range > 0) || math.IsInf(f.Range, 0) {
			return fmt.Errorf("range %v must be positive", f.Range)
		}
		return nil
	case KindIntegerRange:
		if f.Bits == 0 || f.Bits > 32 {
			return fmt.Errorf("bit width %d outside 1..32", f.Bits)
		}
		if f.Min < math.MinInt32 || f.Max > math.MaxInt32 {
			return fmt.Errorf("range %d..%d exceeds int32", f.Min, f.Max)
		}
		if f.Max < f.Min {
			return fmt.Errorf("max %d below min %d", f.Max, f.Min)
		}
		if bits.Len64(uint64(f.Max-f.Min)) > int(f.Bits) {
			return fmt.Errorf("range %d..%d does not fit %d bits", f.Min, f.Max, f.Bits)
		}
		return nil
	default:
		return fmt.Errorf("unknown kind %q", f.Kind)
	}
}
