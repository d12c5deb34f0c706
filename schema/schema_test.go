package schema_test

import (
	"math"
	"strings"
	"testing"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	s := schema.Builtin()
	assert.Equal(t, 1, s.Version)
	assert.Len(t, s.Components, 7)

	layout, ok := s.Layout(4)
	require.True(t, ok)
	assert.Equal(t, "WorldPositionQuery", layout.Name)
	require.Len(t, layout.Fields, 2)
	assert.Equal(t, schema.KindFixedPoint, layout.Fields[1].Kind)
	assert.Equal(t, uint8(24), layout.Fields[1].Bits)

	player, ok := s.LayoutByName("Player")
	require.True(t, ok)
	assert.Empty(t, player.Fields)

	_, ok = s.Layout(999)
	assert.False(t, ok)
}

func TestFingerprint(t *testing.T) {
	a := schema.Builtin()
	b := schema.Builtin()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	changed, err := schema.Parse([]byte(`
version: 1
components:
  - id: 1
    name: WorldPosition
    fields:
      - {name: value, kind: vector3f, bits: 20, range: 2400}
`))
	require.NoError(t, err)
	assert.NotEqual(t, a.Fingerprint(), changed.Fingerprint())
}

func TestParseRejectsInvalidLayouts(t *testing.T) {
	tests := map[string]string{
		"no version": `components: []`,
		"duplicate id": `
version: 1
components:
  - {id: 1, name: A, fields: []}
  - {id: 1, name: B, fields: []}`,
		"duplicate name": `
version: 1
components:
  - {id: 1, name: A, fields: []}
  - {id: 2, name: A, fields: []}`,
		"unknown kind": `
version: 1
components:
  - {id: 1, name: A, fields: [{name: x, kind: float64}]}`,
		"zero width": `
version: 1
components:
  - {id: 1, name: A, fields: [{name: x, kind: fixed_point, bits: 0, range: 1}]}`,
		"no range": `
version: 1
components:
  - {id: 1, name: A, fields: [{name: x, kind: vector3f, bits: 8}]}`,
		"integer range too narrow": `
version: 1
components:
  - {id: 1, name: A, fields: [{name: x, kind: integer_range, bits: 4, min: 0, max: 100}]}`,
		"duplicate field": `
version: 1
components:
  - {id: 1, name: A, fields: [{name: x, kind: bool}, {name: x, kind: bool}]}`,
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := schema.Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestTooManyFields(t *testing.T) {
	var b strings.Builder
	b.WriteString("version: 1\ncomponents:\n  - id: 1\n    name: Wide\n    fields:\n")
	for i := range schema.MaxFields + 1 {
		b.WriteString("      - {name: f")
		b.WriteString(strings.Repeat("x", i+1))
		b.WriteString(", kind: bool}\n")
	}
	_, err := schema.Load(strings.NewReader(b.String()))
	assert.ErrorContains(t, err, "presence mask")
}

func TestFieldReadWrite(t *testing.T) {
	s := schema.Builtin()
	query, _ := s.LayoutByName("WorldPositionQuery")
	persistence, _ := s.LayoutByName("Persistence")

	w := bitstream.NewWriter()
	require.NoError(t, query.Fields[0].Write(w, bitstream.Vector3{X: 1, Y: 2, Z: 3}))
	require.NoError(t, query.Fields[1].Write(w, float32(12.5)))
	require.NoError(t, persistence.Fields[0].Write(w, "abc"))
	assert.Error(t, query.Fields[1].Write(w, 12.5), "float64 is not a fixed point value")
	data, err := w.Bytes()
	require.NoError(t, err)

	r := bitstream.NewReader(data)
	v, err := query.Fields[0].Read(r)
	require.NoError(t, err)
	assert.IsType(t, bitstream.Vector3{}, v)

	v, err = query.Fields[1].Read(r)
	require.NoError(t, err)
	assert.InDelta(t, 12.5, v, 1e-3)

	v, err = persistence.Fields[0].Read(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", v)
}

func TestValueTypes(t *testing.T) {
	for _, layout := range schema.Builtin().Components {
		for _, f := range layout.Fields {
			assert.NotNil(t, f.Kind.ValueType(), "%s.%s", layout.Name, f.Name)
		}
	}
	assert.Nil(t, schema.Kind("float64").ValueType())
}

// Skipping a mask body must consume exactly the bits a decode consumes.
func TestLayoutSkipMatchesRead(t *testing.T) {
	s := schema.Builtin()
	values := map[schema.Kind]any{
		schema.KindVector3f:     bitstream.Vector3{X: -5, Y: 0, Z: 5},
		schema.KindFixedPoint:   float32(3),
		schema.KindIntegerRange: int32(-12),
		schema.KindUnitRotation: bitstream.Quaternion{W: 1},
		schema.KindShortString:  "persisted",
		schema.KindBool:         true,
	}

	for _, layout := range s.Components {
		for mask := uint32(0); mask < 1<<len(layout.Fields); mask++ {
			w := bitstream.NewWriter()
			for i, f := range layout.Fields {
				present := mask&(1<<i) != 0
				require.NoError(t, w.WriteMask(present))
				if present {
					require.NoError(t, f.Write(w, values[f.Kind]))
				}
			}
			require.NoError(t, w.WriteBits(0b1011, 4)) // trailer
			written := w.Position()
			data, err := w.Bytes()
			require.NoError(t, err)

			r := bitstream.NewReader(data)
			require.NoError(t, layout.Skip(r), "%s mask=%b", layout.Name, mask)
			trailer, err := r.ReadBits(4)
			require.NoError(t, err)
			assert.Equal(t, uint64(0b1011), trailer)
			assert.Equal(t, written, r.Position(), "%s mask=%b", layout.Name, mask)
		}
	}
}

func TestLayoutSkipRejectsInvalidValues(t *testing.T) {
	s := schema.Builtin()
	localUser, _ := s.LayoutByName("LocalUser")
	persistence, _ := s.LayoutByName("Persistence")
	orientation, _ := s.LayoutByName("WorldOrientation")

	tests := map[string]struct {
		layout schema.Layout
		body   func(w *bitstream.Writer)
	}{
		"integer above maximum": {
			layout: localUser,
			body: func(w *bitstream.Writer) {
				require.NoError(t, w.WriteMask(true))
				require.NoError(t, w.WriteBits(0x7FFF, 15))
			},
		},
		"invalid utf-8": {
			layout: persistence,
			body: func(w *bitstream.Writer) {
				require.NoError(t, w.WriteMask(true))
				require.NoError(t, w.WriteBits(1, bitstream.ShortStringLengthBits))
				require.NoError(t, w.WriteBits(0xFF, 8))
				require.NoError(t, w.WriteMask(false))
			},
		},
		"impossible rotation": {
			layout: orientation,
			body: func(w *bitstream.Writer) {
				require.NoError(t, w.WriteMask(true))
				require.NoError(t, w.WriteBits(3, 2))
				for range 3 {
					require.NoError(t, w.WriteBits(1<<bitstream.UnitRotationComponentBits-1, bitstream.UnitRotationComponentBits))
				}
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			w := bitstream.NewWriter()
			tt.body(w)
			data, err := w.Bytes()
			require.NoError(t, err)
			assert.ErrorIs(t, tt.layout.Skip(bitstream.NewReader(data)), bitstream.ErrOutOfRange)
		})
	}
}

func TestIntegerRangeBounds(t *testing.T) {
	tests := map[string]schema.Field{
		"min below int32": {Name: "x", Kind: schema.KindIntegerRange, Bits: 32, Min: math.MinInt32 - 1, Max: 0},
		"max above int32": {Name: "x", Kind: schema.KindIntegerRange, Bits: 32, Min: 0, Max: math.MaxInt32 + 1},
		"span overflows":  {Name: "x", Kind: schema.KindIntegerRange, Bits: 32, Min: math.MinInt64, Max: math.MaxInt64},
	}
	for name, f := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, f.Validate())
		})
	}

	full := schema.Field{Name: "x", Kind: schema.KindIntegerRange, Bits: 32, Min: math.MinInt32, Max: math.MaxInt32}
	assert.NoError(t, full.Validate())
}
