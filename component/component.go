// Package component defines the host components of the game schema and binds
// them to their wire layouts.
package component

import (
	"errors"
	"fmt"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/replication"
	"github.com/plus3/deltasync/schema"
)

// Type ids of the game schema.
const (
	WorldPositionID      schema.TypeID = 1
	WorldOrientationID   schema.TypeID = 2
	LocalUserID          schema.TypeID = 3
	WorldPositionQueryID schema.TypeID = 4
	ArchetypeComponentID schema.TypeID = 5
	PersistenceID        schema.TypeID = 6
	PlayerID             schema.TypeID = 7
)

type Float3 struct {
	X, Y, Z float32
}

type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Translation is the world position of an entity, replicated as WorldPosition.
type Translation struct {
	Value Float3
}

// Rotation is the world orientation of an entity, replicated as WorldOrientation.
type Rotation struct {
	Value Quaternion
}

// LocalUser identifies the local user slot controlling an entity.
type LocalUser struct {
	LocalIndex int32
}

// WorldPositionQuery asks for every entity within Radius of Position.
type WorldPositionQuery struct {
	Position Float3
	Radius   float32
}

// ArchetypeComponent selects the prefab an entity is instantiated from.
type ArchetypeComponent struct {
	Index int32
}

// Persistence marks an entity stored across sessions.
type Persistence struct {
	UUID   string
	Expiry string
}

type Player struct{}

func (f Float3) vector() bitstream.Vector3 {
	return bitstream.Vector3{X: f.X, Y: f.Y, Z: f.Z}
}

func float3(v bitstream.Vector3) Float3 {
	return Float3{X: v.X, Y: v.Y, Z: v.Z}
}

// Bindings builds the handler registry of the game components from s.
// Translation and Rotation are interpolated on remote entities.
func Bindings(s *schema.Schema) (*replication.Registry, error) {
	var errs []error
	layout := func(id schema.TypeID) schema.Layout {
		l, ok := s.Layout(id)
		if !ok {
			errs = append(errs, fmt.Errorf("component: schema has no layout %d", id))
		}
		return l
	}

	position := layout(WorldPositionID)
	orientation := layout(WorldOrientationID)
	localUser := layout(LocalUserID)
	query := layout(WorldPositionQueryID)
	archetype := layout(ArchetypeComponentID)
	persistence := layout(PersistenceID)
	player := layout(PlayerID)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	translation, err := replication.Bind(position,
		replication.Field(
			func(c *Translation) bitstream.Vector3 { return c.Value.vector() },
			func(c *Translation, v bitstream.Vector3) { c.Value = float3(v) }),
	)
	if err != nil {
		return nil, err
	}

	rotation, err := replication.Bind(orientation,
		replication.Field(
			func(c *Rotation) bitstream.Quaternion { return bitstream.Quaternion(c.Value) },
			func(c *Rotation, v bitstream.Quaternion) { c.Value = Quaternion(v) }),
	)
	if err != nil {
		return nil, err
	}

	user, err := replication.Bind(localUser,
		replication.Field(
			func(c *LocalUser) int32 { return c.LocalIndex },
			func(c *LocalUser, v int32) { c.LocalIndex = v }),
	)
	if err != nil {
		return nil, err
	}

	positionQuery, err := replication.Bind(query,
		replication.Field(
			func(c *WorldPositionQuery) bitstream.Vector3 { return c.Position.vector() },
			func(c *WorldPositionQuery, v bitstream.Vector3) { c.Position = float3(v) }),
		replication.Field(
			func(c *WorldPositionQuery) float32 { return c.Radius },
			func(c *WorldPositionQuery, v float32) { c.Radius = v }),
	)
	if err != nil {
		return nil, err
	}

	prefab, err := replication.Bind(archetype,
		replication.Field(
			func(c *ArchetypeComponent) int32 { return c.Index },
			func(c *ArchetypeComponent, v int32) { c.Index = v }),
	)
	if err != nil {
		return nil, err
	}

	persisted, err := replication.Bind(persistence,
		replication.Field(
			func(c *Persistence) string { return c.UUID },
			func(c *Persistence, v string) { c.UUID = v }),
		replication.Field(
			func(c *Persistence) string { return c.Expiry },
			func(c *Persistence, v string) { c.Expiry = v }),
	)
	if err != nil {
		return nil, err
	}

	playerTag, err := replication.Bind[Player](player)
	if err != nil {
		return nil, err
	}

	return replication.NewRegistry(
		translation.WithInterpolation(),
		rotation.WithInterpolation(),
		user,
		positionQuery,
		prefab,
		persisted,
		playerTag,
	)
}

// Register builds the bindings of s and registers every host and bookkeeping
// component with registry.
func Register(registry *ecs.ComponentRegistry, s *schema.Schema) (*replication.Registry, error) {
	bindings, err := Bindings(s)
	if err != nil {
		return nil, err
	}
	bindings.RegisterStorage(registry)
	return bindings, nil
}

// NewStore returns a store and handler registry for the built-in schema.
func NewStore() (*ecs.Storage, *replication.Registry) {
	registry := ecs.NewComponentRegistry()
	bindings, err := Register(registry, schema.Builtin())
	if err != nil {
		panic(err)
	}
	return ecs.NewStorage(registry), bindings
}
