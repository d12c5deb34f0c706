package main

import (
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/plus3/deltasync/component"
	"github.com/plus3/deltasync/config"
	"github.com/plus3/deltasync/replication"
)

// peerIDShift leaves each peer 2^24 entity ids of its own.
const peerIDShift = 24

type simEntity struct {
	id        replication.EntityID
	announced bool
	owned     bool
	position  component.Translation
	rotation  component.Rotation
}

// Generator plays one remote peer: it owns a set of entities, moves them
// around and occasionally hands them over or deletes them.
type Generator struct {
	cfg      config.StressConfig
	bindings *replication.Registry
	rng      *rand.Rand
	entities []*simEntity
	nextID   replication.EntityID
}

func NewGenerator(peer int, cfg config.StressConfig, bindings *replication.Registry) *Generator {
	g := &Generator{
		cfg:      cfg,
		bindings: bindings,
		rng:      rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(peer))),
		nextID:   replication.EntityID(peer+1) << peerIDShift,
	}
	perPeer := cfg.Entities / cfg.Peers
	if peer < cfg.Entities%cfg.Peers {
		perPeer++
	}
	for range perPeer {
		g.entities = append(g.entities, g.spawn())
	}
	return g
}

func (g *Generator) spawn() *simEntity {
	g.nextID++
	return &simEntity{
		id:       g.nextID,
		position: component.Translation{Value: g.randomPoint()},
		rotation: component.Rotation{Value: component.IdentityQuaternion},
	}
}

func (g *Generator) randomPoint() component.Float3 {
	coord := func() float32 { return float32(g.rng.Float64()*2000 - 1000) }
	return component.Float3{X: coord(), Y: coord(), Z: coord()}
}

// Snapshot encodes the changes of one frame.
func (g *Generator) Snapshot() ([]byte, error) {
	w := replication.NewSnapshotWriter(g.bindings)

	for i, e := range g.entities {
		if !e.announced {
			if err := g.announce(w, e); err != nil {
				return nil, err
			}
			continue
		}

		switch r := g.rng.Float64(); {
		case r < g.cfg.DeleteRatio && !e.owned:
			frame := replication.EntityFrame{EntityID: e.id, HasMeta: true, IsDeleted: true}
			if err := w.WriteEntity(frame); err != nil {
				return nil, err
			}
			g.entities[i] = g.spawn()
			if err := g.announce(w, g.entities[i]); err != nil {
				return nil, err
			}

		case r < g.cfg.DeleteRatio+g.cfg.OwnershipRatio:
			e.owned = !e.owned
			frame := replication.EntityFrame{EntityID: e.id, HasMeta: true, Ownership: e.owned}
			if err := w.WriteEntity(frame); err != nil {
				return nil, err
			}

		case !e.owned && g.rng.Float64() < g.cfg.UpdateRatio:
			if err := g.move(w, e); err != nil {
				return nil, err
			}
		}
	}

	return w.Finish()
}

func (g *Generator) announce(w *replication.SnapshotWriter, e *simEntity) error {
	e.announced = true
	id, err := uuid.NewRandomFromReader(rngReader{g.rng})
	if err != nil {
		return err
	}
	return w.WriteEntity(
		replication.EntityFrame{EntityID: e.id, HasMeta: true},
		replication.ConstructComponent(component.WorldPositionID, e.position, 0b1),
		replication.ConstructComponent(component.WorldOrientationID, e.rotation, 0b1),
		replication.ConstructComponent(component.ArchetypeComponentID, component.ArchetypeComponent{Index: int32(g.rng.IntN(64))}, 0b1),
		replication.ConstructComponent(component.PersistenceID, component.Persistence{UUID: id.String()}, 0b01),
	)
}

func (g *Generator) move(w *replication.SnapshotWriter, e *simEntity) error {
	step := func(v float32) float32 {
		v += float32(g.rng.Float64()*2 - 1)
		return max(-2000, min(2000, v))
	}
	p := &e.position.Value
	p.X, p.Y, p.Z = step(p.X), step(p.Y), step(p.Z)

	angle := g.rng.Float64()
	e.rotation.Value = component.Quaternion{Y: float32(angle), W: 1}

	return w.WriteEntity(
		replication.EntityFrame{EntityID: e.id},
		replication.UpdateComponent(component.WorldPositionID, e.position, 0b1),
		replication.UpdateComponent(component.WorldOrientationID, e.rotation, 0b1),
	)
}

// rngReader draws uuid bytes from the peer's seeded source so a seed
// reproduces the whole stream.
type rngReader struct {
	rng *rand.Rand
}

func (r rngReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
