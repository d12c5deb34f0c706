package replication_test

import (
	"testing"

	"github.com/plus3/deltasync/bitstream"
	"github.com/plus3/deltasync/component"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/logging"
	"github.com/plus3/deltasync/replication"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *ecs.Storage
	bindings *replication.Registry
	receiver *replication.Receiver
	log      *logging.Recorder
}

func newFixture() *fixture {
	store, bindings := component.NewStore()
	log := logging.NewRecorder()
	return &fixture{
		store:    store,
		bindings: bindings,
		receiver: replication.NewReceiver(store, bindings, replication.WithLogger(log)),
		log:      log,
	}
}

type entity struct {
	frame      replication.EntityFrame
	components []replication.ComponentFrame
}

func remote(id replication.EntityID, components ...replication.ComponentFrame) entity {
	return entity{replication.EntityFrame{EntityID: id, HasMeta: true}, components}
}

func owned(id replication.EntityID, components ...replication.ComponentFrame) entity {
	return entity{replication.EntityFrame{EntityID: id, HasMeta: true, Ownership: true}, components}
}

func bare(id replication.EntityID, components ...replication.ComponentFrame) entity {
	return entity{replication.EntityFrame{EntityID: id}, components}
}

func deleted(id replication.EntityID) entity {
	return entity{frame: replication.EntityFrame{EntityID: id, HasMeta: true, IsDeleted: true}}
}

func position(x, y, z float32) component.Translation {
	return component.Translation{Value: component.Float3{X: x, Y: y, Z: z}}
}

func encode(t *testing.T, bindings *replication.Registry, entities ...entity) []byte {
	t.Helper()
	w := replication.NewSnapshotWriter(bindings)
	for _, e := range entities {
		require.NoError(t, w.WriteEntity(e.frame, e.components...))
	}
	data, err := w.Finish()
	require.NoError(t, err)
	return data
}

func (f *fixture) apply(t *testing.T, frame uint64, entities ...entity) error {
	t.Helper()
	return f.receiver.ApplySnapshot(frame, bitstream.NewReader(encode(t, f.bindings, entities...)))
}

func (f *fixture) handle(t *testing.T, id replication.EntityID) ecs.Handle {
	t.Helper()
	h, ok := f.receiver.Mapper().Local(id)
	require.True(t, ok, "entity %d is not mapped", id)
	return h
}
