package replication_test

import (
	"sync"
	"testing"

	"github.com/plus3/deltasync/component"
	"github.com/plus3/deltasync/ecs"
	"github.com/plus3/deltasync/replication"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveSystem(t *testing.T) {
	f := newFixture()
	scheduler := ecs.NewScheduler(f.store)
	system := replication.NewReceiveSystem(f.receiver)

	var desyncs []error
	system.OnDesync = func(err error) {
		desyncs = append(desyncs, err)
	}
	scheduler.Register(system)

	snapshots := make([][]byte, 8)
	for i := range snapshots {
		snapshots[i] = encode(t, f.bindings, remote(replication.EntityID(i+1),
			replication.ConstructComponent(component.WorldPositionID, position(float32(i), 0, 0), 0b1),
		))
	}

	var wg sync.WaitGroup
	for _, data := range snapshots {
		wg.Add(1)
		go func() {
			defer wg.Done()
			system.Enqueue(data)
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, system.Pending())

	scheduler.Once(1.0 / 60)
	assert.Zero(t, system.Pending())
	assert.Equal(t, 8, f.store.Len())
	assert.Empty(t, desyncs)

	samples := ecs.ReadComponent[replication.Samples[component.Translation]](f.store, f.handle(t, 3))
	require.NotNil(t, samples)
	assert.Equal(t, uint64(1), samples.Items[0].Frame, "samples carry the scheduler frame")

	system.Enqueue(nil)
	system.Enqueue(encode(t, f.bindings, deleted(1)))
	scheduler.Once(1.0 / 60)

	require.Len(t, desyncs, 1)
	var desync *replication.DesyncError
	assert.ErrorAs(t, desyncs[0], &desync)
	assert.Equal(t, 7, f.store.Len(), "later snapshots still apply")
}
