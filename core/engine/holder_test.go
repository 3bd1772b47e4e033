package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"sda-calculator/core/pricing"
	"sda-calculator/core/types"
)

func TestSnapshotHolder(t *testing.T) {
	h := NewSnapshotHolder(nil)
	assert.Nil(t, h.Snapshot())
	assert.True(t, h.LoadedAt().IsZero())
	assert.False(t, h.Store(nil))

	first := pricing.NewSnapshotBuilder().
		AddRegions(types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1}).
		Build()
	assert.True(t, h.Store(first))
	assert.Same(t, first, h.Snapshot())
	assert.False(t, h.LoadedAt().IsZero())

	same := pricing.NewSnapshotBuilder().
		AddRegions(types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1}).
		Build()
	assert.False(t, h.Store(same), "identical content is not a change")
	assert.Same(t, same, h.Snapshot())

	changed := pricing.NewSnapshotBuilder().Build()
	assert.True(t, h.Store(changed))
}

func TestSnapshotHolderConcurrentReaders(t *testing.T) {
	snaps := []*pricing.Snapshot{
		pricing.NewSnapshotBuilder().Build(),
		pricing.NewSnapshotBuilder().
			AddRegions(types.SA4Region{Name: sydney, State: types.StateNSW, DisplayOrder: 1}).
			Build(),
	}
	h := NewSnapshotHolder(snaps[0])

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				snap := h.Snapshot()
				if assert.NotNil(t, snap) {
					assert.True(t, snap.Verify())
				}
			}
		}()
	}
	for j := 0; j < 200; j++ {
		h.Store(snaps[j%2])
	}
	wg.Wait()
}
