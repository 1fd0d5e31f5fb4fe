package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/planning-engine/generic"
	"github.com/warp/planning-engine/generic/store"
)

func at(day int) time.Time {
	return time.Date(2025, time.March, day, 8, 0, 0, 0, time.UTC)
}

func TestMemory_KeepsEntriesOrderedPerPerson(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "b", PersonID: "p1", Timestamp: at(5)}))
	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "a", PersonID: "p1", Timestamp: at(2)}))
	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "c", PersonID: "p2", Timestamp: at(1)}))

	entries, err := m.Load(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "b", entries[1].ID)
}

func TestMemory_RejectsDuplicateID(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(1)}))
	assert.Error(t, m.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(2)}))

	entries, _ := m.Load(ctx, "p1")
	assert.Len(t, entries, 1)
}

func TestMemory_BatchWithDuplicateWritesNothing(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(1)}))

	// WHEN: A batch carries a fresh entry and a duplicate
	err := m.Append(ctx,
		generic.FatigueEntry{ID: "y", PersonID: "p1", Timestamp: at(2)},
		generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(2)},
	)

	// THEN: The fresh entry is not kept either
	assert.Error(t, err)
	entries, _ := m.Load(ctx, "p1")
	assert.Len(t, entries, 1)
}

func TestMemory_LoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(1), RunningScore: 10}))

	entries, _ := m.Load(ctx, "p1")
	entries[0].RunningScore = 99

	again, _ := m.Load(ctx, "p1")
	assert.Equal(t, 10, again[0].RunningScore)
}

func TestFailing_ArmedAppendWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := store.NewFailing()
	boom := errors.New("disk full")

	f.FailWith(boom)
	assert.ErrorIs(t, f.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(1)}), boom)
	entries, _ := f.Load(ctx, "p1")
	assert.Empty(t, entries)

	f.FailWith(nil)
	assert.NoError(t, f.Append(ctx, generic.FatigueEntry{ID: "x", PersonID: "p1", Timestamp: at(1)}))
}

func TestFailing_FailOnEntryRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	f := store.NewFailing()
	boom := errors.New("disk full")
	f.FailOnEntry(2, boom)

	// WHEN: The first call stays below the limit, the second crosses it
	require.NoError(t, f.Append(ctx, generic.FatigueEntry{ID: "a", PersonID: "p1", Timestamp: at(1)}))
	err := f.Append(ctx,
		generic.FatigueEntry{ID: "b", PersonID: "p1", Timestamp: at(2)},
		generic.FatigueEntry{ID: "c", PersonID: "p1", Timestamp: at(2)},
	)

	// THEN: Only the first entry exists
	assert.ErrorIs(t, err, boom)
	entries, _ := f.Load(ctx, "p1")
	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].ID)
}
