package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer, timeout time.Duration) []ChangeEvent {
	t.Helper()
	select {
	case batch := <-d.Batches():
		return batch
	case <-time.After(timeout):
		t.Fatal("no batch emitted")
		return nil
	}
}

func assertNoBatch(t *testing.T, d *Debouncer, wait time.Duration) {
	t.Helper()
	select {
	case batch := <-d.Batches():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(wait):
	}
}

func TestDebouncerCoalescesRapidSaves(t *testing.T) {
	d := NewDebouncer(100 * time.Millisecond)
	defer d.Stop()

	// five saves within 200ms
	for i := 0; i < 5; i++ {
		d.Add(ChangeEvent{Type: EventTypeModified, Path: "src/scss/main.scss"})
		time.Sleep(40 * time.Millisecond)
	}

	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "src/scss/main.scss", batch[0].Path)

	assertNoBatch(t, d, 250*time.Millisecond)
}

func TestDebouncerKeepsDistinctPathsSorted(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(ChangeEvent{Type: EventTypeModified, Path: "src/js/b.js"})
	d.Add(ChangeEvent{Type: EventTypeCreated, Path: "src/js/a.js"})
	d.Add(ChangeEvent{Type: EventTypeDeleted, Path: "src/js/b.js"})

	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 2)
	assert.Equal(t, "src/js/a.js", batch[0].Path)
	assert.Equal(t, "src/js/b.js", batch[1].Path)
	// latest event wins
	assert.Equal(t, EventTypeDeleted, batch[1].Type)
}

func TestDebouncerSeparatesQuietPeriods(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(ChangeEvent{Path: "a"})
	receiveBatch(t, d, time.Second)

	d.Add(ChangeEvent{Path: "b"})
	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "b", batch[0].Path)
}

func TestDebouncerFlush(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(ChangeEvent{Path: "a"})
	d.Flush()

	batch := receiveBatch(t, d, 100*time.Millisecond)
	assert.Len(t, batch, 1)
}

func TestDebouncerStopDropsPending(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Add(ChangeEvent{Path: "a"})
	d.Stop()
	d.Add(ChangeEvent{Path: "b"})

	assertNoBatch(t, d, 100*time.Millisecond)
}
