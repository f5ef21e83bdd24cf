package directory

import (
	"sync"
)

// Buffer accumulates artist rows during a run so the directory gets one
// batched write per flush instead of a round trip per play event. Rows are
// deduplicated by artist id, last write wins.
type Buffer struct {
	mu       sync.Mutex
	rows     map[string]ArtistRow
	order    []string
	capacity int
}

// NewBuffer creates a Buffer that reports full at the given capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{
		rows:     make(map[string]ArtistRow, capacity),
		capacity: capacity,
	}
}

// Add merges a row into the buffer. Returns true if the buffer should be
// flushed.
func (b *Buffer) Add(row ArtistRow) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, seen := b.rows[row.ID]; !seen {
		b.order = append(b.order, row.ID)
	}
	b.rows[row.ID] = row
	return len(b.order) >= b.capacity
}

// Flush returns the buffered rows in insertion order and clears the buffer.
func (b *Buffer) Flush() []ArtistRow {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := make([]ArtistRow, 0, len(b.order))
	for _, id := range b.order {
		batch = append(batch, b.rows[id])
	}
	b.rows = make(map[string]ArtistRow, b.capacity)
	b.order = nil
	return batch
}

// Size returns the number of distinct artists buffered.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.order)
}
