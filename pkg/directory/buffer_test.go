package directory

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBufferProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("buffer adds distinct artists until capacity", prop.ForAll(
		func(cap int) bool {
			if cap < 1 || cap > 1000 {
				return true
			}
			b := NewBuffer(cap)
			for i := 0; i < cap-1; i++ {
				full := b.Add(ArtistRow{ID: fmt.Sprintf("artist-%d", i)})
				if full {
					return false
				}
				if b.Size() != i+1 {
					return false
				}
			}
			// One more should report full
			full := b.Add(ArtistRow{ID: "artist-last"})
			return full && b.Size() == cap
		},
		gen.IntRange(1, 1000),
	))

	properties.Property("buffer is cleared after flush", prop.ForAll(
		func(count int) bool {
			if count < 0 || count > 500 {
				return true
			}
			b := NewBuffer(1000)
			for i := 0; i < count; i++ {
				b.Add(ArtistRow{ID: fmt.Sprintf("artist-%d", i)})
			}

			batch := b.Flush()
			return len(batch) == count && b.Size() == 0
		},
		gen.IntRange(0, 500),
	))

	properties.Property("repeated plays of one artist occupy one slot", prop.ForAll(
		func(plays int) bool {
			if plays < 1 || plays > 200 {
				return true
			}
			b := NewBuffer(1000)
			for i := 0; i < plays; i++ {
				b.Add(ArtistRow{ID: "artist-1", Followers: i})
			}
			batch := b.Flush()
			// Last write wins
			return len(batch) == 1 && batch[0].Followers == plays-1
		},
		gen.IntRange(1, 200),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestBufferInsertionOrder(t *testing.T) {
	b := NewBuffer(10)
	b.Add(ArtistRow{ID: "c"})
	b.Add(ArtistRow{ID: "a"})
	b.Add(ArtistRow{ID: "c", Name: "updated"})
	b.Add(ArtistRow{ID: "b"})

	batch := b.Flush()
	assert.Equal(t, []string{"c", "a", "b"}, []string{batch[0].ID, batch[1].ID, batch[2].ID})
	assert.Equal(t, "updated", batch[0].Name)
}
