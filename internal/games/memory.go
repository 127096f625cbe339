package games

import (
	"github.com/duetkeys/duet/internal/corpus"
	"github.com/duetkeys/duet/internal/seedrand"
)

// MemoryDay is one day of shared history picked for memory lane.
type MemoryDay struct {
	Date     string           `json:"date"`
	Messages []corpus.Message `json:"messages"`
}

// MemoryLane picks a day from the shared history by seed. Days with fewer
// than five messages get one re-roll at seed+1 so the screen isn't nearly
// empty; the re-rolled day is kept even if it is also small, and a
// single-date history is never re-rolled. Both clients perform the
// identical re-roll.
func MemoryLane(c *corpus.Corpus, seed int64) (MemoryDay, error) {
	if len(c.Dates) == 0 {
		return MemoryDay{}, ErrNoContent
	}

	date := c.Dates[seedrand.IntN(seed, len(c.Dates))]
	if len(c.ByDate[date]) < 5 && len(c.Dates) > 1 {
		date = c.Dates[seedrand.IntN(seed+1, len(c.Dates))]
	}

	return MemoryDay{Date: date, Messages: c.ByDate[date]}, nil
}
