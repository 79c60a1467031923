// Package history folds quote snapshots into bounded per-symbol price
// history buffers for charting.
package history

import (
	"time"

	"github.com/marketdesk/marketdesk/pkg/models"
)

// MaxPoints caps each symbol's buffer. Oldest points are evicted first; the
// cap is a fixed count, not a time window.
const MaxPoints = 30

// Histories maps symbol to its ordered price history, oldest first.
type Histories map[string][]models.HistoryPoint

// Append folds one snapshot into the histories at the given capture time and
// returns the result. It is a pure fold: the input map and its slices are
// never mutated, and no clock other than the timestamp argument is consulted.
// Symbols absent from the snapshot keep their existing buffers untouched.
func Append(histories Histories, snapshot models.QuoteSnapshot, timestamp time.Time) Histories {
	next := make(Histories, len(histories)+len(snapshot))
	for symbol, points := range histories {
		next[symbol] = points
	}

	for symbol, quote := range snapshot {
		prev := next[symbol]
		start := 0
		if len(prev) >= MaxPoints {
			start = len(prev) - MaxPoints + 1
		}
		points := make([]models.HistoryPoint, 0, len(prev)-start+1)
		points = append(points, prev[start:]...)
		points = append(points, models.HistoryPoint{
			Time:          timestamp,
			Price:         quote.Price,
			ChangePercent: quote.ChangePercent,
		})
		next[symbol] = points
	}

	return next
}
