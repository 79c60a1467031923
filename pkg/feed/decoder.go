package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/marketdesk/marketdesk/pkg/models"
)

// ErrMalformedSnapshot marks a feed frame that is not a well-formed mapping
// of symbol to quote. Malformed frames are data-quality noise, not a
// connectivity fault; callers drop them without touching connection state.
var ErrMalformedSnapshot = errors.New("malformed snapshot")

type wireQuote struct {
	Price  *float64 `json:"price"`
	Change *float64 `json:"change"`
}

// Decode parses one inbound feed frame into a QuoteSnapshot. It is pure:
// the same payload always yields a structurally equal snapshot.
func Decode(data []byte) (models.QuoteSnapshot, error) {
	var raw map[string]wireQuote
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	snapshot := make(models.QuoteSnapshot, len(raw))
	for symbol, q := range raw {
		if symbol == "" {
			return nil, fmt.Errorf("%w: empty symbol key", ErrMalformedSnapshot)
		}
		if q.Price == nil || q.Change == nil {
			return nil, fmt.Errorf("%w: symbol %s missing price or change", ErrMalformedSnapshot, symbol)
		}
		if *q.Price < 0 {
			return nil, fmt.Errorf("%w: symbol %s has negative price", ErrMalformedSnapshot, symbol)
		}
		snapshot[symbol] = models.Quote{
			Symbol:        symbol,
			Price:         *q.Price,
			ChangePercent: *q.Change,
		}
	}

	return snapshot, nil
}
