package models

import (
	"time"
)

// Quote is the current market price for one symbol. A feed snapshot carries
// one Quote per symbol it knows about and is authoritative for all of them.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change"`
}

// QuoteSnapshot maps symbol to its quote as pushed by the feed. Snapshots
// replace the current-quotes view wholesale; they are never merged.
type QuoteSnapshot map[string]Quote

// HistoryPoint is one captured price observation. Immutable once appended.
type HistoryPoint struct {
	Time          time.Time `json:"time"`
	Price         float64   `json:"price"`
	ChangePercent float64   `json:"change"`
}
