package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/pkg/models"
)

func TestDecodeValidSnapshot(t *testing.T) {
	payload := []byte(`{
		"AAPL": {"symbol": "AAPL", "price": 175.50, "change": 1.25},
		"TSLA": {"symbol": "TSLA", "price": 242.80, "change": -0.40}
	}`)

	snapshot, err := Decode(payload)
	require.NoError(t, err)
	require.Len(t, snapshot, 2)

	assert.Equal(t, models.Quote{Symbol: "AAPL", Price: 175.50, ChangePercent: 1.25}, snapshot["AAPL"])
	assert.Equal(t, models.Quote{Symbol: "TSLA", Price: 242.80, ChangePercent: -0.40}, snapshot["TSLA"])
}

func TestDecodeIsIdempotent(t *testing.T) {
	payload := []byte(`{"AAPL": {"price": 100, "change": 0}}`)

	first, err := Decode(payload)
	require.NoError(t, err)
	second, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDecodeEmptySnapshot(t *testing.T) {
	snapshot, err := Decode([]byte(`{}`))
	require.NoError(t, err)
	assert.Empty(t, snapshot)
}

func TestDecodeMalformedPayloads(t *testing.T) {
	cases := map[string][]byte{
		"not json":       []byte(`ticker AAPL 100`),
		"array payload":  []byte(`[{"price": 100, "change": 0}]`),
		"string price":   []byte(`{"AAPL": {"price": "100", "change": 0}}`),
		"missing price":  []byte(`{"AAPL": {"change": 0}}`),
		"missing change": []byte(`{"AAPL": {"price": 100}}`),
		"empty symbol":   []byte(`{"": {"price": 100, "change": 0}}`),
		"negative price": []byte(`{"AAPL": {"price": -1, "change": 0}}`),
	}

	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(payload)
			assert.ErrorIs(t, err, ErrMalformedSnapshot)
		})
	}
}
