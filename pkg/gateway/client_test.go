package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketdesk/marketdesk/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func validDraft() models.OrderDraft {
	return models.OrderDraft{
		Symbol:   "AAPL",
		Side:     models.OrderSideBuy,
		Quantity: 5,
		Price:    150.00,
	}
}

func TestListOrders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/orders", r.URL.Path)
		json.NewEncoder(w).Encode([]models.Order{
			{ID: 1, Time: "2024-03-01 09:30:00", Symbol: "AAPL", Side: "buy", Quantity: 5, Price: 150},
			{ID: 2, Time: "2024-03-01 09:31:00", Symbol: "TSLA", Side: "sell", Quantity: 2, Price: 240},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, quietLogger())
	orders, err := client.ListOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, 1, orders[0].ID)
	assert.Equal(t, models.OrderSideSell, orders[1].Side)
}

func TestListOrdersEmptyBody(t *testing.T) {
	bodies := map[string]string{
		"absent body": "",
		"json null":   "null",
		"empty array": "[]",
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			client := NewClient(server.URL, Credentials{}, quietLogger())
			orders, err := client.ListOrders(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, orders)
			assert.Empty(t, orders)
		})
	}
}

func TestListOrdersTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // backend unreachable

	client := NewClient(server.URL, Credentials{}, quietLogger())
	_, err := client.ListOrders(context.Background())

	var te *TransportError
	require.ErrorAs(t, err, &te)
}

func TestSubmitSuccess(t *testing.T) {
	created := models.Order{ID: 1, Time: "t", Symbol: "AAPL", Side: "buy", Quantity: 5, Price: 150.00}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/orders", r.URL.Path)

		var draft models.OrderDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		assert.Equal(t, validDraft(), draft)

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(created)
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, quietLogger())
	order, err := client.Submit(context.Background(), validDraft())
	require.NoError(t, err)
	assert.Equal(t, created, order)
}

func TestSubmitBackendRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid stock symbol", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, quietLogger())
	_, err := client.Submit(context.Background(), validDraft())

	var re *RejectionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusBadRequest, re.Status)
}

func TestSubmitValidation(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	drafts := map[string]models.OrderDraft{
		"zero quantity":  {Symbol: "AAPL", Side: "buy", Quantity: 0, Price: 150},
		"price below 1c": {Symbol: "AAPL", Side: "buy", Quantity: 1, Price: 0.001},
		"missing symbol": {Side: "buy", Quantity: 1, Price: 150},
		"bad side":       {Symbol: "AAPL", Side: "hold", Quantity: 1, Price: 150},
	}

	client := NewClient(server.URL, Credentials{}, quietLogger())
	for name, draft := range drafts {
		t.Run(name, func(t *testing.T) {
			_, err := client.Submit(context.Background(), draft)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
		})
	}

	assert.Zero(t, atomic.LoadInt32(&hits), "invalid drafts must not reach the backend")
}

func TestSubmitRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(models.Order{ID: 1})
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, quietLogger())

	var limited bool
	for i := 0; i < 10; i++ {
		if _, err := client.Submit(context.Background(), validDraft()); errors.Is(err, ErrRateLimited) {
			limited = true
			break
		}
	}
	assert.True(t, limited, "burst of submissions should trip the limiter")
}

func TestSessionTokenAttached(t *testing.T) {
	const token = "test-session-token"
	var authHeader atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			var req loginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "demo", req.Username)
			json.NewEncoder(w).Encode(loginResponse{Token: token, Username: req.Username})
		case "/orders":
			authHeader.Store(r.Header.Get("Authorization"))
			w.Write([]byte("[]"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{Username: "demo", Password: "demo123"}, quietLogger())
	_, err := client.ListOrders(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Bearer "+token, authHeader.Load())
}

func TestAnonymousBackendSkipsLogin(t *testing.T) {
	var loginHits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/login" {
			atomic.AddInt32(&loginHits, 1)
		}
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{}, quietLogger())
	_, err := client.ListOrders(context.Background())
	require.NoError(t, err)
	assert.Zero(t, atomic.LoadInt32(&loginHits))
}

func TestLoginRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid username or password", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, Credentials{Username: "demo", Password: "wrong"}, quietLogger())
	_, err := client.ListOrders(context.Background())

	var re *RejectionError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, http.StatusUnauthorized, re.Status)
}
