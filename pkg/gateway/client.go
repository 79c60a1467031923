package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/marketdesk/marketdesk/pkg/models"
)

const (
	ordersPath = "/orders"
	loginPath  = "/api/login"

	// reauthMargin triggers a fresh login shortly before token expiry so an
	// order never goes out with a token about to lapse.
	reauthMargin = time.Minute
)

// Credentials for the backend session. Zero value means the backend is used
// anonymously and no Authorization header is sent.
type Credentials struct {
	Username string
	Password string
}

// Client is the request/response channel to the trading backend. It holds
// no domain state: results are handed to the caller, which folds them into
// its own view.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	validate   *validator.Validate
	limiter    *rate.Limiter
	creds      Credentials

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(baseURL string, creds Credentials, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		validate:   validator.New(),
		// Generous for a human-driven form; guards against runaway loops.
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		creds:   creds,
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Login opens a backend session and stores the bearer token. The token's
// expiry is read from its unverified claims; verification is the backend's
// job, the client only needs to know when to ask again.
func (c *Client) Login(ctx context.Context) error {
	body, err := json.Marshal(loginRequest{Username: c.creds.Username, Password: c.creds.Password})
	if err != nil {
		return fmt.Errorf("failed to encode login request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, loginPath, body, false)
	if err != nil {
		return &TransportError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RejectionError{Op: "login", Status: resp.StatusCode}
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = lr.Token
	c.tokenExp = tokenExpiry(lr.Token)
	c.mu.Unlock()

	c.logger.WithField("username", lr.Username).Info("Backend session established")
	return nil
}

// ListOrders fetches the backend's current order list. An absent or empty
// body is an empty list. On failure the caller keeps its existing list.
func (c *Client) ListOrders(ctx context.Context) ([]models.Order, error) {
	if err := c.ensureSession(ctx); err != nil {
		return nil, err
	}

	resp, err := c.doRequest(ctx, http.MethodGet, ordersPath, nil, true)
	if err != nil {
		return nil, &TransportError{Op: "list orders", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RejectionError{Op: "list orders", Status: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Op: "list orders", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Order{}, nil
	}

	var orders []models.Order
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode order list: %w", err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return orders, nil
}

// Submit validates the draft locally, then places it with the backend. On
// success the backend-assigned order is returned; the caller prepends it to
// its list. The gateway never invents an order id.
func (c *Client) Submit(ctx context.Context, draft models.OrderDraft) (models.Order, error) {
	if err := c.validate.Struct(draft); err != nil {
		return models.Order{}, &ValidationError{Err: err}
	}
	if !c.limiter.Allow() {
		return models.Order{}, &ValidationError{Err: ErrRateLimited}
	}
	if err := c.ensureSession(ctx); err != nil {
		return models.Order{}, err
	}

	body, err := json.Marshal(draft)
	if err != nil {
		return models.Order{}, fmt.Errorf("failed to encode order: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, ordersPath, body, true)
	if err != nil {
		return models.Order{}, &TransportError{Op: "submit order", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Order{}, &RejectionError{Op: "submit order", Status: resp.StatusCode}
	}

	var order models.Order
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return models.Order{}, fmt.Errorf("failed to decode created order: %w", err)
	}
	return order, nil
}

// ensureSession logs in when credentials are configured and the current
// token is missing or close to expiry. Anonymous backends need no session.
func (c *Client) ensureSession(ctx context.Context) error {
	if c.creds.Username == "" {
		return nil
	}

	c.mu.Lock()
	valid := c.token != "" && (c.tokenExp.IsZero() || time.Until(c.tokenExp) > reauthMargin)
	c.mu.Unlock()
	if valid {
		return nil
	}
	return c.Login(ctx)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if authed {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return c.httpClient.Do(req)
}

// tokenExpiry pulls the exp claim out of a JWT without verifying the
// signature. A token that does not parse simply has unknown expiry.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
