// Package dashboard owns the dashboard's shared state: current quotes,
// per-symbol history, the order list, the draft order, connection state and
// the active notification. Every inbound event (feed snapshot, gateway
// result, user action, timer expiry) is applied by a single goroutine, so
// the read model never tears under concurrent sources.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/marketdesk/marketdesk/pkg/feed"
	"github.com/marketdesk/marketdesk/pkg/history"
	"github.com/marketdesk/marketdesk/pkg/models"
)

// DefaultNotificationTTL is how long a notification stays visible. A newer
// notification replaces the current one and restarts the window.
const DefaultNotificationTTL = 3000 * time.Millisecond

// Feed is the streaming side of the dashboard, satisfied by *feed.Manager.
type Feed interface {
	Connect() error
	Close() error
	Events() <-chan feed.Event
}

// Gateway is the request/response side, satisfied by *gateway.Client.
type Gateway interface {
	ListOrders(ctx context.Context) ([]models.Order, error)
	Submit(ctx context.Context, draft models.OrderDraft) (models.Order, error)
}

// View is a consistent copy of the dashboard state for presentation.
type View struct {
	Quotes       map[string]models.Quote `json:"quotes"`
	Histories    history.Histories       `json:"histories"`
	Orders       []models.Order          `json:"orders"`
	Draft        models.OrderDraft       `json:"draft"`
	State        models.ConnectionState  `json:"state"`
	Notification *models.Notification    `json:"notification,omitempty"`
	ChartSymbol  string                  `json:"chartSymbol"`
}

// Controller applies all events to the shared state one at a time and hands
// out copies to readers.
type Controller struct {
	feed    Feed
	gateway Gateway
	logger  *logrus.Logger

	// NotificationTTL defaults to DefaultNotificationTTL; tests shorten it.
	NotificationTTL time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	actions chan func()
	wg      sync.WaitGroup

	mu           sync.RWMutex
	quotes       map[string]models.Quote
	histories    history.Histories
	orders       []models.Order
	draft        models.OrderDraft
	state        models.ConnectionState
	notification *models.Notification
	chartSymbol  string

	notifSeq   uint64
	notifTimer *time.Timer
}

func New(f Feed, g Gateway, defaultSymbol string, logger *logrus.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		feed:            f,
		gateway:         g,
		logger:          logger,
		NotificationTTL: DefaultNotificationTTL,
		ctx:             ctx,
		cancel:          cancel,
		actions:         make(chan func(), 64),
		quotes:          make(map[string]models.Quote),
		histories:       history.Histories{},
		orders:          []models.Order{},
		draft: models.OrderDraft{
			Symbol:   defaultSymbol,
			Side:     models.OrderSideBuy,
			Quantity: 1,
		},
		state:       models.StateConnecting,
		chartSymbol: defaultSymbol,
	}
}

// Start connects the feed, hydrates the order list and begins applying
// events.
func (c *Controller) Start() error {
	if err := c.feed.Connect(); err != nil {
		return fmt.Errorf("failed to start feed: %w", err)
	}
	c.wg.Add(1)
	go c.run()
	c.RefreshOrders()
	return nil
}

// Close tears the dashboard down: the feed stops reconnecting, pending
// timers are cancelled and late gateway results are dropped.
func (c *Controller) Close() error {
	c.cancel()
	err := c.feed.Close()
	c.mu.Lock()
	if c.notifTimer != nil {
		c.notifTimer.Stop()
		c.notifTimer = nil
	}
	c.mu.Unlock()
	c.wg.Wait()
	return err
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.feed.Events():
			c.applyFeedEvent(ev)
		case fn := <-c.actions:
			fn()
		}
	}
}

// enqueue hands an event to the apply loop; it is dropped if the dashboard
// has been torn down.
func (c *Controller) enqueue(fn func()) {
	select {
	case c.actions <- fn:
	case <-c.ctx.Done():
	}
}

// View returns a copy of the current state. Histories and orders share
// immutable backing arrays with the state; only the containers are copied.
func (c *Controller) View() View {
	c.mu.RLock()
	defer c.mu.RUnlock()

	quotes := make(map[string]models.Quote, len(c.quotes))
	for s, q := range c.quotes {
		quotes[s] = q
	}
	histories := make(history.Histories, len(c.histories))
	for s, pts := range c.histories {
		histories[s] = pts
	}
	orders := make([]models.Order, len(c.orders))
	copy(orders, c.orders)

	var notification *models.Notification
	if c.notification != nil {
		n := *c.notification
		notification = &n
	}

	return View{
		Quotes:       quotes,
		Histories:    histories,
		Orders:       orders,
		Draft:        c.draft,
		State:        c.state,
		Notification: notification,
		ChartSymbol:  c.chartSymbol,
	}
}

// SetDraft replaces the editable draft fields. If the symbol has a live
// quote the price snaps to it, mirroring the market until the user submits.
func (c *Controller) SetDraft(draft models.OrderDraft) {
	c.enqueue(func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if quote, ok := c.quotes[draft.Symbol]; ok && draft.Symbol != c.draft.Symbol {
			draft.Price = quote.Price
		}
		c.draft = draft
	})
}

// SelectChart changes the symbol shown in the history chart. Feed and
// gateway events never touch this.
func (c *Controller) SelectChart(symbol string) {
	c.enqueue(func() {
		c.mu.Lock()
		c.chartSymbol = symbol
		c.mu.Unlock()
	})
}

// SubmitDraft places the current draft with the backend. The call runs off
// the apply loop; its result is reconciled against the state at completion
// time, so edits made while the order is in flight are not lost.
func (c *Controller) SubmitDraft() {
	c.enqueue(func() {
		c.mu.RLock()
		draft := c.draft
		c.mu.RUnlock()

		go func() {
			order, err := c.gateway.Submit(c.ctx, draft)
			c.enqueue(func() { c.applySubmitResult(draft, order, err) })
		}()
	})
}

// RefreshOrders re-fetches the backend order list. Failure leaves the local
// list untouched; a refresh is read-only.
func (c *Controller) RefreshOrders() {
	go func() {
		orders, err := c.gateway.ListOrders(c.ctx)
		if err != nil {
			c.logger.WithError(err).Warn("Failed to fetch orders")
			return
		}
		// Backend returns oldest first; the dashboard shows newest first.
		for i, j := 0, len(orders)-1; i < j; i, j = i+1, j-1 {
			orders[i], orders[j] = orders[j], orders[i]
		}
		c.enqueue(func() {
			c.mu.Lock()
			c.orders = orders
			c.mu.Unlock()
		})
	}()
}

func (c *Controller) applyFeedEvent(ev feed.Event) {
	switch e := ev.(type) {
	case feed.SnapshotEvent:
		c.applySnapshot(e.Snapshot, e.At)
	case feed.StateEvent:
		c.applyFeedState(e)
	}
}

// applySnapshot replaces the current quotes wholesale, folds the snapshot
// into the histories and keeps the draft price tracking the market.
func (c *Controller) applySnapshot(snapshot models.QuoteSnapshot, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	quotes := make(map[string]models.Quote, len(snapshot))
	for symbol, quote := range snapshot {
		quotes[symbol] = quote
	}
	c.quotes = quotes
	c.histories = history.Append(c.histories, snapshot, at)

	if quote, ok := quotes[c.draft.Symbol]; ok {
		c.draft.Price = quote.Price
	}
}

func (c *Controller) applyFeedState(e feed.StateEvent) {
	c.mu.Lock()
	c.state = e.State
	c.mu.Unlock()

	switch e.State {
	case models.StateConnected:
		c.notify("Connected to market data", models.NotificationSuccess)
	case models.StateError:
		c.notify("Market data connection error", models.NotificationError)
	}
}

func (c *Controller) applySubmitResult(draft models.OrderDraft, order models.Order, err error) {
	if err != nil {
		c.logger.WithError(err).WithField("symbol", draft.Symbol).Warn("Order submission failed")
		c.notify("Failed to place order", models.NotificationError)
		return
	}

	c.mu.Lock()
	c.orders = append([]models.Order{order}, c.orders...)
	c.draft.Quantity = 1
	if quote, ok := c.quotes[c.draft.Symbol]; ok {
		c.draft.Price = quote.Price
	}
	c.mu.Unlock()

	c.notify(fmt.Sprintf("Order placed: %s %d %s",
		strings.ToUpper(string(order.Side)), order.Quantity, order.Symbol),
		models.NotificationSuccess)
}

// notify replaces the single notification slot and restarts its expiry
// window. The sequence number keeps a stale timer from clearing a newer
// notification.
func (c *Controller) notify(message string, kind models.NotificationKind) {
	c.mu.Lock()
	c.notifSeq++
	seq := c.notifSeq
	c.notification = &models.Notification{Message: message, Kind: kind}
	if c.notifTimer != nil {
		c.notifTimer.Stop()
	}
	c.notifTimer = time.AfterFunc(c.NotificationTTL, func() {
		c.enqueue(func() { c.clearNotification(seq) })
	})
	c.mu.Unlock()
}

func (c *Controller) clearNotification(seq uint64) {
	c.mu.Lock()
	if c.notifSeq == seq {
		c.notification = nil
	}
	c.mu.Unlock()
}
