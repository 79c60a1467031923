package feed

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/marketdesk/marketdesk/pkg/models"
)

// DefaultReconnectDelay is the fixed wait between a feed drop and the next
// connection attempt. There is no backoff growth and no retry cap; the feed
// is assumed always-eventually-available.
const DefaultReconnectDelay = 3000 * time.Millisecond

// ErrClosed is returned by Connect after an explicit Close.
var ErrClosed = errors.New("feed manager closed")

// Event is a feed lifecycle or data event, delivered in arrival order on the
// manager's single event channel.
type Event interface {
	feedEvent()
}

// SnapshotEvent carries one decoded quote snapshot and its capture time.
type SnapshotEvent struct {
	Snapshot models.QuoteSnapshot
	At       time.Time
}

// StateEvent reports a connection state transition. Err is set for the
// error state only.
type StateEvent struct {
	State models.ConnectionState
	Err   error
}

func (SnapshotEvent) feedEvent() {}
func (StateEvent) feedEvent()    {}

// Manager owns the lifecycle of the streaming feed connection: dial, read,
// failure detection and fixed-delay reconnection. It holds no domain state;
// every inbound frame is decoded and handed to the subscriber as an event.
type Manager struct {
	url    string
	logger *logrus.Logger

	// ReconnectDelay defaults to DefaultReconnectDelay; tests shorten it.
	ReconnectDelay time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	gen     uint64
	dialing bool
	timer   *time.Timer
	closed  bool

	events chan Event
	done   chan struct{}
}

func NewManager(url string, logger *logrus.Logger) *Manager {
	return &Manager{
		url:            url,
		logger:         logger,
		ReconnectDelay: DefaultReconnectDelay,
		events:         make(chan Event, 64),
		done:           make(chan struct{}),
	}
}

// Events is the ordered stream of snapshot and state events. It is never
// closed; consumers stop reading when they tear down.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Connect starts the connection loop. It is idempotent while a connection
// is live or a dial is already in flight.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.conn != nil || m.dialing {
		m.mu.Unlock()
		return nil
	}
	m.gen++
	gen := m.gen
	m.dialing = true
	m.mu.Unlock()

	m.emit(StateEvent{State: models.StateConnecting})
	go m.dial(gen)
	return nil
}

// Close tears the connection down for good: the pending reconnect timer (if
// any) is cancelled and no further events are emitted. The final state is
// disconnected.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++ // invalidate any in-flight dial or read loop
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	// Best-effort terminal transition; the subscriber may already be gone.
	select {
	case m.events <- StateEvent{State: models.StateDisconnected}:
	default:
	}
	close(m.done)
	return nil
}

func (m *Manager) dial(gen uint64) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(m.url, nil)

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	m.dialing = false
	if err != nil {
		m.mu.Unlock()
		m.logger.WithError(err).Warn("Feed dial failed")
		m.emit(StateEvent{State: models.StateError, Err: err})
		m.scheduleReconnect()
		return
	}
	m.conn = conn
	m.mu.Unlock()

	m.logger.WithField("url", m.url).Info("Feed connected")
	m.emit(StateEvent{State: models.StateConnected})
	go m.readLoop(conn, gen)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen uint64) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if m.closed || gen != m.gen {
				// This connection was already replaced or torn down;
				// its events no longer count.
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.mu.Unlock()
			conn.Close()

			if isCleanClose(err) {
				m.logger.Info("Feed closed by server")
				m.emit(StateEvent{State: models.StateDisconnected})
			} else {
				m.logger.WithError(err).Warn("Feed read error")
				m.emit(StateEvent{State: models.StateError, Err: err})
			}
			m.scheduleReconnect()
			return
		}

		snapshot, err := Decode(data)
		if err != nil {
			// Feed noise: drop the frame, keep the connection.
			m.logger.WithError(err).Debug("Dropping malformed snapshot")
			continue
		}

		m.mu.Lock()
		stale := m.closed || gen != m.gen
		m.mu.Unlock()
		if stale {
			return
		}
		m.emit(SnapshotEvent{Snapshot: snapshot, At: time.Now()})
	}
}

// scheduleReconnect arms the single reconnect timer. At most one may be
// outstanding; Close cancels it.
func (m *Manager) scheduleReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.timer != nil {
		return
	}
	m.timer = time.AfterFunc(m.ReconnectDelay, func() {
		m.mu.Lock()
		m.timer = nil
		// Skip if the link was already restored some other way; only one
		// live connection is ever allowed.
		if m.closed || m.conn != nil || m.dialing {
			m.mu.Unlock()
			return
		}
		m.gen++
		gen := m.gen
		m.dialing = true
		m.mu.Unlock()

		m.emit(StateEvent{State: models.StateConnecting})
		m.dial(gen)
	})
}

func (m *Manager) emit(e Event) {
	select {
	case m.events <- e:
	case <-m.done:
	}
}

func isCleanClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
