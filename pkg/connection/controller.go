package connection

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bytesock/bytesock-go/pkg/log"
	"github.com/bytesock/bytesock-go/pkg/transport"
)

// pendingConnect is the one-shot result slot for an in-flight connect.
// The channel is buffered so settlement never blocks and an abandoned
// waiter leaks nothing.
type pendingConnect struct {
	ch chan error
}

func newPendingConnect() *pendingConnect {
	return &pendingConnect{ch: make(chan error, 1)}
}

// settle completes the pending connect. The controller clears its
// reference before settling, so a slot is completed at most once.
func (p *pendingConnect) settle(err error) {
	p.ch <- err
}

// settled returns a pre-completed result channel for fail-fast paths.
func settled(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}

// Controller owns the transport lifecycle: the single pending connect,
// the single transport handle, and the reconnect timer.
//
// Transitions are serialized by one mutex. Event emission and connect
// settlement happen after the mutex is released so subscribers may
// re-enter the API. A generation counter ties notifications to the
// transport that produced them; a replaced transport's late
// notifications are dropped.
type Controller struct {
	id      string
	address string
	dialer  transport.Dialer
	logger  *slog.Logger
	capture log.Logger

	mu      sync.Mutex
	state   State
	delay   time.Duration
	tr      transport.Transport
	gen     uint64
	pending *pendingConnect
	timer   ReconnectTimer
	events  *Events

	// eligible records a successful connect since the last explicit
	// teardown. Reconnection is never armed before the first success.
	eligible bool
}

func newController(cfg Config) *Controller {
	return &Controller{
		id:      uuid.NewString(),
		address: cfg.Address,
		dialer:  cfg.Dialer,
		logger:  cfg.Logger,
		capture: cfg.ProtocolLogger,
		state:   StateIdle,
		delay:   cfg.ReconnectDelay,
		events:  newEvents(),
	}
}

// Connect starts a connect attempt and returns its settlement channel.
// The channel receives exactly one value: nil when the transport opens,
// or the failure. A connect while one is pending, while connected, or
// after Destroy fails fast without touching the current state.
func (c *Controller) Connect() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.state == StateDestroyed:
		return settled(ErrDestroyed)
	case c.pending != nil:
		return settled(ErrConnectPending)
	case c.state == StateConnected:
		return settled(ErrAlreadyConnected)
	}

	c.timer.Cancel()
	p := newPendingConnect()
	c.pending = p
	c.openLocked()
	return p.ch
}

// Send forwards one binary frame to the open transport. It never buffers:
// without an established connection it fails with ErrNotConnected.
func (c *Controller) Send(data []byte) error {
	c.mu.Lock()
	tr := c.tr
	connected := c.state == StateConnected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	if err := tr.Send(data); err != nil {
		return err
	}
	c.capture.Log(log.NewFrameEvent(c.id, log.DirectionOut, len(data)))
	return nil
}

// Disconnect tears the connection down and permanently disables automatic
// reconnection for this instance. A pending connect is rejected with
// ErrConnectionClosed. Idempotent.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.delay = 0
	c.eligible = false
	p := c.pending
	c.pending = nil
	c.timer.Cancel()
	c.closeTransportLocked()
	c.setStateLocked(StateIdle)
	c.mu.Unlock()

	if p != nil {
		p.settle(ErrConnectionClosed)
	}
}

// Destroy is Disconnect plus release of the event topics. A pending
// connect is rejected with ErrDestroyed. Terminal and idempotent.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.delay = 0
	c.eligible = false
	p := c.pending
	c.pending = nil
	c.timer.Cancel()
	c.closeTransportLocked()
	c.setStateLocked(StateDestroyed)
	events := c.events
	c.mu.Unlock()

	if p != nil {
		p.settle(ErrDestroyed)
	}
	events.destroy()
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// openLocked dials a fresh transport. The generation counter ties the
// transport's notifications to this open; anything older is stale.
func (c *Controller) openLocked() {
	if c.tr != nil {
		// A second live transport is a state-machine invariant break,
		// not a runtime condition.
		panic("connection: transport already open")
	}

	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)

	c.tr = c.dialer.Dial(c.address, transport.Handlers{
		OnOpen:    func() { c.handleOpen(gen) },
		OnMessage: func(msg transport.Message) { c.handleMessage(gen, msg) },
		OnClose:   func(code int, reason string) { c.handleClose(gen, code, reason) },
		OnError:   func(err error) { c.handleError(gen, err) },
	})
}

// closeTransportLocked detaches and closes the current transport, if any.
// Bumping the generation makes any notification still in flight stale.
func (c *Controller) closeTransportLocked() {
	if c.tr == nil {
		return
	}
	c.tr.Detach()
	_ = c.tr.Close()
	c.tr = nil
	c.gen++
}

// teardownLocked releases the transport and decides whether to arm the
// reconnect timer. Reconnection requires a configured delay and a
// previously successful connect since the last explicit teardown.
func (c *Controller) teardownLocked() {
	c.closeTransportLocked()
	c.timer.Cancel()

	if c.delay > 0 && c.eligible {
		c.setStateLocked(StateReconnecting)
		c.timer.Arm(c.delay, c.onReconnectTimer)
	} else {
		c.setStateLocked(StateIdle)
	}
}

func (c *Controller) onReconnectTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateReconnecting {
		// Canceled after firing.
		return
	}
	c.logger.Info("reconnecting", "address", c.address)
	c.openLocked()
}

func (c *Controller) handleOpen(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateConnected)
	c.eligible = true
	p := c.pending
	c.pending = nil
	events := c.events
	c.mu.Unlock()

	// Settle before announcing so a waiter observes resolution no later
	// than its event handler.
	if p != nil {
		p.settle(nil)
	}
	events.Connected.Emit(struct{}{})
}

func (c *Controller) handleError(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	p := c.pending
	c.pending = nil
	if p != nil {
		err = fmt.Errorf("transport open failed: %w", err)
	}
	c.logger.Warn("transport error", "err", err)
	c.capture.Log(log.NewErrorEvent(c.id, err))
	c.teardownLocked()
	events := c.events
	c.mu.Unlock()

	if p != nil {
		p.settle(err)
	}
	events.Error.Emit(err)
}

func (c *Controller) handleClose(gen uint64, code int, reason string) {
	c.mu.Lock()
	if gen != c.gen || c.state == StateDestroyed {
		c.mu.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	p := c.pending
	c.pending = nil
	c.logger.Info("transport closed", "code", code, "reason", reason)
	c.teardownLocked()
	events := c.events
	c.mu.Unlock()

	if p != nil {
		// A close that beat the open notification fails the attempt.
		p.settle(fmt.Errorf("transport open failed: closed with code %d", code))
	}
	if wasConnected {
		events.Disconnected.Emit(struct{}{})
	}
}

func (c *Controller) handleMessage(gen uint64, msg transport.Message) {
	c.mu.Lock()
	if gen != c.gen || c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	events := c.events
	c.mu.Unlock()

	if msg.Type == transport.MessageText {
		// Unexpected but not fatal; the link stays open.
		err := &ProtocolViolationError{Payload: msg.Join()}
		c.capture.Log(log.NewErrorEvent(c.id, err))
		events.Error.Emit(err)
		return
	}

	data := msg.Join()
	c.capture.Log(log.NewFrameEvent(c.id, log.DirectionIn, len(data)))
	events.Data.Emit(data)
}

// setStateLocked transitions the state, logging the change. Caller must
// hold c.mu.
func (c *Controller) setStateLocked(next State) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	c.logger.Debug("connection state changed", "from", prev.String(), "to", next.String())
	c.capture.Log(log.NewStateChangeEvent(c.id, prev.String(), next.String()))
}
