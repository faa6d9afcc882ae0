package connection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytesock/bytesock-go/pkg/transport"
)

// fakeTransport is a scriptable transport: tests drive its notifications
// and inspect what was sent. It honors Detach like a real transport.
type fakeTransport struct {
	h transport.Handlers

	mu       sync.Mutex
	detached bool
	closed   bool
	sent     [][]byte
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return transport.ErrNotOpen
	}
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Detach() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeTransport) allowed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.detached
}

func (f *fakeTransport) fireOpen() {
	if f.allowed() && f.h.OnOpen != nil {
		f.h.OnOpen()
	}
}

func (f *fakeTransport) fireMessage(msg transport.Message) {
	if f.allowed() && f.h.OnMessage != nil {
		f.h.OnMessage(msg)
	}
}

func (f *fakeTransport) fireClose(code int, reason string) {
	if f.allowed() && f.h.OnClose != nil {
		f.h.OnClose(code, reason)
	}
}

func (f *fakeTransport) fireError(err error) {
	if f.allowed() && f.h.OnError != nil {
		f.h.OnError(err)
	}
}

// fakeDialer hands out fakeTransports and remembers them in dial order.
type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (d *fakeDialer) Dial(_ string, h transport.Handlers) transport.Transport {
	f := &fakeTransport{h: h}
	d.mu.Lock()
	d.transports = append(d.transports, f)
	d.mu.Unlock()
	return f
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) last() *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.transports) == 0 {
		return nil
	}
	return d.transports[len(d.transports)-1]
}

func newTestClient(t *testing.T, delay time.Duration) (*Client, *fakeDialer) {
	t.Helper()
	fd := &fakeDialer{}
	c, err := New(Config{
		Address:        "ws://test.local/stream",
		ReconnectDelay: delay,
		Dialer:         fd,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(c.Destroy)
	return c, fd
}

func waitSettle(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for connect to settle")
		return nil
	}
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnect(t *testing.T) {
	t.Run("ResolvesOnOpen", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		var connected atomic.Int32
		c.Events().Connected.Subscribe(func(struct{}) { connected.Add(1) })

		ch := c.ConnectAsync()
		if c.State() != StateConnecting {
			t.Errorf("state = %v, want StateConnecting", c.State())
		}

		fd.last().fireOpen()

		if err := waitSettle(t, ch); err != nil {
			t.Errorf("connect settled with %v, want nil", err)
		}
		if c.State() != StateConnected {
			t.Errorf("state = %v, want StateConnected", c.State())
		}
		if !c.IsConnected() {
			t.Error("IsConnected() = false, want true")
		}
		if got := connected.Load(); got != 1 {
			t.Errorf("connected event fired %d times, want 1", got)
		}
	})

	t.Run("SecondConnectWhilePending", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch1 := c.ConnectAsync()
		ch2 := c.ConnectAsync()

		if err := waitSettle(t, ch2); !errors.Is(err, ErrConnectPending) {
			t.Errorf("second connect settled with %v, want ErrConnectPending", err)
		}
		if fd.count() != 1 {
			t.Errorf("dialed %d transports, want 1", fd.count())
		}

		// The first attempt is unaffected.
		fd.last().fireOpen()
		if err := waitSettle(t, ch1); err != nil {
			t.Errorf("first connect settled with %v, want nil", err)
		}
	})

	t.Run("ConnectWhileConnected", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		if err := waitSettle(t, c.ConnectAsync()); !errors.Is(err, ErrAlreadyConnected) {
			t.Errorf("connect settled with %v, want ErrAlreadyConnected", err)
		}
		if fd.count() != 1 {
			t.Errorf("dialed %d transports, want 1", fd.count())
		}
		if fd.last().isClosed() {
			t.Error("existing transport was closed by a rejected connect")
		}
	})

	t.Run("RejectsOnError", func(t *testing.T) {
		c, fd := newTestClient(t, 30*time.Millisecond)

		var errs atomic.Int32
		c.Events().Error.Subscribe(func(error) { errs.Add(1) })

		ch := c.ConnectAsync()
		dialErr := errors.New("connection refused")
		fd.last().fireError(dialErr)

		err := waitSettle(t, ch)
		if !errors.Is(err, dialErr) {
			t.Errorf("connect settled with %v, want wrap of %v", err, dialErr)
		}
		if got := errs.Load(); got != 1 {
			t.Errorf("error event fired %d times, want 1", got)
		}

		// A never-successful first attempt schedules no retry.
		time.Sleep(100 * time.Millisecond)
		if fd.count() != 1 {
			t.Errorf("dialed %d transports, want 1 (no reconnect)", fd.count())
		}
		if c.State() != StateIdle {
			t.Errorf("state = %v, want StateIdle", c.State())
		}
	})

	t.Run("SettlesBeforeConnectedEvent", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch := c.ConnectAsync()
		settledFirst := make(chan bool, 1)
		c.Events().Connected.Subscribe(func(struct{}) {
			select {
			case err := <-ch:
				settledFirst <- err == nil
			default:
				settledFirst <- false
			}
		})

		fd.last().fireOpen()

		select {
		case ok := <-settledFirst:
			if !ok {
				t.Error("connected event observed an unsettled connect")
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timeout waiting for connected event")
		}
	})

	t.Run("AfterDestroy", func(t *testing.T) {
		c, _ := newTestClient(t, -1)
		c.Destroy()

		if err := waitSettle(t, c.ConnectAsync()); !errors.Is(err, ErrDestroyed) {
			t.Errorf("connect settled with %v, want ErrDestroyed", err)
		}
	})
}

func TestSend(t *testing.T) {
	t.Run("NotConnected", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		if err := c.Send([]byte{1}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("Send returned %v, want ErrNotConnected", err)
		}
		if fd.count() != 0 {
			t.Errorf("dialed %d transports, want 0 (no I/O)", fd.count())
		}
	})

	t.Run("Forwards", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		if err := c.Send([]byte{1, 2, 3}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if got := fd.last().sentCount(); got != 1 {
			t.Errorf("transport saw %d sends, want 1", got)
		}
	})

	t.Run("NotConnectedWhileReconnecting", func(t *testing.T) {
		c, fd := newTestClient(t, time.Minute)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		if c.State() != StateReconnecting {
			t.Fatalf("state = %v, want StateReconnecting", c.State())
		}
		if err := c.Send([]byte{1}); !errors.Is(err, ErrNotConnected) {
			t.Errorf("Send returned %v, want ErrNotConnected", err)
		}
	})
}

func TestReconnect(t *testing.T) {
	t.Run("AfterUnsolicitedClose", func(t *testing.T) {
		c, fd := newTestClient(t, 20*time.Millisecond)

		var disconnected atomic.Int32
		c.Events().Disconnected.Subscribe(func(struct{}) { disconnected.Add(1) })

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		fd.last().fireClose(1006, "abnormal closure")

		if got := disconnected.Load(); got != 1 {
			t.Errorf("disconnected event fired %d times, want 1", got)
		}
		if c.State() != StateReconnecting {
			t.Errorf("state = %v, want StateReconnecting", c.State())
		}

		eventually(t, func() bool { return fd.count() == 2 }, "no reconnect dial")

		fd.last().fireOpen()
		eventually(t, func() bool { return c.IsConnected() }, "reconnect did not complete")
	})

	t.Run("NotBeforeDelay", func(t *testing.T) {
		c, fd := newTestClient(t, 150*time.Millisecond)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		time.Sleep(50 * time.Millisecond)
		if fd.count() != 1 {
			t.Errorf("dialed %d transports before the delay elapsed, want 1", fd.count())
		}
		eventually(t, func() bool { return fd.count() == 2 }, "no reconnect dial")
	})

	t.Run("DisabledDelay", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		if c.State() != StateIdle {
			t.Errorf("state = %v, want StateIdle", c.State())
		}
		time.Sleep(50 * time.Millisecond)
		if fd.count() != 1 {
			t.Errorf("dialed %d transports, want 1", fd.count())
		}
	})

	t.Run("FailedRedialRearms", func(t *testing.T) {
		c, fd := newTestClient(t, 10*time.Millisecond)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		eventually(t, func() bool { return fd.count() == 2 }, "no first redial")
		fd.last().fireError(errors.New("still down"))

		// Retries stay armed while the drop followed a successful connect.
		eventually(t, func() bool { return fd.count() == 3 }, "no second redial")
	})

	t.Run("RuntimeErrorTriggersReconnect", func(t *testing.T) {
		c, fd := newTestClient(t, 10*time.Millisecond)

		var errs atomic.Int32
		c.Events().Error.Subscribe(func(error) { errs.Add(1) })

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireError(errors.New("read: connection reset"))

		if got := errs.Load(); got != 1 {
			t.Errorf("error event fired %d times, want 1", got)
		}
		eventually(t, func() bool { return fd.count() == 2 }, "no reconnect after runtime error")
	})

	t.Run("ConnectCancelsArmedTimer", func(t *testing.T) {
		c, fd := newTestClient(t, 200*time.Millisecond)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		// An explicit connect takes over from the armed timer.
		ch = c.ConnectAsync()
		if fd.count() != 2 {
			t.Fatalf("dialed %d transports, want 2", fd.count())
		}
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		// The canceled timer must not dial a third transport.
		time.Sleep(300 * time.Millisecond)
		if fd.count() != 2 {
			t.Errorf("dialed %d transports, want 2", fd.count())
		}
	})
}

func TestDisconnect(t *testing.T) {
	t.Run("StopsReconnect", func(t *testing.T) {
		c, fd := newTestClient(t, 20*time.Millisecond)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		c.Disconnect()

		if c.State() != StateIdle {
			t.Errorf("state = %v, want StateIdle", c.State())
		}
		if !fd.last().isClosed() {
			t.Error("transport was not closed")
		}
		time.Sleep(100 * time.Millisecond)
		if fd.count() != 1 {
			t.Errorf("dialed %d transports after Disconnect, want 1", fd.count())
		}
	})

	t.Run("DisablesReconnectPermanently", func(t *testing.T) {
		c, fd := newTestClient(t, 20*time.Millisecond)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		c.Disconnect()

		// A fresh explicit connect works, but auto-reconnect stays off.
		ch = c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("reconnect failed: %v", err)
		}
		fd.last().fireClose(1006, "abnormal closure")

		if c.State() != StateIdle {
			t.Errorf("state = %v, want StateIdle", c.State())
		}
		time.Sleep(100 * time.Millisecond)
		if fd.count() != 2 {
			t.Errorf("dialed %d transports, want 2", fd.count())
		}
	})

	t.Run("RejectsPendingConnect", func(t *testing.T) {
		c, _ := newTestClient(t, -1)

		ch := c.ConnectAsync()
		c.Disconnect()

		if err := waitSettle(t, ch); !errors.Is(err, ErrConnectionClosed) {
			t.Errorf("pending connect settled with %v, want ErrConnectionClosed", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		c, _ := newTestClient(t, -1)
		c.Disconnect()
		c.Disconnect()
		if c.State() != StateIdle {
			t.Errorf("state = %v, want StateIdle", c.State())
		}
	})
}

func TestDestroy(t *testing.T) {
	t.Run("Idempotent", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}

		c.Destroy()
		c.Destroy()

		if c.State() != StateDestroyed {
			t.Errorf("state = %v, want StateDestroyed", c.State())
		}
		if !fd.last().isClosed() {
			t.Error("transport was not closed")
		}
	})

	t.Run("RejectsPendingConnect", func(t *testing.T) {
		c, _ := newTestClient(t, -1)

		ch := c.ConnectAsync()
		c.Destroy()

		if err := waitSettle(t, ch); !errors.Is(err, ErrDestroyed) {
			t.Errorf("pending connect settled with %v, want ErrDestroyed", err)
		}
	})

	t.Run("ReleasesEventTopics", func(t *testing.T) {
		c, _ := newTestClient(t, -1)

		c.Events().Connected.Subscribe(func(struct{}) {})
		c.Events().Data.Subscribe(func([]byte) {})

		c.Destroy()

		if got := c.Events().Connected.SubscriberCount(); got != 0 {
			t.Errorf("connected topic has %d subscribers after Destroy, want 0", got)
		}
		if got := c.Events().Data.SubscriberCount(); got != 0 {
			t.Errorf("data topic has %d subscribers after Destroy, want 0", got)
		}
	})
}

func TestMessages(t *testing.T) {
	connect := func(t *testing.T) (*Client, *fakeDialer) {
		t.Helper()
		c, fd := newTestClient(t, -1)
		ch := c.ConnectAsync()
		fd.last().fireOpen()
		if err := waitSettle(t, ch); err != nil {
			t.Fatalf("connect failed: %v", err)
		}
		return c, fd
	}

	t.Run("BinaryFrame", func(t *testing.T) {
		c, fd := connect(t)

		var frames [][]byte
		var errs atomic.Int32
		c.Events().Data.Subscribe(func(data []byte) { frames = append(frames, data) })
		c.Events().Error.Subscribe(func(error) { errs.Add(1) })

		fd.last().fireMessage(transport.Message{
			Type:   transport.MessageBinary,
			Chunks: [][]byte{{1, 2, 3}},
		})

		if len(frames) != 1 || string(frames[0]) != string([]byte{1, 2, 3}) {
			t.Errorf("data frames = %v, want one frame [1 2 3]", frames)
		}
		if errs.Load() != 0 {
			t.Errorf("error event fired %d times, want 0", errs.Load())
		}
	})

	t.Run("FragmentedFrameConcatenated", func(t *testing.T) {
		c, fd := connect(t)

		var frames [][]byte
		c.Events().Data.Subscribe(func(data []byte) { frames = append(frames, data) })

		fd.last().fireMessage(transport.Message{
			Type:   transport.MessageBinary,
			Chunks: [][]byte{{1, 2}, {3}, {4, 5}},
		})

		if len(frames) != 1 {
			t.Fatalf("data event fired %d times, want 1", len(frames))
		}
		if string(frames[0]) != string([]byte{1, 2, 3, 4, 5}) {
			t.Errorf("frame = %v, want [1 2 3 4 5]", frames[0])
		}
	})

	t.Run("TextFrameIsViolation", func(t *testing.T) {
		c, fd := connect(t)

		var data, errs atomic.Int32
		var violation error
		c.Events().Data.Subscribe(func([]byte) { data.Add(1) })
		c.Events().Error.Subscribe(func(err error) {
			errs.Add(1)
			violation = err
		})

		fd.last().fireMessage(transport.Message{
			Type:   transport.MessageText,
			Chunks: [][]byte{[]byte("unexpected")},
		})

		if errs.Load() != 1 {
			t.Fatalf("error event fired %d times, want 1", errs.Load())
		}
		if data.Load() != 0 {
			t.Errorf("data event fired %d times, want 0", data.Load())
		}
		var pv *ProtocolViolationError
		if !errors.As(violation, &pv) {
			t.Errorf("error event carried %T, want *ProtocolViolationError", violation)
		}

		// The connection stays open.
		if !c.IsConnected() {
			t.Error("connection was closed by a text frame")
		}
		if fd.last().isClosed() {
			t.Error("transport was closed by a text frame")
		}
	})
}

func TestStaleTransport(t *testing.T) {
	c, fd := newTestClient(t, time.Minute)

	ch := c.ConnectAsync()
	fd.last().fireOpen()
	if err := waitSettle(t, ch); err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	var connected atomic.Int32
	c.Events().Connected.Subscribe(func(struct{}) { connected.Add(1) })

	old := fd.last()
	old.fireClose(1006, "abnormal closure")
	if c.State() != StateReconnecting {
		t.Fatalf("state = %v, want StateReconnecting", c.State())
	}

	// Bypass the fake's detach guard to simulate a notification that was
	// already in flight when the transport was replaced. The controller's
	// generation check must reject it.
	old.h.OnOpen()

	if c.State() != StateReconnecting {
		t.Errorf("stale open moved state to %v", c.State())
	}
	if connected.Load() != 0 {
		t.Errorf("stale open fired connected %d times, want 0", connected.Load())
	}
}

func TestAutoconnect(t *testing.T) {
	fd := &fakeDialer{}
	c, err := New(Config{
		Address:     "ws://test.local/stream",
		Autoconnect: true,
		Dialer:      fd,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer c.Destroy()

	if fd.count() != 1 {
		t.Fatalf("dialed %d transports at construction, want 1", fd.count())
	}
	fd.last().fireOpen()
	eventually(t, func() bool { return c.IsConnected() }, "autoconnect did not complete")

	if err := waitSettle(t, c.ConnectAsync()); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("connect settled with %v, want ErrAlreadyConnected", err)
	}
}

func TestClient(t *testing.T) {
	t.Run("RequiresAddress", func(t *testing.T) {
		if _, err := New(Config{}); err == nil {
			t.Error("New accepted an empty address")
		}
	})

	t.Run("ConnectContextCanceled", func(t *testing.T) {
		c, _ := newTestClient(t, -1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if err := c.Connect(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Connect returned %v, want context.Canceled", err)
		}
	})

	t.Run("ConnectBlocksUntilOpen", func(t *testing.T) {
		c, fd := newTestClient(t, -1)

		done := make(chan error, 1)
		go func() { done <- c.Connect(context.Background()) }()

		eventually(t, func() bool { return fd.count() == 1 }, "no dial")
		fd.last().fireOpen()

		if err := waitSettle(t, done); err != nil {
			t.Errorf("Connect returned %v, want nil", err)
		}
	})
}
