package wsbridge

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	data []byte
	text bool
}

// fakeTransport is an in-memory NativeTransport for unit tests. Events are
// fired manually through the subscribed callbacks.
type fakeTransport struct {
	mu sync.Mutex

	open       bool
	subscribed bool
	cb         Callbacks

	sent        []fakeMessage
	closed      int
	closeCode   StatusCode
	closeReason string

	binaryType BinaryType
	binarySet  bool

	addr net.Addr
}

func (f *fakeTransport) Subscribe(cb Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = true
	f.cb = cb
}

func (f *fakeTransport) Send(data []byte, text bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fakeMessage{data: append([]byte(nil), data...), text: text})
	return nil
}

func (f *fakeTransport) Close(code StatusCode, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.closeCode = code
	f.closeReason = reason
	return nil
}

func (f *fakeTransport) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeTransport) SetBinaryType(bt BinaryType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.binaryType = bt
	f.binarySet = true
	return nil
}

func (f *fakeTransport) RemoteAddr() net.Addr {
	return f.addr
}

func (f *fakeTransport) sentMessages() []fakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeMessage(nil), f.sent...)
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// newOpenSocket attaches a socket to an already-open fake transport.
func newOpenSocket(t *testing.T) (*Socket, *fakeTransport) {
	t.Helper()
	s := NewSocket("ws://example.org/ws")
	f := &fakeTransport{open: true}
	require.NoError(t, Attach(s, f))
	require.Equal(t, Open, s.ReadyState())
	return s, f
}

func TestSocketDefaults(t *testing.T) {
	s := NewSocket("ws://example.org/ws")

	assert.Equal(t, Connecting, s.ReadyState())
	assert.Equal(t, "ws://example.org/ws", s.URL())
	assert.Equal(t, "", s.Protocol())
	assert.Equal(t, "", s.Extensions())
	assert.Equal(t, int64(0), s.BufferedAmount())
	assert.Equal(t, BinaryBlob, s.BinaryType())
}

func TestDispatchOrder(t *testing.T) {
	s, f := newOpenSocket(t)

	var order []string
	s.OnMessage(func(MessageEvent) {
		order = append(order, "primary")
	})
	s.AddListener(KindMessage, func(Event) {
		order = append(order, "first")
	})
	s.AddListener(KindMessage, func(Event) {
		order = append(order, "second")
	})

	f.cb.OnMessage([]byte("x"), true)

	assert.Equal(t, []string{"primary", "first", "second"}, order)
}

func TestSendNotOpen(t *testing.T) {
	s := NewSocket("")

	err := s.Send("hello")
	require.ErrorIs(t, err, ErrInvalidState)

	f := &fakeTransport{open: true}
	require.NoError(t, Attach(s, f))
	require.NoError(t, s.Close())

	err = s.Send("hello")
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, f.sentMessages())
}

func TestSendPayloadTypes(t *testing.T) {
	s, f := newOpenSocket(t)

	require.NoError(t, s.Send("hello"))
	require.NoError(t, s.Send([]byte{0x1, 0x2}))
	require.ErrorIs(t, s.Send(42), ErrUnsupportedDataType)

	sent := f.sentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, []byte("hello"), sent[0].data)
	assert.True(t, sent[0].text)
	assert.Equal(t, []byte{0x1, 0x2}, sent[1].data)
	assert.False(t, sent[1].text)
}

func TestSendReaderResolvesAsync(t *testing.T) {
	s, f := newOpenSocket(t)

	require.NoError(t, s.Send(strings.NewReader("blob bytes")))

	require.Eventually(t, func() bool {
		return len(f.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)

	sent := f.sentMessages()
	assert.Equal(t, []byte("blob bytes"), sent[0].data)
	assert.False(t, sent[0].text)
}

func TestSendReaderResolveError(t *testing.T) {
	s, f := newOpenSocket(t)

	var (
		mu   sync.Mutex
		errs []ErrorEvent
	)
	s.OnError(func(ev ErrorEvent) {
		mu.Lock()
		errs = append(errs, ev)
		mu.Unlock()
	})

	require.NoError(t, s.Send(iotest{}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.sentMessages())
}

// iotest is a reader that always fails.
type iotest struct{}

func (iotest) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

// gatedReader yields its first chunk immediately, then blocks until released.
type gatedReader struct {
	first   []byte
	release chan struct{}
	state   int
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.state == 0 {
		g.state = 1
		return copy(p, g.first), nil
	}
	<-g.release
	return 0, io.EOF
}

func TestSendReaderNotOrderedAgainstLaterSends(t *testing.T) {
	s, f := newOpenSocket(t)

	g := &gatedReader{first: []byte("blob"), release: make(chan struct{})}
	require.NoError(t, s.Send(g))
	require.NoError(t, s.Send("prompt"))

	// The synchronous send overtakes the still-resolving reader payload.
	sent := f.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "prompt", string(sent[0].data))
	assert.True(t, sent[0].text)

	close(g.release)
	require.Eventually(t, func() bool {
		return len(f.sentMessages()) == 2
	}, time.Second, 5*time.Millisecond)

	sent = f.sentMessages()
	assert.Equal(t, []byte("blob"), sent[1].data)
	assert.False(t, sent[1].text)
}

func TestBufferedAmountDuringResolve(t *testing.T) {
	s, f := newOpenSocket(t)

	g := &gatedReader{first: []byte("abcd"), release: make(chan struct{})}
	require.NoError(t, s.Send(g))

	// Drained bytes count while the payload is still resolving.
	require.Eventually(t, func() bool {
		return s.BufferedAmount() == 4
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, f.sentMessages())

	close(g.release)
	require.Eventually(t, func() bool {
		return s.BufferedAmount() == 0 && len(f.sentMessages()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestSetBinaryType(t *testing.T) {
	t.Run("deferred", func(t *testing.T) {
		s := NewSocket("")
		require.NoError(t, s.SetBinaryType(BinaryArrayBuffer))

		f := &fakeTransport{open: true}
		require.NoError(t, Attach(s, f))

		// Alignment happened at attach time with the deferred value.
		assert.True(t, f.binarySet)
		assert.Equal(t, BinaryArrayBuffer, f.binaryType)
	})
	t.Run("live", func(t *testing.T) {
		s, f := newOpenSocket(t)
		require.NoError(t, s.SetBinaryType(BinaryArrayBuffer))
		assert.Equal(t, BinaryArrayBuffer, f.binaryType)
		assert.Equal(t, BinaryArrayBuffer, s.BinaryType())
	})
}

func TestCloseIdempotent(t *testing.T) {
	s, f := newOpenSocket(t)

	var closes []CloseEvent
	s.OnClose(func(ev CloseEvent) {
		closes = append(closes, ev)
	})

	require.NoError(t, s.Close())
	assert.Equal(t, Closing, s.ReadyState())

	// Second close while Closing is a no-op.
	require.NoError(t, s.Close())
	assert.Equal(t, 1, f.closeCount())

	f.cb.OnClose(StatusNormalClosure, "", true)
	assert.Equal(t, Closed, s.ReadyState())

	// And a third one after Closed.
	require.NoError(t, s.Close())

	require.Len(t, closes, 1)
	assert.Equal(t, StatusNormalClosure, closes[0].Code)
	assert.True(t, closes[0].WasClean)
}

func TestCloseInvalidStatus(t *testing.T) {
	s, f := newOpenSocket(t)

	require.ErrorIs(t, s.CloseWithStatus(StatusNoStatusRcvd, ""), ErrStatusReserved)
	require.ErrorIs(t, s.CloseWithStatus(StatusAbnormalClosure, ""), ErrStatusReserved)

	assert.Equal(t, Open, s.ReadyState())
	assert.Equal(t, 0, f.closeCount())
}

func TestCloseBeforeAttach(t *testing.T) {
	s := NewSocket("")

	var closes []CloseEvent
	s.OnClose(func(ev CloseEvent) {
		closes = append(closes, ev)
	})

	require.NoError(t, s.Close())
	assert.Equal(t, Closed, s.ReadyState())
	require.Len(t, closes, 1)
	assert.Equal(t, StatusNormalClosure, closes[0].Code)
	assert.Equal(t, "", closes[0].Reason)
	assert.True(t, closes[0].WasClean)

	// Attaching later still binds, skips the open event, and asks the
	// transport to close right away.
	var opens int
	s.OnOpen(func(OpenEvent) { opens++ })

	f := &fakeTransport{open: true}
	require.NoError(t, Attach(s, f))
	assert.Equal(t, 1, f.closeCount())
	assert.Equal(t, StatusNormalClosure, f.closeCode)
	assert.Zero(t, opens)

	// The native close that follows must not produce a second event.
	f.cb.OnClose(StatusNormalClosure, "", true)
	assert.Len(t, closes, 1)
}

func TestCloseBeforeAttachCustomStatus(t *testing.T) {
	s := NewSocket("")

	var closes []CloseEvent
	s.OnClose(func(ev CloseEvent) {
		closes = append(closes, ev)
	})

	require.NoError(t, s.CloseWithStatus(3001, "bye"))

	require.Len(t, closes, 1)
	assert.Equal(t, StatusCode(3001), closes[0].Code)
	assert.Equal(t, "bye", closes[0].Reason)
	assert.True(t, closes[0].WasClean)

	f := &fakeTransport{open: true}
	require.NoError(t, Attach(s, f))
	assert.Equal(t, StatusCode(3001), f.closeCode)
	assert.Equal(t, "bye", f.closeReason)
}

func TestReadyStateNeverRegresses(t *testing.T) {
	s, f := newOpenSocket(t)

	var (
		messages int
		errored  int
		closes   int
	)
	s.OnMessage(func(MessageEvent) { messages++ })
	s.OnError(func(ErrorEvent) { errored++ })
	s.OnClose(func(CloseEvent) { closes++ })

	f.cb.OnClose(StatusGoingAway, "shutdown", true)
	require.Equal(t, Closed, s.ReadyState())

	// Late native events must neither revive the socket nor leak through.
	f.cb.OnOpen()
	f.cb.OnMessage([]byte("late"), true)
	f.cb.OnError(errors.New("late"))
	f.cb.OnClose(StatusNormalClosure, "", true)

	assert.Equal(t, Closed, s.ReadyState())
	assert.Zero(t, messages)
	assert.Zero(t, errored)
	assert.Equal(t, 1, closes)
}
