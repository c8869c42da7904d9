package wsbridge

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
)

// ReadyState is the lifecycle state of a Socket, with the universal
// WebSocket numbering.
type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

// String returns the standard lowercase state name.
func (s ReadyState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// BinaryType selects the delivery shape for binary payloads.
type BinaryType uint8

const (
	// BinaryBlob corresponds to the standard "blob" mode: binary payloads
	// are deferred-byte objects on platforms that distinguish the two.
	BinaryBlob BinaryType = iota
	// BinaryArrayBuffer corresponds to the standard "arraybuffer" mode:
	// binary payloads are raw in-memory bytes.
	BinaryArrayBuffer
)

// String returns the standard attribute value.
func (b BinaryType) String() string {
	if b == BinaryArrayBuffer {
		return "arraybuffer"
	}
	return "blob"
}

// Socket is the framework-agnostic wrapper implementing the standard
// WebSocket contract over a NativeTransport.
//
// A Socket is created detached, in the Connecting state. Handlers may be
// installed, the binary type may be set and Close may be called before any
// transport exists; such operations are deferred and replayed once Attach
// binds the socket to its transport. Send, by contrast, is only valid while
// the socket is Open.
//
// All methods are safe for concurrent use. Events for one socket are
// dispatched in the order the native transport emitted them.
type Socket struct {
	url string

	mu             sync.Mutex
	state          ReadyState
	binaryType     BinaryType
	attached       bool
	transport      NativeTransport
	deferred       []func(NativeTransport)
	pending        []MessageEvent
	closeEventSent bool

	onOpen    func(OpenEvent)
	onMessage func(MessageEvent)
	onClose   func(CloseEvent)
	onError   func(ErrorEvent)
	listeners map[EventKind][]Listener

	// emitMu serializes event dispatch so per-socket ordering survives the
	// handoff from the transport goroutine to user callbacks.
	emitMu sync.Mutex

	// resolving counts bytes of blob-like payloads read so far but not yet
	// handed to the transport.
	resolving atomic.Int64

	// registered is flipped once by Registry.Register.
	registered atomic.Bool
}

// NewSocket creates a detached socket for the given endpoint URL. It is
// normally called by an upgrade coordinator before the native transport
// exists.
func NewSocket(url string) *Socket {
	return &Socket{
		url:       url,
		state:     Connecting,
		listeners: make(map[EventKind][]Listener),
	}
}

// ReadyState returns the current lifecycle state.
func (s *Socket) ReadyState() ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// URL returns the endpoint URL the socket was created for, or the empty
// string when it is unknown.
func (s *Socket) URL() string {
	return s.url
}

// Protocol returns the negotiated subprotocol, or the empty string before
// attachment.
func (s *Socket) Protocol() string {
	if hi, ok := s.attachedTransport().(HandshakeInfo); ok {
		return hi.Protocol()
	}
	return ""
}

// Extensions returns the negotiated extensions, or the empty string before
// attachment.
func (s *Socket) Extensions() string {
	if hi, ok := s.attachedTransport().(HandshakeInfo); ok {
		return hi.Extensions()
	}
	return ""
}

// BufferedAmount returns the number of bytes accepted by Send but not yet
// handed to the wire. Bytes of a blob-like payload are counted as they are
// drained from the reader. Before attachment it is zero.
func (s *Socket) BufferedAmount() int64 {
	n := s.resolving.Load()
	if b, ok := s.attachedTransport().(Buffered); ok {
		n += b.Buffered()
	}
	return n
}

// BinaryType returns the current binary delivery mode.
func (s *Socket) BinaryType() BinaryType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binaryType
}

// SetBinaryType selects the binary delivery mode. When the socket is
// attached the mode is forwarded to the native transport immediately;
// otherwise it is recorded and applied at attach time.
func (s *Socket) SetBinaryType(bt BinaryType) error {
	s.mu.Lock()
	s.binaryType = bt
	t := s.transport
	s.mu.Unlock()
	if t != nil {
		return t.SetBinaryType(bt)
	}
	return nil
}

// OnOpen sets the primary open handler. A nil fn clears it.
func (s *Socket) OnOpen(fn func(OpenEvent)) {
	s.mu.Lock()
	s.onOpen = fn
	s.mu.Unlock()
}

// OnMessage sets the primary message handler. A nil fn clears it.
func (s *Socket) OnMessage(fn func(MessageEvent)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// OnClose sets the primary close handler. A nil fn clears it.
func (s *Socket) OnClose(fn func(CloseEvent)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

// OnError sets the primary error handler. A nil fn clears it.
func (s *Socket) OnError(fn func(ErrorEvent)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// AddListener registers an additional subscriber for events of the given
// kind. For each event the primary handler runs first, then listeners in
// registration order. Registration is legal at any time, including before
// attachment.
func (s *Socket) AddListener(kind EventKind, fn Listener) {
	s.mu.Lock()
	s.listeners[kind] = append(s.listeners[kind], fn)
	s.mu.Unlock()
}

// Send transmits one message. data may be a string (sent as a text message),
// a []byte (sent as a binary message), or an io.Reader (a blob-like
// deferred-byte payload: it is drained asynchronously and sent as a binary
// message once fully resolved).
//
// Send is valid only while the socket is Open; otherwise it returns
// ErrInvalidState and nothing reaches the transport.
//
// Known caveat: a reader payload that resolves asynchronously is not ordered
// against sends issued after it. Callers mixing reader and non-reader sends
// may observe reordering.
func (s *Socket) Send(data any) error {
	s.mu.Lock()
	if s.state != Open {
		s.mu.Unlock()
		return ErrInvalidState
	}
	t := s.transport
	s.mu.Unlock()

	switch v := data.(type) {
	case string:
		return t.Send([]byte(v), true)
	case []byte:
		return t.Send(v, false)
	case io.Reader:
		go s.resolveAndSend(t, v)
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedDataType, data)
	}
}

// resolveAndSend drains a blob-like payload and forwards it. Bytes enter the
// resolving counter as they are read and leave it once the transport accepted
// the message. Failures after the synchronous Send call returned surface as
// error events.
func (s *Socket) resolveAndSend(t NativeTransport, r io.Reader) {
	p, err := io.ReadAll(&resolvingReader{src: r, n: &s.resolving})
	defer s.resolving.Add(-int64(len(p)))
	if err != nil {
		s.handleNativeError(fmt.Errorf("resolving payload: %w", err))
		return
	}

	if s.ReadyState() != Open {
		s.handleNativeError(fmt.Errorf("payload resolved after close: %w", ErrInvalidState))
		return
	}
	if err := t.Send(p, false); err != nil {
		s.handleNativeError(err)
	}
}

// Close closes the socket with the default status 1000 and an empty reason.
func (s *Socket) Close() error {
	return s.CloseWithStatus(StatusNormalClosure, "")
}

// CloseWithStatus closes the socket with the given status code and reason.
//
// It is idempotent: a second call while Closing or after Closed is a no-op.
// When the socket is attached and Open, the close is delegated to the native
// transport and the socket stays in Closing until the native close event
// arrives. When the socket has not been attached yet, it transitions to
// Closed immediately, the single close event fires with the caller's status
// and WasClean set, and the transport shutdown is deferred: if Attach happens
// later, the transport is asked to close right away.
func (s *Socket) CloseWithStatus(code StatusCode, reason string) error {
	if err := CheckCloseStatus(code, reason); err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.state == Closing || s.state == Closed:
		s.mu.Unlock()
		return nil

	case !s.attached:
		s.state = Closed
		s.closeEventSent = true
		s.deferClose(code, reason)
		s.mu.Unlock()
		s.dispatch(CloseEvent{Code: code, Reason: reason, WasClean: true})
		return nil

	case s.state == Connecting:
		// Attached, but the native open has not arrived yet. Replay the
		// close right after open handling.
		s.state = Closing
		s.deferClose(code, reason)
		s.mu.Unlock()
		return nil

	default: // Open
		s.state = Closing
		t := s.transport
		s.mu.Unlock()
		return t.Close(code, reason)
	}
}

// deferClose queues the transport shutdown for replay after attachment.
// Callers must hold mu.
func (s *Socket) deferClose(code StatusCode, reason string) {
	s.deferred = append(s.deferred, func(t NativeTransport) {
		if err := t.Close(code, reason); err != nil {
			s.handleNativeError(err)
		}
	})
}

// resolvingReader accounts bytes into the socket's resolving counter as they
// are drained from a blob-like payload.
type resolvingReader struct {
	src io.Reader
	n   *atomic.Int64
}

func (r *resolvingReader) Read(p []byte) (int, error) {
	k, err := r.src.Read(p)
	r.n.Add(int64(k))
	return k, err
}

func (s *Socket) attachedTransport() NativeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// dispatch routes one event to the primary handler and then to listeners in
// registration order. Handler references are captured under mu; the
// callbacks themselves run under emitMu only, so they may safely call back
// into the socket.
func (s *Socket) dispatch(ev Event) {
	s.mu.Lock()
	onOpen, onMessage, onClose, onError := s.onOpen, s.onMessage, s.onClose, s.onError
	ls := append([]Listener(nil), s.listeners[ev.Kind()]...)
	s.mu.Unlock()

	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	switch e := ev.(type) {
	case OpenEvent:
		if onOpen != nil {
			onOpen(e)
		}
	case MessageEvent:
		if onMessage != nil {
			onMessage(e)
		}
	case CloseEvent:
		if onClose != nil {
			onClose(e)
		}
	case ErrorEvent:
		if onError != nil {
			onError(e)
		}
	}
	for _, l := range ls {
		l(ev)
	}
}
