package wsbridge

import "net"

// Callbacks is the set of functions through which a NativeTransport delivers
// its native signals. A transport must deliver them serially per connection:
// open first (when it fires at all), then messages and errors as they occur,
// then close exactly once.
type Callbacks struct {
	// OnOpen signals that the transport finished connecting. Transports that
	// are already open when subscribed never call it; openness is instead
	// reported through IsOpen and the open event is synthesized at attach
	// time.
	OnOpen func()

	// OnMessage delivers one inbound message. text mirrors the native
	// transport's own text/binary flag.
	OnMessage func(data []byte, text bool)

	// OnClose reports the terminal close with the code, reason and clean
	// flag as the native layer determined them.
	OnClose func(code StatusCode, reason string, wasClean bool)

	// OnError reports a transport-level failure. It does not imply close;
	// if the native layer decides to tear the connection down, a separate
	// OnClose follows.
	OnError func(err error)
}

// NativeTransport is the capability set required from a platform socket so
// that it can back a Socket. Implementations wrap the platform's low-level
// object and are otherwise opaque: they can send bytes or text, emit
// message/close/error, and can be told to close.
type NativeTransport interface {
	// Subscribe installs the event callbacks and starts event delivery. It
	// is called exactly once, at attach time.
	Subscribe(Callbacks)

	// Send writes a single message. text selects the wire message type;
	// the payload is forwarded without conversion.
	Send(data []byte, text bool) error

	// Close starts the closing handshake with the given status. It must be
	// safe to call more than once; repeated calls are no-ops.
	Close(code StatusCode, reason string) error

	// IsOpen reports whether the transport is already open. Attach uses it
	// to decide between synthesizing the open event and waiting for OnOpen.
	IsOpen() bool

	// SetBinaryType aligns the transport's binary delivery mode with the
	// wrapper's choice so later payload shapes are predictable across
	// platforms.
	SetBinaryType(BinaryType) error
}

// HandshakeInfo is implemented by transports that know the negotiated
// subprotocol and extensions. Socket property getters consult it after
// attachment.
type HandshakeInfo interface {
	Protocol() string
	Extensions() string
}

// Addressed is implemented by transports that expose the peer address. The
// Registry includes it in per-connection listings when available.
type Addressed interface {
	RemoteAddr() net.Addr
}

// Buffered is implemented by transports that track bytes queued but not yet
// written to the wire.
type Buffered interface {
	Buffered() int64
}
