package wsbridge

// EventKind identifies one of the four standard socket event categories.
type EventKind uint8

const (
	KindOpen EventKind = iota
	KindMessage
	KindClose
	KindError
)

// String returns the standard event name.
func (k EventKind) String() string {
	switch k {
	case KindOpen:
		return "open"
	case KindMessage:
		return "message"
	case KindClose:
		return "close"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one of OpenEvent, MessageEvent, CloseEvent or ErrorEvent.
type Event interface {
	Kind() EventKind
}

// OpenEvent fires exactly once, when the socket transitions to Open.
type OpenEvent struct{}

// MessageEvent carries a single inbound message.
type MessageEvent struct {
	// Data is the message payload. For text messages it holds the UTF-8
	// bytes of the text; payloads are never converted between types.
	Data []byte
	// Text reports whether the native transport flagged the message as text.
	Text bool
}

// CloseEvent fires exactly once, when the socket reaches Closed.
type CloseEvent struct {
	Code   StatusCode
	Reason string
	// WasClean reports whether the closing handshake completed, as
	// determined by the native transport. It is never derived locally.
	WasClean bool
}

// ErrorEvent carries a normalized transport error. It is a superset of the
// generic error event: server transports expose more diagnostic detail than
// the browser-style event, so the underlying error travels along when the
// platform provides one.
type ErrorEvent struct {
	Message string
	Err     error
}

func (OpenEvent) Kind() EventKind    { return KindOpen }
func (MessageEvent) Kind() EventKind { return KindMessage }
func (CloseEvent) Kind() EventKind   { return KindClose }
func (ErrorEvent) Kind() EventKind   { return KindError }

// Listener receives events of the kind it was registered for.
type Listener func(Event)
