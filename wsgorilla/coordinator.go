package wsgorilla

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gobwas/wsbridge"
)

const defaultHandshakeTimeout = 10 * time.Second

// Coordinator intercepts protocol-upgrade requests on the net/http platform,
// creates the wrapper socket before the native connection exists, completes
// the handshake, and binds the result.
//
// The 101 response with its Upgrade/Connection headers is emitted by the
// gorilla upgrader itself; a handshake it refuses never reaches Attach, so a
// request the framework rejected is never accepted as a WebSocket
// connection.
type Coordinator struct {
	// Upgrader performs the HTTP-side handshake.
	Upgrader websocket.Upgrader

	// Registry, when non-nil, tracks every attached connection.
	Registry *wsbridge.Registry

	// Log receives upgrade lifecycle logs.
	Log zerolog.Logger
}

// NewCoordinator creates a coordinator with sane handshake defaults that
// registers attached connections in reg. reg may be nil.
func NewCoordinator(reg *wsbridge.Registry) *Coordinator {
	return &Coordinator{
		Upgrader: websocket.Upgrader{
			HandshakeTimeout: defaultHandshakeTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		Registry: reg,
		Log:      zerolog.Nop(),
	}
}

// Upgrade completes the WebSocket handshake for r and returns the attached
// socket.
//
// It fails with wsbridge.ErrNotUpgradeRequest when r does not carry the
// upgrade headers; in that case no socket and no registry entry is created
// and nothing is written to w, so the request can continue down the normal
// HTTP path.
func (c *Coordinator) Upgrade(w http.ResponseWriter, r *http.Request) (*wsbridge.Socket, error) {
	return c.upgrade(w, r, nil)
}

// Handler returns an http.Handler implementing the deferred-attachment flow:
// for an upgrade request the accept callback receives the socket while it is
// still Connecting — before any native transport exists — and installs its
// handlers; once accept returns, the coordinator completes the handshake and
// attaches. Requests that do not ask for an upgrade fall through to next, or
// to a 400 response when next is nil.
func (c *Coordinator) Handler(accept func(*wsbridge.Socket, *http.Request), next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !wsbridge.IsUpgradeRequest(r.Header) {
			if next != nil {
				next.ServeHTTP(w, r)
				return
			}
			http.Error(w, wsbridge.ErrNotUpgradeRequest.Error(), http.StatusBadRequest)
			return
		}
		if _, err := c.upgrade(w, r, func(s *wsbridge.Socket) {
			accept(s, r)
		}); err != nil {
			c.Log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		}
	})
}

func (c *Coordinator) upgrade(w http.ResponseWriter, r *http.Request, prepare func(*wsbridge.Socket)) (*wsbridge.Socket, error) {
	if !wsbridge.IsUpgradeRequest(r.Header) {
		return nil, wsbridge.ErrNotUpgradeRequest
	}

	// The socket exists before the native transport; application code may
	// install handlers, set the binary type or even close it while it is
	// still Connecting.
	s := wsbridge.NewSocket(requestURL(r))
	if prepare != nil {
		prepare(s)
	}

	conn, err := c.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Fail closed: gorilla already answered with an HTTP error and no
		// transport will ever exist. The socket was handed out, so it must
		// not hang in Connecting: fail it with an error and an unclean close.
		wsbridge.Abort(s, err)
		return nil, err
	}

	t := NewTransport(conn)
	if err := wsbridge.Attach(s, t); err != nil {
		conn.Close()
		return nil, err
	}
	if c.Registry != nil {
		id, err := c.Registry.Register(s, t)
		if err != nil {
			c.Log.Warn().Err(err).Msg("registering websocket connection")
		} else {
			c.Log.Debug().Str("conn", id).Str("remote", r.RemoteAddr).Msg("websocket attached")
		}
	}
	return s, nil
}

func requestURL(r *http.Request) string {
	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
