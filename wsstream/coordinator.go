package wsstream

import (
	"net"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"

	"github.com/gobwas/wsbridge"
)

// Coordinator performs the zero-copy WebSocket handshake on raw connections
// and binds the results. It is the platform glue for servers that accept
// net.Conn directly instead of going through net/http.
type Coordinator struct {
	// Upgrader performs the handshake. The zero value accepts any
	// well-formed upgrade request.
	Upgrader ws.Upgrader

	// Registry, when non-nil, tracks every attached connection.
	Registry *wsbridge.Registry

	// Log receives upgrade lifecycle logs.
	Log zerolog.Logger
}

// NewCoordinator creates a coordinator that registers attached connections
// in reg. reg may be nil.
func NewCoordinator(reg *wsbridge.Registry) *Coordinator {
	return &Coordinator{
		Registry: reg,
		Log:      zerolog.Nop(),
	}
}

// Upgrade performs the WebSocket handshake on conn and returns the attached
// socket. accept, when non-nil, observes the socket while it is still
// Connecting — before the native transport exists — and may install handlers
// or close it.
//
// A failed handshake fails closed: the upgrader has already written the HTTP
// error response, the connection is closed, and no socket or registry entry
// is created.
func (c *Coordinator) Upgrade(conn net.Conn, accept func(*wsbridge.Socket)) (*wsbridge.Socket, error) {
	// The handshake callbacks see the request line before the upgrader
	// decides; capture host and uri for the socket's URL property. The
	// byte slices are only valid inside the callbacks.
	u := c.Upgrader
	onHost, onRequest := u.OnHost, u.OnRequest
	var host, uri string
	u.OnHost = func(b []byte) error {
		host = string(b)
		if onHost != nil {
			return onHost(b)
		}
		return nil
	}
	u.OnRequest = func(b []byte) error {
		uri = string(b)
		if onRequest != nil {
			return onRequest(b)
		}
		return nil
	}

	hs, err := u.Upgrade(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	s := wsbridge.NewSocket("ws://" + host + uri)
	if accept != nil {
		accept(s)
	}

	t := NewTransport(conn, hs)
	if err := wsbridge.Attach(s, t); err != nil {
		conn.Close()
		return nil, err
	}
	if c.Registry != nil {
		id, err := c.Registry.Register(s, t)
		if err != nil {
			c.Log.Warn().Err(err).Msg("registering websocket connection")
		} else {
			c.Log.Debug().Str("conn", id).Str("remote", conn.RemoteAddr().String()).Msg("websocket attached")
		}
	}
	return s, nil
}

// Serve accepts connections from ln and upgrades each one, calling accept
// per socket as in Upgrade. It returns the first Accept error.
func (c *Coordinator) Serve(ln net.Listener, accept func(*wsbridge.Socket)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go func() {
			if _, err := c.Upgrade(conn, accept); err != nil {
				c.Log.Warn().Err(err).Msg("websocket upgrade failed")
			}
		}()
	}
}
