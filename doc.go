/*
Package wsbridge presents structurally different low-level WebSocket
transports through one standards-shaped socket object.

The main purpose of this package is to let server-side application logic be
written once, against the familiar WebSocket contract (ready states, event
handlers, send/close), regardless of which platform transport carries the
bytes underneath.

Overview.

A Socket starts life detached, in the Connecting state:

	s := wsbridge.NewSocket("ws://example.org/ws")
	s.OnMessage(func(ev wsbridge.MessageEvent) {
		// ...
	})

Handlers may be installed and Close may be called at any point; no events are
emitted before the socket is bound to a transport. The binding itself is the
one-time Attach operation, normally performed by a platform upgrade
coordinator:

	err := wsbridge.Attach(s, transport)

where transport is any implementation of NativeTransport. Two implementations
ship with this module: wsgorilla (a read-pump adapter over
github.com/gorilla/websocket) and wsstream (a stream adapter over a raw
net.Conn using github.com/gobwas/ws framing). After Attach the socket's
events mirror the native transport's: open once, then messages and errors as
they arrive, then close exactly once, terminal.

The Registry tracks every attached connection and answers aggregate
questions:

	reg := wsbridge.NewRegistry()
	st := reg.Stats() // current, lifetime, per-connection age/idle

Upgrade coordinators glue the two together for their platform. For net/http:

	coord := wsgorilla.NewCoordinator(reg)
	http.Handle("/ws", coord.Handler(accept, nil))

For raw listeners see wsstream.Coordinator.
*/
package wsbridge
