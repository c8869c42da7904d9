// Package wsgorilla provides the pump-style native transport and the
// net/http upgrade coordinator backed by github.com/gorilla/websocket.
package wsgorilla

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gobwas/wsbridge"
)

const (
	// defaultReadLimit bounds a single inbound message.
	defaultReadLimit = 1 << 20

	// writeWait bounds a single write, control frames included.
	writeWait = 10 * time.Second

	// closeWait bounds how long the read pump waits for the peer's close
	// reply after we initiated the closing handshake.
	closeWait = 5 * time.Second
)

// Transport adapts an upgraded *websocket.Conn to the
// wsbridge.NativeTransport capability set. A gorilla connection exists only
// after the handshake, so the transport is open from construction: IsOpen
// reports true and the open event is synthesized at attach time.
type Transport struct {
	conn     *websocket.Conn
	protocol string

	writeMu sync.Mutex
	closing atomic.Bool

	cb wsbridge.Callbacks
}

// NewTransport wraps an upgraded gorilla connection.
func NewTransport(conn *websocket.Conn) *Transport {
	conn.SetReadLimit(defaultReadLimit)
	return &Transport{
		conn:     conn,
		protocol: conn.Subprotocol(),
	}
}

// Subscribe installs the callbacks and starts the read pump. Called exactly
// once, at attach time.
func (t *Transport) Subscribe(cb wsbridge.Callbacks) {
	t.cb = cb
	t.conn.SetPingHandler(func(message string) error {
		err := t.conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			return nil
		}
		return err
	})
	go t.readPump()
}

// readPump delivers inbound messages serially until the connection reports a
// terminal condition.
func (t *Transport) readPump() {
	for {
		mt, p, err := t.conn.ReadMessage()
		if err != nil {
			t.teardown(err)
			return
		}
		t.cb.OnMessage(p, mt == websocket.TextMessage)
	}
}

// teardown translates the read loop's terminal error into close and error
// callbacks. Only the native layer knows whether the closing handshake
// completed: a received close frame is clean, everything else is an abnormal
// closure. Status 1006 is never carried on the wire; gorilla synthesizes it
// for abrupt EOF, so a CloseError with that code still means no close frame
// arrived. Errors are reported independently of close and never while we are
// tearing down a close we initiated ourselves.
func (t *Transport) teardown(err error) {
	defer t.conn.Close()

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		t.closing.Store(true)
		t.cb.OnClose(wsbridge.StatusCode(ce.Code), ce.Text, true)
		return
	}
	if !t.closing.Swap(true) {
		t.cb.OnError(err)
	}
	t.cb.OnClose(wsbridge.StatusAbnormalClosure, "", false)
}

// Send writes one message. text selects the wire message type.
func (t *Transport) Send(data []byte, text bool) error {
	mt := websocket.BinaryMessage
	if text {
		mt = websocket.TextMessage
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(mt, data)
}

// Close starts the closing handshake. The read pump observes either the
// peer's close reply (a clean close) or the closeWait deadline (an abnormal
// one). Repeated calls are no-ops.
func (t *Transport) Close(code wsbridge.StatusCode, reason string) error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(int(code), reason)
	err := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	t.conn.SetReadDeadline(time.Now().Add(closeWait))
	if err != nil && err != websocket.ErrCloseSent {
		t.conn.Close()
		return err
	}
	return nil
}

// IsOpen reports whether the connection is still usable.
func (t *Transport) IsOpen() bool {
	return !t.closing.Load()
}

// SetBinaryType records the wrapper's binary mode. This platform always
// delivers payloads as raw bytes, so both modes behave identically.
func (t *Transport) SetBinaryType(wsbridge.BinaryType) error {
	return nil
}

// Protocol returns the negotiated subprotocol.
func (t *Transport) Protocol() string {
	return t.protocol
}

// Extensions returns the negotiated extensions. The gorilla connection does
// not expose them after the handshake, so this is always empty.
func (t *Transport) Extensions() string {
	return ""
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
