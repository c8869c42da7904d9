// Package wsstream provides the stream-style native transport and the
// zero-copy upgrade coordinator over raw net.Conn connections, backed by
// github.com/gobwas/ws framing.
package wsstream

import (
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/pool/pbufio"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/gobwas/wsbridge"
)

const (
	readBufferSize = 4096

	// maxMessageSize bounds a single inbound frame.
	maxMessageSize = 1 << 20

	// writeWait bounds a single write, close frames included.
	writeWait = 10 * time.Second

	// closeWait bounds how long the read pump waits for the peer's close
	// reply after we initiated the closing handshake.
	closeWait = 5 * time.Second
)

// Transport adapts a server-side net.Conn that already completed the
// WebSocket handshake to the wsbridge.NativeTransport capability set. Like
// the other platform transport it is open from construction, so the open
// event is synthesized at attach time.
type Transport struct {
	conn net.Conn
	hs   ws.Handshake

	writeMu sync.Mutex
	closing atomic.Bool

	cb wsbridge.Callbacks
}

// NewTransport wraps an upgraded connection together with its handshake
// result.
func NewTransport(conn net.Conn, hs ws.Handshake) *Transport {
	return &Transport{conn: conn, hs: hs}
}

// Subscribe installs the callbacks and starts the read pump. Called exactly
// once, at attach time.
func (t *Transport) Subscribe(cb wsbridge.Callbacks) {
	t.cb = cb
	go t.readPump()
}

func (t *Transport) readPump() {
	defer t.conn.Close()

	br := pbufio.GetReader(t.conn, readBufferSize)
	defer pbufio.PutReader(br)

	ctl := wsutil.ControlFrameHandler(t.conn, ws.StateServerSide)
	rd := wsutil.Reader{
		Source:         br,
		State:          ws.StateServerSide,
		CheckUTF8:      true,
		MaxFrameSize:   maxMessageSize,
		OnIntermediate: ctl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			t.teardown(err)
			return
		}
		if hdr.OpCode.IsControl() {
			if err := ctl(hdr, &rd); err != nil {
				t.teardown(err)
				return
			}
			continue
		}
		p, err := io.ReadAll(&rd)
		if err != nil {
			t.teardown(err)
			return
		}
		t.cb.OnMessage(p, hdr.OpCode == ws.OpText)
	}
}

// teardown translates the read loop's terminal error. A wsutil.ClosedError
// means a close frame arrived and the control handler already echoed it: the
// closing handshake completed, so the close is clean. Anything else is an
// abnormal closure, reported as an error first unless we initiated the
// shutdown ourselves.
func (t *Transport) teardown(err error) {
	var ce wsutil.ClosedError
	if errors.As(err, &ce) {
		t.closing.Store(true)
		t.cb.OnClose(wsbridge.StatusCode(ce.Code), ce.Reason, true)
		return
	}
	if !t.closing.Swap(true) {
		t.cb.OnError(err)
	}
	t.cb.OnClose(wsbridge.StatusAbnormalClosure, "", false)
}

// Send writes one message. text selects the wire opcode.
func (t *Transport) Send(data []byte, text bool) error {
	op := ws.OpBinary
	if text {
		op = ws.OpText
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return wsutil.WriteServerMessage(t.conn, op, data)
}

// Close starts the closing handshake. The read pump observes either the
// peer's close frame (a clean close) or the closeWait deadline (an abnormal
// one). Repeated calls are no-ops.
func (t *Transport) Close(code wsbridge.StatusCode, reason string) error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}
	f := ws.NewCloseFrame(ws.NewCloseFrameBody(ws.StatusCode(code), reason))
	t.writeMu.Lock()
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteFrame(t.conn, f)
	t.writeMu.Unlock()
	t.conn.SetReadDeadline(time.Now().Add(closeWait))
	if err != nil {
		t.conn.Close()
	}
	return err
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

// Protocol returns the subprotocol negotiated during the handshake.
func (t *Transport) Protocol() string {
	return t.hs.Protocol
}

// Extensions returns the extensions negotiated during the handshake, in the
// Sec-WebSocket-Extensions header shape.
func (t *Transport) Extensions() string {
	if len(t.hs.Extensions) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, opt := range t.hs.Extensions {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.Write(opt.Name)
		opt.Parameters.ForEach(func(key, val []byte) bool {
			sb.WriteString("; ")
			sb.Write(key)
			if len(val) > 0 {
				sb.WriteByte('=')
				sb.Write(val)
			}
			return true
		})
	}
	return sb.String()
}

// RemoteAddr returns the peer address.
func (t *Transport) RemoteAddr() net.Addr {
	return t.conn.RemoteAddr()
}
