package wsbridge

// Attach binds s to its native transport t. The binding is write-once: a
// second call for the same socket fails with ErrAlreadyAttached and the
// second transport is never wired. There is no detach.
//
// Attach installs the event translation (native message/close/error/open
// re-emitted as socket events), aligns the transport's binary delivery mode
// with the socket's choice, and replays operations deferred while the socket
// was detached. When the transport already reports open, the open sequence is
// synthesized synchronously; otherwise the socket stays in Connecting until
// the native open signal arrives, and only then fires its open event.
//
// Attach is intended for upgrade coordinators and other transport glue; the
// transport reference is privately owned by the socket afterwards and never
// exposed to application code.
func Attach(s *Socket, t NativeTransport) error {
	s.mu.Lock()
	if s.attached {
		s.mu.Unlock()
		return ErrAlreadyAttached
	}
	s.attached = true
	s.transport = t
	bt := s.binaryType
	preClosed := s.state == Closed
	s.mu.Unlock()

	// Align binary delivery before any message can arrive.
	if err := t.SetBinaryType(bt); err != nil {
		return err
	}

	t.Subscribe(Callbacks{
		OnOpen:    s.handleNativeOpen,
		OnMessage: s.handleNativeMessage,
		OnClose:   s.handleNativeClose,
		OnError:   s.handleNativeError,
	})

	if preClosed {
		// Close was called while the socket was detached; its close event
		// already fired. Skip open handling and shut the transport down
		// right away.
		s.replayDeferred()
		return nil
	}
	if t.IsOpen() {
		s.handleNativeOpen()
	}
	return nil
}

// handleNativeOpen runs the open sequence: Connecting sockets transition to
// Open and fire the open event exactly once; messages the transport delivered
// before the open sequence ran follow, in arrival order; in every case the
// deferred operation queue is replayed afterwards, in FIFO order.
func (s *Socket) handleNativeOpen() {
	s.mu.Lock()
	opening := s.state == Connecting
	if opening {
		s.state = Open
	}
	held := s.pending
	s.pending = nil
	s.mu.Unlock()

	if opening {
		s.dispatch(OpenEvent{})
	}
	for _, ev := range held {
		s.dispatch(ev)
	}
	s.replayDeferred()
}

func (s *Socket) replayDeferred() {
	s.mu.Lock()
	q := s.deferred
	s.deferred = nil
	t := s.transport
	s.mu.Unlock()
	for _, fn := range q {
		fn(t)
	}
}

// handleNativeMessage forwards one inbound message. Payload bytes and the
// text flag travel as the native layer reported them; no conversion happens
// here. Messages arriving while the socket is still Connecting are held and
// delivered right after the open sequence: transports may start their read
// loop inside Subscribe, before Attach has run open handling.
func (s *Socket) handleNativeMessage(data []byte, text bool) {
	s.mu.Lock()
	st := s.state
	if st == Connecting {
		s.pending = append(s.pending, MessageEvent{Data: data, Text: text})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	if st != Open && st != Closing {
		return
	}
	s.dispatch(MessageEvent{Data: data, Text: text})
}

// handleNativeClose makes the socket terminal and fires the close event,
// exactly once per socket regardless of how many shutdown paths raced to get
// here.
func (s *Socket) handleNativeClose(code StatusCode, reason string, wasClean bool) {
	s.mu.Lock()
	fire := !s.closeEventSent
	s.closeEventSent = true
	s.state = Closed
	s.mu.Unlock()

	if fire {
		s.dispatch(CloseEvent{Code: code, Reason: reason, WasClean: wasClean})
	}
}

// Abort fails a socket whose transport never materialized: the handshake was
// refused after the socket had already been handed to application code. It
// emits an error event carrying err (when non-nil) followed by a single
// unclean close event with status 1006, and makes the socket terminal.
// Aborting an attached or already closed socket is a no-op.
func Abort(s *Socket, err error) {
	s.mu.Lock()
	if s.attached || s.state == Closed {
		s.mu.Unlock()
		return
	}
	fire := !s.closeEventSent
	s.closeEventSent = true
	s.state = Closed
	s.mu.Unlock()

	if err != nil {
		s.dispatch(ErrorEvent{Message: err.Error(), Err: err})
	}
	if fire {
		s.dispatch(CloseEvent{Code: StatusAbnormalClosure, WasClean: false})
	}
}

// handleNativeError normalizes a transport failure into an error event. An
// error never synthesizes a close: if the native layer decides to tear the
// connection down it reports that separately.
func (s *Socket) handleNativeError(err error) {
	s.mu.Lock()
	done := s.state == Closed
	s.mu.Unlock()
	if done {
		return
	}
	s.dispatch(ErrorEvent{Message: err.Error(), Err: err})
}
