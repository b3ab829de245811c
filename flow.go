package flowhttp

import (
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/badu/flowhttp/hdr"
	"github.com/badu/flowhttp/trace"
	"github.com/badu/flowhttp/transport"
)

// DefaultMaxRequestLineLen bounds a request line's length; a longer
// request line is rejected with a 400 before any headers are read. Status
// lines (client role) are not length-checked.
const DefaultMaxRequestLineLen = 8 << 10

// errKind classifies why Flow forced Status into StatusError, so the
// error-reply dispatch in handleRead can choose the right canned status
// code.
type errKind int

const (
	errNone errKind = iota
	errParse
	errVersion
	errTooLarge
	errChunked
	errTransport
)

// asError maps a kind to the sentinel error describing it, for logging at
// the single dispatch point in replyWithError. errNone and errTransport
// (logged separately, with the live transport error) have no mapping.
func (k errKind) asError() error {
	switch k {
	case errParse:
		return ErrMalformedFirstLine
	case errVersion:
		return ErrUnsupportedVersion
	case errTooLarge:
		return ErrPayloadTooLarge
	case errChunked:
		return ErrChunkedUnsupported
	default:
		return nil
	}
}

// ioEvent is what a worker goroutine posts back to the loop goroutine on
// completion of one blocking transport call.
type ioEvent struct {
	forWrite bool
	line     string
	body     []byte
	err      error
}

// Flow is the per-session I/O state machine. One loop goroutine (Serve) is
// the sole mutator of Session; readLine, readRemainingContent, and the
// write issued by send each spawn a short-lived worker goroutine tracked
// by wg, so at most one read and one write are ever outstanding for a
// session.
type Flow struct {
	Session   *SessionData
	Processor Processor

	in, out    transport.Transport
	sameHandle bool

	events chan ioEvent
	done   chan struct{}
	wg     *errgroup.Group

	log   *zap.Logger
	trace *trace.Hooks

	maxRequestLineLen int
	kind              errKind
}

// SetTrace attaches hooks to the Flow, composing them over any hooks
// already set so a caller can layer per-request tracing (e.g. set by a
// Processor.Start) on top of connection-scoped tracing set at NewFlow
// time.
func (f *Flow) SetTrace(h *trace.Hooks) {
	f.trace = h.Compose(f.trace)
	f.Session.Trace = f.trace
}

// NewFlow constructs a Flow. sameHandle must be true when in and out wrap
// the identical underlying connection, so recycle closes it exactly once.
func NewFlow(session *SessionData, processor Processor, in, out transport.Transport, sameHandle bool, log *zap.Logger) *Flow {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flow{
		Session:           session,
		Processor:         processor,
		in:                in,
		out:               out,
		sameHandle:        sameHandle,
		events:            make(chan ioEvent),
		done:              make(chan struct{}),
		wg:                &errgroup.Group{},
		log:               log,
		maxRequestLineLen: DefaultMaxRequestLineLen,
	}
}

// Serve starts the session and runs the event loop until the session is
// recycled. It returns once Status reaches StatusShutdown.
func (f *Flow) Serve() {
	f.trace.FireStart()
	f.Processor.Start(f.Session)
	f.handleStart()
	for f.Session.Status != StatusShutdown {
		ev := <-f.events
		if ev.forWrite {
			f.handleWrite(ev.err)
		} else {
			f.handleRead(ev)
		}
	}
}

func (f *Flow) spawn(work func() ioEvent) {
	f.wg.Go(func() error {
		ev := work()
		select {
		case f.events <- ev:
		case <-f.done:
		}
		return nil
	})
}

// handleStart dispatches the post-hook / post-reply path: issue the next
// line read if awaiting a first line, recycle if already shut down, and
// unconditionally drain anything the Processor queued. No new read is
// issued once CloseAfterSend committed the connection to closing; send
// recycles as soon as the queue empties.
func (f *Flow) handleStart() {
	switch f.Session.Status {
	case StatusRequest, StatusStatusLine:
		if !f.Session.CloseAfterSend {
			f.readLine()
		}
	case StatusShutdown:
		f.recycle()
	}
	f.send()
}

// readLine issues one line read, completing via handleRead. A worker
// goroutine performs the blocking bufio.Reader.ReadString('\n').
func (f *Flow) readLine() {
	reader := f.in.Reader()
	f.spawn(func() ioEvent {
		line, err := reader.ReadString('\n')
		if err == nil {
			line = strings.TrimRight(line, "\r\n")
		}
		return ioEvent{line: line, err: err}
	})
}

// readRemainingContent issues one read for exactly RemainingBytes() bytes.
// io.ReadFull collapses partial reads into a single worker call that only
// returns once the body is complete or the transport errors; bodies are
// buffered whole either way.
func (f *Flow) readRemainingContent() {
	remaining := f.Session.RemainingBytes()
	reader := f.in.Reader()
	f.spawn(func() ioEvent {
		buf := make([]byte, remaining)
		n, err := io.ReadFull(reader, buf)
		return ioEvent{body: buf[:n], err: err}
	})
}

// send drains the outbound queue half-duplex: at most one write in flight,
// FIFO order, detach-before-write so a later send call (after a Processor
// hook queues another reply) observes the new head.
func (f *Flow) send() {
	s := f.Session
	if s.Status == StatusShutdown || s.WritePending {
		return
	}
	msg, ok := s.PopOutbound()
	if !ok {
		if s.CloseAfterSend {
			f.recycle()
		}
		return
	}
	s.WritePending = true
	out := f.out
	f.spawn(func() ioEvent {
		_, err := out.Write(msg)
		return ioEvent{forWrite: true, err: err}
	})
}

// handleRead is the parse driver.
func (f *Flow) handleRead(ev ioEvent) {
	s := f.Session

	if s.Status == StatusShutdown {
		return // late completion after recycle; ignored
	}
	if ev.err != nil {
		s.Status = StatusError
		f.kind = errTransport
		s.Errors++
		f.log.Warn("flow: transport read error",
			zap.Error(ev.err), zap.Stringer("status", s.Status), zap.Uint64("requests", s.Requests))
	}

	wasRequest := s.Status == StatusRequest
	wasStart := wasRequest || s.Status == StatusStatusLine

	switch s.Status {
	case StatusRequest:
		if err := s.ParseRequestLine(ev.line, f.maxRequestLineLen); err != nil {
			s.Status = StatusError
			f.kind = errParse
		} else {
			s.Status = StatusHeader
			f.trace.FireRequestLine(s.InboundRequest.Method, s.InboundRequest.Resource)
		}
	case StatusStatusLine:
		if err := s.ParseStatusLine(ev.line); err != nil {
			s.Status = StatusError
			f.kind = errParse
		} else {
			s.Status = StatusHeader
			f.trace.FireStatusLine(s.InboundStatus.Code, s.InboundStatus.Reason)
		}
	case StatusHeader:
		complete, err := s.AbsorbHeaderLine(ev.line)
		if err != nil {
			s.Status = StatusError
			f.kind = errParse
		} else if complete {
			f.closeHeaders()
		}
	}

	if wasStart && s.Status != StatusError && s.InboundRequest != nil && s.InboundRequest.Version.Major >= 2 {
		s.Status, f.kind = StatusError, errVersion
	}
	if wasStart && s.Status != StatusError && s.InboundStatus != nil && s.InboundStatus.Version.Major >= 2 {
		s.Status, f.kind = StatusError, errVersion
	}
	if wasStart && s.Status == StatusHeader {
		s.Inbound = hdr.Header{}
	}
	// Server-role rejections get a canned reply before the connection
	// closes; a failed first line means wasRequest, a header-stage
	// rejection (bad header, oversized body, chunked) means the request
	// line already parsed. Transport errors get no reply (the peer is
	// gone), and a processor-signaled Error (kind still errNone) has
	// already queued its own reply in AfterHeaders.
	serverSide := wasRequest || s.InboundRequest != nil
	if serverSide && s.Status == StatusError && f.kind != errNone && f.kind != errTransport {
		f.replyWithError()
		f.send()
		s.Status = StatusProcessing
		return
	}

	switch s.Status {
	case StatusHeader:
		f.readLine()
	case StatusProcessing:
		f.process()
	case StatusContent:
		f.continueContent(ev.body)
	case StatusError:
		f.recycle()
	}
}

// closeHeaders runs once the terminating blank line is seen: invoke
// AfterHeaders, drain anything it queued (a 100-Continue or an error
// reply), apply the body-size cap and chunked-encoding rejection, and
// clear Content for the upcoming body.
func (f *Flow) closeHeaders() {
	s := f.Session
	if s.Inbound.Get(hdr.TransferEncoding) != "" {
		s.Status, f.kind = StatusError, errChunked
		return
	}
	s.Status = f.Processor.AfterHeaders(s)
	f.send() // drain whatever AfterHeaders queued (100-Continue, or its own error reply)
	if s.Status == StatusContent && s.ContentLength > s.MaxContentLength {
		s.Status, f.kind = StatusError, errTooLarge
	}
	f.trace.FireHeadersComplete(s.ContentLength)
	s.Content = nil
}

// process calls Handle/AfterProcessing for a message with no body (the
// Header->Processing transition) or one whose body just completed
// (the StatusContent->Processing transition inside continueContent).
func (f *Flow) process() {
	s := f.Session
	f.Processor.Handle(s)
	f.applyNext(f.Processor.AfterProcessing(s))
	f.handleStart()
}

// applyNext records the status a Processor's AfterProcessing chose. A
// Shutdown request while replies are still queued is deferred: it latches
// CloseAfterSend and leaves the session draining, so send recycles only
// once the last queued message is on the wire instead of dropping the
// tail of the queue.
func (f *Flow) applyNext(next Status) {
	s := f.Session
	if next == StatusShutdown && len(s.OutboundQueue) > 0 {
		s.CloseAfterSend = true
		return
	}
	if next == StatusRequest || next == StatusStatusLine {
		s.resetForNextMessage(next)
		return
	}
	s.Status = next
}

// continueContent folds in whatever body bytes arrived (either drained
// synchronously from already-buffered input right after headers closed, or
// delivered by a completed readRemainingContent call), and either finishes
// into Processing or issues another content read.
func (f *Flow) continueContent(body []byte) {
	s := f.Session
	if body != nil {
		s.AppendContent(body)
	} else {
		s.AppendContent(f.drainBuffered())
	}
	if s.RemainingBytes() == 0 {
		f.trace.FireBodyComplete(len(s.Content))
		s.Status = StatusProcessing
		f.process()
		return
	}
	f.readRemainingContent()
}

// drainBuffered consumes bytes the transport's bufio.Reader already holds
// (left over from reading the header block) without issuing a new
// blocking read.
func (f *Flow) drainBuffered() []byte {
	s := f.Session
	remaining := s.RemainingBytes()
	if remaining == 0 {
		return nil
	}
	reader := f.in.Reader()
	n := reader.Buffered()
	if n > remaining {
		n = remaining
	}
	if n == 0 {
		return nil
	}
	peeked, _ := reader.Peek(n)
	out := make([]byte, n)
	copy(out, peeked)
	reader.Discard(n)
	return out
}

// handleWrite is the write driver.
func (f *Flow) handleWrite(err error) {
	s := f.Session
	s.WritePending = false
	f.trace.FireWriteComplete(err)
	if err == nil {
		if s.Status == StatusProcessing {
			f.applyNext(f.Processor.AfterProcessing(s))
		}
		f.send()
	}
	if err != nil {
		s.Errors++
		f.log.Warn("flow: transport write error", zap.Error(err))
	}
	if err != nil || s.Status == StatusShutdown {
		f.recycle()
	}
}

// replyWithError queues the canned error reply for the current errKind:
// 505 for an unsupported major version, 413 for an oversized declared
// body, 501 for chunked encoding, 400 otherwise.
func (f *Flow) replyWithError() {
	status := 400
	switch f.kind {
	case errVersion:
		status = 505
	case errTooLarge:
		status = 413
	case errChunked:
		status = 501
	}
	if cause := f.kind.asError(); cause != nil {
		f.log.Info("flow: rejecting message", zap.Error(cause), zap.Int("status", status))
	}
	f.Session.Reply(status, cannedErrorBody(status, ""), nil)
	f.kind = errNone
}

// recycle is Flow's idempotent teardown: stop the Processor, clear the
// session's outbound state, shut down and close both
// transports exactly once each (respecting sameHandle), join outstanding
// worker goroutines, drain any unread input, and mark the session free.
func (f *Flow) recycle() {
	s := f.Session
	if s.Free {
		return
	}

	f.trace.FireRecycle()
	f.Processor.Recycle(s)
	s.Status = StatusShutdown
	s.CloseAfterSend = false
	s.OutboundQueue = nil

	close(f.done)

	if err := f.out.Shutdown(); err != nil {
		s.Errors++
	}
	if err := f.out.Close(); err != nil {
		s.Errors++
	}
	if !f.sameHandle {
		if err := f.in.Shutdown(); err != nil {
			s.Errors++
		}
		if err := f.in.Close(); err != nil {
			s.Errors++
		}
	}

	_ = f.wg.Wait()

	if reader := f.in.Reader(); reader != nil {
		_, _ = io.Copy(io.Discard, reader)
	}

	s.Free = true
}
