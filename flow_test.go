package flowhttp

import (
	"bufio"
	"strings"
	"testing"
	"time"

	"github.com/badu/flowhttp/flowtest"
	"github.com/badu/flowhttp/hdr"
	"github.com/badu/flowhttp/negotiate"
	"github.com/badu/flowhttp/trace"
	"github.com/badu/flowhttp/transport"
)

// echoProcessor is a minimal Processor driven entirely by closures,
// letting each test describe only the behavior it needs.
type echoProcessor struct {
	start           func(*SessionData)
	afterHeaders    func(*SessionData) Status
	handle          func(*SessionData)
	afterProcessing func(*SessionData) Status
	recycled        chan struct{}
}

func (p *echoProcessor) Start(s *SessionData) {
	if p.start != nil {
		p.start(s)
	}
}

func (p *echoProcessor) AfterHeaders(s *SessionData) Status {
	if p.afterHeaders != nil {
		return p.afterHeaders(s)
	}
	if s.ContentLength > 0 {
		return StatusContent
	}
	return StatusProcessing
}

func (p *echoProcessor) Handle(s *SessionData) {
	if p.handle != nil {
		p.handle(s)
	}
}

func (p *echoProcessor) AfterProcessing(s *SessionData) Status {
	if p.afterProcessing != nil {
		return p.afterProcessing(s)
	}
	return s.NextStatus(StatusRequest)
}

func (p *echoProcessor) Recycle(*SessionData) {
	if p.recycled != nil {
		close(p.recycled)
	}
}

func readN(t *testing.T, pipe *flowtest.Pipe, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	read := 0
	for read < n {
		m, err := pipe.Client.Reader().Read(buf[read:])
		if err != nil {
			t.Fatalf("read: %v (got %d/%d bytes: %q)", err, read, n, buf[:read])
		}
		read += m
	}
	return buf
}

func TestFlowMinimalGET(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{
		handle: func(s *SessionData) { s.Reply(200, []byte("ok"), nil) },
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	got := readN(t, pipe, len(want))
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if session.Replies != 1 {
		t.Errorf("Replies = %d, want 1", session.Replies)
	}
}

func TestFlowHEAD(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{
		handle: func(s *SessionData) { s.Reply(200, []byte("body"), nil) },
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("HEAD /r HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 4\r\n\r\n"
	got := readN(t, pipe, len(want))
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !session.IsHEAD {
		t.Error("IsHEAD should still be true immediately after the reply is generated")
	}
}

func TestFlowUnsupportedVersion(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{recycled: make(chan struct{})}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GET / HTTP/2.0\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	prefix := readN(t, pipe, len("HTTP/1.1 505 "))
	if string(prefix) != "HTTP/1.1 505 " {
		t.Fatalf("got %q, want 505 status line prefix", prefix)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after 505")
	}
}

func TestFlowMalformedRequestLine(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{recycled: make(chan struct{})}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GARBAGE\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	prefix := readN(t, pipe, len("HTTP/1.1 400 "))
	if string(prefix) != "HTTP/1.1 400 " {
		t.Fatalf("got %q, want 400 status line prefix", prefix)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after 400")
	}
}

func TestFlowPOSTWithBody(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	var gotBody string
	proc := &echoProcessor{
		handle: func(s *SessionData) {
			gotBody = string(s.Content)
			s.Reply(201, nil, nil)
		},
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	req := "POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	if _, err := pipe.Client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	want := "HTTP/1.1 201 Created\r\nContent-Length: 0\r\n\r\n"
	got := readN(t, pipe, len(want))
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if gotBody != "hello" {
		t.Fatalf("body seen by Handle = %q, want hello", gotBody)
	}
}

func TestFlowPayloadTooLarge(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{recycled: make(chan struct{})}
	session := NewSession(StatusRequest)
	session.MaxContentLength = 4
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	req := "POST /x HTTP/1.1\r\nContent-Length: 1000\r\n\r\n"
	if _, err := pipe.Client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	prefix := readN(t, pipe, len("HTTP/1.1 413 "))
	if string(prefix) != "HTTP/1.1 413 " {
		t.Fatalf("got %q, want 413 status line prefix", prefix)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after 413")
	}
}

func TestFlowChunkedBodyRejected(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{recycled: make(chan struct{})}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	req := "POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"
	if _, err := pipe.Client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	prefix := readN(t, pipe, len("HTTP/1.1 501 "))
	if string(prefix) != "HTTP/1.1 501 " {
		t.Fatalf("got %q, want 501 status line prefix", prefix)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after 501")
	}
}

func TestFlowQueuedRepliesPreserveOrder(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{
		handle: func(s *SessionData) {
			s.Reply(200, []byte("a"), nil)
			s.Reply(200, []byte("b"), nil)
		},
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	replyA := "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\na"
	replyB := "HTTP/1.1 200 OK\r\nContent-Length: 1\r\n\r\nb"
	got := readN(t, pipe, len(replyA)+len(replyB))
	if string(got) != replyA+replyB {
		t.Fatalf("got %q, want replies concatenated in order %q", got, replyA+replyB)
	}
}

func TestFlowBodyExactlyContentLengthTransitionsWithoutFurtherRead(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	handled := make(chan struct{})
	proc := &echoProcessor{
		handle: func(s *SessionData) {
			s.Reply(200, nil, nil)
			close(handled)
		},
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	req := "POST /x HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc"
	if _, err := pipe.Client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("Handle was never called")
	}
	if session.RemainingBytes() != 0 {
		t.Errorf("RemainingBytes() = %d, want 0", session.RemainingBytes())
	}
}

func TestFlowSetTraceFiresHooksInOrder(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	var events []string
	proc := &echoProcessor{
		handle: func(s *SessionData) { s.Reply(200, []byte("ok"), nil) },
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	flow.SetTrace(&trace.Hooks{
		OnStart:           func() { events = append(events, "start") },
		OnRequestLine:     func(method, resource string) { events = append(events, "request-line:"+method+" "+resource) },
		OnHeadersComplete: func(int) { events = append(events, "headers-complete") },
		OnReplyQueued:     func(status, bodyLen int) { events = append(events, "reply-queued") },
	})
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GET /x HTTP/1.1\r\nHost: y\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	readN(t, pipe, len(want))

	wantEvents := []string{"start", "request-line:GET /x", "headers-complete", "reply-queued"}
	if len(events) != len(wantEvents) {
		t.Fatalf("events = %v, want %v", events, wantEvents)
	}
	for i, e := range wantEvents {
		if events[i] != e {
			t.Errorf("events[%d] = %q, want %q", i, events[i], e)
		}
	}
}

// TestFlowPersistentConnectionResetsPerMessageState drives two requests
// over the same connection. The first declares a Content-Length and a
// body; the second declares neither. Without resetting ContentLength
// between messages, the second request would be mistaken for one with a
// 5-byte body and Flow would block waiting for bytes the client never
// sends. Also checks that Outbound doesn't carry a header set while
// replying to the first message into the second reply.
func TestFlowPersistentConnectionResetsPerMessageState(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	calls := 0
	var secondContentLength int
	var secondOutboundHasFirstOnly bool
	proc := &echoProcessor{
		handle: func(s *SessionData) {
			calls++
			if calls == 1 {
				s.Outbound.Set("X-First-Only", "yes")
			} else {
				secondContentLength = s.ContentLength
				secondOutboundHasFirstOnly = s.Outbound.Get("X-First-Only") != ""
			}
			s.Reply(200, []byte("ok"), nil)
		},
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	first := "POST /x HTTP/1.1\r\nContent-Length: 5\r\n\r\nhello"
	if _, err := pipe.Client.Write([]byte(first)); err != nil {
		t.Fatalf("write first request: %v", err)
	}
	firstWant := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\nX-First-Only: yes\r\n\r\nok"
	readN(t, pipe, len(firstWant))

	second := "GET /other HTTP/1.1\r\nHost: x\r\n\r\n"
	if _, err := pipe.Client.Write([]byte(second)); err != nil {
		t.Fatalf("write second request: %v", err)
	}

	secondWant := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	buf := make([]byte, len(secondWant))
	readErr := make(chan error, 1)
	go func() {
		read := 0
		for read < len(buf) {
			n, err := pipe.Client.Reader().Read(buf[read:])
			read += n
			if err != nil {
				readErr <- err
				return
			}
		}
		readErr <- nil
	}()

	select {
	case err := <-readErr:
		if err != nil {
			t.Fatalf("read second reply: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the second reply; Flow likely still awaiting a stale body read")
	}
	if string(buf) != secondWant {
		t.Fatalf("second reply = %q, want %q", buf, secondWant)
	}

	if calls != 2 {
		t.Fatalf("Handle called %d times, want 2", calls)
	}
	if secondContentLength != 0 {
		t.Errorf("second request's ContentLength = %d, want 0 (leaked from the first request)", secondContentLength)
	}
	if secondOutboundHasFirstOnly {
		t.Error("second reply's Outbound still carries the first reply's X-First-Only header")
	}
	if session.Requests != 2 {
		t.Errorf("Requests = %d, want 2 (counters must not reset across messages)", session.Requests)
	}
}

// TestFlowClientRole drives the symmetric client-side cycle: Start queues
// a request, the far end answers with a status line, headers, and body,
// and Handle observes the completed reply before shutting the session
// down.
func TestFlowClientRole(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	var gotCode int
	var gotBody string
	proc := &echoProcessor{
		start: func(s *SessionData) {
			s.Request("GET", "/data", nil, nil)
		},
		handle: func(s *SessionData) {
			gotCode = s.InboundStatus.Code
			gotBody = string(s.Content)
		},
		afterProcessing: func(s *SessionData) Status { return StatusShutdown },
		recycled:        make(chan struct{}),
	}
	session := NewSession(StatusStatusLine)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	wantReq := "GET /data HTTP/1.1\r\n\r\n"
	req := readN(t, pipe, len(wantReq))
	if string(req) != wantReq {
		t.Fatalf("request on the wire = %q, want %q", req, wantReq)
	}

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"
	if _, err := pipe.Client.Write([]byte(resp)); err != nil {
		t.Fatalf("write response: %v", err)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the client session to shut down")
	}
	if gotCode != 200 {
		t.Errorf("Handle saw status %d, want 200", gotCode)
	}
	if gotBody != "hi" {
		t.Errorf("Handle saw body %q, want hi", gotBody)
	}
	if session.Requests != 1 {
		t.Errorf("Requests = %d, want 1", session.Requests)
	}
}

// TestFlowShutdownAfterProcessingDrainsQueuedReply pins the tie-break for
// a Processor that returns StatusShutdown from AfterProcessing while its
// reply is still queued: the connection closes only after the queue
// drains, so the reply reaches the wire instead of being dropped by
// recycle.
func TestFlowShutdownAfterProcessingDrainsQueuedReply(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{
		handle:          func(s *SessionData) { s.Reply(200, []byte("bye"), nil) },
		afterProcessing: func(*SessionData) Status { return StatusShutdown },
		recycled:        make(chan struct{}),
	}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	if _, err := pipe.Client.Write([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n")); err != nil {
		t.Fatalf("write request: %v", err)
	}

	want := "HTTP/1.1 200 OK\r\nContent-Length: 3\r\n\r\nbye"
	got := readN(t, pipe, len(want))
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after the reply drained")
	}
	if len(session.OutboundQueue) != 0 {
		t.Errorf("OutboundQueue has %d entries after shutdown, want 0", len(session.OutboundQueue))
	}
}

func TestFlowMalformedHeaderLine(t *testing.T) {
	pipe := flowtest.NewPipe()
	defer pipe.Close()

	proc := &echoProcessor{recycled: make(chan struct{})}
	session := NewSession(StatusRequest)
	flow := NewFlow(session, proc, pipe.Server, pipe.Server, true, nil)
	go flow.Serve()

	req := "GET / HTTP/1.1\r\nno-colon-here\r\n\r\n"
	if _, err := pipe.Client.Write([]byte(req)); err != nil {
		t.Fatalf("write request: %v", err)
	}

	prefix := readN(t, pipe, len("HTTP/1.1 400 "))
	if string(prefix) != "HTTP/1.1 400 " {
		t.Fatalf("got %q, want 400 status line prefix", prefix)
	}

	select {
	case <-proc.recycled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for recycle after 400")
	}
}

// countingTransport records shutdown/close calls so recycle's exactly-once
// contract is observable.
type countingTransport struct {
	reader    *bufio.Reader
	shutdowns int
	closes    int
}

func newCountingTransport() *countingTransport {
	return &countingTransport{reader: bufio.NewReader(strings.NewReader(""))}
}

func (c *countingTransport) Reader() *bufio.Reader       { return c.reader }
func (c *countingTransport) Write(p []byte) (int, error) { return len(p), nil }
func (c *countingTransport) SupportsShutdown() bool      { return true }
func (c *countingTransport) Shutdown() error             { c.shutdowns++; return nil }
func (c *countingTransport) Close() error                { c.closes++; return nil }

var _ transport.Transport = (*countingTransport)(nil)

func TestRecycleIdempotentAndAliasedCloseOnce(t *testing.T) {
	ct := newCountingTransport()
	session := NewSession(StatusRequest)
	session.OutboundQueue = append(session.OutboundQueue, []byte("stale"))
	flow := NewFlow(session, &echoProcessor{}, ct, ct, true, nil)

	flow.recycle()
	flow.recycle()

	if ct.closes != 1 {
		t.Errorf("aliased transport closed %d times, want 1", ct.closes)
	}
	if ct.shutdowns != 1 {
		t.Errorf("aliased transport shut down %d times, want 1", ct.shutdowns)
	}
	if !session.Free {
		t.Error("Free should be true after recycle")
	}
	if session.Status != StatusShutdown {
		t.Errorf("Status = %v, want shutdown", session.Status)
	}
	if len(session.OutboundQueue) != 0 {
		t.Errorf("OutboundQueue has %d entries after recycle, want 0", len(session.OutboundQueue))
	}
}

func TestRecycleClosesDistinctHandlesOnceEach(t *testing.T) {
	in, out := newCountingTransport(), newCountingTransport()
	session := NewSession(StatusRequest)
	flow := NewFlow(session, &echoProcessor{}, in, out, false, nil)

	flow.recycle()
	flow.recycle()

	if in.closes != 1 || out.closes != 1 {
		t.Errorf("closes = in:%d out:%d, want 1 each", in.closes, out.closes)
	}
}

func TestSessionNegotiateSetsVaryAndContentType(t *testing.T) {
	session := NewSession(StatusRequest)
	session.Inbound.Set(hdr.Accept, "text/html;q=0.5, application/json")

	ok := session.Negotiate([]negotiate.Dimension{{
		InputHeader:  hdr.Accept,
		OutputHeader: hdr.ContentType,
		Supported:    []string{"application/json", "text/html"},
	}})
	if !ok {
		t.Fatal("Negotiate() = false, want true")
	}
	if got := session.Outbound.Get(hdr.ContentType); got != "application/json" {
		t.Errorf("negotiated Content-Type = %q, want application/json", got)
	}
	if got := session.Outbound.Get(hdr.Vary); got != hdr.Accept {
		t.Errorf("Vary = %q, want %q", got, hdr.Accept)
	}
}
