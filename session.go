package flowhttp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/badu/flowhttp/hdr"
	"github.com/badu/flowhttp/negotiate"
	"github.com/badu/flowhttp/trace"
	"github.com/badu/flowhttp/transport"
)

// DefaultMaxContentLength caps the declared body size: a Content-Length
// above it is rejected with 413 before any body bytes are read.
const DefaultMaxContentLength = 10 << 20

// Version is an HTTP major.minor version pair.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string { return fmt.Sprintf("HTTP/%d.%d", v.Major, v.Minor) }

// RequestLine is a parsed "METHOD resource HTTP/M.m" first line.
type RequestLine struct {
	Method   string
	Resource string
	Version  Version
}

// StatusLine is a parsed "HTTP/M.m code reason" first line.
type StatusLine struct {
	Version Version
	Code    int
	Reason  string
}

// SessionData holds all per-connection mutable state. Every method on it
// is pure and I/O-free; Flow is the sole driver of the state transitions
// between them.
type SessionData struct {
	Status Status

	InboundRequest *RequestLine
	InboundStatus  *StatusLine

	Inbound  hdr.Header
	Outbound hdr.Header

	Content          []byte
	ContentLength    int
	MaxContentLength int

	OutboundQueue [][]byte
	WritePending  bool

	CloseAfterSend bool
	Free           bool
	IsHEAD         bool

	Requests uint64
	Replies  uint64
	Errors   uint64

	Negotiated hdr.Header

	// DefaultRequestHeaders seeds every Request() call (e.g. a client's
	// User-Agent); set once at construction, per Design Notes §9 ("pass
	// explicitly into a client constructor rather than reading ambient
	// state").
	DefaultRequestHeaders hdr.Header

	// Trace, if set by the owning Flow, receives OnReplyQueued events.
	// Nil by default; firing a hook is not I/O, so this does not affect
	// SessionData's otherwise I/O-free contract.
	Trace *trace.Hooks
}

// NewSession constructs a session in the given starting Status
// (StatusRequest for a server role, StatusStatusLine for a client role).
func NewSession(start Status) *SessionData {
	return &SessionData{
		Status:           start,
		Inbound:          hdr.Header{},
		Outbound:         hdr.Header{},
		Negotiated:       hdr.Header{},
		MaxContentLength: DefaultMaxContentLength,
	}
}

// resetForNextMessage clears per-message parse/negotiation state when the
// session loops back to StatusRequest/StatusStatusLine for another message
// on the same connection. OutboundQueue, WritePending, CloseAfterSend,
// and the counters/Free are left untouched: a reply generated for the
// message just finished may still be draining, and Free/counters are
// cumulative across the session's whole lifetime. IsHEAD likewise stays
// until ParseRequestLine re-derives it, since the previous reply may not
// have been generated yet.
func (s *SessionData) resetForNextMessage(start Status) {
	s.Status = start
	s.InboundRequest = nil
	s.InboundStatus = nil
	s.Inbound = hdr.Header{}
	s.Outbound = hdr.Header{}
	s.Content = nil
	s.ContentLength = 0
	s.Negotiated = hdr.Header{}
}

// ParseRequestLine parses line ("METHOD resource HTTP/M.m") into
// InboundRequest. maxLen, if positive, bounds the line's length.
func (s *SessionData) ParseRequestLine(line string, maxLen int) error {
	if maxLen > 0 && len(line) > maxLen {
		return ErrRequestLineTooLong
	}
	method, rest, ok := strings.Cut(line, " ")
	if !ok {
		return ErrMalformedFirstLine
	}
	resource, proto, ok := strings.Cut(rest, " ")
	if !ok {
		return ErrMalformedFirstLine
	}
	version, err := parseVersion(proto)
	if err != nil {
		return err
	}
	if method == "" || resource == "" {
		return ErrMalformedFirstLine
	}
	s.InboundRequest = &RequestLine{Method: method, Resource: resource, Version: version}
	s.IsHEAD = method == "HEAD"
	s.Requests++
	return nil
}

// ParseStatusLine parses line ("HTTP/M.m code reason") into InboundStatus
// (client role).
func (s *SessionData) ParseStatusLine(line string) error {
	proto, rest, ok := strings.Cut(line, " ")
	if !ok {
		return ErrMalformedFirstLine
	}
	version, err := parseVersion(proto)
	if err != nil {
		return err
	}
	codeStr, reason, ok := strings.Cut(rest, " ")
	if !ok {
		codeStr, reason = rest, ""
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return ErrMalformedFirstLine
	}
	s.InboundStatus = &StatusLine{Version: version, Code: code, Reason: reason}
	return nil
}

func parseVersion(proto string) (Version, error) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(proto, prefix) {
		return Version{}, ErrMalformedFirstLine
	}
	majorStr, minorStr, ok := strings.Cut(proto[len(prefix):], ".")
	if !ok {
		return Version{}, ErrMalformedFirstLine
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Version{}, ErrMalformedFirstLine
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return Version{}, ErrMalformedFirstLine
	}
	return Version{Major: major, Minor: minor}, nil
}

// AbsorbHeaderLine absorbs one header line (already stripped of its
// trailing CRLF) into Inbound. complete is true iff line is the blank line
// terminating the header block.
func (s *SessionData) AbsorbHeaderLine(line string) (complete bool, err error) {
	if line == "" {
		return true, nil
	}
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return false, ErrMalformedHeaderLine
	}
	name = hdr.TrimString(name)
	value = hdr.TrimString(value)
	if !hdr.ValidHeaderFieldName(name) || !hdr.ValidHeaderFieldValue(value) {
		return false, ErrMalformedHeaderLine
	}
	s.Inbound.Add(name, value)
	if strings.EqualFold(name, hdr.ContentLength) {
		n, convErr := strconv.Atoi(value)
		if convErr != nil || n < 0 {
			return false, ErrMalformedHeaderLine
		}
		s.ContentLength = n
	}
	if strings.EqualFold(name, hdr.Host) && !transport.ValidHostHeader(value) {
		return false, ErrMalformedHeaderLine
	}
	return false, nil
}

// RemainingBytes is contentLength - len(content), never negative.
func (s *SessionData) RemainingBytes() int {
	remaining := s.ContentLength - len(s.Content)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// AppendContent appends b to Content. Invariant: len(Content) <= ContentLength.
func (s *SessionData) AppendContent(b []byte) {
	if len(b) > s.RemainingBytes() {
		b = b[:s.RemainingBytes()]
	}
	s.Content = append(s.Content, b...)
}

// GenerateReply constructs a complete HTTP/1.1 response: the
// body is omitted for informational statuses and for HEAD requests;
// Content-Length is set on every non-informational reply (including HEAD);
// Connection: close is set for status >= 400; header precedence is
// computed -> extraHeaders -> Outbound.
func (s *SessionData) GenerateReply(status int, body []byte, extraHeaders hdr.Header) []byte {
	out := hdr.Header{}
	if status >= 200 {
		out.Set(hdr.ContentLength, strconv.Itoa(len(body)))
	}
	if status >= 400 {
		out.Set(hdr.Connection, "close")
	}
	for k, vv := range extraHeaders {
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = append([]string(nil), vv...)
	}
	for k, vv := range s.Outbound {
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = append([]string(nil), vv...)
	}

	omitBody := status < 200 || s.IsHEAD

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, ReasonPhrase(status))
	out.Write(&b)
	b.WriteString("\r\n")
	if !omitBody {
		b.Write(body)
	}
	return []byte(b.String())
}

// Reply queues a reply for status/body/extraHeaders. A status >= 400
// latches CloseAfterSend.
func (s *SessionData) Reply(status int, body []byte, extraHeaders hdr.Header) {
	s.OutboundQueue = append(s.OutboundQueue, s.GenerateReply(status, body, extraHeaders))
	if status >= 400 {
		s.CloseAfterSend = true
	}
	s.Replies++
	s.Trace.FireReplyQueued(status, len(body))
}

// Request serializes and queues a client-role outbound request, merging
// DefaultRequestHeaders under the caller's headers.
func (s *SessionData) Request(method, resource string, headers hdr.Header, body []byte) []byte {
	out := hdr.Header{}
	for k, vv := range headers {
		out[k] = append([]string(nil), vv...)
	}
	for k, vv := range s.DefaultRequestHeaders {
		if _, exists := out[k]; exists {
			continue
		}
		out[k] = append([]string(nil), vv...)
	}
	if out.Get(hdr.ContentLength) == "" && len(body) > 0 {
		out.Set(hdr.ContentLength, strconv.Itoa(len(body)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", method, resource)
	out.Write(&b)
	b.WriteString("\r\n")
	b.Write(body)

	msg := []byte(b.String())
	s.OutboundQueue = append(s.OutboundQueue, msg)
	s.IsHEAD = method == "HEAD"
	s.Requests++
	return msg
}

// NextStatus is a convenience a Processor.AfterProcessing implementation
// can delegate to: continue with continueWith unless CloseAfterSend was
// latched (by an error-status Reply, or by the caller otherwise setting
// it) and the outbound queue has drained, in which case the connection
// shuts down. While replies are still queued the continue status is
// returned so the flow keeps draining; the write pipeline recycles once
// the queue empties.
func (s *SessionData) NextStatus(continueWith Status) Status {
	if s.CloseAfterSend && len(s.OutboundQueue) == 0 {
		return StatusShutdown
	}
	return continueWith
}

// PopOutbound detaches and returns the head of OutboundQueue, if any. The
// caller must detach before issuing the write so a later send observes
// the new head.
func (s *SessionData) PopOutbound() ([]byte, bool) {
	if len(s.OutboundQueue) == 0 {
		return nil, false
	}
	msg := s.OutboundQueue[0]
	s.OutboundQueue = s.OutboundQueue[1:]
	return msg, true
}

// Negotiate resolves each dimension against Inbound, recording the winner
// into Negotiated, appending dim.InputHeader to the outbound Vary, and (if
// dim.OutputHeader is set) writing the winner to Outbound. It returns
// false iff any dimension produced no acceptable value.
func (s *SessionData) Negotiate(dims []negotiate.Dimension) bool {
	ok := true
	for _, dim := range dims {
		best, matched := negotiate.Best(s.Inbound.Get(dim.InputHeader), dim.Supported)
		if !matched {
			ok = false
			continue
		}
		s.Negotiated.Set(dim.InputHeader, best)
		s.Outbound.AddVary(dim.InputHeader)
		if dim.OutputHeader != "" {
			s.Outbound.Set(dim.OutputHeader, best)
		}
	}
	return ok
}

// ignoredMethods are excluded from Trigger405's "does this resource exist
// under some other method" check, matching common server-framework
// convention (OPTIONS/TRACE are handled generically, not per-route).
var ignoredMethods = map[string]bool{"OPTIONS": true, "TRACE": true}

// Trigger405 reports whether allowedMethods contains any method outside
// the ignored set, disambiguating 404 (no route at all) from 405 (route
// exists, wrong method).
func (s *SessionData) Trigger405(allowedMethods []string) bool {
	for _, m := range allowedMethods {
		if !ignoredMethods[m] {
			return true
		}
	}
	return false
}
