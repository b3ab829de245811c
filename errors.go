package flowhttp

import "errors"

// Parse/protocol errors a Flow's state machine can produce. The parse
// errors are returned by SessionData's ParseRequestLine, ParseStatusLine
// and AbsorbHeaderLine. None of them escapes a Flow callback: Flow picks
// the canned error reply from its own record of the failure kind and uses
// these values only in its log lines.
var (
	ErrMalformedFirstLine  = errors.New("flowhttp: malformed request or status line")
	ErrMalformedHeaderLine = errors.New("flowhttp: malformed header line")
	ErrRequestLineTooLong  = errors.New("flowhttp: request line exceeds limit")
	ErrUnsupportedVersion  = errors.New("flowhttp: unsupported HTTP major version")
	ErrPayloadTooLarge     = errors.New("flowhttp: declared Content-Length exceeds MaxContentLength")
	ErrChunkedUnsupported  = errors.New("flowhttp: chunked transfer encoding is not supported")
)

var reasonPhrases = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	202: "Accepted",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	505: "HTTP Version Not Supported",
}

// ReasonPhrase returns the standard reason phrase for an HTTP status code,
// falling back to a generic phrase for status codes this module's error
// helper never needs to produce itself but a Processor might still reply
// with.
func ReasonPhrase(status int) string {
	if phrase, ok := reasonPhrases[status]; ok {
		return phrase
	}
	switch {
	case status < 200:
		return "Informational"
	case status < 300:
		return "Success"
	case status < 400:
		return "Redirection"
	case status < 500:
		return "Client Error"
	default:
		return "Server Error"
	}
}

// cannedErrorBody renders a small "Bad Request[: detail]"-style
// plain-text body for the canned 400/405/413/501/505 replies.
func cannedErrorBody(status int, detail string) []byte {
	phrase := ReasonPhrase(status)
	if detail == "" {
		return []byte(phrase)
	}
	return []byte(phrase + ": " + detail)
}
