package transport

import "golang.org/x/net/http/httpguts"

// ValidHostHeader reports whether h satisfies RFC 7230 §5.4's
// authority-form grammar. Flow rejects a request carrying an invalid Host
// header with a 400 rather than passing it through to a Processor.
func ValidHostHeader(h string) bool {
	return httpguts.ValidHostHeader(h)
}
