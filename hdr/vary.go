package hdr

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// AddVary appends name to the outbound Vary header unless it is already
// present as a token (Vary is a comma-separated token list, so a naive
// string-append would risk duplicate entries across repeated negotiation
// dimensions).
func (h Header) AddVary(name string) {
	existing := h[Vary]
	if httpguts.HeaderValuesContainsToken(existing, name) {
		return
	}
	if len(existing) == 0 {
		h.Set(Vary, name)
		return
	}
	h.Set(Vary, strings.Join(append(existing, name), ", "))
}
