/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package cookiejar

import (
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/badu/flowhttp/hdr"
)

// isDomainOrSubdomain reports whether sub is a subdomain (or exact match)
// of the parent domain. Both domains must already be in canonical form.
func isDomainOrSubdomain(sub, parent string) bool {
	if sub == parent {
		return true
	}
	if !strings.HasSuffix(sub, parent) {
		return false
	}
	return sub[len(sub)-len(parent)-1] == '.'
}

// hasDotSuffix reports whether s ends in "."+suffix.
func hasDotSuffix(s, suffix string) bool {
	return len(s) > len(suffix) && s[len(s)-len(suffix)-1] == '.' && s[len(s)-len(suffix):] == suffix
}

// hasPort reports whether host contains a port number. host may be a
// hostname, an IPv4, or an IPv6 address.
func hasPort(host string) bool {
	colons := strings.Count(host, ":")
	if colons == 0 {
		return false
	}
	if colons == 1 {
		return true
	}
	return host[0] == '[' && strings.Contains(host, "]:")
}

// isIP reports whether host is an IP address.
func isIP(host string) bool {
	return net.ParseIP(host) != nil
}

// canonicalHost strips a port from host, if present, and lowercases and
// ASCII-folds the result via idna, so an IDN host compares equal to its
// punycode form on the wire.
func canonicalHost(host string) (string, error) {
	var err error
	host = strings.ToLower(host)
	if hasPort(host) {
		host, _, err = net.SplitHostPort(host)
		if err != nil {
			return "", err
		}
	}
	host = strings.TrimSuffix(host, ".")
	if isIP(host) {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}

// jarKey returns the registrable-domain key under which cookies for host
// are grouped, using the public suffix list to find the boundary between
// a registrable domain and its public suffix (RFC 6265bis §5.3).
func jarKey(host string) string {
	if isIP(host) {
		return host
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	if suffix == host {
		return host
	}
	i := len(host) - len(suffix)
	if i <= 0 || host[i-1] != '.' {
		return host
	}
	prevDot := strings.LastIndex(host[:i-1], ".")
	return host[prevDot+1:]
}

//===========================
// Cookies
//===========================

// readCookies parses all Cookie request header values from h, returning
// the successfully parsed cookies. If filter is non-empty, only cookies
// named filter are returned.
func readCookies(h hdr.Header, filter string) []*Cookie {
	var result []*Cookie
	lines, ok := h[hdr.CookieHeader]
	if !ok {
		return result
	}
	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), ";")
		if len(parts) == 1 && parts[0] == "" {
			continue
		}
		for i := 0; i < len(parts); i++ {
			parts[i] = strings.TrimSpace(parts[i])
			if len(parts[i]) == 0 {
				continue
			}
			name, val := parts[i], ""
			if j := strings.IndexByte(name, '='); j >= 0 {
				name, val = name[:j], name[j+1:]
			}
			if !isCookieNameValid(name) {
				continue
			}
			if filter != "" && filter != name {
				continue
			}
			val, ok := parseCookieValue(val, true)
			if !ok {
				continue
			}
			result = append(result, &Cookie{Name: name, Value: val})
		}
	}
	return result
}

// readSetCookies parses all Set-Cookie response header values from h.
func readSetCookies(h hdr.Header) []*Cookie {
	lines := h[hdr.SetCookieHeader]
	if len(lines) == 0 {
		return nil
	}
	cookies := make([]*Cookie, 0, len(lines))
	for _, line := range lines {
		parts := strings.Split(strings.TrimSpace(line), ";")
		if len(parts) == 1 && parts[0] == "" {
			continue
		}
		parts[0] = strings.TrimSpace(parts[0])
		j := strings.IndexByte(parts[0], '=')
		if j < 0 {
			continue
		}
		name, value := parts[0][:j], parts[0][j+1:]
		if !isCookieNameValid(name) {
			continue
		}
		value, ok := parseCookieValue(value, true)
		if !ok {
			continue
		}
		c := &Cookie{Name: name, Value: value, Raw: line}
		for i := 1; i < len(parts); i++ {
			parts[i] = strings.TrimSpace(parts[i])
			if len(parts[i]) == 0 {
				continue
			}
			attr, val := parts[i], ""
			if j := strings.IndexByte(attr, '='); j >= 0 {
				attr, val = attr[:j], attr[j+1:]
			}
			lowerAttr := strings.ToLower(attr)
			val, ok = parseCookieValue(val, false)
			if !ok {
				c.Unparsed = append(c.Unparsed, parts[i])
				continue
			}
			switch lowerAttr {
			case "secure":
				c.Secure = true
				continue
			case "httponly":
				c.HttpOnly = true
				continue
			case "domain":
				c.Domain = val
				continue
			case "max-age":
				secs, err := strconv.Atoi(val)
				if err != nil || (secs != 0 && val[0] == '0') {
					break
				}
				if secs <= 0 {
					secs = -1
				}
				c.MaxAge = secs
				continue
			case "expires":
				c.RawExpires = val
				exptime, err := time.Parse(time.RFC1123, val)
				if err != nil {
					exptime, err = time.Parse("Mon, 02-Jan-2006 15:04:05 MST", val)
					if err != nil {
						c.Expires = time.Time{}
						break
					}
				}
				c.Expires = exptime.UTC()
				continue
			case "path":
				c.Path = val
				continue
			}
			c.Unparsed = append(c.Unparsed, parts[i])
		}
		cookies = append(cookies, c)
	}
	return cookies
}

func parseCookieValue(raw string, allowDoubleQuote bool) (string, bool) {
	if allowDoubleQuote && len(raw) > 1 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		raw = raw[1 : len(raw)-1]
	}
	for i := 0; i < len(raw); i++ {
		if !validCookieValueByte(raw[i]) {
			return "", false
		}
	}
	return raw, true
}

// validCookieValueByte reports whether b may appear in a cookie value:
// RFC 6265 §4.1.1's cookie-octet plus space and comma, which
// sanitizeCookieValue handles by double-quoting the value.
func validCookieValueByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != '"' && b != ';' && b != '\\'
}

// isCookieNameValid reports whether name is a valid RFC 6265 cookie-name
// (an RFC 7230 token).
func isCookieNameValid(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !hdr.IsTokenRune(r) {
			return false
		}
	}
	return true
}

// sanitizeCookieName strips bytes that would break Cookie header framing
// out of a cookie name instead of rejecting it outright, matching the
// leniency Set-Cookie serialization (as opposed to parsing) affords.
func sanitizeCookieName(name string) string {
	return strings.NewReplacer("\n", "-", "\r", "-", ";", "-", "=", "-").Replace(name)
}

// sanitizeCookieValue drops bytes validCookieValueByte rejects and
// double-quotes the result if it contains a space or a comma.
func sanitizeCookieValue(v string) string {
	v = sanitizeOrWarn("Cookie.Value", validCookieValueByte, v)
	if len(v) == 0 {
		return v
	}
	if strings.IndexByte(v, ' ') >= 0 || strings.IndexByte(v, ',') >= 0 {
		return `"` + v + `"`
	}
	return v
}

func sanitizeOrWarn(field string, valid func(byte) bool, v string) string {
	ok := true
	for i := 0; i < len(v); i++ {
		if valid(v[i]) {
			continue
		}
		ok = false
		break
	}
	if ok {
		return v
	}
	log.Printf("flowhttp/cookiejar: invalid byte in %s; dropping invalid bytes", field)
	buf := make([]byte, 0, len(v))
	for i := 0; i < len(v); i++ {
		if b := v[i]; valid(b) {
			buf = append(buf, b)
		}
	}
	return string(buf)
}

// sanitizeCookiePath strips bytes invalid in a Path attribute (RFC 6265
// §4.1.1's path-value excludes CTL and ";").
func sanitizeCookiePath(v string) string {
	return sanitizeOrWarn("Cookie.Path", validCookiePathByte, v)
}

func validCookiePathByte(b byte) bool {
	return 0x20 <= b && b < 0x7f && b != ';'
}

// validCookieDomain reports whether v is usable as a Domain attribute: a
// name isCookieDomainName accepts, or an IPv4 literal (IPv6 literals are
// rejected).
func validCookieDomain(v string) bool {
	if isCookieDomainName(v) {
		return true
	}
	if net.ParseIP(v) != nil && !strings.Contains(v, ":") {
		return true
	}
	return false
}

// isCookieDomainName reports whether s looks like a valid domain name,
// ported from the net/http cookie package's own domain-name grammar
// check (letters, digits, '_', '-', '.').
func isCookieDomainName(s string) bool {
	if len(s) == 0 {
		return false
	}
	if len(s) > 255 {
		return false
	}
	s = strings.TrimSuffix(s, ".")
	last := byte('.')
	nonNumeric := false
	partlen := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		default:
			return false
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || c == '_':
			nonNumeric = true
			partlen++
		case '0' <= c && c <= '9':
			partlen++
		case c == '-':
			if last == '.' {
				return false
			}
			partlen++
			nonNumeric = true
		case c == '.':
			if last == '.' || last == '-' {
				return false
			}
			if partlen > 63 || partlen == 0 {
				return false
			}
			partlen = 0
		}
		last = c
	}
	if last == '-' || partlen > 63 {
		return false
	}
	return nonNumeric
}

// validCookieExpires reports whether t is usable as an Expires attribute.
func validCookieExpires(t time.Time) bool {
	return t.Year() >= 1601
}
