/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package cookiejar

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/badu/flowhttp/hdr"
)

var (
	errIllegalCookieName = errors.New("flowhttp/cookiejar: invalid cookie name")
	errNoHostname        = errors.New("flowhttp/cookiejar: no host name available (only an IP address)")
	errMalformedDomain   = errors.New("flowhttp/cookiejar: Domain attribute is malformed")
	errIllegalDomain     = errors.New("flowhttp/cookiejar: illegal cookie domain attribute")
)

// Cookies implements the client-role half of RFC 6265: it returns the
// cookies to send in a request to u, sorted as RFC 6265 §5.4 requires
// (longer Path first, then earlier Creation first).
func (j *Jar) Cookies(u *url.URL) []*Cookie {
	return j.cookies(u, time.Now())
}

func (j *Jar) cookies(u *url.URL, now time.Time) []*Cookie {
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil
	}
	host, err := canonicalHost(u.Host)
	if err != nil {
		return nil
	}
	key := jarKey(host)

	j.mu.Lock()
	defer j.mu.Unlock()

	submap := j.entries[key]
	if submap == nil {
		return nil
	}

	https := u.Scheme == "https"
	path := u.Path
	if path == "" {
		path = "/"
	}

	var selected []cookieEntry
	var modified bool
	for id, e := range submap {
		if e.Persistent && !e.Expires.After(now) {
			delete(submap, id)
			modified = true
			continue
		}
		if !e.shouldSend(https, host, path) {
			continue
		}
		e.LastAccess = now
		submap[id] = e
		selected = append(selected, e)
	}
	if modified {
		if len(submap) == 0 {
			delete(j.entries, key)
		}
	}

	sortCookies(selected)
	cookies := make([]*Cookie, len(selected))
	for i, e := range selected {
		cookies[i] = &Cookie{Name: e.Name, Value: e.Value}
	}
	return cookies
}

// SetCookies implements the client-role half of RFC 6265: it stores the
// cookies received from u in j, subject to domain/path validity and the
// public-suffix "effective top-level domain" defense (RFC 6265bis §5.3).
func (j *Jar) SetCookies(u *url.URL, cookies []*Cookie) {
	j.setCookies(u, cookies, time.Now())
}

func (j *Jar) setCookies(u *url.URL, cookies []*Cookie, now time.Time) {
	if len(cookies) == 0 {
		return
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	host, err := canonicalHost(u.Host)
	if err != nil {
		return
	}
	key := jarKey(host)

	defPath := defaultPath(u.Path)

	j.mu.Lock()
	defer j.mu.Unlock()

	submap := j.entries[key]

	for _, c := range cookies {
		e, remove, err := j.newEntry(c, now, defPath, host)
		if err != nil {
			continue
		}
		id := e.id()
		switch {
		case remove:
			if submap != nil {
				delete(submap, id)
			}
			continue
		case submap == nil:
			submap = make(map[string]cookieEntry)
		}
		if old, ok := submap[id]; ok {
			e.Creation = old.Creation
			e.seqNum = old.seqNum
		} else {
			e.Creation = now
			e.seqNum = j.nextSeqNum
			j.nextSeqNum++
		}
		e.LastAccess = now
		submap[id] = e
	}

	if len(submap) == 0 {
		delete(j.entries, key)
		return
	}
	j.entries[key] = submap
}

// newEntry converts a wire Cookie into a cookieEntry, resolving its
// Domain/Path/HostOnly per RFC 6265 §5.3, and reports remove=true for a
// cookie that should instead delete any existing entry with the same id
// (an already-expired Expires, or a negative Max-Age).
func (j *Jar) newEntry(c *Cookie, now time.Time, defPath, host string) (e cookieEntry, remove bool, err error) {
	e.Name = c.Name
	if e.Name == "" || !isCookieNameValid(e.Name) {
		return e, false, errIllegalCookieName
	}
	e.Value = c.Value

	if c.Path == "" || c.Path[0] != '/' {
		e.Path = defPath
	} else {
		e.Path = c.Path
	}

	e.Domain, e.HostOnly, err = domainAndType(host, c.Domain)
	if err != nil {
		return e, false, err
	}

	e.Secure = c.Secure
	e.HttpOnly = c.HttpOnly

	switch {
	case c.MaxAge < 0:
		return e, true, nil
	case c.MaxAge > 0:
		e.Expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		e.Persistent = true
	case !c.Expires.IsZero():
		if !c.Expires.After(now) {
			return e, true, nil
		}
		e.Expires = c.Expires
		e.Persistent = true
	default:
		e.Expires = endOfTime
		e.Persistent = false
	}
	return e, false, nil
}

// endOfTime is the Expires a session (non-persistent) cookie carries
// internally; cookies() skips the expiry check for such entries because
// Persistent is false.
var endOfTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// defaultPath computes a request path's default cookie-path per RFC 6265
// §5.1.4.
func defaultPath(path string) string {
	if len(path) == 0 || path[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(path, "/")
	if i == 0 {
		return "/"
	}
	return path[:i]
}

// domainAndType determines the cookie's domain and whether it is
// host-only, per RFC 6265 §5.3 step 6.
func domainAndType(host, domain string) (string, bool, error) {
	if domain == "" {
		return host, true, nil
	}
	if isIP(host) {
		return "", false, errNoHostname
	}
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	if domain[0] == '.' {
		domain = domain[1:]
	}
	if len(domain) == 0 {
		return "", false, errMalformedDomain
	}
	if !isCookieDomainName(domain) {
		if canon, err := canonicalHost(domain); err == nil {
			domain = canon
		} else {
			return "", false, errMalformedDomain
		}
	}
	if domain[len(domain)-1] == '.' {
		return "", false, errMalformedDomain
	}
	if !isDomainOrSubdomain(host, domain) {
		return "", false, errIllegalDomain
	}
	if isDomainOrSubdomain(host, jarKey(domain)) && domain != host {
		return domain, false, nil
	}
	return host, true, nil
}

// sortCookies orders cookies per RFC 6265 §5.4: longer Path first,
// earlier Creation first, insertion order last.
func sortCookies(cookies []cookieEntry) {
	for i := 1; i < len(cookies); i++ {
		for j := i; j > 0 && cookieLess(cookies[j], cookies[j-1]); j-- {
			cookies[j], cookies[j-1] = cookies[j-1], cookies[j]
		}
	}
}

func cookieLess(a, b cookieEntry) bool {
	if len(a.Path) != len(b.Path) {
		return len(a.Path) > len(b.Path)
	}
	if !a.Creation.Equal(b.Creation) {
		return a.Creation.Before(b.Creation)
	}
	return a.seqNum < b.seqNum
}

// RequestHeader returns the Cookie header value flowhttp's SessionData
// would attach to a request for u, or the empty string if j has no
// matching cookies. Exposed so a client Processor can call it straight
// from Processor.Start without reaching into Cookies' slice shape.
func (j *Jar) RequestHeader(u *url.URL) string {
	cookies := j.Cookies(u)
	if len(cookies) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range cookies {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(c.Value)
	}
	return b.String()
}

// StoreResponseHeaders reads every Set-Cookie value out of h and stores
// the resulting cookies against u.
func (j *Jar) StoreResponseHeaders(u *url.URL, h hdr.Header) {
	j.SetCookies(u, readSetCookies(h))
}
