/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package transport

import "fmt"

// tlsHandshakeTimeoutError and readFromServerError are small error types
// carrying Timeout/Temporary classification for transport-level failures.
type tlsHandshakeTimeoutError struct{}

func (tlsHandshakeTimeoutError) Timeout() bool   { return true }
func (tlsHandshakeTimeoutError) Temporary() bool { return true }
func (tlsHandshakeTimeoutError) Error() string   { return "flowhttp/transport: TLS handshake timeout" }

// ErrTLSHandshakeTimeout is returned by Socket dialing helpers when a TLS
// handshake does not complete within the configured deadline.
var ErrTLSHandshakeTimeout error = tlsHandshakeTimeoutError{}

type readFromServerError struct{ err error }

func (e readFromServerError) Error() string {
	return fmt.Sprintf("flowhttp/transport: failed to read from server: %v", e.err)
}

func (e readFromServerError) Unwrap() error { return e.err }

// WrapReadError classifies a read failure from the remote side of a
// client-role connection so callers can distinguish it from a local parse
// error.
func WrapReadError(err error) error {
	if err == nil {
		return nil
	}
	return readFromServerError{err: err}
}
