/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package flowhttp

// Status represents the phase of a session's parse/process/reply cycle:
// the message-framing state machine a Flow drives a session through.
type Status int

const (
	// StatusRequest awaits the first line of an inbound request (server role).
	StatusRequest Status = iota

	// StatusStatusLine awaits the first line of an inbound status reply (client role).
	StatusStatusLine

	// StatusHeader awaits additional header lines or the terminating blank line.
	StatusHeader

	// StatusContent awaits body bytes up to contentLength.
	StatusContent

	// StatusProcessing means the Processor is handling the completed message.
	StatusProcessing

	// StatusError means a parse or protocol error occurred.
	StatusError

	// StatusShutdown means the session has been recycled.
	StatusShutdown
)

var statusName = map[Status]string{
	StatusRequest:    "request",
	StatusStatusLine: "status-line",
	StatusHeader:     "header",
	StatusContent:    "content",
	StatusProcessing: "processing",
	StatusError:      "error",
	StatusShutdown:   "shutdown",
}

func (s Status) String() string {
	if name, ok := statusName[s]; ok {
		return name
	}
	return "unknown"
}
