package flowhttp

// Processor is the pluggable collaborator a Flow invokes at defined
// transition points. A server-role implementation routes completed
// requests to handlers; a client-role implementation drives outbound
// requests and consumes replies. Processor implementations mutate only
// SessionData, never the Flow that invokes them; Flow observes state
// changes on each hook return.
type Processor interface {
	// Start is called once, when the session's Flow starts. It may seed
	// outbound headers (e.g. a client's default User-Agent) via session.
	Start(session *SessionData)

	// AfterHeaders is called once inbound headers are fully parsed (the
	// terminating blank line has been seen). It returns the next Status:
	// typically StatusContent when a body is expected, StatusProcessing
	// when none is, or StatusError to reject the message. A rejection
	// must queue its own reply (e.g. 100-Continue, or an error reply)
	// via session.Reply before returning.
	AfterHeaders(session *SessionData) Status

	// Handle is called once a complete inbound message is available. The
	// implementation must call session.Reply at least once in the server
	// role, or otherwise consume the completed exchange in the client
	// role.
	Handle(session *SessionData)

	// AfterProcessing is called after Handle, and again after each
	// successful write that completes while the session is still in
	// StatusProcessing. Returning
	// StatusRequest/StatusStatusLine continues the connection for
	// another message; returning StatusShutdown closes it once the
	// queue drains.
	AfterProcessing(session *SessionData) Status

	// Recycle is called from Flow.recycle so the Processor can release
	// any per-session resources it holds (cookie jars, trace hooks,
	// routing state).
	Recycle(session *SessionData)
}
