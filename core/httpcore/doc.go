// Package httpcore implements core.Client against a remote authentication
// core speaking JSON over HTTP.
//
// Every call is a client span named "session.core <operation>". The trace
// context is injected into the outgoing request headers so the core can
// continue the trace.
package httpcore
