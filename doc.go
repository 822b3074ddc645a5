// Package goSession runs the session lifecycle of an HTTP API: creating
// sessions, verifying access tokens, rotating refresh tokens and validating
// claims carried in the access token payload.
//
// The engine never stores sessions itself. Persistence, signing and theft
// detection live behind [CoreClient]; see the core/rediscore and
// core/httpcore packages for the two shipped implementations.
//
// # Transport
//
// Tokens travel as cookies (sAccessToken, sRefreshToken) or headers
// (Authorization: Bearer on input, st-access-token / st-refresh-token on
// output). A front-token header carries a base64 JSON summary of the access
// token for client code. Header tokens take precedence over cookies.
//
// # Customisation
//
// Every operation reaching the core goes through [Functions]. Wrap it with
// [Interceptor] values passed to [Builder.WithInterceptors].
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build].
package goSession
