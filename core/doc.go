// Package core defines the contract between the session engine and an
// authentication core: the service that mints, verifies, rotates and revokes
// session tokens.
//
// Every operation reports a [Status] instead of an error for expected
// outcomes (unauthorised, try refresh, token theft). Errors are reserved for
// transport and backend failures. The engine maps statuses 1:1 to its own
// error types and never retries.
//
// Implementations: core/rediscore (in-process, Redis-backed) and
// core/httpcore (remote core over HTTP).
package core
