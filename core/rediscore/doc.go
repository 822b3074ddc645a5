// Package rediscore is a [core.Client] that keeps sessions in Redis and mints
// signed access tokens locally.
//
// Refresh tokens are opaque: a session handle plus a random secret. Only the
// SHA-256 of the secret is stored. Rotation is a compare-and-swap in a Lua
// script; presenting a superseded secret deletes the session and reports
// token theft.
package rediscore
