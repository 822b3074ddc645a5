// Package session persists server-side session records in Redis.
//
// A record is a versioned binary blob keyed by session handle. The current
// and parent refresh hashes sit at fixed offsets so refresh rotation can run
// as a single Lua compare-and-swap. Presenting the parent hash deletes the
// session and reports [ErrRefreshHashMismatch], which callers treat as token
// theft. An unrelated hash reports [ErrRefreshHashUnknown].
//
// Key layout (prefix defaults to "st"):
//
//	<prefix>:s:<handle>               session blob
//	<prefix>:u:<tenant>:<user>        set of handles for a user in a tenant
//	<prefix>:ut:<user>                set of tenants a user has sessions in
package session
