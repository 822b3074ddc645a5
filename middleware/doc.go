// Package middleware adapts goSession.Engine to net/http.
//
// # Handlers
//
//   - [VerifySession] verifies the request's session and stores it in the context.
//   - [RequireDatabaseCheck] is VerifySession with a revocation lookup on every request.
//   - [OptionalSession] lets anonymous requests through.
//   - [RefreshHandler] rotates the session's tokens.
//   - [SignOutHandler] revokes the session and clears its tokens.
//
// Errors are written by [WriteError]. The engine has already removed the
// client's tokens when an error requires it, so this package only maps
// errors to status codes and bodies.
package middleware
