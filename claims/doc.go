// Package claims implements session claims: values stored in the access
// token payload that are fetched server-side and checked by validators on
// protected routes.
//
// A [Claim] knows how to fetch its value and how to read and write it in a
// payload. A [Validator] is a predicate over a payload that can also ask for
// its claim to be refetched first (missing or stale values). Claims are
// registered by key in a [Registry]; the registry also carries the validators
// applied to every verified session.
//
// Built-in claims: email verification ("st-ev"), user roles ("st-role"),
// permissions ("st-perm") and multi-factor completion ("st-mfa").
package claims
