// Package jwt decodes, validates and signs session access tokens.
//
// Two layers live here. The codec ([ParseUnverified], [ValidateStructure],
// [Token.Info]) is side-effect free and never checks signatures: it is what the
// request path uses to decide whether a candidate token is worth sending to the
// core. The [Manager] signs and verifies tokens and is used by cores that mint
// tokens in-process.
//
// # Token versions
//
// Version 2 is the legacy format (userId, userData, expiryTime, timeCreated in
// milliseconds). Versions 3 and later are standard JWT payloads keyed by sub,
// exp and iat; version 4 adds tId and version 5 adds rsub. The version is read
// from the "version" JWT header; a token without one is treated as version 2.
package jwt
