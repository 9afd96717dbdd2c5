// Package auth authenticates requests to the substitute backend.
//
// Two credentials are understood: the static token a dzero client sends in
// its "token" header, checked against SHA-256 hashes, and an HS256 JWT
// bearer token minted with Signer. Build assembles both from a Config, and
// Middleware applies the result to a chi or net/http handler chain.
package auth
