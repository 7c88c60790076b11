// Package identity is the local identity provider: argon2id password hashes
// for stored accounts and HS256 tokens that carry the verified email and
// display name of the caller.
package identity
