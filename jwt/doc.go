// Package jwt mints and verifies the session tokens handed out after a QR
// or code-exchange login. Tokens are stateless: validity is the signature
// plus exp/iss/aud checks.
package jwt
