// Package token keeps bearer tokens out of logs.
//
// Tokens are never written in cleartext. Callers log a Fingerprint instead: a short digest that
// is stable per token, so two log lines can be correlated without revealing the credential.
//
// Environment:
//   - CODEMONITOR_TOKEN_HMAC_KEY: when set, fingerprints are HMAC-SHA256 keyed digests.
//     Otherwise plain SHA-256 is used.
package token
