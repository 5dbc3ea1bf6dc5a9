package app

import (
	"errors"

	"github.com/naval-1647/CodeMonitor/cmd/security/token"
)

// ValidateSecurityConfig enforces the token policy at startup.
//
// Token fingerprints in logs fall back to plain SHA-256 when no key is configured. With
// RequireTokenHMAC the fallback is refused.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.RequireTokenHMAC {
		return nil
	}

	// The key is used as raw bytes, so the minimum is measured in bytes.
	if _, err := token.HMACKeyFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			return errors.New("security policy: CODEMONITOR_REQUIRE_TOKEN_HMAC=true but CODEMONITOR_TOKEN_HMAC_KEY is missing")
		case errors.Is(err, token.ErrHMACKeyTooShort):
			return errors.New("security policy: CODEMONITOR_REQUIRE_TOKEN_HMAC=true but CODEMONITOR_TOKEN_HMAC_KEY is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}
