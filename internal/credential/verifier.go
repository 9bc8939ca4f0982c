package credential

import (
	"crypto/hmac"
	"crypto/sha256"
)

// HMACVerifier verifies challenge responses as HMAC-SHA256 over the
// challenge, keyed by the credential's registered secret. This models an
// authenticator that shares a symmetric key at registration; swapping in an
// asymmetric scheme only replaces this type.
type HMACVerifier struct{}

var _ Verifier = HMACVerifier{}

// Sign computes the response an authenticator holding key would produce.
// Exposed for clients and tests.
func Sign(key, challenge []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(challenge)
	return mac.Sum(nil)
}

func (HMACVerifier) Verify(cred *Credential, challenge, signature []byte, counter uint32) error {
	expected := Sign(cred.PublicKey, challenge)
	if !hmac.Equal(expected, signature) {
		return ErrVerificationFailed
	}
	// A counter at or below the stored value means a cloned or replayed
	// authenticator.
	if counter <= cred.SignCount {
		return ErrVerificationFailed
	}
	return nil
}
