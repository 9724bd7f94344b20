package crypto

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"runtime"
)

// Fingerprint returns a short hex fingerprint of a public key.
//
// It hashes with SHA-256 and truncates to 8 bytes (16 hex chars).
func Fingerprint(pub PublicKey) string {
	sum := sha256.Sum256(pub[:])
	return hex.EncodeToString(sum[:8])
}

// SessionFingerprint identifies one exchange independently of which side
// computes it. Two operators who read the same value over another channel
// know no one sits between them.
func SessionFingerprint(a, b PublicKey) string {
	lo, hi := a, b
	if bytes.Compare(lo[:], hi[:]) > 0 {
		lo, hi = hi, lo
	}
	h := sha256.New()
	h.Write(lo[:])
	h.Write(hi[:])
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:10])
}

// Wipe zeroes the provided buffer. This is best-effort.
//
//go:noinline
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
