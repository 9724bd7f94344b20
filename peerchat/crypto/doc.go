// Package crypto provides the cryptographic primitives behind a peerchat session.
//
// Contents:
//   - Ephemeral X25519 keypairs whose private half is used once (GenerateKeyPair, KeyPair.SharedKey)
//   - Session key derivation: SHA-256 over the X25519 shared point (DeriveSharedKey)
//   - XChaCha20-Poly1305 AEAD with random 24-byte nonces (Encrypt, Decrypt)
//   - Base64 public key codec (EncodePublicKey, DecodePublicKey)
//   - Short fingerprints for display (Fingerprint, SessionFingerprint)
package crypto
