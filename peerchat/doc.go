// Package peerchat provides an ephemeral, forward-secret peer-to-peer chat.
//
// Two peers connect directly over TCP (or QUIC), exchange fresh X25519 public
// keys, derive a session key with SHA-256 and then exchange length-prefixed
// JSON frames whose text is sealed with XChaCha20-Poly1305. No long-term key
// exists, so nothing recorded on the wire can be decrypted once both
// processes forget the session.
//
// The subpackages hold the pieces: protocol (frames and errors), crypto,
// session (handshake), chat (the concurrent loop), transport, discovery,
// peerstore, transcript and metrics. Peer ties transport, handshake, logging
// and metrics together for applications.
package peerchat
