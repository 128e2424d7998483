// Package session owns the key material of one VOID link endpoint.
//
// A Manager holds the long-term Ed25519 identity, the handshake-scoped
// X25519 ephemeral pair and the derived session key. It runs the handshake
// state machine and performs every encryption and signature on outbound
// records, so no other package ever copies secret bytes out of it.
//
//	Idle/Locked/Active --PrepareHandshake--> HandshakeInit --MarkSent--> HandshakeWait
//	HandshakeInit/Wait --ProcessHandshakeResponse--> Active
//	any --WipeSession--> Idle, any --Lock--> Locked
//
// Session expiry is lazy: IsSessionActive wipes the session when the TTL
// has elapsed. There is no background timer.
package session
