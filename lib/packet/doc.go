// Package packet implements the VOID record wire format.
//
// Every record is a fixed-size, byte-packed buffer made of a header and a
// body:
//
//	+---------------------------+---------------------------------------+
//	| header (big-endian)       | body (little-endian)                  |
//	+---------------------------+---------------------------------------+
//
// The enterprise tier uses the bare 6-byte CCSDS primary header. The
// community tier wraps the same header in a 4-byte sync word and 4 bytes of
// zero padding (14 bytes total). A Codec is bound to exactly one tier.
//
// Bodies are described by per-kind field tables (name, offset, size). The
// encoder and decoder only touch bytes through those tables, so the byte
// order contract is explicit per field and signed prefixes and checksum
// offsets are derived from the same source.
//
// Record kinds:
//   - Handshake (H): ephemeral key exchange
//   - Invoice (A): cleartext price quote
//   - Payment (B): encrypted, signed payment
//   - TunnelData: encrypted unlock command carried inside an Ack
//   - Ack: settlement acknowledgement and relay instructions
//   - Receipt (C): execution confirmation
//   - Delivery (D): downlink-wrapped receipt
//   - Heartbeat (L): housekeeping telemetry
package packet
