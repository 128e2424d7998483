// Package bridge runs the ground side of a VOID link.
//
// The radio modem speaks newline-terminated text frames. Each frame is a
// tag followed by the hex encoding of exactly one record:
//
//	HANDSHAKE_TX:<hex>   satellite -> ground   Handshake from the buyer
//	INVOICE:<hex>        satellite -> ground   cleartext Invoice, logged
//	PACKET_B:<hex>       satellite -> ground   encrypted Payment
//	PACKET_D:<hex>       satellite -> ground   Delivery carrying a Receipt
//	HANDSHAKE_ACK:<hex>  ground -> satellite   signed Handshake reply
//	ACK_DOWNLINK:<hex>   ground -> satellite   Ack with encrypted tunnel
//
// Operator commands are single words: H triggers a handshake on the
// satellite and ACK_BUY approves a pending invoice.
//
// A Bridge owns no key material. Session changes go through the
// session.Manager it is given, so they share the manager's lock.
package bridge

import "github.com/go-i2p/logger"

var log = logger.GetGoI2PLogger()
