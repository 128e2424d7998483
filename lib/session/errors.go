package session

import (
	"errors"
	"fmt"
)

// Session errors.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrIdentityNotLoaded    = errors.New("identity key not loaded")
	ErrAuthenticationFailed = errors.New("signature verification failed")
	ErrKeyAgreementFailed   = errors.New("key agreement produced a degenerate secret")
	ErrNoPendingHandshake   = errors.New("no handshake in progress")
	ErrNoActiveSession      = errors.New("no active session")
	ErrDecryptFailed        = errors.New("decryption failed")
	ErrBufferTooSmall       = errors.New("output buffer too small")
	ErrNonceReuse           = errors.New("nonce already used in this session")
	ErrSessionLocked        = errors.New("session locked by operator")
	// ErrStaleHandshake also matches ErrAuthenticationFailed.
	ErrStaleHandshake = fmt.Errorf("handshake not newer than the last accepted one: %w", ErrAuthenticationFailed)
)
