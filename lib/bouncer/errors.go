package bouncer

import (
	"errors"
	"fmt"

	"github.com/go-i2p/go-void/lib/session"
)

// Bouncer errors.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrReplay             = errors.New("replayed payment")
	ErrSanitizationFailed = errors.New("payment failed sanitization")
	// ErrUnknownSender also matches session.ErrAuthenticationFailed.
	ErrUnknownSender = fmt.Errorf("no trusted key for sender: %w", session.ErrAuthenticationFailed)
)
