// Package settlement pushes admitted payments to the off-chain settlement
// gateway.
//
// The gateway accepts one JSON object per payment:
//
//	POST /api/v1/ingest
//	{"epoch_ts": 1700000000, "sat_id": 41377, "amount": 500, "asset_id": 1}
//
// sat_id is the seller named in the invoice. A 2xx answer means the payment
// was queued for settlement. The body of a successful answer may carry the
// chain block nonce that the ground station echoes back in the tunnel
// command.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-i2p/go-void/lib/bouncer"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

var log = logger.GetGoI2PLogger()

const (
	// IngestPath is the gateway endpoint for admitted payments.
	IngestPath = "/api/v1/ingest"
	// DefaultTimeout bounds a single ingest round trip.
	DefaultTimeout = 10 * time.Second
	// maxResponseBody caps how much of a gateway answer is read.
	maxResponseBody = 64 << 10
	userAgent       = "go-void/settlement"
)

var (
	ErrRejected   = errors.New("settlement gateway rejected payment")
	ErrNoEndpoint = errors.New("settlement gateway url not configured")
)

// Record is the settlement payload for one admitted payment.
type Record struct {
	EpochTS uint64 `json:"epoch_ts"`
	SatID   uint32 `json:"sat_id"`
	Amount  uint64 `json:"amount"`
	AssetID uint16 `json:"asset_id"`
}

// Confirmation is the optional body of a successful ingest answer.
type Confirmation struct {
	BlockNonce uint64 `json:"block_nonce"`
}

// FromAdmission builds the settlement payload for an admitted payment.
func FromAdmission(a *bouncer.Admission) Record {
	return Record{
		EpochTS: a.EpochTS,
		SatID:   a.SellerID,
		Amount:  a.Amount,
		AssetID: a.AssetID,
	}
}

// Sink receives admitted payments.
type Sink interface {
	Ingest(ctx context.Context, rec Record) (Confirmation, error)
}

// Client is a Sink backed by the HTTP gateway.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient returns a client for the gateway at baseURL. A zero timeout
// selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, ErrNoEndpoint
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: baseURL + IngestPath,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Endpoint returns the full ingest URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Ingest posts rec to the gateway. Any non-2xx status wraps ErrRejected.
func (c *Client) Ingest(ctx context.Context, rec Record) (Confirmation, error) {
	var conf Confirmation

	body, err := json.Marshal(rec)
	if err != nil {
		return conf, oops.Errorf("failed to encode settlement record: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return conf, oops.Errorf("failed to build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		log.WithFields(logger.Fields{
			"at":       "Client.Ingest",
			"endpoint": c.endpoint,
		}).WithError(err).Warn("settlement gateway unreachable")
		return conf, oops.Errorf("ingest request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return conf, oops.Errorf("failed to read ingest response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithFields(logger.Fields{
			"at":     "Client.Ingest",
			"status": resp.StatusCode,
			"sat_id": rec.SatID,
			"amount": rec.Amount,
		}).Warn("settlement rejected")
		return conf, oops.Wrapf(ErrRejected, "gateway answered %s", resp.Status)
	}

	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &conf); err != nil {
			log.WithFields(logger.Fields{
				"at":     "Client.Ingest",
				"status": resp.StatusCode,
			}).WithError(err).Debug("ignoring unparseable ingest response")
			conf = Confirmation{}
		}
	}

	log.WithFields(logger.Fields{
		"at":          "Client.Ingest",
		"sat_id":      rec.SatID,
		"amount":      rec.Amount,
		"asset_id":    rec.AssetID,
		"block_nonce": conf.BlockNonce,
	}).Debug("payment queued for settlement")
	return conf, nil
}
