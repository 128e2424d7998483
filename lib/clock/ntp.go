package clock

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// NTPClient is the subset of beevik/ntp the NTP clock depends on.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

// DefaultNTPClient queries real servers.
type DefaultNTPClient struct{}

func (c *DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

// ErrNoTimeSource is returned when no NTP server produced a usable sample.
var ErrNoTimeSource = errors.New("no usable NTP response")

const (
	// DefaultNTPTimeout bounds a single server query.
	DefaultNTPTimeout = 5 * time.Second
	// DefaultRefresh is the period between background offset refreshes.
	DefaultRefresh = 11 * time.Minute

	maxVariance = 10 * time.Second
)

// NTPClock is the host clock corrected by the median offset reported by a
// set of NTP servers. Until the first successful Sync it reads the host
// clock unchanged.
type NTPClock struct {
	client  NTPClient
	servers []string
	timeout time.Duration

	mu     sync.RWMutex
	offset time.Duration
	synced bool

	stopChan  chan struct{}
	stopOnce  sync.Once
	waitGroup sync.WaitGroup
}

// NewNTPClock returns an unsynchronized NTP clock. A nil client uses
// DefaultNTPClient and a non-positive timeout uses DefaultNTPTimeout.
func NewNTPClock(client NTPClient, servers []string, timeout time.Duration) *NTPClock {
	if client == nil {
		client = &DefaultNTPClient{}
	}
	if timeout <= 0 {
		timeout = DefaultNTPTimeout
	}
	return &NTPClock{
		client:   client,
		servers:  append([]string(nil), servers...),
		timeout:  timeout,
		stopChan: make(chan struct{}),
	}
}

// Now returns the corrected time.
func (c *NTPClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Offset returns the current correction and whether it came from a
// successful Sync.
func (c *NTPClock) Offset() (time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset, c.synced
}

// Sync queries every configured server once, in random order, and adopts
// the median offset of the valid samples. Samples that disagree with the
// first valid one by more than maxVariance are discarded.
func (c *NTPClock) Sync() error {
	var samples []time.Duration
	for _, i := range shuffledIndexes(len(c.servers)) {
		server := c.servers[i]
		resp, err := c.client.QueryWithOptions(server, ntp.QueryOptions{Timeout: c.timeout})
		if err != nil {
			log.WithError(err).WithField("server", server).Debug("NTP query failed")
			continue
		}
		if err := validateResponse(resp); err != nil {
			log.WithError(err).WithField("server", server).Debug("NTP response failed validation")
			continue
		}
		if len(samples) > 0 && absDuration(resp.ClockOffset-samples[0]) > maxVariance {
			log.WithFields(logger.Fields{
				"at":       "NTPClock.Sync",
				"server":   server,
				"offset":   resp.ClockOffset.String(),
				"expected": samples[0].String(),
			}).Debug("discarding inconsistent NTP sample")
			continue
		}
		samples = append(samples, resp.ClockOffset)
	}

	if len(samples) == 0 {
		return oops.Wrapf(ErrNoTimeSource, "queried %d servers", len(c.servers))
	}

	offset := median(samples)
	c.mu.Lock()
	c.offset = offset
	c.synced = true
	c.mu.Unlock()

	log.WithFields(logger.Fields{
		"at":      "NTPClock.Sync",
		"offset":  offset.String(),
		"samples": len(samples),
	}).Debug("clock offset updated")
	return nil
}

// Start runs Sync every interval in the background until Stop.
func (c *NTPClock) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultRefresh
	}
	c.waitGroup.Add(1)
	go func() {
		defer c.waitGroup.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-c.stopChan:
				return
			case <-ticker.C:
				if err := c.Sync(); err != nil {
					log.WithError(err).Warn("periodic NTP sync failed")
				}
			}
		}
	}()
}

// Stop ends background refreshes. It is safe to call more than once.
func (c *NTPClock) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
	c.waitGroup.Wait()
}

func shuffledIndexes(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
	return idx
}

func median(d []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
