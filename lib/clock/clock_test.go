package clock

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Clock Tests
// =============================================================================

func TestEpochSeconds(t *testing.T) {
	assert.Equal(t, uint64(1_700_000_000), EpochSeconds(Fixed(time.Unix(1_700_000_000, 999_000_000))))
	assert.Equal(t, uint64(0), EpochSeconds(Fixed(time.Unix(-5, 0))))
}

func TestSystemClock(t *testing.T) {
	before := time.Now()
	got := System{}.Now()
	assert.False(t, got.Before(before))
}

// =============================================================================
// ValidateSkew Tests
// =============================================================================

func TestValidateSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name  string
		ts    uint64
		valid bool
	}{
		{"exact", 1_700_000_000, true},
		{"29s old", 1_699_999_971, true},
		{"30s old", 1_699_999_970, true},
		{"31s old", 1_699_999_969, false},
		{"30s ahead", 1_700_000_030, true},
		{"31s ahead", 1_700_000_031, false},
		{"zero", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSkew(tc.ts, now, 30*time.Second)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrClockSkew)
			}
		})
	}
}

func TestValidateSkew_NonPositiveWindow(t *testing.T) {
	err := ValidateSkew(1, time.Unix(1, 0), 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrClockSkew)
}

// =============================================================================
// NTPClock Tests
// =============================================================================

type fakeNTP struct {
	mu      sync.Mutex
	offsets map[string]time.Duration
	fail    map[string]bool
	calls   int
}

func (f *fakeNTP) QueryWithOptions(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[host] {
		return nil, errors.New("unreachable")
	}
	return &ntp.Response{
		Time:        time.Now(),
		ClockOffset: f.offsets[host],
		RTT:         20 * time.Millisecond,
		Stratum:     2,
	}, nil
}

func TestNTPClock_MedianOffset(t *testing.T) {
	client := &fakeNTP{offsets: map[string]time.Duration{
		"a": 2 * time.Second,
		"b": 3 * time.Second,
		"c": 4 * time.Second,
	}}
	c := NewNTPClock(client, []string{"a", "b", "c"}, time.Second)

	_, synced := c.Offset()
	assert.False(t, synced)

	require.NoError(t, c.Sync())
	off, synced := c.Offset()
	assert.True(t, synced)
	assert.Equal(t, 3*time.Second, off)
	assert.Equal(t, 3, client.calls)

	skewed := c.Now().Sub(time.Now())
	assert.InDelta(t, float64(3*time.Second), float64(skewed), float64(500*time.Millisecond))
}

func TestNTPClock_SkipsFailures(t *testing.T) {
	client := &fakeNTP{
		offsets: map[string]time.Duration{"a": time.Second, "b": time.Second},
		fail:    map[string]bool{"b": true},
	}
	c := NewNTPClock(client, []string{"a", "b"}, 0)
	require.NoError(t, c.Sync())
	off, _ := c.Offset()
	assert.Equal(t, time.Second, off)
}

func TestNTPClock_NoSource(t *testing.T) {
	client := &fakeNTP{fail: map[string]bool{"a": true}}
	c := NewNTPClock(client, []string{"a"}, 0)
	assert.ErrorIs(t, c.Sync(), ErrNoTimeSource)

	c = NewNTPClock(client, nil, 0)
	assert.ErrorIs(t, c.Sync(), ErrNoTimeSource)
}

func TestNTPClock_StartStop(t *testing.T) {
	c := NewNTPClock(&fakeNTP{}, []string{"a"}, 0)
	c.Start(time.Hour)
	c.Stop()
	c.Stop()
}

func TestValidateResponse(t *testing.T) {
	good := ntp.Response{Time: time.Now(), Stratum: 1, RTT: time.Millisecond}
	require.NoError(t, validateResponse(&good))

	tests := []struct {
		name   string
		mutate func(r *ntp.Response)
	}{
		{"not in sync", func(r *ntp.Response) { r.Leap = ntp.LeapNotInSync }},
		{"stratum zero", func(r *ntp.Response) { r.Stratum = 0 }},
		{"stratum 16", func(r *ntp.Response) { r.Stratum = 16 }},
		{"slow rtt", func(r *ntp.Response) { r.RTT = 3 * time.Second }},
		{"huge offset", func(r *ntp.Response) { r.ClockOffset = time.Hour }},
		{"zero time", func(r *ntp.Response) { r.Time = time.Time{} }},
		{"root dispersion", func(r *ntp.Response) { r.RootDispersion = 2 * time.Second }},
		{"root delay", func(r *ntp.Response) { r.RootDelay = 2 * time.Second }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := good
			tc.mutate(&r)
			assert.Error(t, validateResponse(&r))
		})
	}
}

func TestMedian(t *testing.T) {
	assert.Equal(t, 2*time.Second, median([]time.Duration{3 * time.Second, time.Second, 2 * time.Second}))
	assert.Equal(t, 1500*time.Millisecond, median([]time.Duration{time.Second, 2 * time.Second}))
}
