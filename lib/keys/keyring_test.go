package keys

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) ed25519.PublicKey {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = b
	return ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
}

func TestKeyRing_AddAndLookup(t *testing.T) {
	ring := NewKeyRing()
	seller := testKey(1)
	ground := testKey(2)

	require.NoError(t, ring.Add("sat-a", 0xA1, 0xA1A1, seller))
	require.NoError(t, ring.Add("ground", 0x000, 0, ground))

	got, ok := ring.BySatID(0xA1A1)
	require.True(t, ok)
	assert.Equal(t, seller, got)

	got, ok = ring.ByAPID(0x000)
	require.True(t, ok)
	assert.Equal(t, ground, got)

	_, ok = ring.BySatID(0)
	assert.False(t, ok, "sat_id 0 is never indexed")
	_, ok = ring.BySatID(0xDEAD)
	assert.False(t, ok)
	assert.Equal(t, 2, ring.Len())
}

func TestKeyRing_Conflicts(t *testing.T) {
	ring := NewKeyRing()
	require.NoError(t, ring.Add("sat-b", 0xB2, 0xB2B2, testKey(3)))

	// same binding again is fine
	require.NoError(t, ring.Add("sat-b", 0xB2, 0xB2B2, testKey(3)))
	assert.Equal(t, 1, ring.Len())

	assert.ErrorIs(t, ring.Add("evil", 0xB2, 0x1234, testKey(4)), ErrConflictingKey)
	assert.ErrorIs(t, ring.Add("evil", 0x55, 0xB2B2, testKey(4)), ErrConflictingKey)
	assert.ErrorIs(t, ring.Add("short", 0x66, 1, make([]byte, 10)), ErrInvalidPublicKey)
}

func TestKeyRing_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trusted.yaml")
	ring := NewKeyRing()
	require.NoError(t, ring.Add("sat-b", 0xB2, 0xB2B2, testKey(3)))
	require.NoError(t, ring.Add("sat-a", 0xA1, 0xA1A1, testKey(1)))

	require.NoError(t, SaveKeyRing(path, ring))

	loaded, err := LoadKeyRing(path)
	require.NoError(t, err)
	assert.Equal(t, ring.Entries(), loaded.Entries())

	got, ok := loaded.BySatID(0xB2B2)
	require.True(t, ok)
	assert.Equal(t, testKey(3), got)
}

func TestLoadKeyRing_Invalid(t *testing.T) {
	dir := t.TempDir()

	badHex := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badHex, []byte("keys:\n  - name: x\n    apid: 1\n    public_key: zz\n"), 0o644))
	_, err := LoadKeyRing(badHex)
	assert.ErrorIs(t, err, ErrInvalidPublicKey)

	badYAML := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(badYAML, []byte("keys: [unterminated"), 0o644))
	_, err = LoadKeyRing(badYAML)
	assert.Error(t, err)

	_, err = LoadKeyRing(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestKeyRing_ConcurrentAccess(t *testing.T) {
	ring := NewKeyRing()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = ring.Add("sat", uint16(i+1), uint32(i+1), testKey(byte(i+1)))
			ring.BySatID(uint32(i + 1))
			ring.Entries()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, ring.Len())
}

func TestKeyRing_Replace(t *testing.T) {
	ring := NewKeyRing()
	require.NoError(t, ring.Add("old", 0xB2, 0xB2B2, testKey(4)))

	fresh := NewKeyRing()
	require.NoError(t, fresh.Add("new", 0xA1, 0xA1A1, testKey(5)))
	ring.Replace(fresh)

	_, ok := ring.BySatID(0xB2B2)
	assert.False(t, ok)
	got, ok := ring.ByAPID(0xA1)
	require.True(t, ok)
	assert.Equal(t, testKey(5), got)
	assert.Equal(t, 1, ring.Len())
}
