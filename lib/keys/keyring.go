package keys

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-i2p/logger"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

// Key ring errors.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrInvalidPublicKey = errors.New("invalid ed25519 public key")
	ErrConflictingKey   = errors.New("identifier already bound to a different key")
)

// TrustedKey is one key ring entry as stored on disk.
type TrustedKey struct {
	Name      string `yaml:"name"`
	APID      uint16 `yaml:"apid"`
	SatID     uint32 `yaml:"sat_id,omitempty"`
	PublicKey string `yaml:"public_key"`
}

type keyRingFile struct {
	Keys []TrustedKey `yaml:"keys"`
}

type entry struct {
	TrustedKey
	pub ed25519.PublicKey
}

// KeyRing maps sender identifiers to trusted Ed25519 public keys. Payments
// are looked up by sat_id and handshakes by APID. An entry with sat_id 0 is
// only reachable by APID. KeyRing is safe for concurrent use.
type KeyRing struct {
	mu     sync.RWMutex
	bySat  map[uint32]*entry
	byAPID map[uint16]*entry
	all    []*entry
}

// NewKeyRing returns an empty key ring.
func NewKeyRing() *KeyRing {
	return &KeyRing{
		bySat:  make(map[uint32]*entry),
		byAPID: make(map[uint16]*entry),
	}
}

// Add registers pub under apid and satID. Re-adding the same key is a no-op;
// binding either identifier to a different key fails with ErrConflictingKey.
func (k *KeyRing) Add(name string, apid uint16, satID uint32, pub ed25519.PublicKey) error {
	if len(pub) != ed25519.PublicKeySize {
		return oops.Wrapf(ErrInvalidPublicKey, "%s: %d bytes", name, len(pub))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if e, ok := k.byAPID[apid]; ok && !e.pub.Equal(pub) {
		return oops.Wrapf(ErrConflictingKey, "apid 0x%03x (%s)", apid, e.Name)
	}
	if satID != 0 {
		if e, ok := k.bySat[satID]; ok && !e.pub.Equal(pub) {
			return oops.Wrapf(ErrConflictingKey, "sat_id 0x%x (%s)", satID, e.Name)
		}
	}
	if e, ok := k.byAPID[apid]; ok && e.SatID == satID {
		return nil
	}

	e := &entry{
		TrustedKey: TrustedKey{
			Name:      name,
			APID:      apid,
			SatID:     satID,
			PublicKey: hex.EncodeToString(pub),
		},
		pub: append(ed25519.PublicKey(nil), pub...),
	}
	k.byAPID[apid] = e
	if satID != 0 {
		k.bySat[satID] = e
	}
	k.all = append(k.all, e)

	log.WithFields(logger.Fields{
		"at":     "KeyRing.Add",
		"name":   name,
		"apid":   apid,
		"sat_id": satID,
	}).Debug("trusted key added")
	return nil
}

// BySatID returns the key registered for a payment sender.
func (k *KeyRing) BySatID(id uint32) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.bySat[id]
	if !ok {
		return nil, false
	}
	return e.pub, true
}

// ByAPID returns the key registered for a header APID.
func (k *KeyRing) ByAPID(apid uint16) (ed25519.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.byAPID[apid]
	if !ok {
		return nil, false
	}
	return e.pub, true
}

// Len returns the number of registered keys.
func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.all)
}

// Entries returns the registered keys ordered by APID.
func (k *KeyRing) Entries() []TrustedKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]TrustedKey, 0, len(k.all))
	for _, e := range k.all {
		out = append(out, e.TrustedKey)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].APID < out[j].APID })
	return out
}

// Replace swaps the contents of k for those of src, so holders of k see a
// reloaded file without rewiring. src must not be used afterwards.
func (k *KeyRing) Replace(src *KeyRing) {
	src.mu.RLock()
	bySat, byAPID, all := src.bySat, src.byAPID, src.all
	src.mu.RUnlock()

	k.mu.Lock()
	defer k.mu.Unlock()
	k.bySat, k.byAPID, k.all = bySat, byAPID, all
}

// LoadKeyRing reads a YAML key ring file.
func LoadKeyRing(path string) (*KeyRing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read key ring: %w", err)
	}
	var file keyRingFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, oops.Errorf("failed to parse key ring %s: %w", path, err)
	}

	ring := NewKeyRing()
	for i, tk := range file.Keys {
		pub, err := hex.DecodeString(tk.PublicKey)
		if err != nil {
			return nil, oops.Wrapf(ErrInvalidPublicKey, "entry %d (%s): %v", i, tk.Name, err)
		}
		if err := ring.Add(tk.Name, tk.APID, tk.SatID, pub); err != nil {
			return nil, oops.Wrapf(err, "entry %d", i)
		}
	}

	log.WithFields(logger.Fields{
		"at":   "LoadKeyRing",
		"path": path,
		"keys": ring.Len(),
	}).Debug("key ring loaded")
	return ring, nil
}

// SaveKeyRing writes ring to path as YAML.
func SaveKeyRing(path string, ring *KeyRing) error {
	data, err := yaml.Marshal(keyRingFile{Keys: ring.Entries()})
	if err != nil {
		return oops.Errorf("failed to encode key ring: %w", err)
	}
	if err := ensureDirectoryExists(filepath.Dir(path)); err != nil {
		return oops.Errorf("failed to create key ring directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return oops.Errorf("failed to write key ring: %w", err)
	}
	return nil
}
