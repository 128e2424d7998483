package session

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"io"

	"github.com/samber/oops"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/curve25519"
)

// Keystream directions. They occupy the first four bytes of every ChaCha20
// nonce so a payment and a tunnel with the same record nonce never share a
// keystream.
const (
	directionPayment uint32 = 1
	directionTunnel  uint32 = 2
)

// DeriveIdentity turns provisioned seed material into an Ed25519 key. The
// Ed25519 seed is SHA-256 of the material.
func DeriveIdentity(material []byte) (ed25519.PrivateKey, error) {
	if len(material) == 0 {
		return nil, oops.Wrapf(ErrIdentityNotLoaded, "empty seed material")
	}
	seed := sha256.Sum256(material)
	defer clear(seed[:])
	return ed25519.NewKeyFromSeed(seed[:]), nil
}

func newEphemeral(r io.Reader) (priv, pub [curve25519.ScalarSize]byte, err error) {
	if _, err = io.ReadFull(r, priv[:]); err != nil {
		return priv, pub, oops.Errorf("read ephemeral scalar: %w", err)
	}
	p, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		clear(priv[:])
		return priv, pub, oops.Errorf("derive ephemeral public key: %w", err)
	}
	copy(pub[:], p)
	return priv, pub, nil
}

// agree runs X25519 and hashes the shared point into a session key. Low-order
// and all-zero results are rejected.
func agree(priv, peerPub []byte) ([32]byte, error) {
	var key [32]byte
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return key, oops.Wrapf(ErrKeyAgreementFailed, "%v", err)
	}
	defer clear(shared)
	var zero [curve25519.PointSize]byte
	if subtle.ConstantTimeCompare(shared, zero[:]) == 1 {
		return key, oops.Wrapf(ErrKeyAgreementFailed, "all-zero shared secret")
	}
	key = blake2b.Sum256(shared)
	return key, nil
}

func streamNonce(direction, n uint32) [chacha20.NonceSize]byte {
	var nonce [chacha20.NonceSize]byte
	binary.BigEndian.PutUint32(nonce[0:4], direction)
	binary.LittleEndian.PutUint64(nonce[4:12], uint64(n))
	return nonce
}

func xorStream(key *[32]byte, direction, n uint32, dst, src []byte) error {
	nonce := streamNonce(direction, n)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce[:])
	if err != nil {
		return oops.Errorf("init stream cipher: %w", err)
	}
	c.XORKeyStream(dst, src)
	return nil
}

// Fingerprint returns a short printable tag for key material. It is safe to
// log.
func Fingerprint(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:4])
}
