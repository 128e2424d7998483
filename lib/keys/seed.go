package keys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/go-i2p/crypto/rand"
	"github.com/go-i2p/logger"
	"github.com/samber/oops"
)

// SeedSize is the length of freshly generated seed material.
const SeedSize = 32

// Seed file errors.
// These use errors.New so callers can match them with errors.Is().
var (
	ErrSeedExists       = errors.New("seed file already exists")
	ErrSeedEmpty        = errors.New("seed file is empty")
	ErrInsecureSeedFile = errors.New("seed file is readable by group or others")
)

// GenerateSeedFile writes SeedSize random bytes to path and returns them.
// It never overwrites an existing file.
func GenerateSeedFile(path string) ([]byte, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, oops.Wrapf(ErrSeedExists, "%s", path)
	}
	if err := ensureDirectoryExists(filepath.Dir(path)); err != nil {
		return nil, oops.Errorf("failed to create seed directory: %w", err)
	}

	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, oops.Errorf("failed to generate seed: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, oops.Wrapf(ErrSeedExists, "%s", path)
		}
		return nil, oops.Errorf("failed to create seed file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(seed); err != nil {
		return nil, oops.Errorf("failed to write seed file: %w", err)
	}

	log.WithFields(logger.Fields{
		"at":   "GenerateSeedFile",
		"path": path,
	}).Info("generated identity seed")
	return seed, nil
}

// LoadSeed reads seed material from path.
func LoadSeed(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, oops.Errorf("failed to stat seed file: %w", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		log.WithFields(logger.Fields{
			"at":   "LoadSeed",
			"path": path,
			"mode": info.Mode().Perm().String(),
		}).Warn("refusing seed file with loose permissions")
		return nil, oops.Wrapf(ErrInsecureSeedFile, "%s has mode %s", path, info.Mode().Perm())
	}

	seed, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Errorf("failed to read seed file: %w", err)
	}
	if len(seed) == 0 {
		return nil, oops.Wrapf(ErrSeedEmpty, "%s", path)
	}
	return seed, nil
}

// LoadOrCreateSeed loads the seed at path, generating one first if the file
// does not exist. created reports whether a new seed was written.
func LoadOrCreateSeed(path string) (seed []byte, created bool, err error) {
	if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
		seed, err = GenerateSeedFile(path)
		return seed, err == nil, err
	}
	seed, err = LoadSeed(path)
	return seed, false, err
}

func ensureDirectoryExists(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		log.WithField("dir", dir).Debug("creating key directory")
		return os.MkdirAll(dir, 0o700)
	}
	return nil
}
