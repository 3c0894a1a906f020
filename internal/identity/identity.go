// Package identity manages the node's ed25519 keypair. The announcer only
// ever sees the public key in its textual shs form.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const (
	SeedSize = ed25519.SeedSize

	keySuffix = ".ed25519"
	seedMode  = 0600
)

var (
	ErrInvalidSeed = errors.New("invalid seed")
	ErrKeyNotFound = errors.New("key file not found")
)

type Keypair struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// Generate creates a keypair from r, crypto/rand when r is nil.
func Generate(r io.Reader) (*Keypair, error) {
	if r == nil {
		r = rand.Reader
	}
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, seed); err != nil {
		return nil, fmt.Errorf("identity.Generate: %w", err)
	}
	return FromSeed(seed)
}

func FromSeed(seed []byte) (*Keypair, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalidSeed, SeedSize, len(seed))
	}
	private := ed25519.NewKeyFromSeed(seed)
	return &Keypair{
		public:  private.Public().(ed25519.PublicKey),
		private: private,
	}, nil
}

// Load reads a seed file written by Save.
func Load(path string) (*Keypair, error) {
	const op = "identity.Load"

	seed, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %s: %w", op, path, ErrKeyNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	kp, err := FromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", op, path, err)
	}
	return kp, nil
}

// LoadOrCreate loads the seed file at path or creates a new one. The second
// return value is true when a key was generated.
func LoadOrCreate(path string) (*Keypair, bool, error) {
	kp, err := Load(path)
	if err == nil {
		return kp, false, nil
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, false, err
	}

	kp, err = Generate(nil)
	if err != nil {
		return nil, false, err
	}
	if err := Save(path, kp); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}

// Save writes the seed to path through a temp file and rename, so readers
// never see a partial key.
func Save(path string, kp *Keypair) error {
	const op = "identity.Save"

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(dir, ".seed-*")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(seedMode); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := tmp.Write(kp.Seed()); err != nil {
		tmp.Close()
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (k *Keypair) PublicKey() ed25519.PublicKey {
	return k.public
}

func (k *Keypair) PrivateKey() ed25519.PrivateKey {
	return k.private
}

func (k *Keypair) Seed() []byte {
	return k.private.Seed()
}

// ShsKey is the base64 public key as it appears in discovery beacons.
func (k *Keypair) ShsKey() string {
	return base64.StdEncoding.EncodeToString(k.public)
}

// ID is the ssb feed id, @<base64>.ed25519.
func (k *Keypair) ID() string {
	return "@" + k.ShsKey() + keySuffix
}

func (k *Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}
