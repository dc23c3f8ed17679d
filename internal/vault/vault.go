// Package vault holds the unlock key that protects stored secrets.
//
// A passphrase is stretched with Argon2id into a master key. A 16-bit
// fingerprint of the master key is persisted so a later unlock can tell a
// wrong passphrase from a right one. Sub-keys for sealing stored data and
// for the tabula recta generator are derived from the master key with HKDF.
package vault

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size of the master key and every sub-key.
const KeySize = 32

// SaltSize is the size of the Argon2 salt.
const SaltSize = 16

// Sub-key labels.
const (
	sealLabel   = "adnw-seal-v1"
	tabulaLabel = "adnw-tabula-v1"
)

var (
	ErrLocked          = errors.New("vault is locked")
	ErrWrongPassphrase = errors.New("wrong passphrase")
	ErrCorrupt         = errors.New("sealed data is corrupt")
)

// Params are the Argon2id cost parameters.
type Params struct {
	Time    uint32 `toml:"time" json:"time" yaml:"time"`
	Memory  uint32 `toml:"memory_kib" json:"memory_kib" yaml:"memory_kib"`
	Threads uint8  `toml:"threads" json:"threads" yaml:"threads"`
}

// DefaultParams returns interactive-grade costs.
func DefaultParams() Params {
	return Params{Time: 1, Memory: 64 * 1024, Threads: 4}
}

// NewSalt returns a random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Vault holds the unlocked key material. The zero value is unusable; use New.
type Vault struct {
	mu     sync.RWMutex
	salt   []byte
	params Params
	master *secret
	seal   *secret
	tabula *secret
}

// New creates a locked vault.
func New(salt []byte, params Params) *Vault {
	return &Vault{salt: append([]byte(nil), salt...), params: params}
}

// Unlock derives the key material from passphrase. The passphrase slice is
// wiped.
func (v *Vault) Unlock(passphrase []byte) error {
	defer wipe(passphrase)

	key := argon2.IDKey(passphrase, v.salt, v.params.Time, v.params.Memory, v.params.Threads, KeySize)
	master := newSecret(key)
	seal, err := derive(master.bytes(), sealLabel)
	if err != nil {
		master.destroy()
		return err
	}
	tabula, err := derive(master.bytes(), tabulaLabel)
	if err != nil {
		master.destroy()
		seal.destroy()
		return err
	}

	v.mu.Lock()
	v.lockLocked()
	v.master, v.seal, v.tabula = master, seal, tabula
	v.mu.Unlock()
	return nil
}

// UnlockVerified unlocks and checks the result against a stored
// fingerprint. On mismatch the vault stays locked.
func (v *Vault) UnlockVerified(passphrase []byte, stored uint16) error {
	if err := v.Unlock(passphrase); err != nil {
		return err
	}
	fp, err := v.Fingerprint()
	if err != nil {
		return err
	}
	if fp != stored {
		v.Lock()
		return ErrWrongPassphrase
	}
	return nil
}

func derive(master []byte, label string) (*secret, error) {
	out := make([]byte, KeySize)
	r := hkdf.New(sha256.New, master, nil, []byte(label))
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("derive %s: %w", label, err)
	}
	return newSecret(out), nil
}

// Lock wipes all key material.
func (v *Vault) Lock() {
	v.mu.Lock()
	v.lockLocked()
	v.mu.Unlock()
}

func (v *Vault) lockLocked() {
	for _, s := range []*secret{v.master, v.seal, v.tabula} {
		if s != nil {
			s.destroy()
		}
	}
	v.master, v.seal, v.tabula = nil, nil, nil
}

// Unlocked reports whether key material is present.
func (v *Vault) Unlocked() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.master != nil
}

// Fingerprint returns the 16-bit check value of the master key. The lowest
// bit is always clear so the value never equals an erased 0xFFFF cell.
func (v *Vault) Fingerprint() (uint16, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.master == nil {
		return 0, ErrLocked
	}
	sum := sha256.Sum256(v.master.bytes())
	return uint16(sum[0])<<8 | uint16(sum[1]&0xFE), nil
}

// Encrypt seals plaintext. The output is nonce || ciphertext || tag.
func (v *Vault) Encrypt(plaintext []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.seal == nil {
		return nil, ErrLocked
	}
	aead, err := chacha20poly1305.New(v.seal.bytes())
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt.
func (v *Vault) Decrypt(sealed []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.seal == nil {
		return nil, ErrLocked
	}
	aead, err := chacha20poly1305.New(v.seal.bytes())
	if err != nil {
		return nil, err
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrCorrupt
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	out, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrCorrupt
	}
	return out, nil
}

// TabulaRecta returns n printable characters for the cell (row, col) of a
// per-user code table. The same passphrase always yields the same table.
func (v *Vault) TabulaRecta(row byte, col, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}
	if col < 0 {
		return "", fmt.Errorf("column %d out of range", col)
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.tabula == nil {
		return "", ErrLocked
	}
	mac := hmac.New(sha256.New, v.tabula.bytes())
	mac.Write([]byte{row})
	line := base64.RawStdEncoding.EncodeToString(mac.Sum(nil))

	out := make([]byte, n)
	for i := range out {
		out[i] = line[(i+col)%len(line)]
	}
	return string(out), nil
}
