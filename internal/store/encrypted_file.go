package store

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when an encrypted state file cannot be opened with
// the configured passphrase.
var ErrDecrypt = errors.New("decrypt session state")

const sealedVersion = 1

type kdfParams struct {
	MemoryKiB   uint32 `json:"m"`
	Iterations  uint32 `json:"t"`
	Parallelism uint8  `json:"p"`
}

var defaultKDF = kdfParams{MemoryKiB: 64 * 1024, Iterations: 3, Parallelism: 2}

// sealedEnvelope is the on-disk layout of an encrypted state file.
type sealedEnvelope struct {
	Version    int       `json:"version"`
	KDF        kdfParams `json:"kdf"`
	Salt       []byte    `json:"salt"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
}

// sealedCodec encrypts the entry set with XChaCha20-Poly1305 under a key
// derived from a passphrase with Argon2id. The salt is fixed per file.
type sealedCodec struct {
	passphrase []byte
	params     kdfParams
	salt       []byte
	key        []byte
}

// NewEncryptedFile opens a state file whose contents are encrypted at rest.
// Opening an existing file with the wrong passphrase fails with ErrDecrypt.
func NewEncryptedFile(path, passphrase string) (*File, error) {
	return newEncryptedFile(path, passphrase, defaultKDF)
}

func newEncryptedFile(path, passphrase string, params kdfParams) (*File, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("encryption passphrase is required")
	}
	return openFile(path, &sealedCodec{passphrase: []byte(passphrase), params: params})
}

func (c *sealedCodec) deriveKey() {
	c.key = argon2.IDKey(c.passphrase, c.salt, c.params.Iterations, c.params.MemoryKiB, c.params.Parallelism, chacha20poly1305.KeySize)
}

func (c *sealedCodec) encode(entries map[string]json.RawMessage) ([]byte, error) {
	if c.key == nil {
		c.salt = make([]byte, 16)
		if _, err := rand.Read(c.salt); err != nil {
			return nil, fmt.Errorf("salt: %w", err)
		}
		c.deriveKey()
	}

	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return json.MarshalIndent(sealedEnvelope{
		Version:    sealedVersion,
		KDF:        c.params,
		Salt:       c.salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plain, nil),
	}, "", "  ")
}

func (c *sealedCodec) decode(b []byte) (map[string]json.RawMessage, error) {
	var env sealedEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Version != sealedVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if len(env.Salt) == 0 || len(env.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, ErrDecrypt
	}

	c.params = env.KDF
	c.salt = env.Salt
	c.deriveKey()

	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}

	out := make(map[string]json.RawMessage)
	if err := json.Unmarshal(plain, &out); err != nil {
		return nil, err
	}
	return out, nil
}
