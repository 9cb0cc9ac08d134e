package ticktock

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// encryptionNonceSize is the AES-GCM nonce size.
	encryptionNonceSize = 12
	// encryptionSaltSize is the key-derivation salt size.
	encryptionSaltSize = 32
	// encryptionKeySize is the AES-256 key size.
	encryptionKeySize = 32
	// pbkdf2Iterations is the key-derivation work factor.
	pbkdf2Iterations = 100000
)

// EncryptionConfig configures at-rest encryption of shard pages.
type EncryptionConfig struct {
	// Enabled turns on encryption for shard pages.
	Enabled bool `yaml:"enabled"`
	// Key is the raw 32-byte AES-256 key. If empty, Password derives one.
	Key []byte `yaml:"-"`
	// Password derives the key via PBKDF2 when Key is unset.
	Password string `yaml:"password"`
}

// Encryptor seals and opens shard pages with AES-GCM. Each page carries
// its salt and nonce, so password-derived keys survive restarts.
type Encryptor struct {
	key      []byte
	password string
}

// NewEncryptor builds an encryptor, or (nil, nil) when disabled.
func NewEncryptor(cfg *EncryptionConfig) (*Encryptor, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Key) > 0 {
		if len(cfg.Key) != encryptionKeySize {
			return nil, errors.New("encryption key must be 32 bytes for AES-256")
		}
		return &Encryptor{key: cfg.Key}, nil
	}
	if cfg.Password == "" {
		return nil, errors.New("encryption enabled but no key or password provided")
	}
	return &Encryptor{password: cfg.Password}, nil
}

// aead builds the AES-GCM cipher for the given salt.
func (e *Encryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := e.key
	if len(key) == 0 {
		key = pbkdf2.Key([]byte(e.password), salt, pbkdf2Iterations, encryptionKeySize, sha256.New)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals a page. The output layout is salt | nonce | ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, encryptionSaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, encryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	out := make([]byte, 0, encryptionSaltSize+encryptionNonceSize+len(plaintext)+gcm.Overhead())
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens a page sealed by Encrypt.
func (e *Encryptor) Decrypt(sealed []byte) ([]byte, error) {
	if len(sealed) < encryptionSaltSize+encryptionNonceSize {
		return nil, errors.New("encrypted page too short")
	}
	salt := sealed[:encryptionSaltSize]
	nonce := sealed[encryptionSaltSize : encryptionSaltSize+encryptionNonceSize]
	ciphertext := sealed[encryptionSaltSize+encryptionNonceSize:]

	gcm, err := e.aead(salt)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}
