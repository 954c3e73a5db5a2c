// Package secrets seals small values, such as the plugin's authentication
// token, with a password so they can be stored on disk.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/codefionn/vtsclient/internal/securemem"
	"golang.org/x/crypto/scrypt"
)

const (
	// Prefix marks a sealed value in text form
	Prefix = "sealed:"

	sealVersion = 2
	saltSize    = 16
	keySize     = 32
)

var (
	// ErrWrongPassword means the password or label does not match
	ErrWrongPassword = errors.New("wrong password")
	// ErrMalformed means the sealed value is not structurally valid
	ErrMalformed = errors.New("malformed sealed value")
)

// Params are the scrypt cost parameters
type Params struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

// DefaultParams is scrypt's recommended interactive cost
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

// Sealed is a password-protected value. Label is bound to the ciphertext as
// additional data, so a value sealed for one label cannot be opened as
// another.
type Sealed struct {
	Version    int    `json:"version"`
	KDF        Params `json:"kdf"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// Seal encrypts plaintext with AES-256-GCM under a key derived from password
func Seal(plaintext []byte, password *securemem.Secret, label string, params Params) (*Sealed, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt, params)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return &Sealed{
		Version:    sealVersion,
		KDF:        params,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(gcm.Seal(nil, nonce, plaintext, []byte(label))),
	}, nil
}

// Open decrypts s. The caller should wipe the result when done with it.
func Open(s *Sealed, password *securemem.Secret, label string) ([]byte, error) {
	if s == nil {
		return nil, ErrMalformed
	}
	if s.Version != sealVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformed, s.Version)
	}

	salt, err := base64.StdEncoding.DecodeString(s.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", ErrMalformed, err)
	}
	nonce, err := base64.StdEncoding.DecodeString(s.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: nonce: %v", ErrMalformed, err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(s.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformed, err)
	}

	gcm, err := newGCM(password, salt, s.KDF)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: nonce size %d", ErrMalformed, len(nonce))
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, []byte(label))
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

// SealString seals value and returns it in text form with Prefix
func SealString(value string, password *securemem.Secret, label string, params Params) (string, error) {
	sealed, err := Seal([]byte(value), password, label, params)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(sealed)
	if err != nil {
		return "", fmt.Errorf("marshal sealed value: %w", err)
	}
	return Prefix + base64.StdEncoding.EncodeToString(raw), nil
}

// IsSealed reports whether text was produced by SealString
func IsSealed(text string) bool {
	return strings.HasPrefix(text, Prefix)
}

// OpenString reverses SealString
func OpenString(text string, password *securemem.Secret, label string) (string, error) {
	if !IsSealed(text) {
		return "", fmt.Errorf("%w: missing %q prefix", ErrMalformed, Prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(text, Prefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var sealed Sealed
	if err := json.Unmarshal(raw, &sealed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	plaintext, err := Open(&sealed, password, label)
	if err != nil {
		return "", err
	}
	defer securemem.Wipe(plaintext)
	return string(plaintext), nil
}

func newGCM(password *securemem.Secret, salt []byte, params Params) (cipher.AEAD, error) {
	if params.N <= 1 || params.R <= 0 || params.P <= 0 {
		return nil, fmt.Errorf("%w: invalid kdf parameters", ErrMalformed)
	}

	var key []byte
	var kdfErr error
	if err := password.Open(func(pw []byte) {
		key, kdfErr = scrypt.Key(pw, salt, params.N, params.R, params.P, keySize)
	}); err != nil {
		return nil, fmt.Errorf("open password: %w", err)
	}
	if kdfErr != nil {
		return nil, fmt.Errorf("derive key: %w", kdfErr)
	}
	defer securemem.Wipe(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}
