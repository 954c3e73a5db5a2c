// Package securemem keeps secrets such as authentication tokens in
// encrypted, locked memory so they do not show up in swap or core dumps.
package securemem

import (
	"crypto/subtle"
	"sync"

	"github.com/awnumar/memguard"
)

// Secret is an immutable sealed value. The zero value and nil are empty.
type Secret struct {
	enclave *memguard.Enclave
}

// NewSecret seals plaintext
func NewSecret(plaintext string) *Secret {
	return NewSecretFromBytes([]byte(plaintext))
}

// NewSecretFromBytes seals b and wipes it.
func NewSecretFromBytes(b []byte) *Secret {
	if len(b) == 0 {
		return &Secret{}
	}
	return &Secret{enclave: memguard.NewEnclave(b)}
}

// Open calls fn with the plaintext in a locked buffer that is destroyed when
// fn returns. fn must not retain b.
func (s *Secret) Open(fn func(b []byte)) error {
	if s.IsEmpty() {
		fn(nil)
		return nil
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return err
	}
	defer buf.Destroy()
	fn(buf.Bytes())
	return nil
}

// String returns a copy of the plaintext in regular memory, or "" if the
// secret cannot be opened.
func (s *Secret) String() string {
	var out string
	if err := s.Open(func(b []byte) { out = string(b) }); err != nil {
		return ""
	}
	return out
}

// IsEmpty reports whether the secret holds no value
func (s *Secret) IsEmpty() bool {
	return s == nil || s.enclave == nil
}

// Len returns the plaintext length
func (s *Secret) Len() int {
	if s.IsEmpty() {
		return 0
	}
	return s.enclave.Size()
}

// Equal compares with other in constant time
func (s *Secret) Equal(other string) bool {
	if s.IsEmpty() {
		return other == ""
	}
	equal := false
	_ = s.Open(func(b []byte) {
		equal = subtle.ConstantTimeCompare(b, []byte(other)) == 1
	})
	return equal
}

// Slot holds the current value of a secret that is replaced over time. It
// is safe for concurrent use.
type Slot struct {
	mu     sync.RWMutex
	secret *Secret
}

// NewSlot creates a slot holding initial, which may be empty
func NewSlot(initial string) *Slot {
	return &Slot{secret: NewSecret(initial)}
}

// Get returns the current plaintext
func (s *Slot) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret.String()
}

// IsEmpty reports whether the slot holds no value
func (s *Slot) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.secret.IsEmpty()
}

// Swap stores value and reports whether it differs from the previous one.
func (s *Slot) Swap(value string) (changed bool) {
	next := NewSecret(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	changed = !s.secret.Equal(value)
	s.secret = next
	return changed
}

// Clear empties the slot
func (s *Slot) Clear() {
	s.mu.Lock()
	s.secret = &Secret{}
	s.mu.Unlock()
}

// Init installs memguard's interrupt handler, which purges sealed memory
// before the process exits on SIGINT. Call it once from main.
func Init() {
	memguard.CatchInterrupt()
}

// Purge destroys all memguard buffers and the session key. Secrets created
// before Purge can no longer be opened.
func Purge() {
	memguard.Purge()
}

// Wipe zeroes b
func Wipe(b []byte) {
	memguard.WipeBytes(b)
}
