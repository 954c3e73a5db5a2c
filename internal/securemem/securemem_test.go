package securemem

import (
	"sync"
	"testing"
)

func TestSecretRoundTrip(t *testing.T) {
	s := NewSecret("token-123")

	if s.IsEmpty() {
		t.Fatal("secret should not be empty")
	}
	if got := s.String(); got != "token-123" {
		t.Errorf("expected %q, got %q", "token-123", got)
	}
	if s.Len() != len("token-123") {
		t.Errorf("expected length %d, got %d", len("token-123"), s.Len())
	}
}

func TestSecretFromBytesWipesInput(t *testing.T) {
	input := []byte("abc")
	s := NewSecretFromBytes(input)

	for i, b := range input {
		if b != 0 {
			t.Errorf("byte %d not wiped: %x", i, b)
		}
	}
	if s.String() != "abc" {
		t.Errorf("expected %q, got %q", "abc", s.String())
	}
}

func TestEmptySecret(t *testing.T) {
	var nilSecret *Secret
	tests := []struct {
		name   string
		secret *Secret
	}{
		{"nil", nilSecret},
		{"zero", &Secret{}},
		{"empty string", NewSecret("")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !tt.secret.IsEmpty() {
				t.Error("expected empty")
			}
			if tt.secret.String() != "" {
				t.Errorf("expected empty string, got %q", tt.secret.String())
			}
			if tt.secret.Len() != 0 {
				t.Errorf("expected length 0, got %d", tt.secret.Len())
			}
			if !tt.secret.Equal("") {
				t.Error("empty secret should equal empty string")
			}
			if tt.secret.Equal("x") {
				t.Error("empty secret should not equal non-empty string")
			}
		})
	}
}

func TestSecretEqual(t *testing.T) {
	s := NewSecret("secret")

	if !s.Equal("secret") {
		t.Error("Equal should return true for matching strings")
	}
	if s.Equal("different") {
		t.Error("Equal should return false for non-matching strings")
	}
}

func TestSecretOpen(t *testing.T) {
	s := NewSecret("open-me")

	var seen string
	if err := s.Open(func(b []byte) { seen = string(b) }); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if seen != "open-me" {
		t.Errorf("expected %q, got %q", "open-me", seen)
	}
}

func TestSlotSwap(t *testing.T) {
	slot := NewSlot("")
	if !slot.IsEmpty() {
		t.Fatal("new slot should be empty")
	}

	if !slot.Swap("a") {
		t.Error("first token should be a change")
	}
	if slot.Swap("a") {
		t.Error("same token should not be a change")
	}
	if !slot.Swap("b") {
		t.Error("different token should be a change")
	}
	if slot.Get() != "b" {
		t.Errorf("expected %q, got %q", "b", slot.Get())
	}

	slot.Clear()
	if !slot.IsEmpty() {
		t.Error("cleared slot should be empty")
	}
}

func TestSlotConcurrentAccess(t *testing.T) {
	slot := NewSlot("initial")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			slot.Swap("next")
		}()
		go func() {
			defer wg.Done()
			if v := slot.Get(); v != "initial" && v != "next" {
				t.Errorf("unexpected value %q", v)
			}
		}()
	}
	wg.Wait()
}

func TestWipe(t *testing.T) {
	b := []byte{1, 2, 3}
	Wipe(b)
	for i, v := range b {
		if v != 0 {
			t.Errorf("byte %d not wiped", i)
		}
	}
}
