package crypto

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestParseKey(t *testing.T) {
	hexKey, err := ParseKey(testKeyHex)
	if err != nil || len(hexKey) != 32 {
		t.Fatalf("hex key: %v", err)
	}

	b64Key, err := ParseKey(base64.StdEncoding.EncodeToString(hexKey))
	if err != nil || !bytes.Equal(b64Key, hexKey) {
		t.Fatalf("base64 key: %v", err)
	}

	if _, err := ParseKey(""); !errors.Is(err, ErrEncryptionKeyNotSet) {
		t.Fatalf("expected ErrEncryptionKeyNotSet, got %v", err)
	}
	if _, err := ParseKey("abcd"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestSealerRoundTrip(t *testing.T) {
	key, _ := ParseKey(testKeyHex)
	s, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal([]byte(`{"county":"King"}`), []byte("user-1/session-1"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) || strings.Contains(sealed, "King") {
		t.Fatalf("value not sealed: %q", sealed)
	}

	plain, err := s.Open(sealed, []byte("user-1/session-1"))
	if err != nil || string(plain) != `{"county":"King"}` {
		t.Fatalf("Open: %q %v", plain, err)
	}

	if _, err := s.Open(sealed, []byte("user-2/session-1")); err == nil {
		t.Fatal("opening with different associated data must fail")
	}
	if IsSealed(`{"county":"King"}`) {
		t.Fatal("plain JSON reported as sealed")
	}
}
