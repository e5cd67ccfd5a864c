package report

import (
	"bytes"
	"testing"
)

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")

	key1 := deriveKey("mypassphrase", salt)
	key2 := deriveKey("mypassphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, deriveKey("other", salt)) {
		t.Error("different passphrases should produce different keys")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	original := []byte("id,token,mobile\n1,BRTS123456,9876543210\n")

	sealed, err := Seal(original, "archive-pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("9876543210")) {
		t.Error("sealed output leaks plaintext")
	}
	if len(sealed) <= saltSize+nonceSize {
		t.Fatalf("sealed length = %d", len(sealed))
	}

	again, err := Seal(original, "archive-pass")
	if err != nil {
		t.Fatalf("seal again: %v", err)
	}
	if bytes.Equal(sealed, again) {
		t.Error("two seals of the same data should differ")
	}

	opened, err := Open(sealed, "archive-pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, original) {
		t.Errorf("opened = %q, want %q", opened, original)
	}
}

func TestOpenRejectsBadInput(t *testing.T) {
	sealed, err := Seal([]byte("report"), "right")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	if _, err := Open(sealed, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := Open(tampered, "right"); err == nil {
		t.Error("expected error for tampered data")
	}

	if _, err := Open([]byte("short"), "right"); err == nil {
		t.Error("expected error for truncated data")
	}
}

func TestSealEmpty(t *testing.T) {
	sealed, err := Seal(nil, "pass")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	opened, err := Open(sealed, "pass")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(opened) != 0 {
		t.Errorf("opened length = %d, want 0", len(opened))
	}
}
