package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealUnsealRoundTrip(t *testing.T) {
	plaintext := []byte("SQLite format 3\x00 family answers")

	sealed, err := Seal(plaintext, "correct horse")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, []byte("family answers")) {
		t.Error("sealed payload leaks plaintext")
	}

	got, err := Unseal(sealed, "correct horse")
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Unseal = %q, want %q", got, plaintext)
	}
}

func TestSealUsesFreshSalt(t *testing.T) {
	a, err := Seal([]byte("x"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal([]byte("x"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a[:saltSize], b[:saltSize]) {
		t.Error("two seals share a salt")
	}
}

func TestSealRequiresPassphrase(t *testing.T) {
	if _, err := Seal([]byte("x"), ""); err == nil {
		t.Error("expected error for empty passphrase")
	}
}

func TestUnsealWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "right")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unseal(sealed, "wrong"); err == nil {
		t.Error("expected error for wrong passphrase")
	}
}

func TestUnsealTampered(t *testing.T) {
	sealed, err := Seal([]byte("secret data"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Unseal(sealed, "pw"); err == nil {
		t.Error("expected error for tampered ciphertext")
	}
}

func TestUnsealTooSmall(t *testing.T) {
	_, err := Unseal(make([]byte, saltSize+nonceSize-1), "pw")
	if !errors.Is(err, ErrSealedTooSmall) {
		t.Errorf("err = %v, want ErrSealedTooSmall", err)
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	sealed, err := Seal(nil, "pw")
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unseal(sealed, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Unseal = %q, want empty", got)
	}
}
