package crypto

import (
	"strings"
	"testing"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestCodec(t *testing.T) *Codec {
	key, err := KeyFromHex(testKeyHex)
	if err != nil {
		t.Fatalf("KeyFromHex error: %v", err)
	}
	codec, err := NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	return codec
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	inputs := []string{
		"Marie Dupont",
		"marie@example.com",
		"+15145550199",
		"neck, shoulders",
		strings.Repeat("long special request ", 50),
	}
	for _, in := range inputs {
		blob, err := codec.Encrypt(in)
		if err != nil {
			t.Fatalf("Encrypt(%q) error: %v", in, err)
		}
		if blob == in {
			t.Fatalf("ciphertext equals plaintext for %q", in)
		}
		out, err := codec.Decrypt(blob)
		if err != nil {
			t.Fatalf("Decrypt error: %v", err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestEncryptEmptyPassthrough(t *testing.T) {
	codec := newTestCodec(t)
	blob, err := codec.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if blob != "" {
		t.Fatalf("expected empty passthrough, got %q", blob)
	}
	out, err := codec.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty passthrough on decrypt, got %q", out)
	}
}

func TestEncryptRandomizesNonce(t *testing.T) {
	codec := newTestCodec(t)
	a, err := codec.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	b, err := codec.Encrypt("same input")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct ciphertexts for repeated input")
	}
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	codec := newTestCodec(t)
	blob, err := codec.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	tampered := []byte(blob)
	tampered[len(tampered)-5] ^= 'x'
	if _, err := codec.Decrypt(string(tampered)); err == nil {
		t.Fatalf("expected error for tampered blob")
	}

	if _, err := codec.Decrypt("not base64 at all!!"); err == nil {
		t.Fatalf("expected error for invalid encoding")
	}

	if _, err := codec.Decrypt("YWJj"); err == nil {
		t.Fatalf("expected error for truncated blob")
	}
}

func TestDecryptRejectsWrongKey(t *testing.T) {
	codec := newTestCodec(t)
	blob, err := codec.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}

	otherKey, err := KeyFromHex("ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff")
	if err != nil {
		t.Fatalf("KeyFromHex error: %v", err)
	}
	other, err := NewCodec(otherKey)
	if err != nil {
		t.Fatalf("NewCodec error: %v", err)
	}
	if _, err := other.Decrypt(blob); err == nil {
		t.Fatalf("expected error when decrypting with wrong key")
	}
}

func TestKeyFromHexRejectsBadKeys(t *testing.T) {
	if _, err := KeyFromHex("abcd"); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := KeyFromHex("zz"); err == nil {
		t.Fatalf("expected error for non-hex key")
	}
}
