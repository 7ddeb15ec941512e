package cryptoprovider

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	p := New()
	pub, priv, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("a chain of signed blocks")
	sig, err := p.Sign(priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !p.Verify(pub, sig, msg) {
		t.Fatal("expected signature to verify")
	}
	if p.Verify(pub, sig, []byte("tampered")) {
		t.Fatal("expected verification to fail on tampered message")
	}
}

func TestVerifyWrongKeyFails(t *testing.T) {
	p := New()
	_, priv, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	otherPub, _, err := p.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	msg := []byte("payload")
	sig, err := p.Sign(priv, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if p.Verify(otherPub, sig, msg) {
		t.Fatal("expected verification against unrelated key to fail")
	}
}

func TestHashIsDeterministic(t *testing.T) {
	p := New()
	a := p.Hash([]byte("hello"))
	b := p.Hash([]byte("hello"))
	if string(a) != string(b) {
		t.Fatal("expected identical hash for identical input")
	}
	if len(a) != p.HashLen() {
		t.Fatalf("hash length %d != advertised %d", len(a), p.HashLen())
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := New()
	pub, priv, err := p.GenerateBoxKeyPair()
	if err != nil {
		t.Fatalf("GenerateBoxKeyPair: %v", err)
	}
	plaintext := []byte("authorized private key material")
	ciphertext, err := p.Encrypt(pub, plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	opened, err := p.Decrypt(priv, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if string(opened) != string(plaintext) {
		t.Fatalf("got %q, want %q", opened, plaintext)
	}
}

func TestRandomBytesLength(t *testing.T) {
	p := New()
	b, err := p.RandomBytes(16)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	if len(b) != 16 {
		t.Fatalf("got %d bytes, want 16", len(b))
	}
}
