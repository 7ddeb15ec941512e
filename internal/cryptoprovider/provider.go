// Package cryptoprovider implements the cryptographic provider
// collaborator: key-pair generation, sign/verify, encrypt/decrypt,
// hashing, and secure randomness. lukechampine.com/blake3 supplies
// content hashing, decred's secp256k1 supplies ECDSA signing, and
// golang.org/x/crypto/nacl/box supplies the broker's public-key
// re-encryption path.
package cryptoprovider

import (
	"crypto/rand"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
	"lukechampine.com/blake3"
)

// Provider is the collaborator interface the core consumes. The L1/L2/L3
// core reaches it only through narrow interfaces (blockchain.Hasher and
// Randomer, securetree.Verifier) and caller-supplied signer closures;
// the concrete implementation lives entirely outside the layered store.
type Provider interface {
	// Hash returns the content digest used for block identity.
	Hash(data []byte) []byte
	// HashLen is the fixed digest length Hash always returns.
	HashLen() int
	// RandomBytes returns n cryptographically secure random bytes.
	RandomBytes(n int) ([]byte, error)
	// GenerateKeyPair returns a fresh signing key pair.
	GenerateKeyPair() (pub, priv []byte, err error)
	// Sign returns a signature over data under priv.
	Sign(priv, data []byte) ([]byte, error)
	// Verify reports whether sig is a valid signature over data under pub.
	Verify(pub, sig, data []byte) bool
	// GenerateBoxKeyPair returns a fresh encryption key pair, distinct
	// key material from the signing key pairs above.
	GenerateBoxKeyPair() (pub, priv []byte, err error)
	// Encrypt seals data for the holder of the given box public key.
	Encrypt(pub, data []byte) ([]byte, error)
	// Decrypt opens a payload sealed with Encrypt under the matching
	// box private key.
	Decrypt(priv, ciphertext []byte) ([]byte, error)
}

type provider struct{}

// New returns the default Provider implementation.
func New() Provider {
	return provider{}
}

func (provider) Hash(data []byte) []byte {
	sum := blake3.Sum256(data)
	return sum[:]
}

func (provider) HashLen() int { return 32 }

func (provider) RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

func (provider) GenerateKeyPair() ([]byte, []byte, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return priv.PubKey().SerializeCompressed(), priv.Serialize(), nil
}

func (provider) Sign(priv, data []byte) ([]byte, error) {
	key := secp256k1.PrivKeyFromBytes(priv)
	digest := blake3.Sum256(data)
	sig := ecdsa.Sign(key, digest[:])
	return sig.Serialize(), nil
}

func (provider) Verify(pub, sig, data []byte) bool {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return false
	}
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := blake3.Sum256(data)
	return parsed.Verify(digest[:], key)
}

func (provider) GenerateBoxKeyPair() ([]byte, []byte, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate box key pair: %w", err)
	}
	return pub[:], priv[:], nil
}

func (provider) Encrypt(pub, data []byte) ([]byte, error) {
	if len(pub) != 32 {
		return nil, fmt.Errorf("invalid box public key length %d", len(pub))
	}
	var recipient [32]byte
	copy(recipient[:], pub)
	return box.SealAnonymous(nil, data, &recipient, rand.Reader)
}

func (provider) Decrypt(priv, ciphertext []byte) ([]byte, error) {
	pubFromPriv, _, err := deriveBoxPub(priv)
	if err != nil {
		return nil, err
	}
	var privKey [32]byte
	copy(privKey[:], priv)
	opened, ok := box.OpenAnonymous(nil, ciphertext, pubFromPriv, &privKey)
	if !ok {
		return nil, fmt.Errorf("open: authentication failed")
	}
	return opened, nil
}

// deriveBoxPub recomputes the box public key from a private key using
// curve25519 scalar multiplication, since nacl/box anonymous sealing
// needs the recipient's public key to open.
func deriveBoxPub(priv []byte) (*[32]byte, *[32]byte, error) {
	if len(priv) != 32 {
		return nil, nil, fmt.Errorf("invalid box private key length %d", len(priv))
	}
	var privKey [32]byte
	copy(privKey[:], priv)
	var pub [32]byte
	curve25519.ScalarBaseMult(&pub, &privKey)
	return &pub, &privKey, nil
}
