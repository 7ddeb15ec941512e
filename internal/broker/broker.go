// Package broker implements the in-memory trusted-secrets broker: an
// external collaborator that mints a re-encryption request token and
// re-encrypts authorized private-key payloads under a requestor's
// trusted key. It is peripheral glue, kept minimal and swappable, not
// part of the L1/L2/L3 core.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Crypto is the subset of the crypto provider collaborator the broker
// needs: decrypting payloads sealed under the zone's own encryption key,
// and re-sealing them under the requestor's trusted key.
type Crypto interface {
	Decrypt(priv, ciphertext []byte) ([]byte, error)
	Encrypt(pub, data []byte) ([]byte, error)
}

// Token correlates a re-encryption request to the caller who requested
// it, so a submitted batch of secrets can be checked against the token
// that authorized fetching them.
type Token struct {
	ID         string
	CallerPub  []byte
	TrustedKey []byte
	IssuedAt   time.Time
}

// Broker is the in-memory trusted-secrets broker.
type Broker struct {
	crypto Crypto

	mu     sync.Mutex
	tokens map[string]Token
}

// New constructs a Broker backed by crypto.
func New(crypto Crypto) *Broker {
	return &Broker{crypto: crypto, tokens: make(map[string]Token)}
}

// RequestToken mints a correlation token recording callerPub and the
// trustedKey secrets are to be re-encrypted under. It does not check
// that callerPub holds an authorized read key. It returns the token ID;
// Reencrypt takes it back to authorize a re-encryption batch.
func (b *Broker) RequestToken(ctx context.Context, callerPub, trustedKey []byte) (string, error) {
	tok := Token{ID: uuid.NewString(), CallerPub: callerPub, TrustedKey: trustedKey, IssuedAt: time.Now()}
	b.mu.Lock()
	b.tokens[tok.ID] = tok
	b.mu.Unlock()
	return tok.ID, nil
}

// Reencrypt opens each of encryptedPrivKeys under zonePriv (the
// authority's own encryption private key that sealed them originally)
// and reseals the opened payloads under the token's TrustedKey. The
// token must have been minted by a prior RequestToken call.
func (b *Broker) Reencrypt(ctx context.Context, tokenID string, zonePriv []byte, encryptedPrivKeys [][]byte) ([][]byte, error) {
	b.mu.Lock()
	tok, ok := b.tokens[tokenID]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("broker: unknown request token %q", tokenID)
	}

	out := make([][]byte, 0, len(encryptedPrivKeys))
	for _, ct := range encryptedPrivKeys {
		plain, err := b.crypto.Decrypt(zonePriv, ct)
		if err != nil {
			return nil, fmt.Errorf("broker: decrypt secret: %w", err)
		}
		resealed, err := b.crypto.Encrypt(tok.TrustedKey, plain)
		if err != nil {
			return nil, fmt.Errorf("broker: reencrypt secret: %w", err)
		}
		out = append(out, resealed)
	}
	return out, nil
}
