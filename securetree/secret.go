package securetree

import (
	"context"

	"github.com/blocktree/blocktree/blockerrors"
)

// Broker is the trusted-secrets broker collaborator: an external
// component that mints a request token and re-encrypts
// authorized secrets under a requestor's trusted key. internal/broker
// provides the in-memory default implementation.
type Broker interface {
	RequestToken(ctx context.Context, callerPub, trustedKey []byte) (string, error)
	Reencrypt(ctx context.Context, token string, zonePriv []byte, encryptedPrivKeys [][]byte) ([][]byte, error)
}

// ReadSecret collects the encrypted authorized read-action private keys
// reachable from block's chain up to the root, obtains a request token
// from broker (an opaque ID; it carries no signature), and returns them
// re-encrypted under trustedKey.
// callerPub identifies the requestor to the broker. It is not itself
// checked for read authorization here; callers are expected to have
// already proven that via a signed operation before reaching for
// secrets, the same way every other mutation is gated.
func (s *Store) ReadSecret(ctx context.Context, block []byte, callerPub, trustedKey []byte, zonePriv []byte, broker Broker) ([][]byte, error) {
	encrypted, _, err := s.collectReadKeys(ctx, block)
	if err != nil {
		return nil, err
	}
	if len(encrypted) == 0 {
		return nil, blockerrors.NewInvalidKeyError(blockerrors.ReasonNotFound)
	}

	token, err := broker.RequestToken(ctx, callerPub, trustedKey)
	if err != nil {
		return nil, err
	}
	return broker.Reencrypt(ctx, token, zonePriv, encrypted)
}

// collectReadKeys walks block's chain up to the root, gathering every
// EncryptedPrivKey carried by a read-action key-set entry at each level.
func (s *Store) collectReadKeys(ctx context.Context, block []byte) ([][]byte, [][]byte, error) {
	cur, err := s.tree.ChainRoot(ctx, block)
	if err != nil {
		return nil, nil, err
	}
	var encrypted [][]byte
	var levels [][]byte
	for cur != nil {
		ks, _, err := s.effectiveKeySet(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range ks[ActionRead] {
			if len(e.EncryptedPrivKey) > 0 {
				encrypted = append(encrypted, e.EncryptedPrivKey)
			}
		}
		levels = append(levels, cur)
		rec, err := s.ReadSecureBlock(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		if rec == nil || rec.Type == TypeRoot {
			break
		}
		parent, err := s.tree.GetParentBlock(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		cur = parent
	}
	return encrypted, levels, nil
}
