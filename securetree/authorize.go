package securetree

import (
	"context"

	"github.com/blocktree/blocktree/blockerrors"
)

// ReadSecureBlock returns the fully-decoded secure record for hash, or
// nil when hash is the null sentinel.
func (s *Store) ReadSecureBlock(ctx context.Context, hash []byte) (*SecureBlock, error) {
	tb, err := s.tree.ReadBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if tb == nil {
		return nil, nil
	}
	t, keySet, opts, sig, err := decodePayload(tb.Payload)
	if err != nil {
		return nil, err
	}
	rec := &SecureBlock{
		Hash:      tb.Hash,
		Prev:      tb.Prev,
		Parent:    tb.Parent,
		Timestamp: tb.Timestamp,
		Type:      t,
		KeySet:    keySet,
		Options:   opts,
	}
	if sig != nil {
		rec.SignerPub = sig.PubKey
		rec.Signature = sig.Sig
	}
	return rec, nil
}

// effectiveKeySet returns the authorized key set declared directly on
// chainRoot's own chain: the most recent keys-type block walking from
// the chain's head back to its root, falling back to the chain root
// block's own embedded key set (always present for root, optionally
// present for zone/identity/collection creations) when no keys block
// has been appended. It returns an empty KeySet, never an error, when
// this chain level declares no keys at all; that is a normal "keep
// walking up" outcome, not a failure.
func (s *Store) effectiveKeySet(ctx context.Context, chainRoot []byte) (KeySet, []byte, error) {
	head, err := s.tree.ChainHead(ctx, chainRoot)
	if err != nil {
		return nil, nil, err
	}
	cur := head
	if cur == nil {
		cur = chainRoot
	}
	for {
		rec, err := s.ReadSecureBlock(ctx, cur)
		if err != nil {
			return nil, nil, err
		}
		if rec == nil {
			return KeySet{}, nil, nil
		}
		if rec.Type == TypeKeys || rec.Type == TypeRoot {
			return rec.KeySet, rec.Hash, nil
		}
		isChainRoot := bytesEqual(cur, chainRoot)
		if isChainRoot {
			if len(rec.KeySet) > 0 {
				return rec.KeySet, rec.Hash, nil
			}
			return KeySet{}, nil, nil
		}
		if rec.Prev == nil {
			return KeySet{}, nil, nil
		}
		cur = rec.Prev
	}
}

// checkAuthorized walks parent chain-roots upward starting at start's
// own chain, looking for a write-action key-set entry covering pub at
// timestamp ts. It fails with InvalidSignatureError(unauthorized) if it
// reaches the root without a match.
func (s *Store) checkAuthorized(ctx context.Context, start []byte, pub []byte, ts uint64) error {
	_, _, _, err := s.resolveAuthorization(ctx, start, pub, ts, ActionWrite)
	return err
}

// authorizationStart returns the chain level the authorized-key walk
// begins at for an existing block: its chain's parent. A chain's key set
// governs the chains nested under it, not writes to the chain itself, so
// the first level consulted is always one up, except for the root
// chain, the trust anchor, which is the one chain that self-authorizes
// (nothing sits above it to vouch for a key rotation).
func (s *Store) authorizationStart(ctx context.Context, hash []byte) ([]byte, error) {
	root, err := s.tree.ChainRoot(ctx, hash)
	if err != nil {
		return nil, err
	}
	rec, err := s.ReadSecureBlock(ctx, root)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.Type == TypeRoot {
		return root, nil
	}
	return s.tree.GetParentBlock(ctx, root)
}

// resolveAuthorization is checkAuthorized's full form, also used by
// PerformSignatureTrace: it returns the ordered chain roots visited and
// the key-set entry that ultimately authorized pub.
func (s *Store) resolveAuthorization(ctx context.Context, start []byte, pub []byte, ts uint64, action Action) (visited [][]byte, keysBlocks [][]byte, entry *KeyEntry, err error) {
	cur, err := s.tree.ChainRoot(ctx, start)
	if err != nil {
		return nil, nil, nil, err
	}
	for cur != nil {
		visited = append(visited, cur)
		ks, keysHash, err := s.effectiveKeySet(ctx, cur)
		if err != nil {
			return nil, nil, nil, err
		}
		if keysHash != nil {
			keysBlocks = append(keysBlocks, keysHash)
		}
		for _, e := range ks[action] {
			if e.Covers(pub, ts) {
				found := e
				return visited, keysBlocks, &found, nil
			}
		}
		rec, err := s.ReadSecureBlock(ctx, cur)
		if err != nil {
			return nil, nil, nil, err
		}
		if rec == nil || rec.Type == TypeRoot {
			break
		}
		parent, err := s.tree.GetParentBlock(ctx, cur)
		if err != nil {
			return nil, nil, nil, err
		}
		cur = parent
	}
	return visited, keysBlocks, nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonUnauthorized)
}
