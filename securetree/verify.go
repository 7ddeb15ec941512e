// Revocation policy: PerformSignatureTrace checks key-set validity
// windows as of the signed block's own recorded Timestamp, never "now",
// so an entry whose ValidTo has since passed still authorizes blocks
// signed inside its window. The key sets it consults are each chain's
// current ones (the most recent keys block, see effectiveKeySet): an
// entry removed by a later SetKeys or RevokeKeys is no longer found, and
// tracing a block signed with it fails with unauthorized.
// ValidateSignature checks only that the signature matches and consults
// no key set.
package securetree

import (
	"context"

	"github.com/blocktree/blocktree/blockerrors"
)

// ValidateSignature verifies hash's signature standalone: that its
// declared signer's signature matches the stored payload. It does not
// check authorization (use PerformSignatureTrace or the write-path
// checks for that).
func (s *Store) ValidateSignature(ctx context.Context, hash []byte) (bool, error) {
	block, err := s.ReadSecureBlock(ctx, hash)
	if err != nil {
		return false, err
	}
	if block == nil {
		return false, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	if block.Type == TypeRoot {
		return false, blockerrors.NewInvalidSignatureError(blockerrors.ReasonNotFound)
	}
	body, err := encodeBody(block.Type, block.KeySet, block.Options)
	if err != nil {
		return false, err
	}
	return s.verifier.Verify(block.SignerPub, block.Signature, signedBytes(block.Prev, block.Parent, block.Type, body)), nil
}

// SignatureTrace is the result of PerformSignatureTrace: the ordered
// list of chain roots walked from the target block up to the root, the
// keys-type (or root/creation) blocks that supplied a key set at each
// level, and the action and exact key-set entry that authorized the
// signer.
type SignatureTrace struct {
	ChainRoots [][]byte
	KeysBlocks [][]byte
	Action     Action
	Entry      KeyEntry
}

// PerformSignatureTrace verifies hash's signature and then resolves the
// authorizing key-set entry, evaluated as of hash's own recorded
// Timestamp (see the package-level revocation policy note above), and
// returns the full trace of chain levels visited on the way to finding
// it.
func (s *Store) PerformSignatureTrace(ctx context.Context, hash []byte) (*SignatureTrace, error) {
	block, err := s.ReadSecureBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	if block.Type == TypeRoot {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonNotFound)
	}
	ok, err := s.ValidateSignature(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonDoesNotMatch)
	}

	start, err := s.authorizationStart(ctx, block.Hash)
	if err != nil {
		return nil, err
	}
	for _, action := range []Action{ActionWrite, ActionRead} {
		visited, keysBlocks, entry, err := s.resolveAuthorization(ctx, start, block.SignerPub, block.Timestamp, action)
		if err == nil {
			return &SignatureTrace{ChainRoots: visited, KeysBlocks: keysBlocks, Action: action, Entry: *entry}, nil
		}
	}
	return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonUnauthorized)
}
