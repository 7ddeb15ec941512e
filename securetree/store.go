package securetree

import (
	"context"

	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/blocktree"
)

// LayerTag is the L2 layer tag this package writes on every block it
// creates, distinguishing secure-blocktree chains from any other layer
// that might share the same L2 store.
const LayerTag byte = 1

// Clock is the monotonic time collaborator this layer consults to stamp
// authorization checks performed at write time.
type Clock interface {
	Now() uint64
}

// Store is the L3 secure-blocktree layer, wrapping an L2 blocktree.Store
// with typed blocks, authorized key sets, and signature verification.
type Store struct {
	tree     *blocktree.Store
	verifier Verifier
	clock    Clock
}

// New wraps tree with the L3 secure-blocktree semantics.
func New(tree *blocktree.Store, verifier Verifier, clock Clock) *Store {
	return &Store{tree: tree, verifier: verifier, clock: clock}
}

// legalNestedTypes maps a parent's resolved type to the set of child
// types that may nest a new chain under it.
var legalNestedTypes = map[BlockType]map[BlockType]bool{
	TypeRoot:       {TypeZone: true},
	TypeZone:       {TypeZone: true, TypeIdentity: true, TypeCollection: true},
	TypeIdentity:   {TypeCollection: true},
	TypeCollection: {},
}

// InstallRoot writes the single system-wide trust anchor: a root block
// carrying rootKeys, followed by a zone block (the "root zone") parented
// under it carrying rootZoneKeys as its initial authorized key set. It
// only succeeds when the store is empty.
func (s *Store) InstallRoot(ctx context.Context, rootKeys KeySet, rootZoneKeys KeySet, signAsRoot Signer) (rootHash, zoneHash []byte, err error) {
	count, err := s.tree.CountBlocks(ctx)
	if err != nil {
		return nil, nil, err
	}
	if count > 0 {
		return nil, nil, blockerrors.NewInvalidRootError()
	}

	rootPayload, err := encodePayload(TypeRoot, rootKeys, nil, nil)
	if err != nil {
		return nil, nil, err
	}
	rootHash, err = s.tree.WriteBlock(ctx, blocktree.WriteInput{Data: rootPayload, Layer: LayerTag}, blocktree.WriteOptions{})
	if err != nil {
		return nil, nil, err
	}

	zoneBody, err := encodeBody(TypeZone, rootZoneKeys, OptionsRecord{})
	if err != nil {
		return nil, nil, err
	}
	pub, sig, err := signAsRoot(SignRequest{Prev: nil, Parent: rootHash, Type: TypeZone, Payload: zoneBody})
	if err != nil {
		return nil, nil, err
	}
	zonePayload, err := encodePayload(TypeZone, rootZoneKeys, OptionsRecord{}, &signatureRecord{PubKey: pub, Sig: sig})
	if err != nil {
		return nil, nil, err
	}
	zoneHash, err = s.tree.WriteBlock(ctx, blocktree.WriteInput{Parent: rootHash, Data: zonePayload, Layer: LayerTag}, blocktree.WriteOptions{})
	if err != nil {
		return nil, nil, err
	}
	return rootHash, zoneHash, nil
}

// CreateInput carries the fields shared by CreateZone/CreateIdentity/
// CreateCollection: block nests a new chain under the resolved parent,
// authorized by sign.
type CreateInput struct {
	Block   []byte
	Sign    Signer
	Options OptionsRecord
	Keys    KeySet // optional initial authorized key set for the new chain
}

// CreateZone creates a zone chain nested under in.Block (legal under
// root or another zone).
func (s *Store) CreateZone(ctx context.Context, in CreateInput) ([]byte, error) {
	return s.nest(ctx, TypeZone, in)
}

// CreateIdentity creates an identity chain nested under in.Block (legal
// under a zone only).
func (s *Store) CreateIdentity(ctx context.Context, in CreateInput) ([]byte, error) {
	return s.nest(ctx, TypeIdentity, in)
}

// CreateCollection creates a collection chain nested under in.Block
// (legal under an identity or a zone).
func (s *Store) CreateCollection(ctx context.Context, in CreateInput) ([]byte, error) {
	return s.nest(ctx, TypeCollection, in)
}

func (s *Store) nest(ctx context.Context, t BlockType, in CreateInput) ([]byte, error) {
	if len(in.Block) == 0 {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	target, err := s.ReadSecureBlock(ctx, in.Block)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	if !legalNestedTypes[target.Type][t] {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonInvalidParentType)
	}

	if in.Sign == nil {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonNotFound)
	}

	body, err := encodeBody(t, in.Keys, in.Options)
	if err != nil {
		return nil, err
	}
	pub, sig, err := in.Sign(SignRequest{Prev: nil, Parent: target.Hash, Type: t, Payload: body})
	if err != nil {
		return nil, err
	}
	if !s.verifier.Verify(pub, sig, signedBytes(nil, target.Hash, t, body)) {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonDoesNotMatch)
	}
	if err := s.checkAuthorized(ctx, target.Hash, pub, s.clock.Now()); err != nil {
		return nil, err
	}
	payload, err := encodePayload(t, in.Keys, in.Options, &signatureRecord{PubKey: pub, Sig: sig})
	if err != nil {
		return nil, err
	}
	return s.tree.WriteBlock(ctx, blocktree.WriteInput{Parent: target.Hash, Data: payload, Layer: LayerTag}, blocktree.WriteOptions{})
}

// ExtendInput carries the fields shared by SetKeys/SetOptions/
// RevokeKeys/AddRecord: block is the previous block of the chain being
// extended.
type ExtendInput struct {
	Block   []byte
	Sign    Signer
	Options OptionsRecord
	Keys    KeySet
}

// SetKeys appends a keys block to the chain in.Block belongs to,
// replacing its effective authorized key set with in.Keys.
func (s *Store) SetKeys(ctx context.Context, in ExtendInput) ([]byte, error) {
	return s.extend(ctx, TypeKeys, in)
}

// SetOptions appends an options block with in.Options as metadata.
func (s *Store) SetOptions(ctx context.Context, in ExtendInput) ([]byte, error) {
	if err := s.rejectRootExtend(ctx, in.Block); err != nil {
		return nil, err
	}
	return s.extend(ctx, TypeOptions, in)
}

// AddRecord appends domain data under a collection chain. It shares the
// options-block wire shape with SetOptions but is exposed as its own
// operation: it appends immutable domain data rather than updating
// mutable metadata.
func (s *Store) AddRecord(ctx context.Context, in ExtendInput) ([]byte, error) {
	if err := s.rejectRootExtend(ctx, in.Block); err != nil {
		return nil, err
	}
	return s.extend(ctx, TypeOptions, in)
}

// RevokeKeys removes every entry matching pubKey under action from the
// chain's effective key set and appends the reduced set as a new keys
// block.
func (s *Store) RevokeKeys(ctx context.Context, block []byte, sign Signer, action Action, pubKey []byte) ([]byte, error) {
	root, err := s.tree.ChainRoot(ctx, block)
	if err != nil {
		return nil, err
	}
	current, _, err := s.effectiveKeySet(ctx, root)
	if err != nil {
		return nil, err
	}
	next := make(KeySet, len(current))
	for a, entries := range current {
		if a != action {
			next[a] = entries
			continue
		}
		var kept []KeyEntry
		for _, e := range entries {
			if !bytesEqual(e.PubKey, pubKey) {
				kept = append(kept, e)
			}
		}
		next[a] = kept
	}
	return s.extend(ctx, TypeKeys, ExtendInput{Block: block, Sign: sign, Keys: next})
}

func (s *Store) rejectRootExtend(ctx context.Context, block []byte) error {
	target, err := s.ReadSecureBlock(ctx, block)
	if err != nil {
		return err
	}
	if target == nil {
		return blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	root, err := s.tree.ChainRoot(ctx, block)
	if err != nil {
		return err
	}
	rootBlock, err := s.ReadSecureBlock(ctx, root)
	if err != nil {
		return err
	}
	if rootBlock != nil && rootBlock.Type == TypeRoot {
		return blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	return nil
}

func (s *Store) extend(ctx context.Context, t BlockType, in ExtendInput) ([]byte, error) {
	if len(in.Block) == 0 {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	target, err := s.ReadSecureBlock(ctx, in.Block)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL3, blockerrors.ReasonIsNull)
	}
	if in.Sign == nil {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonNotFound)
	}
	parent, err := s.tree.ChainParent(ctx, in.Block)
	if err != nil {
		return nil, err
	}

	body, err := encodeBody(t, in.Keys, in.Options)
	if err != nil {
		return nil, err
	}
	pub, sig, err := in.Sign(SignRequest{Prev: target.Hash, Parent: parent, Type: t, Payload: body})
	if err != nil {
		return nil, err
	}
	if !s.verifier.Verify(pub, sig, signedBytes(target.Hash, parent, t, body)) {
		return nil, blockerrors.NewInvalidSignatureError(blockerrors.ReasonDoesNotMatch)
	}
	start, err := s.authorizationStart(ctx, in.Block)
	if err != nil {
		return nil, err
	}
	if err := s.checkAuthorized(ctx, start, pub, s.clock.Now()); err != nil {
		return nil, err
	}
	payload, err := encodePayload(t, in.Keys, in.Options, &signatureRecord{PubKey: pub, Sig: sig})
	if err != nil {
		return nil, err
	}
	return s.tree.WriteBlock(ctx, blocktree.WriteInput{Prev: target.Hash, Parent: parent, Data: payload, Layer: LayerTag}, blocktree.WriteOptions{})
}
