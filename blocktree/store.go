package blocktree

import (
	"context"

	"github.com/blocktree/blocktree/blockchain"
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/internal/wire"
	"github.com/blocktree/blocktree/storage"
)

// Store is the L2 blocktree layer: a parent/child overlay wrapping an
// L1 blockchain.Store. It never touches the byte store directly; every
// read/write goes through the wrapped L1 store, consulting its own
// childBlocks cache slot for child enumeration.
type Store struct {
	chain  *blockchain.Store
	cache  storage.Cache
	hasher blockchain.Hasher
}

// New wraps chain with the L2 parent/child overlay.
func New(chain *blockchain.Store, cache storage.Cache, hasher blockchain.Hasher) *Store {
	return &Store{chain: chain, cache: cache, hasher: hasher}
}

// WriteInput carries the caller-supplied fields for WriteBlock.
type WriteInput struct {
	Prev   []byte
	Parent []byte
	Data   []byte
	Layer  byte
}

// WriteOptions controls WriteBlock's validation pass.
type WriteOptions struct {
	Validate *bool
}

func (o WriteOptions) validates() bool {
	return o.Validate == nil || *o.Validate
}

// WriteBlock appends a new tree block. When validating and Parent is
// non-null, it must already exist in the store.
func (s *Store) WriteBlock(ctx context.Context, in WriteInput, opts WriteOptions) ([]byte, error) {
	parent := normalize(in.Parent)
	if opts.validates() && parent != nil {
		existing, err := s.chain.ReadRawBlock(ctx, parent)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL2, blockerrors.ReasonInvalidParentBlock)
		}
	}

	l1Data := encodeHeader(parent, s.hasher.HashLen(), in.Layer, in.Data)
	var validatePtr *bool
	if opts.Validate != nil {
		v := *opts.Validate
		validatePtr = &v
	}
	hash, err := s.chain.WriteBlock(ctx, blockchain.WriteInput{Prev: in.Prev, Data: l1Data}, blockchain.WriteOptions{Validate: validatePtr})
	if err != nil {
		return nil, err
	}
	// PerformChildScan trusts a cached child list as complete, so only a
	// new chain root is added, and only to a list a full scan already
	// cached.
	if parent != nil && wire.IsZero(in.Prev) {
		if _, ok := s.cache.ReadCache(parent, storage.SlotChildBlocks); ok {
			s.cache.PushCache(parent, storage.SlotChildBlocks, hash)
		}
	}
	return hash, nil
}

// ReadBlock returns the fully-parsed tree block for hash, or nil when
// hash is the null sentinel.
func (s *Store) ReadBlock(ctx context.Context, hash []byte) (*TreeBlock, error) {
	block, err := s.chain.ReadBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, nil
	}
	parent, layer, payload, err := decodeHeader(block.Data, s.hasher.HashLen())
	if err != nil {
		return nil, err
	}
	return &TreeBlock{
		Hash:      block.Hash,
		Prev:      block.Prev,
		Parent:    parent,
		Layer:     layer,
		Payload:   payload,
		Nonce:     block.Nonce,
		Timestamp: block.Timestamp,
	}, nil
}

// CountBlocks returns the number of blocks in the underlying store.
func (s *Store) CountBlocks(ctx context.Context) (int, error) {
	return s.chain.CountBlocks(ctx)
}

// ChainRoot returns the root of hash's chain (the underlying L1 walk).
func (s *Store) ChainRoot(ctx context.Context, hash []byte) ([]byte, error) {
	return s.chain.GetRootBlock(ctx, hash)
}

// ChainHead returns the tip of hash's chain.
func (s *Store) ChainHead(ctx context.Context, hash []byte) ([]byte, error) {
	return s.chain.GetHeadBlock(ctx, hash)
}

// ChainParent resolves the tree-edge Parent of hash's chain root: the
// parent that applies no matter which block within the chain hash
// names, since Parent is only meaningful on chain roots.
func (s *Store) ChainParent(ctx context.Context, hash []byte) ([]byte, error) {
	root, err := s.chain.GetRootBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	return s.GetParentBlock(ctx, root)
}

// GetParentBlock returns hash's parent reference, or nil when null.
func (s *Store) GetParentBlock(ctx context.Context, hash []byte) ([]byte, error) {
	block, err := s.ReadBlock(ctx, hash)
	if err != nil {
		return nil, err
	}
	if block == nil {
		return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL2, blockerrors.ReasonIsNull)
	}
	return block.Parent, nil
}

// PerformParentScan starts at hash and repeatedly follows the current
// block's Parent field, appending each visited block. Parent is read
// exactly as stored on whatever block is passed in, without first
// normalizing to that block's chain root: the caller is expected to
// start at a chain root, or to accept that intermediate Parent values
// (meaningless on non-root blocks) are surfaced as-is.
func (s *Store) PerformParentScan(ctx context.Context, hash []byte) ([]*TreeBlock, error) {
	var out []*TreeBlock
	cur := normalize(hash)
	for cur != nil {
		block, err := s.ReadBlock(ctx, cur)
		if err != nil {
			return nil, err
		}
		if block == nil {
			break
		}
		out = append(out, block)
		cur = block.Parent
	}
	return out, nil
}

// PerformChildScan returns every chain-root block whose Parent equals
// hash. The childBlocks cache slot is consulted first; on a miss, a full
// scan is performed and the result is written back to the cache.
func (s *Store) PerformChildScan(ctx context.Context, hash []byte) ([]*TreeBlock, error) {
	hash = normalize(hash)
	if v, ok := s.cache.ReadCache(hash, storage.SlotChildBlocks); ok {
		if hashes, ok := v.([][]byte); ok {
			return s.resolveAll(ctx, hashes)
		}
	}
	all, err := s.chain.ListBlocks(ctx, nil)
	if err != nil {
		return nil, err
	}
	var children [][]byte
	var out []*TreeBlock
	for _, candidate := range all {
		block, err := s.ReadBlock(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if block == nil || !block.IsRoot() {
			continue
		}
		if hashesEqual(block.Parent, hash) {
			children = append(children, candidate)
			out = append(out, block)
		}
	}
	s.cache.WriteCache(hash, storage.SlotChildBlocks, children)
	return out, nil
}

func (s *Store) resolveAll(ctx context.Context, hashes [][]byte) ([]*TreeBlock, error) {
	out := make([]*TreeBlock, 0, len(hashes))
	for _, h := range hashes {
		block, err := s.ReadBlock(ctx, h)
		if err != nil {
			return nil, err
		}
		if block != nil {
			out = append(out, block)
		}
	}
	return out, nil
}

// TreeValidationReport is the total result of ValidateBlocktree.
type TreeValidationReport struct {
	IsValid    bool
	BlockCount int
	Reason     string
	Block      []byte
}

// ValidateBlocktree runs L1 validation on start's chain, then follows
// Parent links up to the tree root, accumulating BlockCount across every
// chain it crosses.
func (s *Store) ValidateBlocktree(ctx context.Context, start []byte) (TreeValidationReport, error) {
	cur := normalize(start)
	total := 0
	for cur != nil {
		report, err := s.chain.ValidateBlockchain(ctx, cur)
		if err != nil {
			return TreeValidationReport{}, err
		}
		total += report.BlockCount
		if !report.IsValid {
			return TreeValidationReport{IsValid: false, BlockCount: total, Reason: report.Reason, Block: report.Block}, nil
		}
		root, err := s.chain.GetRootBlock(ctx, cur)
		if err != nil {
			return TreeValidationReport{}, err
		}
		parent, err := s.GetParentBlock(ctx, root)
		if err != nil {
			return TreeValidationReport{}, err
		}
		if parent == nil {
			return TreeValidationReport{IsValid: true, BlockCount: total}, nil
		}
		raw, err := s.chain.ReadRawBlock(ctx, parent)
		if err != nil {
			return TreeValidationReport{}, err
		}
		if raw == nil {
			return TreeValidationReport{IsValid: false, BlockCount: total, Reason: blockerrors.ReasonMissingParentBlock, Block: parent}, nil
		}
		cur = parent
	}
	return TreeValidationReport{IsValid: true, BlockCount: total}, nil
}

func normalize(hash []byte) []byte {
	if len(hash) == 0 {
		return nil
	}
	return hash
}

func hashesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
