package blockchain

import (
	"context"
	"encoding/binary"

	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/storage"
)

// Hasher is the subset of the crypto provider collaborator this layer
// needs: content hashing and its fixed digest length.
// cryptoprovider.Provider satisfies this structurally.
type Hasher interface {
	Hash(data []byte) []byte
	HashLen() int
}

// Randomer is the subset of the crypto provider needed for nonce
// generation.
type Randomer interface {
	RandomBytes(n int) ([]byte, error)
}

// Clock is the monotonic time collaborator.
type Clock interface {
	Now() uint64
}

// Store is the L1 blockchain: a content-addressed append-only block
// store layered over an injected Storage collaborator, with an
// injected Cache for read-through hints and Hasher/Randomer/Clock
// collaborators for identity, nonces, and timestamps.
type Store struct {
	storage storage.Storage
	cache   storage.Cache
	hasher  Hasher
	rng     Randomer
	clock   Clock
}

// New constructs a Store over the given collaborators.
func New(store storage.Storage, cache storage.Cache, hasher Hasher, rng Randomer, clock Clock) *Store {
	return &Store{storage: store, cache: cache, hasher: hasher, rng: rng, clock: clock}
}

// WriteInput carries the caller-supplied fields for WriteBlock. Nonce,
// timestamp, and hash are always generated by the store itself; the
// caller only controls Prev and Data.
type WriteInput struct {
	Prev []byte
	Data []byte
}

// WriteOptions controls WriteBlock's validation pass.
type WriteOptions struct {
	// Validate defaults to true. Pass a false pointer to skip validation.
	Validate *bool
}

func (o WriteOptions) validates() bool {
	return o.Validate == nil || *o.Validate
}

// WriteBlock appends a new block to the store and returns its content
// hash.
func (s *Store) WriteBlock(ctx context.Context, in WriteInput, opts WriteOptions) ([]byte, error) {
	prev := normalizeHash(in.Prev, s.hasher.HashLen())

	if opts.validates() {
		if prev != nil {
			raw, ok, err := s.storage.ReadBytes(ctx, prev)
			if err != nil {
				return nil, err
			}
			if !ok || raw == nil {
				return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL1, blockerrors.ReasonInvalidParentBlock)
			}
		}
	}

	nonceBytes, err := s.rng.RandomBytes(8)
	if err != nil {
		return nil, err
	}
	nonce := binary.BigEndian.Uint64(nonceBytes)
	timestamp := s.clock.Now()

	if opts.validates() && prev != nil {
		prevBlock, err := s.readBlockRaw(ctx, prev)
		if err != nil {
			return nil, err
		}
		if prevBlock == nil {
			return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL1, blockerrors.ReasonInvalidParentBlock)
		}
		if timestamp < prevBlock.Timestamp {
			return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL1, blockerrors.ReasonInvalidTimestamp)
		}
		if existing, err := s.GetNextBlock(ctx, prev); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, blockerrors.NewInvalidBlockError(blockerrors.LayerL1, blockerrors.ReasonNextBlockExists)
		}
	}

	raw := Serialize(prev, nonce, timestamp, in.Data)
	hash, err := s.storage.WriteBytes(ctx, raw)
	if err != nil {
		return nil, err
	}

	if prev != nil {
		s.cache.WriteCache(prev, storage.SlotNext, hash)
	}
	return hash, nil
}

// ReadBlock returns the parsed block identified by hash, or nil when
// hash is the null/zero sentinel or names no stored block.
func (s *Store) ReadBlock(ctx context.Context, hash []byte) (*Block, error) {
	hash = normalizeHash(hash, s.hasher.HashLen())
	if hash == nil {
		return nil, nil
	}
	if len(hash) != s.hasher.HashLen() {
		return nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidBlockHash)
	}
	return s.readBlockRaw(ctx, hash)
}

// readBlockRaw reads and parses the stored bytes for hash, returning
// nil (not an error) when the store has no entry for it.
func (s *Store) readBlockRaw(ctx context.Context, hash []byte) (*Block, error) {
	raw, ok, err := s.storage.ReadBytes(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.ReadBlockBytes(raw)
}

// ReadRawBlock returns the stored bytes for hash, or nil when absent.
func (s *Store) ReadRawBlock(ctx context.Context, hash []byte) ([]byte, error) {
	hash = normalizeHash(hash, s.hasher.HashLen())
	if hash == nil {
		return nil, nil
	}
	raw, ok, err := s.storage.ReadBytes(ctx, hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return raw, nil
}

// ReadBlockBytes parses raw L1 bytes into a Block and computes its hash.
func (s *Store) ReadBlockBytes(raw []byte) (*Block, error) {
	prev, nonce, timestamp, data, err := Deserialize(raw)
	if err != nil {
		return nil, err
	}
	return &Block{
		Prev:      prev,
		Nonce:     nonce,
		Timestamp: timestamp,
		Data:      data,
		Hash:      s.hasher.Hash(raw),
	}, nil
}

// ListBlocks returns every stored hash that starts with prefix
// (or every hash, when prefix is empty). Order is unspecified.
func (s *Store) ListBlocks(ctx context.Context, prefix []byte) ([][]byte, error) {
	return s.storage.ListKeys(ctx, prefix)
}

// CountBlocks returns the number of blocks in the store.
func (s *Store) CountBlocks(ctx context.Context) (int, error) {
	return s.storage.Count(ctx)
}

// GetNextBlock returns the unique block whose Prev equals hash, or nil.
func (s *Store) GetNextBlock(ctx context.Context, hash []byte) ([]byte, error) {
	hash = normalizeHash(hash, s.hasher.HashLen())
	if hash == nil {
		return nil, nil
	}
	if v, ok := s.cache.ReadCache(hash, storage.SlotNext); ok {
		if next, ok := v.([]byte); ok {
			return next, nil
		}
	}
	raw, ok, err := s.storage.FindInStorage(ctx, func(b []byte) bool {
		prev, _, _, _, err := Deserialize(b)
		if err != nil {
			return false
		}
		return hashesEqual(prev, hash)
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	next := s.hasher.Hash(raw)
	s.cache.WriteCache(hash, storage.SlotNext, next)
	return next, nil
}

// GetRootBlock walks Prev links back from hash to the chain root. It
// returns nil when any link along the way is missing from the store.
func (s *Store) GetRootBlock(ctx context.Context, hash []byte) ([]byte, error) {
	hash = normalizeHash(hash, s.hasher.HashLen())
	if hash == nil {
		return nil, nil
	}
	cur := hash
	for {
		block, err := s.readBlockRaw(ctx, cur)
		if err != nil {
			return nil, err
		}
		if block == nil {
			return nil, nil
		}
		if block.Prev == nil {
			return cur, nil
		}
		cur = block.Prev
	}
}

// GetHeadBlock finds hash's chain root, then walks Next links to the
// tip. It caches the result on the root under SlotHeadBlock, but only
// when the walk actually observed at least one Next link. A cached head
// is only the walk's starting point, so blocks appended after it was
// cached are still found. A singleton chain's head is the root itself
// and is not cached.
func (s *Store) GetHeadBlock(ctx context.Context, hash []byte) ([]byte, error) {
	root, err := s.GetRootBlock(ctx, hash)
	if err != nil || root == nil {
		return root, err
	}
	cur := root
	if v, ok := s.cache.ReadCache(root, storage.SlotHeadBlock); ok {
		if head, ok := v.([]byte); ok {
			cur = head
		}
	}
	advanced := false
	for {
		next, err := s.GetNextBlock(ctx, cur)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		cur = next
		advanced = true
	}
	if advanced {
		s.cache.WriteCache(root, storage.SlotHeadBlock, cur)
	}
	return cur, nil
}

// ValidationReport is the total (never-raising) result of
// ValidateBlockchain.
type ValidationReport struct {
	IsValid    bool
	BlockCount int
	Reason     string
	Block      []byte
}

// ValidateBlockchain walks Prev links from tip to the root, reporting
// missingBlock or invalidTimestamp failures in the report instead of
// returning them as errors.
func (s *Store) ValidateBlockchain(ctx context.Context, tip []byte) (ValidationReport, error) {
	tip = normalizeHash(tip, s.hasher.HashLen())
	if tip == nil {
		return ValidationReport{IsValid: true, BlockCount: 0}, nil
	}
	count := 0
	cur := tip
	var prevTimestamp uint64
	haveTimestamp := false
	for {
		raw, ok, err := s.storage.ReadBytes(ctx, cur)
		if err != nil {
			return ValidationReport{}, err
		}
		if !ok {
			return ValidationReport{IsValid: false, BlockCount: count, Reason: blockerrors.ReasonMissingBlock, Block: cur}, nil
		}
		block, err := s.ReadBlockBytes(raw)
		if err != nil {
			return ValidationReport{}, err
		}
		count++
		if haveTimestamp && block.Timestamp > prevTimestamp {
			// Walking backwards: the predecessor's timestamp must be
			// <= this block's timestamp, i.e. the child we already
			// visited must not be older than its own parent.
			return ValidationReport{IsValid: false, BlockCount: count, Reason: blockerrors.ReasonInvalidTimestamp, Block: cur}, nil
		}
		prevTimestamp = block.Timestamp
		haveTimestamp = true
		if block.Prev == nil {
			return ValidationReport{IsValid: true, BlockCount: count}, nil
		}
		cur = block.Prev
	}
}

func normalizeHash(hash []byte, hashLen int) []byte {
	if len(hash) == 0 {
		return nil
	}
	allZero := true
	for _, b := range hash {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
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
