package blockchain_test

import (
	"context"
	"testing"
	"time"

	"github.com/blocktree/blocktree/blockchain"
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/internal/blockcache"
	"github.com/blocktree/blocktree/internal/clock"
	"github.com/blocktree/blocktree/internal/cryptoprovider"
	"github.com/blocktree/blocktree/internal/store/memstore"
)

func newTestStore(t *testing.T) (*blockchain.Store, *clock.Source) {
	t.Helper()
	provider := cryptoprovider.New()
	clk := clock.New()
	store := memstore.New(provider)
	cache := blockcache.New(0)
	return blockchain.New(store, cache, provider, provider, clk), clk
}

func TestWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	hash, err := s.WriteBlock(ctx, blockchain.WriteInput{Data: []byte("I'm a string!")}, blockchain.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	block, err := s.ReadBlock(ctx, hash)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if block == nil {
		t.Fatal("expected block, got nil")
	}
	if string(block.Data) != "I'm a string!" {
		t.Fatalf("got data %q", block.Data)
	}
	if block.Prev != nil {
		t.Fatalf("expected nil prev, got %x", block.Prev)
	}
	if block.Timestamp == 0 {
		t.Fatal("expected nonzero timestamp")
	}
	if block.Nonce == 0 {
		t.Fatal("expected nonzero nonce (astronomically unlikely to be exactly zero)")
	}
}

func TestReadBlockNullHash(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	block, err := s.ReadBlock(ctx, nil)
	if err != nil {
		t.Fatalf("ReadBlock(nil): %v", err)
	}
	if block != nil {
		t.Fatal("expected nil block for null hash")
	}
}

func TestReadBlockInvalidLength(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.ReadBlock(ctx, []byte{1, 2, 3})
	if err == nil {
		t.Fatal("expected SerializationError for wrong-length hash")
	}
	var serr *blockerrors.SerializationError
	if !asSerializationError(err, &serr) {
		t.Fatalf("expected SerializationError, got %T", err)
	}
	if serr.Reason != blockerrors.ReasonInvalidBlockHash {
		t.Fatalf("got reason %q", serr.Reason)
	}
}

func TestChainOfOneHundredBlocks(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	var prev []byte
	var root, last []byte
	for i := 0; i < 100; i++ {
		hash, err := s.WriteBlock(ctx, blockchain.WriteInput{Prev: prev, Data: []byte{byte(i)}}, blockchain.WriteOptions{})
		if err != nil {
			t.Fatalf("WriteBlock %d: %v", i, err)
		}
		if i == 0 {
			root = hash
		}
		prev = hash
		last = hash
	}

	count, err := s.CountBlocks(ctx)
	if err != nil {
		t.Fatalf("CountBlocks: %v", err)
	}
	if count != 100 {
		t.Fatalf("got count %d, want 100", count)
	}

	head, err := s.GetHeadBlock(ctx, root)
	if err != nil {
		t.Fatalf("GetHeadBlock: %v", err)
	}
	if !bytesEqual(head, last) {
		t.Fatalf("got head %x, want %x", head, last)
	}

	report, err := s.ValidateBlockchain(ctx, last)
	if err != nil {
		t.Fatalf("ValidateBlockchain: %v", err)
	}
	if !report.IsValid || report.BlockCount != 100 {
		t.Fatalf("got report %+v", report)
	}

	// getRootBlock(getHeadBlock(r)) == r
	root2, err := s.GetRootBlock(ctx, head)
	if err != nil {
		t.Fatalf("GetRootBlock: %v", err)
	}
	if !bytesEqual(root2, root) {
		t.Fatalf("got root %x, want %x", root2, root)
	}
}

func TestWriteBlockRejectsBackwardsTimestamp(t *testing.T) {
	ctx := context.Background()
	s, clk := newTestStore(t)

	b1, err := s.WriteBlock(ctx, blockchain.WriteInput{Data: []byte("b1")}, blockchain.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock b1: %v", err)
	}

	clk.SetNextTimestamp(0)
	_, err = s.WriteBlock(ctx, blockchain.WriteInput{Prev: b1, Data: []byte("b2")}, blockchain.WriteOptions{})
	if err == nil {
		t.Fatal("expected invalidTimestamp error")
	}
	var berr *blockerrors.InvalidBlockError
	if !asInvalidBlockError(err, &berr) {
		t.Fatalf("expected InvalidBlockError, got %T", err)
	}
	if berr.Reason != blockerrors.ReasonInvalidTimestamp {
		t.Fatalf("got reason %q", berr.Reason)
	}
}

func TestWriteBlockRejectsDuplicateHead(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	b1, err := s.WriteBlock(ctx, blockchain.WriteInput{Data: []byte("b1")}, blockchain.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock b1: %v", err)
	}
	if _, err := s.WriteBlock(ctx, blockchain.WriteInput{Prev: b1, Data: []byte("first child")}, blockchain.WriteOptions{}); err != nil {
		t.Fatalf("WriteBlock first child: %v", err)
	}
	_, err = s.WriteBlock(ctx, blockchain.WriteInput{Prev: b1, Data: []byte("second child")}, blockchain.WriteOptions{})
	if err == nil {
		t.Fatal("expected nextBlockExists error")
	}
	var berr *blockerrors.InvalidBlockError
	if !asInvalidBlockError(err, &berr) {
		t.Fatalf("expected InvalidBlockError, got %T", err)
	}
	if berr.Reason != blockerrors.ReasonNextBlockExists {
		t.Fatalf("got reason %q", berr.Reason)
	}
}

func TestGetRootBlockDanglingPrevReturnsNull(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	// A block whose prev was never written, appended with validation off.
	missing := make([]byte, 32)
	missing[0] = 0xAB
	noValidate := false
	tip, err := s.WriteBlock(ctx, blockchain.WriteInput{Prev: missing, Data: []byte("orphan")}, blockchain.WriteOptions{Validate: &noValidate})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	root, err := s.GetRootBlock(ctx, tip)
	if err != nil {
		t.Fatalf("GetRootBlock: %v", err)
	}
	if root != nil {
		t.Fatalf("expected null root for dangling chain, got %x", root)
	}

	head, err := s.GetHeadBlock(ctx, tip)
	if err != nil {
		t.Fatalf("GetHeadBlock: %v", err)
	}
	if head != nil {
		t.Fatalf("expected null head for dangling chain, got %x", head)
	}

	report, err := s.ValidateBlockchain(ctx, tip)
	if err != nil {
		t.Fatalf("ValidateBlockchain: %v", err)
	}
	if report.IsValid || report.Reason != blockerrors.ReasonMissingBlock {
		t.Fatalf("got report %+v, want missingBlock failure", report)
	}
}

func TestGetHeadBlockSingletonChainReturnsRoot(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	root, err := s.WriteBlock(ctx, blockchain.WriteInput{Data: []byte("only")}, blockchain.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	head, err := s.GetHeadBlock(ctx, root)
	if err != nil {
		t.Fatalf("GetHeadBlock: %v", err)
	}
	if !bytesEqual(head, root) {
		t.Fatalf("got head %x, want root %x", head, root)
	}
}

func TestListBlocksByPrefix(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	var hashes [][]byte
	for i := 0; i < 10; i++ {
		h, err := s.WriteBlock(ctx, blockchain.WriteInput{Data: []byte{byte(i)}}, blockchain.WriteOptions{})
		if err != nil {
			t.Fatalf("WriteBlock %d: %v", i, err)
		}
		hashes = append(hashes, h)
	}
	prefix := hashes[0][:1]
	got, err := s.ListBlocks(ctx, prefix)
	if err != nil {
		t.Fatalf("ListBlocks: %v", err)
	}
	for _, h := range got {
		if len(h) == 0 || h[0] != prefix[0] {
			t.Fatalf("got hash %x not matching prefix %x", h, prefix)
		}
	}
	var want int
	for _, h := range hashes {
		if h[0] == prefix[0] {
			want++
		}
	}
	if len(got) != want {
		t.Fatalf("got %d matches, want %d", len(got), want)
	}
}

func TestClockNewWithFuncIsStable(t *testing.T) {
	base := time.Unix(1000, 0)
	clk := clock.NewWithFunc(func() time.Time { return base })
	first := clk.Now()
	second := clk.Now()
	if first != second {
		t.Fatalf("expected stable clock, got %d then %d", first, second)
	}
}

func bytesEqual(a, b []byte) bool {
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

func asSerializationError(err error, target **blockerrors.SerializationError) bool {
	se, ok := err.(*blockerrors.SerializationError)
	if !ok {
		return false
	}
	*target = se
	return true
}

func asInvalidBlockError(err error, target **blockerrors.InvalidBlockError) bool {
	be, ok := err.(*blockerrors.InvalidBlockError)
	if !ok {
		return false
	}
	*target = be
	return true
}
