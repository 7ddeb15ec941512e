package blocktree_test

import (
	"context"
	"testing"

	"github.com/blocktree/blocktree/blockchain"
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/blocktree"
	"github.com/blocktree/blocktree/internal/blockcache"
	"github.com/blocktree/blocktree/internal/clock"
	"github.com/blocktree/blocktree/internal/cryptoprovider"
	"github.com/blocktree/blocktree/internal/store/memstore"
)

func newTestStore(t *testing.T) *blocktree.Store {
	t.Helper()
	provider := cryptoprovider.New()
	clk := clock.New()
	store := memstore.New(provider)
	cache := blockcache.New(0)
	chain := blockchain.New(store, cache, provider, provider, clk)
	return blocktree.New(chain, cache, provider)
}

func writeRoot(t *testing.T, s *blocktree.Store, data []byte) []byte {
	t.Helper()
	hash, err := s.WriteBlock(context.Background(), blocktree.WriteInput{Data: data}, blocktree.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	return hash
}

func writeChild(t *testing.T, s *blocktree.Store, parent []byte, data []byte) []byte {
	t.Helper()
	hash, err := s.WriteBlock(context.Background(), blocktree.WriteInput{Parent: parent, Data: data}, blocktree.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}
	return hash
}

func TestPerformParentScanFiveLevels(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b1 := writeRoot(t, s, []byte("b1"))
	b2 := writeChild(t, s, b1, []byte("b2"))
	b3 := writeChild(t, s, b2, []byte("b3"))
	b4 := writeChild(t, s, b3, []byte("b4"))
	b5 := writeChild(t, s, b4, []byte("b5"))

	blocks, err := s.PerformParentScan(ctx, b5)
	if err != nil {
		t.Fatalf("PerformParentScan: %v", err)
	}
	want := [][]byte{b5, b4, b3, b2, b1}
	if len(blocks) != len(want) {
		t.Fatalf("got %d blocks, want %d", len(blocks), len(want))
	}
	for i, b := range blocks {
		if !bytesEqual(b.Hash, want[i]) {
			t.Fatalf("position %d: got %x, want %x", i, b.Hash, want[i])
		}
	}
}

func TestPerformChildScanAndCache(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b1 := writeRoot(t, s, []byte("b1"))

	c2, err := s.WriteBlock(ctx, blocktree.WriteInput{Parent: b1, Data: []byte("c2")}, blocktree.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock c2: %v", err)
	}
	c3, err := s.WriteBlock(ctx, blocktree.WriteInput{Parent: b1, Data: []byte("c3")}, blocktree.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock c3: %v", err)
	}
	c4, err := s.WriteBlock(ctx, blocktree.WriteInput{Parent: b1, Data: []byte("c4")}, blocktree.WriteOptions{})
	if err != nil {
		t.Fatalf("WriteBlock c4: %v", err)
	}

	children, err := s.PerformChildScan(ctx, b1)
	if err != nil {
		t.Fatalf("PerformChildScan: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("got %d children, want 3", len(children))
	}
	seen := map[string]bool{}
	for _, c := range children {
		seen[string(c.Hash)] = true
	}
	for _, want := range [][]byte{c2, c3, c4} {
		if !seen[string(want)] {
			t.Fatalf("missing expected child %x", want)
		}
	}

	// Second call should be served from cache and return the same set.
	children2, err := s.PerformChildScan(ctx, b1)
	if err != nil {
		t.Fatalf("PerformChildScan (cached): %v", err)
	}
	if len(children2) != 3 {
		t.Fatalf("cached call: got %d children, want 3", len(children2))
	}
}

func TestWriteBlockRejectsMissingParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	fakeParent := make([]byte, 32)
	fakeParent[0] = 0xFF
	_, err := s.WriteBlock(ctx, blocktree.WriteInput{Parent: fakeParent, Data: []byte("x")}, blocktree.WriteOptions{})
	if err == nil {
		t.Fatal("expected invalidParentBlock error")
	}
	var berr *blockerrors.InvalidBlockError
	if !asInvalidBlockError(err, &berr) {
		t.Fatalf("expected InvalidBlockError, got %T", err)
	}
	if berr.Reason != blockerrors.ReasonInvalidParentBlock {
		t.Fatalf("got reason %q", berr.Reason)
	}
}

func TestValidateBlocktreeAcrossParentLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b1 := writeRoot(t, s, []byte("b1"))
	b2 := writeChild(t, s, b1, []byte("b2"))
	b3 := writeChild(t, s, b2, []byte("b3"))

	report, err := s.ValidateBlocktree(ctx, b3)
	if err != nil {
		t.Fatalf("ValidateBlocktree: %v", err)
	}
	if !report.IsValid {
		t.Fatalf("expected valid report, got %+v", report)
	}
	if report.BlockCount != 3 {
		t.Fatalf("got block count %d, want 3", report.BlockCount)
	}
}

func TestGetParentBlockNullForRoot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b1 := writeRoot(t, s, []byte("root"))
	parent, err := s.GetParentBlock(ctx, b1)
	if err != nil {
		t.Fatalf("GetParentBlock: %v", err)
	}
	if parent != nil {
		t.Fatalf("expected nil parent, got %x", parent)
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

func asInvalidBlockError(err error, target **blockerrors.InvalidBlockError) bool {
	be, ok := err.(*blockerrors.InvalidBlockError)
	if !ok {
		return false
	}
	*target = be
	return true
}
