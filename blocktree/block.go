// Package blocktree implements the L2 parent/child overlay over the L1
// blockchain store: it turns a flat set of chains into a tree by
// attaching a parent chain-root reference and a layer tag to every
// block's L1 payload.
package blocktree

import (
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/internal/wire"
)

// TreeBlock is an L1 block with the L2 parent/layer header peeled off
// its Data.
type TreeBlock struct {
	Hash      []byte
	Prev      []byte
	Parent    []byte // nil when null
	Layer     byte
	Payload   []byte
	Nonce     uint64
	Timestamp uint64
}

// IsRoot reports whether this block starts a chain.
func (b *TreeBlock) IsRoot() bool { return len(b.Prev) == 0 }

// encodeHeader builds the fixed-width L2 header: [hashLen bytes parent,
// all-zero when null][1 byte layer][payload].
func encodeHeader(parent []byte, hashLen int, layer byte, payload []byte) []byte {
	buf := make([]byte, 0, hashLen+1+len(payload))
	field := make([]byte, hashLen)
	copy(field, parent) // parent shorter than hashLen only when nil
	buf = append(buf, field...)
	buf = append(buf, layer)
	buf = append(buf, payload...)
	return buf
}

// decodeHeader parses the fixed-width L2 header out of L1 data.
func decodeHeader(data []byte, hashLen int) (parent []byte, layer byte, payload []byte, err error) {
	if len(data) < hashLen+1 {
		return nil, 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL2, blockerrors.ReasonInvalidHash)
	}
	field := data[:hashLen]
	layer = data[hashLen]
	payload = data[hashLen+1:]
	if wire.IsZero(field) {
		parent = nil
	} else {
		parent = field
	}
	return parent, layer, payload, nil
}
