// Package blockchain implements the L1 content-addressed append-only
// block store: byte layout, hashing, prev-link integrity, and per-chain
// head uniqueness. The layer above (blocktree)
// treats this as an opaque, validated sequence of hash-identified
// records and only ever touches the `data` field.
package blockchain

import (
	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/internal/wire"
)

// Block is an immutable L1 record. Hash is derived, never stored inside
// the serialized bytes.
type Block struct {
	Prev      []byte // nil when this is a chain root
	Nonce     uint64
	Timestamp uint64
	Data      []byte
	Hash      []byte
}

// IsRoot reports whether b has no predecessor in its chain.
func (b *Block) IsRoot() bool { return len(b.Prev) == 0 }

// Serialize encodes a block as
// [1 byte: prev_len-1][prev_len bytes, or a single zero byte when null]
// [8 bytes nonce][8 bytes timestamp][data]. A null prev is encoded as
// prev_len=1 (lenByte 0) followed by one zero byte, so the length prefix
// is always consistent with the bytes that follow it.
func Serialize(prev []byte, nonce, timestamp uint64, data []byte) []byte {
	var buf []byte
	if len(prev) == 0 {
		buf = append(buf, 0, 0)
	} else {
		buf = append(buf, byte(len(prev)-1))
		buf = append(buf, prev...)
	}
	buf = wire.PutUint64(buf, nonce)
	buf = wire.PutUint64(buf, timestamp)
	buf = append(buf, data...)
	return buf
}

// Deserialize parses raw L1 bytes into prev/nonce/timestamp/data, without
// computing the hash (the caller supplies it, since it is a function of
// the whole buffer plus the hash function in use).
func Deserialize(raw []byte) (prev []byte, nonce, timestamp uint64, data []byte, err error) {
	if len(raw) < 1 {
		return nil, 0, 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	lenByte := raw[0]
	rest := raw[1:]
	prevLen := int(lenByte) + 1
	if len(rest) < prevLen {
		return nil, 0, 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	prevField := rest[:prevLen]
	rest = rest[prevLen:]
	if lenByte == 0 && prevField[0] == 0 {
		prev = nil
	} else {
		prev = prevField
	}
	nonce, rest, err = wire.ReadUint64(rest)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	timestamp, rest, err = wire.ReadUint64(rest)
	if err != nil {
		return nil, 0, 0, nil, err
	}
	data = rest
	return prev, nonce, timestamp, data, nil
}
