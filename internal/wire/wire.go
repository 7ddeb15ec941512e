// Package wire implements the fixed-width big-endian primitive encoders
// and length-prefixed field helpers shared by the blockchain, blocktree,
// and securetree wire formats. Every decoder rejects malformed or
// out-of-range input with a blockerrors.SerializationError instead of
// panicking.
package wire

import (
	"encoding/binary"

	"github.com/blocktree/blocktree/blockerrors"
)

// PutUint8 appends a single byte. v must fit in a byte; callers that
// already know this (the common case) can just append directly, but this
// helper exists for symmetry with the wider PutUintN family.
func PutUint8(buf []byte, v uint64) ([]byte, error) {
	if v > 0xff {
		return nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonArgumentOutOfBounds)
	}
	return append(buf, byte(v)), nil
}

func PutUint16(buf []byte, v uint64) ([]byte, error) {
	if v > 0xffff {
		return nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonArgumentOutOfBounds)
	}
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], uint16(v))
	return append(buf, b[:]...), nil
}

func PutUint32(buf []byte, v uint64) ([]byte, error) {
	if v > 0xffffffff {
		return nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonArgumentOutOfBounds)
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(buf, b[:]...), nil
}

func PutUint64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func ReadUint8(buf []byte) (uint64, []byte, error) {
	if len(buf) < 1 {
		return 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	return uint64(buf[0]), buf[1:], nil
}

func ReadUint16(buf []byte) (uint64, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	return uint64(binary.BigEndian.Uint16(buf[:2])), buf[2:], nil
}

func ReadUint32(buf []byte) (uint64, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	return uint64(binary.BigEndian.Uint32(buf[:4])), buf[4:], nil
}

func ReadUint64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	return binary.BigEndian.Uint64(buf[:8]), buf[8:], nil
}

// PutVarField writes a 2-byte big-endian length header followed by data.
func PutVarField(buf []byte, data []byte) ([]byte, error) {
	buf, err := PutUint16(buf, uint64(len(data)))
	if err != nil {
		return nil, err
	}
	return append(buf, data...), nil
}

// ReadVarField reads a 2-byte length-prefixed field.
func ReadVarField(buf []byte) ([]byte, []byte, error) {
	n, rest, err := ReadUint16(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < n {
		return nil, nil, blockerrors.NewSerializationError(blockerrors.LayerL1, blockerrors.ReasonInvalidHash)
	}
	return rest[:n], rest[n:], nil
}

// IsZero reports whether a fixed-length hash field is the all-zero null
// sentinel used at L2/L3.
func IsZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
