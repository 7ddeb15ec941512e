package securetree

import (
	"github.com/blocktree/blocktree/blockerrors"
)

// SecureBlock is the fully-decoded L3 view of a block: its typed body
// plus, for every non-root block, the signature record and the resolved
// signer key.
type SecureBlock struct {
	Hash      []byte
	Prev      []byte
	Parent    []byte
	Timestamp uint64
	Type      BlockType
	KeySet    KeySet        // populated for root/keys/zone/identity/collection
	Options   OptionsRecord // populated for zone/identity/collection/options
	SignerPub []byte        // nil for root
	Signature []byte        // nil for root
}

// IsRoot reports whether b starts its chain. Parent is only meaningful
// on chain roots.
func (b *SecureBlock) IsRoot() bool { return len(b.Prev) == 0 }

// encodePayload builds the L3 payload that becomes the L2 Data field:
// [1 byte type][body][signature record, omitted for root].
func encodePayload(t BlockType, keySet KeySet, opts OptionsRecord, sig *signatureRecord) ([]byte, error) {
	body, err := encodeBody(t, keySet, opts)
	if err != nil {
		return nil, err
	}
	buf := append([]byte{byte(t)}, body...)
	if sig != nil {
		sigBytes, err := encodeSignature(*sig)
		if err != nil {
			return nil, err
		}
		buf = append(buf, sigBytes...)
	}
	return buf, nil
}

// decodePayload parses an L3 payload into its type, body, and (when
// present) signature record.
func decodePayload(payload []byte) (BlockType, KeySet, OptionsRecord, *signatureRecord, error) {
	if len(payload) < 1 {
		return 0, nil, nil, nil, blockerrors.NewSerializationError(blockerrors.LayerL3, blockerrors.ReasonInvalidLayer)
	}
	t := BlockType(payload[0])
	keySet, opts, rest, err := decodeBody(t, payload[1:])
	if err != nil {
		return 0, nil, nil, nil, err
	}
	if t == TypeRoot {
		return t, keySet, opts, nil, nil
	}
	sig, _, err := decodeSignature(rest)
	if err != nil {
		return 0, nil, nil, nil, err
	}
	return t, keySet, opts, &sig, nil
}

// signedBytes is the canonical payload a signature is computed over:
// prev || parent || type byte || body.
func signedBytes(prev, parent []byte, t BlockType, body []byte) []byte {
	buf := make([]byte, 0, len(prev)+len(parent)+1+len(body))
	buf = append(buf, prev...)
	buf = append(buf, parent...)
	buf = append(buf, byte(t))
	buf = append(buf, body...)
	return buf
}
