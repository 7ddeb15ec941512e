package securetree

import (
	"sort"

	"github.com/blocktree/blocktree/blockerrors"
	"github.com/blocktree/blocktree/internal/wire"
)

// encodeKeySet lays out a KeySet as: [1 byte action count][per action:
// varfield action name][2 byte entry count][per entry: varfield pubkey,
// 8 bytes valid_from, 8 bytes valid_to, varfield encrypted private key
// (empty when absent)]]. Actions are sorted so encoding
// is deterministic (and therefore signature bytes are reproducible).
func encodeKeySet(ks KeySet) ([]byte, error) {
	actions := make([]Action, 0, len(ks))
	for a := range ks {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	buf, err := wire.PutUint8(nil, uint64(len(actions)))
	if err != nil {
		return nil, err
	}
	for _, action := range actions {
		buf, err = wire.PutVarField(buf, []byte(action))
		if err != nil {
			return nil, err
		}
		entries := ks[action]
		buf, err = wire.PutUint16(buf, uint64(len(entries)))
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			buf, err = wire.PutVarField(buf, e.PubKey)
			if err != nil {
				return nil, err
			}
			buf = wire.PutUint64(buf, e.ValidFrom)
			buf = wire.PutUint64(buf, e.ValidTo)
			buf, err = wire.PutVarField(buf, e.EncryptedPrivKey)
			if err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

func decodeKeySet(buf []byte) (KeySet, []byte, error) {
	n, rest, err := wire.ReadUint8(buf)
	if err != nil {
		return nil, nil, err
	}
	ks := make(KeySet, n)
	for i := uint64(0); i < n; i++ {
		var nameBytes []byte
		nameBytes, rest, err = wire.ReadVarField(rest)
		if err != nil {
			return nil, nil, err
		}
		action := Action(nameBytes)
		var count uint64
		count, rest, err = wire.ReadUint16(rest)
		if err != nil {
			return nil, nil, err
		}
		entries := make([]KeyEntry, 0, count)
		for j := uint64(0); j < count; j++ {
			var pub []byte
			pub, rest, err = wire.ReadVarField(rest)
			if err != nil {
				return nil, nil, err
			}
			var from, to uint64
			from, rest, err = wire.ReadUint64(rest)
			if err != nil {
				return nil, nil, err
			}
			to, rest, err = wire.ReadUint64(rest)
			if err != nil {
				return nil, nil, err
			}
			var encPriv []byte
			encPriv, rest, err = wire.ReadVarField(rest)
			if err != nil {
				return nil, nil, err
			}
			entries = append(entries, KeyEntry{PubKey: pub, ValidFrom: from, ValidTo: to, EncryptedPrivKey: encPriv})
		}
		ks[action] = entries
	}
	return ks, rest, nil
}

// encodeOptions lays out an OptionsRecord as: [2 byte pair
// count][per pair: varfield key, varfield value]. Keys are sorted for
// deterministic encoding.
func encodeOptions(opts OptionsRecord) ([]byte, error) {
	keys := make([]string, 0, len(opts))
	for k := range opts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf, err := wire.PutUint16(nil, uint64(len(keys)))
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		buf, err = wire.PutVarField(buf, []byte(k))
		if err != nil {
			return nil, err
		}
		buf, err = wire.PutVarField(buf, []byte(opts[k]))
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func decodeOptions(buf []byte) (OptionsRecord, []byte, error) {
	n, rest, err := wire.ReadUint16(buf)
	if err != nil {
		return nil, nil, err
	}
	opts := make(OptionsRecord, n)
	for i := uint64(0); i < n; i++ {
		var k, v []byte
		k, rest, err = wire.ReadVarField(rest)
		if err != nil {
			return nil, nil, err
		}
		v, rest, err = wire.ReadVarField(rest)
		if err != nil {
			return nil, nil, err
		}
		opts[string(k)] = string(v)
	}
	return opts, rest, nil
}

// signatureRecord is (signing_public_key, signature bytes), appended
// after the typed body on every non-root secure block.
type signatureRecord struct {
	PubKey []byte
	Sig    []byte
}

func encodeSignature(sig signatureRecord) ([]byte, error) {
	buf, err := wire.PutVarField(nil, sig.PubKey)
	if err != nil {
		return nil, err
	}
	return wire.PutVarField(buf, sig.Sig)
}

func decodeSignature(buf []byte) (signatureRecord, []byte, error) {
	pub, rest, err := wire.ReadVarField(buf)
	if err != nil {
		return signatureRecord{}, nil, err
	}
	sig, rest, err := wire.ReadVarField(rest)
	if err != nil {
		return signatureRecord{}, nil, err
	}
	return signatureRecord{PubKey: pub, Sig: sig}, rest, nil
}

// encodeBody dispatches to the type-specific encoder, the switch
// doubling as the exhaustiveness check over block types. zone,
// identity, and collection bodies carry both an options record and an
// optional initial key set, so a new entity can be created with its own
// authorized keys in one write instead of requiring a follow-up
// setKeys call (this is what installRoot's rootZoneKeys bootstraps).
func encodeBody(t BlockType, keySet KeySet, opts OptionsRecord) ([]byte, error) {
	switch t {
	case TypeRoot, TypeKeys:
		return encodeKeySet(keySet)
	case TypeOptions:
		return encodeOptions(opts)
	case TypeZone, TypeIdentity, TypeCollection:
		optsBytes, err := encodeOptions(opts)
		if err != nil {
			return nil, err
		}
		keysBytes, err := encodeKeySet(keySet)
		if err != nil {
			return nil, err
		}
		return append(optsBytes, keysBytes...), nil
	default:
		return nil, blockerrors.NewSerializationError(blockerrors.LayerL3, blockerrors.ReasonInvalidLayer)
	}
}

// decodeBody parses a type-specific body, returning whichever of keySet
// / opts the type carries (see encodeBody).
func decodeBody(t BlockType, buf []byte) (KeySet, OptionsRecord, []byte, error) {
	switch t {
	case TypeRoot, TypeKeys:
		ks, rest, err := decodeKeySet(buf)
		return ks, nil, rest, err
	case TypeOptions:
		opts, rest, err := decodeOptions(buf)
		return nil, opts, rest, err
	case TypeZone, TypeIdentity, TypeCollection:
		opts, rest, err := decodeOptions(buf)
		if err != nil {
			return nil, nil, nil, err
		}
		ks, rest, err := decodeKeySet(rest)
		if err != nil {
			return nil, nil, nil, err
		}
		return ks, opts, rest, nil
	default:
		return nil, nil, nil, blockerrors.NewSerializationError(blockerrors.LayerL3, blockerrors.ReasonInvalidLayer)
	}
}
