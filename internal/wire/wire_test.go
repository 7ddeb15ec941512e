package wire

import (
	"testing"

	"github.com/blocktree/blocktree/blockerrors"
)

func TestUint64RoundTrip(t *testing.T) {
	buf := PutUint64(nil, 0xdeadbeefcafebabe)
	v, rest, err := ReadUint64(buf)
	if err != nil {
		t.Fatalf("ReadUint64: %v", err)
	}
	if v != 0xdeadbeefcafebabe {
		t.Fatalf("got %x, want %x", v, uint64(0xdeadbeefcafebabe))
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes, got %d", len(rest))
	}
}

func TestPutUint16OutOfBounds(t *testing.T) {
	_, err := PutUint16(nil, 1<<20)
	if err == nil {
		t.Fatal("expected argumentOutOfBounds error")
	}
	var serr *blockerrors.SerializationError
	if !asSerializationError(err, &serr) {
		t.Fatalf("expected SerializationError, got %T", err)
	}
	if serr.Reason != blockerrors.ReasonArgumentOutOfBounds {
		t.Fatalf("got reason %q", serr.Reason)
	}
}

func TestVarFieldRoundTrip(t *testing.T) {
	buf, err := PutVarField(nil, []byte("hello"))
	if err != nil {
		t.Fatalf("PutVarField: %v", err)
	}
	data, rest, err := ReadVarField(buf)
	if err != nil {
		t.Fatalf("ReadVarField: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q", data)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no trailing bytes")
	}
}

func TestReadVarFieldTruncated(t *testing.T) {
	buf, _ := PutVarField(nil, []byte("hello"))
	_, _, err := ReadVarField(buf[:len(buf)-1])
	if err == nil {
		t.Fatal("expected error on truncated field")
	}
}

func TestIsZero(t *testing.T) {
	if !IsZero(make([]byte, 32)) {
		t.Fatal("expected all-zero buffer to report zero")
	}
	nonZero := make([]byte, 32)
	nonZero[31] = 1
	if IsZero(nonZero) {
		t.Fatal("expected non-zero buffer to report non-zero")
	}
}

func asSerializationError(err error, target **blockerrors.SerializationError) bool {
	se, ok := err.(*blockerrors.SerializationError)
	if !ok {
		return false
	}
	*target = se
	return true
}
