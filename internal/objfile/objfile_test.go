package objfile

import (
	"bytes"
	"testing"

	"github.com/ori-fs/ori/internal/hashid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	refs := []BackRef{
		{From: hashid.Sum([]byte("a")), Role: RoleRef},
		{From: hashid.Sum([]byte("b")), Role: RolePurged},
	}
	rec := Record{Type: TypeBlob, Payload: []byte("hello world"), BackRefs: refs}

	data, err := Encode(rec, passthrough)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(data, passthrough)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != TypeBlob {
		t.Fatalf("Type = %v, want Blob", got.Type)
	}
	if !bytes.Equal(got.Payload, rec.Payload) {
		t.Fatalf("Payload = %q, want %q", got.Payload, rec.Payload)
	}
	if len(got.BackRefs) != 2 || got.BackRefs[0] != refs[0] || got.BackRefs[1] != refs[1] {
		t.Fatalf("BackRefs = %v, want %v", got.BackRefs, refs)
	}
}

func TestPeekType(t *testing.T) {
	data, err := Encode(Record{Type: TypeTree, Payload: []byte("x")}, passthrough)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	typ, err := PeekType(data)
	if err != nil {
		t.Fatalf("PeekType: %v", err)
	}
	if typ != TypeTree {
		t.Fatalf("PeekType = %v, want Tree", typ)
	}
}

func TestPurgeRequiresBlob(t *testing.T) {
	data, err := Encode(Record{Type: TypeTree, Payload: []byte("x")}, passthrough)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := Purge(data); err == nil {
		t.Fatal("Purge on a Tree should fail")
	}
}

func TestPurgePreservesBackRefs(t *testing.T) {
	refs := []BackRef{{From: hashid.Sum([]byte("c")), Role: RoleRef}}
	data, err := Encode(Record{Type: TypeBlob, Payload: []byte("secret"), BackRefs: refs}, passthrough)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	purged, err := Purge(data)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	rec, err := Decode(purged, passthrough)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rec.Type != TypePurged {
		t.Fatalf("Type = %v, want Purged", rec.Type)
	}
	if len(rec.Payload) != 0 {
		t.Fatalf("Payload = %q, want empty", rec.Payload)
	}
	if len(rec.BackRefs) != 1 || rec.BackRefs[0] != refs[0] {
		t.Fatalf("BackRefs = %v, want %v", rec.BackRefs, refs)
	}
}

func TestReplaceBackRefsLeavesPayloadAlone(t *testing.T) {
	data, err := Encode(Record{Type: TypeBlob, Payload: []byte("payload")}, passthrough)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	newRefs := []BackRef{{From: hashid.Sum([]byte("d")), Role: RoleRef}}
	updated, err := ReplaceBackRefs(data, newRefs)
	if err != nil {
		t.Fatalf("ReplaceBackRefs: %v", err)
	}
	rec, err := Decode(updated, passthrough)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(rec.Payload, []byte("payload")) {
		t.Fatalf("Payload changed: %q", rec.Payload)
	}
	if len(rec.BackRefs) != 1 || rec.BackRefs[0] != newRefs[0] {
		t.Fatalf("BackRefs = %v, want %v", rec.BackRefs, newRefs)
	}
}

func TestDecodeRejectsUnknownTag(t *testing.T) {
	bogus := []byte("XXXX\x00\x00\x00\x00\x00\x00\x00\x00\x00")
	if _, err := Decode(bogus, passthrough); err == nil {
		t.Fatal("Decode should reject an unknown tag")
	}
}
