package assets

import (
	"strings"
	"testing"
)

func TestBlobStore(t *testing.T) {
	s := NewBlobStore()
	data := []byte{1, 2, 3}
	a := s.Register("a/b.png", data)
	b := s.Register("", data)

	if a == b {
		t.Fatalf("Register: expected distinct refs, got %q twice", a)
	}
	if !strings.HasPrefix(a, BlobScheme) || strings.Count(a, "/") != 2 {
		t.Errorf("Register: unexpected ref %q", a)
	}

	data[0] = 9
	got, ok := s.Get(a)
	if !ok || got[0] != 1 {
		t.Errorf("Get: expected stored copy, got %v %v", got, ok)
	}

	s.Revoke(a)
	if _, ok := s.Get(a); ok {
		t.Error("Get: expected revoked ref to be gone")
	}
	if s.Len() != 1 {
		t.Errorf("Len: expected 1, got %d", s.Len())
	}
}
