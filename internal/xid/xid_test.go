package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		id := New("msg")
		if !strings.HasPrefix(id, "msg-") {
			t.Fatalf("expected msg- prefix, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewWithoutPrefix(t *testing.T) {
	id := New("")
	if len(id) != 26 {
		t.Fatalf("expected bare 26 char ulid, got %q", id)
	}
}
