package crypto

import "testing"

func TestOpaqueTokensAreUnique(t *testing.T) {
	first, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	second, err := NewOpaqueToken()
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct tokens")
	}
	if len(first) != 43 {
		t.Fatalf("expected 43 url-safe chars, got %d", len(first))
	}
}

func TestHashTokenIsStable(t *testing.T) {
	if HashToken("abc") != HashToken("abc") {
		t.Fatalf("expected stable hash")
	}
	if HashToken("abc") == HashToken("abd") {
		t.Fatalf("expected different hashes")
	}
}
