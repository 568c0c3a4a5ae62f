package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	h := NewHasher(Params{})

	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("unexpected hash format: %s", encoded)
	}

	ok, err := h.Verify("correct horse battery staple", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !ok {
		t.Fatal("expected match for correct password")
	}

	ok, err = h.Verify("wrong password", encoded)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if ok {
		t.Fatal("expected mismatch for wrong password")
	}
}

func TestHashUnique(t *testing.T) {
	h := NewHasher(Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})

	a, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	b, err := h.Hash("same input")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if a == b {
		t.Fatal("two hashes of the same password must differ by salt")
	}
}

func TestVerifyMalformed(t *testing.T) {
	h := NewHasher(Params{})

	for _, bad := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=65536,t=2,p=2$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=2,p=2$not-base64!$aGFzaA",
	} {
		if _, err := h.Verify("x", bad); err == nil {
			t.Errorf("expected error for malformed hash %q", bad)
		}
	}
}

func TestNeedsUpgrade(t *testing.T) {
	weak := NewHasher(Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1})
	strong := NewHasher(Params{Memory: 64 * 1024, Iterations: 2, Parallelism: 2})

	encoded, err := weak.Hash("pw")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	if !strong.NeedsUpgrade(encoded) {
		t.Fatal("weak hash should need upgrade under stronger params")
	}
	if weak.NeedsUpgrade(encoded) {
		t.Fatal("hash at current params should not need upgrade")
	}
	if !strong.NeedsUpgrade("garbage") {
		t.Fatal("unparseable hash should be flagged for upgrade")
	}
}
