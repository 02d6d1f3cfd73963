package hashid

import "testing"

func TestSumStability(t *testing.T) {
	h1 := Sum([]byte("hello"))
	h2 := Sum([]byte("hello"))
	if h1 != h2 {
		t.Fatalf("Sum not stable: %v != %v", h1, h2)
	}
	// Known SHA-256("hello") test vector.
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if h1.Hex() != want[:64] {
		t.Fatalf("Sum(%q) = %s, want %s", "hello", h1.Hex(), want[:64])
	}
}

func TestEmpty(t *testing.T) {
	var h HashId
	if !h.IsEmpty() {
		t.Fatal("zero value should be empty")
	}
	if !Sum([]byte("x")).Equal(Sum([]byte("x"))) {
		t.Fatal("Equal should hold for identical sums")
	}
	if Sum([]byte("x")).IsEmpty() {
		t.Fatal("a real hash should not be empty")
	}
}

func TestHexRoundTrip(t *testing.T) {
	h := Sum([]byte("round trip"))
	parsed, err := FromHex(h.Hex())
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}
	if parsed != h {
		t.Fatalf("round trip mismatch: %v != %v", parsed, h)
	}
}

func TestFromHexMalformed(t *testing.T) {
	cases := []string{
		"",
		"abc",
		"not-hex-at-all-but-right-length-00000000000000000000000000000000",
	}
	for _, c := range cases {
		if _, err := FromHex(c); err == nil {
			t.Errorf("FromHex(%q) should have failed", c)
		}
	}
}

func TestShardSplit(t *testing.T) {
	h := Sum([]byte("shard"))
	if len(h.ShardDir()) != 2 {
		t.Fatalf("shard dir should be 2 hex chars, got %q", h.ShardDir())
	}
	if h.ShardDir()+h.ShardName() != h.Hex() {
		t.Fatalf("shard dir+name should reconstitute the hex hash")
	}
}

func TestLess(t *testing.T) {
	a := HashId{0x00}
	b := HashId{0x01}
	if !a.Less(b) || b.Less(a) {
		t.Fatal("Less should give a strict total order")
	}
}
