package cryptoutil

import (
	"strings"
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	tests := map[string]string{
		"":      "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		"abc":   "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		"hello": "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
	}
	for in, want := range tests {
		if got := SHA256Hex([]byte(in)); got != want {
			t.Errorf("SHA256Hex(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	doc := []byte(`{"_type":"legalPage","slug":{"current":"privacy"}}`)
	full := SHA256Hex(doc)
	for _, tt := range []struct {
		n, wantLen int
	}{
		{12, 12},
		{32, 32},
		{0, 1},
		{-5, 1},
		{500, 64},
	} {
		got := Fingerprint(doc, tt.n)
		if len(got) != tt.wantLen || !strings.HasPrefix(full, got) {
			t.Errorf("Fingerprint(n=%d) = %q", tt.n, got)
		}
	}
	if Fingerprint([]byte("a"), 12) == Fingerprint([]byte("b"), 12) {
		t.Error("distinct inputs should fingerprint differently")
	}
}

func TestHashEqual(t *testing.T) {
	a := SHA256Hex([]byte("x"))
	tests := []struct {
		x, y string
		want bool
	}{
		{a, a, true},
		{"", "", true},
		{a, SHA256Hex([]byte("y")), false},
		{a, strings.ToUpper(a), false},
		{a, a[:32], false},
		{a, "", false},
	}
	for _, tt := range tests {
		if got := HashEqual(tt.x, tt.y); got != tt.want {
			t.Errorf("HashEqual(%q, %q) = %v", tt.x, tt.y, got)
		}
	}
}

func TestSecretDigest(t *testing.T) {
	d := NewSecretDigest("whsec_onterra")
	if !d.Matches("whsec_onterra") {
		t.Fatal("digest should match its own secret")
	}
	for _, wrong := range []string{"", "whsec_onterr", "whsec_onterra ", "WHSEC_ONTERRA"} {
		if d.Matches(wrong) {
			t.Errorf("matched %q", wrong)
		}
	}

	empty := NewSecretDigest("")
	if empty != "" || empty.Matches("") || empty.Matches("anything") {
		t.Fatal("the empty secret must match nothing")
	}
}

func FuzzSecretDigest(f *testing.F) {
	f.Add("whsec_onterra", "whsec_onterra")
	f.Add("a", "b")
	f.Add("", "")
	f.Fuzz(func(t *testing.T, secret, presented string) {
		want := secret != "" && secret == presented
		if got := NewSecretDigest(secret).Matches(presented); got != want {
			t.Fatalf("NewSecretDigest(%q).Matches(%q) = %v", secret, presented, got)
		}
	})
}
