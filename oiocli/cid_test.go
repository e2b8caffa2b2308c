package oiocli

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/mailanetworks/oiokit/devtools/tutils/tassert"
)

func TestContainerIDMatchesSHA256OfAccountNulRef(t *testing.T) {
	h := sha256.New()
	h.Write([]byte("myaccount"))
	h.Write([]byte{0})
	h.Write([]byte("mycontainer"))
	want := hex.EncodeToString(h.Sum(nil))

	got := ContainerID("myaccount", "mycontainer")
	tassert.Fatalf(t, got == want, "ContainerID() = %s, want %s", got, want)
}

func TestContainerIDDiffersByAccount(t *testing.T) {
	a := ContainerID("account-a", "ref")
	b := ContainerID("account-b", "ref")
	tassert.Fatalf(t, a != b, "expected different container ids for different accounts")
}

func TestSplitPosition(t *testing.T) {
	cases := []struct {
		in       string
		wantMC   int
		wantFrag int
	}{
		{"0", 0, 0},
		{"3", 3, 0},
		{"3.1", 3, 1},
		{"12.5", 12, 5},
	}
	for _, c := range cases {
		mc, frag, err := splitPosition(c.in)
		tassert.CheckFatal(t, err)
		tassert.Fatalf(t, mc == c.wantMC && frag == c.wantFrag, "splitPosition(%q) = (%d,%d), want (%d,%d)", c.in, mc, frag, c.wantMC, c.wantFrag)
	}

	if _, _, err := splitPosition("bogus"); err == nil {
		t.Fatal("expected error for non-numeric position")
	}
}

func TestEncodePathPreservesSlashes(t *testing.T) {
	got := encodePath("a dir/file name.txt")
	want := "a%20dir/file%20name.txt"
	tassert.Fatalf(t, got == want, "encodePath() = %q, want %q", got, want)
}
