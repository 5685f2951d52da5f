package coin

import "testing"

func TestCmpOrdering(t *testing.T) {
	a := MustFromString("100.00000000")
	b := MustFromString("100.00000001")

	if !a.LessThan(b) {
		t.Fatalf("expected %s < %s", a, b)
	}
	if !b.GreaterThan(a) {
		t.Fatalf("expected %s > %s", b, a)
	}
	if a.Equal(b) {
		t.Fatalf("expected %s != %s", a, b)
	}
}

func TestTruncateToTick(t *testing.T) {
	price := MustFromString("104.37")
	tick := MustFromString("1")

	got := price.TruncateToTick(tick)
	want := MustFromString("104")
	if !got.Equal(want) {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestAddSub(t *testing.T) {
	a := MustFromString("1.5")
	b := MustFromString("0.5")

	if !a.Add(b).Equal(MustFromString("2")) {
		t.Fatalf("add mismatch: %s", a.Add(b))
	}
	if !a.Sub(b).Equal(MustFromString("1")) {
		t.Fatalf("sub mismatch: %s", a.Sub(b))
	}
}

func TestIsZeroOrLess(t *testing.T) {
	if !Zero.IsZeroOrLess() {
		t.Fatalf("zero should be zero-or-less")
	}
	if MustFromString("0.00000001").IsZeroOrLess() {
		t.Fatalf("positive value should not be zero-or-less")
	}
	if !MustFromString("-1").IsZeroOrLess() {
		t.Fatalf("negative value should be zero-or-less")
	}
}
