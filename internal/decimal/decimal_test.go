package decimal

import (
	"math/big"
	"testing"
)

func parse(t *testing.T, s string) Decimal {
	t.Helper()
	d, err := Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestParseAndStringRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "1", "100.5", "0.0000001", "9999.99"} {
		got := parse(t, s).String()
		want := parse(t, got).String()
		if got != want {
			t.Fatalf("round trip %q: got %q then %q", s, got, want)
		}
	}
}

func TestParseRejectsNonTerminatingExpansion(t *testing.T) {
	if _, err := Parse("1/3"); err == nil {
		t.Fatal("expected an error parsing a non-decimal literal")
	}
}

func TestAddSubMulExact(t *testing.T) {
	a := parse(t, "0.1")
	b := parse(t, "0.2")
	if got := a.Add(b).String(); got != "0.3" {
		t.Fatalf("0.1+0.2: got %s want 0.3 (no float error allowed)", got)
	}
	if got := b.Sub(a).String(); got != "0.1" {
		t.Fatalf("0.2-0.1: got %s want 0.1", got)
	}
	if got := parse(t, "9999").Mul(parse(t, "0.001")).String(); got != "9.999" {
		t.Fatalf("9999*0.001: got %s want 9.999", got)
	}
}

func TestCmpAndSign(t *testing.T) {
	if parse(t, "1").Cmp(parse(t, "1.0")) != 0 {
		t.Fatal("1 should equal 1.0 regardless of scale")
	}
	if parse(t, "2").Cmp(parse(t, "1")) <= 0 {
		t.Fatal("2 should be greater than 1")
	}
	if parse(t, "-1").Sign() != -1 {
		t.Fatal("expected negative sign")
	}
	if !Zero.IsZero() {
		t.Fatal("Zero must be zero")
	}
	if parse(t, "0.0001").Sign() != 1 {
		t.Fatal("expected positive sign")
	}
}

func TestMin(t *testing.T) {
	if got := Min(parse(t, "3"), parse(t, "5")); got.Cmp(parse(t, "3")) != 0 {
		t.Fatalf("got %s want 3", got)
	}
	if got := Min(parse(t, "5"), parse(t, "3")); got.Cmp(parse(t, "3")) != 0 {
		t.Fatalf("got %s want 3", got)
	}
}

func TestNeg(t *testing.T) {
	if got := parse(t, "1.5").Neg().String(); got != "-1.5" {
		t.Fatalf("got %s want -1.5", got)
	}
	if got := Zero.Neg(); !got.IsZero() {
		t.Fatalf("-0 must still be zero, got %s", got)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	d := parse(t, "123.456")
	b, err := d.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"123.456"` {
		t.Fatalf("got %s want \"123.456\"", b)
	}
	var out Decimal
	if err := out.UnmarshalJSON(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Cmp(d) != 0 {
		t.Fatalf("round trip mismatch: got %s want %s", out, d)
	}
}

func TestToMerkleUint128(t *testing.T) {
	v, ok := parse(t, "1").ToMerkleUint128()
	if !ok {
		t.Fatal("expected ok")
	}
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if v.Cmp(want) != 0 {
		t.Fatalf("1 should scale to 1e18, got %s", v)
	}
}

func TestToMerkleUint128RejectsNegative(t *testing.T) {
	if _, ok := parse(t, "-1").ToMerkleUint128(); ok {
		t.Fatal("expected negative decimal to be rejected")
	}
}
