package rates

import (
	"context"
	"testing"
)

func TestStaticProviderLookup(t *testing.T) {
	p := NewStaticProvider("usd", map[string]float64{"eur": 1.1})
	ctx := context.Background()

	if p.Base() != "USD" {
		t.Fatalf("base = %q, want USD", p.Base())
	}
	// base currency always converts at 1
	r, ok, err := p.Rate(ctx, "USD")
	if err != nil || !ok || r != 1 {
		t.Fatalf("base rate = %v, %v, %v", r, ok, err)
	}
	// lookups are case-insensitive
	r, ok, _ = p.Rate(ctx, "EuR")
	if !ok || r != 1.1 {
		t.Fatalf("eur rate = %v, ok=%v", r, ok)
	}
	// unknown currency is ok=false, not an error
	_, ok, err = p.Rate(ctx, "XAU")
	if ok || err != nil {
		t.Fatalf("unknown currency: ok=%v err=%v", ok, err)
	}
}

func TestStaticProviderSet(t *testing.T) {
	p := NewStaticProvider("USD", nil)
	p.Set("gbp", 1.25)
	r, ok, _ := p.Rate(context.Background(), "GBP")
	if !ok || r != 1.25 {
		t.Fatalf("gbp rate after set = %v, ok=%v", r, ok)
	}
}
