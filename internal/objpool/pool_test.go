package objpool

import "testing"

func TestPoolGetReusesPutValues(t *testing.T) {
	var constructed int
	p := New(2, func() *int {
		constructed++
		v := 0
		return &v
	}, func(v *int) {
		*v = 0
	})

	a := p.Get()
	*a = 42
	p.Put(a)

	b := p.Get()
	if b != a {
		t.Fatalf("expected Get to reuse the pooled pointer")
	}
	if *b != 0 {
		t.Fatalf("expected reset to run before reuse, got %d", *b)
	}
	if constructed != 1 {
		t.Fatalf("expected exactly one construction, got %d", constructed)
	}
}

func TestPoolDropsBeyondCapacity(t *testing.T) {
	p := New(1, func() *int { v := 0; return &v }, nil)

	a, b := p.Get(), p.Get()
	p.Put(a)
	p.Put(b)

	if got := p.Len(); got != 1 {
		t.Fatalf("expected pool length capped at 1, got %d", got)
	}
}

func TestPoolPutNilIsNoop(t *testing.T) {
	p := New(1, func() *int { v := 0; return &v }, nil)
	p.Put(nil)
	if p.Len() != 0 {
		t.Fatalf("expected length 0 after putting nil, got %d", p.Len())
	}
}

func TestHeaderPairPoolRoundTrip(t *testing.T) {
	p := NewHeaderPairPool(4)
	s := p.Get()
	*s = append(*s, HeaderPair{Name: "content-type", Value: "text/plain"})
	p.Put(s)

	s2 := p.Get()
	if len(*s2) != 0 {
		t.Fatalf("expected reset slice to be empty, got %v", *s2)
	}
}
