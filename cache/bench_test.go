package cache

import (
	"context"
	"strings"
	"testing"
)

func BenchmarkDo_Hit(b *testing.B) {
	c, _ := New(NewMemoryStore())
	ctx := context.Background()
	fn := func(context.Context) (user, error) { return user{Name: "bench", Age: 1}, nil }
	_, _ = Do(ctx, c, "bench", fn, []string{"a", "b"}, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Do(ctx, c, "bench", fn, []string{"a", "b"}, nil)
	}
}

func BenchmarkDo_WrappedHit(b *testing.B) {
	c, _ := New(NewMemoryStore())
	ctx := context.Background()
	wrapped, _ := Wrap(c, "bench", func(context.Context) (user, error) { return user{Name: "bench"}, nil }, []string{"a"}, nil)
	_, _ = wrapped(ctx)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = wrapped(ctx)
	}
}

func BenchmarkDo_MissNotAdmitted(b *testing.B) {
	c, _ := New(NewMemoryStore())
	ctx := context.Background()
	fn := func(context.Context) ([]int, error) { return []int{1, 2, 3}, nil }

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = Do(ctx, c, "bench", fn, nil, nil)
	}
}

func BenchmarkDefaultKeyer(b *testing.B) {
	keyer := NewDefaultKeyer()
	tags := MustTagSet("users", "admin", "region:eu")
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("users.list", tags, nil)
	}
}

func BenchmarkHashKeyer(b *testing.B) {
	keyer := NewHashKeyer()
	tags := MustTagSet("users", "admin", "region:eu")
	for i := 0; i < b.N; i++ {
		_, _ = keyer.Key("users.list", tags, nil)
	}
}

func BenchmarkDeflateCodec_RoundTrip(b *testing.B) {
	codec := NewDeflateCodec()
	payload := []byte(`{"rows":"` + strings.Repeat("abcdefgh", 512) + `"}`)
	b.SetBytes(int64(len(payload)))
	for i := 0; i < b.N; i++ {
		compressed, _ := codec.Compress(payload)
		_, _ = codec.Decompress(compressed)
	}
}
