package secure

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealReveal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		value string
	}{
		{name: "plain text", value: "super-secret-data"},
		{name: "empty", value: ""},
		{name: "unicode", value: "pässwörd-🔑"},
		{name: "large", value: strings.Repeat("x", 4096)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := Seal(tt.value)
			defer v.Destroy()

			got, err := v.Reveal()
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}
}

func TestSealDoesNotAlterInput(t *testing.T) {
	t.Parallel()

	in := "keep-me"
	v := Seal(in)
	defer v.Destroy()

	assert.Equal(t, "keep-me", in)
}

func TestRevealRepeatedly(t *testing.T) {
	t.Parallel()

	v := Seal("again")
	defer v.Destroy()

	for i := 0; i < 3; i++ {
		got, err := v.Reveal()
		require.NoError(t, err)
		assert.Equal(t, "again", got)
	}
}

func TestDestroy(t *testing.T) {
	t.Parallel()

	v := Seal("gone")
	v.Destroy()
	v.Destroy()

	_, err := v.Reveal()
	assert.ErrorIs(t, err, ErrDestroyed)
}

func TestConcurrentReveal(t *testing.T) {
	t.Parallel()

	v := Seal("concurrent-secret")
	defer v.Destroy()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := v.Reveal()
			assert.NoError(t, err)
			assert.Equal(t, "concurrent-secret", got)
		}()
	}
	wg.Wait()
}

func BenchmarkReveal(b *testing.B) {
	v := Seal("benchmark-secret-data")
	defer v.Destroy()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = v.Reveal()
	}
}
