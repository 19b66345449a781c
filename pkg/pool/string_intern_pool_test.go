package pool

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestInternDeduplicates(t *testing.T) {
	p := NewStringInternPool(0)

	a := p.Intern(string([]byte("ORD")))
	b := p.InternBytes([]byte("ORD"))

	assert.Equal(t, "ORD", b)
	assert.Equal(t, unsafe.StringData(a), unsafe.StringData(b), "same backing array")

	size, hits, misses := p.Stats()
	assert.Equal(t, int64(1), size)
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestInternRespectsMaxSize(t *testing.T) {
	p := NewStringInternPool(2)
	p.Intern("a")
	p.Intern("b")
	assert.True(t, p.Full())

	assert.Equal(t, "c", p.Intern("c"))
	size, _, misses := p.Stats()
	assert.Equal(t, int64(2), size)
	assert.Equal(t, int64(3), misses)

	p.Clear()
	assert.False(t, p.Full())
}
