// Package pool provides string interning for text-heavy raw columns
package pool

// StringInternPool deduplicates repeated strings so that a column with few
// distinct values holds one copy of each. It is owned by a single reader and
// is not safe for concurrent use.
type StringInternPool struct {
	strings map[string]string
	maxSize int
	hits    int64
	misses  int64
}

// NewStringInternPool creates a pool holding at most maxSize distinct
// strings; maxSize <= 0 means unbounded.
func NewStringInternPool(maxSize int) *StringInternPool {
	return &StringInternPool{
		strings: make(map[string]string, 1024),
		maxSize: maxSize,
	}
}

// Intern returns the pooled copy of s. Once the pool is full new strings
// are returned as-is.
func (p *StringInternPool) Intern(s string) string {
	if interned, ok := p.strings[s]; ok {
		p.hits++
		return interned
	}
	p.misses++
	if p.maxSize > 0 && len(p.strings) >= p.maxSize {
		return s
	}
	p.strings[s] = s
	return s
}

// InternBytes interns a byte slice as a string; the lookup itself does not
// allocate.
func (p *StringInternPool) InternBytes(b []byte) string {
	if interned, ok := p.strings[string(b)]; ok {
		p.hits++
		return interned
	}
	return p.Intern(string(b))
}

// Full reports whether the pool stopped accepting new strings
func (p *StringInternPool) Full() bool {
	return p.maxSize > 0 && len(p.strings) >= p.maxSize
}

// Stats returns intern pool statistics
func (p *StringInternPool) Stats() (size, hits, misses int64) {
	return int64(len(p.strings)), p.hits, p.misses
}

// Clear empties the pool
func (p *StringInternPool) Clear() {
	p.strings = make(map[string]string, 1024)
	p.hits = 0
	p.misses = 0
}
