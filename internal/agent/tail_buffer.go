package agent

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// tailBuffer keeps the last bytes written to it. Used for process stderr so
// a chatty child cannot grow memory without bound.
type tailBuffer struct {
	buf  []byte
	size int
	head int // next write position
	full bool
	mu   sync.Mutex
}

func newTailBuffer(size int) *tailBuffer {
	if size <= 0 {
		size = 4 * 1024
	}
	return &tailBuffer{buf: make([]byte, size), size: size}
}

// Write implements io.Writer. Oldest bytes are overwritten once full.
func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.size {
		copy(b.buf, p[n-b.size:])
		b.head = 0
		b.full = true
		return n, nil
	}
	for _, c := range p {
		b.buf[b.head] = c
		b.head = (b.head + 1) % b.size
		if b.head == 0 {
			b.full = true
		}
	}
	return n, nil
}

// String returns the buffered bytes in write order.
func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.full {
		return string(b.buf[:b.head])
	}
	return string(b.buf[b.head:]) + string(b.buf[:b.head])
}

// lastRunes returns at most n trailing characters of s, trimmed of surrounding
// whitespace. A partial rune left by the byte ring is dropped.
func lastRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[size:]
	}
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
