package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMiss is returned by Store.Get for absent or expired keys.
var ErrMiss = errors.New("cache miss")

// Store is a key/value store with per-key TTL. Patterns passed to Keys are
// literal apart from backslash escapes and a single trailing "*" wildcard.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, pattern string) ([]string, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Flush(ctx context.Context) error
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
	Close() error
}

// escapePattern quotes the glob characters Redis understands so s matches
// literally inside a Keys pattern.
func escapePattern(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func matchPattern(pattern, key string) bool {
	var literal strings.Builder
	wildcard := false
	for i := 0; i < len(pattern); i++ {
		switch ch := pattern[i]; {
		case ch == '\\' && i+1 < len(pattern):
			i++
			literal.WriteByte(pattern[i])
		case ch == '*' && i == len(pattern)-1:
			wildcard = true
		default:
			literal.WriteByte(ch)
		}
	}
	if wildcard {
		return strings.HasPrefix(key, literal.String())
	}
	return key == literal.String()
}
