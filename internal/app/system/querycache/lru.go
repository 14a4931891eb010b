package querycache

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRU is an in-process backend. Entries expire after the TTL given to
// NewLRU; the per-Set ttl is ignored.
type LRU struct {
	lru *expirable.LRU[string, []byte]
}

// NewLRU holds up to size entries for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (l *LRU) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := l.lru.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return v, nil
}

func (l *LRU) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	l.lru.Add(key, val)
	return nil
}

func (l *LRU) Delete(_ context.Context, key string) error {
	l.lru.Remove(key)
	return nil
}

func (l *LRU) DeletePrefix(_ context.Context, prefix string) error {
	for _, k := range l.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			l.lru.Remove(k)
		}
	}
	return nil
}

// Len reports the number of live entries.
func (l *LRU) Len() int { return l.lru.Len() }
