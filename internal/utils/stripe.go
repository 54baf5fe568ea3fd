package utils

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex serializes work per key using a fixed set of striped locks.
// Distinct keys may share a stripe; the same key always maps to the same one.
type KeyedMutex struct {
	stripes []sync.Mutex
}

func NewKeyedMutex(stripes int) *KeyedMutex {
	if stripes <= 0 {
		stripes = 64
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, stripes)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	mu := &k.stripes[k.index(key)]
	mu.Lock()
	return mu.Unlock
}

func (k *KeyedMutex) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(k.stripes)))
}
