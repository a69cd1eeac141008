// Package keymutex provides striped mutexes so that work on one key serializes
// while unrelated keys mostly proceed in parallel.
package keymutex

import (
	"hash/fnv"
	"strconv"
	"sync"
)

const defaultStripes = 64

type KeyMutex struct {
	stripes []sync.Mutex
}

// New creates a KeyMutex with n stripes (64 when n <= 0).
func New(n int) *KeyMutex {
	if n <= 0 {
		n = defaultStripes
	}
	return &KeyMutex{stripes: make([]sync.Mutex, n)}
}

func (k *KeyMutex) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &k.stripes[h.Sum32()%uint32(len(k.stripes))]
}

// Lock blocks until key is held and returns the unlock func.
//
//	unlock := km.Lock("user:42")
//	defer unlock()
func (k *KeyMutex) Lock(key string) func() {
	m := k.stripe(key)
	m.Lock()
	return m.Unlock
}

// LockID is Lock for numeric ids.
func (k *KeyMutex) LockID(id int64) func() {
	return k.Lock(strconv.FormatInt(id, 10))
}
