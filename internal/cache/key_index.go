package cache

import "sync"

// KeyIndex remembers which keys were issued under each namespace, so namespaces can be
// invalidated on backends that cannot enumerate keys by prefix.
type KeyIndex struct {
	mu   sync.Mutex
	keys map[string]map[string]struct{}
}

func NewKeyIndex() *KeyIndex {
	return &KeyIndex{keys: make(map[string]map[string]struct{})}
}

// Add records key under its namespace.
func (x *KeyIndex) Add(key string) {
	ns := NamespaceOf(key)
	x.mu.Lock()
	defer x.mu.Unlock()
	set, ok := x.keys[ns]
	if !ok {
		set = make(map[string]struct{})
		x.keys[ns] = set
	}
	set[key] = struct{}{}
}

// Forget drops individual keys from the index.
func (x *KeyIndex) Forget(keys ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, key := range keys {
		ns := NamespaceOf(key)
		if set, ok := x.keys[ns]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(x.keys, ns)
			}
		}
	}
}

// Take removes and returns every key recorded under ns.
func (x *KeyIndex) Take(ns string) []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	set := x.keys[ns]
	delete(x.keys, ns)
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	return out
}

// Size returns the number of keys recorded across all namespaces.
func (x *KeyIndex) Size() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for _, set := range x.keys {
		n += len(set)
	}
	return n
}
