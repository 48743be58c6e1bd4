package store

// ordered — map с уникальными ключами и порядком вставки. Не потокобезопасен.
type ordered[K comparable, V any] struct {
	keys  []K
	items map[K]V
}

func newOrdered[K comparable, V any]() *ordered[K, V] {
	return &ordered[K, V]{items: make(map[K]V)}
}

func (o *ordered[K, V]) get(k K) (V, bool) {
	v, ok := o.items[k]
	return v, ok
}

// set returns false when the key already exists; existing value is replaced.
func (o *ordered[K, V]) set(k K, v V) bool {
	_, exists := o.items[k]
	if !exists {
		o.keys = append(o.keys, k)
	}
	o.items[k] = v
	return !exists
}

func (o *ordered[K, V]) remove(k K) (V, bool) {
	v, ok := o.items[k]
	if !ok {
		return v, false
	}
	delete(o.items, k)
	for i, key := range o.keys {
		if key == k {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
	return v, true
}

func (o *ordered[K, V]) len() int { return len(o.keys) }

func (o *ordered[K, V]) values() []V {
	out := make([]V, 0, len(o.keys))
	for _, k := range o.keys {
		out = append(out, o.items[k])
	}
	return out
}

func (o *ordered[K, V]) reset() {
	o.keys = nil
	o.items = make(map[K]V)
}
