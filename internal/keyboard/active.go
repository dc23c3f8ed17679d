package keyboard

import "adnw/internal/matrix"

// DefaultActiveCapacity bounds the active-key list.
const DefaultActiveCapacity = 8

// ActiveKey is a held contact. Plain is false for modifier and layer keys.
type ActiveKey struct {
	matrix.Coord
	Plain bool
}

// ActiveKeys is the bounded, insertion-ordered list of held contacts,
// rebuilt every cycle.
type ActiveKeys struct {
	keys []ActiveKey
}

// NewActiveKeys creates an empty list with the given capacity.
func NewActiveKeys(capacity int) *ActiveKeys {
	return &ActiveKeys{keys: make([]ActiveKey, 0, capacity)}
}

// Reset empties the list.
func (a *ActiveKeys) Reset() {
	a.keys = a.keys[:0]
}

// Add appends k. It returns false and leaves the list unchanged when the
// list is full.
func (a *ActiveKeys) Add(k ActiveKey) bool {
	if len(a.keys) == cap(a.keys) {
		return false
	}
	a.keys = append(a.keys, k)
	return true
}

// Len returns the number of keys.
func (a *ActiveKeys) Len() int { return len(a.keys) }

// Capacity returns the maximum number of keys.
func (a *ActiveKeys) Capacity() int { return cap(a.keys) }

// Keys returns the keys in insertion order. The slice is reused by the next
// Reset.
func (a *ActiveKeys) Keys() []ActiveKey { return a.keys }
