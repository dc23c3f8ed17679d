package vault

import "runtime"

// secret is key material that is wiped on destroy and, where the platform
// allows, kept out of swap.
type secret struct {
	data   []byte
	locked bool
}

func newSecret(b []byte) *secret {
	s := &secret{data: b}
	s.locked = lockMemory(b) == nil
	return s
}

func (s *secret) bytes() []byte { return s.data }

func (s *secret) destroy() {
	if s.data == nil {
		return
	}
	wipe(s.data)
	if s.locked {
		unlockMemory(s.data)
		s.locked = false
	}
	s.data = nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
