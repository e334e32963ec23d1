// Package arena implements ByteArena: a growable, single-owner byte buffer
// with independent read and write cursors, sitting between raw socket I/O
// and the framing layer.
//
// It is the Go counterpart of bongo's DataBuffer (original_source/src/utils/data_buffer.cpp):
// getAvailable/update map to Reserve/AdvanceWrite, used/release map to
// Consume/Compact, with the same "auto-reset to zero when drained" behavior.
package arena

// Arena is a contiguous byte buffer with a read cursor and a write cursor.
// read <= write <= len(buf) always holds. It has exactly one owner at a time;
// Arena itself does no locking.
type Arena struct {
	buf   []byte
	read  int
	write int
}

// New returns an Arena with the given initial capacity.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Data returns the populated, not-yet-consumed region. The returned slice
// aliases the arena's storage and is only valid until the next mutating call.
func (a *Arena) Data() []byte {
	return a.buf[a.read:a.write]
}

// Len reports the number of unconsumed bytes.
func (a *Arena) Len() int {
	return a.write - a.read
}

// Reserve ensures at least n contiguous bytes are available beyond the write
// cursor, growing the backing storage if necessary, and returns that tail
// slice. The returned slice's length may exceed n.
func (a *Arena) Reserve(n int) []byte {
	if n < 0 {
		n = 0
	}
	if a.write+n > len(a.buf) {
		// Reclaim already-consumed space before growing the backing array.
		if a.read > 0 {
			a.Compact()
		}
		if a.write+n > len(a.buf) {
			a.growTo(a.write + n)
		}
	}
	return a.buf[a.write:]
}

// growTo enlarges the backing array to at least size bytes.
func (a *Arena) growTo(size int) {
	newCap := len(a.buf) * 2
	if newCap == 0 {
		newCap = 1024
	}
	for newCap < size {
		newCap *= 2
	}

	grown := make([]byte, newCap)
	copy(grown, a.buf[:a.write])
	a.buf = grown
}

// AdvanceWrite extends the populated region by k bytes. Precondition: k is no
// more than the length of the slice most recently returned by Reserve.
func (a *Arena) AdvanceWrite(k int) {
	a.write += k
}

// Consume advances the read cursor past k bytes of already-populated data.
// When the arena becomes fully drained, both cursors reset to zero so future
// Reserve calls reuse the front of the buffer instead of growing forever.
func (a *Arena) Consume(k int) {
	a.read += k
	if a.read == a.write {
		a.read = 0
		a.write = 0
	}
}

// Append copies another arena's unconsumed data onto this arena's write
// cursor, growing as needed. It does not consume from other.
func (a *Arena) Append(other *Arena) {
	src := other.Data()
	if len(src) == 0 {
		return
	}
	dst := a.Reserve(len(src))
	n := copy(dst, src)
	a.AdvanceWrite(n)
}

// Compact memmoves the unconsumed region to offset zero, reclaiming the
// space occupied by already-consumed bytes. Idempotent: calling it twice in
// a row has the same observable effect as calling it once.
func (a *Arena) Compact() {
	if a.read == 0 {
		return
	}
	n := copy(a.buf, a.buf[a.read:a.write])
	a.write = n
	a.read = 0
}
