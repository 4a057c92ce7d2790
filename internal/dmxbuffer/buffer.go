// Package dmxbuffer provides the DMX buffer collaborator the Art-Net node
// core treats as an external black box (spec.md §6): a fixed 512-channel
// byte array with the get/set/htp-merge operations a port needs, and
// nothing else. The generic buffer and its HTP-merge primitive are
// deliberately out of the protocol engine's scope; this package is the
// concrete implementation the rest of the repo is built against, grounded
// on the teacher's internal/services/dmx channel-array handling.
package dmxbuffer

// Size is the number of channels in a DMX512 universe.
const Size = 512

// Buffer is a fixed-size DMX channel array. The zero value is a buffer of
// 512 zeroed channels, ready to use.
type Buffer struct {
	data [Size]byte
}

// New returns a zeroed buffer.
func New() *Buffer {
	return &Buffer{}
}

// Size returns the number of channels in the buffer.
func (b *Buffer) Size() int {
	return Size
}

// Get copies the buffer's channel values into dst, returning the number of
// bytes copied.
func (b *Buffer) Get(dst []byte) int {
	return copy(dst, b.data[:])
}

// Bytes returns the buffer's channel values as a slice backed by the
// buffer's own storage. Callers that need to retain the data across a
// subsequent Set must copy it.
func (b *Buffer) Bytes() []byte {
	return b.data[:]
}

// Set overwrites the buffer's channel values with src, zero-padding any
// trailing channels src does not cover and truncating src beyond Size.
func (b *Buffer) Set(src []byte) {
	n := copy(b.data[:], src)
	for i := n; i < Size; i++ {
		b.data[i] = 0
	}
}

// HTPMerge folds other into this buffer using highest-takes-precedence:
// each channel becomes the larger of the two buffers' values at that
// channel.
func (b *Buffer) HTPMerge(other *Buffer) {
	for i := range b.data {
		if other.data[i] > b.data[i] {
			b.data[i] = other.data[i]
		}
	}
}

// Equal reports whether two buffers hold identical channel values.
func (b *Buffer) Equal(other *Buffer) bool {
	if other == nil {
		return false
	}
	return b.data == other.data
}
