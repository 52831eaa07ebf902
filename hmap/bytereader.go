package hmap

import (
	"encoding/binary"
	"fmt"
)

// byteReader is a small cursor over an already-read chunk payload,
// used to decode the fixed fields of grid/marker chunks.
type byteReader struct {
	buf []byte
	pos int
}

func newByteReader(buf []byte) *byteReader {
	return &byteReader{buf: buf}
}

func (b *byteReader) need(n int) error {
	if b.pos+n > len(b.buf) {
		return fmt.Errorf("truncated payload: need %d bytes at offset %d, have %d", n, b.pos, len(b.buf))
	}
	return nil
}

func (b *byteReader) byte() (byte, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

func (b *byteReader) bytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	v := b.buf[b.pos : b.pos+n]
	b.pos += n
	return v, nil
}

func (b *byteReader) uint32() (uint32, error) {
	raw, err := b.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(raw), nil
}

func (b *byteReader) uint64() (uint64, error) {
	raw, err := b.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(raw), nil
}

func (b *byteReader) int64() (int64, error) {
	v, err := b.uint64()
	return int64(v), err
}

func (b *byteReader) lengthPrefixedString() (string, error) {
	n, err := b.uint32()
	if err != nil {
		return "", err
	}
	raw, err := b.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
