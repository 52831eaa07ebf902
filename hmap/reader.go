// Package hmap parses the .hmap binary world-export container into an
// in-memory model.HmapContainer.
//
// Grammar: a fixed-length header, followed by a stream of tagged
// chunks (tag byte, uint32 LE length, payload). Required tags are 'S'
// (segment table), 'G' (grid) and 'M' (marker); any other tag is
// skipped. Truncation or an unknown *required* tag is a ParseError.
package hmap

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"mapimport/model"
)

const (
	headerLength = 16

	tagSegmentTable byte = 'S'
	tagGrid         byte = 'G'
	tagMarker       byte = 'M'

	markerKindResource byte = 1
	markerKindOther    byte = 2
)

// Reader parses a single .hmap stream into a model.HmapContainer.
type Reader struct {
	r      io.Reader
	offset int64
}

// NewReader wraps an io.Reader as an hmap Reader. The stream is read
// once, start to end.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Parse reads the entire stream and returns the assembled container.
func (rd *Reader) Parse() (*model.HmapContainer, error) {
	header, err := rd.readN(headerLength)
	if err != nil {
		return nil, rd.parseErr("read header", err)
	}
	container := model.NewHmapContainer(header)

	for {
		tag, err := rd.readByte()
		if err == io.EOF {
			return container, nil
		}
		if err != nil {
			return nil, rd.parseErr("read chunk tag", err)
		}

		length, err := rd.readUint32()
		if err != nil {
			return nil, rd.parseErr("read chunk length", err)
		}
		payload, err := rd.readN(int64(length))
		if err != nil {
			return nil, rd.parseErr(fmt.Sprintf("read chunk payload (tag=%q)", tag), err)
		}

		switch tag {
		case tagSegmentTable:
			// The segment table chunk only exists to force segment
			// registration order ahead of any grid/marker chunk; its
			// payload is a flat list of int64 segment ids.
			if err := rd.registerSegments(container, payload); err != nil {
				return nil, rd.parseErr("decode segment table", err)
			}
		case tagGrid:
			if err := rd.decodeGrid(container, payload); err != nil {
				return nil, rd.parseErr("decode grid chunk", err)
			}
		case tagMarker:
			if err := rd.decodeMarker(container, payload); err != nil {
				return nil, rd.parseErr("decode marker chunk", err)
			}
		default:
			// Unknown, non-required chunk: skip silently.
		}
	}
}

func (rd *Reader) registerSegments(c *model.HmapContainer, payload []byte) error {
	if len(payload)%8 != 0 {
		return fmt.Errorf("segment table length %d is not a multiple of 8", len(payload))
	}
	for off := 0; off < len(payload); off += 8 {
		segID := int64(binary.LittleEndian.Uint64(payload[off : off+8]))
		c.RegisterSegment(segID)
	}
	return nil
}

func (rd *Reader) decodeGrid(c *model.HmapContainer, payload []byte) error {
	buf := newByteReader(payload)

	segID, err := buf.int64()
	if err != nil {
		return err
	}
	tileX, err := buf.int64()
	if err != nil {
		return err
	}
	tileY, err := buf.int64()
	if err != nil {
		return err
	}
	tilesetCount, err := buf.uint32()
	if err != nil {
		return err
	}
	tilesets := make([]model.Tileset, 0, tilesetCount)
	for i := uint32(0); i < tilesetCount; i++ {
		name, err := buf.lengthPrefixedString()
		if err != nil {
			return err
		}
		tilesets = append(tilesets, model.Tileset{ResourceName: name})
	}

	grid := model.HmapGridData{TileX: tileX, TileY: tileY, Tilesets: tilesets}
	indices, err := buf.bytes(model.GridCells)
	if err != nil {
		return err
	}
	copy(grid.TileIndices[:], indices)

	hasZMap, err := buf.byte()
	if err != nil {
		return err
	}
	if hasZMap != 0 {
		var zmap [model.GridCells]float64
		for i := 0; i < model.GridCells; i++ {
			bits, err := buf.uint64()
			if err != nil {
				return err
			}
			zmap[i] = math.Float64frombits(bits)
		}
		grid.ZMap = &zmap
	}

	c.AddGrid(segID, grid)
	return nil
}

func (rd *Reader) decodeMarker(c *model.HmapContainer, payload []byte) error {
	buf := newByteReader(payload)

	segID, err := buf.int64()
	if err != nil {
		return err
	}
	kind, err := buf.byte()
	if err != nil {
		return err
	}
	name, err := buf.lengthPrefixedString()
	if err != nil {
		return err
	}
	tileX, err := buf.int64()
	if err != nil {
		return err
	}
	tileY, err := buf.int64()
	if err != nil {
		return err
	}

	m := model.HmapMarker{Name: name, TileX: tileX, TileY: tileY}
	if kind == markerKindResource {
		resourceName, err := buf.lengthPrefixedString()
		if err != nil {
			return err
		}
		m.ResourceName = resourceName
	} else if kind != markerKindOther {
		return fmt.Errorf("unknown marker kind %d", kind)
	}

	c.AddMarker(segID, m)
	return nil
}

func (rd *Reader) parseErr(reason string, cause error) error {
	return &model.ParseError{Offset: rd.offset, Reason: fmt.Sprintf("%s: %v", reason, cause)}
}

func (rd *Reader) readByte() (byte, error) {
	b, err := rd.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (rd *Reader) readUint32() (uint32, error) {
	b, err := rd.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (rd *Reader) readN(n int64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(rd.r, buf)
	rd.offset += int64(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
