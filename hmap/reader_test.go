package hmap

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"mapimport/model"
)

func newContainerBytes() *bytes.Buffer {
	var out bytes.Buffer
	out.Write(make([]byte, headerLength)) // opaque header
	return &out
}

func writeChunk(out *bytes.Buffer, tag byte, payload []byte) {
	out.WriteByte(tag)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	out.Write(lenBuf[:])
	out.Write(payload)
}

func le64(v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return b[:]
}

func le32(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func lenPrefixed(s string) []byte {
	out := append([]byte{}, le32(uint32(len(s)))...)
	return append(out, []byte(s)...)
}

func gridChunk(segID, tileX, tileY int64, tilesets []string, zmap *[10000]float64) []byte {
	var buf bytes.Buffer
	buf.Write(le64(segID))
	buf.Write(le64(tileX))
	buf.Write(le64(tileY))
	buf.Write(le32(uint32(len(tilesets))))
	for _, t := range tilesets {
		buf.Write(lenPrefixed(t))
	}
	var indices [10000]byte
	buf.Write(indices[:])
	if zmap == nil {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
		for _, z := range zmap {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], math.Float64bits(z))
			buf.Write(b[:])
		}
	}
	return buf.Bytes()
}

func markerChunk(segID int64, kind byte, name string, tileX, tileY int64, resource string) []byte {
	var buf bytes.Buffer
	buf.Write(le64(segID))
	buf.WriteByte(kind)
	buf.Write(lenPrefixed(name))
	buf.Write(le64(tileX))
	buf.Write(le64(tileY))
	if kind == markerKindResource {
		buf.Write(lenPrefixed(resource))
	}
	return buf.Bytes()
}

func TestParseSingleSegmentTwoGrids(t *testing.T) {
	out := newContainerBytes()
	writeChunk(out, tagSegmentTable, le64(1))
	writeChunk(out, tagGrid, gridChunk(1, 0, 0, []string{"grass"}, nil))
	writeChunk(out, tagGrid, gridChunk(1, 1, 0, []string{"grass"}, nil))

	container, err := NewReader(out).Parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	segIDs := container.SegmentIDs()
	if len(segIDs) != 1 || segIDs[0] != 1 {
		t.Fatalf("expected one segment id 1, got %v", segIDs)
	}
	grids := container.GridsForSegment(1)
	if len(grids) != 2 {
		t.Fatalf("expected 2 grids, got %d", len(grids))
	}
	if grids[0].GridID() != "0_0" || grids[1].GridID() != "1_0" {
		t.Fatalf("unexpected grid ids: %s, %s", grids[0].GridID(), grids[1].GridID())
	}
}

func TestParseMarkers(t *testing.T) {
	out := newContainerBytes()
	writeChunk(out, tagSegmentTable, le64(5))
	writeChunk(out, tagMarker, markerChunk(5, markerKindOther, "camp", 150, 250, ""))
	writeChunk(out, tagMarker, markerChunk(5, markerKindResource, "shop", 5000, 5000, "gfx/terobjs/mm/shop"))

	container, err := NewReader(out).Parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	markers := container.MarkersForSegment(5)
	if len(markers) != 2 {
		t.Fatalf("expected 2 markers, got %d", len(markers))
	}
	if markers[0].Icon() != "gfx/terobjs/mm/custom" {
		t.Fatalf("expected placeholder icon, got %s", markers[0].Icon())
	}
	if markers[1].Icon() != "gfx/terobjs/mm/shop" {
		t.Fatalf("expected resource icon, got %s", markers[1].Icon())
	}
}

func TestParseTruncatedIsParseError(t *testing.T) {
	out := newContainerBytes()
	out.WriteByte(tagGrid)
	out.Write(le32(100))
	out.Write([]byte{1, 2, 3}) // far short of declared length

	_, err := NewReader(out).Parse()
	if err == nil {
		t.Fatal("expected parse error on truncated stream")
	}
	var parseErr *model.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *model.ParseError, got %T: %v", err, err)
	}
}

func TestParseUnknownTagSkipped(t *testing.T) {
	out := newContainerBytes()
	writeChunk(out, 'X', []byte{1, 2, 3, 4})
	writeChunk(out, tagSegmentTable, le64(9))
	writeChunk(out, tagGrid, gridChunk(9, 2, 2, []string{"sand"}, nil))

	container, err := NewReader(out).Parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(container.GridsForSegment(9)) != 1 {
		t.Fatalf("expected grid to survive an unknown skipped chunk")
	}
}
