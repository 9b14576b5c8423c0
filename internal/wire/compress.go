package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// healthTripleLen is the encoded width of one (seeders, leechers, last_check)
// triple in a batch's health tail.
const healthTripleLen = 12

// HealthTriple is one positional liveness observation from a health tail.
// The infohash is implied by the record at the same index in the batch.
type HealthTriple struct {
	Seeders   uint32
	Leechers  uint32
	LastCheck uint32
}

// DecompressBatch decodes an LZ4-framed batch envelope. It returns the
// decompressed payload stream and the raw bytes of raw that the frame did
// not consume (the optional health tail).
func DecompressBatch(raw []byte) (payload, tail []byte, err error) {
	src := bytes.NewReader(raw)
	zr := lz4.NewReader(src)
	payload, err = io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing batch: %w", err)
	}
	// The frame reader performs exact-size reads, so whatever src still
	// holds is the unused-data region after the frame end mark.
	if src.Len() > 0 {
		tail = raw[len(raw)-src.Len():]
	}
	return payload, tail, nil
}

// CompressBatch builds a batch envelope: the payload stream wrapped in an
// LZ4 frame, with the tail appended verbatim after the frame end mark.
func CompressBatch(payload, tail []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, fmt.Errorf("compressing batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing batch frame: %w", err)
	}
	buf.Write(tail)
	return buf.Bytes(), nil
}

// ParseHealthTail decodes a health tail expected to carry exactly count
// triples. A tail of any other size is ignored: the batch's records are
// still ingested, just without paired health.
func ParseHealthTail(tail []byte, count int) []HealthTriple {
	if count <= 0 || len(tail) != count*healthTripleLen {
		return nil
	}
	triples := make([]HealthTriple, count)
	for i := range triples {
		off := i * healthTripleLen
		triples[i] = HealthTriple{
			Seeders:   binary.LittleEndian.Uint32(tail[off:]),
			Leechers:  binary.LittleEndian.Uint32(tail[off+4:]),
			LastCheck: binary.LittleEndian.Uint32(tail[off+8:]),
		}
	}
	return triples
}

// EncodeHealthTail is the egress counterpart of ParseHealthTail.
func EncodeHealthTail(triples []HealthTriple) []byte {
	buf := make([]byte, 0, len(triples)*healthTripleLen)
	for _, t := range triples {
		buf = binary.LittleEndian.AppendUint32(buf, t.Seeders)
		buf = binary.LittleEndian.AppendUint32(buf, t.Leechers)
		buf = binary.LittleEndian.AppendUint32(buf, t.LastCheck)
	}
	return buf
}
