// Package wire implements the peer wire format: the fixed-order binary
// encoding of metadata records, the concatenated payload stream, and the
// LZ4-framed batch envelope with its optional health tail.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"tms-go/internal/identity"
	"tms-go/internal/model"
)

var (
	// ErrBadPayload marks a byte buffer the codec could not parse: a
	// truncated record or a discriminator outside the known set.
	ErrBadPayload = errors.New("bad payload")

	// ErrBadSignature marks a signed record whose signature did not verify.
	ErrBadSignature = errors.New("bad signature")
)

// decodable reports whether the codec knows the field layout for t.
// Deprecated discriminators still appear on the wire from older peers and
// share the record layout; ingest drops them after decoding.
func decodable(t model.MetadataType) bool {
	switch t {
	case model.TypeRegularTorrent, model.TypeDeprecatedChannel, model.TypeDeprecatedCollection:
		return true
	}
	return false
}

// Encode serializes a record to its wire form. It never fails for well-typed
// inputs; short fixed-width fields are zero-padded.
func Encode(m *model.TorrentMetadata) []byte {
	buf := EncodeForSigning(m)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.Signature)))
	buf = append(buf, m.Signature...)
	return buf
}

// EncodeForSigning serializes the canonical byte form of a record: the full
// wire encoding minus the trailing signature length and signature. This is
// the exact byte string signatures are computed over.
func EncodeForSigning(m *model.TorrentMetadata) []byte {
	title := clampLen(m.Title, math.MaxUint16)
	tags := clampLen(m.Tags, math.MaxUint8)
	tracker := clampLen(m.TrackerInfo, math.MaxUint16)

	buf := make([]byte, 0, 1+model.KeyLen+8*4+model.InfoHashLen+8+len(title)+len(tags)+len(tracker)+7)
	buf = append(buf, byte(m.MetadataType))
	buf = appendFixed(buf, m.PublicKey, model.KeyLen)
	buf = binary.LittleEndian.AppendUint64(buf, m.ID)
	buf = binary.LittleEndian.AppendUint64(buf, m.OriginID)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.Timestamp))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.TorrentDate))
	buf = appendFixed(buf, m.InfoHash, model.InfoHashLen)
	buf = binary.LittleEndian.AppendUint64(buf, m.Size)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(title)))
	buf = append(buf, title...)
	buf = append(buf, byte(len(tags)))
	buf = append(buf, tags...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(tracker)))
	buf = append(buf, tracker...)
	if m.XXX {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// DecodeOne parses one record from buf starting at off and returns it with
// the offset past its last byte. Callers drain a payload stream by calling
// DecodeOne until the buffer is exhausted.
func DecodeOne(buf []byte, off int) (*model.TorrentMetadata, int, error) {
	r := reader{buf: buf, off: off}

	t := model.MetadataType(r.byte())
	if r.err == nil && !decodable(t) {
		return nil, off, fmt.Errorf("%w: unknown discriminator %d at offset %d", ErrBadPayload, t, off)
	}

	m := &model.TorrentMetadata{MetadataType: t}
	m.PublicKey = r.bytes(model.KeyLen)
	m.ID = r.uint64()
	m.OriginID = r.uint64()
	m.Timestamp = int64(r.uint64())
	m.TorrentDate = int64(r.uint64())
	m.InfoHash = r.bytes(model.InfoHashLen)
	m.Size = r.uint64()
	m.Title = string(r.bytes(int(r.uint16())))
	m.Tags = string(r.bytes(int(r.byte())))
	m.TrackerInfo = string(r.bytes(int(r.uint16())))
	m.XXX = r.byte() != 0
	m.Signature = r.bytes(int(r.uint16()))

	if r.err != nil {
		return nil, off, fmt.Errorf("%w: truncated record at offset %d", ErrBadPayload, off)
	}
	return m, r.off, nil
}

// VerifyRecord checks a record's signature against its canonical encoding.
// Unsigned (null-key) records verify iff they carry no signature. Pure, no
// I/O, never panics.
func VerifyRecord(m *model.TorrentMetadata) bool {
	if !m.Signed() {
		return len(m.Signature) == 0
	}
	return identity.Verify(m.PublicKey, EncodeForSigning(m), m.Signature)
}

// Sign stamps a locally owned record with the key's fingerprint and a
// signature over its canonical encoding.
func Sign(m *model.TorrentMetadata, key *identity.Key) {
	m.PublicKey = key.PublicKey()
	m.Signature = key.Sign(EncodeForSigning(m))
}

// reader advances an offset over buf, latching the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = ErrBadPayload
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+n])
	r.off += n
	return out
}

func (r *reader) byte() byte {
	b := r.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) uint16() uint16 {
	b := r.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *reader) uint64() uint64 {
	b := r.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// appendFixed appends exactly n bytes of b, zero-padding or truncating.
func appendFixed(buf, b []byte, n int) []byte {
	if len(b) >= n {
		return append(buf, b[:n]...)
	}
	buf = append(buf, b...)
	return append(buf, make([]byte, n-len(b))...)
}

func clampLen(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
