package oplog

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/cyraxred/reactor/internal/core"
)

func timeFromUnixNano(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

// Wire framing for one Operation: {u32 total_len}{byte tag}{fields...}. Each variable-length
// field is itself length-prefixed with a u32. This is a bespoke format (spec §6 calls for
// exactly "tag byte + length-prefixed fields") with no ecosystem serializer standing in for
// it — see DESIGN.md for why encoding/binary, not a third-party codec, is used here.
const (
	fieldTimestamp = 8 // int64 unix nanos, fixed width
	fieldCounter   = 8 // uint64, fixed width
	fieldLen       = 8 // int64, fixed width
)

// Encode serializes op into the wire framing, without the leading u32 total-length prefix
// (Append adds that once the full payload is known).
func Encode(op core.Operation) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(op.Kind))
	writeString(&buf, op.ID)
	writeString(&buf, op.FilePath)
	writeString(&buf, op.ActorID)
	writeString(&buf, op.RenameTo)
	writeString(&buf, op.BlobHash)
	writeBytes(&buf, op.Content)
	writeBytes(&buf, op.OldContent)
	_ = binary.Write(&buf, binary.BigEndian, op.Timestamp.UnixNano())
	_ = binary.Write(&buf, binary.BigEndian, op.Len)
	_ = binary.Write(&buf, binary.BigEndian, int64(op.Pos.Line))
	_ = binary.Write(&buf, binary.BigEndian, int64(op.Pos.Column))
	_ = binary.Write(&buf, binary.BigEndian, op.Pos.ByteOffset)
	writeString(&buf, op.Pos.Actor)
	_ = binary.Write(&buf, binary.BigEndian, op.Pos.Counter)
	_ = binary.Write(&buf, binary.BigEndian, op.Seq)
	writeStringSlice(&buf, op.Deps)
	return buf.Bytes()
}

// Decode parses one operation payload previously produced by Encode.
func Decode(data []byte) (core.Operation, error) {
	r := bytes.NewReader(data)
	var op core.Operation
	tag, err := r.ReadByte()
	if err != nil {
		return op, errors.Wrap(err, "oplog: decoding tag")
	}
	op.Kind = core.OperationKind(tag)
	if op.ID, err = readString(r); err != nil {
		return op, err
	}
	if op.FilePath, err = readString(r); err != nil {
		return op, err
	}
	if op.ActorID, err = readString(r); err != nil {
		return op, err
	}
	if op.RenameTo, err = readString(r); err != nil {
		return op, err
	}
	if op.BlobHash, err = readString(r); err != nil {
		return op, err
	}
	if op.Content, err = readBytes(r); err != nil {
		return op, err
	}
	if op.OldContent, err = readBytes(r); err != nil {
		return op, err
	}
	var nanos int64
	if err = binary.Read(r, binary.BigEndian, &nanos); err != nil {
		return op, errors.Wrap(err, "oplog: decoding timestamp")
	}
	op.Timestamp = timeFromUnixNano(nanos)
	if err = binary.Read(r, binary.BigEndian, &op.Len); err != nil {
		return op, errors.Wrap(err, "oplog: decoding len")
	}
	var line, col int64
	if err = binary.Read(r, binary.BigEndian, &line); err != nil {
		return op, err
	}
	if err = binary.Read(r, binary.BigEndian, &col); err != nil {
		return op, err
	}
	op.Pos.Line, op.Pos.Column = int(line), int(col)
	if err = binary.Read(r, binary.BigEndian, &op.Pos.ByteOffset); err != nil {
		return op, err
	}
	if op.Pos.Actor, err = readString(r); err != nil {
		return op, err
	}
	if err = binary.Read(r, binary.BigEndian, &op.Pos.Counter); err != nil {
		return op, err
	}
	if err = binary.Read(r, binary.BigEndian, &op.Seq); err != nil {
		return op, err
	}
	if op.Deps, err = readStringSlice(r); err != nil {
		return op, err
	}
	return op, nil
}

func writeString(buf *bytes.Buffer, s string) { writeBytes(buf, []byte(s)) }

func writeBytes(buf *bytes.Buffer, b []byte) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func writeStringSlice(buf *bytes.Buffer, ss []string) {
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ss)))
	for _, s := range ss {
		writeString(buf, s)
	}
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errors.Wrap(err, "oplog: decoding field length")
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.Wrap(err, "oplog: decoding field bytes")
	}
	return b, nil
}

func readStringSlice(r *bytes.Reader) ([]string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, errors.Wrap(err, "oplog: decoding slice length")
	}
	result := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}
