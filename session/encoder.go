package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"time"
)

const sessionFormatVersionCurrent = 1

// ErrCorruptRecord is returned by [Decode] for payloads it cannot parse.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode serializes a [Record] into the compact binary layout:
//
//	version(1) | userLen(2) | userID | createdAt(8) | lastActivity(8) | expiresAt(8)
//
// Timestamps are Unix nanoseconds, big endian.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil session record")
	}
	if len(r.UserID) > math.MaxUint16 {
		return nil, errors.New("userID too long")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 2 + len(r.UserID) + 24)

	buf.WriteByte(sessionFormatVersionCurrent)

	if err := binary.Write(&buf, binary.BigEndian, uint16(len(r.UserID))); err != nil {
		return nil, err
	}
	buf.WriteString(r.UserID)

	for _, ts := range []time.Time{r.CreatedAt, r.LastActivity, r.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts.UnixNano()); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a payload produced by [Encode]. The returned record has an
// empty SessionID; callers fill it from the key.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrCorruptRecord
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, ErrCorruptRecord
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, ErrCorruptRecord
	}

	var stamps [3]int64
	for i := range stamps {
		if err := binary.Read(reader, binary.BigEndian, &stamps[i]); err != nil {
			return nil, ErrCorruptRecord
		}
	}
	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return &Record{
		UserID:       string(userID),
		CreatedAt:    time.Unix(0, stamps[0]),
		LastActivity: time.Unix(0, stamps[1]),
		ExpiresAt:    time.Unix(0, stamps[2]),
	}, nil
}
