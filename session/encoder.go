package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 1

// ErrCorruptRecord is returned when a stored blob cannot be decoded.
var ErrCorruptRecord = errors.New("corrupt session record")

// Encode renders a session as a compact versioned binary blob:
// version byte, length-prefixed strings, big-endian timestamps, flag byte.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(sessionFormatVersionCurrent)

	for _, field := range []struct {
		name  string
		value string
	}{
		{"token", s.Token},
		{"accountID", s.AccountID},
		{"deviceInfo", s.DeviceInfo},
		{"ipAddress", s.IPAddress},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	for _, ts := range []int64{s.CreatedAt, s.LastActivityAt, s.ExpiresAt, s.TerminatedAt} {
		if err := binary.Write(&buf, binary.BigEndian, ts); err != nil {
			return nil, err
		}
	}

	if s.Active {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	return buf.Bytes(), nil
}

// Decode parses a blob produced by [Encode]. Unknown versions and truncated
// input return [ErrCorruptRecord].
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	if version != sessionFormatVersionCurrent {
		return nil, ErrCorruptRecord
	}

	s := &Session{}

	for _, target := range []*string{&s.Token, &s.AccountID, &s.DeviceInfo, &s.IPAddress} {
		length, err := reader.ReadByte()
		if err != nil {
			return nil, ErrCorruptRecord
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, ErrCorruptRecord
		}
		*target = string(raw)
	}

	for _, target := range []*int64{&s.CreatedAt, &s.LastActivityAt, &s.ExpiresAt, &s.TerminatedAt} {
		if err := binary.Read(reader, binary.BigEndian, target); err != nil {
			return nil, ErrCorruptRecord
		}
	}

	flag, err := reader.ReadByte()
	if err != nil {
		return nil, ErrCorruptRecord
	}
	s.Active = flag == 1

	if reader.Len() != 0 {
		return nil, ErrCorruptRecord
	}

	return s, nil
}
