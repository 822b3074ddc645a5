package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

const sessionFormatVersionCurrent = 2

// Fixed offsets (zero based) shared with the rotation script.
const (
	refreshHashOffset = 1
	parentHashOffset  = refreshHashOffset + 32
	createdAtOffset   = parentHashOffset + 32
	expiresAtOffset   = createdAtOffset + 8
	stringsOffset     = expiresAtOffset + 8
)

var errInvalidBlob = errors.New("invalid session blob")

// Encode serializes s into the current blob format.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(stringsOffset + len(s.UserID) + len(s.RecipeUserID) + len(s.TenantID) + len(s.AccessPayload) + len(s.Data) + 16)

	buf.WriteByte(sessionFormatVersionCurrent)
	buf.Write(s.RefreshHash[:])
	buf.Write(s.ParentRefreshHash[:])
	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt); err != nil {
		return nil, err
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"userID", s.UserID},
		{"recipeUserID", s.RecipeUserID},
		{"tenantID", s.TenantID},
		{"antiCSRFToken", s.AntiCSRFToken},
	} {
		if len(field.value) > 255 {
			return nil, errors.New(field.name + " too long")
		}
		buf.WriteByte(byte(len(field.value)))
		buf.WriteString(field.value)
	}

	for _, blob := range [][]byte{s.AccessPayload, s.Data} {
		if err := binary.Write(&buf, binary.BigEndian, uint32(len(blob))); err != nil {
			return nil, err
		}
		buf.Write(blob)
	}

	return buf.Bytes(), nil
}

// Decode parses a blob written by [Encode]. The handle is not part of the blob.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	if _, err := io.ReadFull(reader, s.RefreshHash[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, s.ParentRefreshHash[:]); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.CreatedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &s.ExpiresAt); err != nil {
		return nil, err
	}

	for _, dst := range []*string{&s.UserID, &s.RecipeUserID, &s.TenantID, &s.AntiCSRFToken} {
		n, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = string(raw)
	}

	for _, dst := range []*[]byte{&s.AccessPayload, &s.Data} {
		var n uint32
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		if int64(n) > int64(reader.Len()) {
			return nil, errInvalidBlob
		}
		if n == 0 {
			continue
		}
		raw := make([]byte, n)
		if _, err := io.ReadFull(reader, raw); err != nil {
			return nil, err
		}
		*dst = raw
	}

	if reader.Len() != 0 {
		return nil, errInvalidBlob
	}

	return s, nil
}
