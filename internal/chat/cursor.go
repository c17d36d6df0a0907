package chat

import (
	"encoding/base64"
	"strconv"
	"strings"
	"time"
)

// Cursor is a position in a conversation's total order (created_at, id).
// The id breaks ties between messages stored in the same millisecond.
type Cursor struct {
	At time.Time
	ID string
}

const cursorVersion = "c1"

// Encode returns the opaque form handed to clients.
func (c Cursor) Encode() string {
	raw := cursorVersion + ":" + strconv.FormatInt(c.At.UnixMilli(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a cursor produced by Encode.
func DecodeCursor(s string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return Cursor{}, Invalid("cursor", "malformed")
	}
	parts := strings.SplitN(string(raw), ":", 3)
	if len(parts) != 3 || parts[0] != cursorVersion || parts[2] == "" {
		return Cursor{}, Invalid("cursor", "malformed")
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Cursor{}, Invalid("cursor", "malformed")
	}
	return Cursor{At: time.UnixMilli(ms).UTC(), ID: parts[2]}, nil
}

// Compare orders two positions: -1 if c is before o, 0 if equal, +1 if after.
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.At.Before(o.At):
		return -1
	case c.At.After(o.At):
		return 1
	}
	return strings.Compare(c.ID, o.ID)
}
