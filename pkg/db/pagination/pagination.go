package pagination

import (
	"encoding/base64"
	"encoding/json"
)

// Cursor is the decoded form of an opaque continuation token.
type Cursor struct {
	Collection string `json:"collection,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

func EncodeCursor(data Cursor) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

func DecodeCursor(data string) (*Cursor, error) {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}

	var cursor Cursor
	if err := json.Unmarshal(b, &cursor); err != nil {
		return nil, err
	}

	return &cursor, nil
}
