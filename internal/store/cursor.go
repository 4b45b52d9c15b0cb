package store

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Cursors are opaque to callers: base64 over the keyset position so a
// scan can resume across invocations without server-side state.
func encodeCursor(parts ...string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(parts, "\x00")))
}

func decodeCursor(cursor string, want int) ([]string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != want {
		return nil, fmt.Errorf("malformed cursor: got %d parts, want %d", len(parts), want)
	}
	return parts, nil
}
