package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

const (
	contentHashLen = 12
	chunkIDLen     = 24
)

// ChunkID derives a stable identifier from the chunk's content and
// position. Unchanged content at the same position always yields the same
// id; any change to content, location or document yields a different one.
func ChunkID(sourcePath, location string, index int, content string) string {
	contentHash := sha1Hex(content)[:contentHashLen]
	combined := fmt.Sprintf("%s|%s|%d|%s", sourcePath, location, index, contentHash)
	return sha1Hex(combined)[:chunkIDLen]
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
