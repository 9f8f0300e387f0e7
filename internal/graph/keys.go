package graph

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrEmptyKey = errors.New("entity name has no usable characters")
	nonKeyChars = regexp.MustCompile(`[^a-z0-9]+`)
)

// EntityKey maps a display name onto a document key. Names differing only
// in case or punctuation share a key.
func EntityKey(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	key := strings.Trim(nonKeyChars.ReplaceAllString(lower, "-"), "-")
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

func edgeKey(from, relType, to string) string {
	hash := md5.Sum([]byte(from + "-" + relType + "->" + to))
	return hex.EncodeToString(hash[:])[:16]
}
