package util

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// shortHash returns the first 16 hex chars of sha256 over parts joined by NUL.
func shortHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}

// EntryKey addresses the stored variants of one URL within one commit epoch
// of a generation. Generation names are hashed so that separators inside them
// cannot make two keys collide.
func EntryKey(ns, generation string, epoch uint64, urlKey string) string {
	return "entry:" + ns + ":" + shortHash(generation) + ":" + strconv.FormatUint(epoch, 10) + ":" + shortHash(generation, urlKey)
}

// IndexKey addresses the commit index of a generation.
func IndexKey(ns, generation string) string {
	return "index:" + ns + ":" + shortHash(generation)
}

// NamesKey addresses the list of generation names of a namespace.
func NamesKey(ns string) string {
	return "names:" + ns
}
