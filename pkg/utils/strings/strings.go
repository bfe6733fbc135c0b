package strings

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// SplitIfNotEmpty is like strings.Split(s, sep), but
// pieces are trimmed and blank pieces are dropped.
//
// example:
//
//	SplitIfNotEmpty("", ",")                  // -> []
//	SplitIfNotEmpty("EXECUTION, EVICTION", ",") // -> ["EXECUTION", "EVICTION"]
//	SplitIfNotEmpty("a,,b,", ",")             // -> ["a", "b"]
func SplitIfNotEmpty(s string, sep string) []string {
	ret := []string{}
	if strings.TrimSpace(s) == "" {
		return ret
	}
	for _, p := range strings.Split(s, sep) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

// CutPair splits "key<sep>value" into key and value.
//
// Both are trimmed. ok is false when sep is not found or key is blank.
func CutPair(s string, sep string) (key string, value string, ok bool) {
	k, v, found := strings.Cut(s, sep)
	k = strings.TrimSpace(k)
	if !found || k == "" {
		return "", "", false
	}
	return k, strings.TrimSpace(v), true
}

// return random Hex string (/[0-9a-f]*/)
func RandomHex(l uint) (string, error) {
	if l == 0 {
		return "", nil
	}

	// encoding from []byte to hex string is doubling its length.
	// in case of odd `l`, add extra 1 not to be short.
	buffer := make([]byte, l/2+1)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer)[:l], nil
}
