package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// placeholderList returns "?,?,...,?" with n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts a string slice to []any for variadic query args.
func stringsToArgs(vals []string) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

// marshalAttrs encodes an attribute map as a JSON object string. Empty and
// nil maps encode as "{}" so the column never holds SQL NULL for fresh rows.
func marshalAttrs(attrs map[string]string) string {
	if len(attrs) == 0 {
		return "{}"
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// unmarshalAttrs decodes a JSON attribute column, tolerating NULL/empty.
func unmarshalAttrs(s string) map[string]string {
	if s == "" {
		return map[string]string{}
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]string{}
	}
	return m
}

// ContentHash returns the hex SHA-256 of data; the blob address.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// RepoFingerprint hashes a path->blob mapping into one hex digest. Paths are
// sorted first so the fingerprint is order-independent.
func RepoFingerprint(blobByPath map[string]string) string {
	paths := make([]string, 0, len(blobByPath))
	for p := range blobByPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	h := sha256.New()
	for _, p := range paths {
		h.Write([]byte(p))
		h.Write([]byte{':'})
		h.Write([]byte(blobByPath[p]))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
