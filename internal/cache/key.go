package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// keySep delimits components of the canonical key string. It is a control
// character, so it can never appear in parameter names, values or hex
// digests.
const keySep = "\x1f"

// DeriveKey builds a deterministic fingerprint from request parameters and
// the byte content of every input file. Parameters are canonicalized by
// sorting their names; files are hashed over content only and the digests
// sorted, so identical content under different names or in a different order
// yields the same key. Any single-byte difference in any input changes it.
func DeriveKey(params map[string]string, files ...io.Reader) (string, error) {
	names := make([]string, 0, len(params))
	for name := range params {
		if strings.Contains(name, keySep) {
			return "", fmt.Errorf("parameter name contains reserved delimiter")
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var canon strings.Builder
	for _, name := range names {
		if strings.Contains(params[name], keySep) {
			return "", fmt.Errorf("parameter %q contains reserved delimiter", name)
		}
		canon.WriteString(name)
		canon.WriteString("=")
		canon.WriteString(params[name])
		canon.WriteString(keySep)
	}

	digests := make([]string, 0, len(files))
	for i, f := range files {
		h := sha256.New()
		if _, err := io.Copy(h, f); err != nil {
			return "", fmt.Errorf("hash input file %d: %w", i, err)
		}
		digests = append(digests, hex.EncodeToString(h.Sum(nil)))
	}
	sort.Strings(digests)
	for _, d := range digests {
		canon.WriteString(d)
		canon.WriteString(keySep)
	}

	sum := sha256.Sum256([]byte(canon.String()))
	return hex.EncodeToString(sum[:]), nil
}

// validateKey rejects programmer errors before any I/O. Keys are caller
// namespace plus digest material; whitespace and control bytes never belong.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("empty key")
	}
	for _, r := range key {
		if r <= ' ' || r == 0x7f {
			return fmt.Errorf("key contains whitespace or control character")
		}
	}
	return nil
}
