package cachefs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxBasenameLen is the longest basename cachefs will write to disk.
const maxBasenameLen = 254

// reservedChars are replaced with '#' when mangle is true. Mirrors the
// characters that are unsafe as a single path component on at least one
// of Linux/macOS/Windows, plus characters that have special meaning to
// shells and URL parsers.
const reservedChars = "<>=,/()\\\"':?[]$ "

// FileName turns a caller-supplied identifier into an absolute path
// inside the cache directory (C1, spec §4.1).
//
// When mangle is true, every character in [reservedChars] is replaced
// with '#'. The mangling is deterministic and idempotent: mangling an
// already-mangled name returns it unchanged, since a mangled name by
// construction contains none of the reserved characters. The prefix is
// prepended on every call, so passing a returned basename back in yields
// a name with the prefix twice.
//
// Returns [ErrNameTooLong] if the resulting basename exceeds 254 bytes.
func (c *Cache) FileName(id string, mangle bool) (string, error) {
	target := c.prefix + id
	if mangle {
		target = mangleName(target)
	}

	if len(target) > maxBasenameLen {
		return "", fmt.Errorf("%w: mangled name %d bytes (max %d)", ErrNameTooLong, len(target), maxBasenameLen)
	}

	return filepath.Join(c.dir, target), nil
}

func mangleName(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedChars, r) {
			return '#'
		}

		return r
	}, s)
}
