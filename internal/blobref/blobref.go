// Package blobref recognizes and computes content-addressed blob references.
package blobref

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/blobnav/internal/domain"
)

// Pattern is the reference grammar: a lowercase hash name, a dash, and a hex digest.
const Pattern = `[a-z0-9]+-[a-f0-9]+`

var anchored = regexp.MustCompile(`^` + Pattern + `$`)

// digestLengths are the hex digest lengths of the hash functions we know.
var digestLengths = map[string]int{
	"sha1":   sha1.Size * 2,
	"sha224": sha256.Size224 * 2,
	"sha256": sha256.Size * 2,
}

// Match reports whether the whole of s names a blob. Prefixes, suffixes and
// embedded references do not match.
func Match(s string) (domain.Ref, bool) {
	if !anchored.MatchString(s) {
		return "", false
	}
	return domain.Ref(s), true
}

// Parse is Match plus digest length validation for known hash functions.
// Unknown hash names are accepted as long as they fit the grammar.
func Parse(s string) (domain.Ref, error) {
	ref, ok := Match(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidRef, s)
	}
	name, digest, _ := strings.Cut(s, "-")
	if want, known := digestLengths[name]; known && len(digest) != want {
		return "", fmt.Errorf("%w: %s digest has %d hex digits, want %d", domain.ErrInvalidRef, name, len(digest), want)
	}
	return ref, nil
}

// SHA224 returns the ref of data under the default hash.
func SHA224(data []byte) domain.Ref {
	sum := sha256.Sum224(data)
	return domain.Ref("sha224-" + hex.EncodeToString(sum[:]))
}

// HasPrefix reports whether ref starts with prefix; an empty prefix matches everything.
func HasPrefix(ref domain.Ref, prefix string) bool {
	return strings.HasPrefix(string(ref), prefix)
}
