// Package rank allocates dense, totally-ordered string keys for board items.
//
// Keys have the form "bucket|digits" where digits is a base-36 fraction
// (e.g. "0|hzzzzz"). Lexicographic comparison of two keys in the same bucket
// matches their numeric order, and between any two distinct keys there is
// always room for a third: precision grows by appending digits, so inserting
// an item never requires renumbering its siblings.
package rank

import (
	"fmt"
	"strings"
)

const (
	digits = "0123456789abcdefghijklmnopqrstuvwxyz"
	base   = len(digits)

	// DefaultBucket is the bucket new collections are seeded into.
	DefaultBucket = "0"

	// seed is the midpoint of the six-digit key space, matching the value
	// existing boards were seeded with.
	seed = "hzzzzz"
)

// Initial returns the key assigned to the first item of an empty collection.
func Initial() string {
	return DefaultBucket + "|" + seed
}

// After returns a key strictly greater than key, for appending at the end.
func After(key string) (string, error) {
	bucket, d, err := split(key)
	if err != nil {
		return "", err
	}
	return bucket + "|" + appendAfter(d), nil
}

// Before returns a key strictly less than key, for prepending at the start.
func Before(key string) (string, error) {
	bucket, d, err := split(key)
	if err != nil {
		return "", err
	}
	mid, err := betweenDigits("", d)
	if err != nil {
		return "", fmt.Errorf("before %q: %w", key, err)
	}
	return bucket + "|" + mid, nil
}

// Between returns a key strictly between lower and upper. Both keys must be
// in the same bucket and lower must sort before upper; anything else is a
// caller error, since an ordered collection never holds out-of-order keys.
func Between(lower, upper string) (string, error) {
	lb, ld, err := split(lower)
	if err != nil {
		return "", err
	}
	ub, ud, err := split(upper)
	if err != nil {
		return "", err
	}
	if lb != ub {
		return "", fmt.Errorf("between %q and %q: bucket mismatch", lower, upper)
	}
	if ld >= ud {
		return "", fmt.Errorf("between %q and %q: lower must sort before upper", lower, upper)
	}
	mid, err := betweenDigits(ld, ud)
	if err != nil {
		return "", fmt.Errorf("between %q and %q: %w", lower, upper, err)
	}
	return lb + "|" + mid, nil
}

// ForPosition picks the key for an item dropped between prev and next, either
// of which may be empty when the item lands at an end of the collection.
func ForPosition(prev, next string) (string, error) {
	switch {
	case prev == "" && next == "":
		return Initial(), nil
	case next == "":
		return After(prev)
	case prev == "":
		return Before(next)
	default:
		return Between(prev, next)
	}
}

// Valid reports whether key parses as a rank key.
func Valid(key string) bool {
	_, _, err := split(key)
	return err == nil
}

func split(key string) (bucket, d string, err error) {
	i := strings.IndexByte(key, '|')
	if i < 0 {
		return "", "", fmt.Errorf("rank key %q: missing bucket separator", key)
	}
	bucket, d = key[:i], key[i+1:]
	if bucket == "" || d == "" {
		return "", "", fmt.Errorf("rank key %q: empty bucket or digits", key)
	}
	for j := 0; j < len(d); j++ {
		if digitVal(d[j]) < 0 {
			return "", "", fmt.Errorf("rank key %q: invalid digit %q", key, d[j])
		}
	}
	return bucket, d, nil
}

func digitVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'z':
		return int(c-'a') + 10
	default:
		return -1
	}
}

// digitAt reads position i of a fraction string, treating positions past the
// end as zero.
func digitAt(d string, i int) int {
	if i >= len(d) {
		return 0
	}
	return digitVal(d[i])
}

// betweenDigits returns a fraction strictly between a and b, where an empty a
// is the lower bound of the key space. The result never ends in '0', so it
// can always serve as an upper bound for a later insertion.
func betweenDigits(a, b string) (string, error) {
	if strings.TrimRight(b, "0") == a {
		// b is a with zeros appended (or all zeros): nothing fits between.
		return "", fmt.Errorf("no key space between %q and %q", a, b)
	}

	var out strings.Builder
	for i := 0; i < len(b); i++ {
		da, db := digitAt(a, i), digitVal(b[i])
		if da == db {
			out.WriteByte(b[i])
			continue
		}
		if da > db {
			return "", fmt.Errorf("digits out of order at position %d", i)
		}
		if db-da >= 2 {
			out.WriteByte(digits[(da+db)/2])
			return out.String(), nil
		}
		// Consecutive digits: keep the lower one and extend past the rest
		// of a, which stays below b because it diverged at this position.
		out.WriteByte(digits[da])
		if i+1 < len(a) {
			out.WriteString(appendAfter(a[i+1:]))
		} else {
			out.WriteString(appendAfter(""))
		}
		return out.String(), nil
	}
	return "", fmt.Errorf("digits out of order")
}

// appendAfter returns a fraction strictly greater than a, biased toward the
// middle of the remaining space so later appends keep room on both sides.
func appendAfter(a string) string {
	var out strings.Builder
	for i := 0; ; i++ {
		da := digitAt(a, i)
		if base-da >= 2 {
			out.WriteByte(digits[(da+base)/2])
			return out.String()
		}
		// da is the maximum digit: carry it and extend.
		out.WriteByte(digits[da])
	}
}
