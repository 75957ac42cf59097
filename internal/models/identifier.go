package models

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// IdentifierLayout is the on-disk and exported revision identifier format.
// Changing it is a breaking format change.
const IdentifierLayout = "20060102_150405"

const maxSuffix = 999

// ErrMalformedIdentifier is returned when an identifier does not match IdentifierLayout
var ErrMalformedIdentifier = errors.New("malformed revision identifier")

// FormatIdentifier formats t as a base identifier
func FormatIdentifier(t time.Time) string {
	return t.UTC().Format(IdentifierLayout)
}

// ParseIdentifier returns the instant encoded in id.
// Accepted forms: 20060102_150405 and 20060102_150405_NNN.
func ParseIdentifier(id string) (time.Time, error) {
	base, _, err := splitIdentifier(id)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.ParseInLocation(IdentifierLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
	return t, nil
}

// NextIdentifier returns a fresh identifier for now that sorts after latest
// and for which taken reports false. latest may be empty.
func NextIdentifier(now time.Time, latest string, taken func(string) bool) (string, error) {
	base := FormatIdentifier(now)
	suffix := 0

	if latest != "" {
		latestBase, latestSuffix, err := splitIdentifier(latest)
		if err != nil {
			return "", err
		}
		// Clock went backwards or several changes landed in the same second
		if base <= latestBase {
			base = latestBase
			suffix = latestSuffix + 1
		}
	}

	for ; suffix <= maxSuffix; suffix++ {
		id := withSuffix(base, suffix)
		if taken == nil || !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("no free identifier left for %s", base)
}

func withSuffix(base string, suffix int) string {
	if suffix == 0 {
		return base
	}
	return fmt.Sprintf("%s_%03d", base, suffix)
}

func splitIdentifier(id string) (string, int, error) {
	n := len(IdentifierLayout)
	switch {
	case len(id) == n:
		return id, 0, nil
	case len(id) == n+4 && id[n] == '_':
		suffix, err := strconv.Atoi(id[n+1:])
		if err != nil || suffix < 1 || id[n+1] == '+' || id[n+1] == '-' {
			return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
		}
		return id[:n], suffix, nil
	default:
		return "", 0, fmt.Errorf("%w: %q", ErrMalformedIdentifier, id)
	}
}
