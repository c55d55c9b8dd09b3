package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a MAJOR.MINOR.PATCH configuration version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses a "MAJOR.MINOR.PATCH" string. Missing trailing
// components default to zero ("2" is 2.0.0).
func ParseVersion(s string) (Version, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "v")
	if s == "" {
		return Version{}, &VersionError{Value: s, Err: ErrInvalidVersion}
	}
	parts := strings.Split(s, ".")
	if len(parts) > 3 {
		return Version{}, &VersionError{Value: s, Err: ErrInvalidVersion}
	}
	var nums [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, &VersionError{Value: s, Err: ErrInvalidVersion}
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParseVersion is ParseVersion for constant declarations.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as a string.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare compares two versions.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Version) Compare(other Version) int {
	switch {
	case v.Major != other.Major:
		return sign(v.Major - other.Major)
	case v.Minor != other.Minor:
		return sign(v.Minor - other.Minor)
	default:
		return sign(v.Patch - other.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}

// Bump classifies the change from a stored version to a default version.
type Bump int

const (
	// BumpNone means the versions are equal.
	BumpNone Bump = iota
	// BumpPatch means only the patch component increased.
	BumpPatch
	// BumpMinor means the minor component increased within the same major.
	BumpMinor
	// BumpMajor means the major component increased.
	BumpMajor
	// BumpDowngrade means the default version is older than the stored one.
	BumpDowngrade
)

// String returns the bump name.
func (b Bump) String() string {
	switch b {
	case BumpNone:
		return "none"
	case BumpPatch:
		return "patch"
	case BumpMinor:
		return "minor"
	case BumpMajor:
		return "major"
	case BumpDowngrade:
		return "downgrade"
	default:
		return "unknown"
	}
}

// BumpFrom returns the kind of change from stored to v.
func (v Version) BumpFrom(stored Version) Bump {
	switch c := v.Compare(stored); {
	case c == 0:
		return BumpNone
	case c < 0:
		return BumpDowngrade
	case v.Major > stored.Major:
		return BumpMajor
	case v.Minor > stored.Minor:
		return BumpMinor
	default:
		return BumpPatch
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
