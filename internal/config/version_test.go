package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
		ok   bool
	}{
		{"1.2.3", Version{1, 2, 3}, true},
		{"v0.10.0", Version{0, 10, 0}, true},
		{"2", Version{2, 0, 0}, true},
		{"1.4", Version{1, 4, 0}, true},
		{"", Version{}, false},
		{"1.2.3.4", Version{}, false},
		{"1.x.0", Version{}, false},
		{"-1.0.0", Version{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if !tt.ok {
				require.ErrorIs(t, err, ErrInvalidVersion)
				var verr *VersionError
				require.ErrorAs(t, err, &verr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionCompare(t *testing.T) {
	v := MustParseVersion
	assert.Equal(t, 0, v("1.2.3").Compare(v("1.2.3")))
	assert.Equal(t, -1, v("1.2.3").Compare(v("1.3.0")))
	assert.Equal(t, 1, v("2.0.0").Compare(v("1.9.9")))
	assert.Equal(t, -1, v("1.2.3").Compare(v("1.2.4")))
}

func TestBumpFrom(t *testing.T) {
	v := MustParseVersion
	tests := []struct {
		stored, declared string
		want             Bump
	}{
		{"1.2.3", "1.2.3", BumpNone},
		{"1.2.3", "1.2.4", BumpPatch},
		{"1.2.3", "1.3.0", BumpMinor},
		{"1.2.3", "2.0.0", BumpMajor},
		{"1.9.0", "2.0.0", BumpMajor},
		{"2.0.0", "1.9.0", BumpDowngrade},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, v(tt.declared).BumpFrom(v(tt.stored)), "%s -> %s", tt.stored, tt.declared)
	}
}

func TestVersionText(t *testing.T) {
	data, err := Version{1, 0, 2}.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1.0.2", string(data))

	var v Version
	require.NoError(t, v.UnmarshalText([]byte("3.1.4")))
	assert.Equal(t, Version{3, 1, 4}, v)
	require.Error(t, v.UnmarshalText([]byte("nope")))
}
