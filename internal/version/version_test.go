package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsVersionGreaterOrEqualThan(t *testing.T) {
	tests := []struct {
		version string
		target  string
		want    bool
	}{
		{"0.2.0", "0.1.9", true},
		{"0.2.0", "0.2.0", true},
		{"0.1.9", "0.2.0", false},
		{"1.0.0", "0.99.0", true},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, IsVersionGreaterOrEqualThan(tt.version, tt.target),
			"version %s target %s", tt.version, tt.target)
	}
}

func TestGetCurrentVersion(t *testing.T) {
	require.Equal(t, Version, GetCurrentVersion("prod"))
	require.Contains(t, GetCurrentVersion("dev"), Version)
}
