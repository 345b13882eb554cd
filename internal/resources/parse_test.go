package resources

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPU(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"1", NanoCPUs},
		{"0.5", NanoCPUs / 2},
		{"250m", NanoCPUs / 4},
		{" 2 ", 2 * NanoCPUs},
		{"0.0000000001", 1},
	}
	for _, tc := range tests {
		got, err := ParseCPU(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"m", "-1", "0", "abc", "NaN"} {
		_, err := ParseCPU(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseMemory(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"256Mi", 256 << 20},
		{"1g", 1 << 30},
		{"512MiB", 512 << 20},
		{"64k", 64 << 10},
	}
	for _, tc := range tests {
		got, err := ParseMemory(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	_, err := ParseMemory("lots")
	assert.Error(t, err)
}

func TestParseLimitsJoinsErrors(t *testing.T) {
	_, err := ParseLimits("fast", "huge")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cpu") && strings.Contains(err.Error(), "memory"))

	l, err := ParseLimits("1.5", "1Gi")
	require.NoError(t, err)
	assert.Equal(t, "cpus=1.5 memory=1GiB", l.String())
	assert.Equal(t, "unlimited", Limits{}.String())
}
