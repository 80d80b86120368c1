package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"知识库检索", 2, "知识"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.n))
	}
}

func TestDedupInt64KeepsOrder(t *testing.T) {
	assert.Equal(t, []int64{3, 1, 2}, DedupInt64([]int64{3, 1, 3, 2, 1}))
	assert.Empty(t, DedupInt64(nil))
}

func TestGenerateShortUUID(t *testing.T) {
	id := GenerateShortUUID()
	assert.Len(t, id, 32)
	assert.NotContains(t, id, "-")
	assert.NotEqual(t, id, GenerateShortUUID())
}
