package extract

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_PlainText(t *testing.T) {
	e, err := NewExtractor(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name     string
		fileType string
		content  string
		want     string
	}{
		{"txt", "txt", "hello world", "hello world"},
		{"markdown upper case type", "MD", "# Title\n\nbody", "# Title\n\nbody"},
		{"empty", "txt", "", ""},
		{"whitespace only", "md", "  \n\t ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Extract(context.Background(), tt.fileType, []byte(tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractor_UnsupportedType(t *testing.T) {
	e, err := NewExtractor(context.Background())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "exe", []byte("MZ"))
	assert.Error(t, err)
}

func TestExtractor_CorruptPDF(t *testing.T) {
	e, err := NewExtractor(context.Background())
	require.NoError(t, err)

	_, err = e.Extract(context.Background(), "pdf", []byte("not a pdf"))
	assert.Error(t, err)
}

func TestJoinDocuments(t *testing.T) {
	docs := []*schema.Document{{Content: " page one "}, nil, {Content: ""}, {Content: "page two"}}
	assert.Equal(t, "page one\n\npage two", joinDocuments(docs))
}
