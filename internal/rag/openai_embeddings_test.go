package rag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsTransientError(t *testing.T) {
	transient := []error{
		errors.New("context deadline exceeded"),
		errors.New("connection refused"),
		errors.New("rate limit exceeded, retry later"),
		errors.New("status code: 503"),
	}
	for _, err := range transient {
		require.True(t, isTransientError(err), err.Error())
	}

	permanent := []error{
		errors.New("status code: 401, invalid api key"),
		errors.New("model not found"),
	}
	for _, err := range permanent {
		require.False(t, isTransientError(err), err.Error())
	}
}

func TestOpenAIProvider_Defaults(t *testing.T) {
	p := NewOpenAIEmbeddingProvider("key", "", "", 0, 0)
	require.Equal(t, "text-embedding-3-small", p.Model())
	require.Equal(t, 1536, p.Dimension())

	large := NewOpenAIEmbeddingProvider("key", "", "text-embedding-3-large", 0, 0)
	require.Equal(t, 3072, large.Dimension())
}
