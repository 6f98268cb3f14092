//go:build integration

package openai

import (
	"context"
	"os"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_RealAPI(t *testing.T) {
	apiKey := os.Getenv("ZENITH_OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("ZENITH_OPENAI_API_KEY not set, skipping integration test")
	}

	client := NewClient(apiKey)
	ctx := context.Background()

	embedding, err := client.GenerateEmbedding(ctx, "How do I reset my password?")
	require.NoError(t, err)
	assert.Len(t, embedding, DefaultEmbeddingDimensions)

	text, err := client.Generate(ctx, service.Prompt{User: "Reply with the single word: ok"})
	require.NoError(t, err)
	assert.NotEmpty(t, text)
}
