package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateUploadURL(t *testing.T) {
	client, err := NewS3Client(context.Background(), S3ClientConfig{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "zenith-imports",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	url, err := client.GenerateUploadURL(context.Background(), "imports/global/a.json", "application/json")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://localhost:9000/zenith-imports/imports/global/a.json?"))
	assert.Contains(t, url, "X-Amz-Signature=")
}
