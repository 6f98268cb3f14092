//go:build integration

package storage

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloo-solutions/zenithvault/internal/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Client_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRustFSContainer(ctx, t)
	defer rc.Terminate(ctx)

	client, err := NewS3Client(ctx, S3ClientConfig{
		Endpoint:        rc.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     rc.AccessKey,
		SecretAccessKey: rc.SecretKey,
		Bucket:          "zenith-imports",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	require.NoError(t, client.EnsureBucket(ctx))
	require.NoError(t, client.EnsureBucket(ctx))

	key := "imports/org-1/" + uuid.NewString() + ".json"
	payload := []byte(`[{"type":"faq","question":"Q","answer":"A"}]`)
	require.NoError(t, client.PutObject(ctx, key, "application/json", bytes.NewReader(payload)))

	data, err := client.GetObject(ctx, key, 1<<20)
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = client.GetObject(ctx, key, 10)
	assert.ErrorIs(t, err, ErrObjectTooLarge)

	require.NoError(t, client.DeleteObject(ctx, key))
	_, err = client.GetObject(ctx, key, 1<<20)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}
