package artifacts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blossom/internal/types"
)

func TestMemoryStoreRoundTripKeepsOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	files := []types.GeneratedFile{
		{Path: "src/b.ts", Content: "b"},
		{Path: "src/a.ts", Content: "a"},
	}
	require.NoError(t, s.Put(ctx, "p1", files))

	files[0].Content = "mutated"
	got, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []types.GeneratedFile{
		{Path: "src/b.ts", Content: "b"},
		{Path: "src/a.ts", Content: "a"},
	}, got)

	require.NoError(t, s.Put(ctx, "p1", []types.GeneratedFile{{Path: "index.html", Content: "<p/>"}}))
	got, err = s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestMemoryStoreMissingAndDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "p", nil))
	got, err := s.Get(ctx, "p")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.Delete(ctx, "p"))
	_, err = s.Get(ctx, "p")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	assert.ErrorIs(t, s.Put(ctx, " ", nil), ErrInvalid)
	assert.ErrorIs(t, s.Put(ctx, "p", []types.GeneratedFile{{Path: ""}}), ErrInvalid)
	assert.ErrorIs(t, s.Put(ctx, "p", []types.GeneratedFile{{Path: "a"}, {Path: "a"}}), ErrInvalid)
}

func TestNewS3StoreValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
	}{
		{"no endpoint", S3Config{AccessKey: "a", SecretKey: "s", Bucket: "b"}},
		{"no credentials", S3Config{Endpoint: "localhost:9000", Bucket: "b"}},
		{"no bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewS3Store(tc.cfg, nil)
			assert.Error(t, err)
		})
	}

	s, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "blossom"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", s.region)
	assert.False(t, S3Config{}.Enabled())
}

func TestObjectKeys(t *testing.T) {
	assert.Equal(t, "p1/files/src/App.tsx", fileKey("p1", "/src/App.tsx"))
	assert.Equal(t, "p1/manifest.json", manifestKey("p1"))
}
