package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, time.Hour, 30*time.Minute), mr
}

func TestUploadRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	up := &Upload{
		Paths:     []string{"uploads/a.dxf"},
		Filenames: []string{"plan.dxf"},
		Blocks: keyword.Inventory{
			Meaningful: []string{"DOOR"},
			All:        []string{"DOOR", "TITLEBLOCK"},
		},
		EntityTypes: []string{"LINE", "LWPOLYLINE"},
	}
	require.NoError(t, store.PutUpload(ctx, up))
	require.NotEmpty(t, up.ID)

	got, err := store.GetUpload(ctx, up.ID)
	require.NoError(t, err)
	assert.Equal(t, up.Filenames, got.Filenames)
	assert.Equal(t, up.Blocks.Meaningful, got.Blocks.Meaningful)
	assert.Equal(t, up.EntityTypes, got.EntityTypes)
}

func TestUploadExpires(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	up := &Upload{Paths: []string{"uploads/a.dxf"}}
	require.NoError(t, store.PutUpload(ctx, up))

	mr.FastForward(2 * time.Hour)

	_, err := store.GetUpload(ctx, up.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetUploadUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetUpload(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPreviewRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := &Preview{
		UploadID: "up-1",
		DPI:      300,
		Images: map[string][]ImageRef{
			"DOOR": {{Keyword: "DOOR", Source: "DOOR-SINGLE.block", Path: "previews/x.png", Hash: "abc"}},
		},
	}
	require.NoError(t, store.PutPreview(ctx, p))

	got, err := store.GetPreview(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "up-1", got.UploadID)
	require.Len(t, got.Images["DOOR"], 1)
	assert.Equal(t, "DOOR-SINGLE.block", got.Images["DOOR"][0].Source)
}

func TestConsumePreviewOnce(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	p := &Preview{UploadID: "up-1", DPI: 150}
	require.NoError(t, store.PutPreview(ctx, p))

	got, err := store.ConsumePreview(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "up-1", got.UploadID)

	_, err = store.ConsumePreview(ctx, p.ID)
	assert.ErrorIs(t, err, ErrConsumed)

	_, err = store.GetPreview(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumePreviewUnknown(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.ConsumePreview(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConsumeExpiredPreview(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	p := &Preview{UploadID: "up-1"}
	require.NoError(t, store.PutPreview(ctx, p))

	mr.FastForward(time.Hour)

	_, err := store.ConsumePreview(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
