// Package session keeps the ephemeral state between the upload, preview and
// commit steps in Redis. Entries expire on a TTL; a committed preview is
// consumed atomically so it can never back two floor plans.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
)

var (
	// ErrNotFound covers both never-existed and expired entries; Redis
	// cannot tell them apart once the key is gone.
	ErrNotFound = errors.New("session entry not found or expired")
	// ErrConsumed marks a preview that already backed a commit.
	ErrConsumed = errors.New("preview already consumed")
)

const (
	uploadKeyPrefix  = "floorplan:upload:"
	previewKeyPrefix = "floorplan:preview:"
	consumedSuffix   = ":consumed"

	// consumedMarkTTL only needs to outlive a plausible duplicate commit,
	// not the preview itself.
	consumedMarkTTL = 24 * time.Hour
)

// Upload is the parse result of one ingested drawing batch. Inventories are
// merged across files of the batch.
type Upload struct {
	ID          string            `json:"id"`
	Paths       []string          `json:"paths"`
	Filenames   []string          `json:"filenames"`
	Blocks      keyword.Inventory `json:"blocks"`
	Layers      keyword.Inventory `json:"layers"`
	EntityTypes []string          `json:"entity_types"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ImageRef locates one rendered view inside a preview.
type ImageRef struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	Path    string `json:"path"`
	Hash    string `json:"hash"`
}

// Preview holds the rendered views of one preview round, keyed the way the
// client selects them: keyword to ordered image refs.
type Preview struct {
	ID        string                `json:"id"`
	UploadID  string                `json:"upload_id"`
	DPI       float64               `json:"dpi"`
	Images    map[string][]ImageRef `json:"images"`
	CreatedAt time.Time             `json:"created_at"`
}

type Store struct {
	rdb        redis.UniversalClient
	uploadTTL  time.Duration
	previewTTL time.Duration
}

func NewStore(rdb redis.UniversalClient, uploadTTL, previewTTL time.Duration) *Store {
	return &Store{rdb: rdb, uploadTTL: uploadTTL, previewTTL: previewTTL}
}

// PutUpload assigns the upload its id and stores it under the upload TTL.
func (s *Store) PutUpload(ctx context.Context, u *Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return s.put(ctx, uploadKeyPrefix+u.ID, u, s.uploadTTL)
}

func (s *Store) GetUpload(ctx context.Context, id string) (*Upload, error) {
	var u Upload
	if err := s.get(ctx, uploadKeyPrefix+id, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) PutPreview(ctx context.Context, p *Preview) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return s.put(ctx, previewKeyPrefix+p.ID, p, s.previewTTL)
}

func (s *Store) GetPreview(ctx context.Context, id string) (*Preview, error) {
	var p Preview
	if err := s.get(ctx, previewKeyPrefix+id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumePreview removes the preview and returns it. Exactly one caller wins;
// any later call gets ErrConsumed while the consumed marker lives, ErrNotFound
// after that.
func (s *Store) ConsumePreview(ctx context.Context, id string) (*Preview, error) {
	key := previewKeyPrefix + id
	raw, err := s.rdb.GetDel(ctx, key).Bytes()
	switch {
	case err == nil:
		s.rdb.Set(ctx, key+consumedSuffix, "1", consumedMarkTTL)
		var p Preview
		if err := sonic.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode preview %s: %w", id, err)
		}
		return &p, nil
	case errors.Is(err, redis.Nil):
		n, markErr := s.rdb.Exists(ctx, key+consumedSuffix).Result()
		if markErr != nil {
			return nil, fmt.Errorf("check preview %s: %w", id, markErr)
		}
		if n > 0 {
			return nil, ErrConsumed
		}
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("consume preview %s: %w", id, err)
	}
}

func (s *Store) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string, v any) error {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
