package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/modules/repo"
	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
)

const (
	jobsDir    = "jobs"
	exportsDir = "selected_output"
)

type ExportService interface {
	Export(ctx context.Context, in ExportInput) (*ExportOutput, error)
	ListExports(ctx context.Context, floorPlanID string) ([]string, error)
	GetExportedImage(ctx context.Context, imageID string) (*ExportedImage, error)
}

type exportService struct {
	r     repo.FloorPlanRepo
	store *storage.Store
	pub   EventPublisher
	cfg   *config.Config
	log   *zap.Logger
}

func NewExportService(r repo.FloorPlanRepo, store *storage.Store, pub EventPublisher, cfg *config.Config, log *zap.Logger) ExportService {
	return &exportService{r: r, store: store, pub: pub, cfg: cfg, log: log}
}

type ExportInput struct {
	FloorID   string
	Floor     string
	ViewIndex int
}

type ExportOutput struct {
	ExportedPath string `json:"exported_path"`
}

// Export copies a committed view into the plan's job output directory. The
// copy overwrites, so re-exporting the same view is idempotent.
func (s *exportService) Export(ctx context.Context, in ExportInput) (*ExportOutput, error) {
	if in.FloorID == "" || in.Floor == "" {
		return nil, fmt.Errorf("%w: floor_id and floor are required", ErrInvalidParameter)
	}

	fp, err := s.r.Get(ctx, in.FloorID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: floor plan %s", ErrNotFound, in.FloorID)
	}
	if err != nil {
		return nil, err
	}

	kw := keyword.Normalize(in.Floor)
	paths, ok := fp.Metadata.Data()[kw]
	if !ok {
		return nil, fmt.Errorf("%w: keyword %s in floor plan %s", ErrNotFound, kw, in.FloorID)
	}
	if in.ViewIndex < 0 || in.ViewIndex >= len(paths) {
		return nil, fmt.Errorf("%w: index %d, keyword %s has %d views", ErrIndexOutOfRange, in.ViewIndex, kw, len(paths))
	}

	src := paths[in.ViewIndex]
	dst := path.Join(jobsDir, fp.ID, exportsDir, path.Base(src))
	if _, err := s.store.Copy(src, dst); err != nil {
		return nil, fmt.Errorf("export view: %w", err)
	}

	publishEvent(ctx, s.pub, s.log, s.cfg.RabbitMQ.Exchange, FloorPlanEvent{
		Type:        EventExported,
		FloorPlanID: fp.ID,
		Keyword:     kw,
		Path:        dst,
	})
	s.log.Info("view exported",
		zap.String("floor_plan_id", fp.ID),
		zap.String("keyword", kw),
		zap.Int("view_index", in.ViewIndex))
	return &ExportOutput{ExportedPath: dst}, nil
}

// ListExports names the images already exported for a plan. A plan with no
// exports yet answers an empty list.
func (s *exportService) ListExports(ctx context.Context, floorPlanID string) ([]string, error) {
	if _, err := s.r.Get(ctx, floorPlanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: floor plan %s", ErrNotFound, floorPlanID)
		}
		return nil, err
	}

	entries, err := s.store.ListDir(path.Join(jobsDir, floorPlanID, exportsDir))
	if err != nil {
		// nothing exported yet
		return []string{}, nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

type ExportedImage struct {
	Name string
	MIME string
	Data []byte
}

// GetExportedImage resolves an exported image by its filename stem. Stems
// carry the owning plan id so they are unique across jobs.
func (s *exportService) GetExportedImage(ctx context.Context, imageID string) (*ExportedImage, error) {
	if imageID == "" {
		return nil, fmt.Errorf("%w: image id is required", ErrInvalidParameter)
	}

	jobs, err := s.store.ListDir(jobsDir)
	if err != nil {
		return nil, fmt.Errorf("%w: exported image %s", ErrNotFound, imageID)
	}
	for _, job := range jobs {
		if !job.IsDir() {
			continue
		}
		dir := path.Join(jobsDir, job.Name(), exportsDir)
		entries, err := s.store.ListDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || strings.TrimSuffix(name, path.Ext(name)) != imageID {
				continue
			}
			rel := path.Join(dir, name)
			data, err := s.store.ReadFile(rel)
			if err != nil {
				return nil, fmt.Errorf("read exported image: %w", err)
			}
			mime, err := s.store.MIME(rel)
			if err != nil {
				mime = "application/octet-stream"
			}
			return &ExportedImage{Name: name, MIME: mime, Data: data}, nil
		}
	}
	return nil, fmt.Errorf("%w: exported image %s", ErrNotFound, imageID)
}
