package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/pkg/dxf"
	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
	"github.com/draftroom-io/floorplan/internal/pkg/raster"
	"github.com/draftroom-io/floorplan/internal/pkg/session"
)

type DrawingService interface {
	Ingest(ctx context.Context, in IngestInput) (*IngestOutput, error)
	Preview(ctx context.Context, in PreviewInput) (*PreviewOutput, error)
	ProcessImmediate(ctx context.Context, in ProcessInput) (*ProcessOutput, error)
}

type drawingService struct {
	store    *storage.Store
	sessions *session.Store
	plans    FloorPlanService
	cfg      *config.Config
	log      *zap.Logger
}

func NewDrawingService(store *storage.Store, sessions *session.Store, plans FloorPlanService, cfg *config.Config, log *zap.Logger) DrawingService {
	return &drawingService{store: store, sessions: sessions, plans: plans, cfg: cfg, log: log}
}

type UploadFile struct {
	Filename string
	Data     []byte
}

type IngestInput struct {
	Files              []UploadFile
	Keywords           []string
	Blacklist          []string
	ExcludedLayerNames []string
}

type IngestOutput struct {
	TempID                  string   `json:"temp_id"`
	TempFiles               []string `json:"temp_files"`
	MeaningfulBlockKeywords []string `json:"meaningful_block_keywords"`
	AllBlockKeywords        []string `json:"all_block_keywords"`
	MeaningfulLayerKeywords []string `json:"meaningful_layer_keywords"`
	AllLayerKeywords        []string `json:"all_layer_keywords"`
	EntityTypes             []string `json:"entity_types"`
}

// Ingest stores the uploaded drawings, parses them and answers with the
// merged keyword inventories the client picks previews from.
func (s *drawingService) Ingest(ctx context.Context, in IngestInput) (*IngestOutput, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no drawing files", ErrInvalidParameter)
	}

	opts := s.classifyOptions(in.Keywords, in.Blacklist, in.ExcludedLayerNames)

	up := &session.Upload{}
	var blocks, layers keyword.Inventory
	typeSet := map[string]bool{}

	// parse every file before persisting any, so one bad drawing in the
	// batch never leaves orphaned uploads behind
	docs := make([]*dxf.Document, 0, len(in.Files))
	for _, f := range in.Files {
		doc, err := s.parse(f)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	for i, f := range in.Files {
		rel, err := s.store.SaveUpload(bytes.NewReader(f.Data), f.Filename)
		if err != nil {
			s.removeUploads(up.Paths)
			return nil, fmt.Errorf("store upload %s: %w", f.Filename, err)
		}
		up.Paths = append(up.Paths, rel)
		up.Filenames = append(up.Filenames, f.Filename)

		b, l := keyword.Classify(docs[i], opts)
		blocks = mergeInventories(blocks, b)
		layers = mergeInventories(layers, l)
		for _, t := range docs[i].EntityTypes() {
			typeSet[t] = true
		}
	}

	up.Blocks = blocks
	up.Layers = layers
	up.EntityTypes = sortedKeys(typeSet)
	if err := s.sessions.PutUpload(ctx, up); err != nil {
		s.removeUploads(up.Paths)
		return nil, fmt.Errorf("store upload session: %w", err)
	}

	return &IngestOutput{
		TempID:                  up.ID,
		TempFiles:               up.Filenames,
		MeaningfulBlockKeywords: blocks.Meaningful,
		AllBlockKeywords:        blocks.All,
		MeaningfulLayerKeywords: layers.Meaningful,
		AllLayerKeywords:        layers.All,
		EntityTypes:             up.EntityTypes,
	}, nil
}

type PreviewInput struct {
	TempID             string
	Keywords           []string
	DPI                float64
	Blacklist          []string
	ExcludedLayerNames []string
	EntityTypes        []string
}

type FailedView struct {
	Keyword string `json:"keyword"`
	Source  string `json:"source"`
	Reason  string `json:"reason"`
}

type PreviewOutput struct {
	PreviewID   string             `json:"preview_id"`
	Images      []session.ImageRef `json:"images"`
	FailedViews []FailedView       `json:"failed_views,omitempty"`
}

// Preview re-parses the uploaded drawings and renders one image per view of
// every requested keyword. The result is stored as a consumable preview
// session; individual view failures are reported alongside, never fatally.
func (s *drawingService) Preview(ctx context.Context, in PreviewInput) (*PreviewOutput, error) {
	if in.TempID == "" {
		return nil, fmt.Errorf("%w: temp_id is required", ErrInvalidParameter)
	}

	up, err := s.sessions.GetUpload(ctx, in.TempID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: upload %s", ErrNotFound, in.TempID)
	}
	if err != nil {
		return nil, err
	}

	dpi := in.DPI
	if dpi == 0 {
		dpi = s.cfg.Render.DPI
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("%w: dpi %v", ErrInvalidParameter, dpi)
	}

	previewID := uuid.NewString()
	preview := &session.Preview{
		ID:       previewID,
		UploadID: up.ID,
		DPI:      dpi,
		Images:   map[string][]session.ImageRef{},
	}

	var flat []session.ImageRef
	var failed []FailedView
	seen := map[string]bool{}

	for fi, rel := range up.Paths {
		data, err := s.store.ReadFile(rel)
		if err != nil {
			return nil, fmt.Errorf("read upload %s: %w", rel, err)
		}
		doc, err := dxf.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedDrawing, up.Filenames[fi])
		}

		views, err := raster.Render(ctx, doc, in.Keywords, raster.Options{
			DPI:            dpi,
			MarginPx:       s.cfg.Render.MarginPx,
			MaxPixels:      s.cfg.Render.MaxPixels,
			Workers:        s.cfg.Render.Workers,
			EntityTypes:    in.EntityTypes,
			Blacklist:      in.Blacklist,
			ExcludedLayers: in.ExcludedLayerNames,
		})
		if errors.Is(err, raster.ErrInvalidDPI) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		if err != nil {
			return nil, err
		}

		for _, kv := range views {
			for _, v := range kv.Views {
				if v.Err != nil {
					failed = append(failed, FailedView{Keyword: kv.Keyword, Source: v.Source, Reason: v.Err.Error()})
					continue
				}

				name := v.Source + ".png"
				if len(up.Paths) > 1 {
					name = fmt.Sprintf("f%d-%s.png", fi, v.Source)
				}
				imgRel := path.Join("previews", previewID, kv.Keyword, name)

				hash, err := s.store.WritePNG(imgRel, v.Image)
				if err != nil {
					failed = append(failed, FailedView{Keyword: kv.Keyword, Source: v.Source, Reason: err.Error()})
					continue
				}
				if seen[hash] {
					// identical render within the session, keep one copy
					_ = s.store.Remove(imgRel)
					continue
				}
				seen[hash] = true

				ref := session.ImageRef{Keyword: kv.Keyword, Source: v.Source, Path: imgRel, Hash: hash}
				preview.Images[kv.Keyword] = append(preview.Images[kv.Keyword], ref)
				flat = append(flat, ref)
			}
		}
	}

	if err := s.sessions.PutPreview(ctx, preview); err != nil {
		return nil, fmt.Errorf("store preview session: %w", err)
	}

	s.log.Info("preview generated",
		zap.String("preview_id", previewID),
		zap.String("temp_id", up.ID),
		zap.Int("images", len(flat)),
		zap.Int("failed", len(failed)))

	return &PreviewOutput{PreviewID: previewID, Images: flat, FailedViews: failed}, nil
}

type ProcessInput struct {
	Files              []UploadFile
	Keywords           []string
	DPI                float64
	Blacklist          []string
	ExcludedLayerNames []string
	EntityTypes        []string
	ProjectID          string
}

type ProcessOutput struct {
	FloorPlanIDs []string `json:"floor_plan_ids"`
}

// ProcessImmediate is the no-preview path: each drawing is parsed, every
// view of every matched keyword is rendered and committed as one floor plan.
func (s *drawingService) ProcessImmediate(ctx context.Context, in ProcessInput) (*ProcessOutput, error) {
	if len(in.Files) == 0 {
		return nil, fmt.Errorf("%w: no drawing files", ErrInvalidParameter)
	}

	dpi := in.DPI
	if dpi == 0 {
		dpi = s.cfg.Render.DPI
	}
	if dpi <= 0 {
		return nil, fmt.Errorf("%w: dpi %v", ErrInvalidParameter, dpi)
	}

	keywords := in.Keywords
	if len(keywords) == 0 {
		keywords = s.cfg.Classify.Keywords
	}

	out := &ProcessOutput{}
	for _, f := range in.Files {
		doc, err := s.parse(f)
		if err != nil {
			return nil, err
		}

		views, err := raster.Render(ctx, doc, keywords, raster.Options{
			DPI:            dpi,
			MarginPx:       s.cfg.Render.MarginPx,
			MaxPixels:      s.cfg.Render.MaxPixels,
			Workers:        s.cfg.Render.Workers,
			EntityTypes:    in.EntityTypes,
			Blacklist:      in.Blacklist,
			ExcludedLayers: in.ExcludedLayerNames,
		})
		if errors.Is(err, raster.ErrInvalidDPI) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
		}
		if err != nil {
			return nil, err
		}

		var rendered []RenderedView
		for _, kv := range views {
			for _, v := range kv.Views {
				if v.Err != nil {
					s.log.Warn("view render failed",
						zap.String("file", f.Filename),
						zap.String("keyword", kv.Keyword),
						zap.String("source", v.Source),
						zap.Error(v.Err))
					continue
				}
				rendered = append(rendered, RenderedView{Keyword: kv.Keyword, Source: v.Source, Image: v.Image})
			}
		}
		if len(rendered) == 0 {
			continue
		}

		fp, err := s.plans.SaveRendered(ctx, SaveRenderedInput{ProjectID: in.ProjectID, Views: rendered})
		if err != nil {
			return nil, fmt.Errorf("commit %s: %w", f.Filename, err)
		}
		out.FloorPlanIDs = append(out.FloorPlanIDs, fp.ID)
	}
	return out, nil
}

func (s *drawingService) parse(f UploadFile) (*dxf.Document, error) {
	doc, err := dxf.Parse(f.Data)
	if err != nil {
		if errors.Is(err, dxf.ErrMalformed) {
			return nil, fmt.Errorf("%w: %s", ErrMalformedDrawing, f.Filename)
		}
		return nil, fmt.Errorf("parse %s: %w", f.Filename, err)
	}
	return doc, nil
}

// removeUploads reclaims files saved before an ingest aborted.
func (s *drawingService) removeUploads(paths []string) {
	for _, rel := range paths {
		if err := s.store.Remove(rel); err != nil {
			s.log.Warn("remove orphaned upload failed", zap.String("path", rel), zap.Error(err))
		}
	}
}

func (s *drawingService) classifyOptions(keywords, blacklist, excludedLayers []string) keyword.Options {
	if keywords == nil {
		keywords = s.cfg.Classify.Keywords
	}
	if blacklist == nil {
		blacklist = s.cfg.Classify.Blacklist
	}
	if excludedLayers == nil {
		excludedLayers = s.cfg.Classify.ExcludedLayers
	}
	return keyword.Options{Keywords: keywords, Blacklist: blacklist, ExcludedLayers: excludedLayers}
}

func mergeInventories(a, b keyword.Inventory) keyword.Inventory {
	return keyword.Inventory{
		Meaningful: mergeSorted(a.Meaningful, b.Meaningful),
		All:        mergeSorted(a.All, b.All),
	}
}

func mergeSorted(a, b []string) []string {
	set := map[string]bool{}
	for _, v := range a {
		set[v] = true
	}
	for _, v := range b {
		set[v] = true
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
