package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/draftroom-io/floorplan/internal/config"
	"github.com/draftroom-io/floorplan/internal/infra/storage"
	"github.com/draftroom-io/floorplan/internal/modules/model"
	"github.com/draftroom-io/floorplan/internal/modules/repo"
	"github.com/draftroom-io/floorplan/internal/pkg/keyword"
	"github.com/draftroom-io/floorplan/internal/pkg/session"
)

// createAttempts bounds the retry on a generated-id collision.
const createAttempts = 3

type FloorPlanService interface {
	Commit(ctx context.Context, in CommitInput) (*model.FloorPlan, error)
	SaveRendered(ctx context.Context, in SaveRenderedInput) (*model.FloorPlan, error)
	Get(ctx context.Context, id string) (*FloorPlanDetail, error)
	Delete(ctx context.Context, id string) error
	Link(ctx context.Context, projectID, floorPlanID string) error
	ListForProject(ctx context.Context, projectID string) ([]FloorPlanDetail, error)
	KeywordTree(ctx context.Context) (*KeywordTree, error)
}

type floorPlanService struct {
	r        repo.FloorPlanRepo
	store    *storage.Store
	sessions *session.Store
	pub      EventPublisher
	cfg      *config.Config
	log      *zap.Logger
}

func NewFloorPlanService(r repo.FloorPlanRepo, store *storage.Store, sessions *session.Store, pub EventPublisher, cfg *config.Config, log *zap.Logger) FloorPlanService {
	return &floorPlanService{r: r, store: store, sessions: sessions, pub: pub, cfg: cfg, log: log}
}

type CommitInput struct {
	PreviewID     string
	ProjectID     string
	SelectedPaths []string
}

type FloorPlanDetail struct {
	ID        string          `json:"id"`
	Keyword   *string         `json:"keyword"`
	Metadata  model.ViewIndex `json:"metadata"`
	Paths     []string        `json:"paths"`
	CreatedAt time.Time       `json:"created_at"`
}

// Commit consumes the preview session and persists the selected views as one
// floor plan. The consume is atomic, so exactly one of several concurrent
// commits on the same preview wins.
func (s *floorPlanService) Commit(ctx context.Context, in CommitInput) (*model.FloorPlan, error) {
	if in.PreviewID == "" {
		return nil, fmt.Errorf("%w: preview_id is required", ErrInvalidParameter)
	}
	if len(in.SelectedPaths) == 0 {
		return nil, fmt.Errorf("%w: no views selected", ErrInvalidParameter)
	}

	// validate the selection against a plain read first, so a bad request
	// leaves the session intact
	peek, err := s.sessions.GetPreview(ctx, in.PreviewID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("%w: preview %s", ErrNotFound, in.PreviewID)
	}
	if err != nil {
		return nil, err
	}
	if _, _, err := resolveSelection(peek, in.SelectedPaths); err != nil {
		return nil, err
	}

	preview, err := s.sessions.ConsumePreview(ctx, in.PreviewID)
	switch {
	case errors.Is(err, session.ErrConsumed):
		return nil, fmt.Errorf("%w: preview %s", ErrAlreadyConsumed, in.PreviewID)
	case errors.Is(err, session.ErrNotFound):
		return nil, fmt.Errorf("%w: preview %s", ErrNotFound, in.PreviewID)
	case err != nil:
		return nil, err
	}

	selected, kwOrder, err := resolveSelection(preview, in.SelectedPaths)
	if err != nil {
		return nil, err
	}

	var fp *model.FloorPlan
	var copies map[string]string
	for attempt := 0; attempt < createAttempts; attempt++ {
		id := newPlanID()
		viewIndex := model.ViewIndex{}
		copies = map[string]string{}
		for _, kw := range kwOrder {
			counters := map[string]int{}
			for _, ref := range selected[kw] {
				dst := path.Join(planDir(id), kw, densify(ref.Source, counters)+"-"+id+".png")
				viewIndex[kw] = append(viewIndex[kw], dst)
				copies[dst] = ref.Path
			}
		}

		fp = &model.FloorPlan{
			ID:           id,
			Keyword:      strPtr(primaryKeyword(viewIndex)),
			RelativePath: strPtr(planDir(id)),
			Metadata:     datatypes.NewJSONType(viewIndex),
		}
		err = s.r.Create(ctx, fp)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			fp = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create floor plan record: %w", err)
		}
		break
	}
	if fp == nil {
		return nil, fmt.Errorf("create floor plan record: %w", err)
	}

	for dst, src := range copies {
		if _, err := s.store.Copy(src, dst); err != nil {
			return nil, fmt.Errorf("materialize view %s: %w", dst, err)
		}
	}
	if err := s.writeSidecar(fp.ID, fp.Metadata.Data()); err != nil {
		return nil, err
	}

	if in.ProjectID != "" {
		link := &model.ProjectDxfLink{ProjectID: in.ProjectID, FloorPlanID: fp.ID}
		if err := s.r.Link(ctx, link); err != nil {
			return nil, fmt.Errorf("link floor plan to project: %w", err)
		}
	}

	publishEvent(ctx, s.pub, s.log, s.cfg.RabbitMQ.Exchange, FloorPlanEvent{
		Type:        EventCommitted,
		FloorPlanID: fp.ID,
		ProjectID:   in.ProjectID,
		Keyword:     derefStr(fp.Keyword),
		Path:        derefStr(fp.RelativePath),
	})
	s.log.Info("floor plan committed",
		zap.String("floor_plan_id", fp.ID),
		zap.String("preview_id", in.PreviewID),
		zap.Int("views", len(in.SelectedPaths)))
	return fp, nil
}

type RenderedView struct {
	Keyword string
	Source  string
	Image   image.Image
}

type SaveRenderedInput struct {
	ProjectID string
	Views     []RenderedView
}

// SaveRendered persists in-memory views directly, bypassing the preview
// session. Encoded bytes are held until the record exists so an id retry
// never strands files on disk.
func (s *floorPlanService) SaveRendered(ctx context.Context, in SaveRenderedInput) (*model.FloorPlan, error) {
	if len(in.Views) == 0 {
		return nil, fmt.Errorf("%w: no views to save", ErrInvalidParameter)
	}

	type encoded struct {
		keyword string
		source  string
		data    []byte
	}
	var encs []encoded
	kwOrder := []string{}
	seenKw := map[string]bool{}
	seenHash := map[string]bool{}
	for _, v := range in.Views {
		var buf bytes.Buffer
		if err := png.Encode(&buf, v.Image); err != nil {
			return nil, fmt.Errorf("encode view %s: %w", v.Source, err)
		}
		sum := md5.Sum(buf.Bytes())
		h := hex.EncodeToString(sum[:])
		if seenHash[h] {
			continue
		}
		seenHash[h] = true

		kw := keyword.Normalize(v.Keyword)
		if !seenKw[kw] {
			seenKw[kw] = true
			kwOrder = append(kwOrder, kw)
		}
		encs = append(encs, encoded{keyword: kw, source: v.Source, data: buf.Bytes()})
	}

	var fp *model.FloorPlan
	var files map[string][]byte
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		id := newPlanID()
		viewIndex := model.ViewIndex{}
		files = map[string][]byte{}
		for _, kw := range kwOrder {
			counters := map[string]int{}
			for _, e := range encs {
				if e.keyword != kw {
					continue
				}
				dst := path.Join(planDir(id), kw, densify(e.source, counters)+"-"+id+".png")
				viewIndex[kw] = append(viewIndex[kw], dst)
				files[dst] = e.data
			}
		}

		fp = &model.FloorPlan{
			ID:           id,
			Keyword:      strPtr(primaryKeyword(viewIndex)),
			RelativePath: strPtr(planDir(id)),
			Metadata:     datatypes.NewJSONType(viewIndex),
		}
		err = s.r.Create(ctx, fp)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			fp = nil
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create floor plan record: %w", err)
		}
		break
	}
	if fp == nil {
		return nil, fmt.Errorf("create floor plan record: %w", err)
	}

	for dst, data := range files {
		if err := s.store.WriteFile(dst, data); err != nil {
			return nil, fmt.Errorf("write view %s: %w", dst, err)
		}
	}
	if err := s.writeSidecar(fp.ID, fp.Metadata.Data()); err != nil {
		return nil, err
	}

	if in.ProjectID != "" {
		link := &model.ProjectDxfLink{ProjectID: in.ProjectID, FloorPlanID: fp.ID}
		if err := s.r.Link(ctx, link); err != nil {
			return nil, fmt.Errorf("link floor plan to project: %w", err)
		}
	}

	publishEvent(ctx, s.pub, s.log, s.cfg.RabbitMQ.Exchange, FloorPlanEvent{
		Type:        EventCommitted,
		FloorPlanID: fp.ID,
		ProjectID:   in.ProjectID,
		Keyword:     derefStr(fp.Keyword),
		Path:        derefStr(fp.RelativePath),
	})
	return fp, nil
}

func (s *floorPlanService) Get(ctx context.Context, id string) (*FloorPlanDetail, error) {
	fp, err := s.r.Get(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: floor plan %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return detailOf(fp), nil
}

func (s *floorPlanService) Delete(ctx context.Context, id string) error {
	err := s.r.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: floor plan %s", ErrNotFound, id)
	}
	if err != nil {
		return err
	}
	// links go with the row via the FK cascade, files go here
	if err := s.store.RemoveAll(planDir(id)); err != nil {
		s.log.Warn("remove plan assets failed", zap.String("floor_plan_id", id), zap.Error(err))
	}

	publishEvent(ctx, s.pub, s.log, s.cfg.RabbitMQ.Exchange, FloorPlanEvent{
		Type:        EventDeleted,
		FloorPlanID: id,
	})
	return nil
}

func (s *floorPlanService) Link(ctx context.Context, projectID, floorPlanID string) error {
	if projectID == "" || floorPlanID == "" {
		return fmt.Errorf("%w: project_id and floor_plan_id are required", ErrInvalidParameter)
	}
	if _, err := s.r.Get(ctx, floorPlanID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: floor plan %s", ErrNotFound, floorPlanID)
		}
		return err
	}
	return s.r.Link(ctx, &model.ProjectDxfLink{ProjectID: projectID, FloorPlanID: floorPlanID})
}

func (s *floorPlanService) ListForProject(ctx context.Context, projectID string) ([]FloorPlanDetail, error) {
	plans, err := s.r.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]FloorPlanDetail, 0, len(plans))
	for i := range plans {
		out = append(out, *detailOf(&plans[i]))
	}
	return out, nil
}

// KeywordTreeNode is one saved floor-plan image in the flat tree.
type KeywordTreeNode struct {
	ID          string `json:"id"`
	DatasetHash string `json:"dataset_hash"`
	Category    string `json:"category"`
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	Path        string `json:"path"`
}

// KeywordTree is a single-level tree of every saved floor-plan image,
// shaped for hierarchical frontend display.
type KeywordTree struct {
	Name     string            `json:"name"`
	Children []KeywordTreeNode `json:"children"`
}

// KeywordTree flattens every saved plan's view index into one root node
// whose children carry keyword, filename and path per image. Node ids are
// fresh per call; DatasetHash identifies the owning plan.
func (s *floorPlanService) KeywordTree(ctx context.Context) (*KeywordTree, error) {
	plans, err := s.r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	tree := &KeywordTree{Name: "root", Children: []KeywordTreeNode{}}
	for i := range plans {
		planID := plans[i].ID
		views := plans[i].Metadata.Data()
		for _, kw := range sortedViewKeys(views) {
			for _, rel := range views[kw] {
				filename := path.Base(rel)
				core := strings.TrimSuffix(filename, "-"+planID+".png")
				tree.Children = append(tree.Children, KeywordTreeNode{
					ID:          uuid.NewString(),
					DatasetHash: planID,
					Category:    kw,
					DisplayName: kw + "/" + core,
					Filename:    filename,
					Path:        rel,
				})
			}
		}
	}
	return tree, nil
}

func sortedViewKeys(views model.ViewIndex) []string {
	keys := make([]string, 0, len(views))
	for kw := range views {
		keys = append(keys, kw)
	}
	sort.Strings(keys)
	return keys
}

func (s *floorPlanService) writeSidecar(id string, viewIndex model.ViewIndex) error {
	raw, err := sonic.Marshal(viewIndex)
	if err != nil {
		return fmt.Errorf("encode plan metadata: %w", err)
	}
	rel := path.Join(planDir(id), "metadata-"+id+".json")
	if err := s.store.WriteFile(rel, raw); err != nil {
		return fmt.Errorf("write plan metadata: %w", err)
	}
	return nil
}

// resolveSelection maps the client's selected paths back onto the preview's
// refs. A path outside the session fails the whole commit; keyword order
// follows selection order.
func resolveSelection(preview *session.Preview, selectedPaths []string) (map[string][]session.ImageRef, []string, error) {
	byPath := map[string]session.ImageRef{}
	kwOf := map[string]string{}
	for kw, refs := range preview.Images {
		for _, ref := range refs {
			byPath[ref.Path] = ref
			kwOf[ref.Path] = kw
		}
	}

	selected := map[string][]session.ImageRef{}
	var kwOrder []string
	picked := map[string]bool{}
	for _, p := range selectedPaths {
		ref, ok := byPath[p]
		if !ok {
			return nil, nil, fmt.Errorf("%w: image %s is not part of preview %s", ErrNotFound, p, preview.ID)
		}
		if picked[p] {
			continue
		}
		picked[p] = true

		kw := kwOf[p]
		if len(selected[kw]) == 0 {
			kwOrder = append(kwOrder, kw)
		}
		selected[kw] = append(selected[kw], ref)
	}
	return selected, kwOrder, nil
}

// densify renumbers layer-cluster sources to their dense position within the
// committed selection, so skipped clusters leave no index gaps. Block sources
// pass through.
func densify(source string, counters map[string]int) string {
	i := strings.LastIndex(source, ".layer-")
	if i < 0 {
		return source
	}
	base := source[:i]
	n := counters[base]
	counters[base] = n + 1
	return fmt.Sprintf("%s.layer-%d", base, n)
}

// primaryKeyword is the keyword with the most selected views; ties go to the
// lexicographically smallest.
func primaryKeyword(viewIndex model.ViewIndex) string {
	best, bestN := "", -1
	kws := make([]string, 0, len(viewIndex))
	for kw := range viewIndex {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	for _, kw := range kws {
		if n := len(viewIndex[kw]); n > bestN {
			best, bestN = kw, n
		}
	}
	return best
}

func detailOf(fp *model.FloorPlan) *FloorPlanDetail {
	viewIndex := fp.Metadata.Data()
	kws := make([]string, 0, len(viewIndex))
	for kw := range viewIndex {
		kws = append(kws, kw)
	}
	sort.Strings(kws)
	var paths []string
	for _, kw := range kws {
		paths = append(paths, viewIndex[kw]...)
	}
	return &FloorPlanDetail{
		ID:        fp.ID,
		Keyword:   fp.Keyword,
		Metadata:  viewIndex,
		Paths:     paths,
		CreatedAt: fp.CreatedAt,
	}
}

func planDir(id string) string { return "floor_pngs_" + id }

func newPlanID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

func strPtr(s string) *string { return &s }

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
