package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/draftroom-io/floorplan/internal/modules/model"
	"github.com/draftroom-io/floorplan/internal/modules/service"
)

// MockFloorPlanService is a mock implementation of service.FloorPlanService
type MockFloorPlanService struct {
	mock.Mock
}

func (m *MockFloorPlanService) Commit(ctx context.Context, in service.CommitInput) (*model.FloorPlan, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FloorPlan), args.Error(1)
}

func (m *MockFloorPlanService) SaveRendered(ctx context.Context, in service.SaveRenderedInput) (*model.FloorPlan, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.FloorPlan), args.Error(1)
}

func (m *MockFloorPlanService) Get(ctx context.Context, id string) (*service.FloorPlanDetail, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.FloorPlanDetail), args.Error(1)
}

func (m *MockFloorPlanService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockFloorPlanService) Link(ctx context.Context, projectID, floorPlanID string) error {
	args := m.Called(ctx, projectID, floorPlanID)
	return args.Error(0)
}

func (m *MockFloorPlanService) ListForProject(ctx context.Context, projectID string) ([]service.FloorPlanDetail, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.FloorPlanDetail), args.Error(1)
}

func (m *MockFloorPlanService) KeywordTree(ctx context.Context) (*service.KeywordTree, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.KeywordTree), args.Error(1)
}

func floorPlanRouter(svc service.FloorPlanService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewFloorPlanHandler(svc)
	r := gin.New()
	r.POST("/floor-plans", h.Commit)
	r.POST("/floor-plans/link", h.Link)
	r.GET("/floor-plans/:plan_id", h.Get)
	r.DELETE("/floor-plans/:plan_id", h.Delete)
	r.GET("/projects/:project_id/floor-plans", h.ListForProject)
	r.GET("/keywords/tree", h.KeywordTree)
	return r
}

func doJSON(r *gin.Engine, method, url string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestFloorPlanHandler_Commit(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Commit", mock.Anything, mock.MatchedBy(func(in service.CommitInput) bool {
		// /assets/ prefixes are stripped before the service sees them
		return in.PreviewID == "p1" && len(in.SelectedPaths) == 2 &&
			in.SelectedPaths[0] == "previews/p1/DOOR/a.png" &&
			in.SelectedPaths[1] == "previews/p1/DOOR/b.png"
	})).Return(&model.FloorPlan{ID: "fp1"}, nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodPost, "/floor-plans", gin.H{
		"preview_id": "p1",
		"selected_paths": []string{
			"/assets/previews/p1/DOOR/a.png",
			"previews/p1/DOOR/b.png",
		},
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"floor_plan_id":"fp1"`)
	svc.AssertExpectations(t)
}

func TestFloorPlanHandler_CommitConsumed(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Commit", mock.Anything, mock.Anything).Return(nil, service.ErrAlreadyConsumed).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodPost, "/floor-plans", gin.H{
		"preview_id":     "p1",
		"selected_paths": []string{"previews/p1/DOOR/a.png"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestFloorPlanHandler_CommitMissingFields(t *testing.T) {
	svc := &MockFloorPlanService{}
	w := doJSON(floorPlanRouter(svc), http.MethodPost, "/floor-plans", gin.H{"preview_id": "p1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything)
}

func TestFloorPlanHandler_Get(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Get", mock.Anything, "fp1").Return(&service.FloorPlanDetail{
		ID:        "fp1",
		Keyword:   ptr("DOOR"),
		Paths:     []string{"floor_pngs_fp1/DOOR/DOOR-A.block-fp1.png"},
		CreatedAt: time.Now(),
	}, nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodGet, "/floor-plans/fp1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"fp1"`)
}

func TestFloorPlanHandler_GetNotFound(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Get", mock.Anything, "ghost").Return(nil, service.ErrNotFound).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodGet, "/floor-plans/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFloorPlanHandler_Delete(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Delete", mock.Anything, "fp1").Return(nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodDelete, "/floor-plans/fp1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestFloorPlanHandler_Link(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Link", mock.Anything, "proj-1", "fp1").Return(nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodPost, "/floor-plans/link", gin.H{
		"project_id":    "proj-1",
		"floor_plan_id": "fp1",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestFloorPlanHandler_LinkMissingPlan(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("Link", mock.Anything, "proj-1", "ghost").Return(service.ErrNotFound).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodPost, "/floor-plans/link", gin.H{
		"project_id":    "proj-1",
		"floor_plan_id": "ghost",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestFloorPlanHandler_ListForProject(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("ListForProject", mock.Anything, "proj-1").Return([]service.FloorPlanDetail{
		{ID: "fp1"}, {ID: "fp2"},
	}, nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodGet, "/projects/proj-1/floor-plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"fp1"`)
	assert.Contains(t, w.Body.String(), `"id":"fp2"`)
}

func TestFloorPlanHandler_KeywordTree(t *testing.T) {
	svc := &MockFloorPlanService{}
	svc.On("KeywordTree", mock.Anything).Return(&service.KeywordTree{
		Name: "root",
		Children: []service.KeywordTreeNode{{
			ID:          "img-1",
			DatasetHash: "fp1",
			Category:    "DOOR",
			DisplayName: "DOOR/DOOR-A.block",
			Filename:    "DOOR-A.block-fp1.png",
			Path:        "floor_pngs_fp1/DOOR/DOOR-A.block-fp1.png",
		}},
	}, nil).Once()

	w := doJSON(floorPlanRouter(svc), http.MethodGet, "/keywords/tree", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"root"`)
	assert.Contains(t, w.Body.String(), `"children"`)
	assert.Contains(t, w.Body.String(), "DOOR-A.block-fp1.png")
}

func ptr(s string) *string { return &s }
