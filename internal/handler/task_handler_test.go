package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/task"
)

// mockTaskService はTaskServiceInterfaceのモック実装。
type mockTaskService struct {
	listFn   func(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error)
	createFn func(ctx context.Context, user *model.User, input task.CreateInput) (*model.Task, error)
	getFn    func(ctx context.Context, user *model.User, id string) (*model.Task, error)
	updateFn func(ctx context.Context, user *model.User, id string, input task.UpdateInput) (*model.Task, error)
	deleteFn func(ctx context.Context, user *model.User, id string) error
}

func (m *mockTaskService) List(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error) {
	if m.listFn != nil {
		return m.listFn(ctx, user, input)
	}
	return nil, nil
}

func (m *mockTaskService) Create(ctx context.Context, user *model.User, input task.CreateInput) (*model.Task, error) {
	if m.createFn != nil {
		return m.createFn(ctx, user, input)
	}
	return nil, nil
}

func (m *mockTaskService) Get(ctx context.Context, user *model.User, id string) (*model.Task, error) {
	if m.getFn != nil {
		return m.getFn(ctx, user, id)
	}
	return nil, nil
}

func (m *mockTaskService) Update(ctx context.Context, user *model.User, id string, input task.UpdateInput) (*model.Task, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, user, id, input)
	}
	return nil, nil
}

func (m *mockTaskService) Delete(ctx context.Context, user *model.User, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, user, id)
	}
	return nil
}

var _ TaskServiceInterface = (*mockTaskService)(nil)

// withUser は認証済みユーザーをリクエストコンテキストに注入する。
func withUser(req *http.Request) *http.Request {
	user := &model.User{ID: "user-1", Sub: "sub-1", Name: "山田太郎", Email: "taro@example.com"}
	return req.WithContext(middleware.ContextWithUser(req.Context(), user))
}

// withURLParam はchiのパスパラメータをリクエストコンテキストに注入する。
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) apiErrorResponse {
	t.Helper()
	var body apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- ListTasks ---

func TestListTasks_EmptyResultReturnsEmptyArray(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	rec := httptest.NewRecorder()
	h.ListTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	// nullではなく[]であること
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestListTasks_ParsesQueryParameters(t *testing.T) {
	var got task.ListInput
	service := &mockTaskService{
		listFn: func(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error) {
			got = input
			return nil, nil
		},
	}
	h := NewTaskHandler(service)

	url := "/api/tasks?status=inprogress&assignedTo=hanako&createdBy=taro&title=design&q=review" +
		"&dueDate=2026-03-15&sortBy=dueDate&desc=true&skip=10&take=25"
	req := withUser(httptest.NewRequest(http.MethodGet, url, nil))
	rec := httptest.NewRecorder()
	h.ListTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if got.Status == nil || *got.Status != model.TaskStatusInProgress {
		t.Errorf("Status = %v, want inProgress", got.Status)
	}
	if got.AssignedTo != "hanako" || got.CreatedBy != "taro" {
		t.Errorf("AssignedTo/CreatedBy = %q/%q", got.AssignedTo, got.CreatedBy)
	}
	if got.Title != "design" || got.Query != "review" {
		t.Errorf("Title/Query = %q/%q", got.Title, got.Query)
	}
	if got.DueDate == nil || !got.DueDate.Equal(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DueDate = %v", got.DueDate)
	}
	if got.SortBy != "dueDate" || !got.Desc {
		t.Errorf("SortBy/Desc = %q/%v", got.SortBy, got.Desc)
	}
	if got.Skip != 10 || got.Take != 25 {
		t.Errorf("Skip/Take = %d/%d", got.Skip, got.Take)
	}
}

// TestListTasks_UnknownStatusIsIgnored は未知のstatus値がエラーにならず
// ステータスフィルタ無指定として扱われることを検証する。
func TestListTasks_UnknownStatusIsIgnored(t *testing.T) {
	var got task.ListInput
	called := false
	h := NewTaskHandler(&mockTaskService{
		listFn: func(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error) {
			called = true
			got = input
			return nil, nil
		},
	})

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/tasks?status=bogus", nil))
	rec := httptest.NewRecorder()
	h.ListTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !called {
		t.Fatal("service was not called")
	}
	if got.Status != nil {
		t.Errorf("Status = %v, want nil", *got.Status)
	}
}

// TestListTasks_UnparseableDateIsIgnored は解析できない日付パラメータが
// エラーにならず無指定として扱われることを検証する。
func TestListTasks_UnparseableDateIsIgnored(t *testing.T) {
	var got task.ListInput
	h := NewTaskHandler(&mockTaskService{
		listFn: func(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error) {
			got = input
			return nil, nil
		},
	})

	req := withUser(httptest.NewRequest(http.MethodGet, "/api/tasks?dueDate=not-a-date", nil))
	rec := httptest.NewRecorder()
	h.ListTasks(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", got.DueDate)
	}
}

func TestListTasks_Unauthenticated(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	rec := httptest.NewRecorder()
	h.ListTasks(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

// --- CreateTask ---

func TestCreateTask_Success(t *testing.T) {
	service := &mockTaskService{
		createFn: func(ctx context.Context, user *model.User, input task.CreateInput) (*model.Task, error) {
			return &model.Task{
				ID:        uuid.NewString(),
				UserID:    user.ID,
				Title:     input.Title,
				Status:    model.TaskStatusPending,
				CreatedBy: user.Email,
			}, nil
		},
	}
	h := NewTaskHandler(service)

	body := `{"title":"レビュー対応","description":"指摘事項の修正","status":"pending"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["title"] != "レビュー対応" {
		t.Errorf("title = %v", resp["title"])
	}
	if resp["createdBy"] != "taro@example.com" {
		t.Errorf("createdBy = %v", resp["createdBy"])
	}
	// レスポンスはcamelCaseフィールド名であること
	if _, ok := resp["dueDate"]; !ok {
		t.Error("expected dueDate field in response")
	}
}

func TestCreateTask_InvalidJSON(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader("{not json")))
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeInvalidRequest {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidRequest)
	}
}

func TestCreateTask_InvalidStatus(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{})

	body := `{"title":"t","status":"bogus"}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(body)))
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateTask_TitleRequiredMapsTo400(t *testing.T) {
	service := &mockTaskService{
		createFn: func(ctx context.Context, user *model.User, input task.CreateInput) (*model.Task, error) {
			return nil, model.NewTitleRequiredError()
		},
	}
	h := NewTaskHandler(service)

	req := withUser(httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"title":""}`)))
	rec := httptest.NewRecorder()
	h.CreateTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeTitleRequired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTitleRequired)
	}
}

// --- GetTask ---

func TestGetTask_Success(t *testing.T) {
	taskID := uuid.NewString()
	service := &mockTaskService{
		getFn: func(ctx context.Context, user *model.User, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: user.ID, Title: "t", Status: model.TaskStatusDone}, nil
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil)), "id", taskID)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["id"] != taskID {
		t.Errorf("id = %v, want %s", resp["id"], taskID)
	}
	if resp["status"] != "done" {
		t.Errorf("status = %v, want done", resp["status"])
	}
}

func TestGetTask_InvalidUUIDReturns400(t *testing.T) {
	h := NewTaskHandler(&mockTaskService{
		getFn: func(ctx context.Context, user *model.User, id string) (*model.Task, error) {
			t.Error("service should not be called")
			return nil, nil
		},
	})

	req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/api/tasks/not-a-uuid", nil)), "id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if body := decodeAPIError(t, rec); body.Code != model.ErrCodeInvalidTaskID {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInvalidTaskID)
	}
}

func TestGetTask_NotFoundReturns404(t *testing.T) {
	taskID := uuid.NewString()
	service := &mockTaskService{
		getFn: func(ctx context.Context, user *model.User, id string) (*model.Task, error) {
			return nil, model.NewTaskNotFoundError(id)
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil)), "id", taskID)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetTask_ForbiddenReturns403(t *testing.T) {
	taskID := uuid.NewString()
	service := &mockTaskService{
		getFn: func(ctx context.Context, user *model.User, id string) (*model.Task, error) {
			return nil, model.NewForbiddenError()
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(withUser(httptest.NewRequest(http.MethodGet, "/api/tasks/"+taskID, nil)), "id", taskID)
	rec := httptest.NewRecorder()
	h.GetTask(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

// --- UpdateTask ---

// TestUpdateTask_PartialBody はボディに含まれないフィールドがnilとして
// サービスに渡されることを検証する。
func TestUpdateTask_PartialBody(t *testing.T) {
	taskID := uuid.NewString()
	var got task.UpdateInput
	service := &mockTaskService{
		updateFn: func(ctx context.Context, user *model.User, id string, input task.UpdateInput) (*model.Task, error) {
			got = input
			return &model.Task{ID: id, UserID: user.ID, Title: *input.Title}, nil
		},
	}
	h := NewTaskHandler(service)

	body := `{"title":"新タイトル","status":"done"}`
	req := withURLParam(withUser(httptest.NewRequest(http.MethodPut, "/api/tasks/"+taskID, strings.NewReader(body))), "id", taskID)
	rec := httptest.NewRecorder()
	h.UpdateTask(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	if got.Title == nil || *got.Title != "新タイトル" {
		t.Errorf("Title = %v, want 新タイトル", got.Title)
	}
	if got.Status == nil || *got.Status != model.TaskStatusDone {
		t.Errorf("Status = %v, want done", got.Status)
	}
	if got.Description != nil || got.DueDate != nil || got.AssignedTo != nil {
		t.Error("unspecified fields should be nil")
	}
}

func TestUpdateTask_InvalidStatus(t *testing.T) {
	taskID := uuid.NewString()
	h := NewTaskHandler(&mockTaskService{})

	body := `{"status":"bogus"}`
	req := withURLParam(withUser(httptest.NewRequest(http.MethodPut, "/api/tasks/"+taskID, strings.NewReader(body))), "id", taskID)
	rec := httptest.NewRecorder()
	h.UpdateTask(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

// --- DeleteTask ---

func TestDeleteTask_Returns204(t *testing.T) {
	taskID := uuid.NewString()
	deleteCalled := false
	service := &mockTaskService{
		deleteFn: func(ctx context.Context, user *model.User, id string) error {
			deleteCalled = true
			return nil
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(withUser(httptest.NewRequest(http.MethodDelete, "/api/tasks/"+taskID, nil)), "id", taskID)
	rec := httptest.NewRecorder()
	h.DeleteTask(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !deleteCalled {
		t.Error("expected Delete to be called")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", rec.Body.String())
	}
}

func TestDeleteTask_ForbiddenReturns403(t *testing.T) {
	taskID := uuid.NewString()
	service := &mockTaskService{
		deleteFn: func(ctx context.Context, user *model.User, id string) error {
			return model.NewForbiddenError()
		},
	}
	h := NewTaskHandler(service)

	req := withURLParam(withUser(httptest.NewRequest(http.MethodDelete, "/api/tasks/"+taskID, nil)), "id", taskID)
	rec := httptest.NewRecorder()
	h.DeleteTask(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
