package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/task"
)

// TaskServiceInterface はタスクハンドラーが必要とするサービスインターフェース。
type TaskServiceInterface interface {
	// List は認証済みユーザーが所有するタスクの一覧を返す。
	List(ctx context.Context, user *model.User, input task.ListInput) ([]*model.Task, error)
	// Create はタスクを作成する。
	Create(ctx context.Context, user *model.User, input task.CreateInput) (*model.Task, error)
	// Get はタスク詳細を返す。
	Get(ctx context.Context, user *model.User, id string) (*model.Task, error)
	// Update はタスクを部分更新する。
	Update(ctx context.Context, user *model.User, id string, input task.UpdateInput) (*model.Task, error)
	// Delete はタスクを削除する（冪等）。
	Delete(ctx context.Context, user *model.User, id string) error
}

// TaskHandler はタスク管理のHTTPハンドラー。
type TaskHandler struct {
	service TaskServiceInterface
}

// NewTaskHandler はTaskHandlerを生成する。
func NewTaskHandler(service TaskServiceInterface) *TaskHandler {
	return &TaskHandler{
		service: service,
	}
}

// --- リクエスト・レスポンス型 ---

// taskResponse はタスクのレスポンス。SPAが期待するcamelCaseフィールド名を使用する。
type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	CreatedBy   string     `json:"createdBy"`
	AssignedTo  string     `json:"assignedTo"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// createTaskRequest はタスク作成リクエストのボディ。
type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      string     `json:"status"`
	AssignedTo  string     `json:"assignedTo"`
}

// updateTaskRequest はタスク更新リクエストのボディ。nilのフィールドは変更しない。
type updateTaskRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"dueDate"`
	Status      *string    `json:"status"`
	AssignedTo  *string    `json:"assignedTo"`
}

// toTaskResponse はドメインモデルをレスポンス型に変換する。
func toTaskResponse(t *model.Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate,
		Status:      string(t.Status),
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ListTasks はタスク一覧を取得する。
// GET /api/tasks?status=&assignedTo=&createdBy=&title=&q=&dueDate=&dueFrom=&dueTo=&sortBy=&desc=&skip=&take=
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	tasks, err := h.service.List(r.Context(), user, parseListInput(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 空の場合もnullではなく[]を返す
	responses := make([]taskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, toTaskResponse(t))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}

// parseListInput はクエリパラメータを一覧クエリの入力に変換する。
// 解析できないstatus値や日付パラメータは、そのフィルタを無指定として扱う。
func parseListInput(r *http.Request) task.ListInput {
	query := r.URL.Query()

	input := task.ListInput{
		AssignedTo: query.Get("assignedTo"),
		CreatedBy:  query.Get("createdBy"),
		Title:      query.Get("title"),
		Query:      query.Get("q"),
		SortBy:     query.Get("sortBy"),
		Desc:       query.Get("desc") == "true",
	}

	if status, ok := model.ParseTaskStatus(query.Get("status")); ok {
		input.Status = &status
	}

	input.DueDate = parseTimeParam(query.Get("dueDate"))
	input.DueFrom = parseTimeParam(query.Get("dueFrom"))
	input.DueTo = parseTimeParam(query.Get("dueTo"))

	if skip, err := strconv.Atoi(query.Get("skip")); err == nil {
		input.Skip = skip
	}
	if take, err := strconv.Atoi(query.Get("take")); err == nil {
		input.Take = take
	}

	return input
}

// parseTimeParam は日付パラメータを解析する。
// RFC3339形式と日付のみ（YYYY-MM-DD）形式に対応する。解析できない場合はnilを返す。
func parseTimeParam(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	return nil
}

// CreateTask はタスクを作成する。
// POST /api/tasks
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	status := model.TaskStatus("")
	if req.Status != "" {
		parsed, ok := model.ParseTaskStatus(req.Status)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		status = parsed
	}

	created, err := h.service.Create(r.Context(), user, task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		Status:      status,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTaskResponse(created))
}

// GetTask はタスク詳細を取得する。
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, apiErr := taskIDFromRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	found, err := h.service.Get(r.Context(), user, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(found))
}

// UpdateTask はタスクを部分更新する。
// PUT /api/tasks/:id
func (h *TaskHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, apiErr := taskIDFromRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	var req updateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	input := task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	}

	if req.Status != nil {
		parsed, ok := model.ParseTaskStatus(*req.Status)
		if !ok {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
			return
		}
		input.Status = &parsed
	}

	updated, err := h.service.Update(r.Context(), user, id, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toTaskResponse(updated))
}

// DeleteTask はタスクを削除する。
// DELETE /api/tasks/:id
// 存在しないタスクの削除も204を返す（冪等）。
func (h *TaskHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	id, apiErr := taskIDFromRequest(r)
	if apiErr != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
		return
	}

	if err := h.service.Delete(r.Context(), user, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// taskIDFromRequest はパスパラメータのタスクIDを取得し、UUID形式を検証する。
func taskIDFromRequest(r *http.Request) (string, *model.APIError) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", model.NewInvalidTaskIDError(id)
	}
	return id, nil
}

// --- エラーハンドリング ---

// apiErrorResponse はAPIエラーレスポンスのJSON表現。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse はAPIエラーをJSONレスポンスとして書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidToken, model.ErrCodeMissingSubject:
		return http.StatusUnauthorized
	case model.ErrCodeTaskNotFound:
		return http.StatusNotFound
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidTaskID, model.ErrCodeInvalidRequest,
		model.ErrCodeTitleRequired, model.ErrCodeTitleTooLong:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
