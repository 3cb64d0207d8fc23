package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hitoshi/taskboard/internal/middleware"
	"github.com/hitoshi/taskboard/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// List はユーザー一覧を返す。qはname/emailの部分一致フィルタ。
	List(ctx context.Context, q string, skip, take int) ([]*model.User, error)
}

// UserHandler はユーザー一覧のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// userResponse はユーザー一覧のレスポンス。
// 割り当て候補の選択に必要な属性のみを公開する。sub等の内部属性は含めない。
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// ListUsers はユーザー一覧を取得する。
// GET /api/users?q=&skip=&take=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.UserFromContext(r.Context()); err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	query := r.URL.Query()

	skip := 0
	if v, err := strconv.Atoi(query.Get("skip")); err == nil {
		skip = v
	}
	take := 0
	if v, err := strconv.Atoi(query.Get("take")); err == nil {
		take = v
	}

	users, err := h.service.List(r.Context(), query.Get("q"), skip, take)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// 空の場合もnullではなく[]を返す
	responses := make([]userResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, userResponse{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(responses)
}
