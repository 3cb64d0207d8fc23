// Package task はタスクのCRUDと一覧クエリのビジネスロジックを提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// MutationRecorder はタスク変更操作のメトリクス記録に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type MutationRecorder interface {
	RecordTaskMutation(operation string)
}

// Limits は一覧クエリのページネーション制限。
type Limits struct {
	DefaultPageSize int // takeが未指定の場合のデフォルト件数
	MaxPageSize     int // takeの上限。超過分は切り詰める
}

// Service はタスクのCRUDと一覧クエリを提供する。
// すべての操作は認証済みユーザーを起点とし、所有するタスクのみを対象とする。
type Service struct {
	tasks   repository.TaskRepository
	limits  Limits
	metrics MutationRecorder
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(tasks repository.TaskRepository, limits Limits, metrics MutationRecorder, logger *slog.Logger) *Service {
	return &Service{
		tasks:   tasks,
		limits:  limits,
		metrics: metrics,
		logger:  logger,
	}
}

// ListInput は一覧クエリの入力。ハンドラーが解析したクエリパラメータを保持する。
type ListInput struct {
	Status     *model.TaskStatus
	AssignedTo string
	CreatedBy  string
	Title      string
	Query      string
	DueFrom    *time.Time
	DueTo      *time.Time
	DueDate    *time.Time // 指定日の丸一日ウィンドウ。DueFrom/DueToより優先される
	SortBy     string
	Desc       bool
	Skip       int
	Take       int
}

// List は認証済みユーザーが所有するタスクの一覧を返す。
// 入力を正規化してからリポジトリに委譲する:
//   - dueDateが指定された場合は[その日の0時, 翌日の0時)のウィンドウに展開し、
//     dueFrom/dueToの個別指定を上書きする
//   - takeは未指定（0以下）ならデフォルト値、上限超過なら上限に切り詰める
//   - skipの負値は0に丸める
//   - sortByは小文字化して解決する。未知のキーはcreated_at昇順
func (s *Service) List(ctx context.Context, user *model.User, input ListInput) ([]*model.Task, error) {
	criteria := s.buildCriteria(input)

	tasks, err := s.tasks.ListByOwner(ctx, user.ID, criteria)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}

	return tasks, nil
}

// buildCriteria はListInputを正規化してリポジトリの検索条件に変換する。
func (s *Service) buildCriteria(input ListInput) repository.TaskListCriteria {
	criteria := repository.TaskListCriteria{
		Status:     input.Status,
		AssignedTo: input.AssignedTo,
		CreatedBy:  input.CreatedBy,
		Title:      input.Title,
		Query:      input.Query,
		DueFrom:    input.DueFrom,
		DueTo:      input.DueTo,
		SortBy:     strings.ToLower(strings.TrimSpace(input.SortBy)),
		Desc:       input.Desc,
		Skip:       input.Skip,
		Take:       input.Take,
	}

	// dueDateは丸一日のウィンドウに展開し、個別の範囲指定より優先する
	if input.DueDate != nil {
		d := *input.DueDate
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		end := start.AddDate(0, 0, 1)
		criteria.DueFrom = &start
		criteria.DueTo = &end
	}

	if criteria.Skip < 0 {
		criteria.Skip = 0
	}
	if criteria.Take <= 0 {
		criteria.Take = s.limits.DefaultPageSize
	}
	if criteria.Take > s.limits.MaxPageSize {
		criteria.Take = s.limits.MaxPageSize
	}

	return criteria
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description string
	DueDate     *time.Time
	Status      model.TaskStatus // 空の場合はpending
	AssignedTo  string
}

// Create は認証済みユーザーのタスクを作成する。
// タイトルは必須（空白のみは不可）かつ最大長以内であること。
// createdByにはユーザーのemail、name、IDの順で最初の非空値を刻印する。
func (s *Service) Create(ctx context.Context, user *model.User, input CreateInput) (*model.Task, error) {
	if err := validateTitle(input.Title); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = model.TaskStatusPending
	}

	now := time.Now()
	task := &model.Task{
		ID:          uuid.NewString(),
		UserID:      user.ID,
		Title:       input.Title,
		Description: input.Description,
		DueDate:     input.DueDate,
		Status:      status,
		CreatedBy:   creatorLabel(user),
		AssignedTo:  input.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}

	s.metrics.RecordTaskMutation("create")
	s.logger.Info("タスクを作成しました",
		slog.String("task_id", task.ID),
		slog.String("user_id", user.ID),
	)

	return task, nil
}

// Get は指定IDのタスクを返す。
// 存在しない場合はTASK_NOT_FOUND、他ユーザーの所有物の場合はFORBIDDENを返す。
// 存在チェックを所有チェックより先に行う。
func (s *Service) Get(ctx context.Context, user *model.User, id string) (*model.Task, error) {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(id)
	}
	if task.UserID != user.ID {
		return nil, model.NewForbiddenError()
	}

	return task, nil
}

// UpdateInput はタスク更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *time.Time
	Status      *model.TaskStatus
	AssignedTo  *string
}

// Update は指定IDのタスクを部分更新する。
// 所有者（user_id）は変更できない。更新時にupdated_atを現在時刻に設定する。
// 存在しない場合はTASK_NOT_FOUND、他ユーザーの所有物の場合はFORBIDDENを返す。
func (s *Service) Update(ctx context.Context, user *model.User, id string, input UpdateInput) (*model.Task, error) {
	task, err := s.Get(ctx, user, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		if err := validateTitle(*input.Title); err != nil {
			return nil, err
		}
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.DueDate != nil {
		task.DueDate = input.DueDate
	}
	if input.Status != nil {
		task.Status = *input.Status
	}
	if input.AssignedTo != nil {
		task.AssignedTo = *input.AssignedTo
	}
	task.UpdatedAt = time.Now()

	if err := s.tasks.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}

	s.metrics.RecordTaskMutation("update")

	return task, nil
}

// Delete は指定IDのタスクを削除する。
// 存在しない場合もエラーにしない（冪等）。他ユーザーの所有物の場合はFORBIDDENを返す。
func (s *Service) Delete(ctx context.Context, user *model.User, id string) error {
	task, err := s.tasks.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}
	if task == nil {
		// 既に存在しない場合は削除済みとして成功を返す
		return nil
	}
	if task.UserID != user.ID {
		return model.NewForbiddenError()
	}

	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}

	s.metrics.RecordTaskMutation("delete")
	s.logger.Info("タスクを削除しました",
		slog.String("task_id", id),
		slog.String("user_id", user.ID),
	)

	return nil
}

// validateTitle はタイトルの必須・最大長チェックを行う。
func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return model.NewTitleRequiredError()
	}
	if len([]rune(title)) > model.MaxTitleLength {
		return model.NewTitleTooLongError()
	}
	return nil
}

// creatorLabel はcreatedByに刻印する表示名を返す。
// email、name、IDの順で最初の非空値を採用する。
func creatorLabel(user *model.User) string {
	if user.Email != "" {
		return user.Email
	}
	if user.Name != "" {
		return user.Name
	}
	return user.ID
}
