// Package user はユーザー一覧のビジネスロジックを提供する。
package user

import (
	"context"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// Limits は一覧クエリのページネーション制限。
type Limits struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Service はユーザー一覧を提供する。
// タスクのassignedTo候補を選ぶためのディレクトリとして使用される。
type Service struct {
	users  repository.UserRepository
	limits Limits
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, limits Limits) *Service {
	return &Service{
		users:  users,
		limits: limits,
	}
}

// List はユーザー一覧を返す。
// qが非空の場合、nameまたはemailの部分一致で絞り込む。
// takeは未指定ならデフォルト値、上限超過なら上限に切り詰める。
func (s *Service) List(ctx context.Context, q string, skip, take int) ([]*model.User, error) {
	if skip < 0 {
		skip = 0
	}
	if take <= 0 {
		take = s.limits.DefaultPageSize
	}
	if take > s.limits.MaxPageSize {
		take = s.limits.MaxPageSize
	}

	users, err := s.users.List(ctx, q, skip, take)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}

	return users, nil
}
