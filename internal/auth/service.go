package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskboard/internal/model"
	"github.com/hitoshi/taskboard/internal/repository"
)

// Service は検証済みトークンのクレームからユーザーをJITプロビジョニングする。
type Service struct {
	users  repository.UserRepository
	logger *slog.Logger
}

// NewService はServiceを生成する。
func NewService(users repository.UserRepository, logger *slog.Logger) *Service {
	return &Service{
		users:  users,
		logger: logger,
	}
}

// EnsureUser はsubに対応するユーザーを返す。存在しなければ作成する。
// 既存ユーザーの場合は最終ログイン時刻を更新し、トークンのname/emailが
// 非空なら保存値を上書きする（空のクレームで既存値を消さない）。
//
// 同一subjectの初回同時リクエストではCreateが一意制約違反で競合することが
// あるため、その場合は勝った方の行を再検索して返す。
func (s *Service) EnsureUser(ctx context.Context, claims *Claims) (*model.User, error) {
	user, err := s.users.FindBySub(ctx, claims.Sub)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの検索に失敗しました: %w", err)
	}

	if user == nil {
		created, err := s.createUser(ctx, claims)
		if err != nil {
			return nil, err
		}
		if created != nil {
			return created, nil
		}
		// 作成競合に負けた場合。既存行を取り直して更新パスへ進む。
		user, err = s.users.FindBySub(ctx, claims.Sub)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの再検索に失敗しました: %w", err)
		}
		if user == nil {
			return nil, fmt.Errorf("作成競合後にユーザーが見つかりません: sub=%s", claims.Sub)
		}
	}

	return s.touchUser(ctx, user, claims)
}

// createUser はクレームから新規ユーザーを作成する。
// 一意制約違反（作成競合）の場合はエラーにせずnilを返す。
func (s *Service) createUser(ctx context.Context, claims *Claims) (*model.User, error) {
	now := time.Now()
	user := &model.User{
		ID:          uuid.NewString(),
		Sub:         claims.Sub,
		Name:        claims.Name,
		Email:       claims.Email,
		CreatedAt:   now,
		LastLoginAt: now,
	}

	err := s.users.Create(ctx, user)
	if errors.Is(err, repository.ErrDuplicateSub) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーをプロビジョニングしました", "user_id", user.ID)
	return user, nil
}

// touchUser は既存ユーザーの最終ログイン時刻を更新する。
// トークンのname/emailが非空の場合のみ保存値を上書きする。
func (s *Service) touchUser(ctx context.Context, user *model.User, claims *Claims) (*model.User, error) {
	if claims.Name != "" {
		user.Name = claims.Name
	}
	if claims.Email != "" {
		user.Email = claims.Email
	}
	user.LastLoginAt = time.Now()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	return user, nil
}
