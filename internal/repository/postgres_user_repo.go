package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/taskboard/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, sub, name, email, created_at, last_login_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Sub, &user.Name, &user.Email, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	return user, nil
}

// FindBySub はOIDCのsubject識別子でユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindBySub(ctx context.Context, sub string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, sub, name, email, created_at, last_login_at FROM users WHERE sub = $1`,
		sub,
	).Scan(&user.ID, &user.Sub, &user.Name, &user.Email, &user.CreatedAt, &user.LastLoginAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("subによるユーザーの検索に失敗しました: %w", err)
	}

	return user, nil
}

// Create はユーザーを作成する。
// subの一意制約違反はErrDuplicateSubに変換して返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, sub, name, email, created_at, last_login_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Sub, user.Name, user.Email, user.CreatedAt, user.LastLoginAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return ErrDuplicateSub
		}
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はユーザーのname、email、last_login_atを更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, last_login_at = $4 WHERE id = $1`,
		user.ID, user.Name, user.Email, user.LastLoginAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return nil
}

// List はユーザー一覧を返す。
// qが非空の場合、nameまたはemailの部分一致（大文字小文字を区別しない）で絞り込む。
func (r *PostgresUserRepo) List(ctx context.Context, q string, skip, take int) ([]*model.User, error) {
	query := `SELECT id, sub, name, email, created_at, last_login_at FROM users`
	args := []interface{}{}
	argIndex := 1

	if q != "" {
		query += fmt.Sprintf(" WHERE name ILIKE $%d OR email ILIKE $%d", argIndex, argIndex)
		args = append(args, "%"+q+"%")
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY name ASC, id ASC OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, skip, take)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.ID, &user.Sub, &user.Name, &user.Email, &user.CreatedAt, &user.LastLoginAt); err != nil {
			return nil, fmt.Errorf("ユーザー行の読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}

	return users, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
