package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskboard/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	task := &model.Task{}
	var dueDate sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, description, due_date, status,
		        created_by, assigned_to, created_at, updated_at
		 FROM tasks WHERE id = $1`,
		id,
	).Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description, &dueDate,
		&task.Status, &task.CreatedBy, &task.AssignedTo,
		&task.CreatedAt, &task.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("タスクの取得に失敗しました: %w", err)
	}

	if dueDate.Valid {
		task.DueDate = &dueDate.Time
	}

	return task, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, due_date, status,
		                    created_by, assigned_to, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		task.ID, task.UserID, task.Title, task.Description, task.DueDate,
		string(task.Status), task.CreatedBy, task.AssignedTo,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はタスクを上書き更新する。user_idは変更しない。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET
		    title = $2, description = $3, due_date = $4, status = $5,
		    assigned_to = $6, updated_at = $7
		 WHERE id = $1`,
		task.ID, task.Title, task.Description, task.DueDate,
		string(task.Status), task.AssignedTo, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("タスクの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定IDのタスクを削除する。存在しない場合もエラーにしない（冪等）。
func (r *PostgresTaskRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("タスクの削除に失敗しました: %w", err)
	}
	return nil
}

// ListByOwner は指定ユーザーが所有するタスクの一覧を検索条件付きで返す。
// すべてのフィルタを単一のWHERE句に合成し、1回のクエリで実行する。
func (r *PostgresTaskRepo) ListByOwner(ctx context.Context, userID string, c TaskListCriteria) ([]*model.Task, error) {
	query, args := buildListQuery(userID, c)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("タスク一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		var dueDate sql.NullTime

		if err := rows.Scan(
			&task.ID, &task.UserID, &task.Title, &task.Description, &dueDate,
			&task.Status, &task.CreatedBy, &task.AssignedTo,
			&task.CreatedAt, &task.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("タスク行の読み取りに失敗しました: %w", err)
		}

		if dueDate.Valid {
			task.DueDate = &dueDate.Time
		}

		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("タスク一覧の走査に失敗しました: %w", err)
	}

	return tasks, nil
}

// buildListQuery は検索条件からSQL文とバインド引数を構築する。
func buildListQuery(userID string, c TaskListCriteria) (string, []interface{}) {
	query := `
		SELECT id, user_id, title, description, due_date, status,
		       created_by, assigned_to, created_at, updated_at
		FROM tasks
		WHERE user_id = $1`

	args := []interface{}{userID}
	argIndex := 2

	if c.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argIndex)
		args = append(args, string(*c.Status))
		argIndex++
	}

	if c.AssignedTo != "" {
		query += fmt.Sprintf(" AND assigned_to = $%d", argIndex)
		args = append(args, c.AssignedTo)
		argIndex++
	}

	if c.CreatedBy != "" {
		query += fmt.Sprintf(" AND created_by = $%d", argIndex)
		args = append(args, c.CreatedBy)
		argIndex++
	}

	// タイトルは部分一致（大文字小文字を区別しない）
	if c.Title != "" {
		query += fmt.Sprintf(" AND title ILIKE $%d", argIndex)
		args = append(args, "%"+c.Title+"%")
		argIndex++
	}

	// フリーテキスト検索: このフィルタ内のみtitle/descriptionのOR。
	// 他のフィルタとはANDで合成される。
	if c.Query != "" {
		query += fmt.Sprintf(" AND (title ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex)
		args = append(args, "%"+c.Query+"%")
		argIndex++
	}

	// 期限範囲: 下限は含み、上限は含まない半開区間
	if c.DueFrom != nil {
		query += fmt.Sprintf(" AND due_date >= $%d", argIndex)
		args = append(args, *c.DueFrom)
		argIndex++
	}
	if c.DueTo != nil {
		query += fmt.Sprintf(" AND due_date < $%d", argIndex)
		args = append(args, *c.DueTo)
		argIndex++
	}

	// ソートキーはホワイトリストで解決する。SQLへの文字列連結は許可値のみ。
	query += " ORDER BY " + sortColumn(c.SortBy) + " " + sortDirection(c.Desc) + ", id ASC"

	query += fmt.Sprintf(" OFFSET $%d LIMIT $%d", argIndex, argIndex+1)
	args = append(args, c.Skip, c.Take)

	return query, args
}

// sortColumn はソートキーをカラム名に解決する。
// 未知のキーはデフォルト（created_at）に落とす。
func sortColumn(sortBy string) string {
	switch sortBy {
	case "duedate":
		return "due_date"
	case "createdat":
		return "created_at"
	case "title":
		return "title"
	default:
		return "created_at"
	}
}

// sortDirection はソート方向のSQL句を返す。
func sortDirection(desc bool) string {
	if desc {
		return "DESC"
	}
	return "ASC"
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
