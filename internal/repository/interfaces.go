// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/taskboard/internal/model"
)

// ErrDuplicateSub は同一subjectのユーザーを重複作成しようとしたことを示す。
// usersテーブルのsub一意制約違反をドライバ非依存のエラーに変換したもの。
// 呼び出し側はこのエラーを受けたら既存行の再検索にフォールバックする。
var ErrDuplicateSub = errors.New("user with the same sub already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindBySub はOIDCのsubject識別子でユーザーを検索する。見つからない場合はnilを返す。
	FindBySub(ctx context.Context, sub string) (*model.User, error)

	// Create はユーザーを作成する。
	// subが既に存在する場合はErrDuplicateSubを返す。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーのname、email、last_login_atを更新する。
	Update(ctx context.Context, user *model.User) error

	// List はユーザー一覧を返す。
	// qが非空の場合、nameまたはemailの部分一致（大文字小文字を区別しない）で絞り込む。
	List(ctx context.Context, q string, skip, take int) ([]*model.User, error)
}

// TaskListCriteria はタスク一覧クエリの検索条件。
// すべての条件はANDで合成され、単一のSQL文として実行される。
type TaskListCriteria struct {
	Status     *model.TaskStatus // nilの場合は絞り込まない
	AssignedTo string            // 完全一致
	CreatedBy  string            // 完全一致
	Title      string            // 部分一致。大文字小文字を区別しない（ILIKE）
	Query      string            // titleまたはdescriptionの部分一致（このフィルタ内のみOR）
	DueFrom    *time.Time        // 期限範囲の下限（含む）
	DueTo      *time.Time        // 期限範囲の上限（含まない）
	SortBy     string            // "duedate" | "createdat" | "title"。その他はcreated_at昇順
	Desc       bool
	Skip       int
	Take       int
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// Update はタスクを上書き更新する。user_idは変更しない。
	Update(ctx context.Context, task *model.Task) error

	// Delete は指定IDのタスクを削除する。存在しない場合もエラーにしない（冪等）。
	Delete(ctx context.Context, id string) error

	// ListByOwner は指定ユーザーが所有するタスクの一覧を検索条件付きで返す。
	// ソートキーが同値の場合はidで順序を安定させ、同一条件での
	// ページネーション結果が呼び出しごとに揺れないようにする。
	ListByOwner(ctx context.Context, userID string, c TaskListCriteria) ([]*model.Task, error)
}
