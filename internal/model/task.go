package model

import (
	"strings"
	"time"
)

// TaskStatus はタスクの進行状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未着手の状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress は作業中の状態。
	TaskStatusInProgress TaskStatus = "inProgress"
	// TaskStatusDone は完了した状態。
	TaskStatusDone TaskStatus = "done"
)

// MaxTitleLength はタスクタイトルの最大文字数。
const MaxTitleLength = 200

// ParseTaskStatus は文字列をTaskStatusに変換する。
// 大文字小文字を区別せず、前後の空白を無視する。
// 未知の値の場合は第2戻り値にfalseを返す。
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return TaskStatusPending, true
	case "inprogress":
		return TaskStatusInProgress, true
	case "done":
		return TaskStatusDone, true
	default:
		return "", false
	}
}

// Task はユーザーが所有するタスクを表す。
type Task struct {
	ID          string     // UUID
	UserID      string     // 所有者のユーザーID。作成後は変更されない
	Title       string     // 必須。最大MaxTitleLength文字
	Description string
	DueDate     *time.Time // 期限。未設定の場合はnil
	Status      TaskStatus
	CreatedBy   string     // 作成者の表示名（email、name、IDの順で刻印）
	AssignedTo  string     // 割り当て先の表示名。自由入力
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
