package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized   = "UNAUTHORIZED"
	ErrCodeInvalidToken   = "INVALID_TOKEN"
	ErrCodeMissingSubject = "MISSING_SUBJECT"
	ErrCodeTaskNotFound   = "TASK_NOT_FOUND"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeInvalidTaskID  = "INVALID_TASK_ID"
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	ErrCodeTitleRequired  = "TITLE_REQUIRED"
	ErrCodeTitleTooLong   = "TITLE_TOO_LONG"
	ErrCodeInternal       = "INTERNAL_ERROR"
)

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidTokenError はトークン検証失敗エラーを生成する。
// 失敗の内訳（署名不正、期限切れ等）はログのみに記録し、レスポンスには含めない。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "トークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewMissingSubjectError はsubjectクレーム欠落エラーを生成する。
// トークン自体が不正または非対応のIdPであることを示すため、リトライ不可として扱う。
func NewMissingSubjectError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingSubject,
		Message:  "トークンにsubjectクレームが含まれていません。",
		Category: "auth",
		Action:   "IdPの設定を確認してください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewForbiddenError は所有者以外による操作エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このタスクに対する操作は許可されていません。",
		Category: "auth",
		Action:   "自分が所有するタスクのみ操作できます。",
	}
}

// NewInvalidTaskIDError は不正なタスクID形式のエラーを生成する。
func NewInvalidTaskIDError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTaskID,
		Message:  fmt.Sprintf("タスクIDの形式が不正です: %s", id),
		Category: "validation",
		Action:   "UUID形式のタスクIDを指定してください。",
	}
}

// NewInvalidRequestError はリクエストボディ不正のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewTitleRequiredError はタイトル未指定エラーを生成する。
func NewTitleRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTitleRequired,
		Message:  "タイトルは必須です。",
		Category: "validation",
		Action:   "1文字以上のタイトルを指定してください。",
	}
}

// NewInternalError は内部サーバーエラーを生成する。
// 詳細はログのみに記録し、レスポンスには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewTitleTooLongError はタイトル長超過エラーを生成する。
func NewTitleTooLongError() *APIError {
	return &APIError{
		Code:     ErrCodeTitleTooLong,
		Message:  fmt.Sprintf("タイトルが最大長（%d文字）を超えています。", MaxTitleLength),
		Category: "validation",
		Action:   "タイトルを短くしてください。",
	}
}
