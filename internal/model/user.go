// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// OIDCトークンの初回検証時に自動作成される（JITプロビジョニング）。
type User struct {
	ID          string
	Sub         string // IdPが発行する安定したsubject識別子。ユーザー特定の唯一のキー。
	Name        string
	Email       string
	CreatedAt   time.Time
	LastLoginAt time.Time
}
