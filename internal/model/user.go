// Package model はドメインモデルを定義する。
package model

import "time"

// Role はユーザーの権限種別を表す。
type Role string

const (
	// RoleMember は一般ユーザー。
	RoleMember Role = "member"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// User はサービス利用ユーザーを表す。
// PasswordHash と GoogleID の少なくとも一方は必ず設定される。
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string // OAuthのみのユーザーは空
	GoogleID     string // Google未連携の場合は空
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsAdmin はユーザーが管理者かどうかを返す。
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasCredential はログイン手段が少なくとも1つ設定されているかを返す。
func (u *User) HasCredential() bool {
	return u.PasswordHash != "" || u.GoogleID != ""
}

// Identity はベアラートークンから解決された認証済みの主体を表す。
type Identity struct {
	UserID string
	Role   Role
}
