package identity

import "errors"

// Role は利用者の権限
type Role string

const (
	RoleHobby  Role = "HOBBY"
	RoleExpert Role = "EXPERT"
	RoleAdmin  Role = "ADMIN"
)

// ErrUnauthenticated は認証済みの利用者が特定できない場合のエラー
var ErrUnauthenticated = errors.New("認証が必要です")

// Actor は認証済みの操作者
// 予約コアは認証を行わず、上位層から渡された Actor を信頼する
type Actor struct {
	UserID string
	Role   Role
}

// ParseRole は文字列から Role を返す。未知の値は RoleHobby として扱う
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleExpert:
		return RoleExpert
	case RoleAdmin:
		return RoleAdmin
	}
	return RoleHobby
}

// IsAdmin は管理者かを返す
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanPublishActivity は体験投稿を作成できるかを返す
func (a Actor) CanPublishActivity() bool {
	return a.Role == RoleExpert
}
