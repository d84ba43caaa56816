package models

import "time"

// DefaultIconURL is shown for users that never set an icon.
const DefaultIconURL = "/static/home/assets/logo.png"

// User 代表系统中的用户。
// UserID is the public, immutable identifier used by every relationship
// endpoint; Username may change at any time.
type User struct {
	BaseModel
	UserID       string     `gorm:"column:userid;type:varchar(255);uniqueIndex;not null" json:"userid"`
	Username     string     `gorm:"type:varchar(150);uniqueIndex;not null" json:"username"`
	Email        string     `gorm:"type:varchar(254);uniqueIndex;not null" json:"email,omitempty"`
	PasswordHash string     `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	IconURL      string     `gorm:"type:varchar(999)" json:"icon_url,omitempty"`
	ListeningTo  *string    `gorm:"type:varchar(255)" json:"listeningto,omitempty"`
	LastSeenAt   *time.Time `json:"last_seen,omitempty"`
	IsSuperuser  bool       `gorm:"not null;default:false" json:"is_superuser"`
	IsActive     bool       `gorm:"not null;default:true" json:"-"`
}

// UserBasicInfo holds minimal public information about a user.
type UserBasicInfo struct {
	ID       uint   `json:"id"`
	UserID   string `json:"userid"`
	Username string `json:"username"`
	IconURL  string `json:"icon_url"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}

// BasicInfo projects the user onto its public fields.
func (u *User) BasicInfo() *UserBasicInfo {
	return &UserBasicInfo{
		ID:       u.ID,
		UserID:   u.UserID,
		Username: u.Username,
		IconURL:  u.IconURL,
	}
}
