package models

import "time"

// UserRole 系统角色
type UserRole string

const (
	UserRoleEngineer UserRole = "Engineer"
	UserRoleAdmin    UserRole = "Admin"
)

// Valid 校验角色取值
func (r UserRole) Valid() bool {
	return r == UserRoleEngineer || r == UserRoleAdmin
}

// User 系统用户
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"type:varchar(50);not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string    `gorm:"type:varchar(100)" json:"full_name"`
	Role         UserRole  `gorm:"type:varchar(20);not null;default:Engineer" json:"role"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// IsAdmin 是否管理员
func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}
