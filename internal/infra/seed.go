package infra

import (
	"context"
	"errors"
	"fmt"

	"autorbi/internal/config"
	"autorbi/internal/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedAdmin 确保存在初始管理员账号，已存在时不做修改
func SeedAdmin(ctx context.Context, db *gorm.DB, cfg config.SeedConfig, logger *zap.Logger) (*models.User, error) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil, nil
	}

	var existing models.User
	err := db.WithContext(ctx).Where("username = ?", cfg.AdminUsername).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询管理员失败: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.AdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("生成密码哈希失败: %w", err)
	}
	email := cfg.AdminEmail
	if email == "" {
		email = cfg.AdminUsername + "@autorbi.local"
	}
	admin := &models.User{
		Username:     cfg.AdminUsername,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     "Administrator",
		Role:         models.UserRoleAdmin,
		IsActive:     true,
	}
	if err := db.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, fmt.Errorf("创建管理员失败: %w", err)
	}
	logger.Info("已创建初始管理员", zap.String("username", admin.Username), zap.Uint("user_id", admin.ID))
	return admin, nil
}
