package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/affilia-next/internal/models"

	"gorm.io/gorm"
)

// AdminRepository 管理员数据访问接口
type AdminRepository interface {
	Create(admin *models.Admin) error
	Update(admin *models.Admin) error
	GetByID(id uint) (*models.Admin, error)
	GetByUsername(username string) (*models.Admin, error)
	List(page, pageSize int) ([]models.Admin, int64, error)
	UpdateLastLogin(id uint, at time.Time) error
	BumpTokenVersion(id uint, invalidBefore time.Time) error
}

// GormAdminRepository GORM 管理员仓储
type GormAdminRepository struct {
	db *gorm.DB
}

// NewAdminRepository 创建管理员仓储
func NewAdminRepository(db *gorm.DB) *GormAdminRepository {
	return &GormAdminRepository{db: db}
}

// Create 创建管理员
func (r *GormAdminRepository) Create(admin *models.Admin) error {
	return r.db.Create(admin).Error
}

// Update 更新管理员
func (r *GormAdminRepository) Update(admin *models.Admin) error {
	return r.db.Save(admin).Error
}

// GetByID 按ID查询管理员
func (r *GormAdminRepository) GetByID(id uint) (*models.Admin, error) {
	if id == 0 {
		return nil, nil
	}
	var admin models.Admin
	if err := r.db.First(&admin, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

// GetByUsername 按账号查询管理员
func (r *GormAdminRepository) GetByUsername(username string) (*models.Admin, error) {
	normalized := strings.TrimSpace(username)
	if normalized == "" {
		return nil, nil
	}
	var admin models.Admin
	if err := r.db.Where("username = ?", normalized).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &admin, nil
}

// List 查询管理员列表
func (r *GormAdminRepository) List(page, pageSize int) ([]models.Admin, int64, error) {
	query := r.db.Model(&models.Admin{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, page, pageSize)

	var rows []models.Admin
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// UpdateLastLogin 更新最后登录时间
func (r *GormAdminRepository) UpdateLastLogin(id uint, at time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Admin{}).Where("id = ?", id).Update("last_login_at", at).Error
}

// BumpTokenVersion 递增 Token 版本并刷新失效时间点
func (r *GormAdminRepository) BumpTokenVersion(id uint, invalidBefore time.Time) error {
	if id == 0 {
		return nil
	}
	return r.db.Model(&models.Admin{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"token_version":        gorm.Expr("token_version + 1"),
			"token_invalid_before": invalidBefore,
		}).Error
}
