package repository

import (
	"errors"

	"github.com/affilia-next/internal/models"

	"gorm.io/gorm"
)

// BankAccountRepository 收款账户数据访问接口
type BankAccountRepository interface {
	Create(account *models.BankAccount) error
	Update(account *models.BankAccount) error
	Delete(id, userID uint) error
	GetByID(id uint) (*models.BankAccount, error)
	ListByUser(userID uint) ([]models.BankAccount, error)
	GetDefaultByUser(userID uint) (*models.BankAccount, error)
	ClearDefault(userID uint) error
}

// GormBankAccountRepository GORM 收款账户仓储
type GormBankAccountRepository struct {
	db *gorm.DB
}

// NewBankAccountRepository 创建收款账户仓储
func NewBankAccountRepository(db *gorm.DB) *GormBankAccountRepository {
	return &GormBankAccountRepository{db: db}
}

// Create 创建收款账户
func (r *GormBankAccountRepository) Create(account *models.BankAccount) error {
	return r.db.Create(account).Error
}

// Update 更新收款账户
func (r *GormBankAccountRepository) Update(account *models.BankAccount) error {
	return r.db.Save(account).Error
}

// Delete 删除收款账户
func (r *GormBankAccountRepository) Delete(id, userID uint) error {
	if id == 0 || userID == 0 {
		return nil
	}
	return r.db.Where("id = ? AND user_id = ?", id, userID).Delete(&models.BankAccount{}).Error
}

// GetByID 按ID查询收款账户
func (r *GormBankAccountRepository) GetByID(id uint) (*models.BankAccount, error) {
	if id == 0 {
		return nil, nil
	}
	var account models.BankAccount
	if err := r.db.First(&account, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ListByUser 查询用户收款账户列表
func (r *GormBankAccountRepository) ListByUser(userID uint) ([]models.BankAccount, error) {
	if userID == 0 {
		return []models.BankAccount{}, nil
	}
	var rows []models.BankAccount
	if err := r.db.Where("user_id = ?", userID).
		Order("is_default desc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetDefaultByUser 查询用户默认收款账户
func (r *GormBankAccountRepository) GetDefaultByUser(userID uint) (*models.BankAccount, error) {
	if userID == 0 {
		return nil, nil
	}
	var account models.BankAccount
	if err := r.db.Where("user_id = ? AND is_default = ?", userID, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// ClearDefault 清除用户默认收款账户标记
func (r *GormBankAccountRepository) ClearDefault(userID uint) error {
	if userID == 0 {
		return nil
	}
	return r.db.Model(&models.BankAccount{}).
		Where("user_id = ? AND is_default = ?", userID, true).
		Update("is_default", false).Error
}
