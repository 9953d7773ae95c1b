package repository

import (
	"errors"
	"strings"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WithdrawalRepository 提现单数据访问接口
type WithdrawalRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) WithdrawalRepository

	Create(withdrawal *models.Withdrawal) error
	Update(withdrawal *models.Withdrawal) error
	GetByID(id uint) (*models.Withdrawal, error)
	GetByIDForUpdate(id uint) (*models.Withdrawal, error)
	GetByReferenceNo(referenceNo string) (*models.Withdrawal, error)
	List(filter WithdrawalListFilter) ([]models.Withdrawal, int64, error)
	CountActiveByUser(userID uint) (int64, error)

	CreateItem(item *models.WithdrawalItem) error
	DeleteItem(withdrawalID, commissionID uint) (int64, error)
	ListItems(withdrawalID uint) ([]models.WithdrawalItem, error)
	SumItems(withdrawalID uint) (decimal.Decimal, error)
	HasActiveReservation(commissionID uint, excludeWithdrawalID uint) (bool, error)
}

// GormWithdrawalRepository GORM 提现单仓储
type GormWithdrawalRepository struct {
	db *gorm.DB
}

// NewWithdrawalRepository 创建提现单仓储
func NewWithdrawalRepository(db *gorm.DB) *GormWithdrawalRepository {
	return &GormWithdrawalRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWithdrawalRepository) WithTx(tx *gorm.DB) WithdrawalRepository {
	if tx == nil {
		return r
	}
	return &GormWithdrawalRepository{db: tx}
}

// Transaction 执行事务
func (r *GormWithdrawalRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建提现单
func (r *GormWithdrawalRepository) Create(withdrawal *models.Withdrawal) error {
	return r.db.Create(withdrawal).Error
}

// Update 更新提现单
func (r *GormWithdrawalRepository) Update(withdrawal *models.Withdrawal) error {
	return r.db.Save(withdrawal).Error
}

// GetByID 按ID查询提现单
func (r *GormWithdrawalRepository) GetByID(id uint) (*models.Withdrawal, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Withdrawal
	if err := r.db.
		Preload("User").
		Preload("BankAccount").
		Preload("Items").
		Preload("Items.Commission").
		Preload("Processor").
		First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByIDForUpdate 按ID锁定查询提现单
func (r *GormWithdrawalRepository) GetByIDForUpdate(id uint) (*models.Withdrawal, error) {
	if id == 0 {
		return nil, nil
	}
	var row models.Withdrawal
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// GetByReferenceNo 按提现单号查询
func (r *GormWithdrawalRepository) GetByReferenceNo(referenceNo string) (*models.Withdrawal, error) {
	no := strings.TrimSpace(referenceNo)
	if no == "" {
		return nil, nil
	}
	var row models.Withdrawal
	if err := r.db.Preload("User").Preload("Items").Where("reference_no = ?", no).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// List 查询提现单列表
func (r *GormWithdrawalRepository) List(filter WithdrawalListFilter) ([]models.Withdrawal, int64, error) {
	query := r.db.Model(&models.Withdrawal{}).
		Preload("User").
		Preload("BankAccount").
		Preload("Processor")

	if filter.UserID != 0 {
		query = query.Where("withdrawals.user_id = ?", filter.UserID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("withdrawals.status = ?", status)
	}
	if no := strings.TrimSpace(filter.ReferenceNo); no != "" {
		query = query.Where("withdrawals.reference_no LIKE ?", "%"+no+"%")
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		query = query.
			Joins("LEFT JOIN users u ON u.id = withdrawals.user_id").
			Where("(u.email LIKE ? OR u.display_name LIKE ? OR u.affiliate_code LIKE ? OR withdrawals.reference_no LIKE ?)",
				like, like, like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("withdrawals.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("withdrawals.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Withdrawal
	if err := query.Order("withdrawals.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountActiveByUser 统计用户处理中的提现单数量
func (r *GormWithdrawalRepository) CountActiveByUser(userID uint) (int64, error) {
	if userID == 0 {
		return 0, nil
	}
	var total int64
	if err := r.db.Model(&models.Withdrawal{}).
		Where("user_id = ? AND status NOT IN ?", userID, append([]string{constants.WithdrawalStatusPaid}, constants.WithdrawalInactiveStatuses...)).
		Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

// CreateItem 创建提现单明细
func (r *GormWithdrawalRepository) CreateItem(item *models.WithdrawalItem) error {
	return r.db.Create(item).Error
}

// DeleteItem 删除提现单明细
func (r *GormWithdrawalRepository) DeleteItem(withdrawalID, commissionID uint) (int64, error) {
	if withdrawalID == 0 || commissionID == 0 {
		return 0, nil
	}
	result := r.db.
		Where("withdrawal_id = ? AND commission_id = ?", withdrawalID, commissionID).
		Delete(&models.WithdrawalItem{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListItems 查询提现单明细
func (r *GormWithdrawalRepository) ListItems(withdrawalID uint) ([]models.WithdrawalItem, error) {
	if withdrawalID == 0 {
		return []models.WithdrawalItem{}, nil
	}
	var rows []models.WithdrawalItem
	if err := r.db.Preload("Commission").
		Where("withdrawal_id = ?", withdrawalID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// SumItems 汇总提现单明细金额快照
func (r *GormWithdrawalRepository) SumItems(withdrawalID uint) (decimal.Decimal, error) {
	if withdrawalID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.WithdrawalItem{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("withdrawal_id = ?", withdrawalID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// HasActiveReservation 查询佣金是否已被其它活动提现单占用
func (r *GormWithdrawalRepository) HasActiveReservation(commissionID uint, excludeWithdrawalID uint) (bool, error) {
	if commissionID == 0 {
		return false, nil
	}
	query := r.db.Model(&models.WithdrawalItem{}).
		Joins("JOIN withdrawals w ON w.id = withdrawal_items.withdrawal_id").
		Where("withdrawal_items.commission_id = ? AND w.status NOT IN ? AND w.deleted_at IS NULL",
			commissionID, constants.WithdrawalInactiveStatuses)
	if excludeWithdrawalID != 0 {
		query = query.Where("withdrawal_items.withdrawal_id <> ?", excludeWithdrawalID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return false, err
	}
	return total > 0, nil
}
