package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/affilia-next/internal/constants"
	"github.com/affilia-next/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// 可提现佣金的排除条件：佣金已挂入任一活动提现单（非驳回、非取消）即视为被占用。
// 提现单创建时仅写入明细行，审批通过才回写 paid_withdrawal_id，
// 因此可用性判断必须同时检查两者。
const activeReservationExistsSQL = `EXISTS (
	SELECT 1 FROM withdrawal_items wi
	JOIN withdrawals w ON w.id = wi.withdrawal_id
	WHERE wi.commission_id = commissions.id
	  AND w.status NOT IN ?
	  AND w.deleted_at IS NULL
)`

// CommissionRepository 佣金数据访问接口
type CommissionRepository interface {
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) CommissionRepository

	Create(commission *models.Commission) error
	Update(commission *models.Commission) error
	GetByID(id uint) (*models.Commission, error)
	GetByIDForUpdate(id uint) (*models.Commission, error)
	GetByOrderItemID(orderItemID uint) (*models.Commission, error)
	List(filter CommissionListFilter) ([]models.Commission, int64, error)
	ListByOrder(orderID uint, statuses []string) ([]models.Commission, error)
	ListByOrderForUpdate(orderID uint, statuses []string) ([]models.Commission, error)
	ListByWithdrawalIDForUpdate(withdrawalID uint) ([]models.Commission, error)
	ListEligibleUnreserved(userID uint) ([]models.Commission, error)
	ListEligibleUnreservedForUpdate(userID uint) ([]models.Commission, error)
	ListByIDsForUpdate(ids []uint) ([]models.Commission, error)
	BatchUpdate(ids []uint, updates map[string]interface{}) error
	MarkCalculatedEligibleDue(before, now time.Time) (int64, error)
	SumEligibleUnreserved(userID uint) (decimal.Decimal, error)
	GetUserBalance(userID uint) (UserBalanceAggregate, error)
}

// GormCommissionRepository GORM 佣金仓储
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金仓储
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// Create 创建佣金记录
func (r *GormCommissionRepository) Create(commission *models.Commission) error {
	return r.db.Create(commission).Error
}

// Update 更新佣金记录
func (r *GormCommissionRepository) Update(commission *models.Commission) error {
	return r.db.Save(commission).Error
}

// GetByID 按ID获取佣金记录
func (r *GormCommissionRepository) GetByID(id uint) (*models.Commission, error) {
	if id == 0 {
		return nil, nil
	}
	var commission models.Commission
	if err := r.db.Preload("User").Preload("Order").First(&commission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// GetByIDForUpdate 按ID锁定查询佣金记录
func (r *GormCommissionRepository) GetByIDForUpdate(id uint) (*models.Commission, error) {
	if id == 0 {
		return nil, nil
	}
	var commission models.Commission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&commission, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// GetByOrderItemID 按订单项查询佣金记录（幂等计算去重）
func (r *GormCommissionRepository) GetByOrderItemID(orderItemID uint) (*models.Commission, error) {
	if orderItemID == 0 {
		return nil, nil
	}
	var commission models.Commission
	if err := r.db.Where("order_item_id = ?", orderItemID).First(&commission).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &commission, nil
}

// List 查询佣金列表
func (r *GormCommissionRepository) List(filter CommissionListFilter) ([]models.Commission, int64, error) {
	query := r.db.Model(&models.Commission{}).
		Preload("User").
		Preload("Order")
	if filter.UserID != 0 {
		query = query.Where("commissions.user_id = ?", filter.UserID)
	}
	if filter.OrderID != 0 {
		query = query.Where("commissions.order_id = ?", filter.OrderID)
	}
	if orderNo := strings.TrimSpace(filter.OrderNo); orderNo != "" {
		query = query.Joins("LEFT JOIN orders ON orders.id = commissions.order_id").
			Where("orders.order_no LIKE ?", "%"+orderNo+"%")
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("commissions.status = ?", status)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		like := "%" + keyword + "%"
		query = query.
			Joins("LEFT JOIN users u ON u.id = commissions.user_id").
			Where("(u.email LIKE ? OR u.display_name LIKE ? OR u.affiliate_code LIKE ?)", like, like, like)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("commissions.created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("commissions.created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = applyPagination(query, filter.Page, filter.PageSize)

	var rows []models.Commission
	if err := query.Order("commissions.id desc").Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// ListByOrder 按订单查询佣金记录
func (r *GormCommissionRepository) ListByOrder(orderID uint, statuses []string) ([]models.Commission, error) {
	if orderID == 0 {
		return []models.Commission{}, nil
	}
	query := r.db.Model(&models.Commission{}).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []models.Commission
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByOrderForUpdate 按订单查询佣金并加锁
func (r *GormCommissionRepository) ListByOrderForUpdate(orderID uint, statuses []string) ([]models.Commission, error) {
	if orderID == 0 {
		return []models.Commission{}, nil
	}
	query := r.db.Model(&models.Commission{}).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var rows []models.Commission
	if err := query.Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByWithdrawalIDForUpdate 查询并锁定已回写到提现单的佣金记录
func (r *GormCommissionRepository) ListByWithdrawalIDForUpdate(withdrawalID uint) ([]models.Commission, error) {
	if withdrawalID == 0 {
		return []models.Commission{}, nil
	}
	var rows []models.Commission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("paid_withdrawal_id = ?", withdrawalID).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// eligibleUnreservedQuery 可提现且未被任一活动提现单占用的佣金查询
func (r *GormCommissionRepository) eligibleUnreservedQuery(userID uint) *gorm.DB {
	return r.db.Model(&models.Commission{}).
		Where("user_id = ? AND status IN ? AND paid_withdrawal_id IS NULL",
			userID,
			[]string{constants.CommissionStatusEligible, constants.CommissionStatusApproved},
		).
		Where("NOT "+activeReservationExistsSQL, constants.WithdrawalInactiveStatuses)
}

// ListEligibleUnreserved 查询可提现佣金
func (r *GormCommissionRepository) ListEligibleUnreserved(userID uint) ([]models.Commission, error) {
	if userID == 0 {
		return []models.Commission{}, nil
	}
	var rows []models.Commission
	if err := r.eligibleUnreservedQuery(userID).
		Order("created_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListEligibleUnreservedForUpdate 查询并锁定可提现佣金
func (r *GormCommissionRepository) ListEligibleUnreservedForUpdate(userID uint) ([]models.Commission, error) {
	if userID == 0 {
		return []models.Commission{}, nil
	}
	var rows []models.Commission
	if err := r.eligibleUnreservedQuery(userID).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Order("created_at asc, id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListByIDsForUpdate 按ID列表锁定查询佣金记录
func (r *GormCommissionRepository) ListByIDsForUpdate(ids []uint) ([]models.Commission, error) {
	if len(ids) == 0 {
		return []models.Commission{}, nil
	}
	var rows []models.Commission
	if err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BatchUpdate 批量更新佣金记录
func (r *GormCommissionRepository) BatchUpdate(ids []uint, updates map[string]interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.Model(&models.Commission{}).Where("id IN ?", ids).Updates(updates).Error
}

// MarkCalculatedEligibleDue 批量将冷静期到期的佣金转可提现
func (r *GormCommissionRepository) MarkCalculatedEligibleDue(before, now time.Time) (int64, error) {
	result := r.db.Model(&models.Commission{}).
		Where("status = ? AND eligible_due_at IS NOT NULL AND eligible_due_at <= ? AND paid_withdrawal_id IS NULL",
			constants.CommissionStatusCalculated, before).
		Updates(map[string]interface{}{
			"status":      constants.CommissionStatusEligible,
			"eligible_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// SumEligibleUnreserved 汇总可提现余额
func (r *GormCommissionRepository) SumEligibleUnreserved(userID uint) (decimal.Decimal, error) {
	if userID == 0 {
		return decimal.Zero, nil
	}
	var row struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.eligibleUnreservedQuery(userID).
		Select("COALESCE(SUM(amount), 0) AS total").
		Scan(&row).Error; err != nil {
		return decimal.Zero, err
	}
	return row.Total.Round(2), nil
}

// GetUserBalance 汇总分销用户余额
func (r *GormCommissionRepository) GetUserBalance(userID uint) (UserBalanceAggregate, error) {
	balance := UserBalanceAggregate{
		PendingAmount:  decimal.Zero,
		EligibleAmount: decimal.Zero,
		ReservedAmount: decimal.Zero,
		PaidAmount:     decimal.Zero,
	}
	if userID == 0 {
		return balance, nil
	}

	var pending struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND status = ?", userID, constants.CommissionStatusCalculated).
		Scan(&pending).Error; err != nil {
		return balance, err
	}
	balance.PendingAmount = pending.Total.Round(2)

	eligible, err := r.SumEligibleUnreserved(userID)
	if err != nil {
		return balance, err
	}
	balance.EligibleAmount = eligible

	var reserved struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND status IN ?", userID,
			[]string{constants.CommissionStatusEligible, constants.CommissionStatusApproved}).
		Where(activeReservationExistsSQL, constants.WithdrawalInactiveStatuses).
		Scan(&reserved).Error; err != nil {
		return balance, err
	}
	balance.ReservedAmount = reserved.Total.Round(2)

	var paid struct {
		Total decimal.Decimal `gorm:"column:total"`
	}
	if err := r.db.Model(&models.Commission{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("user_id = ? AND status = ?", userID, constants.CommissionStatusPaid).
		Scan(&paid).Error; err != nil {
		return balance, err
	}
	balance.PaidAmount = paid.Total.Round(2)

	return balance, nil
}
