package service

import (
	"regexp"
	"strings"
	"time"

	"github.com/affilia-next/internal/models"
	"github.com/affilia-next/internal/repository"
)

// ribPattern RIB/IBAN 账号只允许字母数字，长度 10-34
var ribPattern = regexp.MustCompile(`^[0-9A-Za-z]{10,34}$`)

// BankAccountInput 收款账户输入
type BankAccountInput struct {
	Holder    string `json:"holder" binding:"required"`
	BankName  string `json:"bank_name" binding:"required"`
	RIB       string `json:"rib" binding:"required"`
	IsDefault bool   `json:"is_default"`
}

// BankAccountService 收款账户服务
type BankAccountService struct {
	repo repository.BankAccountRepository
}

// NewBankAccountService 创建收款账户服务
func NewBankAccountService(repo repository.BankAccountRepository) *BankAccountService {
	return &BankAccountService{repo: repo}
}

func normalizeBankAccountInput(input *BankAccountInput) error {
	input.Holder = strings.TrimSpace(input.Holder)
	input.BankName = strings.TrimSpace(input.BankName)
	input.RIB = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(input.RIB), " ", ""))
	if input.Holder == "" || input.BankName == "" || !ribPattern.MatchString(input.RIB) {
		return ErrBankAccountInvalid
	}
	return nil
}

// List 查询用户收款账户列表
func (s *BankAccountService) List(userID uint) ([]models.BankAccount, error) {
	if userID == 0 || s.repo == nil {
		return []models.BankAccount{}, nil
	}
	return s.repo.ListByUser(userID)
}

// Create 新增收款账户。用户的首个账户自动成为默认账户。
func (s *BankAccountService) Create(userID uint, input BankAccountInput) (*models.BankAccount, error) {
	if userID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	if err := normalizeBankAccountInput(&input); err != nil {
		return nil, err
	}

	existing, err := s.repo.ListByUser(userID)
	if err != nil {
		return nil, err
	}
	isDefault := input.IsDefault || len(existing) == 0
	if isDefault {
		if err := s.repo.ClearDefault(userID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	account := &models.BankAccount{
		UserID:    userID,
		Holder:    input.Holder,
		BankName:  input.BankName,
		RIB:       input.RIB,
		IsDefault: isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Update 更新收款账户
func (s *BankAccountService) Update(userID, accountID uint, input BankAccountInput) (*models.BankAccount, error) {
	if userID == 0 || accountID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	if err := normalizeBankAccountInput(&input); err != nil {
		return nil, err
	}

	account, err := s.repo.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.UserID != userID {
		return nil, ErrNotFound
	}

	if input.IsDefault && !account.IsDefault {
		if err := s.repo.ClearDefault(userID); err != nil {
			return nil, err
		}
	}
	account.Holder = input.Holder
	account.BankName = input.BankName
	account.RIB = input.RIB
	if input.IsDefault {
		account.IsDefault = true
	}
	account.UpdatedAt = time.Now()
	if err := s.repo.Update(account); err != nil {
		return nil, err
	}
	return account, nil
}

// SetDefault 设置默认收款账户
func (s *BankAccountService) SetDefault(userID, accountID uint) (*models.BankAccount, error) {
	if userID == 0 || accountID == 0 || s.repo == nil {
		return nil, ErrNotFound
	}
	account, err := s.repo.GetByID(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.UserID != userID {
		return nil, ErrNotFound
	}
	if err := s.repo.ClearDefault(userID); err != nil {
		return nil, err
	}
	account.IsDefault = true
	account.UpdatedAt = time.Now()
	if err := s.repo.Update(account); err != nil {
		return nil, err
	}
	return account, nil
}

// Delete 删除收款账户
func (s *BankAccountService) Delete(userID, accountID uint) error {
	if userID == 0 || accountID == 0 || s.repo == nil {
		return ErrNotFound
	}
	account, err := s.repo.GetByID(accountID)
	if err != nil {
		return err
	}
	if account == nil || account.UserID != userID {
		return ErrNotFound
	}
	return s.repo.Delete(accountID, userID)
}
