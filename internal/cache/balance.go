package cache

import (
	"context"
	"fmt"
	"time"
)

const balanceCacheTTL = 30 * time.Second

// UserBalanceSnapshot 分销用户余额快照（金额为十进制字符串）
type UserBalanceSnapshot struct {
	UserID         uint   `json:"user_id"`
	PendingAmount  string `json:"pending_amount"`
	EligibleAmount string `json:"eligible_amount"`
	ReservedAmount string `json:"reserved_amount"`
	PaidAmount     string `json:"paid_amount"`
	UpdatedAt      int64  `json:"updated_at"`
}

func userBalanceKey(userID uint) string {
	return fmt.Sprintf("balance:user:%d", userID)
}

// GetUserBalance 读取用户余额快照
func GetUserBalance(ctx context.Context, userID uint) (*UserBalanceSnapshot, bool, error) {
	if userID == 0 {
		return nil, false, nil
	}
	var snapshot UserBalanceSnapshot
	hit, err := GetJSON(ctx, userBalanceKey(userID), &snapshot)
	if err != nil || !hit {
		return nil, hit, err
	}
	return &snapshot, true, nil
}

// SetUserBalance 写入用户余额快照
func SetUserBalance(ctx context.Context, snapshot *UserBalanceSnapshot) error {
	if snapshot == nil || snapshot.UserID == 0 {
		return nil
	}
	snapshot.UpdatedAt = time.Now().Unix()
	return SetJSON(ctx, userBalanceKey(snapshot.UserID), snapshot, balanceCacheTTL)
}

// DelUserBalance 余额变更后失效缓存
func DelUserBalance(ctx context.Context, userID uint) error {
	if userID == 0 {
		return nil
	}
	return Del(ctx, userBalanceKey(userID))
}
