package authz

import "fmt"

// RoleSeed 预置角色定义
type RoleSeed struct {
	Role     string
	Inherits []string
	Policies []Policy
}

// BuiltinRoleSeeds 系统预置角色矩阵。
// readonly_auditor 只读审计；commission_manager 负责佣金审核与调整；
// finance 负责提现审核与打款。
func BuiltinRoleSeeds() []RoleSeed {
	return []RoleSeed{
		{
			Role: "readonly_auditor",
			Policies: []Policy{
				{Object: "/admin/*", Action: "GET"},
			},
		},
		{
			Role:     "commission_manager",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/commissions", Action: "GET"},
				{Object: "/admin/commissions/:id", Action: "GET"},
				{Object: "/admin/commissions/:id/approve", Action: "POST"},
				{Object: "/admin/commissions/:id/reject", Action: "POST"},
				{Object: "/admin/commissions/:id/adjust", Action: "POST"},
				{Object: "/admin/orders", Action: "GET"},
				{Object: "/admin/orders/:id", Action: "GET"},
				{Object: "/admin/settings/commission", Action: "*"},
			},
		},
		{
			Role:     "finance",
			Inherits: []string{"readonly_auditor"},
			Policies: []Policy{
				{Object: "/admin/withdrawals", Action: "GET"},
				{Object: "/admin/withdrawals/:id", Action: "GET"},
				{Object: "/admin/withdrawals/:id/approve", Action: "POST"},
				{Object: "/admin/withdrawals/:id/reject", Action: "POST"},
				{Object: "/admin/withdrawals/:id/in-payment", Action: "POST"},
				{Object: "/admin/withdrawals/:id/paid", Action: "POST"},
				{Object: "/admin/withdrawals/:id/evidence", Action: "POST"},
				{Object: "/admin/settings/withdrawal", Action: "*"},
			},
		},
	}
}

// BootstrapBuiltinRoles 初始化预置角色与默认策略
func (s *Service) BootstrapBuiltinRoles() error {
	if s == nil || s.enforcer == nil {
		return fmt.Errorf("authz service unavailable")
	}

	for _, seed := range BuiltinRoleSeeds() {
		role, err := s.EnsureRole(seed.Role)
		if err != nil {
			return err
		}

		for _, parent := range seed.Inherits {
			parentRole, err := NormalizeRole(parent)
			if err != nil {
				return err
			}
			if _, err := s.enforcer.AddNamedGroupingPolicy("g", role, parentRole); err != nil {
				return fmt.Errorf("link role inheritance failed: %w", err)
			}
		}

		for _, policy := range seed.Policies {
			action := NormalizeAction(policy.Action)
			if action == "" {
				return fmt.Errorf("builtin policy action is required")
			}
			if _, err := s.enforcer.AddPolicy(role, NormalizeObject(policy.Object), action); err != nil {
				return fmt.Errorf("add builtin policy failed: %w", err)
			}
		}
	}
	return nil
}
