package auth

import "electroshop_backend/internal/models"

// Разрешения
const (
	PermOrdersReadOwn      = "orders:read:self"
	PermOrdersWriteOwn     = "orders:write:self"
	PermOrdersReadAll      = "orders:read"
	PermOrdersOverride     = "orders:override"
	PermTransactionsRead   = "transactions:read"
	PermPaymentsConfirmCOD = "payments:confirm_cash"
)

// Permissions список разрешений по ролям
var Permissions = map[models.UserRole][]string{
	models.UserRoleAdmin: {
		PermOrdersReadOwn,
		PermOrdersWriteOwn,
		PermOrdersReadAll,
		PermOrdersOverride,
		PermTransactionsRead,
		PermPaymentsConfirmCOD,
	},
	models.UserRoleCustomer: {
		PermOrdersReadOwn,
		PermOrdersWriteOwn,
	},
}

// HasPermission проверяет есть ли у роли указанное разрешение
func HasPermission(role models.UserRole, permission string) bool {
	for _, p := range Permissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsAdmin проверяет является ли пользователь администратором
func IsAdmin(role models.UserRole) bool {
	return role == models.UserRoleAdmin
}
