package domain

// UserRole é um tipo string para representar o papel do usuário no sistema.
type UserRole string

// Constantes para os papéis de usuário
const (
	RoleAdmin    UserRole = "admin"
	RoleCustomer UserRole = "customer"
)

// Actor identifica explicitamente quem executa uma operação.
// A identidade vem do token validado no middleware e é repassada a cada chamada de serviço.
type Actor struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
}

// IsAdmin informa se o ator possui papel administrativo.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
