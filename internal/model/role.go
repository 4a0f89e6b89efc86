package model

// Role 消息发送方角色
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleCustomer || r == RoleAdmin
}

// Opposite 对端角色
func (r Role) Opposite() Role {
	if r == RoleAdmin {
		return RoleCustomer
	}
	return RoleAdmin
}
