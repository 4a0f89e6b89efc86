package model

import "time"

// ScopeKind 会话范围类型
type ScopeKind string

const (
	ScopeSupport     ScopeKind = "support"
	ScopeRFQ         ScopeKind = "rfq"
	ScopePartnership ScopeKind = "partnership"
)

func (k ScopeKind) Valid() bool {
	return k == ScopeSupport || k == ScopeRFQ || k == ScopePartnership
}

// Scope 会话范围登记表：客服会话以客户 ID 为范围 ID，询价/合作以单据 ID 为范围 ID
type Scope struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Kind          ScopeKind `gorm:"type:varchar(16);not null;index" json:"kind"`
	CustomerID    string    `gorm:"type:varchar(64);not null;index" json:"customerId"`
	CustomerName  string    `gorm:"type:varchar(128)" json:"customerName"`
	CustomerEmail string    `gorm:"type:varchar(255)" json:"customerEmail"`
	Title         string    `gorm:"type:varchar(255)" json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Scope) TableName() string { return "chat_scopes" }

// CanWrite 管理员可写任意范围，客户只能写自己的范围
func (s *Scope) CanWrite(who *Identity) bool {
	if who == nil {
		return false
	}
	if who.Role == RoleAdmin {
		return true
	}
	return who.Role == RoleCustomer && who.ID == s.CustomerID
}
