package repository

import (
	"Tradelink/internal/model"
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ScopeRepo interface {
	CreateScope(ctx context.Context, scope *model.Scope) error
	GetScope(ctx context.Context, id string) (*model.Scope, error)
	GetScopes(ctx context.Context, ids []string) (map[string]*model.Scope, error)
	EnsureSupportScope(ctx context.Context, customer *model.Identity) (*model.Scope, error)
	ListCustomerScopes(ctx context.Context, customerID string) ([]*model.Scope, error)
}

type scopeRepoImpl struct {
	db *gorm.DB
}

func NewScopeRepo(db *gorm.DB) ScopeRepo {
	return &scopeRepoImpl{db: db}
}

// CreateScope 登记会话范围，主键冲突返回 ErrDuplicateScope
func (s *scopeRepoImpl) CreateScope(ctx context.Context, scope *model.Scope) error {
	err := s.db.WithContext(ctx).Create(scope).Error
	if IsDuplicateKey(err) {
		return ErrDuplicateScope
	}
	return err
}

// GetScope 根据范围 ID 获取会话范围
func (s *scopeRepoImpl) GetScope(ctx context.Context, id string) (*model.Scope, error) {
	var scope model.Scope
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&scope).Error
	if err != nil {
		return nil, err
	}
	return &scope, nil
}

// GetScopes 批量获取，不存在的 ID 不出现在结果中
func (s *scopeRepoImpl) GetScopes(ctx context.Context, ids []string) (map[string]*model.Scope, error) {
	res := make(map[string]*model.Scope, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	var scopes []*model.Scope
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&scopes).Error; err != nil {
		return nil, err
	}
	for _, sc := range scopes {
		res[sc.ID] = sc
	}
	return res, nil
}

// EnsureSupportScope 客服会话以客户 ID 为范围 ID，首次发送时创建
// 已存在时同步客户的展示名与邮箱
func (s *scopeRepoImpl) EnsureSupportScope(ctx context.Context, customer *model.Identity) (*model.Scope, error) {
	scope := &model.Scope{
		ID:            customer.ID,
		Kind:          model.ScopeSupport,
		CustomerID:    customer.ID,
		CustomerName:  customer.DisplayName,
		CustomerEmail: customer.Email,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"customer_name", "customer_email"}),
	}).Create(scope).Error
	if err != nil {
		return nil, err
	}
	return s.GetScope(ctx, customer.ID)
}

// ListCustomerScopes 客户参与的所有会话范围
func (s *scopeRepoImpl) ListCustomerScopes(ctx context.Context, customerID string) ([]*model.Scope, error) {
	var scopes []*model.Scope
	err := s.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("updated_at DESC").
		Find(&scopes).Error
	return scopes, err
}

// IsDuplicateKey MySQL 1062 主键/唯一键冲突
func IsDuplicateKey(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1062
}

// IsNotFound gorm 未找到记录
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
