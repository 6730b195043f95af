package database

import (
	"context"

	"github.com/callbroker/callbroker/internal/database/models"
)

// AccountRepository manages registered call accounts.
type AccountRepository interface {
	Create(ctx context.Context, acc *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	List(ctx context.Context) ([]models.Account, error)
	ListEnabled(ctx context.Context) ([]models.Account, error)
	Update(ctx context.Context, acc *models.Account) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int64, error)
}

// GatewayRepository manages provider gateway endpoints.
type GatewayRepository interface {
	Create(ctx context.Context, gw *models.Gateway) error
	GetByID(ctx context.Context, id int64) (*models.Gateway, error)
	GetByComponent(ctx context.Context, component string) (*models.Gateway, error)
	List(ctx context.Context) ([]models.Gateway, error)
	ListEnabled(ctx context.Context) ([]models.Gateway, error)
	Update(ctx context.Context, gw *models.Gateway) error
	Delete(ctx context.Context, id int64) error
}

// SystemConfigRepository manages key-value system configuration.
type SystemConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	GetAll(ctx context.Context) ([]models.SystemConfig, error)
}

// CallRecordListFilter specifies filtering and pagination for call record
// list queries.
type CallRecordListFilter struct {
	Limit       int
	Offset      int
	Disposition string // "connected", "failed", "canceled", or "" for all
}

// CallRecordRepository manages the resolution audit log.
type CallRecordRepository interface {
	Create(ctx context.Context, rec *models.CallRecord) error
	GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error)
	List(ctx context.Context, filter CallRecordListFilter) ([]models.CallRecord, int, error)
	CountByDisposition(ctx context.Context) (map[string]int64, error)
}

// AdminUserRepository manages control API users.
type AdminUserRepository interface {
	Create(ctx context.Context, user *models.AdminUser) error
	GetByUsername(ctx context.Context, username string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
}
