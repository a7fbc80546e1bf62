package repository

import (
	"context"

	"retailpos/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lock strengths for session rows: postings share the row, close takes it
// exclusively, so a posting can never slip in behind a close.
const (
	LockShare  = "SHARE"
	LockUpdate = "UPDATE"
)

// SessionFilter defines filters for listing cash register sessions.
type SessionFilter struct {
	RegisterID *uuid.UUID
	UserID     *uuid.UUID
	Status     model.SessionStatus
	Page       int
	Limit      int
}

type CashRepository interface {
	FindRegister(ctx context.Context, id uuid.UUID) (*model.CashRegister, error)
	LockRegisterTx(tx *gorm.DB, id uuid.UUID) (*model.CashRegister, error)

	// CountOpenSessionsTx reports how many open sessions exist for the register
	// and for the operator.
	CountOpenSessionsTx(tx *gorm.DB, registerID, userID uuid.UUID) (byRegister, byOperator int64, err error)
	CreateSessionTx(tx *gorm.DB, s *model.CashRegisterSession) error
	LockSessionTx(tx *gorm.DB, id uuid.UUID, strength string) (*model.CashRegisterSession, error)
	UpdateSessionTx(tx *gorm.DB, s *model.CashRegisterSession) error

	FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error)
	FindOpenSessionByRegister(ctx context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error)
	FindOpenSessionByOperator(ctx context.Context, userID uuid.UUID) (*model.CashRegisterSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.CashRegisterSession, int64, error)

	CreateTransactionTx(tx *gorm.DB, t *model.CashTransaction) error
	ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.CashTransaction, error)
	// SumByKindTx folds the session's postings per kind.
	SumByKindTx(tx *gorm.DB, sessionID uuid.UUID) (map[model.TransactionKind]decimal.Decimal, error)

	CreateCountTx(tx *gorm.DB, c *model.CashCount) error

	DB() *gorm.DB
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) DB() *gorm.DB { return r.db }

func (r *cashRepo) FindRegister(ctx context.Context, id uuid.UUID) (*model.CashRegister, error) {
	var reg model.CashRegister
	if err := r.db.WithContext(ctx).First(&reg, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &reg, nil
}

func (r *cashRepo) LockRegisterTx(tx *gorm.DB, id uuid.UUID) (*model.CashRegister, error) {
	var reg model.CashRegister
	err := tx.Clauses(clause.Locking{Strength: LockUpdate}).First(&reg, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &reg, nil
}

func (r *cashRepo) CountOpenSessionsTx(tx *gorm.DB, registerID, userID uuid.UUID) (int64, int64, error) {
	var byRegister, byOperator int64
	err := tx.Model(&model.CashRegisterSession{}).
		Where("cash_register_id = ? AND status = ?", registerID, model.SessionOpen).
		Count(&byRegister).Error
	if err != nil {
		return 0, 0, classify(err)
	}
	err = tx.Model(&model.CashRegisterSession{}).
		Where("user_id = ? AND status = ?", userID, model.SessionOpen).
		Count(&byOperator).Error
	return byRegister, byOperator, classify(err)
}

func (r *cashRepo) CreateSessionTx(tx *gorm.DB, s *model.CashRegisterSession) error {
	return classify(tx.Omit(clause.Associations).Create(s).Error)
}

func (r *cashRepo) LockSessionTx(tx *gorm.DB, id uuid.UUID, strength string) (*model.CashRegisterSession, error) {
	var s model.CashRegisterSession
	err := tx.Clauses(clause.Locking{Strength: strength}).First(&s, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *cashRepo) UpdateSessionTx(tx *gorm.DB, s *model.CashRegisterSession) error {
	return classify(tx.Omit(clause.Associations).Save(s).Error)
}

func (r *cashRepo) FindSessionByID(ctx context.Context, id uuid.UUID) (*model.CashRegisterSession, error) {
	var s model.CashRegisterSession
	if err := r.db.WithContext(ctx).Preload("Register").First(&s, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *cashRepo) FindOpenSessionByRegister(ctx context.Context, registerID uuid.UUID) (*model.CashRegisterSession, error) {
	var s model.CashRegisterSession
	err := r.db.WithContext(ctx).
		Where("cash_register_id = ? AND status = ?", registerID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *cashRepo) FindOpenSessionByOperator(ctx context.Context, userID uuid.UUID) (*model.CashRegisterSession, error) {
	var s model.CashRegisterSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SessionOpen).
		First(&s).Error
	if err != nil {
		return nil, classify(err)
	}
	return &s, nil
}

func (r *cashRepo) ListSessions(ctx context.Context, filter SessionFilter) ([]model.CashRegisterSession, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.CashRegisterSession{})
	if filter.RegisterID != nil {
		q = q.Where("cash_register_id = ?", *filter.RegisterID)
	}
	if filter.UserID != nil {
		q = q.Where("user_id = ?", *filter.UserID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	page, limit := normalizePage(filter.Page, filter.Limit)
	var sessions []model.CashRegisterSession
	err := q.Order("opened_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&sessions).Error
	return sessions, total, classify(err)
}

func (r *cashRepo) CreateTransactionTx(tx *gorm.DB, t *model.CashTransaction) error {
	return classify(tx.Omit(clause.Associations).Create(t).Error)
}

func (r *cashRepo) ListTransactions(ctx context.Context, sessionID uuid.UUID) ([]model.CashTransaction, error) {
	var txs []model.CashTransaction
	err := r.db.WithContext(ctx).
		Preload("PaymentMethod").
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&txs).Error
	return txs, classify(err)
}

func (r *cashRepo) SumByKindTx(tx *gorm.DB, sessionID uuid.UUID) (map[model.TransactionKind]decimal.Decimal, error) {
	var rows []struct {
		Kind  model.TransactionKind
		Total decimal.Decimal
	}
	err := tx.Model(&model.CashTransaction{}).
		Select("kind, SUM(amount) AS total").
		Where("session_id = ?", sessionID).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, classify(err)
	}
	sums := make(map[model.TransactionKind]decimal.Decimal, len(rows))
	for _, row := range rows {
		sums[row.Kind] = row.Total
	}
	return sums, nil
}

func (r *cashRepo) CreateCountTx(tx *gorm.DB, c *model.CashCount) error {
	// Details are inserted through the has-many association.
	return classify(tx.Create(c).Error)
}
