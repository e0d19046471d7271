package risk

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("borrower not found")
	ErrNoActiveBlock     = errors.New("borrower has no active block")
	ErrInvalidTransition = errors.New("invalid block state transition")
	ErrBorrowerBlocked   = errors.New("borrower is blocked")
)

type BlockStatus string

const (
	BlockActive           BlockStatus = "active"
	BlockDebtCleared      BlockStatus = "debt_cleared"
	BlockRestrictionEnded BlockStatus = "restriction_ended"
	BlockAdminUnblocked   BlockStatus = "admin_unblocked"
)

const (
	RatingNeutral  = "neutral"
	RatingHighRisk = "high_risk"
)

// Table: borrowers. IsBlocked mirrors the block records and is written only
// by the risk usecase.
type Borrower struct {
	ID                uint64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	BorrowerID        string     `gorm:"column:borrower_id;size:32;not null;uniqueIndex:ux_borrowers_borrower_id" json:"borrower_id"`
	IsBlocked         bool       `gorm:"column:is_blocked;not null;default:false" json:"is_blocked"`
	BlockedReason     *string    `gorm:"column:blocked_reason;type:text" json:"blocked_reason,omitempty"`
	DebtClearedAt     *time.Time `gorm:"column:debt_cleared_at" json:"debt_cleared_at,omitempty"`
	RestrictionEndsAt *time.Time `gorm:"column:restriction_ends_at" json:"restriction_ends_at,omitempty"`
	DefaultCount      int        `gorm:"column:default_count;not null;default:0" json:"default_count"`
	BorrowerRating    string     `gorm:"column:borrower_rating;size:16;not null;default:neutral" json:"borrower_rating"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Borrower) TableName() string { return "borrowers" }

// Table: borrower_blocks
type Block struct {
	ID         uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	BlockID    string `gorm:"column:block_id;size:32;not null;uniqueIndex:ux_borrower_blocks_block_id" json:"block_id"`
	BorrowerID string `gorm:"column:borrower_id;size:32;not null;index" json:"borrower_id"`
	// LoanID is the public id of the loan whose default created the block.
	LoanID              string          `gorm:"column:loan_id;size:32;not null" json:"loan_id"`
	TotalDebtAtBlock    decimal.Decimal `gorm:"column:total_debt_at_block;type:decimal(18,2);not null" json:"total_debt_at_block"`
	BlockedReason       string          `gorm:"column:blocked_reason;type:text;not null" json:"blocked_reason"`
	DebtClearedAt       *time.Time      `gorm:"column:debt_cleared_at" json:"debt_cleared_at,omitempty"`
	RestrictionEndsAt   *time.Time      `gorm:"column:restriction_ends_at;index" json:"restriction_ends_at,omitempty"`
	RestrictionLiftedAt *time.Time      `gorm:"column:restriction_lifted_at" json:"restriction_lifted_at,omitempty"`
	UnblockedBy         *string         `gorm:"column:unblocked_by;size:32" json:"unblocked_by,omitempty"`
	Status              BlockStatus     `gorm:"column:status;size:24;not null;index" json:"status"`
	// ActiveGuard holds the borrower id only while Status is active; the
	// unique index keeps one active block per borrower.
	ActiveGuard *string   `gorm:"column:active_guard;size:32;uniqueIndex:ux_borrower_blocks_active" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Block) TableName() string { return "borrower_blocks" }
