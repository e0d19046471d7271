package risk

import (
	"time"

	domain "p2p-lending-engine/internal/domain/risk"
)

type SweepReport struct {
	Due       int `json:"due"`
	Ended     int `json:"ended"`
	Unblocked int `json:"unblocked"`
	Errors    int `json:"errors"`
}

// StatusDTO answers the blocking-status query.
type StatusDTO struct {
	BorrowerID        string         `json:"borrower_id"`
	IsBlocked         bool           `json:"is_blocked"`
	BlockedReason     *string        `json:"blocked_reason,omitempty"`
	DebtClearedAt     *time.Time     `json:"debt_cleared_at,omitempty"`
	RestrictionEndsAt *time.Time     `json:"restriction_ends_at,omitempty"`
	DefaultCount      int            `json:"default_count"`
	BorrowerRating    string         `json:"borrower_rating"`
	Blocks            []domain.Block `json:"blocks"`
}
