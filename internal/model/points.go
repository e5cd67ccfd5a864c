package model

import "time"

type PointsType string

const (
	PointsEarned   PointsType = "earned"
	PointsRedeemed PointsType = "redeemed"
	PointsAdjusted PointsType = "adjusted"
)

// Ledger sources.
const (
	SourceComplaintSubmission = "complaint_submission"
	SourceComplaintApproval   = "complaint_approval"
	SourceWithdrawal          = "withdrawal"
	SourceWithdrawalReversal  = "withdrawal_reversal"
	SourceAdminAdjustment     = "admin_adjustment"
)

// Reference types for PointsHistory.ReferenceType.
const (
	RefComplaint  = "complaint"
	RefWithdrawal = "withdrawal"
)

// PointsHistory is an immutable ledger entry. Points is positive for earned
// and redeemed entries (the magnitude moved) and signed for adjustments.
type PointsHistory struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"userId"`
	Type          PointsType `json:"type"`
	Points        int        `json:"points"`
	Description   string     `json:"description"`
	Source        string     `json:"source"`
	ReferenceType string     `json:"referenceType,omitempty"`
	ReferenceID   *int64     `json:"referenceId,omitempty"`
	AdminID       *int64     `json:"adminId,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// BalanceDrift reports a user whose cached balance disagrees with the ledger.
type BalanceDrift struct {
	UserID      int64 `json:"userId"`
	Balance     int   `json:"balance"`
	LedgerTotal int   `json:"ledgerTotal"`
}
