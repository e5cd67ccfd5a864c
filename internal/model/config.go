package model

import "time"

// SystemConfig keys.
const (
	ConfigSubmissionPoints    = "points.complaint_submission"
	ConfigApprovalPoints      = "points.complaint_approval"
	ConfigMinimumWithdrawal   = "withdrawal.minimum_points"
	ConfigPointValue          = "withdrawal.point_value"
	ConfigProcessingTime      = "withdrawal.processing_time"
	ConfigComplaintTypes      = "complaint.types"
	ConfigAnonymousComplaints = "feature.anonymous_complaints"
	ConfigWithdrawalsEnabled  = "feature.withdrawals"
)

type SystemConfig struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type OTPSession struct {
	ID         string     `json:"id"`
	Mobile     string     `json:"mobile"`
	CodeHash   string     `json:"-"`
	Attempts   int        `json:"attempts"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	VerifiedAt *time.Time `json:"verifiedAt"`
	CreatedAt  time.Time  `json:"createdAt"`
}
