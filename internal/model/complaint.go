package model

import (
	"encoding/json"
	"time"
)

type ComplaintStatus string

const (
	ComplaintPending     ComplaintStatus = "pending"
	ComplaintUnderReview ComplaintStatus = "under_review"
	ComplaintApproved    ComplaintStatus = "approved"
	ComplaintRejected    ComplaintStatus = "rejected"
)

func (s ComplaintStatus) Valid() bool {
	switch s {
	case ComplaintPending, ComplaintUnderReview, ComplaintApproved, ComplaintRejected:
		return true
	}
	return false
}

func (s ComplaintStatus) Terminal() bool {
	return s == ComplaintApproved || s == ComplaintRejected
}

// CanTransitionTo reports whether next is reachable from s in one step.
// pending may skip under_review; terminal states go nowhere.
func (s ComplaintStatus) CanTransitionTo(next ComplaintStatus) bool {
	switch s {
	case ComplaintPending:
		return next == ComplaintUnderReview || next.Terminal()
	case ComplaintUnderReview:
		return next.Terminal()
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Owner is who a complaint belongs to: a registered user or nobody.
// The zero value is anonymous.
type Owner struct {
	userID *int64
}

func Anonymous() Owner { return Owner{} }

func OwnedBy(userID int64) Owner { return Owner{userID: &userID} }

func (o Owner) IsAnonymous() bool { return o.userID == nil }

// UserID returns the owning user and true, or 0 and false when anonymous.
func (o Owner) UserID() (int64, bool) {
	if o.userID == nil {
		return 0, false
	}
	return *o.userID, true
}

func (o Owner) MarshalJSON() ([]byte, error) {
	if o.userID == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.userID)
}

// TimelineEntry is one row of a complaint's or withdrawal's audit trail.
type TimelineEntry struct {
	ID          int64     `json:"id"`
	Action      string    `json:"action"`
	Status      string    `json:"status"`
	Reason      string    `json:"reason,omitempty"`
	Description string    `json:"description,omitempty"`
	AdminID     *int64    `json:"adminId,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Timeline actions.
const (
	ActionComplaintSubmitted  = "Complaint Submitted"
	ActionStatusUpdate        = "status_update"
	ActionAssigned            = "assigned"
	ActionWithdrawalRequested = "Withdrawal Requested"
)

type Complaint struct {
	ID               int64             `json:"id"`
	Token            string            `json:"token"`
	Type             string            `json:"type"`
	Description      string            `json:"description"`
	Stop             string            `json:"stop"`
	Location         string            `json:"location"`
	IncidentAt       *time.Time        `json:"dateTime"`
	Evidence         []string          `json:"evidence"`
	DynamicFields    map[string]string `json:"dynamicFields"`
	Status           ComplaintStatus   `json:"status"`
	Priority         Priority          `json:"priority"`
	AssignedTo       *int64            `json:"assignedTo"`
	Points           int               `json:"points"`
	Owner            Owner             `json:"userId"`
	IsAnonymous      bool              `json:"isAnonymous"`
	Reason           string            `json:"reason"`
	AdminDescription string            `json:"adminDescription"`
	Version          int               `json:"-"`
	Timeline         []TimelineEntry   `json:"timeline,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}
