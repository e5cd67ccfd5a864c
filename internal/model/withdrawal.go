package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalApproved   WithdrawalStatus = "approved"
	WithdrawalRejected   WithdrawalStatus = "rejected"
)

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalPending, WithdrawalProcessing, WithdrawalApproved, WithdrawalRejected:
		return true
	}
	return false
}

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalApproved || s == WithdrawalRejected
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s WithdrawalStatus) CanTransitionTo(next WithdrawalStatus) bool {
	switch s {
	case WithdrawalPending:
		return next == WithdrawalProcessing || next.Terminal()
	case WithdrawalProcessing:
		return next.Terminal()
	}
	return false
}

type WithdrawalMethod string

const (
	MethodUPI  WithdrawalMethod = "UPI"
	MethodBank WithdrawalMethod = "Bank Transfer"
)

func (m WithdrawalMethod) Valid() bool {
	return m == MethodUPI || m == MethodBank
}

// PaymentDetails holds the method-specific payout destination.
type PaymentDetails struct {
	UPIID         string `json:"upiId,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	BankName      string `json:"bankName,omitempty"`
}

type Withdrawal struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"userId"`
	Points         int              `json:"points"`
	Amount         decimal.Decimal  `json:"amount"`
	Method         WithdrawalMethod `json:"method"`
	PaymentDetails PaymentDetails   `json:"paymentDetails"`
	Status         WithdrawalStatus `json:"status"`
	Reason         string           `json:"reason"`
	Description    string           `json:"description"`
	TransactionID  string           `json:"transactionId"`
	ProcessedBy    *int64           `json:"processedBy"`
	Version        int              `json:"-"`
	Timeline       []TimelineEntry  `json:"timeline,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}
