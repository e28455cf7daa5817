// models/report.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repayment plan kinds.
const (
	RepaymentPlanLumpSum     = "lump_sum"
	RepaymentPlanInstallment = "installment"
)

// Installment statuses. Stored values are a snapshot; the served status is
// always recomputed from due dates and accepted proofs, and transitions only
// forward (pending -> paid, or pending -> overdue -> paid).
const (
	InstallmentStatusPending = "pending"
	InstallmentStatusPaid    = "paid"
	InstallmentStatusOverdue = "overdue"
)

// Uploader roles allowed on a proof document.
const (
	UploaderRoleReporter = "reporter"
	UploaderRoleReportee = "reportee"
)

// Proof document statuses. Proofs are accepted at upload time; marking one
// invalid removes it from every derived view while keeping the row for audit.
const (
	ProofStatusAccepted = "accepted"
	ProofStatusInvalid  = "invalid"
)

// LoanInfo describes the loan a report is about.
type LoanInfo struct {
	Amount            float64   `json:"amount" bson:"amount"`
	Currency          string    `json:"currency,omitempty" bson:"currency,omitempty"`
	Purpose           string    `json:"purpose,omitempty" bson:"purpose,omitempty"`
	StartDate         time.Time `json:"startDate" bson:"startDate"`
	DueDate           time.Time `json:"dueDate" bson:"dueDate"`
	RepaymentPlan     string    `json:"repaymentPlan" bson:"repaymentPlan"`
	InstallmentCount  int       `json:"installmentCount,omitempty" bson:"installmentCount,omitempty"`
	InstallmentAmount float64   `json:"installmentAmount,omitempty" bson:"installmentAmount,omitempty"`
}

// Installment is one scheduled partial payment within a report's plan.
type Installment struct {
	Number  int       `json:"number" bson:"number"`
	Amount  float64   `json:"amount" bson:"amount"`
	DueDate time.Time `json:"dueDate" bson:"dueDate"`
	Status  string    `json:"status" bson:"status"`
}

// Report is a user-submitted record of a peer-to-peer loan.
type Report struct {
	ID            primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ReporterID    primitive.ObjectID `json:"reporterId" bson:"reporterId"`
	ReporteeName  string             `json:"reporteeName" bson:"reporteeName"`
	ReporteePhone string             `json:"reporteePhone,omitempty" bson:"reporteePhone,omitempty"`
	LoanInfo      *LoanInfo          `json:"loanInfo,omitempty" bson:"loanInfo,omitempty"`
	Installments  []Installment      `json:"installments,omitempty" bson:"installments,omitempty"`
	CreatedAt     time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// ProofDocument is uploaded evidence that a payment occurred, attached to a
// report and optionally to one specific installment. Proofs are appended over
// time and never deleted.
type ProofDocument struct {
	ID                primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ProofID           string             `json:"proofId" bson:"proofId"`
	ReportID          primitive.ObjectID `json:"reportId" bson:"reportId"`
	InstallmentNumber *int               `json:"installmentNumber,omitempty" bson:"installmentNumber,omitempty"`
	UploadedBy        string             `json:"uploadedBy" bson:"uploadedBy"`
	Amount            float64            `json:"amount" bson:"amount"`
	Description       string             `json:"description,omitempty" bson:"description,omitempty"`
	FileURL           string             `json:"fileUrl" bson:"fileUrl"`
	ThumbnailURL      string             `json:"thumbnailUrl,omitempty" bson:"thumbnailUrl,omitempty"`
	Status            string             `json:"status" bson:"status"`
	UploadedAt        time.Time          `json:"uploadedAt" bson:"uploadedAt"`
}

// RepaymentStatus is the aggregate view derived from a report's installments
// and its accepted proofs. Every field is recomputed on read; nothing here is
// stored.
type RepaymentStatus struct {
	ReportID         string     `json:"reportId"`
	RepaymentPlan    string     `json:"repaymentPlan"`
	TotalAmount      float64    `json:"totalAmount"`
	TotalPaid        float64    `json:"totalPaid"`
	RemainingBalance float64    `json:"remainingBalance"`
	OverdueAmount    float64    `json:"overdueAmount"`
	PaymentCount     int        `json:"paymentCount"`
	NextDueDate      *time.Time `json:"nextDueDate,omitempty"`
	LastPaymentDate  *time.Time `json:"lastPaymentDate,omitempty"`
}

// InstallmentScheduleEntry is one row of the served schedule, with its status
// computed from due date and proofs.
type InstallmentScheduleEntry struct {
	Number  int       `json:"number"`
	Amount  float64   `json:"amount"`
	DueDate time.Time `json:"dueDate"`
	Status  string    `json:"status"`
	ProofID string    `json:"proofId,omitempty"`
}

// CreateReportRequest is the body for report submission.
type CreateReportRequest struct {
	ReporteeName      string    `json:"reporteeName" validate:"required"`
	ReporteePhone     string    `json:"reporteePhone,omitempty"`
	Amount            float64   `json:"amount" validate:"required,gt=0"`
	Currency          string    `json:"currency,omitempty"`
	Purpose           string    `json:"purpose,omitempty"`
	StartDate         time.Time `json:"startDate" validate:"required"`
	DueDate           time.Time `json:"dueDate" validate:"required"`
	RepaymentPlan     string    `json:"repaymentPlan" validate:"required,oneof=lump_sum installment"`
	InstallmentCount  int       `json:"installmentCount,omitempty"`
	InstallmentAmount float64   `json:"installmentAmount,omitempty"`
}

// UpdateInstallmentAmountRequest is the body for the administrative
// per-installment amount override.
type UpdateInstallmentAmountRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}
