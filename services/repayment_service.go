package services

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/models"
)

// ReportStore is the persistence contract of the repayment ledger accessor.
type ReportStore interface {
	FindReport(ctx context.Context, id primitive.ObjectID) (*models.Report, error)
	ListProofs(ctx context.Context, reportID primitive.ObjectID) ([]models.ProofDocument, error)
	InsertProof(ctx context.Context, proof *models.ProofDocument) error
	// MarkProofInvalid flips a proof's status to invalid; it reports whether
	// a proof with that ID existed.
	MarkProofInvalid(ctx context.Context, proofID string) (bool, error)
	// UpdateInstallmentAmount overrides the stored per-installment amount on
	// the report's loan info; it reports whether a matching report with loan
	// info existed.
	UpdateInstallmentAmount(ctx context.Context, reportID primitive.ObjectID, amount float64) (bool, error)
}

// FileStore is the content store for proof documents.
type FileStore interface {
	// SaveProof persists file content and returns the serving URL plus a
	// thumbnail URL for image content (empty otherwise).
	SaveProof(data []byte, filename string) (fileURL, thumbnailURL string, err error)
	// Remove deletes previously stored content; used as compensating
	// cleanup when the metadata write fails.
	Remove(fileURL string) error
}

// ProofMetadata carries the caller-supplied fields of a proof upload.
type ProofMetadata struct {
	InstallmentNumber *int    `json:"installmentNumber,omitempty"`
	Amount            float64 `json:"amount"`
	Description       string  `json:"description,omitempty"`
}

// RepaymentService derives repayment status and installment schedules from
// persisted records and accepts new proof-of-payment submissions. Aggregates
// are recomputed from source records on every read; no field is incrementally
// mutated, so they cannot drift.
type RepaymentService struct {
	store  ReportStore
	files  FileStore
	logger *log.Logger
}

// NewRepaymentService creates a repayment ledger accessor.
func NewRepaymentService(store ReportStore, files FileStore) *RepaymentService {
	return &RepaymentService{
		store:  store,
		files:  files,
		logger: log.New(os.Stdout, "[REPAYMENT] ", log.LstdFlags),
	}
}

// GetStatus computes the aggregate repayment view for a report.
func (s *RepaymentService) GetStatus(ctx context.Context, reportID primitive.ObjectID) (*models.RepaymentStatus, error) {
	report, proofs, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return computeStatus(report, proofs, time.Now().UTC()), nil
}

// GetInstallmentSchedule returns the report's installments ordered by number,
// each with its status computed from due date and accepted proofs. Lump-sum
// plans have an empty schedule.
func (s *RepaymentService) GetInstallmentSchedule(ctx context.Context, reportID primitive.ObjectID) ([]models.InstallmentScheduleEntry, error) {
	report, proofs, err := s.load(ctx, reportID)
	if err != nil {
		return nil, err
	}
	return computeSchedule(report, proofs, time.Now().UTC()), nil
}

// UploadProof persists proof content and its metadata row as one logical
// unit. The installment status is not flipped here; it is derived at read
// time. On a metadata failure the stored content is removed so no orphan
// survives.
func (s *RepaymentService) UploadProof(ctx context.Context, reportID primitive.ObjectID, file []byte, filename string, meta ProofMetadata, uploadedBy string) (*models.ProofDocument, error) {
	if len(file) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrUpload)
	}
	if uploadedBy != models.UploaderRoleReporter && uploadedBy != models.UploaderRoleReportee {
		return nil, fmt.Errorf("%w: uploadedBy must be %q or %q", ErrUpload, models.UploaderRoleReporter, models.UploaderRoleReportee)
	}

	report, err := s.store.FindReport(ctx, reportID)
	if err != nil {
		return nil, fmt.Errorf("report lookup failed: %w", err)
	}
	if report == nil {
		return nil, fmt.Errorf("%w: report %s", ErrNotFound, reportID.Hex())
	}
	if meta.InstallmentNumber != nil && !hasInstallment(report, *meta.InstallmentNumber) {
		return nil, fmt.Errorf("%w: installment %d does not exist on report", ErrUpload, *meta.InstallmentNumber)
	}

	fileURL, thumbURL, err := s.files.SaveProof(file, filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	proof := &models.ProofDocument{
		ProofID:           uuid.New().String(),
		ReportID:          reportID,
		InstallmentNumber: meta.InstallmentNumber,
		UploadedBy:        uploadedBy,
		Amount:            meta.Amount,
		Description:       meta.Description,
		FileURL:           fileURL,
		ThumbnailURL:      thumbURL,
		Status:            models.ProofStatusAccepted,
		UploadedAt:        time.Now().UTC(),
	}

	if err := s.store.InsertProof(ctx, proof); err != nil {
		if rmErr := s.files.Remove(fileURL); rmErr != nil {
			s.logger.Printf("failed to remove orphaned proof file %s: %v", fileURL, rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpload, err)
	}

	return proof, nil
}

// InvalidateProof marks a previously accepted proof as invalid, so derived
// status and schedule views stop counting it. The stored content is kept for
// audit.
func (s *RepaymentService) InvalidateProof(ctx context.Context, proofID string) error {
	if proofID == "" {
		return fmt.Errorf("%w: proofId is required", ErrValidation)
	}
	matched, err := s.store.MarkProofInvalid(ctx, proofID)
	if err != nil {
		return fmt.Errorf("failed to invalidate proof: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: proof %s", ErrNotFound, proofID)
	}
	return nil
}

// UpdateInstallmentAmount is an administrative override of the stored
// per-installment amount.
func (s *RepaymentService) UpdateInstallmentAmount(ctx context.Context, reportID primitive.ObjectID, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	matched, err := s.store.UpdateInstallmentAmount(ctx, reportID, amount)
	if err != nil {
		return fmt.Errorf("failed to update installment amount: %w", err)
	}
	if !matched {
		return fmt.Errorf("%w: report %s has no loan info", ErrNotFound, reportID.Hex())
	}
	return nil
}

func (s *RepaymentService) load(ctx context.Context, reportID primitive.ObjectID) (*models.Report, []models.ProofDocument, error) {
	report, err := s.store.FindReport(ctx, reportID)
	if err != nil {
		return nil, nil, fmt.Errorf("report lookup failed: %w", err)
	}
	if report == nil {
		return nil, nil, fmt.Errorf("%w: report %s", ErrNotFound, reportID.Hex())
	}
	proofs, err := s.store.ListProofs(ctx, reportID)
	if err != nil {
		return nil, nil, fmt.Errorf("proof lookup failed: %w", err)
	}
	return report, proofs, nil
}

// computeSchedule derives the served installment schedule. An installment is
// paid when an accepted proof references it, overdue when its due date has
// passed unproven, pending otherwise. Overdue comparison uses the full UTC
// timestamp; no date truncation is applied.
func computeSchedule(report *models.Report, proofs []models.ProofDocument, now time.Time) []models.InstallmentScheduleEntry {
	paidBy := acceptedProofsByInstallment(proofs)

	entries := make([]models.InstallmentScheduleEntry, 0, len(report.Installments))
	for _, inst := range report.Installments {
		entry := models.InstallmentScheduleEntry{
			Number:  inst.Number,
			Amount:  inst.Amount,
			DueDate: inst.DueDate,
			Status:  models.InstallmentStatusPending,
		}
		if proof, ok := paidBy[inst.Number]; ok {
			entry.Status = models.InstallmentStatusPaid
			entry.ProofID = proof.ProofID
		} else if inst.DueDate.Before(now) {
			entry.Status = models.InstallmentStatusOverdue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Number < entries[j].Number })
	return entries
}

// computeStatus derives the aggregate repayment view as a pure function of
// the installment set and the accepted proofs.
func computeStatus(report *models.Report, proofs []models.ProofDocument, now time.Time) *models.RepaymentStatus {
	status := &models.RepaymentStatus{ReportID: report.ID.Hex()}
	if report.LoanInfo != nil {
		status.RepaymentPlan = report.LoanInfo.RepaymentPlan
	}

	accepted := make([]models.ProofDocument, 0, len(proofs))
	for _, p := range proofs {
		if p.Status == models.ProofStatusAccepted {
			accepted = append(accepted, p)
		}
	}
	status.PaymentCount = len(accepted)

	for _, p := range accepted {
		if status.LastPaymentDate == nil || p.UploadedAt.After(*status.LastPaymentDate) {
			t := p.UploadedAt
			status.LastPaymentDate = &t
		}
	}

	if status.RepaymentPlan == models.RepaymentPlanInstallment && len(report.Installments) > 0 {
		schedule := computeSchedule(report, accepted, now)
		for _, entry := range schedule {
			status.TotalAmount += entry.Amount
			switch entry.Status {
			case models.InstallmentStatusOverdue:
				status.OverdueAmount += entry.Amount
			case models.InstallmentStatusPending:
				if status.NextDueDate == nil || entry.DueDate.Before(*status.NextDueDate) {
					t := entry.DueDate
					status.NextDueDate = &t
				}
			}
		}
		// Paid sum counts every accepted proof whose installment the
		// schedule shows as paid; report-level proofs contribute to
		// paymentCount only.
		paid := acceptedProofsByInstallment(accepted)
		for _, p := range accepted {
			if p.InstallmentNumber != nil {
				if _, ok := paid[*p.InstallmentNumber]; ok {
					status.TotalPaid += p.Amount
				}
			}
		}
	} else {
		// Lump-sum plans: the whole loan amount is due at the report's due
		// date and every accepted proof counts toward it.
		if report.LoanInfo != nil {
			status.TotalAmount = report.LoanInfo.Amount
			for _, p := range accepted {
				status.TotalPaid += p.Amount
			}
			if status.TotalPaid < status.TotalAmount {
				if report.LoanInfo.DueDate.Before(now) {
					status.OverdueAmount = status.TotalAmount - status.TotalPaid
				} else {
					t := report.LoanInfo.DueDate
					status.NextDueDate = &t
				}
			}
		}
	}

	status.RemainingBalance = status.TotalAmount - status.TotalPaid
	if status.RemainingBalance < 0 {
		status.RemainingBalance = 0
	}

	return status
}

// acceptedProofsByInstallment keeps the earliest accepted proof per
// installment number.
func acceptedProofsByInstallment(proofs []models.ProofDocument) map[int]models.ProofDocument {
	byNumber := make(map[int]models.ProofDocument)
	for _, p := range proofs {
		if p.Status != models.ProofStatusAccepted || p.InstallmentNumber == nil {
			continue
		}
		n := *p.InstallmentNumber
		if existing, ok := byNumber[n]; !ok || p.UploadedAt.Before(existing.UploadedAt) {
			byNumber[n] = p
		}
	}
	return byNumber
}

func hasInstallment(report *models.Report, number int) bool {
	for _, inst := range report.Installments {
		if inst.Number == number {
			return true
		}
	}
	return false
}
