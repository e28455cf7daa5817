package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/models"
)

// memReportStore is an in-memory ReportStore.
type memReportStore struct {
	mu      sync.Mutex
	reports map[primitive.ObjectID]*models.Report
	proofs  []models.ProofDocument

	insertProofErr error
}

func newMemReportStore() *memReportStore {
	return &memReportStore{reports: make(map[primitive.ObjectID]*models.Report)}
}

func (m *memReportStore) addReport(r *models.Report) primitive.ObjectID {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	m.reports[r.ID] = r
	return r.ID
}

func (m *memReportStore) FindReport(_ context.Context, id primitive.ObjectID) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (m *memReportStore) ListProofs(_ context.Context, reportID primitive.ObjectID) ([]models.ProofDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ProofDocument
	for _, p := range m.proofs {
		if p.ReportID == reportID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memReportStore) InsertProof(_ context.Context, proof *models.ProofDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertProofErr != nil {
		return m.insertProofErr
	}
	m.proofs = append(m.proofs, *proof)
	return nil
}

func (m *memReportStore) MarkProofInvalid(_ context.Context, proofID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.proofs {
		if m.proofs[i].ProofID == proofID {
			m.proofs[i].Status = models.ProofStatusInvalid
			return true, nil
		}
	}
	return false, nil
}

func (m *memReportStore) UpdateInstallmentAmount(_ context.Context, reportID primitive.ObjectID, amount float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok || r.LoanInfo == nil {
		return false, nil
	}
	r.LoanInfo.InstallmentAmount = amount
	for i := range r.Installments {
		r.Installments[i].Amount = amount
	}
	return true, nil
}

// memFileStore is an in-memory FileStore.
type memFileStore struct {
	mu      sync.Mutex
	saved   map[string][]byte
	saveErr error
}

func newMemFileStore() *memFileStore {
	return &memFileStore{saved: make(map[string][]byte)}
}

func (m *memFileStore) SaveProof(data []byte, filename string) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", "", m.saveErr
	}
	url := fmt.Sprintf("/uploads/proofs/%d_%s", len(m.saved), filename)
	m.saved[url] = data
	return url, "", nil
}

func (m *memFileStore) Remove(fileURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.saved, fileURL)
	return nil
}

func (m *memFileStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func installmentReport(amounts []float64, dueDates []time.Time) *models.Report {
	var total float64
	report := &models.Report{
		ReporterID:   primitive.NewObjectID(),
		ReporteeName: "Budi Santoso",
		LoanInfo: &models.LoanInfo{
			RepaymentPlan:    models.RepaymentPlanInstallment,
			InstallmentCount: len(amounts),
		},
	}
	for i, amount := range amounts {
		total += amount
		report.Installments = append(report.Installments, models.Installment{
			Number:  i + 1,
			Amount:  amount,
			DueDate: dueDates[i],
			Status:  models.InstallmentStatusPending,
		})
	}
	report.LoanInfo.Amount = total
	return report
}

func acceptedProof(reportID primitive.ObjectID, installment int, amount float64, at time.Time) models.ProofDocument {
	n := installment
	return models.ProofDocument{
		ProofID:           primitive.NewObjectID().Hex(),
		ReportID:          reportID,
		InstallmentNumber: &n,
		UploadedBy:        models.UploaderRoleReportee,
		Amount:            amount,
		FileURL:           "/uploads/proofs/receipt.jpg",
		Status:            models.ProofStatusAccepted,
		UploadedAt:        at,
	}
}

func TestGetStatusInstallmentPlan(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(30 * 24 * time.Hour)
	reportID := store.addReport(installmentReport([]float64{100, 100}, []time.Time{past, future}))

	paidAt := now.Add(-24 * time.Hour)
	store.proofs = append(store.proofs, acceptedProof(reportID, 1, 100, paidAt))

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)

	require.Equal(t, models.RepaymentPlanInstallment, status.RepaymentPlan)
	require.Equal(t, 200.0, status.TotalAmount)
	require.Equal(t, 100.0, status.TotalPaid)
	require.Equal(t, 100.0, status.RemainingBalance)
	require.Equal(t, 0.0, status.OverdueAmount)
	require.Equal(t, 1, status.PaymentCount)
	require.NotNil(t, status.NextDueDate)
	require.True(t, status.NextDueDate.Equal(future))
	require.NotNil(t, status.LastPaymentDate)
	require.True(t, status.LastPaymentDate.Equal(paidAt))
}

func TestGetStatusOverdueInstallment(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(30 * 24 * time.Hour)
	reportID := store.addReport(installmentReport([]float64{100, 150}, []time.Time{past, future}))

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)

	require.Equal(t, 250.0, status.TotalAmount)
	require.Equal(t, 0.0, status.TotalPaid)
	require.Equal(t, 250.0, status.RemainingBalance)
	require.Equal(t, 100.0, status.OverdueAmount)
	require.Equal(t, 0, status.PaymentCount)
	require.Nil(t, status.LastPaymentDate)
}

func TestGetStatusOverpaymentFloorsBalance(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	future := now.Add(30 * 24 * time.Hour)
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{future}))

	store.proofs = append(store.proofs,
		acceptedProof(reportID, 1, 100, now.Add(-2*time.Hour)),
		acceptedProof(reportID, 1, 80, now.Add(-time.Hour)),
	)

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)

	require.Equal(t, 100.0, status.TotalAmount)
	require.Equal(t, 180.0, status.TotalPaid)
	require.Equal(t, 0.0, status.RemainingBalance)
	require.Equal(t, 2, status.PaymentCount)
}

func TestGetStatusIgnoresInvalidProofs(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	future := now.Add(30 * 24 * time.Hour)
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{future}))

	proof := acceptedProof(reportID, 1, 100, now)
	proof.Status = models.ProofStatusInvalid
	store.proofs = append(store.proofs, proof)

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)
	require.Equal(t, 0.0, status.TotalPaid)
	require.Equal(t, 0, status.PaymentCount)
	require.Nil(t, status.LastPaymentDate)
}

func TestGetStatusLumpSumPlan(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	due := now.Add(-24 * time.Hour)
	reportID := store.addReport(&models.Report{
		ReporterID:   primitive.NewObjectID(),
		ReporteeName: "Budi Santoso",
		LoanInfo: &models.LoanInfo{
			Amount:        500,
			RepaymentPlan: models.RepaymentPlanLumpSum,
			DueDate:       due,
		},
	})

	proof := acceptedProof(reportID, 0, 200, now.Add(-48*time.Hour))
	proof.InstallmentNumber = nil
	store.proofs = append(store.proofs, proof)

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)

	require.Equal(t, models.RepaymentPlanLumpSum, status.RepaymentPlan)
	require.Equal(t, 500.0, status.TotalAmount)
	require.Equal(t, 200.0, status.TotalPaid)
	require.Equal(t, 300.0, status.RemainingBalance)
	require.Equal(t, 300.0, status.OverdueAmount)
	require.Nil(t, status.NextDueDate)
}

func TestGetStatusUnknownReport(t *testing.T) {
	svc := NewRepaymentService(newMemReportStore(), newMemFileStore())

	_, err := svc.GetStatus(context.Background(), primitive.NewObjectID())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestScheduleStatuses(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	past := now.Add(-48 * time.Hour)
	future := now.Add(30 * 24 * time.Hour)
	reportID := store.addReport(installmentReport([]float64{100, 100, 100}, []time.Time{past.Add(-24 * time.Hour), past, future}))

	store.proofs = append(store.proofs, acceptedProof(reportID, 1, 100, now.Add(-time.Hour)))

	schedule, err := svc.GetInstallmentSchedule(context.Background(), reportID)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	require.Equal(t, models.InstallmentStatusPaid, schedule[0].Status)
	require.NotEmpty(t, schedule[0].ProofID)
	require.Equal(t, models.InstallmentStatusOverdue, schedule[1].Status)
	require.Empty(t, schedule[1].ProofID)
	require.Equal(t, models.InstallmentStatusPending, schedule[2].Status)

	for i, entry := range schedule {
		require.Equal(t, i+1, entry.Number)
	}
}

func TestScheduleEmptyForLumpSum(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	reportID := store.addReport(&models.Report{
		ReporterID: primitive.NewObjectID(),
		LoanInfo: &models.LoanInfo{
			Amount:        500,
			RepaymentPlan: models.RepaymentPlanLumpSum,
			DueDate:       time.Now().UTC().Add(24 * time.Hour),
		},
	})

	schedule, err := svc.GetInstallmentSchedule(context.Background(), reportID)
	require.NoError(t, err)
	require.Empty(t, schedule)
}

func TestUploadProofThenScheduleShowsPaid(t *testing.T) {
	store := newMemReportStore()
	files := newMemFileStore()
	svc := NewRepaymentService(store, files)

	now := time.Now().UTC()
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{now.Add(-time.Hour)}))

	n := 1
	proof, err := svc.UploadProof(context.Background(), reportID, []byte("receipt"), "receipt.jpg",
		ProofMetadata{InstallmentNumber: &n, Amount: 100}, models.UploaderRoleReportee)
	require.NoError(t, err)
	require.NotEmpty(t, proof.ProofID)
	require.Equal(t, models.ProofStatusAccepted, proof.Status)
	require.Equal(t, 1, files.count())

	schedule, err := svc.GetInstallmentSchedule(context.Background(), reportID)
	require.NoError(t, err)
	require.Equal(t, models.InstallmentStatusPaid, schedule[0].Status)
	require.Equal(t, proof.ProofID, schedule[0].ProofID)
}

func TestUploadProofRejectsEmptyFile(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{time.Now().UTC()}))

	_, err := svc.UploadProof(context.Background(), reportID, nil, "receipt.jpg", ProofMetadata{}, models.UploaderRoleReporter)
	require.ErrorIs(t, err, ErrUpload)
}

func TestUploadProofRejectsUnknownRole(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{time.Now().UTC()}))

	_, err := svc.UploadProof(context.Background(), reportID, []byte("x"), "receipt.jpg", ProofMetadata{}, "admin")
	require.ErrorIs(t, err, ErrUpload)
}

func TestUploadProofRejectsUnknownInstallment(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{time.Now().UTC()}))

	n := 7
	_, err := svc.UploadProof(context.Background(), reportID, []byte("x"), "receipt.jpg",
		ProofMetadata{InstallmentNumber: &n}, models.UploaderRoleReporter)
	require.ErrorIs(t, err, ErrUpload)
}

func TestUploadProofUnknownReport(t *testing.T) {
	svc := NewRepaymentService(newMemReportStore(), newMemFileStore())

	_, err := svc.UploadProof(context.Background(), primitive.NewObjectID(), []byte("x"), "receipt.jpg",
		ProofMetadata{}, models.UploaderRoleReporter)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUploadProofCompensatesOnMetadataFailure(t *testing.T) {
	store := newMemReportStore()
	store.insertProofErr = errors.New("write concern failed")
	files := newMemFileStore()
	svc := NewRepaymentService(store, files)
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{time.Now().UTC()}))

	_, err := svc.UploadProof(context.Background(), reportID, []byte("x"), "receipt.jpg",
		ProofMetadata{}, models.UploaderRoleReporter)
	require.ErrorIs(t, err, ErrUpload)
	require.Equal(t, 0, files.count())
}

func TestInvalidateProofDropsItFromViews(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	reportID := store.addReport(installmentReport([]float64{100}, []time.Time{now.Add(24 * time.Hour)}))
	proof := acceptedProof(reportID, 1, 100, now)
	store.proofs = append(store.proofs, proof)

	require.NoError(t, svc.InvalidateProof(context.Background(), proof.ProofID))

	schedule, err := svc.GetInstallmentSchedule(context.Background(), reportID)
	require.NoError(t, err)
	require.Equal(t, models.InstallmentStatusPending, schedule[0].Status)

	require.ErrorIs(t, svc.InvalidateProof(context.Background(), ""), ErrValidation)
}

func TestInvalidateProofUnknownID(t *testing.T) {
	svc := NewRepaymentService(newMemReportStore(), newMemFileStore())

	err := svc.InvalidateProof(context.Background(), primitive.NewObjectID().Hex())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateInstallmentAmount(t *testing.T) {
	store := newMemReportStore()
	svc := NewRepaymentService(store, newMemFileStore())

	now := time.Now().UTC()
	reportID := store.addReport(installmentReport([]float64{100, 100}, []time.Time{now.Add(24 * time.Hour), now.Add(48 * time.Hour)}))

	require.NoError(t, svc.UpdateInstallmentAmount(context.Background(), reportID, 125))

	status, err := svc.GetStatus(context.Background(), reportID)
	require.NoError(t, err)
	require.Equal(t, 250.0, status.TotalAmount)
}

func TestUpdateInstallmentAmountValidation(t *testing.T) {
	svc := NewRepaymentService(newMemReportStore(), newMemFileStore())

	err := svc.UpdateInstallmentAmount(context.Background(), primitive.NewObjectID(), 0)
	require.ErrorIs(t, err, ErrValidation)

	err = svc.UpdateInstallmentAmount(context.Background(), primitive.NewObjectID(), 100)
	require.ErrorIs(t, err, ErrNotFound)
}
