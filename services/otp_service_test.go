package services

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/goodpass/goodpass_backend/models"
)

// memOTPStore is an in-memory OTPStore for exercising the service without a
// database.
type memOTPStore struct {
	mu       sync.Mutex
	records  []*models.OtpRecord
	verified map[primitive.ObjectID]bool

	insertErr error
}

func newMemOTPStore() *memOTPStore {
	return &memOTPStore{verified: make(map[primitive.ObjectID]bool)}
}

func (m *memOTPStore) Insert(_ context.Context, rec *models.OtpRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	cp := *rec
	cp.ID = primitive.NewObjectID()
	m.records = append(m.records, &cp)
	return nil
}

func (m *memOTPStore) FindNewestActive(_ context.Context, phone string, now time.Time) (*models.OtpRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*models.OtpRecord
	for _, r := range m.records {
		if r.Phone == phone && !r.Verified && r.ExpiresAt.After(now) {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})
	cp := *candidates[0]
	return &cp, nil
}

func (m *memOTPStore) MarkVerified(_ context.Context, id primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && !r.Verified {
			r.Verified = true
			return true, nil
		}
	}
	return false, nil
}

func (m *memOTPStore) SetPhoneVerified(_ context.Context, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[userID] = true
	return nil
}

func (m *memOTPStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*models.OtpRecord
	var deleted int64
	for _, r := range m.records {
		if r.ExpiresAt.After(now) {
			kept = append(kept, r)
		} else {
			deleted++
		}
	}
	m.records = kept
	return deleted, nil
}

func (m *memOTPStore) phoneVerified(userID primitive.ObjectID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verified[userID]
}

func (m *memOTPStore) expireAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	past := time.Now().UTC().Add(-time.Minute)
	for _, r := range m.records {
		r.ExpiresAt = past
	}
}

func TestIssueGeneratesSixDigitCode(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)

	result, err := svc.Issue(context.Background(), "+6281234567890", nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), result.Code)
	require.False(t, result.Degraded)

	expected := time.Now().UTC().Add(10 * time.Minute)
	require.WithinDuration(t, expected, result.ExpiresAt, 5*time.Second)
}

func TestIssueRequiresPhone(t *testing.T) {
	svc := NewOTPService(newMemOTPStore(), nil)

	_, err := svc.Issue(context.Background(), "", nil, models.OtpTypePhoneVerification)
	require.ErrorIs(t, err, ErrValidation)
}

func TestIssueDegradedOnStoreFailure(t *testing.T) {
	store := newMemOTPStore()
	store.insertErr = errors.New("write concern failed")
	svc := NewOTPService(store, nil)

	result, err := svc.Issue(context.Background(), "+6281234567890", nil, models.OtpTypePhoneVerification)
	require.ErrorIs(t, err, ErrConfiguration)
	require.NotNil(t, result)
	require.True(t, result.Degraded)
	require.Regexp(t, regexp.MustCompile(`^[1-9]\d{5}$`), result.Code)
}

func TestIssueDegradedWithoutStore(t *testing.T) {
	svc := NewOTPService(nil, nil)

	result, err := svc.Issue(context.Background(), "+6281234567890", nil, models.OtpTypeSignIn)
	require.ErrorIs(t, err, ErrConfiguration)
	require.True(t, result.Degraded)
	require.NotEmpty(t, result.Code)
}

func TestVerifyConsumesCodeExactlyOnce(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	result, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), phone, result.Code, nil))

	err = svc.Verify(context.Background(), phone, result.Code, nil)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestVerifyRejectsWrongCode(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	result, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	wrong := "123456"
	if wrong == result.Code {
		wrong = "654321"
	}
	err = svc.Verify(context.Background(), phone, wrong, nil)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)

	// The wrong attempt must not consume the real code.
	require.NoError(t, svc.Verify(context.Background(), phone, result.Code, nil))
}

func TestVerifyRejectsExpiredCode(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	result, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	store.expireAll()

	err = svc.Verify(context.Background(), phone, result.Code, nil)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestVerifyRejectsUnknownPhone(t *testing.T) {
	svc := NewOTPService(newMemOTPStore(), nil)

	err := svc.Verify(context.Background(), "+6289999999999", "123456", nil)
	require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
}

func TestVerifyRequiresPhoneAndCode(t *testing.T) {
	svc := NewOTPService(newMemOTPStore(), nil)

	require.ErrorIs(t, svc.Verify(context.Background(), "", "123456", nil), ErrValidation)
	require.ErrorIs(t, svc.Verify(context.Background(), "+628123", "", nil), ErrValidation)
}

func TestNewestCodeSupersedesOlder(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	first, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	// Ensure distinct creation timestamps so ordering is deterministic.
	store.mu.Lock()
	store.records[0].CreatedAt = store.records[0].CreatedAt.Add(-time.Second)
	store.mu.Unlock()

	second, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	if first.Code != second.Code {
		err = svc.Verify(context.Background(), phone, first.Code, nil)
		require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
	}
	require.NoError(t, svc.Verify(context.Background(), phone, second.Code, nil))
}

func TestVerifyFlagsProfileFromCallerID(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"
	userID := primitive.NewObjectID()

	result, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), phone, result.Code, &userID))
	require.True(t, store.phoneVerified(userID))
}

func TestVerifyFlagsProfileFromIssuedRecord(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"
	userID := primitive.NewObjectID()

	result, err := svc.Issue(context.Background(), phone, &userID, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	require.NoError(t, svc.Verify(context.Background(), phone, result.Code, nil))
	require.True(t, store.phoneVerified(userID))
}

func TestConcurrentVerifySingleWinner(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	result, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.Verify(context.Background(), phone, result.Code, nil)
		}()
	}
	wg.Wait()
	close(errs)

	var successes int
	for err := range errs {
		if err == nil {
			successes++
		} else {
			require.ErrorIs(t, err, ErrInvalidOrExpiredCode)
		}
	}
	require.Equal(t, 1, successes)
}

func TestCleanupDeletesExpiredOnly(t *testing.T) {
	store := newMemOTPStore()
	svc := NewOTPService(store, nil)
	phone := "+6281234567890"

	_, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)
	store.expireAll()

	fresh, err := svc.Issue(context.Background(), phone, nil, models.OtpTypePhoneVerification)
	require.NoError(t, err)

	deleted, err := store.DeleteExpired(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	require.NoError(t, svc.Verify(context.Background(), phone, fresh.Code, nil))
}
