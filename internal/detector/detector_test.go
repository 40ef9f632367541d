package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/skillancer/securedesk/internal/domain"
	"github.com/skillancer/securedesk/internal/infra"
)

// --- фейки коллабораторов ---

type fakeRepo struct {
	created   []domain.SecurityViolation
	createErr error
	reviewed  *domain.SecurityViolation
}

func (r *fakeRepo) Create(_ context.Context, v *domain.SecurityViolation) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, *v)
	return nil
}

func (r *fakeRepo) Review(_ context.Context, id, reviewer, notes string) (*domain.SecurityViolation, error) {
	if r.reviewed == nil {
		return nil, ErrViolationNotFound
	}
	v := *r.reviewed
	v.Reviewed = true
	v.ReviewedBy = reviewer
	v.ReviewNotes = notes
	return &v, nil
}

func (r *fakeRepo) List(_ context.Context, _ domain.ViolationFilter) ([]domain.SecurityViolation, int64, error) {
	return r.created, int64(len(r.created)), nil
}

func (r *fakeRepo) Summary(_ context.Context, _ string, _ time.Time) (*domain.ViolationSummary, error) {
	return &domain.ViolationSummary{Total: int64(len(r.created))}, nil
}

type fakeCounters struct {
	session int64
	tenant  int64
	err     error
}

func (c *fakeCounters) IncrementSession(_ context.Context, _ string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.session++
	return c.session, nil
}

func (c *fakeCounters) IncrementTenant(_ context.Context, _ string) (int64, error) {
	c.tenant++
	return c.tenant, nil
}

func (c *fakeCounters) SessionCount(_ context.Context, _ string) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	return c.session, nil
}

type fakeAlerts struct {
	published []domain.SecurityViolation
}

func (a *fakeAlerts) PublishAlert(_ context.Context, v domain.SecurityViolation) error {
	a.published = append(a.published, v)
	return nil
}

type fakeEnforcer struct {
	terminated []string
	suspended  []string
	incidents  []string
	warned     []string
}

func (e *fakeEnforcer) TerminateSession(_ context.Context, sessionID, _ string) error {
	e.terminated = append(e.terminated, sessionID)
	return nil
}

func (e *fakeEnforcer) SuspendUser(_ context.Context, userID, _ string) error {
	e.suspended = append(e.suspended, userID)
	return nil
}

func (e *fakeEnforcer) OpenIncident(_ context.Context, v domain.SecurityViolation) error {
	e.incidents = append(e.incidents, v.ID)
	return nil
}

func (e *fakeEnforcer) WarnSession(_ context.Context, sessionID string) error {
	e.warned = append(e.warned, sessionID)
	return nil
}

func newTestDetector(repo *fakeRepo, counters *fakeCounters, alerts *fakeAlerts, enf *fakeEnforcer) *Detector {
	return NewDetector(repo, counters, alerts, enf,
		infra.DetectorConfig{SessionWarningCount: 3, SessionTerminateCount: 10, UserSuspendCount: 25},
		infra.NewMetrics(nil), zap.NewNop())
}

// --- классификационные таблицы ---

func TestDetermineSeverity(t *testing.T) {
	tests := []struct {
		vtype domain.ViolationType
		want  domain.Severity
	}{
		{domain.ViolationPolicyBypass, domain.SeverityCritical},
		{domain.ViolationSuspicious, domain.SeverityCritical},
		{domain.ViolationScreenCapture, domain.SeverityHigh},
		{domain.ViolationFileDownload, domain.SeverityHigh},
		{domain.ViolationClipboardCopy, domain.SeverityMedium},
		{domain.ViolationUSBDevice, domain.SeverityMedium},
		{domain.ViolationIdleTimeout, domain.SeverityLow},
		{domain.ViolationPrintAttempt, domain.SeverityLow},
		{domain.ViolationType("FUTURE_TYPE"), domain.SeverityMedium},
	}

	for _, tc := range tests {
		t.Run(string(tc.vtype), func(t *testing.T) {
			require.Equal(t, tc.want, DetermineSeverity(tc.vtype))
		})
	}
}

func TestDetermineAction(t *testing.T) {
	tests := []struct {
		name     string
		vtype    domain.ViolationType
		severity domain.Severity
		want     domain.ViolationAction
	}{
		{"bypass always incident", domain.ViolationPolicyBypass, domain.SeverityCritical, domain.ActionIncidentCreated},
		{"suspicious always incident", domain.ViolationSuspicious, domain.SeverityCritical, domain.ActionIncidentCreated},
		{"critical severity terminates", domain.ViolationClipboardCopy, domain.SeverityCritical, domain.ActionSessionTerminated},
		{"clipboard blocked", domain.ViolationClipboardCopy, domain.SeverityMedium, domain.ActionBlocked},
		{"usb blocked", domain.ViolationUSBDevice, domain.SeverityMedium, domain.ActionBlocked},
		{"idle timeout terminates", domain.ViolationIdleTimeout, domain.SeverityLow, domain.ActionSessionTerminated},
		{"unknown type logged", domain.ViolationType("FUTURE_TYPE"), domain.SeverityLow, domain.ActionLogged},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DetermineAction(tc.vtype, tc.severity))
		})
	}
}

// --- пороги эскалации ---

func TestCheckThresholds_DescendingStrictness(t *testing.T) {
	tests := []struct {
		count      int64
		wantAction domain.ViolationAction
		wantHit    bool
	}{
		{2, "", false},
		{3, domain.ActionWarned, true},
		{9, domain.ActionWarned, true},
		{10, domain.ActionSessionTerminated, true},
		{24, domain.ActionSessionTerminated, true},
		{25, domain.ActionUserSuspended, true},
		{26, domain.ActionUserSuspended, true},
	}

	for _, tc := range tests {
		counters := &fakeCounters{session: tc.count}
		d := newTestDetector(&fakeRepo{}, counters, &fakeAlerts{}, &fakeEnforcer{})

		action, hit, err := d.CheckThresholds(context.Background(), "s-1")
		require.NoError(t, err)
		require.Equal(t, tc.wantHit, hit, "count=%d", tc.count)
		require.Equal(t, tc.wantAction, action, "count=%d", tc.count)
	}
}

// --- RecordViolation ---

func TestRecordViolation_PersistsAndClassifies(t *testing.T) {
	repo := &fakeRepo{}
	enf := &fakeEnforcer{}
	d := newTestDetector(repo, &fakeCounters{}, &fakeAlerts{}, enf)

	v, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationClipboardCopy,
		Description:   "clipboard copy blocked by agent",
	})
	require.NoError(t, err)
	require.NotEmpty(t, v.ID)
	require.Equal(t, domain.SeverityMedium, v.Severity)
	require.Equal(t, domain.ActionBlocked, v.Action)
	require.Len(t, repo.created, 1)
	// BLOCKED исполняется на стороне агента, enforcer не дергается
	require.Empty(t, enf.terminated)
	require.Empty(t, enf.incidents)
}

func TestRecordViolation_PersistFailureIsFatal(t *testing.T) {
	repo := &fakeRepo{createErr: errors.New("db down")}
	counters := &fakeCounters{}
	d := newTestDetector(repo, counters, &fakeAlerts{}, &fakeEnforcer{})

	_, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationClipboardCopy,
	})
	require.Error(t, err)
	// Счетчики не трогаются, если нарушение не записано
	require.Zero(t, counters.session)
}

func TestRecordViolation_CriticalOpensIncidentAndAlerts(t *testing.T) {
	enf := &fakeEnforcer{}
	alerts := &fakeAlerts{}
	d := newTestDetector(&fakeRepo{}, &fakeCounters{}, alerts, enf)

	v, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationPolicyBypass,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ActionIncidentCreated, v.Action)
	require.Equal(t, []string{v.ID}, enf.incidents)
	require.Len(t, alerts.published, 1)
}

func TestRecordViolation_CounterFailureDoesNotFail(t *testing.T) {
	counters := &fakeCounters{err: errors.New("redis down")}
	d := newTestDetector(&fakeRepo{}, counters, &fakeAlerts{}, &fakeEnforcer{})

	v, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationUSBDevice,
	})
	require.NoError(t, err)
	require.NotNil(t, v)
}

// Десятое нарушение сессии эскалируется до терминации поверх обычной меры
func TestRecordViolation_ThresholdEscalation(t *testing.T) {
	enf := &fakeEnforcer{}
	counters := &fakeCounters{session: 9} // Инкремент внутри вызова даст 10
	d := newTestDetector(&fakeRepo{}, counters, &fakeAlerts{}, enf)

	_, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationClipboardCopy,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"s-1"}, enf.terminated)
}

func TestRecordViolation_SuspendEscalationNeedsUser(t *testing.T) {
	enf := &fakeEnforcer{}
	counters := &fakeCounters{session: 24} // Станет 25
	d := newTestDetector(&fakeRepo{}, counters, &fakeAlerts{}, enf)

	_, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		UserID:        "u-1",
		ViolationType: domain.ViolationClipboardCopy,
	})
	require.NoError(t, err)
	require.Equal(t, []string{"u-1"}, enf.suspended)
}

// --- риск-анализ объемных сигналов ---

func TestRiskAnalyzer_Elevated(t *testing.T) {
	a := NewRiskAnalyzer(zap.NewNop())

	tests := []struct {
		name    string
		vtype   domain.ViolationType
		details map[string]any
		want    bool
	}{
		{"bulk download", domain.ViolationFileDownload, map[string]any{"size_bytes": float64(500 << 20)}, true},
		{"small download", domain.ViolationFileDownload, map[string]any{"size_bytes": float64(1 << 20)}, false},
		{"huge clipboard", domain.ViolationClipboardCopy, map[string]any{"length": 250000.0}, true},
		{"no details", domain.ViolationFileDownload, nil, false},
		{"wrong field type", domain.ViolationFileDownload, map[string]any{"size_bytes": "big"}, false},
		{"type without rule", domain.ViolationIdleTimeout, map[string]any{"size_bytes": 1e12}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, a.Elevated(tc.vtype, tc.details))
		})
	}
}

func TestRecordViolation_RiskElevatesSeverity(t *testing.T) {
	d := newTestDetector(&fakeRepo{}, &fakeCounters{}, &fakeAlerts{}, &fakeEnforcer{})
	d.SetRiskAnalyzer(NewRiskAnalyzer(zap.NewNop()))

	v, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationFileDownload,
		Details:       map[string]any{"size_bytes": float64(1 << 30)},
	})
	require.NoError(t, err)
	// HIGH + ступень риска = CRITICAL, а CRITICAL терминирует сессию
	require.Equal(t, domain.SeverityCritical, v.Severity)
	require.Equal(t, domain.ActionSessionTerminated, v.Action)
}

// Явный severity от агента не перекрывается таблицами и риском
func TestRecordViolation_ExplicitSeverityWins(t *testing.T) {
	d := newTestDetector(&fakeRepo{}, &fakeCounters{}, &fakeAlerts{}, &fakeEnforcer{})
	d.SetRiskAnalyzer(NewRiskAnalyzer(zap.NewNop()))

	v, err := d.RecordViolation(context.Background(), RecordViolationInput{
		SessionID:     "s-1",
		TenantID:      "t-1",
		ViolationType: domain.ViolationFileDownload,
		Severity:      domain.SeverityLow,
		Details:       map[string]any{"size_bytes": float64(1 << 30)},
	})
	require.NoError(t, err)
	require.Equal(t, domain.SeverityLow, v.Severity)
}

// --- review ---

func TestReviewViolation_NotFound(t *testing.T) {
	d := newTestDetector(&fakeRepo{}, &fakeCounters{}, &fakeAlerts{}, &fakeEnforcer{})

	_, err := d.ReviewViolation(context.Background(), "missing", "analyst", "")
	require.ErrorIs(t, err, ErrViolationNotFound)
}

func TestReviewViolation_MarksRecord(t *testing.T) {
	repo := &fakeRepo{reviewed: &domain.SecurityViolation{ID: "v-1"}}
	d := newTestDetector(repo, &fakeCounters{}, &fakeAlerts{}, &fakeEnforcer{})

	v, err := d.ReviewViolation(context.Background(), "v-1", "analyst", "false positive")
	require.NoError(t, err)
	require.True(t, v.Reviewed)
	require.Equal(t, "analyst", v.ReviewedBy)
	require.Equal(t, "false positive", v.ReviewNotes)
}
