package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/recipients"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// failingWriter fails notification inserts for some recipients.
type failingWriter struct {
	next    notifier.NotificationWriter
	failFor map[string]bool
}

func (w *failingWriter) CreateNotification(ctx context.Context, n *models.Notification) error {
	if w.failFor[n.RecipientID] {
		return errors.New("insert failed")
	}
	return w.next.CreateNotification(ctx, n)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type harness struct {
	store  *storage.MemoryStorage
	clock  *clock
	engine *Engine
}

func newHarness(t *testing.T, failFor ...string) *harness {
	t.Helper()
	h := &harness{store: storage.NewMemoryStorage(), clock: &clock{t: day0}}

	ctx := context.Background()
	h.store.Users().SaveUser(ctx, &models.User{ID: "parent-1", Name: "Ana", Role: models.RoleParent})
	h.store.Users().SaveUser(ctx, &models.User{ID: "teacher-1", Name: "Tom", Role: models.RoleTeacher})
	h.store.Users().SaveUser(ctx, &models.User{ID: "admin-1", Name: "Ada", Role: models.RoleAdmin})

	w := &failingWriter{next: h.store.Notifications(), failFor: map[string]bool{}}
	for _, id := range failFor {
		w.failFor[id] = true
	}

	eng, err := New(Deps{
		Samples:      h.store.Samples(),
		Dedup:        h.store.Dedup(),
		Evaluator:    alerting.NewEvaluator(alerting.NewThresholdSet(nil), alerting.DefaultRuleOptions(), zerolog.Nop()),
		Deduplicator: alerting.NewDeduplicator(24*time.Hour, zerolog.Nop()),
		Resolver:     recipients.NewTableResolver(h.store.Users()),
		Dispatcher:   notifier.NewDispatcher(notifier.NewStoreSink(w), zerolog.Nop(), notifier.WithClock(h.clock.now)),
	}, zerolog.Nop(), WithClock(h.clock.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	h.engine = eng
	return h
}

func luna(size models.SizeClass) models.Subject {
	return models.Subject{
		ID:         "dog-1",
		Name:       "Luna",
		SizeClass:  size,
		OwnerID:    "parent-1",
		Locations:  []models.Location{models.LocationHome, models.LocationSchool},
		TeacherIDs: []string{"teacher-1"},
	}
}

// saveEvaluation stores an evaluation the way the CRUD layer does before
// calling the hook.
func (h *harness) saveEvaluation(t *testing.T, energy, sociability, obedience, anxiety float64) models.BehaviorEvaluation {
	t.Helper()
	ev := models.BehaviorEvaluation{
		SubjectID:    "dog-1",
		Energy:       energy,
		Sociability:  sociability,
		Obedience:    obedience,
		Anxiety:      anxiety,
		Origin:       models.LocationSchool,
		RecorderRole: models.RoleTeacher,
		EvaluatedAt:  h.clock.now(),
	}
	if err := h.store.Samples().SaveEvaluation(context.Background(), &ev); err != nil {
		t.Fatalf("save evaluation: %v", err)
	}
	return ev
}

func (h *harness) saveWeight(t *testing.T, kg float64, at time.Time) models.MetricSample {
	t.Helper()
	s := models.MetricSample{
		SubjectID:  "dog-1",
		Metric:     models.MetricWeight,
		Value:      kg,
		RecordedAt: at,
		Origin:     models.LocationSchool,
	}
	if err := h.store.Samples().SaveSample(context.Background(), &s); err != nil {
		t.Fatalf("save weight: %v", err)
	}
	return s
}

func createdKinds(r notifier.DispatchReport) map[models.AlertKind]int {
	out := map[models.AlertKind]int{}
	for _, n := range r.Created {
		out[n.Kind]++
	}
	return out
}

func TestScenarioA_ObedienceExcellentOnly(t *testing.T) {
	h := newHarness(t)
	ev := h.saveEvaluation(t, 5, 5, 9, 2)

	report := h.engine.OnEvaluationSaved(context.Background(), ev, luna(models.SizeMedium), "teacher-1")

	if report.Candidates != 1 {
		t.Fatalf("expected 1 candidate, got %d", report.Candidates)
	}
	kinds := createdKinds(report)
	if len(kinds) != 1 || kinds[models.KindObedienceExcellent] == 0 {
		t.Errorf("expected only obedience_excellent, got %v", kinds)
	}
	// School origin with an assigned teacher: owner and teacher.
	if len(report.Created) != 2 {
		t.Errorf("expected 2 notifications, got %d", len(report.Created))
	}
	if !report.OK() {
		t.Errorf("unexpected failures: %+v", report)
	}
}

func TestScenarioB_WeightSignificantChange(t *testing.T) {
	h := newHarness(t)
	h.saveWeight(t, 20.0, day0)
	h.saveWeight(t, 20.1, day0.Add(24*time.Hour))
	latest := h.saveWeight(t, 23.5, day0.Add(48*time.Hour))
	h.clock.advance(48 * time.Hour)

	report := h.engine.OnWeightRecorded(context.Background(), latest, luna(models.SizeMedium), "vet-1")

	kinds := createdKinds(report)
	if len(kinds) != 1 || kinds[models.KindWeightSignificantChange] == 0 {
		t.Fatalf("expected weight_significant_change only, got %v", kinds)
	}
	n := report.Created[0]
	if n.Severity != models.SeverityWarning {
		t.Errorf("expected warning for ~16.9%%, got %s", n.Severity)
	}
	if !strings.Contains(n.Message, "+16.9%") {
		t.Errorf("expected percent in message, got %q", n.Message)
	}

	trends, err := h.engine.Trends(context.Background(), "dog-1")
	if err != nil {
		t.Fatalf("trends: %v", err)
	}
	weight := trends.Metrics[0]
	if weight.Metric != models.MetricWeight || weight.Window.Direction != alerting.DirectionRising {
		t.Errorf("expected rising weight over window, got %+v", weight)
	}
	if weight.Latest == nil || weight.Latest.Value != 23.5 {
		t.Errorf("expected latest 23.5, got %+v", weight.Latest)
	}
}

func TestScenarioC_RepeatWithinCooldownSuppressed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first := h.engine.OnEvaluationSaved(ctx, h.saveEvaluation(t, 5, 5, 5, 9), luna(models.SizeMedium), "teacher-1")
	if createdKinds(first)[models.KindAnxietyHigh] == 0 {
		t.Fatalf("expected anxiety_high on first run, got %v", createdKinds(first))
	}

	h.clock.advance(time.Hour)
	second := h.engine.OnEvaluationSaved(ctx, h.saveEvaluation(t, 5, 5, 5, 9), luna(models.SizeMedium), "teacher-1")
	if n := createdKinds(second)[models.KindAnxietyHigh]; n != 0 {
		t.Errorf("expected no anxiety_high on second run, got %d", n)
	}
	if second.Suppressed != 1 {
		t.Errorf("expected 1 suppressed, got %d", second.Suppressed)
	}

	h.clock.advance(24 * time.Hour)
	third := h.engine.OnEvaluationSaved(ctx, h.saveEvaluation(t, 5, 5, 5, 9), luna(models.SizeMedium), "teacher-1")
	if createdKinds(third)[models.KindAnxietyHigh] == 0 {
		t.Errorf("expected anxiety_high again after the cooldown, got %v", createdKinds(third))
	}

	stats := h.engine.Stats()
	if stats.Runs != 3 || stats.Suppressed != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestScenarioD_PartialDispatchFailure(t *testing.T) {
	h := newHarness(t, "teacher-1")
	h.saveWeight(t, 30, day0)
	latest := h.saveWeight(t, 40, day0.Add(24*time.Hour))
	h.clock.advance(24 * time.Hour)

	// +33% is critical, so admins are added to owner and teacher.
	report := h.engine.OnWeightRecorded(context.Background(), latest, luna(models.SizeLarge), "vet-1")

	if len(report.Created) != 2 {
		t.Fatalf("expected 2 created, got %d", len(report.Created))
	}
	if len(report.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(report.Failed))
	}
	f := report.Failed[0]
	if f.RecipientID != "teacher-1" || f.Kind != models.KindWeightSignificantChange || f.Reason == "" {
		t.Errorf("unexpected failure %+v", f)
	}

	stored, total, err := h.store.Notifications().ListByRecipient(context.Background(), "admin-1", storage.NotificationFilter{})
	if err != nil || total != 1 || stored[0].Severity != models.SeverityCritical {
		t.Errorf("expected a critical notification for the admin, got %v, %v", stored, err)
	}
}

type failingSamples struct{}

func (failingSamples) FetchRecentSamples(context.Context, string, models.Metric, int) ([]models.MetricSample, error) {
	return nil, errors.New("database is locked")
}

func TestHistoryUnavailableStillEvaluatesThresholds(t *testing.T) {
	h := newHarness(t)
	h.engine.deps.Samples = failingSamples{}

	ev := h.saveEvaluation(t, 5, 5, 5, 9)
	report := h.engine.OnEvaluationSaved(context.Background(), ev, luna(models.SizeMedium), "teacher-1")

	if createdKinds(report)[models.KindAnxietyHigh] == 0 {
		t.Errorf("expected anxiety_high without history, got %v", createdKinds(report))
	}
	if _, err := h.engine.Trends(context.Background(), "dog-1"); err == nil {
		t.Error("expected trends to surface the store error")
	}
}

type panickingResolver struct{}

func (panickingResolver) RecipientsFor(context.Context, models.Subject, alerting.AlertEvent) ([]models.RecipientRef, error) {
	panic("nil map")
}

func TestPanicIsRecoveredIntoReport(t *testing.T) {
	h := newHarness(t)
	h.engine.deps.Resolver = panickingResolver{}

	report := h.engine.OnEvaluationSaved(context.Background(), h.saveEvaluation(t, 5, 5, 5, 9), luna(models.SizeMedium), "")

	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0], "pipeline panic") {
		t.Errorf("expected panic in report errors, got %v", report.Errors)
	}
	if h.engine.Stats().Panics != 1 {
		t.Errorf("expected 1 panic counted, got %d", h.engine.Stats().Panics)
	}
}

type adminLookupFails struct{}

func (adminLookupFails) ListAdmins(context.Context) ([]*models.User, error) {
	return nil, fmt.Errorf("timeout")
}

func TestRecipientLookupErrorKeepsPartialList(t *testing.T) {
	h := newHarness(t)
	h.engine.deps.Resolver = recipients.NewTableResolver(adminLookupFails{})
	h.saveWeight(t, 30, day0)
	latest := h.saveWeight(t, 40, day0.Add(24*time.Hour))

	report := h.engine.OnWeightRecorded(context.Background(), latest, luna(models.SizeLarge), "")

	// Owner and school teacher still get it; no admin.
	if len(report.Created) != 2 {
		t.Fatalf("expected 2 notifications despite the admin lookup, got %d", len(report.Created))
	}
	for _, n := range report.Created {
		if n.RecipientRole == models.RoleAdmin {
			t.Errorf("unexpected admin recipient %s", n.RecipientID)
		}
	}
	if len(report.Errors) != 1 {
		t.Errorf("expected lookup error in report, got %v", report.Errors)
	}
}

func TestSubjectMismatchIsReported(t *testing.T) {
	h := newHarness(t)
	ev := h.saveEvaluation(t, 5, 5, 5, 9)
	ev.SubjectID = "dog-2"

	report := h.engine.OnEvaluationSaved(context.Background(), ev, luna(models.SizeMedium), "")
	if len(report.Errors) != 1 || len(report.Created) != 0 {
		t.Errorf("expected mismatch error and nothing sent, got %+v", report)
	}
}

func TestInvalidScoreRecordedAsRuleError(t *testing.T) {
	h := newHarness(t)
	ev := models.BehaviorEvaluation{SubjectID: "dog-1", Energy: 5, Sociability: 5, Obedience: 12, Anxiety: 9, Origin: models.LocationHome, EvaluatedAt: day0}

	report := h.engine.OnEvaluationSaved(context.Background(), ev, luna(models.SizeMedium), "parent-1")

	if len(report.RuleErrors) == 0 {
		t.Error("expected a rule error for obedience 12")
	}
	if createdKinds(report)[models.KindAnxietyHigh] == 0 {
		t.Errorf("expected other metrics to still alert, got %v", createdKinds(report))
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{}, zerolog.Nop()); err == nil {
		t.Error("expected error for missing deps")
	}
}
