package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/config"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/notifier"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

var now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func testEvaluator() *alerting.Evaluator {
	return alerting.NewEvaluator(alerting.NewThresholdSet(nil), alerting.DefaultRuleOptions(), zerolog.Nop())
}

func TestDryRunEvaluation(t *testing.T) {
	var file checkFile
	path := writeFile(t, "check.yaml", `
subject: {id: dog-1, name: Luna, size_class: medium, owner_id: parent-1}
evaluation: {energy: 5, sociability: 9, obedience: 2, anxiety: 9, origin: school}
`)
	if err := readYAML(path, &file); err != nil {
		t.Fatal(err)
	}
	out, err := dryRun(context.Background(), testEvaluator(), file, now)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	kinds := map[models.AlertKind]bool{}
	for _, c := range out.Candidates {
		kinds[c.Kind] = true
		if c.Title == "" || c.Message == "" {
			t.Errorf("%s not rendered", c.Kind)
		}
	}
	for _, want := range []models.AlertKind{models.KindAnxietyHigh, models.KindObedienceLow, models.KindSociabilityExcellent} {
		if !kinds[want] {
			t.Errorf("missing %s in %v", want, kinds)
		}
	}
	if out.Candidates[len(out.Candidates)-1].Severity != models.SeverityPositive {
		t.Error("expected candidates ordered by severity")
	}
}

func TestDryRunWeightWithHistory(t *testing.T) {
	file := checkFile{
		Subject: subjectRecord{ID: "dog-1", SizeClass: "medium", OwnerID: "parent-1"},
		History: []sampleRecord{
			{Metric: "weight", Value: 18, RecordedAt: now.Add(-48 * time.Hour)},
			{Metric: "weight", Value: 20, RecordedAt: now.Add(-24 * time.Hour)},
		},
		Weight: &sampleRecord{Value: 24},
	}
	out, err := dryRun(context.Background(), testEvaluator(), file, now)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(out.Candidates) != 1 || out.Candidates[0].Kind != models.KindWeightSignificantChange {
		t.Errorf("expected a 20%% change alert, got %+v", out.Candidates)
	}
}

func TestDryRunErrors(t *testing.T) {
	tests := []struct {
		name string
		file checkFile
		want string
	}{
		{"no subject id", checkFile{Weight: &sampleRecord{Value: 3}}, "without id"},
		{"nothing to check", checkFile{Subject: subjectRecord{ID: "d", OwnerID: "p"}}, "nothing to check"},
		{"undated history", checkFile{
			Subject: subjectRecord{ID: "d", OwnerID: "p"},
			History: []sampleRecord{{Value: 3}},
			Weight:  &sampleRecord{Value: 3},
		}, "recorded_at"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dryRun(context.Background(), testEvaluator(), tt.file, now)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestDryRunReportsRuleErrors(t *testing.T) {
	file := checkFile{
		Subject:    subjectRecord{ID: "dog-1", OwnerID: "parent-1"},
		Evaluation: &evaluationRecord{Energy: 5, Sociability: 5, Obedience: 5, Anxiety: 14},
	}
	out, err := dryRun(context.Background(), testEvaluator(), file, now)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(out.RuleErrors) == 0 {
		t.Error("expected out of range anxiety to be reported")
	}

	var buf bytes.Buffer
	printCheckTable(&buf, out)
	if !strings.Contains(buf.String(), "rule error") {
		t.Errorf("table output missing rule error: %s", buf.String())
	}
}

func TestImportDirectory(t *testing.T) {
	store := storage.NewMemoryStorage()
	file := directoryFile{
		Users: []userRecord{
			{ID: "parent-1", Name: "Ana", Role: "parent"},
			{ID: "admin-1", Name: "Ada", Role: "admin"},
			{Name: "nobody"},
		},
		Subjects: []subjectRecord{
			{ID: "dog-1", Name: "Luna", SizeClass: "medium", OwnerID: "parent-1", Locations: []string{"home", "school"}},
			{ID: "dog-2", SizeClass: "tiny", OwnerID: "parent-1"},
			{ID: "dog-3"},
		},
	}
	users, subjects, err := importDirectory(context.Background(), store, file)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if users != 2 || subjects != 1 {
		t.Errorf("imported %d users %d subjects, want 2 and 1", users, subjects)
	}

	admins, err := store.Users().ListAdmins(context.Background())
	if err != nil || len(admins) != 1 || admins[0].ID != "admin-1" {
		t.Errorf("admins = %+v, %v", admins, err)
	}
	s, err := store.Subjects().FetchSubject(context.Background(), "dog-1")
	if err != nil {
		t.Fatalf("fetch subject: %v", err)
	}
	if !s.AssignedTo(models.LocationSchool) || s.SizeClass != models.SizeMedium {
		t.Errorf("unexpected subject %+v", s)
	}
}

func TestBuildDispatcherSinks(t *testing.T) {
	cfg := config.Default()
	cfg.Sinks.Webhook = &notifier.WebhookConfig{URL: "https://hooks.example.com/pawwatch"}
	cfg.Sinks.Primary = config.SinkWebhook

	d, err := buildDispatcher(cfg, storage.NewMemoryStorage(), zerolog.Nop())
	if err != nil {
		t.Fatalf("build dispatcher: %v", err)
	}
	defer d.Close()
	if _, ok := d.Get(config.SinkStore); !ok {
		t.Error("store sink must mirror when webhook is primary")
	}
	if _, ok := d.Get(config.SinkWebhook); ok {
		t.Error("primary sink must not also be a mirror")
	}

	cfg.Sinks.Primary = config.SinkKafka
	if _, err := buildDispatcher(cfg, storage.NewMemoryStorage(), zerolog.Nop()); err == nil {
		t.Error("expected error for unconfigured primary")
	}
}

func TestNewAppAndPrune(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Driver = config.DriverSQLite
	cfg.Storage.Path = filepath.Join(t.TempDir(), "data", "pawwatch.db")
	cfg.Storage.Retention = 7 * 24 * time.Hour

	a, err := newApp(context.Background(), cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	defer a.Close()

	ctx := context.Background()
	old := &models.Notification{ID: "n-old", RecipientID: "parent-1", SubjectID: "dog-1", Kind: models.KindAnxietyHigh, Severity: models.SeverityWarning, CreatedAt: now.Add(-10 * 24 * time.Hour)}
	fresh := &models.Notification{ID: "n-new", RecipientID: "parent-1", SubjectID: "dog-1", Kind: models.KindAnxietyHigh, Severity: models.SeverityWarning, CreatedAt: now.Add(-time.Hour)}
	for _, n := range []*models.Notification{old, fresh} {
		if err := a.store.Notifications().CreateNotification(ctx, n); err != nil {
			t.Fatalf("create notification: %v", err)
		}
	}
	if err := a.store.Dedup().SaveDedupRecord(ctx, models.DedupRecord{SubjectID: "dog-1", Kind: models.KindAnxietyHigh, LastSent: now.Add(-8 * 24 * time.Hour)}); err != nil {
		t.Fatalf("save marker: %v", err)
	}

	n, m, err := a.prune(ctx, now)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 || m != 1 {
		t.Errorf("pruned %d notifications %d markers, want 1 and 1", n, m)
	}
}

func TestVersionJSON(t *testing.T) {
	var buf bytes.Buffer
	output = "json"
	defer func() { output = "table" }()
	versionCmd.SetOut(&buf)
	if err := versionCmd.RunE(versionCmd, nil); err != nil {
		t.Fatal(err)
	}
	var info map[string]any
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("version output is not JSON: %v", err)
	}
	if info["version"] == nil || info["version"] == "" {
		t.Error("missing version")
	}
}
