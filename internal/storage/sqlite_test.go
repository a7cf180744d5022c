package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()

	store := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	return store
}

// forEachStorage runs fn against SQLite and the in-memory store.
func forEachStorage(t *testing.T, fn func(t *testing.T, s Storage)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, setupTestDB(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStorage()) })
}

func TestSQLiteStorage_OpenClose(t *testing.T) {
	store := setupTestDB(t)
	if store.DB() == nil {
		t.Fatal("database should be open")
	}
	if err := store.DB().Ping(); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestSQLiteStorage_MigrateIdempotent(t *testing.T) {
	store := setupTestDB(t)

	if err := store.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var version int
	if err := store.DB().QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		t.Fatalf("read version: %v", err)
	}
	if version != len(migrations) {
		t.Errorf("version = %d, want %d", version, len(migrations))
	}
}

func TestSQLiteStorage_RequiresPath(t *testing.T) {
	if err := NewSQLiteStorage("").Open(); err == nil {
		t.Error("expected error for empty path")
	}
}

func TestRebind(t *testing.T) {
	pg := &sqlDB{dialect: dialectPostgres}
	if got := pg.rebind("SELECT a FROM t WHERE b = ? AND c = ?"); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &sqlDB{dialect: dialectSQLite}
	if got := lite.rebind("WHERE b = ?"); got != "WHERE b = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestUserRepository(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		users := []*models.User{
			{ID: "u-owner", Name: "Ana", Role: models.RoleParent},
			{ID: "u-admin-2", Name: "Zoe", Role: models.RoleAdmin},
			{ID: "u-admin-1", Name: "Bo", Role: models.RoleAdmin},
		}
		for _, u := range users {
			if err := s.Users().SaveUser(ctx, u); err != nil {
				t.Fatalf("save user: %v", err)
			}
		}

		admins, err := s.Users().ListAdmins(ctx)
		if err != nil {
			t.Fatalf("list admins: %v", err)
		}
		if len(admins) != 2 || admins[0].ID != "u-admin-1" || admins[1].ID != "u-admin-2" {
			t.Errorf("unexpected admins %+v", admins)
		}

		// Saving again updates in place.
		users[0].Role = models.RoleAdmin
		if err := s.Users().SaveUser(ctx, users[0]); err != nil {
			t.Fatalf("update user: %v", err)
		}
		got, err := s.Users().GetByID(ctx, "u-owner")
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if !got.IsAdmin() {
			t.Errorf("role = %v, want admin", got.Role)
		}

		all, _ := s.Users().List(ctx)
		if len(all) != 3 {
			t.Errorf("users count = %d, want 3", len(all))
		}

		if _, err := s.Users().GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSubjectRepository(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		dog := &models.Subject{
			ID:         "dog-1",
			Name:       "Luna",
			SizeClass:  models.SizeMedium,
			OwnerID:    "u-owner",
			Locations:  []models.Location{models.LocationHome, models.LocationSchool},
			TeacherIDs: []string{"t-1", "t-2"},
			CreatedAt:  t0,
		}
		if err := s.Subjects().SaveSubject(ctx, dog); err != nil {
			t.Fatalf("save subject: %v", err)
		}

		got, err := s.Subjects().FetchSubject(ctx, "dog-1")
		if err != nil {
			t.Fatalf("fetch subject: %v", err)
		}
		if got.Name != "Luna" || got.SizeClass != models.SizeMedium || !got.CreatedAt.Equal(t0) {
			t.Errorf("unexpected subject %+v", got)
		}
		if !got.AssignedTo(models.LocationSchool) || len(got.TeacherIDs) != 2 {
			t.Errorf("assignments not round-tripped: %+v", got)
		}

		dog.Name = "Luna B."
		dog.Locations = nil
		if err := s.Subjects().SaveSubject(ctx, dog); err != nil {
			t.Fatalf("update subject: %v", err)
		}
		got, _ = s.Subjects().FetchSubject(ctx, "dog-1")
		if got.Name != "Luna B." || got.AssignedTo(models.LocationSchool) {
			t.Errorf("update not applied: %+v", got)
		}

		list, _ := s.Subjects().List(ctx)
		if len(list) != 1 {
			t.Errorf("subjects count = %d, want 1", len(list))
		}

		if _, err := s.Subjects().FetchSubject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSampleRepository_FetchRecentNewestFirst(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		for i, v := range []float64{20.0, 20.1, 23.5} {
			err := s.Samples().SaveSample(ctx, &models.MetricSample{
				SubjectID:  "dog-1",
				Metric:     models.MetricWeight,
				Value:      v,
				RecordedAt: t0.Add(time.Duration(i) * 24 * time.Hour),
				Origin:     models.LocationClinic,
				RecorderID: "vet-1",
			})
			if err != nil {
				t.Fatalf("save sample: %v", err)
			}
		}
		// Other subject and metric must not leak in.
		s.Samples().SaveSample(ctx, &models.MetricSample{SubjectID: "dog-2", Metric: models.MetricWeight, Value: 5, RecordedAt: t0})
		s.Samples().SaveSample(ctx, &models.MetricSample{SubjectID: "dog-1", Metric: models.MetricEnergy, Value: 5, RecordedAt: t0})

		got, err := s.Samples().FetchRecentSamples(ctx, "dog-1", models.MetricWeight, 2)
		if err != nil {
			t.Fatalf("fetch recent: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 samples, got %d", len(got))
		}
		if got[0].Value != 23.5 || got[1].Value != 20.1 {
			t.Errorf("expected newest first [23.5 20.1], got [%v %v]", got[0].Value, got[1].Value)
		}
		if got[0].Origin != models.LocationClinic || got[0].RecorderID != "vet-1" || got[0].ID == "" {
			t.Errorf("fields not round-tripped: %+v", got[0])
		}

		if none, _ := s.Samples().FetchRecentSamples(ctx, "dog-1", models.MetricWeight, 0); len(none) != 0 {
			t.Errorf("expected nothing for limit 0, got %d", len(none))
		}
	})
}

func TestSampleRepository_SaveEvaluation(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		ev := &models.BehaviorEvaluation{
			ID:           "ev-1",
			SubjectID:    "dog-1",
			Energy:       6,
			Sociability:  7,
			Obedience:    2,
			Anxiety:      9,
			Observations: []string{"barked at mailman"},
			Origin:       models.LocationSchool,
			RecorderID:   "t-1",
			RecorderRole: models.RoleTeacher,
			EvaluatedAt:  t0,
		}
		if err := s.Samples().SaveEvaluation(ctx, ev); err != nil {
			t.Fatalf("save evaluation: %v", err)
		}
		// Saving the same evaluation twice must not duplicate samples.
		if err := s.Samples().SaveEvaluation(ctx, ev); err != nil {
			t.Fatalf("resave evaluation: %v", err)
		}

		for _, m := range models.BehaviorMetrics {
			got, err := s.Samples().FetchRecentSamples(ctx, "dog-1", m, 10)
			if err != nil {
				t.Fatalf("fetch %s: %v", m, err)
			}
			if len(got) != 1 {
				t.Fatalf("%s: expected 1 sample, got %d", m, len(got))
			}
			want, _ := ev.Score(m)
			if got[0].Value != want || got[0].RecorderRole != models.RoleTeacher {
				t.Errorf("%s: unexpected sample %+v", m, got[0])
			}
		}
	})
}

func TestDedupRepository(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()

		rec, err := s.Dedup().FetchDedupRecord(ctx, "dog-1", models.KindAnxietyHigh)
		if err != nil || rec != nil {
			t.Fatalf("expected no record, got %+v, %v", rec, err)
		}

		for _, at := range []time.Time{t0, t0.Add(2 * time.Hour)} {
			err := s.Dedup().SaveDedupRecord(ctx, models.DedupRecord{SubjectID: "dog-1", Kind: models.KindAnxietyHigh, LastSent: at})
			if err != nil {
				t.Fatalf("save dedup: %v", err)
			}
		}
		rec, err = s.Dedup().FetchDedupRecord(ctx, "dog-1", models.KindAnxietyHigh)
		if err != nil {
			t.Fatalf("fetch dedup: %v", err)
		}
		if rec == nil || !rec.LastSent.Equal(t0.Add(2*time.Hour)) {
			t.Errorf("expected upserted last sent, got %+v", rec)
		}

		n, err := s.Dedup().DeleteBefore(ctx, t0.Add(3*time.Hour))
		if err != nil || n != 1 {
			t.Errorf("expected 1 pruned, got %d, %v", n, err)
		}
	})
}

func TestNotificationRepository(t *testing.T) {
	forEachStorage(t, func(t *testing.T, s Storage) {
		ctx := context.Background()
		for i, id := range []string{"n-1", "n-2", "n-3"} {
			n := &models.Notification{
				ID:            id,
				RecipientID:   "u-owner",
				RecipientRole: models.RoleParent,
				SubjectID:     "dog-1",
				Kind:          models.KindAnxietyHigh,
				Severity:      models.SeverityWarning,
				Title:         "High anxiety detected",
				Message:       "Luna scored 9/10",
				CreatedAt:     t0.Add(time.Duration(i) * time.Minute),
			}
			if err := s.Notifications().CreateNotification(ctx, n); err != nil {
				t.Fatalf("create notification: %v", err)
			}
		}
		s.Notifications().CreateNotification(ctx, &models.Notification{ID: "n-other", RecipientID: "u-other", CreatedAt: t0})

		list, total, err := s.Notifications().ListByRecipient(ctx, "u-owner", NotificationFilter{Limit: 2})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if total != 3 || len(list) != 2 || list[0].ID != "n-3" {
			t.Errorf("expected newest page of 3, got total %d, %d rows", total, len(list))
		}

		if err := s.Notifications().MarkRead(ctx, "n-3", "u-owner", t0.Add(time.Hour)); err != nil {
			t.Fatalf("mark read: %v", err)
		}
		if err := s.Notifications().MarkRead(ctx, "n-3", "u-owner", t0.Add(2*time.Hour)); err != nil {
			t.Fatalf("mark read twice: %v", err)
		}
		if err := s.Notifications().MarkRead(ctx, "n-3", "u-other", t0); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for another recipient, got %v", err)
		}

		unread, total, _ := s.Notifications().ListByRecipient(ctx, "u-owner", NotificationFilter{UnreadOnly: true})
		if total != 2 || len(unread) != 2 {
			t.Errorf("expected 2 unread, got %d", total)
		}

		all, _, _ := s.Notifications().ListByRecipient(ctx, "u-owner", NotificationFilter{})
		if !all[0].Read || all[0].ReadAt == nil || !all[0].ReadAt.Equal(t0.Add(time.Hour)) {
			t.Errorf("expected first read time kept, got %+v", all[0])
		}

		n, err := s.Notifications().DeleteBefore(ctx, t0.Add(time.Minute))
		if err != nil || n != 2 {
			t.Errorf("expected 2 pruned, got %d, %v", n, err)
		}
	})
}
