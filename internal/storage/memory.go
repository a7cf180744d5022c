package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// MemoryStorage implements Storage in process memory. It backs tests and
// the "memory" driver; nothing survives a restart.
type MemoryStorage struct {
	mu            sync.RWMutex
	users         map[string]models.User
	subjects      map[string]models.Subject
	samples       []models.MetricSample
	sampleIDs     map[string]struct{}
	evaluations   map[string]models.BehaviorEvaluation
	dedup         map[string]models.DedupRecord
	notifications []*models.Notification
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:       make(map[string]models.User),
		subjects:    make(map[string]models.Subject),
		sampleIDs:   make(map[string]struct{}),
		evaluations: make(map[string]models.BehaviorEvaluation),
		dedup:       make(map[string]models.DedupRecord),
	}
}

func (m *MemoryStorage) Open() error    { return nil }
func (m *MemoryStorage) Close() error   { return nil }
func (m *MemoryStorage) Migrate() error { return nil }

func (m *MemoryStorage) Users() UserRepository                 { return memUsers{m} }
func (m *MemoryStorage) Subjects() SubjectRepository           { return memSubjects{m} }
func (m *MemoryStorage) Samples() SampleRepository             { return memSamples{m} }
func (m *MemoryStorage) Dedup() DedupRepository                { return memDedup{m} }
func (m *MemoryStorage) Notifications() NotificationRepository { return memNotifications{m} }

type memUsers struct{ m *MemoryStorage }

func (r memUsers) SaveUser(_ context.Context, u *models.User) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.users[u.ID] = *u
	return nil
}

func (r memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	u, ok := r.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (r memUsers) List(_ context.Context) ([]*models.User, error) {
	return r.filter(func(*models.User) bool { return true }, func(a, b *models.User) bool { return a.Name < b.Name }), nil
}

func (r memUsers) ListAdmins(_ context.Context) ([]*models.User, error) {
	return r.filter((*models.User).IsAdmin, func(a, b *models.User) bool { return a.ID < b.ID }), nil
}

func (r memUsers) filter(keep func(*models.User) bool, less func(a, b *models.User) bool) []*models.User {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*models.User
	for _, u := range r.m.users {
		u := u
		if keep(&u) {
			out = append(out, &u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type memSubjects struct{ m *MemoryStorage }

func (r memSubjects) SaveSubject(_ context.Context, s *models.Subject) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *s
	cp.Locations = append([]models.Location(nil), s.Locations...)
	cp.TeacherIDs = append([]string(nil), s.TeacherIDs...)
	if prev, ok := r.m.subjects[s.ID]; ok {
		cp.CreatedAt = prev.CreatedAt
	}
	r.m.subjects[s.ID] = cp
	return nil
}

func (r memSubjects) FetchSubject(_ context.Context, id string) (*models.Subject, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.subjects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r memSubjects) List(_ context.Context) ([]*models.Subject, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	out := make([]*models.Subject, 0, len(r.m.subjects))
	for _, s := range r.m.subjects {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type memSamples struct{ m *MemoryStorage }

func (r memSamples) SaveSample(_ context.Context, s *models.MetricSample) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	r.m.addSample(*s)
	return nil
}

func (r memSamples) SaveEvaluation(_ context.Context, ev *models.BehaviorEvaluation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if _, ok := r.m.evaluations[ev.ID]; ok {
		return nil
	}
	r.m.evaluations[ev.ID] = *ev
	for _, s := range ev.Samples() {
		s.ID = ev.ID + ":" + string(s.Metric)
		r.m.addSample(s)
	}
	return nil
}

// addSample must be called with mu held.
func (m *MemoryStorage) addSample(s models.MetricSample) {
	if _, ok := m.sampleIDs[s.ID]; ok {
		return
	}
	m.sampleIDs[s.ID] = struct{}{}
	m.samples = append(m.samples, s)
}

func (r memSamples) FetchRecentSamples(_ context.Context, subjectID string, metric models.Metric, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		return nil, nil
	}
	r.m.mu.RLock()
	var out []models.MetricSample
	for _, s := range r.m.samples {
		if s.SubjectID == subjectID && s.Metric == metric {
			out = append(out, s)
		}
	}
	r.m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].RecordedAt.After(out[j].RecordedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memDedup struct{ m *MemoryStorage }

func dedupKey(subjectID string, kind models.AlertKind) string {
	return subjectID + "|" + string(kind)
}

func (r memDedup) FetchDedupRecord(_ context.Context, subjectID string, kind models.AlertKind) (*models.DedupRecord, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rec, ok := r.m.dedup[dedupKey(subjectID, kind)]
	if !ok {
		//nolint:nilnil
		return nil, nil
	}
	return &rec, nil
}

func (r memDedup) SaveDedupRecord(_ context.Context, rec models.DedupRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.dedup[dedupKey(rec.SubjectID, rec.Kind)] = rec
	return nil
}

func (r memDedup) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var n int64
	for k, rec := range r.m.dedup {
		if rec.LastSent.Before(before) {
			delete(r.m.dedup, k)
			n++
		}
	}
	return n, nil
}

type memNotifications struct{ m *MemoryStorage }

func (r memNotifications) CreateNotification(_ context.Context, n *models.Notification) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cp := *n
	r.m.notifications = append(r.m.notifications, &cp)
	return nil
}

func (r memNotifications) ListByRecipient(_ context.Context, recipientID string, f NotificationFilter) ([]*models.Notification, int64, error) {
	f = f.normalized()
	r.m.mu.RLock()
	var matched []*models.Notification
	for _, n := range r.m.notifications {
		if n.RecipientID != recipientID || (f.UnreadOnly && n.Read) {
			continue
		}
		cp := *n
		matched = append(matched, &cp)
	}
	r.m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (r memNotifications) MarkRead(_ context.Context, id, recipientID string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, n := range r.m.notifications {
		if n.ID != id || n.RecipientID != recipientID {
			continue
		}
		if !n.Read {
			n.Read = true
			n.ReadAt = &at
		}
		return nil
	}
	return ErrNotFound
}

func (r memNotifications) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	kept := r.m.notifications[:0]
	var n int64
	for _, x := range r.m.notifications {
		if x.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, x)
	}
	r.m.notifications = kept
	return n, nil
}
