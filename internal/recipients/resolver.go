// Package recipients decides who receives an alert about a subject.
package recipients

import (
	"context"
	"fmt"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
)

// Resolver maps a subject and an alert to its recipients.
type Resolver interface {
	RecipientsFor(ctx context.Context, subject models.Subject, ev alerting.AlertEvent) ([]models.RecipientRef, error)
}

// AdminDirectory lists the holders of the admin role.
type AdminDirectory interface {
	ListAdmins(ctx context.Context) ([]*models.User, error)
}

// TableResolver is the default policy:
//   - the owner receives every alert;
//   - teachers assigned to the subject receive alerts that originated at
//     school, whether or not the subject lists school among its locations;
//   - admins receive critical alerts only.
type TableResolver struct {
	admins AdminDirectory
}

// NewTableResolver creates the default resolver. admins may be nil.
func NewTableResolver(admins AdminDirectory) *TableResolver {
	return &TableResolver{admins: admins}
}

// RecipientsFor returns the recipients in owner, teacher, admin order with
// duplicate identities removed. When the admin lookup fails the other
// recipients are still returned together with the error.
func (r *TableResolver) RecipientsFor(ctx context.Context, subject models.Subject, ev alerting.AlertEvent) ([]models.RecipientRef, error) {
	var set refSet

	if subject.OwnerID != "" {
		set.add(models.RecipientRef{ID: subject.OwnerID, Role: models.RoleParent})
	}

	h := ev.Header()
	if h.Origin == models.LocationSchool {
		for _, id := range subject.TeacherIDs {
			set.add(models.RecipientRef{ID: id, Role: models.RoleTeacher})
		}
	}

	if h.Severity != models.SeverityCritical || r.admins == nil {
		return set.refs, nil
	}
	admins, err := r.admins.ListAdmins(ctx)
	if err != nil {
		return set.refs, fmt.Errorf("list admins: %w", err)
	}
	for _, u := range admins {
		if u == nil || !u.IsAdmin() {
			continue
		}
		set.add(models.RecipientRef{ID: u.ID, Role: models.RoleAdmin})
	}
	return set.refs, nil
}

// refSet keeps the first role seen for each identity.
type refSet struct {
	seen map[string]bool
	refs []models.RecipientRef
}

func (s *refSet) add(ref models.RecipientRef) {
	if ref.ID == "" {
		return
	}
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	if s.seen[ref.ID] {
		return
	}
	s.seen[ref.ID] = true
	s.refs = append(s.refs, ref)
}
