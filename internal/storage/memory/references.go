package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vtrack/internal/guard"
)

// ReferenceChecker answers guard existence queries against the tables.
type ReferenceChecker struct {
	db *DB
}

func (c *ReferenceChecker) Exists(ctx context.Context, ref guard.Reference, id uuid.UUID) (bool, error) {
	var exists bool
	err := c.db.read(ctx, func(t *tables) error {
		switch ref {
		case guard.ViolatorCitations:
			exists = t.violatorReferenced(id)
		case guard.ViolationTypeLineItems:
			exists = t.typeReferenced(id)
		case guard.LocationTeams:
			exists = t.locationReferenced(id)
		case guard.TeamUsers:
			exists = t.teamReferenced(id)
		case guard.UserCitations:
			exists = t.officerReferenced(id)
		case guard.UserPayments:
			exists = t.processorReferenced(id)
		case guard.CitationPayments:
			_, exists = t.paymentFor(id)
		default:
			return fmt.Errorf("unknown reference %q", ref)
		}
		return nil
	})
	return exists, err
}

func (t *tables) violatorReferenced(id uuid.UUID) bool {
	for _, c := range t.citations {
		if c.ViolatorID == id {
			return true
		}
	}
	return false
}

func (t *tables) typeReferenced(id uuid.UUID) bool {
	for _, items := range t.lineItems {
		for _, item := range items {
			if item.ViolationTypeID == id {
				return true
			}
		}
	}
	return false
}

func (t *tables) locationReferenced(id uuid.UUID) bool {
	for _, team := range t.teams {
		if team.LocationID != nil && *team.LocationID == id {
			return true
		}
	}
	return false
}

func (t *tables) teamReferenced(id uuid.UUID) bool {
	for _, u := range t.users {
		if u.TeamID != nil && *u.TeamID == id {
			return true
		}
	}
	return false
}

func (t *tables) officerReferenced(id uuid.UUID) bool {
	for _, c := range t.citations {
		if c.OfficerID == id {
			return true
		}
	}
	return false
}

func (t *tables) processorReferenced(id uuid.UUID) bool {
	for _, p := range t.payments {
		if p.ProcessedBy == id {
			return true
		}
	}
	return false
}

func (t *tables) userReferenced(id uuid.UUID) bool {
	return t.officerReferenced(id) || t.processorReferenced(id)
}
