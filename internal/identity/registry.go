package identity

import (
	"fmt"
	"strings"

	"devpulse/internal/database"
)

// Registry keeps the developers table in step with what the sources report.
// Every write goes through the normalizer, so the table only ever holds
// canonical emails; raw spellings that differ are kept as aliases.
type Registry struct {
	db        *database.DB
	norm      *Normalizer
	activeSet map[string]bool
}

// NewRegistry builds a registry. teamEmails is the allow-list controlling
// the active flag; empty means everyone observed is active.
func NewRegistry(db *database.DB, norm *Normalizer, teamEmails []string) *Registry {
	activeSet := make(map[string]bool)
	for _, email := range teamEmails {
		if canonical := norm.Normalize(email); canonical != "" {
			activeSet[canonical] = true
		}
	}
	return &Registry{db: db, norm: norm, activeSet: activeSet}
}

// Upsert records an observation of a developer and returns the canonical
// email, or "" when the input carries no identity (caller should skip)
func (r *Registry) Upsert(rawEmail, displayName string) (string, error) {
	return r.UpsertAccount(rawEmail, displayName, "")
}

// UpsertAccount is Upsert plus an external account ID (e.g. a Jira
// accountId), stored when non-empty
func (r *Registry) UpsertAccount(rawEmail, displayName, externalAccountID string) (string, error) {
	canonical := r.norm.Normalize(rawEmail)
	if canonical == "" {
		return "", nil
	}

	var accountID *string
	if externalAccountID != "" {
		accountID = &externalAccountID
	}
	name := strings.TrimSpace(displayName)

	existing, err := r.db.GetDeveloperByEmail(canonical)
	if err != nil {
		return "", err
	}

	var developerID int64
	if existing == nil {
		dev := &database.Developer{
			Email:             canonical,
			DisplayName:       name,
			ExternalAccountID: accountID,
			Active:            r.active(canonical),
		}
		if err := r.db.CreateDeveloper(dev); err != nil {
			return "", fmt.Errorf("failed to register developer %s: %w", canonical, err)
		}
		developerID = dev.ID
	} else {
		// The longer display name is usually the fuller one
		if len(existing.DisplayName) > len(name) {
			name = existing.DisplayName
		}
		if err := r.db.UpdateDeveloperObserved(existing.ID, name, r.active(canonical), accountID); err != nil {
			return "", err
		}
		developerID = existing.ID
	}

	if raw := strings.TrimSpace(rawEmail); raw != canonical {
		if _, err := r.db.CreateAlias(developerID, raw); err != nil {
			return "", err
		}
	}

	return canonical, nil
}

// Resolve maps a raw email to a developer ID, trying the canonical email
// first and the alias table second. Returns 0 when nothing matches; callers
// skip the record rather than fail the run.
func (r *Registry) Resolve(rawEmail string) (int64, error) {
	canonical := r.norm.Normalize(rawEmail)
	if canonical == "" {
		return 0, nil
	}

	dev, err := r.db.GetDeveloperByEmail(canonical)
	if err != nil {
		return 0, err
	}
	if dev != nil {
		return dev.ID, nil
	}

	id, err := r.db.GetAliasDeveloperID(canonical)
	if err != nil || id != 0 {
		return id, err
	}

	if raw := strings.TrimSpace(rawEmail); raw != canonical {
		return r.db.GetAliasDeveloperID(raw)
	}
	return 0, nil
}

func (r *Registry) active(canonical string) bool {
	if len(r.activeSet) == 0 {
		return true
	}
	return r.activeSet[canonical]
}
