package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Developer represents a canonical developer identity. Email always holds
// the normalized form; raw spellings live in developer_email_aliases.
type Developer struct {
	ID                int64
	Email             string
	DisplayName       string
	ExternalAccountID *string
	Active            bool
	FirstSeen         int64
	LastSeen          int64
}

// CreateDeveloper inserts a new developer and fills in its id
func (db *DB) CreateDeveloper(d *Developer) error {
	now := time.Now().Unix()
	d.FirstSeen = now
	d.LastSeen = now

	result, err := db.conn.Exec(`
		INSERT INTO developers (email, display_name, external_account_id, active, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Email, d.DisplayName, d.ExternalAccountID, d.Active, d.FirstSeen, d.LastSeen)

	if err != nil {
		return fmt.Errorf("failed to create developer: %w", err)
	}

	d.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get developer id: %w", err)
	}
	return nil
}

// GetDeveloperByEmail retrieves a developer by canonical email
func (db *DB) GetDeveloperByEmail(email string) (*Developer, error) {
	var d Developer
	err := db.conn.QueryRow(`
		SELECT id, email, display_name, external_account_id, active, first_seen, last_seen
		FROM developers WHERE email = ?
	`, email).Scan(
		&d.ID, &d.Email, &d.DisplayName, &d.ExternalAccountID, &d.Active, &d.FirstSeen, &d.LastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get developer: %w", err)
	}
	return &d, nil
}

// GetDeveloper retrieves a developer by id
func (db *DB) GetDeveloper(id int64) (*Developer, error) {
	var d Developer
	err := db.conn.QueryRow(`
		SELECT id, email, display_name, external_account_id, active, first_seen, last_seen
		FROM developers WHERE id = ?
	`, id).Scan(
		&d.ID, &d.Email, &d.DisplayName, &d.ExternalAccountID, &d.Active, &d.FirstSeen, &d.LastSeen,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get developer: %w", err)
	}
	return &d, nil
}

// UpdateDeveloperObserved refreshes the fields tracked on every observation.
// A nil externalAccountID keeps the stored value.
func (db *DB) UpdateDeveloperObserved(id int64, displayName string, active bool, externalAccountID *string) error {
	result, err := db.conn.Exec(`
		UPDATE developers
		SET display_name = ?, active = ?, external_account_id = COALESCE(?, external_account_id), last_seen = ?
		WHERE id = ?
	`, displayName, active, externalAccountID, time.Now().Unix(), id)

	if err != nil {
		return fmt.Errorf("failed to update developer: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("developer not found")
	}

	return nil
}

// ListDevelopers returns all developers ordered by canonical email
func (db *DB) ListDevelopers() ([]*Developer, error) {
	rows, err := db.conn.Query(`
		SELECT id, email, display_name, external_account_id, active, first_seen, last_seen
		FROM developers
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list developers: %w", err)
	}
	defer rows.Close()

	var developers []*Developer
	for rows.Next() {
		var d Developer
		err := rows.Scan(
			&d.ID, &d.Email, &d.DisplayName, &d.ExternalAccountID, &d.Active, &d.FirstSeen, &d.LastSeen,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan developer: %w", err)
		}
		developers = append(developers, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating developers: %w", err)
	}

	return developers, nil
}

// CreateAlias records a raw spelling for a developer. An alias already
// mapped (to any developer) is left untouched; returns whether a row was
// inserted.
func (db *DB) CreateAlias(developerID int64, aliasEmail string) (bool, error) {
	result, err := db.conn.Exec(`
		INSERT INTO developer_email_aliases (developer_id, alias_email, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(alias_email) DO NOTHING
	`, developerID, aliasEmail, time.Now().Unix())

	if err != nil {
		return false, fmt.Errorf("failed to create alias: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetAliasDeveloperID resolves an alias spelling to a developer id,
// returning 0 when the alias is unknown
func (db *DB) GetAliasDeveloperID(aliasEmail string) (int64, error) {
	var id int64
	err := db.conn.QueryRow(`
		SELECT developer_id FROM developer_email_aliases WHERE alias_email = ?
	`, aliasEmail).Scan(&id)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alias: %w", err)
	}
	return id, nil
}

// ListAliases returns the known raw spellings for a developer
func (db *DB) ListAliases(developerID int64) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT alias_email FROM developer_email_aliases
		WHERE developer_id = ?
		ORDER BY alias_email
	`, developerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	defer rows.Close()

	var aliases []string
	for rows.Next() {
		var alias string
		if err := rows.Scan(&alias); err != nil {
			return nil, fmt.Errorf("failed to scan alias: %w", err)
		}
		aliases = append(aliases, alias)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating aliases: %w", err)
	}

	return aliases, nil
}

// CountDevelopers returns the total number of developers
func (db *DB) CountDevelopers() (int64, error) {
	var count int64
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM developers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count developers: %w", err)
	}
	return count, nil
}
