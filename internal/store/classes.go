package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Class is one detection class the pipeline looks for.
type Class struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Hidden    bool      `json:"is_hidden"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsureClass returns the id of the named class, creating it if needed.
func (s *Store) EnsureClass(name string) (int64, error) {
	if name == "" {
		return 0, errors.New("store: class name must not be empty")
	}

	var id int64
	err := s.QueryRow(`SELECT id FROM classes WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up class %q: %w", name, err)
	}

	res, err := s.Exec(`INSERT INTO classes (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create class %q: %w", name, err)
	}
	return res.LastInsertId()
}

// AddClass registers a new visible detection class. Adding an existing class
// is a no-op.
func (s *Store) AddClass(name string) error {
	if name == "" {
		return errors.New("store: class name must not be empty")
	}
	if _, err := s.Exec(`INSERT OR IGNORE INTO classes (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("failed to add class %q: %w", name, err)
	}
	return nil
}

// ListClasses returns all classes. Hidden classes (shadow) are excluded
// unless includeHidden is set; the detector still receives them so shadows
// get labelled instead of misclassified.
func (s *Store) ListClasses(includeHidden bool) ([]Class, error) {
	query := `SELECT id, name, is_hidden, created_at FROM classes`
	if !includeHidden {
		query += ` WHERE is_hidden = 0`
	}
	query += ` ORDER BY name`

	rows, err := s.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Hidden, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan class row: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// ClassNames returns the names of all classes, hidden ones included, for
// handing to the detector as its prompt vocabulary.
func (s *Store) ClassNames() ([]string, error) {
	classes, err := s.ListClasses(true)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(classes))
	for _, c := range classes {
		names = append(names, c.Name)
	}
	return names, nil
}
