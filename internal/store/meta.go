package store

import (
	"database/sql"
	"fmt"
)

func (s *Store) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) Version() (int, error) {
	v, err := s.GetMeta("version")
	if err != nil {
		return 0, err
	}
	var version int
	if _, err := fmt.Sscanf(v, "%d", &version); err != nil {
		return 0, err
	}
	return version, nil
}
