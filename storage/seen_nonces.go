package storage

import (
	"errors"
	"fmt"
)

// ConsumeNonce records a token nonce for replay protection. It reports false
// when the nonce was already recorded. The check and insert are one statement.
func (s *Store) ConsumeNonce(nonce string, issuedAt int64) (bool, error) {
	if nonce == "" {
		return false, errors.New("nonce is required")
	}

	res, err := s.db.Exec(
		`INSERT INTO seen_nonces (nonce, issued_at)
		VALUES (?, ?)
		ON CONFLICT(nonce) DO NOTHING`,
		nonce,
		issuedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert seen nonce %q: %w", nonce, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("read rows affected for seen nonce %q: %w", nonce, err)
	}

	return rowsAffected == 1, nil
}

// HasNonce returns true if a nonce has already been consumed.
func (s *Store) HasNonce(nonce string) (bool, error) {
	if nonce == "" {
		return false, errors.New("nonce is required")
	}

	var exists int
	if err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM seen_nonces WHERE nonce = ?)`,
		nonce,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("check seen nonce %q: %w", nonce, err)
	}

	return exists == 1, nil
}

// PruneNonces removes nonces issued before cutoff (unix seconds).
func (s *Store) PruneNonces(cutoff int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM seen_nonces WHERE issued_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune seen nonces: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("read rows affected for seen nonce prune: %w", err)
	}

	return rowsAffected, nil
}
