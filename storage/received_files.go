package storage

import (
	"database/sql"
	"errors"
	"fmt"
)

// SaveReceivedFile inserts metadata for an accepted upload.
func (s *Store) SaveReceivedFile(file ReceivedFile) error {
	if file.FileID == "" {
		return errors.New("file_id is required")
	}
	if file.SenderDeviceID == "" {
		return errors.New("sender_device_id is required")
	}
	if file.Filename == "" {
		return errors.New("filename is required")
	}
	if file.StoredPath == "" {
		return errors.New("stored_path is required")
	}
	if file.Checksum == "" {
		return errors.New("checksum is required")
	}
	if file.ReceivedAt == 0 {
		file.ReceivedAt = nowUnixMilli()
	}

	_, err := s.db.Exec(
		`INSERT INTO received_files (
			file_id,
			sender_device_id,
			filename,
			stored_path,
			filesize,
			checksum,
			received_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		file.FileID,
		file.SenderDeviceID,
		file.Filename,
		file.StoredPath,
		file.Filesize,
		file.Checksum,
		file.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert received file %q: %w", file.FileID, err)
	}

	return nil
}

// GetReceivedFile fetches one received file row.
func (s *Store) GetReceivedFile(fileID string) (*ReceivedFile, error) {
	file, err := scanReceivedFile(s.db.QueryRow(
		`SELECT
			file_id,
			sender_device_id,
			filename,
			stored_path,
			filesize,
			checksum,
			received_at
		FROM received_files
		WHERE file_id = ?`,
		fileID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get received file %q: %w", fileID, err)
	}
	return file, nil
}

// ListReceivedFiles returns the most recent uploads, newest first.
func (s *Store) ListReceivedFiles(limit int) ([]ReceivedFile, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT
			file_id,
			sender_device_id,
			filename,
			stored_path,
			filesize,
			checksum,
			received_at
		FROM received_files
		ORDER BY received_at DESC, file_id
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list received files: %w", err)
	}
	defer rows.Close()

	files := make([]ReceivedFile, 0)
	for rows.Next() {
		file, err := scanReceivedFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan received file row: %w", err)
		}
		files = append(files, *file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate received file rows: %w", err)
	}

	return files, nil
}

func scanReceivedFile(row scanner) (*ReceivedFile, error) {
	var file ReceivedFile
	if err := row.Scan(
		&file.FileID,
		&file.SenderDeviceID,
		&file.Filename,
		&file.StoredPath,
		&file.Filesize,
		&file.Checksum,
		&file.ReceivedAt,
	); err != nil {
		return nil, err
	}
	return &file, nil
}
