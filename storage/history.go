package storage

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultHistoryMaxItems caps stored history entries.
	DefaultHistoryMaxItems = 200

	// previewMaxLen bounds the text preview column.
	previewMaxLen = 120

	mimeTextPlain = "text/plain"
)

// UpsertText records a text clipboard item. Re-copying identical text
// refreshes the existing row's last_seen instead of inserting a duplicate.
func (s *Store) UpsertText(text, source, originDeviceID string) error {
	if text == "" {
		return errors.New("text is required")
	}
	if err := validateSource(source); err != nil {
		return err
	}
	if originDeviceID == "" {
		return errors.New("origin_device_id is required")
	}

	now := nowUnixMilli()
	contentHash := hashBytes([]byte(text))
	preview := makePreview(text)

	return s.upsert(HistoryItem{
		ID:             uuid.NewString(),
		Mime:           mimeTextPlain,
		ContentHash:    contentHash,
		Preview:        preview,
		SizeBytes:      int64(len(text)),
		FirstSeen:      now,
		LastSeen:       now,
		Source:         source,
		OriginDeviceID: originDeviceID,
		ContentText:    text,
	})
}

// UpsertImage records an image clipboard item keyed by its content hash.
func (s *Store) UpsertImage(png []byte, source, originDeviceID string) error {
	if len(png) == 0 {
		return errors.New("image payload is required")
	}
	if err := validateSource(source); err != nil {
		return err
	}
	if originDeviceID == "" {
		return errors.New("origin_device_id is required")
	}

	now := nowUnixMilli()

	return s.upsert(HistoryItem{
		ID:             uuid.NewString(),
		Mime:           "image/png",
		ContentHash:    hashBytes(png),
		Preview:        fmt.Sprintf("Image (%s)", formatBytes(int64(len(png)))),
		SizeBytes:      int64(len(png)),
		FirstSeen:      now,
		LastSeen:       now,
		Source:         source,
		OriginDeviceID: originDeviceID,
		ContentBlob:    png,
	})
}

// List returns history entries newest first, up to limit.
func (s *Store) List(limit int) ([]HistoryItem, error) {
	if limit <= 0 {
		limit = DefaultHistoryMaxItems
	}

	rows, err := s.db.Query(
		`SELECT
			id, mime, content_hash, preview, size_bytes,
			first_seen, last_seen, source, origin_device_id,
			content_text, content_blob
		FROM history_items
		ORDER BY last_seen DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list history items: %w", err)
	}
	defer rows.Close()

	items := make([]HistoryItem, 0)
	for rows.Next() {
		item, err := scanHistoryItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}

	return items, nil
}

// GetByID fetches one history entry.
func (s *Store) GetByID(id string) (*HistoryItem, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}

	row := s.db.QueryRow(
		`SELECT
			id, mime, content_hash, preview, size_bytes,
			first_seen, last_seen, source, origin_device_id,
			content_text, content_blob
		FROM history_items
		WHERE id = ?`,
		id,
	)

	item, err := scanHistoryItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get history item %q: %w", id, err)
	}
	return item, nil
}

// DeleteByID removes one history entry.
func (s *Store) DeleteByID(id string) error {
	if id == "" {
		return errors.New("id is required")
	}

	res, err := s.db.Exec("DELETE FROM history_items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete history item %q: %w", id, err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected for delete %q: %w", id, err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Store) upsert(item HistoryItem) error {
	existingID, err := s.findByDedupeKey(item.Mime, item.ContentHash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	if existingID != "" {
		_, err := s.db.Exec(
			`UPDATE history_items
			SET last_seen = ?, preview = ?, size_bytes = ?, source = ?,
				origin_device_id = ?, content_text = ?, content_blob = ?
			WHERE id = ?`,
			item.LastSeen,
			item.Preview,
			item.SizeBytes,
			item.Source,
			item.OriginDeviceID,
			item.ContentText,
			nullBytes(item.ContentBlob),
			existingID,
		)
		if err != nil {
			return fmt.Errorf("refresh history item %q: %w", existingID, err)
		}
		return s.enforceMaxItems()
	}

	_, err = s.db.Exec(
		`INSERT INTO history_items (
			id, mime, content_hash, preview, size_bytes,
			first_seen, last_seen, source, origin_device_id,
			content_text, content_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.Mime,
		item.ContentHash,
		item.Preview,
		item.SizeBytes,
		item.FirstSeen,
		item.LastSeen,
		item.Source,
		item.OriginDeviceID,
		item.ContentText,
		nullBytes(item.ContentBlob),
	)
	if err != nil {
		return fmt.Errorf("insert history item %q: %w", item.ID, err)
	}

	return s.enforceMaxItems()
}

func (s *Store) findByDedupeKey(mime, contentHash string) (string, error) {
	var id string
	err := s.db.QueryRow(
		"SELECT id FROM history_items WHERE mime = ? AND content_hash = ?",
		mime,
		contentHash,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("find history item by dedupe key: %w", err)
	}
	return id, nil
}

func (s *Store) enforceMaxItems() error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM history_items").Scan(&count); err != nil {
		return fmt.Errorf("count history items: %w", err)
	}
	if count <= s.maxItems {
		return nil
	}

	_, err := s.db.Exec(
		`DELETE FROM history_items
		WHERE id IN (
			SELECT id FROM history_items
			ORDER BY last_seen ASC
			LIMIT ?
		)`,
		count-s.maxItems,
	)
	if err != nil {
		return fmt.Errorf("prune history items: %w", err)
	}

	return nil
}

func scanHistoryItem(row scanner) (*HistoryItem, error) {
	var (
		item HistoryItem
		blob []byte
	)

	if err := row.Scan(
		&item.ID,
		&item.Mime,
		&item.ContentHash,
		&item.Preview,
		&item.SizeBytes,
		&item.FirstSeen,
		&item.LastSeen,
		&item.Source,
		&item.OriginDeviceID,
		&item.ContentText,
		&blob,
	); err != nil {
		return nil, err
	}

	item.ContentBlob = blob
	return &item, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func makePreview(text string) string {
	trimmed := strings.TrimSpace(strings.Join(strings.Fields(text), " "))
	if len(trimmed) > previewMaxLen {
		return trimmed[:previewMaxLen-3] + "..."
	}
	return trimmed
}

func formatBytes(bytes int64) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%d B", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
}
