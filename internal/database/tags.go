package database

import (
	"fmt"
)

// Tag-related methods

// CreateTag creates a new tag with the given source ("user", "ai_prompt", "ai_vision")
func (db *DB) CreateTag(name string, color string, source string) (int64, error) {
	query := `INSERT INTO tags (name, color, source) VALUES (?, ?, ?)`
	result, err := db.Exec(query, name, color, source)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag: %w", err)
	}
	return result.LastInsertId()
}

// GetAllTags retrieves all tags with their usage counts
func (db *DB) GetAllTags() ([]map[string]interface{}, error) {
	query := `
		SELECT t.id, t.name, t.color, t.source, t.created_at,
		       COUNT(a.media_id) as media_count
		FROM tags t
		LEFT JOIN tag_assignments a ON t.id = a.tag_id
		GROUP BY t.id
		ORDER BY t.name ASC
	`
	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []map[string]interface{}
	for rows.Next() {
		tag := make(map[string]interface{})
		if err := rows.MapScan(tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, nil
}

// GetTagByID retrieves a tag by ID
func (db *DB) GetTagByID(tagID int64) (map[string]interface{}, error) {
	query := `SELECT id, name, color, source, created_at FROM tags WHERE id = ?`
	row := db.QueryRowx(query, tagID)

	tag := make(map[string]interface{})
	if err := row.MapScan(tag); err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// GetTagByName retrieves a tag by name, or nil if it doesn't exist
func (db *DB) GetTagByName(name string) (map[string]interface{}, error) {
	query := `SELECT id, name, color, source, created_at FROM tags WHERE name = ?`
	row := db.QueryRowx(query, name)

	tag := make(map[string]interface{})
	if err := row.MapScan(tag); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}

	return tag, nil
}

// DeleteTag deletes a tag
func (db *DB) DeleteTag(tagID int64) error {
	query := `DELETE FROM tags WHERE id = ?`
	_, err := db.Exec(query, tagID)
	if err != nil {
		return fmt.Errorf("failed to delete tag: %w", err)
	}
	return nil
}

// AssignTagToMedia assigns a tag to a media item
func (db *DB) AssignTagToMedia(mediaID int64, tagID int64) error {
	query := `INSERT OR IGNORE INTO tag_assignments (media_id, tag_id) VALUES (?, ?)`
	_, err := db.Exec(query, mediaID, tagID)
	if err != nil {
		return fmt.Errorf("failed to assign tag: %w", err)
	}
	return nil
}

// RemoveTagFromMedia removes a tag from a media item
func (db *DB) RemoveTagFromMedia(mediaID int64, tagID int64) error {
	query := `DELETE FROM tag_assignments WHERE media_id = ? AND tag_id = ?`
	_, err := db.Exec(query, mediaID, tagID)
	if err != nil {
		return fmt.Errorf("failed to remove tag: %w", err)
	}
	return nil
}

// GetTagsForMedia retrieves all tags assigned to a media item
func (db *DB) GetTagsForMedia(mediaID int64) ([]map[string]interface{}, error) {
	query := `
		SELECT t.id, t.name, t.color, t.source, t.created_at
		FROM tags t
		INNER JOIN tag_assignments a ON t.id = a.tag_id
		WHERE a.media_id = ?
		ORDER BY t.name ASC
	`

	rows, err := db.Queryx(query, mediaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []map[string]interface{}
	for rows.Next() {
		tag := make(map[string]interface{})
		if err := rows.MapScan(tag); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}

	return tags, nil
}

// GetUntaggedImages returns image media items that have no tags assigned
func (db *DB) GetUntaggedImages() ([]map[string]interface{}, error) {
	query := `
		SELECT m.id, m.file_path, m.title
		FROM media m
		LEFT JOIN tag_assignments a ON m.id = a.media_id
		WHERE a.media_id IS NULL
		AND (m.media_type = 'image' OR m.media_type LIKE 'image/%')
		ORDER BY m.uploaded_at DESC
	`

	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query untagged images: %w", err)
	}
	defer rows.Close()

	var media []map[string]interface{}
	for rows.Next() {
		item := make(map[string]interface{})
		if err := rows.MapScan(item); err != nil {
			return nil, fmt.Errorf("failed to scan media: %w", err)
		}
		media = append(media, item)
	}

	return media, nil
}
