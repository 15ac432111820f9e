package database

import (
	"fmt"
)

// Statistics and import-run tracking methods

// GetStats returns summary statistics about the gallery
func (db *DB) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var totalCount int
	err := db.Get(&totalCount, `SELECT COUNT(*) FROM media`)
	if err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}
	stats["total_media"] = totalCount

	var totalBytes int64
	err = db.Get(&totalBytes, `SELECT COALESCE(SUM(file_size), 0) FROM media`)
	if err != nil {
		return nil, fmt.Errorf("failed to get total size: %w", err)
	}
	stats["total_bytes"] = totalBytes

	var withGeneration int
	err = db.Get(&withGeneration, `SELECT COUNT(*) FROM generation_data`)
	if err != nil {
		return nil, fmt.Errorf("failed to get generation count: %w", err)
	}
	stats["with_generation_data"] = withGeneration

	// Count by media type
	type TypeCount struct {
		MediaType string `db:"media_type"`
		Count     int    `db:"count"`
	}
	var typeCounts []TypeCount
	err = db.Select(&typeCounts, `SELECT media_type, COUNT(*) as count FROM media GROUP BY media_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to get media type counts: %w", err)
	}

	typeMap := make(map[string]int)
	for _, tc := range typeCounts {
		typeMap[tc.MediaType] = tc.Count
	}
	stats["by_type"] = typeMap

	// Most used tags
	type TagCount struct {
		Name  string `db:"name"`
		Count int    `db:"count"`
	}
	var tagCounts []TagCount
	err = db.Select(&tagCounts, `
		SELECT t.name, COUNT(*) as count
		FROM tags t
		INNER JOIN tag_assignments a ON t.id = a.tag_id
		GROUP BY t.name
		ORDER BY count DESC
		LIMIT 10
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get tag counts: %w", err)
	}

	tagMap := make(map[string]int)
	for _, tc := range tagCounts {
		tagMap[tc.Name] = tc.Count
	}
	stats["top_tags"] = tagMap

	return stats, nil
}

// GetModelStats returns usage breakdowns for checkpoints and samplers
// taken from extracted generation metadata
func (db *DB) GetModelStats(limit int) (map[string]interface{}, error) {
	result := make(map[string]interface{})

	checkpointQuery := `
		SELECT checkpoint, COUNT(*) as count
		FROM generation_data
		WHERE checkpoint != ''
		GROUP BY checkpoint
		ORDER BY count DESC
		LIMIT ?
	`

	rows, err := db.Queryx(checkpointQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoint stats: %w", err)
	}
	defer rows.Close()

	var checkpoints []map[string]interface{}
	for rows.Next() {
		item := make(map[string]interface{})
		if err := rows.MapScan(item); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, item)
	}
	result["top_checkpoints"] = checkpoints

	samplerQuery := `
		SELECT sampler, COUNT(*) as count
		FROM generation_data
		WHERE sampler != ''
		GROUP BY sampler
		ORDER BY count DESC
		LIMIT ?
	`

	rows2, err := db.Queryx(samplerQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sampler stats: %w", err)
	}
	defer rows2.Close()

	var samplers []map[string]interface{}
	for rows2.Next() {
		item := make(map[string]interface{})
		if err := rows2.MapScan(item); err != nil {
			return nil, fmt.Errorf("failed to scan sampler: %w", err)
		}
		samplers = append(samplers, item)
	}
	result["top_samplers"] = samplers

	return result, nil
}

// GetTimelineStats retrieves upload statistics over time
func (db *DB) GetTimelineStats(period string) ([]map[string]interface{}, error) {
	var groupBy string
	switch period {
	case "hour":
		groupBy = "strftime('%Y-%m-%d %H:00', uploaded_at)"
	case "day":
		groupBy = "strftime('%Y-%m-%d', uploaded_at)"
	case "week":
		groupBy = "strftime('%Y-W%W', uploaded_at)"
	case "month":
		groupBy = "strftime('%Y-%m', uploaded_at)"
	default:
		groupBy = "strftime('%Y-%m-%d', uploaded_at)"
	}

	query := fmt.Sprintf(`
		SELECT %s as period,
		       COUNT(*) as count,
		       SUM(file_size) as total_bytes
		FROM media
		GROUP BY period
		ORDER BY period DESC
		LIMIT 100
	`, groupBy)

	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var stats []map[string]interface{}
	for rows.Next() {
		stat := make(map[string]interface{})
		if err := rows.MapScan(stat); err != nil {
			return nil, fmt.Errorf("failed to scan stat: %w", err)
		}
		stats = append(stats, stat)
	}

	return stats, nil
}

// GetStorageBreakdown retrieves storage usage by media type and uploader
func (db *DB) GetStorageBreakdown() (map[string]interface{}, error) {
	result := make(map[string]interface{})

	typeQuery := `
		SELECT media_type, COUNT(*) as count, SUM(file_size) as total_bytes
		FROM media
		GROUP BY media_type
		ORDER BY total_bytes DESC
	`

	rows, err := db.Queryx(typeQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query type breakdown: %w", err)
	}
	defer rows.Close()

	var byType []map[string]interface{}
	for rows.Next() {
		item := make(map[string]interface{})
		if err := rows.MapScan(item); err != nil {
			return nil, fmt.Errorf("failed to scan type: %w", err)
		}
		byType = append(byType, item)
	}
	result["by_type"] = byType

	uploaderQuery := `
		SELECT uploader, COUNT(*) as count, SUM(file_size) as total_bytes
		FROM media
		WHERE uploader != ''
		GROUP BY uploader
		ORDER BY total_bytes DESC
		LIMIT 20
	`

	rows2, err := db.Queryx(uploaderQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploader breakdown: %w", err)
	}
	defer rows2.Close()

	var byUploader []map[string]interface{}
	for rows2.Next() {
		item := make(map[string]interface{})
		if err := rows2.MapScan(item); err != nil {
			return nil, fmt.Errorf("failed to scan uploader: %w", err)
		}
		byUploader = append(byUploader, item)
	}
	result["by_uploader"] = byUploader

	return result, nil
}

// Import run tracking

// StartImportRun creates a new import run record
func (db *DB) StartImportRun() (int64, error) {
	query := `INSERT INTO import_runs (status, started_at) VALUES ('running', datetime('now'))`
	result, err := db.Exec(query)
	if err != nil {
		return 0, fmt.Errorf("failed to start import run: %w", err)
	}
	return result.LastInsertId()
}

// UpdateImportRun updates an import run's progress
func (db *DB) UpdateImportRun(runID int64, filesProcessed int, mediaStored int, tagsSeeded int, errorsCount int) error {
	query := `UPDATE import_runs SET files_processed = ?, media_stored = ?, tags_seeded = ?, errors_count = ? WHERE id = ?`
	_, err := db.Exec(query, filesProcessed, mediaStored, tagsSeeded, errorsCount, runID)
	if err != nil {
		return fmt.Errorf("failed to update import run: %w", err)
	}
	return nil
}

// CompleteImportRun marks an import run as completed
func (db *DB) CompleteImportRun(runID int64, status string) error {
	query := `UPDATE import_runs SET status = ?, completed_at = datetime('now') WHERE id = ?`
	_, err := db.Exec(query, status, runID)
	if err != nil {
		return fmt.Errorf("failed to complete import run: %w", err)
	}
	return nil
}

// GetRecentImportRuns retrieves recent import runs for statistics
func (db *DB) GetRecentImportRuns(limit int) ([]map[string]interface{}, error) {
	query := `SELECT * FROM import_runs ORDER BY started_at DESC LIMIT ?`
	rows, err := db.Queryx(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query import runs: %w", err)
	}
	defer rows.Close()

	var runs []map[string]interface{}
	for rows.Next() {
		run := make(map[string]interface{})
		if err := rows.MapScan(run); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// Thumbnail-related methods

// SaveThumbnail saves thumbnail metadata
func (db *DB) SaveThumbnail(mediaID int64, thumbnailPath string, width int, height int) error {
	query := `INSERT OR REPLACE INTO media_thumbnails (media_id, thumbnail_path, width, height, generated_at)
	          VALUES (?, ?, ?, ?, datetime('now'))`
	_, err := db.Exec(query, mediaID, thumbnailPath, width, height)
	if err != nil {
		return fmt.Errorf("failed to save thumbnail: %w", err)
	}
	return nil
}

// GetThumbnailPath retrieves the thumbnail path for a media item
func (db *DB) GetThumbnailPath(mediaID int64) (string, error) {
	var thumbnailPath string
	query := `SELECT thumbnail_path FROM media_thumbnails WHERE media_id = ?`
	err := db.Get(&thumbnailPath, query, mediaID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return "", nil
		}
		return "", fmt.Errorf("failed to get thumbnail path: %w", err)
	}
	return thumbnailPath, nil
}
