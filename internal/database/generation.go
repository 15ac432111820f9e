package database

import (
	"fmt"

	"github.com/pictor-app/pictor/pkg/models"
)

// Generation metadata methods

// SaveGenerationData persists extracted AI generation metadata for a media item
func (db *DB) SaveGenerationData(record *models.GenerationRecord) error {
	query := `
		INSERT OR REPLACE INTO generation_data (
			media_id, prompt, negative_prompt, checkpoint, vae,
			sampler, scheduler, seed, steps, cfg_scale, denoise,
			width, height, batch_size, loras, raw, extracted_at
		) VALUES (
			:media_id, :prompt, :negative_prompt, :checkpoint, :vae,
			:sampler, :scheduler, :seed, :steps, :cfg_scale, :denoise,
			:width, :height, :batch_size, :loras, :raw, datetime('now')
		)
	`

	_, err := db.NamedExec(query, record)
	if err != nil {
		return fmt.Errorf("failed to save generation data: %w", err)
	}

	return nil
}

// GetGenerationData retrieves generation metadata for a media item.
// Returns nil when the media has no extracted metadata.
func (db *DB) GetGenerationData(mediaID int64) (*models.GenerationRecord, error) {
	record := &models.GenerationRecord{}
	query := `
		SELECT media_id, prompt, negative_prompt, checkpoint, vae,
		       sampler, scheduler, seed, steps, cfg_scale, denoise,
		       width, height, batch_size, loras, raw
		FROM generation_data WHERE media_id = ?
	`

	err := db.Get(record, query, mediaID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get generation data: %w", err)
	}

	return record, nil
}

// DeleteGenerationData removes generation metadata for a media item
func (db *DB) DeleteGenerationData(mediaID int64) error {
	query := `DELETE FROM generation_data WHERE media_id = ?`
	_, err := db.Exec(query, mediaID)
	if err != nil {
		return fmt.Errorf("failed to delete generation data: %w", err)
	}
	return nil
}

// GetMediaByCheckpoint retrieves media generated with a given checkpoint model
func (db *DB) GetMediaByCheckpoint(checkpoint string, limit int, offset int) ([]models.MediaItem, int, error) {
	countQuery := `SELECT COUNT(*) FROM generation_data WHERE checkpoint = ?`
	var total int
	if err := db.Get(&total, countQuery, checkpoint); err != nil {
		return nil, 0, fmt.Errorf("failed to count media by checkpoint: %w", err)
	}

	query := `
		SELECT m.* FROM media m
		INNER JOIN generation_data g ON m.id = g.media_id
		WHERE g.checkpoint = ?
		ORDER BY m.uploaded_at DESC
		LIMIT ? OFFSET ?
	`

	var media []models.MediaItem
	if err := db.Select(&media, query, checkpoint, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to query media by checkpoint: %w", err)
	}

	return media, total, nil
}
