package models

import "time"

// MediaItem represents a stored media file in the gallery
type MediaItem struct {
	ID         int64     `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Uploader   string    `db:"uploader" json:"uploader"`
	SourceURL  string    `db:"source_url" json:"source_url"`
	MediaHash  string    `db:"media_hash" json:"media_hash"`
	FileName   string    `db:"file_name" json:"file_name"`
	FilePath   string    `db:"file_path" json:"file_path"`
	FileSize   int64     `db:"file_size" json:"file_size"`
	MediaType  string    `db:"media_type" json:"media_type"`
	Width      int       `db:"width" json:"width"`
	Height     int       `db:"height" json:"height"`
	UploadedAt time.Time `db:"uploaded_at" json:"uploaded_at"`
}

// Album represents a named collection of media items
type Album struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CoverID     int64     `db:"cover_id" json:"cover_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Tag represents a booru-style tag
type Tag struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Color     string    `db:"color" json:"color"`
	Source    string    `db:"source" json:"source"` // "user", "ai_prompt" or "ai_vision"
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Tag sources
const (
	TagSourceUser     = "user"
	TagSourcePrompt   = "ai_prompt"
	TagSourceVision   = "ai_vision"
)

// GenerationRecord is the persisted form of extracted AI generation metadata
type GenerationRecord struct {
	MediaID        int64   `db:"media_id" json:"media_id"`
	Prompt         string  `db:"prompt" json:"prompt,omitempty"`
	NegativePrompt string  `db:"negative_prompt" json:"negative_prompt,omitempty"`
	Checkpoint     string  `db:"checkpoint" json:"checkpoint,omitempty"`
	VAE            string  `db:"vae" json:"vae,omitempty"`
	Sampler        string  `db:"sampler" json:"sampler,omitempty"`
	Scheduler      string  `db:"scheduler" json:"scheduler,omitempty"`
	Seed           int64   `db:"seed" json:"seed,omitempty"`
	Steps          int     `db:"steps" json:"steps,omitempty"`
	CFGScale       float64 `db:"cfg_scale" json:"cfg_scale,omitempty"`
	Denoise        float64 `db:"denoise" json:"denoise,omitempty"`
	Width          int     `db:"width" json:"width,omitempty"`
	Height         int     `db:"height" json:"height,omitempty"`
	BatchSize      int     `db:"batch_size" json:"batch_size,omitempty"`
	Loras          string  `db:"loras" json:"loras,omitempty"`
	Raw            string  `db:"raw" json:"-"` // full normalized record as JSON
}
