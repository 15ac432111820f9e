package database

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pictor-app/pictor/pkg/models"
	log "github.com/sirupsen/logrus"
)

// DB represents the database connection
type DB struct {
	*sqlx.DB
	ftsAvailable bool
}

// New creates a new database connection and initializes the schema.
// Foreign keys are enabled on every pooled connection so the ON DELETE
// CASCADE clauses in the schema actually fire.
func New(dbPath string) (*DB, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &DB{DB: db, ftsAvailable: false}
	if err := database.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// initSchema creates the database tables if they don't exist
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS media (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		uploader TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL DEFAULT '',
		media_hash TEXT NOT NULL UNIQUE,
		file_name TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_size INTEGER NOT NULL,
		media_type TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		uploaded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_media_hash ON media(media_hash);
	CREATE INDEX IF NOT EXISTS idx_media_type ON media(media_type);
	CREATE INDEX IF NOT EXISTS idx_media_uploaded_at ON media(uploaded_at);

	CREATE TABLE IF NOT EXISTS albums (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		cover_id INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS album_media (
		album_id INTEGER NOT NULL,
		media_id INTEGER NOT NULL,
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (album_id, media_id),
		FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE,
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_album_media_album ON album_media(album_id);
	CREATE INDEX IF NOT EXISTS idx_album_media_media ON album_media(media_id);

	-- Tags system
	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		color TEXT,
		source TEXT NOT NULL DEFAULT 'user',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_tags_name ON tags(name);

	CREATE TABLE IF NOT EXISTS tag_assignments (
		media_id INTEGER NOT NULL,
		tag_id INTEGER NOT NULL,
		assigned_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (media_id, tag_id),
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE,
		FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tag_assignments_media ON tag_assignments(media_id);
	CREATE INDEX IF NOT EXISTS idx_tag_assignments_tag ON tag_assignments(tag_id);

	-- AI generation metadata extracted from uploaded files
	CREATE TABLE IF NOT EXISTS generation_data (
		media_id INTEGER PRIMARY KEY,
		prompt TEXT NOT NULL DEFAULT '',
		negative_prompt TEXT NOT NULL DEFAULT '',
		checkpoint TEXT NOT NULL DEFAULT '',
		vae TEXT NOT NULL DEFAULT '',
		sampler TEXT NOT NULL DEFAULT '',
		scheduler TEXT NOT NULL DEFAULT '',
		seed INTEGER NOT NULL DEFAULT 0,
		steps INTEGER NOT NULL DEFAULT 0,
		cfg_scale REAL NOT NULL DEFAULT 0,
		denoise REAL NOT NULL DEFAULT 0,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		batch_size INTEGER NOT NULL DEFAULT 0,
		loras TEXT NOT NULL DEFAULT '',
		raw TEXT NOT NULL DEFAULT '',
		extracted_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_generation_checkpoint ON generation_data(checkpoint);
	CREATE INDEX IF NOT EXISTS idx_generation_sampler ON generation_data(sampler);

	-- Thumbnails
	CREATE TABLE IF NOT EXISTS media_thumbnails (
		media_id INTEGER PRIMARY KEY,
		thumbnail_path TEXT NOT NULL,
		width INTEGER,
		height INTEGER,
		generated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (media_id) REFERENCES media(id) ON DELETE CASCADE
	);

	-- Import run tracking for statistics
	CREATE TABLE IF NOT EXISTS import_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		files_processed INTEGER DEFAULT 0,
		media_stored INTEGER DEFAULT 0,
		tags_seeded INTEGER DEFAULT 0,
		errors_count INTEGER DEFAULT 0,
		status TEXT DEFAULT 'running'
	);

	CREATE INDEX IF NOT EXISTS idx_import_runs_started ON import_runs(started_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	// Initialize FTS5 search index (optional - FTS5 may not be compiled in)
	db.initSearchIndex()

	return nil
}

// initSearchIndex creates the FTS5 search table. Failure is not fatal,
// it just leaves full-text search disabled.
func (db *DB) initSearchIndex() {
	ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS media_search_fts USING fts5(
			media_id UNINDEXED,
			title,
			uploader,
			prompt,
			tag_names
		);
	`

	if _, err := db.Exec(ftsSchema); err != nil {
		log.Warnf("FTS5 search index not available: %v", err)
		log.Warn("To enable search, rebuild with: go build -tags fts5 -o pictor ./cmd/pictor")
		db.ftsAvailable = false
		return
	}

	db.ftsAvailable = true
	log.Debug("FTS5 full-text search enabled")
}

// FTSAvailable reports whether full-text search is enabled
func (db *DB) FTSAvailable() bool {
	return db.ftsAvailable
}

// IndexMediaForSearch inserts or refreshes the search index entry for a media item.
// The prompt comes from extracted generation metadata; tagNames is the space-joined
// list of assigned tags.
func (db *DB) IndexMediaForSearch(mediaID int64, title string, uploader string, prompt string, tagNames string) error {
	if !db.ftsAvailable {
		return nil
	}

	if _, err := db.Exec(`DELETE FROM media_search_fts WHERE media_id = ?`, mediaID); err != nil {
		return fmt.Errorf("failed to clear search entry: %w", err)
	}

	query := `INSERT INTO media_search_fts (media_id, title, uploader, prompt, tag_names) VALUES (?, ?, ?, ?, ?)`
	if _, err := db.Exec(query, mediaID, title, uploader, prompt, tagNames); err != nil {
		return fmt.Errorf("failed to index media for search: %w", err)
	}

	return nil
}

// RemoveMediaFromSearch drops a media item from the search index
func (db *DB) RemoveMediaFromSearch(mediaID int64) error {
	if !db.ftsAvailable {
		return nil
	}
	if _, err := db.Exec(`DELETE FROM media_search_fts WHERE media_id = ?`, mediaID); err != nil {
		return fmt.Errorf("failed to remove search entry: %w", err)
	}
	return nil
}

// RebuildSearchIndex repopulates the FTS index from scratch
func (db *DB) RebuildSearchIndex() error {
	if !db.ftsAvailable {
		return fmt.Errorf("FTS5 search not available")
	}

	if _, err := db.Exec(`DELETE FROM media_search_fts`); err != nil {
		return fmt.Errorf("failed to clear search index: %w", err)
	}

	query := `
		INSERT INTO media_search_fts (media_id, title, uploader, prompt, tag_names)
		SELECT m.id, m.title, m.uploader,
		       COALESCE(g.prompt, ''),
		       COALESCE((SELECT GROUP_CONCAT(t.name, ' ')
		                 FROM tags t
		                 INNER JOIN tag_assignments a ON t.id = a.tag_id
		                 WHERE a.media_id = m.id), '')
		FROM media m
		LEFT JOIN generation_data g ON g.media_id = m.id
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to rebuild search index: %w", err)
	}

	log.Info("FTS5 search index rebuilt")
	return nil
}

// SearchMedia performs full-text search across titles, prompts and tags
func (db *DB) SearchMedia(query string, limit int, offset int) ([]models.MediaItem, int, error) {
	if query == "" {
		return []models.MediaItem{}, 0, nil
	}

	if !db.ftsAvailable {
		return nil, 0, fmt.Errorf("FTS5 search not available - SQLite build does not support FTS5")
	}

	countQuery := `
		SELECT COUNT(*) FROM media_search_fts
		WHERE media_search_fts MATCH ?
	`
	var total int
	if err := db.Get(&total, countQuery, query); err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	searchQuery := `
		SELECT m.* FROM media m
		INNER JOIN media_search_fts fts ON m.id = fts.media_id
		WHERE media_search_fts MATCH ?
		ORDER BY fts.rank
		LIMIT ? OFFSET ?
	`

	var media []models.MediaItem
	if err := db.Select(&media, searchQuery, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("failed to execute search: %w", err)
	}

	return media, total, nil
}

// MediaExists checks if media with the given hash already exists
func (db *DB) MediaExists(hash string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM media WHERE media_hash = ?)`
	err := db.Get(&exists, query, hash)
	if err != nil {
		return false, fmt.Errorf("failed to check media existence: %w", err)
	}
	return exists, nil
}

// SaveMedia saves a media record to the database
func (db *DB) SaveMedia(media *models.MediaItem) error {
	query := `
		INSERT INTO media (
			title, uploader, source_url, media_hash,
			file_name, file_path, file_size, media_type,
			width, height, uploaded_at
		) VALUES (
			:title, :uploader, :source_url, :media_hash,
			:file_name, :file_path, :file_size, :media_type,
			:width, :height, :uploaded_at
		)
	`

	result, err := db.NamedExec(query, media)
	if err != nil {
		return fmt.Errorf("failed to save media: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	media.ID = id
	return nil
}

// GetMediaByHash retrieves a media record by its content hash
func (db *DB) GetMediaByHash(hash string) (*models.MediaItem, error) {
	media := &models.MediaItem{}
	query := `SELECT * FROM media WHERE media_hash = ?`

	err := db.Get(media, query, hash)
	if err != nil {
		// sqlx returns sql.ErrNoRows for Get() when no rows found
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get media by hash: %w", err)
	}

	return media, nil
}

// GetMediaByID retrieves a media record by its ID
func (db *DB) GetMediaByID(id int64) (*models.MediaItem, error) {
	media := &models.MediaItem{}
	query := `SELECT * FROM media WHERE id = ?`

	err := db.Get(media, query, id)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, fmt.Errorf("media not found")
		}
		return nil, fmt.Errorf("failed to get media by ID: %w", err)
	}

	return media, nil
}

// DeleteMedia removes a media record and its assignments
func (db *DB) DeleteMedia(id int64) error {
	if _, err := db.Exec(`DELETE FROM media WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete media: %w", err)
	}
	return db.RemoveMediaFromSearch(id)
}

// UpdateMediaTitle updates the display title of a media item
func (db *DB) UpdateMediaTitle(id int64, title string) error {
	if _, err := db.Exec(`UPDATE media SET title = ? WHERE id = ?`, title, id); err != nil {
		return fmt.Errorf("failed to update media title: %w", err)
	}
	return nil
}

// MediaFilter represents filter options for querying media
type MediaFilter struct {
	MediaType string
	Tag       string
	AlbumID   int64
	SortBy    string
	SortOrder string
	Limit     int
	Offset    int
}

// GetMediaWithFilters retrieves media with optional filters
func (db *DB) GetMediaWithFilters(filter MediaFilter) ([]models.MediaItem, int, error) {
	query := `SELECT DISTINCT m.* FROM media m`
	countQuery := `SELECT COUNT(DISTINCT m.id) FROM media m`

	var joins []string
	var whereClauses []string
	var args []interface{}

	if filter.Tag != "" {
		joins = append(joins,
			"INNER JOIN tag_assignments ta ON m.id = ta.media_id",
			"INNER JOIN tags t ON ta.tag_id = t.id")
		whereClauses = append(whereClauses, "t.name = ?")
		args = append(args, filter.Tag)
	}

	if filter.AlbumID > 0 {
		joins = append(joins, "INNER JOIN album_media am ON m.id = am.media_id")
		whereClauses = append(whereClauses, "am.album_id = ?")
		args = append(args, filter.AlbumID)
	}

	if filter.MediaType != "" {
		whereClauses = append(whereClauses, "m.media_type = ?")
		args = append(args, filter.MediaType)
	}

	if len(joins) > 0 {
		joinClause := " " + strings.Join(joins, " ")
		query += joinClause
		countQuery += joinClause
	}

	if len(whereClauses) > 0 {
		whereClause := " WHERE " + strings.Join(whereClauses, " AND ")
		query += whereClause
		countQuery += whereClause
	}

	var total int
	if err := db.Get(&total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get count: %w", err)
	}

	allowedSortFields := map[string]bool{
		"uploaded_at": true,
		"file_size":   true,
		"title":       true,
	}

	sortBy := filter.SortBy
	if !allowedSortFields[sortBy] {
		sortBy = "uploaded_at"
	}

	sortOrder := filter.SortOrder
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	query += fmt.Sprintf(" ORDER BY m.%s %s LIMIT ? OFFSET ?", sortBy, sortOrder)
	args = append(args, filter.Limit, filter.Offset)

	var media []models.MediaItem
	if err := db.Select(&media, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to query media: %w", err)
	}

	return media, total, nil
}

// HashContent computes the SHA256 hash of content
func HashContent(content io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, content); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
