package database

import (
	"fmt"

	"github.com/pictor-app/pictor/pkg/models"
)

// Album-related methods

// CreateAlbum creates a new album
func (db *DB) CreateAlbum(name string, description string) (int64, error) {
	query := `INSERT INTO albums (name, description) VALUES (?, ?)`
	result, err := db.Exec(query, name, description)
	if err != nil {
		return 0, fmt.Errorf("failed to create album: %w", err)
	}
	return result.LastInsertId()
}

// GetAllAlbums retrieves all albums with their media counts
func (db *DB) GetAllAlbums() ([]map[string]interface{}, error) {
	query := `
		SELECT a.id, a.name, a.description, a.cover_id, a.created_at,
		       COUNT(am.media_id) as media_count
		FROM albums a
		LEFT JOIN album_media am ON a.id = am.album_id
		GROUP BY a.id
		ORDER BY a.name ASC
	`

	rows, err := db.Queryx(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query albums: %w", err)
	}
	defer rows.Close()

	var albums []map[string]interface{}
	for rows.Next() {
		album := make(map[string]interface{})
		if err := rows.MapScan(album); err != nil {
			return nil, fmt.Errorf("failed to scan album: %w", err)
		}
		albums = append(albums, album)
	}

	return albums, nil
}

// GetAlbumByID retrieves an album by ID
func (db *DB) GetAlbumByID(albumID int64) (*models.Album, error) {
	album := &models.Album{}
	query := `SELECT * FROM albums WHERE id = ?`

	err := db.Get(album, query, albumID)
	if err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, fmt.Errorf("album not found")
		}
		return nil, fmt.Errorf("failed to get album: %w", err)
	}

	return album, nil
}

// UpdateAlbum updates an album's name and description
func (db *DB) UpdateAlbum(albumID int64, name string, description string) error {
	query := `UPDATE albums SET name = ?, description = ? WHERE id = ?`
	_, err := db.Exec(query, name, description, albumID)
	if err != nil {
		return fmt.Errorf("failed to update album: %w", err)
	}
	return nil
}

// DeleteAlbum deletes an album (media items themselves are kept)
func (db *DB) DeleteAlbum(albumID int64) error {
	query := `DELETE FROM albums WHERE id = ?`
	_, err := db.Exec(query, albumID)
	if err != nil {
		return fmt.Errorf("failed to delete album: %w", err)
	}
	return nil
}

// AddMediaToAlbum adds a media item to an album. The first item added
// becomes the album cover if none is set.
func (db *DB) AddMediaToAlbum(albumID int64, mediaID int64) error {
	query := `INSERT OR IGNORE INTO album_media (album_id, media_id) VALUES (?, ?)`
	if _, err := db.Exec(query, albumID, mediaID); err != nil {
		return fmt.Errorf("failed to add media to album: %w", err)
	}

	coverQuery := `UPDATE albums SET cover_id = ? WHERE id = ? AND cover_id = 0`
	if _, err := db.Exec(coverQuery, mediaID, albumID); err != nil {
		return fmt.Errorf("failed to set album cover: %w", err)
	}

	return nil
}

// RemoveMediaFromAlbum removes a media item from an album
func (db *DB) RemoveMediaFromAlbum(albumID int64, mediaID int64) error {
	query := `DELETE FROM album_media WHERE album_id = ? AND media_id = ?`
	_, err := db.Exec(query, albumID, mediaID)
	if err != nil {
		return fmt.Errorf("failed to remove media from album: %w", err)
	}
	return nil
}

// SetAlbumCover sets the cover media for an album
func (db *DB) SetAlbumCover(albumID int64, mediaID int64) error {
	query := `UPDATE albums SET cover_id = ? WHERE id = ?`
	_, err := db.Exec(query, mediaID, albumID)
	if err != nil {
		return fmt.Errorf("failed to set album cover: %w", err)
	}
	return nil
}
