package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// handleImportBatch runs a tracked batch import of remote URLs
func (s *Server) handleImportBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		URLs     []string `json:"urls"`
		Uploader string   `json:"uploader"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := s.Importer.ImportBatch(req.URLs, req.Uploader)
	if err != nil {
		http.Error(w, fmt.Sprintf("Import failed: %v", err), http.StatusBadRequest)
		return
	}

	respondJSON(w, result)
}

// handleSearch performs full-text search across media titles, uploaders,
// generation prompts and tag names
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "Query parameter 'q' is required", http.StatusBadRequest)
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	if !s.DB.FTSAvailable() {
		http.Error(w, "Full-text search is not available", http.StatusServiceUnavailable)
		return
	}

	results, total, err := s.DB.SearchMedia(query, limit, offset)
	if err != nil {
		log.Errorf("Search failed for query %q: %v", query, err)
		http.Error(w, "Search failed", http.StatusInternalServerError)
		return
	}

	media := make([]map[string]interface{}, len(results))
	for i, item := range results {
		media[i] = s.mediaToMap(&item)
	}

	respondJSON(w, map[string]interface{}{
		"query":  query,
		"media":  media,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleTags handles GET (list all) and POST (create) for tags
func (s *Server) handleTags(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tagList, err := s.DB.GetAllTags()
		if err != nil {
			log.Errorf("Failed to get tags: %v", err)
			http.Error(w, "Failed to get tags", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"tags": tagList})

	case http.MethodPost:
		var req struct {
			Name  string `json:"name"`
			Color string `json:"color"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		tagID, err := s.TagManager.CreateUserTag(req.Name, req.Color)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create tag: %v", err), http.StatusBadRequest)
			return
		}

		respondJSON(w, map[string]interface{}{"id": tagID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTagByID handles GET and DELETE for a single tag
func (s *Server) handleTagByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		http.Error(w, "Invalid tag ID", http.StatusBadRequest)
		return
	}

	tagID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		http.Error(w, "Invalid tag ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		tag, err := s.DB.GetTagByID(tagID)
		if err != nil {
			log.Errorf("Failed to get tag: %v", err)
			http.Error(w, "Failed to get tag", http.StatusInternalServerError)
			return
		}
		if tag == nil {
			http.Error(w, "Tag not found", http.StatusNotFound)
			return
		}
		respondJSON(w, tag)

	case http.MethodDelete:
		if err := s.DB.DeleteTag(tagID); err != nil {
			log.Errorf("Failed to delete tag: %v", err)
			http.Error(w, "Failed to delete tag", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleMediaTags handles tag assignments for a media item:
// GET lists, POST assigns, DELETE removes
func (s *Server) handleMediaTags(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	mediaID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		assigned, err := s.DB.GetTagsForMedia(mediaID)
		if err != nil {
			log.Errorf("Failed to get media tags: %v", err)
			http.Error(w, "Failed to get tags", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"tags": assigned})

	case http.MethodPost:
		var req struct {
			TagID   int64  `json:"tag_id"`
			TagName string `json:"tag_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		tagID := req.TagID
		if tagID == 0 && req.TagName != "" {
			tagID, err = s.TagManager.CreateUserTag(req.TagName, "")
			if err != nil {
				http.Error(w, fmt.Sprintf("Failed to create tag: %v", err), http.StatusBadRequest)
				return
			}
		}
		if tagID == 0 {
			http.Error(w, "tag_id or tag_name is required", http.StatusBadRequest)
			return
		}

		if err := s.DB.AssignTagToMedia(mediaID, tagID); err != nil {
			log.Errorf("Failed to assign tag: %v", err)
			http.Error(w, "Failed to assign tag", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true, "tag_id": tagID})

	case http.MethodDelete:
		if len(pathParts) < 4 {
			http.Error(w, "Tag ID required", http.StatusBadRequest)
			return
		}
		tagID, err := strconv.ParseInt(pathParts[3], 10, 64)
		if err != nil {
			http.Error(w, "Invalid tag ID", http.StatusBadRequest)
			return
		}
		if err := s.DB.RemoveTagFromMedia(mediaID, tagID); err != nil {
			log.Errorf("Failed to remove tag: %v", err)
			http.Error(w, "Failed to remove tag", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTagBackfill runs vision auto-tagging over media with no tags yet
func (s *Server) handleTagBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tagged, errs, err := s.TagManager.BackfillUntaggedMedia()
	if err != nil {
		log.Errorf("Tag backfill failed: %v", err)
		http.Error(w, fmt.Sprintf("Backfill failed: %v", err), http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"tagged": tagged,
		"errors": errs,
	})
}

// handleAlbums handles GET (list all) and POST (create) for albums
func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		albums, err := s.DB.GetAllAlbums()
		if err != nil {
			log.Errorf("Failed to get albums: %v", err)
			http.Error(w, "Failed to get albums", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"albums": albums})

	case http.MethodPost:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name == "" {
			http.Error(w, "Album name is required", http.StatusBadRequest)
			return
		}

		albumID, err := s.DB.CreateAlbum(req.Name, req.Description)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to create album: %v", err), http.StatusBadRequest)
			return
		}
		respondJSON(w, map[string]interface{}{"id": albumID})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAlbumByID routes /api/albums/{id}, /api/albums/{id}/media and
// /api/albums/{id}/media/{mediaID}
func (s *Server) handleAlbumByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	albumID, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		http.Error(w, "Invalid album ID", http.StatusBadRequest)
		return
	}

	if len(pathParts) >= 4 && pathParts[3] == "media" {
		s.handleAlbumMedia(w, r, albumID, pathParts)
		return
	}

	switch r.Method {
	case http.MethodGet:
		album, err := s.DB.GetAlbumByID(albumID)
		if err != nil {
			http.Error(w, "Album not found", http.StatusNotFound)
			return
		}
		respondJSON(w, album)

	case http.MethodPut:
		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			CoverID     int64  `json:"cover_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.Name != "" {
			if err := s.DB.UpdateAlbum(albumID, req.Name, req.Description); err != nil {
				log.Errorf("Failed to update album: %v", err)
				http.Error(w, "Failed to update album", http.StatusInternalServerError)
				return
			}
		}
		if req.CoverID != 0 {
			if err := s.DB.SetAlbumCover(albumID, req.CoverID); err != nil {
				log.Errorf("Failed to set album cover: %v", err)
				http.Error(w, "Failed to set album cover", http.StatusInternalServerError)
				return
			}
		}
		respondJSON(w, map[string]interface{}{"success": true})

	case http.MethodDelete:
		if err := s.DB.DeleteAlbum(albumID); err != nil {
			log.Errorf("Failed to delete album: %v", err)
			http.Error(w, "Failed to delete album", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleAlbumMedia adds or removes media from an album
func (s *Server) handleAlbumMedia(w http.ResponseWriter, r *http.Request, albumID int64, pathParts []string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			MediaID int64 `json:"media_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if req.MediaID == 0 {
			http.Error(w, "media_id is required", http.StatusBadRequest)
			return
		}
		if err := s.DB.AddMediaToAlbum(albumID, req.MediaID); err != nil {
			log.Errorf("Failed to add media to album: %v", err)
			http.Error(w, "Failed to add media to album", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true})

	case http.MethodDelete:
		if len(pathParts) < 5 {
			http.Error(w, "Media ID required", http.StatusBadRequest)
			return
		}
		mediaID, err := strconv.ParseInt(pathParts[4], 10, 64)
		if err != nil {
			http.Error(w, "Invalid media ID", http.StatusBadRequest)
			return
		}
		if err := s.DB.RemoveMediaFromAlbum(albumID, mediaID); err != nil {
			log.Errorf("Failed to remove media from album: %v", err)
			http.Error(w, "Failed to remove media from album", http.StatusInternalServerError)
			return
		}
		respondJSON(w, map[string]interface{}{"success": true})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetStats returns overall library statistics
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats, err := s.DB.GetStats()
	if err != nil {
		log.Errorf("Failed to get stats: %v", err)
		http.Error(w, "Failed to get statistics", http.StatusInternalServerError)
		return
	}

	respondJSON(w, stats)
}

// handleStatsTimeline returns upload counts grouped by time period
func (s *Server) handleStatsTimeline(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = "day"
	}

	timeline, err := s.DB.GetTimelineStats(period)
	if err != nil {
		log.Errorf("Failed to get timeline stats: %v", err)
		http.Error(w, "Failed to get timeline", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{
		"period":   period,
		"timeline": timeline,
	})
}

// handleStatsModels returns the most common checkpoints and samplers
// across extracted generation metadata
func (s *Server) handleStatsModels(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	modelStats, err := s.DB.GetModelStats(limit)
	if err != nil {
		log.Errorf("Failed to get model stats: %v", err)
		http.Error(w, "Failed to get model statistics", http.StatusInternalServerError)
		return
	}

	respondJSON(w, modelStats)
}

// handleStatsStorage returns storage usage breakdown
func (s *Server) handleStatsStorage(w http.ResponseWriter, r *http.Request) {
	breakdown, err := s.DB.GetStorageBreakdown()
	if err != nil {
		log.Errorf("Failed to get storage breakdown: %v", err)
		http.Error(w, "Failed to get storage breakdown", http.StatusInternalServerError)
		return
	}

	respondJSON(w, breakdown)
}

// handleStatsImports returns recent import run history
func (s *Server) handleStatsImports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	runs, err := s.DB.GetRecentImportRuns(limit)
	if err != nil {
		log.Errorf("Failed to get import runs: %v", err)
		http.Error(w, "Failed to get import runs", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{"runs": runs})
}

// handleWebSocket upgrades the connection and streams import progress
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.websocketUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	s.ProgressTracker.RegisterClient(conn)

	// Keep connection alive and drain client messages
	go func() {
		defer s.ProgressTracker.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debugf("WebSocket read error: %v", err)
				}
				break
			}
		}
	}()
}

// handleServeThumbnail serves a generated thumbnail for a media item,
// falling back to the original file when no thumbnail exists
func (s *Server) handleServeThumbnail(w http.ResponseWriter, r *http.Request) {
	idStr := strings.TrimPrefix(r.URL.Path, "/thumbnails/")
	mediaID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	thumbPath, err := s.DB.GetThumbnailPath(mediaID)
	if err != nil {
		log.Errorf("Failed to get thumbnail path: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if thumbPath != "" {
		if _, err := os.Stat(thumbPath); err == nil {
			w.Header().Set("Cache-Control", "public, max-age=86400")
			http.ServeFile(w, r, thumbPath)
			return
		}
	}

	// No thumbnail stored, fall back to the original media file
	media, err := s.DB.GetMediaByID(mediaID)
	if err != nil {
		http.Error(w, "Media not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, media.FilePath)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Failed to encode JSON response: %v", err)
	}
}
