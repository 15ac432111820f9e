package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pictor-app/pictor/internal/config"
	"github.com/pictor-app/pictor/internal/database"
	"github.com/pictor-app/pictor/internal/importer"
	"github.com/pictor-app/pictor/internal/progress"
	"github.com/pictor-app/pictor/internal/tags"
	"github.com/pictor-app/pictor/internal/thumbnails"
	"github.com/pictor-app/pictor/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Server represents the web server
type Server struct {
	Config            *config.Config
	ConfigPath        string
	DB                *database.DB
	Importer          *importer.Importer
	ProgressTracker   *progress.Tracker
	TagManager        *tags.Manager
	ThumbnailGen      *thumbnails.Generator
	handler           http.Handler
	templates         *template.Template
	websocketUpgrader websocket.Upgrader
}

// New creates a new web server
func New(cfg *config.Config, configPath string, db *database.DB, imp *importer.Importer, progressTracker *progress.Tracker, tagManager *tags.Manager, thumbnailGen *thumbnails.Generator) *Server {
	s := &Server{
		Config:          cfg,
		ConfigPath:      configPath,
		DB:              db,
		Importer:        imp,
		ProgressTracker: progressTracker,
		TagManager:      tagManager,
		ThumbnailGen:    thumbnailGen,
		websocketUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now (can be restricted in production)
			},
		},
	}
	s.setupRoutes()
	return s
}

// securityHeadersMiddleware adds security headers to all responses
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		// Enable XSS protection (legacy but still useful)
		w.Header().Set("X-XSS-Protection", "1; mode=block")

		// Control referrer information
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Content Security Policy - restrictive but allows HTMX and inline styles
		csp := "default-src 'self'; " +
			"script-src 'self' https://unpkg.com 'unsafe-inline'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"font-src 'self'; " +
			"connect-src 'self'; " +
			"media-src 'self'; " +
			"object-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
		w.Header().Set("Content-Security-Policy", csp)

		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		next.ServeHTTP(w, r)
	})
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.templates = template.Must(template.New("").Funcs(template.FuncMap{
		"formatFileSize": formatFileSize,
		"formatDate":     formatDate,
		"add":            func(a, b int) int { return a + b },
		"sub":            func(a, b int) int { return a - b },
	}).Parse(indexTemplate + mediaGridTemplate + statsTemplate + tagsTemplate))

	mux := http.NewServeMux()

	// Main page and HTMX partials
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/media-grid", s.handleMediaGrid)
	mux.HandleFunc("/stats", s.handleStatsPage)
	mux.HandleFunc("/tags", s.handleTagsPage)

	// Media API
	mux.HandleFunc("/api/media", s.handleGetMedia)
	mux.HandleFunc("/api/media/", s.handleMediaByID)
	mux.HandleFunc("/api/upload", s.handleUpload)
	mux.HandleFunc("/api/import", s.handleImportBatch)
	mux.HandleFunc("/api/search", s.handleSearch)

	// Tag API
	mux.HandleFunc("/api/tags", s.handleTags)
	mux.HandleFunc("/api/tags/", s.handleTagByID)
	mux.HandleFunc("/api/media-tags/", s.handleMediaTags)
	mux.HandleFunc("/api/tags/backfill", s.handleTagBackfill)

	// Album API
	mux.HandleFunc("/api/albums", s.handleAlbums)
	mux.HandleFunc("/api/albums/", s.handleAlbumByID)

	// Statistics API
	mux.HandleFunc("/api/stats", s.handleGetStats)
	mux.HandleFunc("/api/stats/timeline", s.handleStatsTimeline)
	mux.HandleFunc("/api/stats/models", s.handleStatsModels)
	mux.HandleFunc("/api/stats/storage", s.handleStatsStorage)
	mux.HandleFunc("/api/stats/imports", s.handleStatsImports)

	// Configuration
	mux.HandleFunc("/api/config", s.handleConfig)

	// WebSocket endpoint for real-time import progress
	mux.HandleFunc("/ws/progress", s.handleWebSocket)

	// Serve media files and thumbnails
	mux.HandleFunc("/media/", s.handleServeMedia)
	mux.HandleFunc("/thumbnails/", s.handleServeThumbnail)

	s.handler = securityHeadersMiddleware(mux)
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.WebServer.Host, s.Config.WebServer.Port)
	log.Infof("Starting web server on http://%s", addr)
	return http.ListenAndServe(addr, s.handler)
}

// Handler returns the configured HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// handleIndex serves the main HTML page
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	stats, _ := s.DB.GetStats()
	allTags, _ := s.DB.GetAllTags()

	data := map[string]interface{}{
		"Stats": stats,
		"Tags":  allTags,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index", data); err != nil {
		log.Errorf("Template error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleStatsPage serves the statistics HTML page
func (s *Server) handleStatsPage(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats()
	if err != nil {
		log.Errorf("Failed to get stats: %v", err)
		stats = map[string]interface{}{"total_media": 0, "with_generation_data": 0, "total_bytes": int64(0)}
	}
	modelStats, err := s.DB.GetModelStats(10)
	if err != nil {
		log.Errorf("Failed to get model stats: %v", err)
		modelStats = map[string]interface{}{}
	}

	data := map[string]interface{}{
		"Stats":  stats,
		"Models": modelStats,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "stats", data); err != nil {
		log.Errorf("Template error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleTagsPage serves the tag management HTML page
func (s *Server) handleTagsPage(w http.ResponseWriter, r *http.Request) {
	allTags, _ := s.DB.GetAllTags()

	data := map[string]interface{}{
		"Tags": allTags,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "tags", data); err != nil {
		log.Errorf("Template error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleMediaGrid serves the media grid (HTMX partial)
func (s *Server) handleMediaGrid(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 50
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	searchQuery := query.Get("search")

	var media []map[string]interface{}
	var total int

	if searchQuery != "" && s.DB.FTSAvailable() {
		results, searchTotal, err := s.DB.SearchMedia(searchQuery, limit, offset)
		if err != nil {
			log.Errorf("Search error: %v", err)
			media, total = s.getMediaList(query, limit, offset)
		} else {
			media = make([]map[string]interface{}, len(results))
			for i, item := range results {
				media[i] = s.mediaToMap(&item)
			}
			total = searchTotal
		}
	} else {
		media, total = s.getMediaList(query, limit, offset)
	}

	data := map[string]interface{}{
		"Media":      media,
		"Total":      total,
		"Limit":      limit,
		"Offset":     offset,
		"HasPrev":    offset > 0,
		"HasNext":    offset+limit < total,
		"Page":       (offset / limit) + 1,
		"TotalPages": (total + limit - 1) / limit,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "media-grid", data); err != nil {
		log.Errorf("Template error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// handleGetMedia returns a paginated list of media
func (s *Server) handleGetMedia(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()

	limit := 50
	if l := query.Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	offset := 0
	if o := query.Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var albumID int64
	if a := query.Get("album"); a != "" {
		albumID, _ = strconv.ParseInt(a, 10, 64)
	}

	filter := database.MediaFilter{
		MediaType: query.Get("type"),
		Tag:       query.Get("tag"),
		AlbumID:   albumID,
		SortBy:    query.Get("sort"),
		SortOrder: query.Get("order"),
		Limit:     limit,
		Offset:    offset,
	}

	mediaItems, total, err := s.DB.GetMediaWithFilters(filter)
	if err != nil {
		log.Errorf("Failed to get media: %v", err)
		http.Error(w, "Failed to query media", http.StatusInternalServerError)
		return
	}

	media := make([]map[string]interface{}, len(mediaItems))
	for i, item := range mediaItems {
		media[i] = s.mediaToMap(&item)
	}

	respondJSON(w, map[string]interface{}{
		"media":  media,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// handleMediaByID routes /api/media/{id} and /api/media/{id}/generation
func (s *Server) handleMediaByID(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 3 {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	id, err := strconv.ParseInt(pathParts[2], 10, 64)
	if err != nil {
		http.Error(w, "Invalid media ID", http.StatusBadRequest)
		return
	}

	if len(pathParts) == 4 {
		switch pathParts[3] {
		case "generation":
			s.handleGetGeneration(w, r, id)
			return
		case "tags":
			s.handleGetMediaItemTags(w, r, id)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetMediaItem(w, r, id)
	case http.MethodPatch:
		s.handleUpdateMediaItem(w, r, id)
	case http.MethodDelete:
		s.handleDeleteMediaItem(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleGetMediaItem returns a specific media item with its tags
func (s *Server) handleGetMediaItem(w http.ResponseWriter, r *http.Request, id int64) {
	media, err := s.DB.GetMediaByID(id)
	if err != nil {
		if err.Error() == "media not found" {
			http.Error(w, "Media not found", http.StatusNotFound)
			return
		}
		log.Errorf("Failed to get media by ID: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := s.mediaToMap(media)

	if assigned, err := s.DB.GetTagsForMedia(id); err == nil {
		response["tags"] = assigned
	}

	respondJSON(w, response)
}

// handleUpdateMediaItem updates mutable media fields (title)
func (s *Server) handleUpdateMediaItem(w http.ResponseWriter, r *http.Request, id int64) {
	var req struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}

	if err := s.DB.UpdateMediaTitle(id, req.Title); err != nil {
		log.Errorf("Failed to update media title: %v", err)
		http.Error(w, "Failed to update media", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{"success": true})
}

// handleDeleteMediaItem deletes a media item and its stored file
func (s *Server) handleDeleteMediaItem(w http.ResponseWriter, r *http.Request, id int64) {
	media, err := s.DB.GetMediaByID(id)
	if err != nil {
		http.Error(w, "Media not found", http.StatusNotFound)
		return
	}

	if err := s.DB.DeleteMedia(id); err != nil {
		log.Errorf("Failed to delete media: %v", err)
		http.Error(w, "Failed to delete media", http.StatusInternalServerError)
		return
	}

	if err := os.Remove(media.FilePath); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove media file %s: %v", media.FilePath, err)
	}

	respondJSON(w, map[string]interface{}{"success": true})
}

// handleGetMediaItemTags lists tags assigned to a media item
func (s *Server) handleGetMediaItemTags(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	assigned, err := s.DB.GetTagsForMedia(id)
	if err != nil {
		log.Errorf("Failed to get media tags: %v", err)
		http.Error(w, "Failed to get tags", http.StatusInternalServerError)
		return
	}

	respondJSON(w, map[string]interface{}{"tags": assigned})
}

// handleGetGeneration returns extracted AI generation metadata for a media item
func (s *Server) handleGetGeneration(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	record, err := s.DB.GetGenerationData(id)
	if err != nil {
		log.Errorf("Failed to get generation data: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if record == nil {
		http.Error(w, "No generation data for media", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"media_id":   record.MediaID,
		"generation": record,
	}

	// Include the full normalized record when available
	if record.Raw != "" {
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(record.Raw), &raw); err == nil {
			response["raw"] = raw
		}
	}

	respondJSON(w, response)
}

// handleUpload ingests a new media file, either as a multipart upload or
// as a JSON body naming a remote URL
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleUploadFromURL(w, r)
		return
	}

	maxBytes := s.Config.Storage.MaxUploadMB * 1024 * 1024
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "Failed to parse upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusInternalServerError)
		return
	}

	if !importer.ShouldImport(header.Filename, s.Config.Importer.IncludeImages, s.Config.Importer.IncludeVideos) {
		http.Error(w, "Unsupported media type", http.StatusUnsupportedMediaType)
		return
	}

	runID := s.Importer.BeginRun()
	media, err := s.Importer.ImportFile(content, header.Filename, r.FormValue("title"), r.FormValue("uploader"), "")
	if err != nil {
		s.Importer.FinishRun(runID, "failed")
		log.Errorf("Upload failed: %v", err)
		http.Error(w, fmt.Sprintf("Upload failed: %v", err), http.StatusBadRequest)
		return
	}
	s.Importer.FinishRun(runID, "completed")

	respondJSON(w, s.importResult(media))
}

// importResult assembles the upload response: the stored media plus any
// generation metadata and tags the pipeline produced
func (s *Server) importResult(media *models.MediaItem) map[string]interface{} {
	result := map[string]interface{}{"media": s.mediaToMap(media)}

	if record, err := s.DB.GetGenerationData(media.ID); err == nil && record != nil {
		result["generation"] = record
	}
	if assigned, err := s.DB.GetTagsForMedia(media.ID); err == nil {
		result["tags"] = assigned
	}

	return result
}

// handleUploadFromURL downloads and ingests a remote media file
func (s *Server) handleUploadFromURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL      string `json:"url"`
		Title    string `json:"title"`
		Uploader string `json:"uploader"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.URL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}

	runID := s.Importer.BeginRun()
	media, err := s.Importer.ImportFromURL(req.URL, req.Title, req.Uploader)
	if err != nil {
		s.Importer.FinishRun(runID, "failed")
		log.Errorf("URL import failed: %v", err)
		http.Error(w, fmt.Sprintf("Import failed: %v", err), http.StatusBadRequest)
		return
	}
	s.Importer.FinishRun(runID, "completed")

	respondJSON(w, s.importResult(media))
}

// handleConfig handles GET and PUT requests for configuration management
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		respondJSON(w, s.Config)
	case http.MethodPut:
		s.handleUpdateConfig(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUpdateConfig updates the configuration and saves it to file
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	newConfig.SetDefaults()

	if err := newConfig.Validate(); err != nil {
		http.Error(w, fmt.Sprintf("Invalid configuration: %v", err), http.StatusBadRequest)
		return
	}

	if err := config.SaveConfig(s.ConfigPath, &newConfig); err != nil {
		log.Errorf("Failed to save config: %v", err)
		http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
		return
	}

	s.Config = &newConfig

	log.Info("Configuration updated successfully")

	respondJSON(w, map[string]interface{}{
		"success": true,
		"message": "Configuration updated successfully. Restart the application for all changes to take effect.",
	})
}

// handleServeMedia serves media files from the storage directory
func (s *Server) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	mediaPath := strings.TrimPrefix(r.URL.Path, "/media/")

	// Prevent directory traversal
	cleanedPath := filepath.Clean(mediaPath)

	if filepath.IsAbs(cleanedPath) || strings.HasPrefix(cleanedPath, "..") {
		log.Warnf("Blocked path traversal attempt: %s", r.URL.Path)
		http.Error(w, "Invalid path", http.StatusBadRequest)
		return
	}

	baseDir := filepath.Clean(s.Config.Storage.BaseDirectory)
	fullPath := filepath.Join(baseDir, cleanedPath)

	// Guard against symlink escapes
	resolvedPath, err := filepath.EvalSymlinks(fullPath)
	if err != nil {
		if _, statErr := os.Stat(fullPath); statErr != nil {
			http.Error(w, "File not found", http.StatusNotFound)
			return
		}
		resolvedPath = fullPath
	}

	if !strings.HasPrefix(resolvedPath, baseDir) {
		log.Warnf("Blocked access outside base directory: %s -> %s", r.URL.Path, resolvedPath)
		http.Error(w, "Invalid path", http.StatusForbidden)
		return
	}

	if _, err := os.Stat(resolvedPath); os.IsNotExist(err) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, resolvedPath)
}

// Helper functions

// mediaToMap converts a media item to the API response form
func (s *Server) mediaToMap(item *models.MediaItem) map[string]interface{} {
	return map[string]interface{}{
		"id":          item.ID,
		"title":       item.Title,
		"uploader":    item.Uploader,
		"source_url":  item.SourceURL,
		"media_hash":  item.MediaHash,
		"file_name":   item.FileName,
		"file_size":   item.FileSize,
		"media_type":  item.MediaType,
		"width":       item.Width,
		"height":      item.Height,
		"uploaded_at": item.UploadedAt.Format(time.RFC3339),
		"serve_url":   "/media/" + item.FileName,
		"thumb_url":   fmt.Sprintf("/thumbnails/%d", item.ID),
	}
}

func (s *Server) getMediaList(query map[string][]string, limit, offset int) ([]map[string]interface{}, int) {
	get := func(key string) string {
		if v, ok := query[key]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}

	var albumID int64
	if a := get("album"); a != "" {
		albumID, _ = strconv.ParseInt(a, 10, 64)
	}

	filter := database.MediaFilter{
		MediaType: get("type"),
		Tag:       get("tag"),
		AlbumID:   albumID,
		SortBy:    get("sort"),
		SortOrder: get("order"),
		Limit:     limit,
		Offset:    offset,
	}

	mediaItems, total, err := s.DB.GetMediaWithFilters(filter)
	if err != nil {
		log.Errorf("Failed to get media: %v", err)
		return []map[string]interface{}{}, 0
	}

	media := make([]map[string]interface{}, len(mediaItems))
	for i, item := range mediaItems {
		media[i] = s.mediaToMap(&item)
	}

	return media, total
}

func formatFileSize(bytes int64) string {
	if bytes < 1024 {
		return fmt.Sprintf("%d B", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	}
	if bytes < 1024*1024*1024 {
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	}
	return fmt.Sprintf("%.1f GB", float64(bytes)/(1024*1024*1024))
}

func formatDate(dateStr string) string {
	t, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		return dateStr
	}
	return t.Format("Jan 2, 2006 3:04 PM")
}
