package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pictor-app/pictor/internal/aimeta"
	"github.com/pictor-app/pictor/internal/database"
	"github.com/pictor-app/pictor/internal/pngmeta"
	"github.com/pictor-app/pictor/internal/progress"
	"github.com/pictor-app/pictor/internal/tags"
	"github.com/pictor-app/pictor/internal/thumbnails"
	"github.com/pictor-app/pictor/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Importer handles ingesting media files into the gallery
type Importer struct {
	DB             *database.DB
	Tags           *tags.Manager
	Thumbnails     *thumbnails.Generator
	Tracker        *progress.Tracker
	HTTPClient     *http.Client
	BaseDir        string
	MaxFileSize    int64
	SeedFromPrompt bool

	// Batch import settings, from ImporterConfig
	BaseURL        string
	MaxPostsPerRun int
	RequestDelay   time.Duration
}

// New creates a new Importer instance
func New(db *database.DB, tagManager *tags.Manager, thumbGen *thumbnails.Generator, tracker *progress.Tracker, baseDir string, maxUploadMB int64, seedFromPrompt bool) *Importer {
	return &Importer{
		DB:   db,
		Tags: tagManager,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		Thumbnails:     thumbGen,
		Tracker:        tracker,
		BaseDir:        baseDir,
		MaxFileSize:    maxUploadMB * 1024 * 1024,
		SeedFromPrompt: seedFromPrompt,
	}
}

// ImportFile ingests media content into the gallery: deduplicates by hash,
// stores the file, extracts AI generation metadata from PNG text chunks,
// seeds tags from the prompt and generates a thumbnail.
func (im *Importer) ImportFile(content []byte, originalName string, title string, uploader string, sourceURL string) (*models.MediaItem, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty file content")
	}

	if im.MaxFileSize > 0 && int64(len(content)) > im.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(content), im.MaxFileSize)
	}

	if im.Tracker != nil {
		im.Tracker.UpdateFile(originalName)
		im.Tracker.IncrementFiles()
	}

	hash, err := database.HashContent(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to hash content: %w", err)
	}

	exists, err := im.DB.MediaExists(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check media existence: %w", err)
	}
	if exists {
		log.Debugf("Media already exists (hash: %s), skipping import", hash[:16])
		return im.DB.GetMediaByHash(hash)
	}

	mediaType := determineMediaType("", originalName)
	fileName := buildFileName(originalName)

	if err := os.MkdirAll(im.BaseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	filePath := filepath.Join(im.BaseDir, fileName)
	if err := os.WriteFile(filePath, content, 0600); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	if title == "" {
		title = strings.TrimSuffix(originalName, filepath.Ext(originalName))
	}

	media := &models.MediaItem{
		Title:      title,
		Uploader:   uploader,
		SourceURL:  sourceURL,
		MediaHash:  hash,
		FileName:   fileName,
		FilePath:   filePath,
		FileSize:   int64(len(content)),
		MediaType:  mediaType,
		UploadedAt: time.Now().UTC(),
	}

	if mediaType == "image" {
		if width, height, err := thumbnails.ProbeDimensions(content); err == nil {
			media.Width = width
			media.Height = height
		}
	}

	if err := im.DB.SaveMedia(media); err != nil {
		// Clean up file if database save fails
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to save media to database: %w", err)
	}

	if im.Tracker != nil {
		im.Tracker.IncrementMedia()
	}

	prompt := im.extractGeneration(media, content)

	if im.SeedFromPrompt && prompt != "" && im.Tags != nil {
		seeded, err := im.Tags.SeedFromPrompt(media.ID, prompt)
		if err != nil {
			log.Warnf("Failed to seed tags for media ID %d: %v", media.ID, err)
		} else if seeded > 0 && im.Tracker != nil {
			im.Tracker.AddSeededTags(seeded)
		}
	}

	im.generateThumbnail(media)
	im.indexForSearch(media, prompt)

	log.Infof("Imported media: %s (%s, %d bytes)", fileName, mediaType, len(content))
	return media, nil
}

// ImportFromURL downloads a media file and ingests it
func (im *Importer) ImportFromURL(mediaURL string, title string, uploader string) (*models.MediaItem, error) {
	if mediaURL == "" {
		return nil, fmt.Errorf("empty media URL")
	}

	// Validate URL to prevent SSRF attacks
	if err := validateURL(mediaURL); err != nil {
		return nil, fmt.Errorf("invalid media URL: %w", err)
	}

	log.Debugf("Downloading media from: %s", mediaURL)

	resp, err := im.HTTPClient.Get(mediaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
			if im.MaxFileSize > 0 && size > im.MaxFileSize {
				return nil, fmt.Errorf("file too large: %d bytes (max %d)", size, im.MaxFileSize)
			}
		}
	}

	// +1 to detect oversized bodies without a Content-Length header
	limitedReader := io.LimitReader(resp.Body, im.MaxFileSize+1)
	content, err := io.ReadAll(limitedReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read media content: %w", err)
	}

	if im.MaxFileSize > 0 && int64(len(content)) > im.MaxFileSize {
		return nil, fmt.Errorf("file too large: exceeds %d bytes", im.MaxFileSize)
	}

	originalName := filepath.Base(mediaURL)
	originalName = strings.Split(originalName, "?")[0]

	return im.ImportFile(content, originalName, title, uploader, mediaURL)
}

// BatchResult summarizes a tracked import run
type BatchResult struct {
	RunID     int64    `json:"run_id"`
	Requested int      `json:"requested"`
	Imported  int      `json:"imported"`
	Errors    []string `json:"errors,omitempty"`
}

// BeginRun opens a tracked import run and resets the progress tracker.
// Returns 0 when run bookkeeping is unavailable; imports still proceed.
func (im *Importer) BeginRun() int64 {
	if im.Tracker != nil {
		im.Tracker.Start()
	}

	runID, err := im.DB.StartImportRun()
	if err != nil {
		log.Warnf("Failed to record import run: %v", err)
		return 0
	}
	return runID
}

// FinishRun copies the tracker counters into the run row and closes it
func (im *Importer) FinishRun(runID int64, status string) {
	if im.Tracker != nil {
		st := im.Tracker.GetStatus()
		if runID != 0 {
			if err := im.DB.UpdateImportRun(runID, st.FilesProcessed, st.MediaStored, st.TagsSeeded, st.ErrorsCount); err != nil {
				log.Warnf("Failed to update import run %d: %v", runID, err)
			}
		}
		im.Tracker.Stop()
	}

	if runID != 0 {
		if err := im.DB.CompleteImportRun(runID, status); err != nil {
			log.Warnf("Failed to complete import run %d: %v", runID, err)
		}
	}
}

// ImportBatch downloads a set of URLs as one tracked import run, honoring
// the configured per-run cap and inter-request delay. Relative URLs are
// resolved against the configured base URL. Per-URL failures are collected
// rather than aborting the run.
func (im *Importer) ImportBatch(urls []string, uploader string) (*BatchResult, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("no URLs to import")
	}

	if im.MaxPostsPerRun > 0 && len(urls) > im.MaxPostsPerRun {
		log.Infof("Limiting import run to %d of %d URLs", im.MaxPostsPerRun, len(urls))
		urls = urls[:im.MaxPostsPerRun]
	}

	result := &BatchResult{Requested: len(urls)}
	result.RunID = im.BeginRun()

	for i, mediaURL := range urls {
		if i > 0 && im.RequestDelay > 0 {
			time.Sleep(im.RequestDelay)
		}

		resolved, err := im.resolveURL(mediaURL)
		if err == nil {
			_, err = im.ImportFromURL(resolved, "", uploader)
		}
		if err != nil {
			log.Warnf("Failed to import %s: %v", mediaURL, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", mediaURL, err))
			if im.Tracker != nil {
				im.Tracker.IncrementErrors()
			}
			continue
		}
		result.Imported++
	}

	status := "completed"
	if result.Imported == 0 && len(result.Errors) > 0 {
		status = "failed"
	}
	im.FinishRun(result.RunID, status)

	return result, nil
}

// resolveURL resolves a possibly-relative URL against the configured base URL
func (im *Importer) resolveURL(mediaURL string) (string, error) {
	if im.BaseURL == "" || strings.Contains(mediaURL, "://") {
		return mediaURL, nil
	}

	base, err := url.Parse(im.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	ref, err := url.Parse(mediaURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", mediaURL, err)
	}
	return base.ResolveReference(ref).String(), nil
}

// extractGeneration reads PNG textual metadata, runs the generation-data
// extractors and persists the result. Returns the extracted prompt, if any.
func (im *Importer) extractGeneration(media *models.MediaItem, content []byte) string {
	if !strings.HasSuffix(strings.ToLower(media.FileName), ".png") {
		return ""
	}

	meta, err := pngmeta.ReadMetadata(bytes.NewReader(content))
	if err != nil || meta == nil {
		return ""
	}

	data := aimeta.ExtractGenerationData(meta)
	if data == nil {
		return ""
	}

	record := buildGenerationRecord(media.ID, data)
	if err := im.DB.SaveGenerationData(record); err != nil {
		log.Warnf("Failed to save generation data for media ID %d: %v", media.ID, err)
		return record.Prompt
	}

	log.Debugf("Extracted generation data for media ID %d (checkpoint: %s)", media.ID, record.Checkpoint)
	return record.Prompt
}

// generateThumbnail creates and records a thumbnail, best effort
func (im *Importer) generateThumbnail(media *models.MediaItem) {
	if im.Thumbnails == nil {
		return
	}

	thumbPath, width, height, err := im.Thumbnails.GenerateThumbnail(media.FilePath, media.MediaType)
	if err != nil {
		log.Debugf("Thumbnail generation failed for media ID %d: %v", media.ID, err)
		return
	}

	if err := im.DB.SaveThumbnail(media.ID, thumbPath, width, height); err != nil {
		log.Warnf("Failed to record thumbnail for media ID %d: %v", media.ID, err)
	}
}

// indexForSearch adds the media item to the full-text search index
func (im *Importer) indexForSearch(media *models.MediaItem, prompt string) {
	if !im.DB.FTSAvailable() {
		return
	}

	var tagNames []string
	if assigned, err := im.DB.GetTagsForMedia(media.ID); err == nil {
		for _, tag := range assigned {
			if name, ok := tag["name"].(string); ok {
				tagNames = append(tagNames, name)
			}
		}
	}

	if err := im.DB.IndexMediaForSearch(media.ID, media.Title, media.Uploader, prompt, strings.Join(tagNames, " ")); err != nil {
		log.Warnf("Failed to index media ID %d for search: %v", media.ID, err)
	}
}

// buildGenerationRecord maps an extracted generation-data record onto the
// persisted row form
func buildGenerationRecord(mediaID int64, data map[string]interface{}) *models.GenerationRecord {
	checkpoint := asString(data["checkpoint"])
	if checkpoint == "" {
		// Parameter-block metadata names the checkpoint "model"
		checkpoint = asString(data["model"])
	}

	record := &models.GenerationRecord{
		MediaID:        mediaID,
		Prompt:         asString(data["prompt"]),
		NegativePrompt: asString(data["negative_prompt"]),
		Checkpoint:     checkpoint,
		VAE:            asString(data["vae"]),
		Sampler:        asString(data["sampler"]),
		Scheduler:      asString(data["scheduler"]),
		Seed:           asInt64(data["seed"]),
		Steps:          int(asInt64(data["steps"])),
		CFGScale:       asFloat(data["cfg_scale"]),
		Denoise:        asFloat(data["denoise"]),
		Width:          int(asInt64(data["width"])),
		Height:         int(asInt64(data["height"])),
		BatchSize:      int(asInt64(data["batch_size"])),
		Loras:          asString(data["loras"]),
	}

	if raw, err := json.Marshal(data); err == nil {
		record.Raw = string(raw)
	}

	return record
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// buildFileName creates a unique content-addressed file name that keeps the
// original extension
func buildFileName(originalName string) string {
	ext := filepath.Ext(originalName)
	base := strings.TrimSuffix(filepath.Base(originalName), ext)
	base = sanitizePath(base)
	if base == "" {
		base = "media"
	}
	return fmt.Sprintf("%s_%s%s", uuid.New().String()[:8], base, strings.ToLower(ext))
}

// determineMediaType determines the media type from content type and file name
func determineMediaType(contentType, name string) string {
	contentType = strings.ToLower(contentType)
	name = strings.ToLower(name)

	if strings.Contains(contentType, "image") ||
		strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg") ||
		strings.HasSuffix(name, ".png") || strings.HasSuffix(name, ".gif") ||
		strings.HasSuffix(name, ".webp") || strings.HasSuffix(name, ".bmp") {
		return "image"
	}

	if strings.Contains(contentType, "video") ||
		strings.HasSuffix(name, ".mp4") || strings.HasSuffix(name, ".webm") ||
		strings.HasSuffix(name, ".mov") || strings.HasSuffix(name, ".avi") ||
		strings.HasSuffix(name, ".mkv") || strings.HasSuffix(name, ".m4v") {
		return "video"
	}

	return "other"
}

// sanitizePath removes invalid characters from path names
func sanitizePath(path string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|", " "}
	result := path
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	return result
}

// ShouldImport checks if a media file should be imported based on type and config
func ShouldImport(name string, includeImages, includeVideos bool) bool {
	switch determineMediaType("", name) {
	case "image":
		return includeImages
	case "video":
		return includeVideos
	default:
		return false
	}
}

// validateURL validates a URL to prevent SSRF attacks
func validateURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	// Only allow HTTP and HTTPS schemes
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (only http and https allowed)", parsedURL.Scheme)
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a hostname")
	}

	hostname := strings.ToLower(parsedURL.Hostname())

	localAddresses := []string{
		"localhost",
		"127.0.0.1",
		"0.0.0.0",
		"[::1]",
		"::1",
	}

	for _, local := range localAddresses {
		if hostname == local {
			return fmt.Errorf("access to localhost is not allowed")
		}
	}

	privateRanges := []string{
		"10.",     // 10.0.0.0/8
		"172.16.", // 172.16.0.0/12 (partial check)
		"172.17.",
		"172.18.",
		"172.19.",
		"172.20.",
		"172.21.",
		"172.22.",
		"172.23.",
		"172.24.",
		"172.25.",
		"172.26.",
		"172.27.",
		"172.28.",
		"172.29.",
		"172.30.",
		"172.31.",
		"192.168.", // 192.168.0.0/16
		"169.254.", // 169.254.0.0/16 (link-local)
		"fc00:",    // IPv6 private
		"fd",       // IPv6 private
	}

	for _, privateRange := range privateRanges {
		if strings.HasPrefix(hostname, privateRange) {
			return fmt.Errorf("access to private IP ranges is not allowed")
		}
	}

	return nil
}
