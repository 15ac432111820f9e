package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Storage    StorageConfig   `yaml:"storage" json:"storage"`
	Database   DatabaseConfig  `yaml:"database" json:"database"`
	WebServer  WebServerConfig `yaml:"web_server" json:"web_server"`
	Thumbnails ThumbnailConfig `yaml:"thumbnails" json:"thumbnails"`
	Tagging    TaggingConfig   `yaml:"tagging" json:"tagging"`
	Importer   ImporterConfig  `yaml:"importer" json:"importer"`
	Search     SearchConfig    `yaml:"search" json:"search"`
}

// StorageConfig contains settings for media storage
type StorageConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"` // Where uploaded media is stored
	MaxUploadMB   int64  `yaml:"max_upload_mb" json:"max_upload_mb"`   // Maximum accepted file size in MB
}

// DatabaseConfig contains SQLite database settings
type DatabaseConfig struct {
	Path string `yaml:"path" json:"path"` // Path to SQLite database file
}

// WebServerConfig contains web server settings
type WebServerConfig struct {
	Host string `yaml:"host" json:"host"` // Host to bind to (e.g., "localhost", "0.0.0.0")
	Port int    `yaml:"port" json:"port"` // Port to listen on
}

// ThumbnailConfig contains thumbnail generation settings
type ThumbnailConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled"`           // Enable thumbnail generation
	MaxWidth    int    `yaml:"max_width" json:"max_width"`       // Maximum thumbnail width
	MaxHeight   int    `yaml:"max_height" json:"max_height"`     // Maximum thumbnail height
	Quality     int    `yaml:"quality" json:"quality"`           // JPEG quality (1-100)
	Directory   string `yaml:"directory" json:"directory"`       // Directory to store thumbnails
	VideoMethod string `yaml:"video_method" json:"video_method"` // Method for video thumbnails (ffmpeg)
}

// TaggingConfig controls tag seeding from AI generation metadata and
// optional vision-model auto-tagging
type TaggingConfig struct {
	SeedFromPrompt      bool     `yaml:"seed_from_prompt" json:"seed_from_prompt"`         // Pre-fill tags from extracted prompts
	MaxSeededTags       int      `yaml:"max_seeded_tags" json:"max_seeded_tags"`           // Cap on tags seeded per upload
	DeniedTags          []string `yaml:"denied_tags" json:"denied_tags"`                   // Tags never seeded automatically
	VisionEnabled       bool     `yaml:"vision_enabled" json:"vision_enabled"`             // Enable vision-model classification for untagged media
	VisionProvider      string   `yaml:"vision_provider" json:"vision_provider"`           // Vision provider (ollama, none)
	OllamaURL           string   `yaml:"ollama_url" json:"ollama_url"`                     // Ollama API URL
	VisionModel         string   `yaml:"vision_model" json:"vision_model"`                 // Model to use (e.g., llama3.2-vision:latest)
	NSFWDetection       bool     `yaml:"nsfw_detection" json:"nsfw_detection"`             // Enable NSFW content detection
	ConfidenceThreshold float64  `yaml:"confidence_threshold" json:"confidence_threshold"` // Minimum confidence for vision tags (0.0-1.0)
}

// ImporterConfig contains remote booru-post import settings
type ImporterConfig struct {
	BaseURL        string        `yaml:"base_url" json:"base_url"`                   // Base URL relative import URLs resolve against
	Mode           string        `yaml:"mode" json:"mode"`                           // "serve" (web UI) or "once" (batch import then exit)
	MaxPostsPerRun int           `yaml:"max_posts_per_run" json:"max_posts_per_run"` // Maximum posts to import per run
	RequestDelay   time.Duration `yaml:"request_delay" json:"request_delay"`         // Delay between remote requests (e.g., "500ms")
	IncludeImages  bool          `yaml:"include_images" json:"include_images"`       // Import images
	IncludeVideos  bool          `yaml:"include_videos" json:"include_videos"`       // Import videos
}

// SearchConfig contains search settings
type SearchConfig struct {
	RebuildIndex bool `yaml:"rebuild_index" json:"rebuild_index"` // Rebuild FTS index on startup
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.SetDefaults()

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	// Validate before saving
	if err := config.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.BaseDirectory == "" {
		return fmt.Errorf("storage.base_directory is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.WebServer.Port < 0 || c.WebServer.Port > 65535 {
		return fmt.Errorf("web_server.port must be between 0 and 65535")
	}
	if c.Thumbnails.Quality < 0 || c.Thumbnails.Quality > 100 {
		return fmt.Errorf("thumbnails.quality must be between 0 and 100")
	}
	if c.Tagging.ConfidenceThreshold < 0 || c.Tagging.ConfidenceThreshold > 1 {
		return fmt.Errorf("tagging.confidence_threshold must be between 0.0 and 1.0")
	}
	if c.Importer.Mode != "serve" && c.Importer.Mode != "once" {
		return fmt.Errorf("importer.mode must be \"serve\" or \"once\"")
	}
	return nil
}

// SetDefaults sets default values for optional configuration fields
func (c *Config) SetDefaults() {
	if c.Storage.MaxUploadMB == 0 {
		c.Storage.MaxUploadMB = 500
	}

	// Web server defaults
	if c.WebServer.Port == 0 {
		c.WebServer.Port = 8080
	}
	if c.WebServer.Host == "" {
		c.WebServer.Host = "localhost"
	}

	// Thumbnail defaults
	if c.Thumbnails.MaxWidth == 0 {
		c.Thumbnails.MaxWidth = 400
	}
	if c.Thumbnails.MaxHeight == 0 {
		c.Thumbnails.MaxHeight = 400
	}
	if c.Thumbnails.Quality == 0 {
		c.Thumbnails.Quality = 85
	}
	if c.Thumbnails.Directory == "" {
		c.Thumbnails.Directory = "./thumbnails"
	}
	if c.Thumbnails.VideoMethod == "" {
		c.Thumbnails.VideoMethod = "ffmpeg"
	}

	// Tagging defaults
	if c.Tagging.MaxSeededTags == 0 {
		c.Tagging.MaxSeededTags = 25
	}
	if c.Tagging.VisionProvider == "" {
		c.Tagging.VisionProvider = "ollama"
	}
	if c.Tagging.OllamaURL == "" {
		c.Tagging.OllamaURL = "http://localhost:11434"
	}
	if c.Tagging.VisionModel == "" {
		c.Tagging.VisionModel = "llama3.2-vision:latest"
	}
	if c.Tagging.ConfidenceThreshold == 0 {
		c.Tagging.ConfidenceThreshold = 0.6
	}

	// Importer defaults
	if c.Importer.Mode == "" {
		c.Importer.Mode = "serve"
	}
	if c.Importer.MaxPostsPerRun == 0 {
		c.Importer.MaxPostsPerRun = 50
	}
	if c.Importer.RequestDelay == 0 {
		c.Importer.RequestDelay = 500 * time.Millisecond
	}
	if !c.Importer.IncludeImages && !c.Importer.IncludeVideos {
		c.Importer.IncludeImages = true
		c.Importer.IncludeVideos = true
	}
}
