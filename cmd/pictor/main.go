package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pictor-app/pictor/internal/config"
	"github.com/pictor-app/pictor/internal/database"
	"github.com/pictor-app/pictor/internal/importer"
	"github.com/pictor-app/pictor/internal/progress"
	"github.com/pictor-app/pictor/internal/recognition"
	"github.com/pictor-app/pictor/internal/tags"
	"github.com/pictor-app/pictor/internal/thumbnails"
	"github.com/pictor-app/pictor/internal/web"
	log "github.com/sirupsen/logrus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	rebuildIndex := flag.Bool("rebuild-index", false, "Rebuild the full-text search index and exit")
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	if levelStr := os.Getenv("PICTOR_LOG_LEVEL"); levelStr != "" {
		if level, err := log.ParseLevel(levelStr); err == nil {
			log.SetLevel(level)
		} else {
			log.Warnf("Invalid PICTOR_LOG_LEVEL %q, using default", levelStr)
		}
	}
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.BaseDirectory, 0755); err != nil {
		log.Fatalf("Failed to create storage directory: %v", err)
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if !db.FTSAvailable() {
		log.Warn("Full-text search is unavailable, /api/search will return 503")
	}

	if *rebuildIndex || cfg.Search.RebuildIndex {
		log.Info("Rebuilding search index...")
		if err := db.RebuildSearchIndex(); err != nil {
			log.Fatalf("Failed to rebuild search index: %v", err)
		}
		log.Info("Search index rebuilt")
		if *rebuildIndex {
			return
		}
	}

	var classifier recognition.Classifier
	if cfg.Tagging.VisionEnabled {
		switch cfg.Tagging.VisionProvider {
		case "ollama":
			classifier = recognition.NewOllamaClassifier(
				cfg.Tagging.OllamaURL,
				cfg.Tagging.VisionModel,
				cfg.Tagging.ConfidenceThreshold,
				cfg.Tagging.NSFWDetection,
			)
			log.Infof("Vision tagging enabled with ollama model %s", cfg.Tagging.VisionModel)
		default:
			log.Warnf("Unknown vision provider %q, vision tagging disabled", cfg.Tagging.VisionProvider)
		}
	}

	tagManager := tags.NewManager(db, classifier, classifier != nil, cfg.Tagging.MaxSeededTags, cfg.Tagging.DeniedTags)

	var thumbGen *thumbnails.Generator
	if cfg.Thumbnails.Enabled {
		thumbGen = thumbnails.NewGenerator(
			cfg.Thumbnails.MaxWidth,
			cfg.Thumbnails.MaxHeight,
			cfg.Thumbnails.Quality,
			cfg.Thumbnails.Directory,
			cfg.Thumbnails.VideoMethod,
		)
	}

	tracker := progress.NewTracker()

	imp := importer.New(db, tagManager, thumbGen, tracker, cfg.Storage.BaseDirectory, cfg.Storage.MaxUploadMB, cfg.Tagging.SeedFromPrompt)
	imp.BaseURL = cfg.Importer.BaseURL
	imp.MaxPostsPerRun = cfg.Importer.MaxPostsPerRun
	imp.RequestDelay = cfg.Importer.RequestDelay

	if cfg.Importer.Mode == "once" {
		urls := flag.Args()
		if len(urls) == 0 {
			log.Fatal("Import mode \"once\" requires media URLs as arguments")
		}
		result, err := imp.ImportBatch(urls, "")
		if err != nil {
			log.Fatalf("Import run failed: %v", err)
		}
		log.Infof("Import run %d finished: %d of %d imported, %d errors",
			result.RunID, result.Imported, result.Requested, len(result.Errors))
		return
	}

	server := web.New(cfg, *configPath, db, imp, tracker, tagManager, thumbGen)

	if err := server.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
