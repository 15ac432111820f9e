package tags

import (
	"fmt"
	"strings"

	"github.com/pictor-app/pictor/internal/aimeta"
	"github.com/pictor-app/pictor/internal/database"
	"github.com/pictor-app/pictor/internal/recognition"
	"github.com/pictor-app/pictor/pkg/models"
	log "github.com/sirupsen/logrus"
)

// Manager handles tag operations, prompt seeding and vision auto-tagging
type Manager struct {
	DB            *database.DB
	Classifier    recognition.Classifier
	VisionEnabled bool
	MaxSeededTags int
	DeniedTags    []string
}

// NewManager creates a new tag manager
func NewManager(db *database.DB, classifier recognition.Classifier, visionEnabled bool, maxSeededTags int, deniedTags []string) *Manager {
	return &Manager{
		DB:            db,
		Classifier:    classifier,
		VisionEnabled: visionEnabled,
		MaxSeededTags: maxSeededTags,
		DeniedTags:    deniedTags,
	}
}

// SeedFromPrompt creates and assigns tags parsed from an extracted generation
// prompt. Denied tags are skipped and at most MaxSeededTags are assigned.
// Returns the number of tags assigned.
func (m *Manager) SeedFromPrompt(mediaID int64, prompt string) (int, error) {
	names := aimeta.ParsePromptTags(prompt)
	if len(names) == 0 {
		return 0, nil
	}

	denied := make(map[string]bool, len(m.DeniedTags))
	for _, d := range m.DeniedTags {
		denied[normalizeTagName(d)] = true
	}

	seen := make(map[string]bool)
	assigned := 0
	for _, name := range names {
		if m.MaxSeededTags > 0 && assigned >= m.MaxSeededTags {
			break
		}
		name = normalizeTagName(name)
		if name == "" || seen[name] || denied[name] {
			continue
		}
		seen[name] = true

		tagID, err := m.getOrCreateTag(name, models.TagSourcePrompt)
		if err != nil {
			log.Warnf("Failed to seed tag %q: %v", name, err)
			continue
		}

		if err := m.DB.AssignTagToMedia(mediaID, tagID); err != nil {
			log.Warnf("Failed to assign seeded tag %q to media %d: %v", name, mediaID, err)
			continue
		}
		assigned++
	}

	if assigned > 0 {
		log.Infof("Seeded %d tags from prompt for media ID %d", assigned, mediaID)
	}

	return assigned, nil
}

// AutoTagMedia generates and assigns tags using the vision classifier
func (m *Manager) AutoTagMedia(mediaID int64, imagePath string) error {
	if !m.VisionEnabled || m.Classifier == nil {
		return nil
	}

	log.Infof("Auto-tagging media ID %d: %s", mediaID, imagePath)

	classification, err := m.Classifier.Classify(imagePath)
	if err != nil {
		log.Errorf("Failed to classify image %s (media ID %d): %v", imagePath, mediaID, err)
		return fmt.Errorf("failed to classify image: %w", err)
	}

	allTags := append(classification.Tags, classification.Categories...)
	allTags = uniqueStrings(allTags)

	if len(allTags) == 0 {
		log.Warnf("No tags generated for media ID %d", mediaID)
		return nil
	}

	denied := make(map[string]bool, len(m.DeniedTags))
	for _, d := range m.DeniedTags {
		denied[normalizeTagName(d)] = true
	}

	assignedCount := 0
	for _, tagName := range allTags {
		if tagName == "" || len(tagName) < 2 {
			continue
		}

		tagName = normalizeTagName(tagName)
		if tagName == "" || denied[tagName] {
			continue
		}

		tagID, err := m.getOrCreateTag(tagName, models.TagSourceVision)
		if err != nil {
			log.Warnf("Failed to create tag %q: %v", tagName, err)
			continue
		}

		if err := m.DB.AssignTagToMedia(mediaID, tagID); err != nil {
			log.Warnf("Failed to assign tag %q to media %d: %v", tagName, mediaID, err)
			continue
		}
		assignedCount++
	}

	log.Infof("Auto-tagged media ID %d with %d tags", mediaID, assignedCount)

	return nil
}

// CreateUserTag creates a manually-created tag (or returns the existing one)
func (m *Manager) CreateUserTag(name string, color string) (int64, error) {
	name = normalizeTagName(name)
	if name == "" {
		return 0, fmt.Errorf("tag name is empty after normalization")
	}

	existing, err := m.DB.GetTagByName(name)
	if err != nil {
		return 0, fmt.Errorf("failed to check existing tag: %w", err)
	}

	if existing != nil {
		return existing["id"].(int64), nil
	}

	if color == "" {
		color = generateColor(name)
	}

	return m.DB.CreateTag(name, color, models.TagSourceUser)
}

// AssignTag assigns an existing tag to media
func (m *Manager) AssignTag(mediaID int64, tagID int64) error {
	return m.DB.AssignTagToMedia(mediaID, tagID)
}

// RemoveTag removes a tag from media
func (m *Manager) RemoveTag(mediaID int64, tagID int64) error {
	return m.DB.RemoveTagFromMedia(mediaID, tagID)
}

// GetTagsForMedia retrieves all tags for a media item
func (m *Manager) GetTagsForMedia(mediaID int64) ([]map[string]interface{}, error) {
	return m.DB.GetTagsForMedia(mediaID)
}

// GetAllTags retrieves all tags
func (m *Manager) GetAllTags() ([]map[string]interface{}, error) {
	return m.DB.GetAllTags()
}

// DeleteTag deletes a tag
func (m *Manager) DeleteTag(tagID int64) error {
	return m.DB.DeleteTag(tagID)
}

// BackfillUntaggedMedia auto-tags all image media that currently has no tags
func (m *Manager) BackfillUntaggedMedia() (int, int, error) {
	if !m.VisionEnabled || m.Classifier == nil {
		return 0, 0, fmt.Errorf("vision auto-tagging is not enabled")
	}

	log.Info("Starting auto-tag backfill for untagged media...")

	untagged, err := m.DB.GetUntaggedImages()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to get untagged images: %w", err)
	}

	total := len(untagged)
	if total == 0 {
		log.Info("No untagged media found")
		return 0, 0, nil
	}

	log.Infof("Found %d untagged images to process", total)

	successCount := 0
	errorCount := 0

	for i, media := range untagged {
		mediaID, ok := media["id"].(int64)
		if !ok {
			log.Warnf("Invalid media ID type for item %d", i)
			errorCount++
			continue
		}

		filePath, ok := media["file_path"].(string)
		if !ok {
			log.Warnf("Invalid file path for media ID %d", mediaID)
			errorCount++
			continue
		}

		log.Infof("Processing %d/%d: Media ID %d", i+1, total, mediaID)

		if err := m.AutoTagMedia(mediaID, filePath); err != nil {
			log.Errorf("Failed to auto-tag media ID %d: %v", mediaID, err)
			errorCount++
		} else {
			successCount++
		}
	}

	log.Infof("Backfill complete: %d succeeded, %d failed out of %d total", successCount, errorCount, total)

	return successCount, errorCount, nil
}

// getOrCreateTag looks a tag up by name, creating it with the given source
// when it does not exist yet
func (m *Manager) getOrCreateTag(name string, source string) (int64, error) {
	tag, err := m.DB.GetTagByName(name)
	if err != nil {
		return 0, err
	}
	if tag != nil {
		return tag["id"].(int64), nil
	}
	return m.DB.CreateTag(name, generateColor(name), source)
}

// Helper functions

// normalizeTagName normalizes a tag name to booru conventions:
// lowercase with underscores instead of whitespace
func normalizeTagName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Join(strings.Fields(name), "_")

	var cleaned strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' || r == '(' || r == ')' {
			cleaned.WriteRune(r)
		}
	}

	return cleaned.String()
}

// generateColor generates a color for a tag based on its name
func generateColor(name string) string {
	colors := []string{
		"#3B82F6", // blue
		"#10B981", // green
		"#F59E0B", // yellow
		"#EF4444", // red
		"#8B5CF6", // purple
		"#EC4899", // pink
		"#06B6D4", // cyan
		"#F97316", // orange
		"#14B8A6", // teal
		"#6366F1", // indigo
	}

	hash := 0
	for _, r := range name {
		hash = int(r) + ((hash << 5) - hash)
	}

	if hash < 0 {
		hash = -hash
	}

	return colors[hash%len(colors)]
}

// uniqueStrings returns a slice with unique strings
func uniqueStrings(slice []string) []string {
	seen := make(map[string]bool)
	result := []string{}

	for _, val := range slice {
		if !seen[val] {
			seen[val] = true
			result = append(result, val)
		}
	}

	return result
}
