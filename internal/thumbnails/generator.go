package thumbnails

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// Generator handles thumbnail generation for images and videos
type Generator struct {
	MaxWidth    int
	MaxHeight   int
	Quality     int
	BaseDir     string
	VideoMethod string
	FFmpegPath  string
}

// NewGenerator creates a new thumbnail generator
func NewGenerator(maxWidth, maxHeight, quality int, baseDir string, videoMethod string) *Generator {
	ffmpegPath, _ := exec.LookPath("ffmpeg")

	return &Generator{
		MaxWidth:    maxWidth,
		MaxHeight:   maxHeight,
		Quality:     quality,
		BaseDir:     baseDir,
		VideoMethod: videoMethod,
		FFmpegPath:  ffmpegPath,
	}
}

// GenerateThumbnail creates a thumbnail for the given media file
func (g *Generator) GenerateThumbnail(mediaPath string, mediaType string) (string, int, int, error) {
	if err := os.MkdirAll(g.BaseDir, 0755); err != nil {
		return "", 0, 0, fmt.Errorf("failed to create thumbnail directory: %w", err)
	}

	thumbnailPath := g.GetThumbnailPath(mediaPath)

	// Reuse an existing thumbnail
	if _, err := os.Stat(thumbnailPath); err == nil {
		img, err := imaging.Open(thumbnailPath)
		if err == nil {
			bounds := img.Bounds()
			return thumbnailPath, bounds.Dx(), bounds.Dy(), nil
		}
	}

	var width, height int
	var err error

	if isVideoType(mediaType) {
		width, height, err = g.generateVideoThumbnail(mediaPath, thumbnailPath)
	} else if isImageType(mediaType) {
		width, height, err = g.generateImageThumbnail(mediaPath, thumbnailPath)
	} else {
		return "", 0, 0, fmt.Errorf("unsupported media type: %s", mediaType)
	}

	if err != nil {
		return "", 0, 0, err
	}

	return thumbnailPath, width, height, nil
}

// generateImageThumbnail creates a thumbnail from an image file
func (g *Generator) generateImageThumbnail(imagePath string, thumbnailPath string) (int, int, error) {
	img, err := imaging.Open(imagePath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open image: %w", err)
	}

	bounds := img.Bounds()
	origWidth := bounds.Dx()
	origHeight := bounds.Dy()

	// Fit preserves aspect ratio
	thumbnail := imaging.Fit(img, g.MaxWidth, g.MaxHeight, imaging.Lanczos)

	err = imaging.Save(thumbnail, thumbnailPath, imaging.JPEGQuality(g.Quality))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to save thumbnail: %w", err)
	}

	finalBounds := thumbnail.Bounds()
	width := finalBounds.Dx()
	height := finalBounds.Dy()

	log.Debugf("Generated image thumbnail: %dx%d (original: %dx%d)", width, height, origWidth, origHeight)

	return width, height, nil
}

// generateVideoThumbnail creates a thumbnail from a video file using ffmpeg
func (g *Generator) generateVideoThumbnail(videoPath string, thumbnailPath string) (int, int, error) {
	if g.FFmpegPath == "" {
		return 0, 0, fmt.Errorf("ffmpeg not found, cannot generate video thumbnail")
	}

	cmd := exec.Command(
		g.FFmpegPath,
		"-ss", "00:00:01", // Seek to 1 second
		"-i", videoPath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale='min(%d,iw)':min'(%d,ih)':force_original_aspect_ratio=decrease", g.MaxWidth, g.MaxHeight),
		"-q:v", "2",
		"-y",
		thumbnailPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return 0, 0, fmt.Errorf("ffmpeg failed: %w, output: %s", err, string(output))
	}

	img, err := imaging.Open(thumbnailPath)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open generated thumbnail: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	log.Debugf("Generated video thumbnail: %dx%d", width, height)

	return width, height, nil
}

// GetThumbnailPath returns the expected path for a thumbnail
func (g *Generator) GetThumbnailPath(mediaPath string) string {
	baseName := filepath.Base(mediaPath)
	ext := filepath.Ext(baseName)
	nameWithoutExt := strings.TrimSuffix(baseName, ext)
	return filepath.Join(g.BaseDir, nameWithoutExt+".jpg")
}

// ThumbnailExists checks if a thumbnail already exists
func (g *Generator) ThumbnailExists(mediaPath string) bool {
	thumbnailPath := g.GetThumbnailPath(mediaPath)
	_, err := os.Stat(thumbnailPath)
	return err == nil
}

// ProbeDimensions decodes just the image header to get pixel dimensions
func ProbeDimensions(imageData []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(imageData))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func isImageType(mediaType string) bool {
	return mediaType == "image" || strings.HasPrefix(mediaType, "image/")
}

func isVideoType(mediaType string) bool {
	return mediaType == "video" || strings.HasPrefix(mediaType, "video/")
}
