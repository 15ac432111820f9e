package database

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pictor-app/pictor/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testMedia(hash string) *models.MediaItem {
	return &models.MediaItem{
		Title:      "sunset over water",
		Uploader:   "alice",
		MediaHash:  hash,
		FileName:   hash + ".png",
		FilePath:   "/media/" + hash + ".png",
		FileSize:   2048,
		MediaType:  "image",
		Width:      512,
		Height:     512,
		UploadedAt: time.Now().UTC(),
	}
}

func TestSaveAndGetMedia(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("abc123")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}
	if media.ID == 0 {
		t.Error("expected media ID to be set after save")
	}

	exists, err := db.MediaExists("abc123")
	if err != nil {
		t.Fatalf("MediaExists failed: %v", err)
	}
	if !exists {
		t.Error("expected media to exist")
	}

	exists, err = db.MediaExists("nope")
	if err != nil {
		t.Fatalf("MediaExists failed: %v", err)
	}
	if exists {
		t.Error("expected media to not exist")
	}

	byHash, err := db.GetMediaByHash("abc123")
	if err != nil {
		t.Fatalf("GetMediaByHash failed: %v", err)
	}
	if byHash == nil || byHash.Title != "sunset over water" {
		t.Errorf("unexpected media by hash: %+v", byHash)
	}

	missing, err := db.GetMediaByHash("missing")
	if err != nil {
		t.Fatalf("GetMediaByHash failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing hash")
	}

	byID, err := db.GetMediaByID(media.ID)
	if err != nil {
		t.Fatalf("GetMediaByID failed: %v", err)
	}
	if byID.MediaHash != "abc123" {
		t.Errorf("unexpected media by ID: %+v", byID)
	}

	if _, err := db.GetMediaByID(99999); err == nil {
		t.Error("expected error for missing media ID")
	}
}

func TestDuplicateHashRejected(t *testing.T) {
	db := newTestDB(t)

	if err := db.SaveMedia(testMedia("dup")); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}
	if err := db.SaveMedia(testMedia("dup")); err == nil {
		t.Error("expected unique constraint error for duplicate hash")
	}
}

func TestGetMediaWithFilters(t *testing.T) {
	db := newTestDB(t)

	img := testMedia("img1")
	if err := db.SaveMedia(img); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	vid := testMedia("vid1")
	vid.MediaType = "video"
	if err := db.SaveMedia(vid); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	tagID, err := db.CreateTag("landscape", "#00ff00", models.TagSourceUser)
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := db.AssignTagToMedia(img.ID, tagID); err != nil {
		t.Fatalf("AssignTagToMedia failed: %v", err)
	}

	// No filters
	all, total, err := db.GetMediaWithFilters(MediaFilter{Limit: 10})
	if err != nil {
		t.Fatalf("GetMediaWithFilters failed: %v", err)
	}
	if total != 2 || len(all) != 2 {
		t.Errorf("expected 2 items, got total=%d len=%d", total, len(all))
	}

	// Type filter
	videos, total, err := db.GetMediaWithFilters(MediaFilter{MediaType: "video", Limit: 10})
	if err != nil {
		t.Fatalf("GetMediaWithFilters failed: %v", err)
	}
	if total != 1 || videos[0].MediaHash != "vid1" {
		t.Errorf("unexpected video filter result: total=%d", total)
	}

	// Tag filter
	tagged, total, err := db.GetMediaWithFilters(MediaFilter{Tag: "landscape", Limit: 10})
	if err != nil {
		t.Fatalf("GetMediaWithFilters failed: %v", err)
	}
	if total != 1 || tagged[0].MediaHash != "img1" {
		t.Errorf("unexpected tag filter result: total=%d", total)
	}

	// Album filter
	albumID, err := db.CreateAlbum("favorites", "")
	if err != nil {
		t.Fatalf("CreateAlbum failed: %v", err)
	}
	if err := db.AddMediaToAlbum(albumID, vid.ID); err != nil {
		t.Fatalf("AddMediaToAlbum failed: %v", err)
	}

	inAlbum, total, err := db.GetMediaWithFilters(MediaFilter{AlbumID: albumID, Limit: 10})
	if err != nil {
		t.Fatalf("GetMediaWithFilters failed: %v", err)
	}
	if total != 1 || inAlbum[0].MediaHash != "vid1" {
		t.Errorf("unexpected album filter result: total=%d", total)
	}
}

func TestTagLifecycle(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("m1")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	tagID, err := db.CreateTag("1girl", "#ff0000", models.TagSourcePrompt)
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}

	byName, err := db.GetTagByName("1girl")
	if err != nil {
		t.Fatalf("GetTagByName failed: %v", err)
	}
	if byName == nil {
		t.Fatal("expected tag to be found by name")
	}
	if byName["source"] != models.TagSourcePrompt {
		t.Errorf("unexpected tag source: %v", byName["source"])
	}

	missing, err := db.GetTagByName("nope")
	if err != nil {
		t.Fatalf("GetTagByName failed: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing tag name")
	}

	if err := db.AssignTagToMedia(media.ID, tagID); err != nil {
		t.Fatalf("AssignTagToMedia failed: %v", err)
	}
	// Re-assigning is a no-op
	if err := db.AssignTagToMedia(media.ID, tagID); err != nil {
		t.Fatalf("repeat AssignTagToMedia failed: %v", err)
	}

	tags, err := db.GetTagsForMedia(media.ID)
	if err != nil {
		t.Fatalf("GetTagsForMedia failed: %v", err)
	}
	if len(tags) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(tags))
	}

	if err := db.RemoveTagFromMedia(media.ID, tagID); err != nil {
		t.Fatalf("RemoveTagFromMedia failed: %v", err)
	}
	tags, err = db.GetTagsForMedia(media.ID)
	if err != nil {
		t.Fatalf("GetTagsForMedia failed: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected no tags after removal, got %d", len(tags))
	}

	if err := db.DeleteTag(tagID); err != nil {
		t.Fatalf("DeleteTag failed: %v", err)
	}
}

func TestGetUntaggedImages(t *testing.T) {
	db := newTestDB(t)

	img := testMedia("untagged")
	if err := db.SaveMedia(img); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	vid := testMedia("video-untagged")
	vid.MediaType = "video"
	if err := db.SaveMedia(vid); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	untagged, err := db.GetUntaggedImages()
	if err != nil {
		t.Fatalf("GetUntaggedImages failed: %v", err)
	}
	if len(untagged) != 1 {
		t.Fatalf("expected 1 untagged image, got %d", len(untagged))
	}

	tagID, err := db.CreateTag("tagged", "", models.TagSourceUser)
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := db.AssignTagToMedia(img.ID, tagID); err != nil {
		t.Fatalf("AssignTagToMedia failed: %v", err)
	}

	untagged, err = db.GetUntaggedImages()
	if err != nil {
		t.Fatalf("GetUntaggedImages failed: %v", err)
	}
	if len(untagged) != 0 {
		t.Errorf("expected no untagged images, got %d", len(untagged))
	}
}

func TestGenerationDataRoundTrip(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("gen1")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	record := &models.GenerationRecord{
		MediaID:        media.ID,
		Prompt:         "a cat",
		NegativePrompt: "blurry",
		Checkpoint:     "sd15.safetensors",
		Sampler:        "euler",
		Seed:           42,
		Steps:          20,
		CFGScale:       7.5,
		Width:          512,
		Height:         768,
		Raw:            `{"prompt":"a cat"}`,
	}

	if err := db.SaveGenerationData(record); err != nil {
		t.Fatalf("SaveGenerationData failed: %v", err)
	}

	got, err := db.GetGenerationData(media.ID)
	if err != nil {
		t.Fatalf("GetGenerationData failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected generation data")
	}
	if got.Prompt != "a cat" || got.Seed != 42 || got.CFGScale != 7.5 {
		t.Errorf("unexpected generation data: %+v", got)
	}

	// Missing media returns nil, nil
	none, err := db.GetGenerationData(99999)
	if err != nil {
		t.Fatalf("GetGenerationData failed: %v", err)
	}
	if none != nil {
		t.Error("expected nil for media without generation data")
	}

	// Replace on re-save
	record.Steps = 30
	if err := db.SaveGenerationData(record); err != nil {
		t.Fatalf("SaveGenerationData failed: %v", err)
	}
	got, err = db.GetGenerationData(media.ID)
	if err != nil {
		t.Fatalf("GetGenerationData failed: %v", err)
	}
	if got.Steps != 30 {
		t.Errorf("expected steps 30 after update, got %d", got.Steps)
	}
}

func TestAlbumLifecycle(t *testing.T) {
	db := newTestDB(t)

	m1 := testMedia("a1")
	m2 := testMedia("a2")
	if err := db.SaveMedia(m1); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}
	if err := db.SaveMedia(m2); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	albumID, err := db.CreateAlbum("trips", "vacation photos")
	if err != nil {
		t.Fatalf("CreateAlbum failed: %v", err)
	}

	if err := db.AddMediaToAlbum(albumID, m1.ID); err != nil {
		t.Fatalf("AddMediaToAlbum failed: %v", err)
	}
	if err := db.AddMediaToAlbum(albumID, m2.ID); err != nil {
		t.Fatalf("AddMediaToAlbum failed: %v", err)
	}

	album, err := db.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("GetAlbumByID failed: %v", err)
	}
	// First added media becomes the cover
	if album.CoverID != m1.ID {
		t.Errorf("expected cover %d, got %d", m1.ID, album.CoverID)
	}

	if err := db.SetAlbumCover(albumID, m2.ID); err != nil {
		t.Fatalf("SetAlbumCover failed: %v", err)
	}
	album, err = db.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("GetAlbumByID failed: %v", err)
	}
	if album.CoverID != m2.ID {
		t.Errorf("expected cover %d, got %d", m2.ID, album.CoverID)
	}

	albums, err := db.GetAllAlbums()
	if err != nil {
		t.Fatalf("GetAllAlbums failed: %v", err)
	}
	if len(albums) != 1 {
		t.Fatalf("expected 1 album, got %d", len(albums))
	}

	if err := db.UpdateAlbum(albumID, "trips 2026", "updated"); err != nil {
		t.Fatalf("UpdateAlbum failed: %v", err)
	}
	album, err = db.GetAlbumByID(albumID)
	if err != nil {
		t.Fatalf("GetAlbumByID failed: %v", err)
	}
	if album.Name != "trips 2026" {
		t.Errorf("unexpected album name: %q", album.Name)
	}

	if err := db.RemoveMediaFromAlbum(albumID, m1.ID); err != nil {
		t.Fatalf("RemoveMediaFromAlbum failed: %v", err)
	}

	if err := db.DeleteAlbum(albumID); err != nil {
		t.Fatalf("DeleteAlbum failed: %v", err)
	}
	if _, err := db.GetAlbumByID(albumID); err == nil {
		t.Error("expected error for deleted album")
	}
}

func TestStats(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("stats1")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	record := &models.GenerationRecord{
		MediaID:    media.ID,
		Checkpoint: "sd15.safetensors",
		Sampler:    "euler",
	}
	if err := db.SaveGenerationData(record); err != nil {
		t.Fatalf("SaveGenerationData failed: %v", err)
	}

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats["total_media"] != 1 {
		t.Errorf("expected total_media 1, got %v", stats["total_media"])
	}
	if stats["with_generation_data"] != 1 {
		t.Errorf("expected with_generation_data 1, got %v", stats["with_generation_data"])
	}

	modelStats, err := db.GetModelStats(10)
	if err != nil {
		t.Fatalf("GetModelStats failed: %v", err)
	}
	checkpoints, ok := modelStats["top_checkpoints"].([]map[string]interface{})
	if !ok || len(checkpoints) != 1 {
		t.Fatalf("unexpected checkpoint stats: %v", modelStats["top_checkpoints"])
	}

	timeline, err := db.GetTimelineStats("day")
	if err != nil {
		t.Fatalf("GetTimelineStats failed: %v", err)
	}
	if len(timeline) != 1 {
		t.Errorf("expected 1 timeline bucket, got %d", len(timeline))
	}

	breakdown, err := db.GetStorageBreakdown()
	if err != nil {
		t.Fatalf("GetStorageBreakdown failed: %v", err)
	}
	if breakdown["by_type"] == nil {
		t.Error("expected by_type breakdown")
	}
}

func TestImportRunTracking(t *testing.T) {
	db := newTestDB(t)

	runID, err := db.StartImportRun()
	if err != nil {
		t.Fatalf("StartImportRun failed: %v", err)
	}

	if err := db.UpdateImportRun(runID, 5, 4, 12, 1); err != nil {
		t.Fatalf("UpdateImportRun failed: %v", err)
	}

	if err := db.CompleteImportRun(runID, "completed"); err != nil {
		t.Fatalf("CompleteImportRun failed: %v", err)
	}

	runs, err := db.GetRecentImportRuns(10)
	if err != nil {
		t.Fatalf("GetRecentImportRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0]["status"] != "completed" {
		t.Errorf("unexpected run status: %v", runs[0]["status"])
	}
}

func TestThumbnailStorage(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("thumb1")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	if err := db.SaveThumbnail(media.ID, "/thumbs/thumb1.jpg", 200, 150); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}

	path, err := db.GetThumbnailPath(media.ID)
	if err != nil {
		t.Fatalf("GetThumbnailPath failed: %v", err)
	}
	if path != "/thumbs/thumb1.jpg" {
		t.Errorf("unexpected thumbnail path: %q", path)
	}

	none, err := db.GetThumbnailPath(99999)
	if err != nil {
		t.Fatalf("GetThumbnailPath failed: %v", err)
	}
	if none != "" {
		t.Errorf("expected empty path for missing thumbnail, got %q", none)
	}
}

func TestHashContent(t *testing.T) {
	hash, err := HashContent(strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("HashContent failed: %v", err)
	}
	// sha256("hello")
	expected := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if hash != expected {
		t.Errorf("expected %s, got %s", expected, hash)
	}
}

func TestDeleteMediaCascades(t *testing.T) {
	db := newTestDB(t)

	media := testMedia("cascade1")
	if err := db.SaveMedia(media); err != nil {
		t.Fatalf("SaveMedia failed: %v", err)
	}

	record := &models.GenerationRecord{
		MediaID: media.ID,
		Prompt:  "1girl, blue_eyes",
		Raw:     `{"prompt":"1girl, blue_eyes"}`,
	}
	if err := db.SaveGenerationData(record); err != nil {
		t.Fatalf("SaveGenerationData failed: %v", err)
	}

	tagID, err := db.CreateTag("blue_eyes", "#336699", models.TagSourcePrompt)
	if err != nil {
		t.Fatalf("CreateTag failed: %v", err)
	}
	if err := db.AssignTagToMedia(media.ID, tagID); err != nil {
		t.Fatalf("AssignTagToMedia failed: %v", err)
	}

	albumID, err := db.CreateAlbum("cascade album", "")
	if err != nil {
		t.Fatalf("CreateAlbum failed: %v", err)
	}
	if err := db.AddMediaToAlbum(albumID, media.ID); err != nil {
		t.Fatalf("AddMediaToAlbum failed: %v", err)
	}

	if err := db.SaveThumbnail(media.ID, "/thumbs/cascade1.jpg", 200, 150); err != nil {
		t.Fatalf("SaveThumbnail failed: %v", err)
	}

	if err := db.DeleteMedia(media.ID); err != nil {
		t.Fatalf("DeleteMedia failed: %v", err)
	}

	dependents := map[string]string{
		"generation_data":  `SELECT COUNT(*) FROM generation_data WHERE media_id = ?`,
		"tag_assignments":  `SELECT COUNT(*) FROM tag_assignments WHERE media_id = ?`,
		"album_media":      `SELECT COUNT(*) FROM album_media WHERE media_id = ?`,
		"media_thumbnails": `SELECT COUNT(*) FROM media_thumbnails WHERE media_id = ?`,
	}
	for table, query := range dependents {
		var count int
		if err := db.Get(&count, query, media.ID); err != nil {
			t.Fatalf("count query on %s failed: %v", table, err)
		}
		if count != 0 {
			t.Errorf("expected 0 rows in %s after delete, got %d", table, count)
		}
	}
}

func TestForeignKeysRejectOrphans(t *testing.T) {
	db := newTestDB(t)

	record := &models.GenerationRecord{
		MediaID: 12345,
		Prompt:  "orphan",
	}
	if err := db.SaveGenerationData(record); err == nil {
		t.Error("expected foreign key error saving generation data for missing media")
	}
}
