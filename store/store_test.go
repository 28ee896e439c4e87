package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/krau/lenstagger/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveResultPersistsCaptionAndTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePhoto(ctx, "uploads/dog.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}

	caption := "a dog running on the grass"
	tags := []store.TagScore{
		{Name: "grass", Confidence: 0.62},
		{Name: "dog", Confidence: 0.55},
		{Name: "running", Confidence: 0.12},
	}
	if err := s.SaveResult(ctx, id, caption, tags); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	p, err := s.Photo(ctx, id)
	if err != nil {
		t.Fatalf("Photo failed: %v", err)
	}
	if p.Caption == nil || *p.Caption != caption {
		t.Errorf("caption = %v, want %q", p.Caption, caption)
	}
	if !p.TagsGenerated {
		t.Error("tags_generated = false, want true")
	}
	if len(p.Tags) != 3 {
		t.Fatalf("got %d tags, want 3: %v", len(p.Tags), p.Tags)
	}
	for i, want := range tags {
		if p.Tags[i] != want {
			t.Errorf("tags[%d] = %v, want %v", i, p.Tags[i], want)
		}
	}
	for i := 1; i < len(p.Tags); i++ {
		if p.Tags[i].Confidence > p.Tags[i-1].Confidence {
			t.Errorf("tags not sorted descending at %d: %v", i, p.Tags)
		}
	}
}

func TestSaveResultReplacesAssociations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePhoto(ctx, "uploads/cat.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}

	first := []store.TagScore{
		{Name: "cat", Confidence: 0.7},
		{Name: "sofa", Confidence: 0.3},
	}
	if err := s.SaveResult(ctx, id, "a cat on a sofa", first); err != nil {
		t.Fatalf("first SaveResult failed: %v", err)
	}

	second := []store.TagScore{
		{Name: "cat", Confidence: 0.8},
		{Name: "window", Confidence: 0.2},
	}
	if err := s.SaveResult(ctx, id, "a cat by a window", second); err != nil {
		t.Fatalf("second SaveResult failed: %v", err)
	}

	p, err := s.Photo(ctx, id)
	if err != nil {
		t.Fatalf("Photo failed: %v", err)
	}
	if len(p.Tags) != 2 {
		t.Fatalf("got %d tags after reprocess, want 2: %v", len(p.Tags), p.Tags)
	}
	if p.Tags[0].Name != "cat" || p.Tags[0].Confidence != 0.8 {
		t.Errorf("tags[0] = %v, want cat@0.8", p.Tags[0])
	}
	if p.Tags[1].Name != "window" {
		t.Errorf("stale tag survived reprocess: %v", p.Tags)
	}
}

func TestTagNormalization(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreatePhoto(ctx, "uploads/a.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}
	b, err := s.CreatePhoto(ctx, "uploads/b.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}

	if err := s.SaveResult(ctx, a, "a cat", []store.TagScore{{Name: " Cat ", Confidence: 0.9}}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if err := s.SaveResult(ctx, b, "a cat", []store.TagScore{{Name: "cat", Confidence: 0.8}}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	stats, err := s.TagStats(ctx)
	if err != nil {
		t.Fatalf("TagStats failed: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("got %d distinct tags, want 1: %v", len(stats), stats)
	}
	if stats[0].Name != "cat" || stats[0].UsageCount != 2 {
		t.Errorf("stats[0] = %+v, want cat used twice", stats[0])
	}
}

func TestSaveResultSamePhotoDuplicateNormalizedTags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreatePhoto(ctx, "uploads/dup.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}
	tags := []store.TagScore{
		{Name: "Dog", Confidence: 0.6},
		{Name: " dog ", Confidence: 0.5},
	}
	if err := s.SaveResult(ctx, id, "dogs", tags); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	p, err := s.Photo(ctx, id)
	if err != nil {
		t.Fatalf("Photo failed: %v", err)
	}
	if len(p.Tags) != 1 {
		t.Fatalf("got %d association rows, want 1: %v", len(p.Tags), p.Tags)
	}
}

func TestSaveResultUnknownPhoto(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveResult(context.Background(), 9999, "caption", nil)
	if !errors.Is(err, store.ErrPhotoNotFound) {
		t.Errorf("SaveResult(unknown) = %v, want ErrPhotoNotFound", err)
	}
}

func TestUntaggedPhotos(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.CreatePhoto(ctx, "uploads/a.jpg")
	if err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}
	if _, err := s.CreatePhoto(ctx, "uploads/b.jpg"); err != nil {
		t.Fatalf("CreatePhoto failed: %v", err)
	}

	if err := s.SaveResult(ctx, a, "done", nil); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	backlog, err := s.UntaggedPhotos(ctx)
	if err != nil {
		t.Fatalf("UntaggedPhotos failed: %v", err)
	}
	if len(backlog) != 1 {
		t.Fatalf("got %d untagged photos, want 1: %v", len(backlog), backlog)
	}
	if backlog[0].FilePath != "uploads/b.jpg" {
		t.Errorf("backlog[0].FilePath = %q, want uploads/b.jpg", backlog[0].FilePath)
	}
}

func TestTagAnalytics(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a, _ := s.CreatePhoto(ctx, "uploads/a.jpg")
	b, _ := s.CreatePhoto(ctx, "uploads/b.jpg")
	c, _ := s.CreatePhoto(ctx, "uploads/c.jpg")

	if err := s.SaveResult(ctx, a, "beach", []store.TagScore{
		{Name: "beach", Confidence: 0.6}, {Name: "sand", Confidence: 0.3},
	}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if err := s.SaveResult(ctx, b, "beach", []store.TagScore{
		{Name: "beach", Confidence: 0.8}, {Name: "sand", Confidence: 0.4},
	}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	if err := s.SaveResult(ctx, c, "forest", []store.TagScore{
		{Name: "forest", Confidence: 0.9},
	}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	stats, err := s.TagStats(ctx)
	if err != nil {
		t.Fatalf("TagStats failed: %v", err)
	}
	if len(stats) != 3 {
		t.Fatalf("got %d tag stats, want 3: %v", len(stats), stats)
	}
	if stats[0].Name != "beach" || stats[0].UsageCount != 2 {
		t.Errorf("stats[0] = %+v, want beach used twice", stats[0])
	}
	if stats[0].AvgConfidence < 0.69 || stats[0].AvgConfidence > 0.71 {
		t.Errorf("beach avg confidence = %v, want 0.7", stats[0].AvgConfidence)
	}

	related, err := s.RelatedTags(ctx, "beach", 2)
	if err != nil {
		t.Fatalf("RelatedTags failed: %v", err)
	}
	if len(related) != 1 || related[0].Name != "sand" || related[0].Correlation != 2 {
		t.Errorf("RelatedTags = %v, want sand with correlation 2", related)
	}

	// Orphan "forest" by reprocessing photo c with a different tag set.
	if err := s.SaveResult(ctx, c, "lake", []store.TagScore{
		{Name: "lake", Confidence: 0.5},
	}); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}
	removed, err := s.CleanupUnusedTags(ctx)
	if err != nil {
		t.Fatalf("CleanupUnusedTags failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("CleanupUnusedTags removed %d, want 1", removed)
	}

	buckets, err := s.ConfidenceDistribution(ctx)
	if err != nil {
		t.Fatalf("ConfidenceDistribution failed: %v", err)
	}
	if len(buckets) == 0 {
		t.Fatal("ConfidenceDistribution returned no buckets")
	}
	var total int64
	for _, bk := range buckets {
		total += bk.Count
	}
	if total != 5 {
		t.Errorf("distribution covers %d rows, want 5", total)
	}
}
