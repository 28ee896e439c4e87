package keywords

import (
	"reflect"
	"strings"
	"testing"
)

func TestExtractEmptyCaption(t *testing.T) {
	tests := []struct {
		name    string
		caption string
	}{
		{name: "empty", caption: ""},
		{name: "whitespace", caption: "   \t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.caption)
			if len(got) != 0 {
				t.Errorf("Extract(%q) = %v, want empty", tt.caption, got)
			}
		})
	}
}

func TestExtractNounsAndAdjectives(t *testing.T) {
	got := Extract("a dog running on the grass")

	want := map[string]bool{"dog": true, "grass": true}
	for _, kw := range got {
		if kw == "a" || kw == "on" || kw == "the" {
			t.Errorf("Extract kept stopword %q", kw)
		}
		if len(kw) <= 2 {
			t.Errorf("Extract kept short token %q", kw)
		}
	}
	for w := range want {
		found := false
		for _, kw := range got {
			if kw == w {
				found = true
			}
		}
		if !found {
			t.Errorf("Extract missing expected keyword %q, got %v", w, got)
		}
	}
}

func TestExtractLowercases(t *testing.T) {
	for _, kw := range Extract("A Brown DOG near the Mountain") {
		if kw != strings.ToLower(kw) {
			t.Errorf("Extract returned non-lowercase keyword %q", kw)
		}
	}
}

func TestExtractDeduplicates(t *testing.T) {
	got := Extract("a dog chasing a dog near another dog")
	count := 0
	for _, kw := range got {
		if kw == "dog" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Extract returned %d copies of %q, want 1", count, "dog")
	}
}

func TestFallbackExtract(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    []string
	}{
		{
			name:    "basic",
			caption: "a dog running on the grass",
			want:    []string{"dog", "running", "the", "grass"},
		},
		{
			name:    "deduplicates preserving order",
			caption: "red car red barn car",
			want:    []string{"red", "car", "barn"},
		},
		{
			name:    "drops short and non-alphabetic runs",
			caption: "no2 it is a 42nd st",
			want:    []string{},
		},
		{
			name:    "empty",
			caption: "",
			want:    []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fallbackExtract(tt.caption)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("fallbackExtract(%q) = %v, want %v", tt.caption, got, tt.want)
			}
		})
	}
}
