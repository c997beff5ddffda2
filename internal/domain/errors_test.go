package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestSkippableError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SkippableError
		want string
	}{
		{
			name: "unreadable input file",
			err:  NewSkippableError(errors.New("open response.json: no such file or directory"), "reading response.json"),
			want: "reading response.json: open response.json: no such file or directory",
		},
		{
			name: "destination conflict",
			err:  NewSkippableError(ErrDestinationExists, "/data/alice/20200101T000000-STREAM"),
			want: "/data/alice/20200101T000000-STREAM: destination already exists",
		},
		{
			name: "no reference in input",
			err:  NewSkippableError(ErrNoReference, "empty.json"),
			want: "empty.json: no async download directories found",
		},
		{
			name: "context only",
			err:  NewSkippableError(nil, "empty url"),
			want: "empty url",
		},
		{
			name: "error only",
			err:  NewSkippableError(ErrTooFewSegments, ""),
			want: "url has fewer than two path segments",
		},
		{
			name: "empty",
			err:  NewSkippableError(nil, ""),
			want: "skippable error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSkippableError_Unwrap(t *testing.T) {
	err := NewSkippableError(ErrDestinationExists, "/data/alice/s1")

	if !errors.Is(err, ErrDestinationExists) {
		t.Error("errors.Is(err, ErrDestinationExists) = false, want true")
	}
	if errors.Is(err, ErrNoReference) {
		t.Error("errors.Is(err, ErrNoReference) = true, want false")
	}
	if got := NewSkippableError(nil, "empty url").Unwrap(); got != nil {
		t.Errorf("Unwrap() with nil = %v, want nil", got)
	}
}

func TestIsSkippable(t *testing.T) {
	_, shortURL := ParseReference("https://host/async_results")
	_, emptyURL := ParseReference("  ")

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"too few segments", shortURL, true},
		{"empty url", emptyURL, true},
		{"wrapped destination conflict", fmt.Errorf("fetch: %w", NewSkippableError(ErrDestinationExists, "/d")), true},
		{"usage error", NewUsageError(ErrNoInputFiles), false},
		{"plain sentinel", ErrNoReference, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsSkippable(tt.err); got != tt.want {
				t.Errorf("IsSkippable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	if !errors.Is(shortURL, ErrTooFewSegments) {
		t.Errorf("short url error = %v, want ErrTooFewSegments", shortURL)
	}
	if !errors.Is(emptyURL, ErrInvalidInput) {
		t.Errorf("empty url error = %v, want ErrInvalidInput", emptyURL)
	}
}

func TestUsageError(t *testing.T) {
	err := fmt.Errorf("fetch: %w", NewUsageError(ErrNoInputFiles))

	if !IsUsageError(err) {
		t.Fatal("IsUsageError() = false, want true")
	}
	if !errors.Is(err, ErrNoInputFiles) {
		t.Error("errors.Is(err, ErrNoInputFiles) = false, want true")
	}
	if got := err.Error(); got != "fetch: no input files specified" {
		t.Errorf("Error() = %q", got)
	}
	if IsUsageError(NewSkippableError(ErrNoReference, "x.json")) {
		t.Error("skippable error reported as usage error")
	}
	if got := NewUsageError(nil).Error(); got != "usage error" {
		t.Errorf("Error() = %q, want %q", got, "usage error")
	}
}
