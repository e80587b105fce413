package domain

import (
	"errors"
	"strings"
	"testing"

	errs "github.com/lueurxax/tweet-store/internal/core/errors"
)

func TestParseDataSource(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    DataSource
		wantErr error
	}{
		{name: "empty defaults to ocr", input: "", want: SourceOCR},
		{name: "ocr", input: "ocr", want: SourceOCR},
		{name: "xhr upper case", input: " XHR ", want: SourceXHR},
		{name: "unknown", input: "api", wantErr: errs.ErrInvalidDataSource},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDataSource(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseDataSource(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseDataSource(%q) unexpected error = %v", tt.input, err)
			}

			if got != tt.want {
				t.Errorf("ParseDataSource(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTweetValidate(t *testing.T) {
	base := Tweet{Author: "@alice", Content: "hello"}

	tests := []struct {
		name    string
		mutate  func(*Tweet)
		wantErr error
	}{
		{name: "minimal ocr tweet", mutate: func(*Tweet) {}},
		{name: "missing author", mutate: func(tw *Tweet) { tw.Author = " " }, wantErr: errs.ErrInvalidInput},
		{name: "missing content", mutate: func(tw *Tweet) { tw.Content = "" }, wantErr: errs.ErrInvalidInput},
		{name: "unknown source", mutate: func(tw *Tweet) { tw.DataSource = "api" }, wantErr: errs.ErrInvalidDataSource},
		{
			name:    "tweet id too long",
			mutate:  func(tw *Tweet) { tw.TweetID = strings.Repeat("9", MaxTweetIDLength+1) },
			wantErr: errs.ErrInvalidInput,
		},
		{
			name:    "raw json on ocr tweet",
			mutate:  func(tw *Tweet) { tw.RawJSON = []byte(`{}`) },
			wantErr: errs.ErrRawJSONNotAllowed,
		},
		{
			name: "raw json on xhr tweet",
			mutate: func(tw *Tweet) {
				tw.DataSource = SourceXHR
				tw.TweetID = "1790000000000000000"
				tw.RawJSON = []byte(`{}`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tw := base
			tt.mutate(&tw)

			err := tw.Validate()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}

			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTweetSource(t *testing.T) {
	if got := (Tweet{}).Source(); got != SourceOCR {
		t.Errorf("Source() = %q, want %q", got, SourceOCR)
	}

	if got := (Tweet{DataSource: SourceXHR}).Source(); got != SourceXHR {
		t.Errorf("Source() = %q, want %q", got, SourceXHR)
	}
}
