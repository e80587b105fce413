// Package domain holds the core tweet types shared by ingestion and storage.
package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	errs "github.com/lueurxax/tweet-store/internal/core/errors"
)

// DataSource is the provenance tag stored in tweets.data_source.
type DataSource string

const (
	// SourceOCR marks tweets captured by optical recognition of screenshots.
	SourceOCR DataSource = "ocr"
	// SourceXHR marks tweets captured by intercepting the client's API responses.
	SourceXHR DataSource = "xhr"
)

// MaxTweetIDLength is the width of the tweets.tweet_id column.
const MaxTweetIDLength = 64

// Valid reports whether s is one of the known provenance tags.
func (s DataSource) Valid() bool {
	switch s {
	case SourceOCR, SourceXHR:
		return true
	default:
		return false
	}
}

func (s DataSource) String() string {
	return string(s)
}

// ParseDataSource converts a user supplied tag into a DataSource.
// An empty string yields the column default, SourceOCR.
func ParseDataSource(s string) (DataSource, error) {
	if s == "" {
		return SourceOCR, nil
	}

	src := DataSource(strings.ToLower(strings.TrimSpace(s)))
	if !src.Valid() {
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidDataSource, s)
	}

	return src, nil
}

// Tweet is a row of the tweets table. Nil pointers map to NULL.
type Tweet struct {
	ID           int64
	ScrapedAt    time.Time
	Author       string
	AuthorName   string
	Content      string
	TweetURL     string
	VoiceFile    string
	VoiceText    string
	Likes        *int
	Retweets     *int
	Views        *int
	CreatedAt    *time.Time
	IsLiked      bool
	IsBookmarked bool
	LikedAt      *time.Time
	BookmarkedAt *time.Time

	// Columns added for the XHR ingestion path.
	TweetID         string
	ReplyCount      *int
	QuoteCount      *int
	UserFollowers   *int
	UserFriends     *int
	UserDescription string
	DataSource      DataSource
	RawJSON         []byte
}

// Validate checks the invariants a tweet must satisfy before it is stored.
// An empty DataSource is accepted and left to the column default.
func (t Tweet) Validate() error {
	if strings.TrimSpace(t.Author) == "" {
		return fmt.Errorf("%w: author is required", errs.ErrInvalidInput)
	}

	if strings.TrimSpace(t.Content) == "" {
		return fmt.Errorf("%w: content is required", errs.ErrInvalidInput)
	}

	if t.DataSource != "" && !t.DataSource.Valid() {
		return fmt.Errorf("%w: %q", errs.ErrInvalidDataSource, t.DataSource)
	}

	if utf8.RuneCountInString(t.TweetID) > MaxTweetIDLength {
		return fmt.Errorf("%w: tweet id longer than %d characters", errs.ErrInvalidInput, MaxTweetIDLength)
	}

	if len(t.RawJSON) > 0 && t.DataSource != SourceXHR {
		return errs.ErrRawJSONNotAllowed
	}

	return nil
}

// Source returns the effective provenance tag, applying the column default.
func (t Tweet) Source() DataSource {
	if t.DataSource == "" {
		return SourceOCR
	}

	return t.DataSource
}

// IntPtr returns a pointer to v, for populating optional counters.
func IntPtr(v int) *int {
	return &v
}
