// Package ocr turns the text recognised from a timeline screenshot into tweets.
//
// The recogniser emits one text fragment per line. A tweet starts at a line
// carrying an @handle, optionally preceded by the display name. Counter lines
// ("1.2K", "456") fill views, likes and retweets in that order, time lines are
// consumed as the timestamp, and everything else is body text.
package ocr

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/tweet-store/internal/core/domain"
)

// viewsThreshold is the first counter value treated as a view count.
const viewsThreshold = 100

var (
	handlePattern = regexp.MustCompile(`@([A-Za-z0-9_]+)`)
	statsPattern  = regexp.MustCompile(`^[\d,.]+[KMkm]?$`)
	timePattern   = regexp.MustCompile(`^\d+[hms]$|^\d+小时$|^[A-Z][a-z]{2}\s+\d+$|^\d{1,2}月\d{1,2}日$`)

	relativePattern = regexp.MustCompile(`^(\d+)([hms]|小时)$`)
	chineseDate     = regexp.MustCompile(`^(\d{1,2})月(\d{1,2})日$`)
)

var noiseLines = map[string]struct{}{
	"Following": {}, "For you": {}, "Show more": {}, "...": {},
}

var uiLabels = map[string]struct{}{
	"Reply": {}, "Repost": {}, "Like": {}, "Share": {}, "Bookmark": {}, "Views": {},
	"回复": {}, "转推": {}, "喜欢": {}, "分享": {}, "书签": {}, "浏览": {},
}

// Parser converts OCR output into tweets. The zero value uses time.Now.
type Parser struct {
	Now func() time.Time
}

// Parse is a convenience wrapper around Parser{}.Parse.
func Parse(text string) []domain.Tweet {
	return Parser{}.Parse(text)
}

// Parse extracts tweets from text. Tweets without body text are dropped.
func (p Parser) Parse(text string) []domain.Tweet {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")

	var (
		tweets  []domain.Tweet
		current *domain.Tweet
		content []string
	)

	flush := func() {
		if current == nil || len(content) == 0 {
			return
		}

		current.Content = norm.NFC.String(strings.TrimSpace(strings.Join(content, "\n")))
		if current.Content != "" {
			tweets = append(tweets, *current)
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if _, ok := noiseLines[line]; ok {
			continue
		}

		if m := handlePattern.FindStringSubmatch(line); m != nil && startsTweet(lines, i, line) {
			name := displayName(lines, i)

			// The display name sits above the handle and was read as body text
			// of the previous tweet. A single body line is kept.
			if name != "" && len(content) > 1 && content[len(content)-1] == name {
				content = content[:len(content)-1]
			}

			flush()

			current = &domain.Tweet{
				Author:     "@" + m[1],
				AuthorName: name,
				DataSource: domain.SourceOCR,
			}
			current.CreatedAt = headerTime(line, now())
			content = nil

			continue
		}

		// Checked before counters: "5m" is an age, millions are rendered "5M".
		if timePattern.MatchString(line) {
			if current != nil && current.CreatedAt == nil {
				current.CreatedAt = parseTime(line, now())
			}

			continue
		}

		if current != nil && statsPattern.MatchString(line) {
			if n, ok := ParseCount(line); ok {
				assignCount(current, n)
			}

			continue
		}

		if current == nil {
			continue
		}

		if _, ok := uiLabels[line]; !ok {
			content = append(content, line)
		}
	}

	flush()

	return tweets
}

func startsTweet(lines []string, i int, line string) bool {
	if strings.HasPrefix(line, "@") || strings.Contains(line, "·") {
		return true
	}

	return i > 0 && strings.TrimSpace(lines[i-1]) == ""
}

func displayName(lines []string, i int) string {
	if i == 0 {
		return ""
	}

	prev := strings.TrimSpace(lines[i-1])
	if prev == "" || strings.HasPrefix(prev, "@") || statsPattern.MatchString(prev) {
		return ""
	}

	if _, noise := noiseLines[prev]; noise {
		return ""
	}

	return prev
}

func assignCount(t *domain.Tweet, n int) {
	switch {
	case t.Views == nil && n > viewsThreshold:
		t.Views = domain.IntPtr(n)
	case t.Likes == nil:
		t.Likes = domain.IntPtr(n)
	case t.Retweets == nil:
		t.Retweets = domain.IntPtr(n)
	}
}

// headerTime reads the timestamp following "·" on a handle line.
func headerTime(line string, now time.Time) *time.Time {
	_, after, found := strings.Cut(line, "·")
	if !found {
		return nil
	}

	return parseTime(strings.TrimSpace(after), now)
}

// parseTime understands relative ages ("3h", "5m", "3小时") and month-day
// dates ("May 15", "5月15日"). Dates later than now are moved to last year.
func parseTime(s string, now time.Time) *time.Time {
	if m := relativePattern.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}

		unit := time.Hour

		switch m[2] {
		case "m":
			unit = time.Minute
		case "s":
			unit = time.Second
		}

		t := now.Add(-time.Duration(n) * unit)

		return &t
	}

	var month, day int

	if m := chineseDate.FindStringSubmatch(s); m != nil {
		month, _ = strconv.Atoi(m[1]) //nolint:errcheck // digits guaranteed by the pattern
		day, _ = strconv.Atoi(m[2])   //nolint:errcheck // digits guaranteed by the pattern
	} else if parsed, err := time.Parse("Jan 2", s); err == nil {
		month, day = int(parsed.Month()), parsed.Day()
	} else {
		return nil
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	t := time.Date(now.Year(), time.Month(month), day, 0, 0, 0, 0, now.Location())
	if t.After(now) {
		t = t.AddDate(-1, 0, 0)
	}

	return &t
}

// ParseCount parses engagement counters such as "1,234", "1.2K" or "3M".
func ParseCount(text string) (int, bool) {
	s := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), ",", ""))
	if s == "" {
		return 0, false
	}

	multiplier := 1.0

	switch {
	case strings.Contains(s, "K"):
		multiplier = 1_000
		s = strings.ReplaceAll(s, "K", "")
	case strings.Contains(s, "M"):
		multiplier = 1_000_000
		s = strings.ReplaceAll(s, "M", "")
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}

	n := math.Round(f * multiplier)
	if math.IsNaN(n) || n < 0 || n > math.MaxInt32 {
		return 0, false
	}

	return int(n), true
}
