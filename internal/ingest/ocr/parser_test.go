package ocr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/tweet-store/internal/core/domain"
)

const sampleTimeline = `
Albert Wang
@test_user · 3h
这是一条测试推文
1.2K
456
10K

Another User
@another · 5h
Another test tweet content here
789
123
5.6K
`

var fixedNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func fixedParser() Parser {
	return Parser{Now: func() time.Time { return fixedNow }}
}

func TestParse_SampleTimeline(t *testing.T) {
	tweets := fixedParser().Parse(sampleTimeline)
	require.Len(t, tweets, 2)

	first := tweets[0]
	assert.Equal(t, "@test_user", first.Author)
	assert.Equal(t, "Albert Wang", first.AuthorName)
	assert.Equal(t, "这是一条测试推文", first.Content)
	assert.Equal(t, domain.SourceOCR, first.DataSource)
	require.NotNil(t, first.Views)
	assert.Equal(t, 1200, *first.Views)
	require.NotNil(t, first.Likes)
	assert.Equal(t, 456, *first.Likes)
	require.NotNil(t, first.Retweets)
	assert.Equal(t, 10000, *first.Retweets)
	require.NotNil(t, first.CreatedAt)
	assert.Equal(t, fixedNow.Add(-3*time.Hour), *first.CreatedAt)

	second := tweets[1]
	assert.Equal(t, "@another", second.Author)
	assert.Equal(t, "Another User", second.AuthorName)
	assert.Equal(t, "Another test tweet content here", second.Content)
	assert.Equal(t, 789, *second.Views)
	assert.Equal(t, 123, *second.Likes)
	assert.Equal(t, 5600, *second.Retweets)
}

func TestParse_SkipsNoiseAndLabels(t *testing.T) {
	text := `For you
Following
@solo · 2m
Line one
Reply
Repost
Line two
Show more
浏览
`

	tweets := fixedParser().Parse(text)
	require.Len(t, tweets, 1)
	assert.Equal(t, "Line one\nLine two", tweets[0].Content)
	assert.Empty(t, tweets[0].AuthorName)
	require.NotNil(t, tweets[0].CreatedAt)
	assert.Equal(t, fixedNow.Add(-2*time.Minute), *tweets[0].CreatedAt)
}

func TestParse_DropsTweetsWithoutContent(t *testing.T) {
	text := `@empty · 1h
12
@full · 1h
has text
`

	tweets := fixedParser().Parse(text)
	require.Len(t, tweets, 1)
	assert.Equal(t, "@full", tweets[0].Author)
}

func TestParse_TextBeforeFirstHandleIgnored(t *testing.T) {
	tweets := fixedParser().Parse("stray banner\n1.5K\n@x · 1h\nbody")
	require.Len(t, tweets, 1)
	assert.Equal(t, "body", tweets[0].Content)
	assert.Nil(t, tweets[0].Views)
}

func TestParse_Empty(t *testing.T) {
	assert.Empty(t, Parse(""))
	assert.Empty(t, Parse("\n\n   \n"))
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{in: "3h", want: fixedNow.Add(-3 * time.Hour), ok: true},
		{in: "45s", want: fixedNow.Add(-45 * time.Second), ok: true},
		{in: "2小时", want: fixedNow.Add(-2 * time.Hour), ok: true},
		{in: "Mar 1", want: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "Dec 24", want: time.Date(2025, time.December, 24, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "5月15日", want: time.Date(2025, time.May, 15, 0, 0, 0, 0, time.UTC), ok: true},
		{in: "13月1日"},
		{in: "yesterday"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseTime(tt.in, fixedNow)
			if !tt.ok {
				assert.Nil(t, got)
				return
			}

			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{in: "456", want: 456, ok: true},
		{in: "1,234", want: 1234, ok: true},
		{in: "1.2K", want: 1200, ok: true},
		{in: "4.35k", want: 4350, ok: true},
		{in: "3M", want: 3_000_000, ok: true},
		{in: " 10K ", want: 10_000, ok: true},
		{in: ""},
		{in: "abc"},
		{in: "2147483647", want: 2147483647, ok: true},
		{in: "2147483648"},
		{in: "123456789012345678901"},
		{in: "99999999M"},
		{in: "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseCount(tt.in)
			assert.Equal(t, tt.ok, ok)

			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
