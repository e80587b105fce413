// Package xhr extracts tweets from API responses intercepted in the browser.
//
// Both GraphQL responses (HomeTimeline, TweetDetail, TweetResultByRestId, ...)
// and v1.1 status objects are understood. The payload is walked recursively,
// so the exact nesting of timeline instructions does not matter.
package xhr

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	errs "github.com/lueurxax/tweet-store/internal/core/errors"
)

const (
	typenameTweet           = "Tweet"
	typenameVisibilityTweet = "TweetWithVisibilityResults"
	baseURL       = "https://x.com"
)

var statusPattern = regexp.MustCompile(`/status(?:es)?/(\d+)`)

// Parse returns every distinct tweet found in payload, in document order.
// Each tweet carries its own JSON object as RawJSON.
func Parse(payload []byte) ([]domain.Tweet, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, errs.ErrEmptyResponse
	}

	if !gjson.ValidBytes(payload) {
		return nil, errs.ErrMalformedPayload
	}

	c := &collector{seen: make(map[string]struct{})}
	c.walk(gjson.ParseBytes(payload))

	if len(c.tweets) == 0 {
		return nil, fmt.Errorf("payload: %w", errs.ErrNoResults)
	}

	return c.tweets, nil
}

type collector struct {
	tweets []domain.Tweet
	seen   map[string]struct{}
}

func (c *collector) walk(v gjson.Result) {
	switch {
	case v.IsArray():
		v.ForEach(func(_, item gjson.Result) bool {
			c.walk(item)
			return true
		})
	case v.IsObject():
		if t, ok := fromObject(v); ok {
			if _, dup := c.seen[t.TweetID]; !dup {
				c.seen[t.TweetID] = struct{}{}
				c.tweets = append(c.tweets, t)
			}
		}

		// Quoted and retweeted tweets are nested inside their parent.
		v.ForEach(func(_, child gjson.Result) bool {
			c.walk(child)
			return true
		})
	}
}

func fromObject(v gjson.Result) (domain.Tweet, bool) {
	switch v.Get("__typename").String() {
	case typenameTweet:
		if v.Get("rest_id").Exists() {
			return fromGraphQL(v)
		}
	case typenameVisibilityTweet:
		// The wrapped tweet carries no __typename of its own.
		if inner := v.Get("tweet"); inner.IsObject() && inner.Get("rest_id").Exists() {
			return fromGraphQL(inner)
		}
	}

	if v.Get("id_str").Exists() && v.Get("user.screen_name").Exists() {
		return fromStatus(v)
	}

	return domain.Tweet{}, false
}

// fromGraphQL maps a GraphQL Tweet result.
func fromGraphQL(v gjson.Result) (domain.Tweet, bool) {
	legacy := v.Get("legacy")
	user := v.Get("core.user_results.result")

	text := v.Get("note_tweet.note_tweet_results.result.text").String()
	if text == "" {
		text = legacy.Get("full_text").String()
	}

	screenName := firstString(user, "core.screen_name", "legacy.screen_name")
	if text == "" || screenName == "" {
		return domain.Tweet{}, false
	}

	id := v.Get("rest_id").String()

	t := domain.Tweet{
		TweetID:         id,
		Author:          "@" + screenName,
		AuthorName:      firstString(user, "core.name", "legacy.name"),
		Content:         norm.NFC.String(text),
		TweetURL:        TweetURL(screenName, id),
		Likes:           optInt(legacy.Get("favorite_count")),
		Retweets:        optInt(legacy.Get("retweet_count")),
		Views:           optInt(v.Get("views.count")),
		ReplyCount:      optInt(legacy.Get("reply_count")),
		QuoteCount:      optInt(legacy.Get("quote_count")),
		UserFollowers:   optInt(user.Get("legacy.followers_count")),
		UserFriends:     optInt(user.Get("legacy.friends_count")),
		UserDescription: firstString(user, "legacy.description", "profile_bio.description"),
		CreatedAt:       parseCreatedAt(legacy.Get("created_at").String()),
		IsLiked:         legacy.Get("favorited").Bool(),
		IsBookmarked:    legacy.Get("bookmarked").Bool(),
		DataSource:      domain.SourceXHR,
		RawJSON:         []byte(v.Raw),
	}

	return t, true
}

// fromStatus maps a v1.1 status object.
func fromStatus(v gjson.Result) (domain.Tweet, bool) {
	text := firstString(v, "full_text", "text")
	screenName := v.Get("user.screen_name").String()

	if text == "" || screenName == "" {
		return domain.Tweet{}, false
	}

	id := v.Get("id_str").String()

	t := domain.Tweet{
		TweetID:         id,
		Author:          "@" + screenName,
		AuthorName:      v.Get("user.name").String(),
		Content:         norm.NFC.String(text),
		TweetURL:        TweetURL(screenName, id),
		Likes:           optInt(v.Get("favorite_count")),
		Retweets:        optInt(v.Get("retweet_count")),
		ReplyCount:      optInt(v.Get("reply_count")),
		QuoteCount:      optInt(v.Get("quote_count")),
		UserFollowers:   optInt(v.Get("user.followers_count")),
		UserFriends:     optInt(v.Get("user.friends_count")),
		UserDescription: v.Get("user.description").String(),
		CreatedAt:       parseCreatedAt(v.Get("created_at").String()),
		IsLiked:         v.Get("favorited").Bool(),
		DataSource:      domain.SourceXHR,
		RawJSON:         []byte(v.Raw),
	}

	return t, true
}

func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := v.Get(p).String(); s != "" {
			return s
		}
	}

	return ""
}

// optInt accepts numbers and numeric strings ("views.count" is a string).
func optInt(v gjson.Result) *int {
	switch v.Type {
	case gjson.Number:
		return domain.IntPtr(int(v.Int()))
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return nil
		}

		return domain.IntPtr(n)
	default:
		return nil
	}
}

// parseCreatedAt reads the API's "Wed Oct 10 20:19:24 +0000 2018" layout,
// falling back to dateparse for anything else.
func parseCreatedAt(s string) *time.Time {
	if s == "" {
		return nil
	}

	t, err := time.Parse(time.RubyDate, s)
	if err != nil {
		t, err = dateparse.ParseAny(s)
		if err != nil {
			return nil
		}
	}

	t = t.UTC()

	return &t
}

// ExtractTweetID returns the numeric id from a status URL.
func ExtractTweetID(url string) (string, error) {
	m := statusPattern.FindStringSubmatch(url)
	if m == nil {
		return "", fmt.Errorf("%w: %q", errs.ErrInvalidTweetURL, url)
	}

	return m[1], nil
}

// TweetURL builds the canonical status URL. An unknown handle uses the /i/ form.
func TweetURL(handle, id string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if handle == "" {
		handle = "i"
	}

	return fmt.Sprintf("%s/%s/status/%s", baseURL, handle, id)
}
