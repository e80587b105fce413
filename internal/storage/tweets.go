package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	errs "github.com/lueurxax/tweet-store/internal/core/errors"
)

// TweetRef identifies a tweet row by URL or, when URL is empty, by row id.
type TweetRef struct {
	URL string
	ID  int64
}

// UpsertResult counts how an upsert batch was applied.
type UpsertResult struct {
	Inserted int
	Updated  int
}

const tweetSelectColumns = `
	id, scraped_at, author, author_name, content, tweet_url, voice_file, voice_text,
	likes, retweets, views, created_at, is_liked, is_bookmarked, liked_at, bookmarked_at,
	tweet_id, reply_count, quote_count, user_followers, user_friends, user_description,
	data_source, raw_json`

const tweetInsertColumns = `
	author, author_name, content, tweet_url, voice_file, voice_text,
	likes, retweets, views, created_at,
	tweet_id, reply_count, quote_count, user_followers, user_friends, user_description,
	raw_json, is_liked, is_bookmarked, liked_at, bookmarked_at`

// The liked and bookmarked stamps are taken when the flag arrives set.
const tweetInsertPlaceholders = `$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
	$18, $19, CASE WHEN $18 THEN NOW() END, CASE WHEN $19 THEN NOW() END`

// insertTweetSQL omits data_source when the tweet leaves it empty, so the
// column default applies.
func insertTweetSQL(withSource bool) string {
	if !withSource {
		return `INSERT INTO tweets (` + tweetInsertColumns + `)
			VALUES (` + tweetInsertPlaceholders + `)
			RETURNING id`
	}

	return `INSERT INTO tweets (` + tweetInsertColumns + `, data_source)
		VALUES (` + tweetInsertPlaceholders + `, $20)
		RETURNING id`
}

const upsertTweetSQL = `
	INSERT INTO tweets (` + tweetInsertColumns + `, data_source)
	VALUES (` + tweetInsertPlaceholders + `, $20)
	ON CONFLICT (tweet_id) DO UPDATE SET
		author           = EXCLUDED.author,
		author_name      = COALESCE(EXCLUDED.author_name, tweets.author_name),
		content          = EXCLUDED.content,
		tweet_url        = COALESCE(EXCLUDED.tweet_url, tweets.tweet_url),
		likes            = COALESCE(EXCLUDED.likes, tweets.likes),
		retweets         = COALESCE(EXCLUDED.retweets, tweets.retweets),
		views            = COALESCE(EXCLUDED.views, tweets.views),
		created_at       = COALESCE(EXCLUDED.created_at, tweets.created_at),
		reply_count      = COALESCE(EXCLUDED.reply_count, tweets.reply_count),
		quote_count      = COALESCE(EXCLUDED.quote_count, tweets.quote_count),
		user_followers   = COALESCE(EXCLUDED.user_followers, tweets.user_followers),
		user_friends     = COALESCE(EXCLUDED.user_friends, tweets.user_friends),
		user_description = COALESCE(EXCLUDED.user_description, tweets.user_description),
		raw_json         = COALESCE(EXCLUDED.raw_json, tweets.raw_json),
		is_liked         = tweets.is_liked OR EXCLUDED.is_liked,
		liked_at         = CASE WHEN EXCLUDED.is_liked AND NOT tweets.is_liked THEN NOW() ELSE tweets.liked_at END,
		is_bookmarked    = tweets.is_bookmarked OR EXCLUDED.is_bookmarked,
		bookmarked_at    = CASE WHEN EXCLUDED.is_bookmarked AND NOT tweets.is_bookmarked THEN NOW() ELSE tweets.bookmarked_at END,
		data_source      = EXCLUDED.data_source
	RETURNING id, (xmax = 0) AS inserted`

func tweetArgs(t domain.Tweet) []any {
	return []any{
		SanitizeUTF8(t.Author),
		toText(t.AuthorName),
		SanitizeUTF8(t.Content),
		toText(t.TweetURL),
		toText(t.VoiceFile),
		toText(t.VoiceText),
		toInt4Ptr(t.Likes),
		toInt4Ptr(t.Retweets),
		toInt4Ptr(t.Views),
		toTimestamptzPtr(t.CreatedAt),
		toText(t.TweetID),
		toInt4Ptr(t.ReplyCount),
		toInt4Ptr(t.QuoteCount),
		toInt4Ptr(t.UserFollowers),
		toInt4Ptr(t.UserFriends),
		toText(t.UserDescription),
		toJSONB(t.RawJSON),
		t.IsLiked,
		t.IsBookmarked,
	}
}

// InsertTweets stores tweets in a single transaction and fills in their row ids.
// A non-null tweet_id that already exists fails the whole batch with
// errs.ErrDuplicateTweetID.
func (db *DB) InsertTweets(ctx context.Context, tweets []domain.Tweet) error {
	if len(tweets) == 0 {
		return nil
	}

	for i := range tweets {
		if err := tweets[i].Validate(); err != nil {
			return fmt.Errorf("tweet %d: %w", i, err)
		}
	}

	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}

		for _, t := range tweets {
			args := tweetArgs(t)
			if t.DataSource != "" {
				args = append(args, string(t.DataSource))
			}

			batch.Queue(insertTweetSQL(t.DataSource != ""), args...)
		}

		br := tx.SendBatch(ctx, batch)

		for i := range tweets {
			if err := br.QueryRow().Scan(&tweets[i].ID); err != nil {
				_ = br.Close()

				return fmt.Errorf("insert tweet %d: %w", i, mapPgError(err))
			}
		}

		if err := br.Close(); err != nil {
			return fmt.Errorf("close insert batch: %w", mapPgError(err))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("insert tweets: %w", err)
	}

	return nil
}

// UpsertTweets stores XHR tweets keyed by tweet_id. Existing rows get fresh
// counters, profile fields and payload; NULL values never overwrite known ones.
// A capture can set the liked or bookmarked flag but never clears it.
func (db *DB) UpsertTweets(ctx context.Context, tweets []domain.Tweet) (UpsertResult, error) {
	var res UpsertResult

	if len(tweets) == 0 {
		return res, nil
	}

	for i := range tweets {
		if tweets[i].TweetID == "" {
			return res, fmt.Errorf("%w: tweet %d has no tweet id", errs.ErrInvalidInput, i)
		}

		if tweets[i].DataSource == "" {
			tweets[i].DataSource = domain.SourceXHR
		}

		if err := tweets[i].Validate(); err != nil {
			return res, fmt.Errorf("tweet %d: %w", i, err)
		}
	}

	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		res = UpsertResult{}
		batch := &pgx.Batch{}

		for _, t := range tweets {
			batch.Queue(upsertTweetSQL, append(tweetArgs(t), string(t.DataSource))...)
		}

		br := tx.SendBatch(ctx, batch)

		for i := range tweets {
			var inserted bool
			if err := br.QueryRow().Scan(&tweets[i].ID, &inserted); err != nil {
				_ = br.Close()

				return fmt.Errorf("upsert tweet %s: %w", tweets[i].TweetID, mapPgError(err))
			}

			if inserted {
				res.Inserted++
			} else {
				res.Updated++
			}
		}

		if err := br.Close(); err != nil {
			return fmt.Errorf("close upsert batch: %w", mapPgError(err))
		}

		return nil
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert tweets: %w", err)
	}

	return res, nil
}

// MarkLiked sets or clears the liked flag. It reports whether a row matched.
func (db *DB) MarkLiked(ctx context.Context, ref TweetRef, liked bool) (bool, error) {
	return db.markFlag(ctx, ref, "is_liked", "liked_at", liked)
}

// MarkBookmarked sets or clears the bookmarked flag. It reports whether a row matched.
func (db *DB) MarkBookmarked(ctx context.Context, ref TweetRef, bookmarked bool) (bool, error) {
	return db.markFlag(ctx, ref, "is_bookmarked", "bookmarked_at", bookmarked)
}

// markFlag is only called with fixed column names.
func (db *DB) markFlag(ctx context.Context, ref TweetRef, flagCol, stampCol string, on bool) (bool, error) {
	where, arg, err := ref.predicate()
	if err != nil {
		return false, err
	}

	stamp := "NULL"
	if on {
		stamp = "NOW()"
	}

	query := fmt.Sprintf("UPDATE tweets SET %s = $1, %s = %s WHERE %s", flagCol, stampCol, stamp, where)

	tag, err := db.Pool.Exec(ctx, query, on, arg)
	if err != nil {
		return false, fmt.Errorf("update %s: %w", flagCol, err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r TweetRef) predicate() (string, any, error) {
	switch {
	case strings.TrimSpace(r.URL) != "":
		return "tweet_url = $2", strings.TrimSpace(r.URL), nil
	case r.ID > 0:
		return "id = $2", r.ID, nil
	default:
		return "", nil, fmt.Errorf("%w: tweet url or id is required", errs.ErrInvalidInput)
	}
}

// RecentTweets returns the most recently scraped tweets, newest first.
// An empty source returns every provenance.
func (db *DB) RecentTweets(ctx context.Context, limit int, source domain.DataSource) ([]domain.Tweet, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	rows, err := db.Pool.Query(ctx, `
		SELECT `+tweetSelectColumns+`
		FROM tweets
		WHERE ($1::text = '' OR COALESCE(data_source, 'ocr') = $1::text)
		ORDER BY scraped_at DESC, id DESC
		LIMIT $2
	`, string(source), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent tweets: %w", err)
	}
	defer rows.Close()

	tweets := make([]domain.Tweet, 0, limit)

	for rows.Next() {
		t, err := scanTweet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recent tweet row: %w", err)
		}

		tweets = append(tweets, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent tweets rows: %w", err)
	}

	return tweets, nil
}

// TweetByExternalID loads the tweet with the given tweet_id.
func (db *DB) TweetByExternalID(ctx context.Context, tweetID string) (domain.Tweet, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+tweetSelectColumns+` FROM tweets WHERE tweet_id = $1`, tweetID)

	t, err := scanTweet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Tweet{}, fmt.Errorf("tweet %s: %w", tweetID, errs.ErrNotFound)
		}

		return domain.Tweet{}, fmt.Errorf("get tweet %s: %w", tweetID, err)
	}

	return t, nil
}

// CountBySource returns the number of stored tweets per provenance tag.
func (db *DB) CountBySource(ctx context.Context) (map[domain.DataSource]int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT COALESCE(data_source, 'ocr'), COUNT(*)
		FROM tweets
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("query source counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.DataSource]int64)

	for rows.Next() {
		var (
			source string
			count  int64
		)

		if err := rows.Scan(&source, &count); err != nil {
			return nil, fmt.Errorf("scan source count row: %w", err)
		}

		counts[domain.DataSource(source)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source count rows: %w", err)
	}

	return counts, nil
}

func scanTweet(row pgx.Row) (domain.Tweet, error) {
	var (
		t                                          domain.Tweet
		scrapedAt, createdAt, likedAt, bookmarkAt  pgtype.Timestamptz
		authorName, tweetURL, voiceFile, voiceText pgtype.Text
		tweetID, userDescription, dataSource       pgtype.Text
		likes, retweets, views                     pgtype.Int4
		replies, quotes, followers, friends        pgtype.Int4
		rawJSON                                    []byte
	)

	err := row.Scan(
		&t.ID, &scrapedAt, &t.Author, &authorName, &t.Content, &tweetURL, &voiceFile, &voiceText,
		&likes, &retweets, &views, &createdAt, &t.IsLiked, &t.IsBookmarked, &likedAt, &bookmarkAt,
		&tweetID, &replies, &quotes, &followers, &friends, &userDescription,
		&dataSource, &rawJSON,
	)
	if err != nil {
		return domain.Tweet{}, err //nolint:wrapcheck // callers wrap with query context
	}

	t.ScrapedAt = fromTimestamptz(scrapedAt)
	t.AuthorName = fromText(authorName)
	t.TweetURL = fromText(tweetURL)
	t.VoiceFile = fromText(voiceFile)
	t.VoiceText = fromText(voiceText)
	t.Likes = fromInt4Ptr(likes)
	t.Retweets = fromInt4Ptr(retweets)
	t.Views = fromInt4Ptr(views)
	t.CreatedAt = fromTimestamptzPtr(createdAt)
	t.LikedAt = fromTimestamptzPtr(likedAt)
	t.BookmarkedAt = fromTimestamptzPtr(bookmarkAt)
	t.TweetID = fromText(tweetID)
	t.ReplyCount = fromInt4Ptr(replies)
	t.QuoteCount = fromInt4Ptr(quotes)
	t.UserFollowers = fromInt4Ptr(followers)
	t.UserFriends = fromInt4Ptr(friends)
	t.UserDescription = fromText(userDescription)
	t.DataSource = domain.DataSource(fromText(dataSource))
	t.RawJSON = rawJSON

	return t, nil
}

// mapPgError translates constraint violations into domain errors.
func mapPgError(err error) error {
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %w", errs.ErrDuplicateTweetID, err)
	}

	return err
}

// IsUniqueViolation reports whether err is a Postgres unique_violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation
}
