package app

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	"github.com/lueurxax/tweet-store/internal/ingest"
	db "github.com/lueurxax/tweet-store/internal/storage"
)

const (
	contentPreviewRunes = 60
	emptyCell           = "-"
	flagSet             = "x"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)

	return table
}

func renderTweets(w io.Writer, tweets []domain.Tweet) {
	table := newTable(w, "ID", "Source", "Author", "Scraped", "Likes", "RTs", "Views", "L", "B", "Content")

	for _, t := range tweets {
		table.Append([]string{
			strconv.FormatInt(t.ID, 10),
			t.Source().String(),
			t.Author,
			t.ScrapedAt.UTC().Format(time.DateTime),
			formatCount(t.Likes),
			formatCount(t.Retweets),
			formatCount(t.Views),
			formatFlag(t.IsLiked),
			formatFlag(t.IsBookmarked),
			preview(t.Content),
		})
	}

	table.Render()
}

func renderMigrations(w io.Writer, states []db.MigrationState) {
	table := newTable(w, "Version", "Migration", "State", "Applied At")

	for _, s := range states {
		state, appliedAt := "pending", emptyCell
		if s.Applied {
			state = "applied"
			appliedAt = s.AppliedAt.UTC().Format(time.DateTime)
		}

		table.Append([]string{strconv.FormatInt(s.Version, 10), s.Path, state, appliedAt})
	}

	table.Render()
}

func renderCounts(w io.Writer, counts map[domain.DataSource]int64) {
	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s.String())
	}

	sort.Strings(sources)

	table := newTable(w, "Source", "Tweets")
	for _, s := range sources {
		table.Append([]string{s, strconv.FormatInt(counts[domain.DataSource(s)], 10)})
	}

	table.Render()
}

func renderResult(w io.Writer, res ingest.Result) {
	fmt.Fprintf(w, "batch %s (%s): parsed=%d inserted=%d updated=%d rejected=%d\n",
		res.BatchID, res.Source, res.Parsed, res.Inserted, res.Updated, res.Rejected)
}

func formatCount(v *int) string {
	if v == nil {
		return emptyCell
	}

	return strconv.Itoa(*v)
}

func formatFlag(b bool) string {
	if b {
		return flagSet
	}

	return ""
}

func preview(content string) string {
	flat := strings.Join(strings.Fields(content), " ")

	runes := []rune(flat)
	if len(runes) <= contentPreviewRunes {
		return flat
	}

	return string(runes[:contentPreviewRunes-1]) + "…"
}
