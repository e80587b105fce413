// Package migrations embeds SQL migration files for goose.
//
// Migration files follow the naming convention: NNNNN_description.sql
// They are applied in order during database initialization.
package migrations

import (
	"bufio"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql
var FS embed.FS

const (
	// XHRIngestionColumns is the migration adding the XHR ingestion columns and indexes.
	XHRIngestionColumns = "00002_add_xhr_ingestion_columns.sql"

	// BaselineTweets is the migration creating the tweets table.
	BaselineTweets = "00001_create_tweets.sql"

	annotationUp   = "-- +goose Up"
	annotationDown = "-- +goose Down"
)

// Files returns the embedded migration file names in apply order.
func Files() ([]string, error) {
	names, err := fs.Glob(FS, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}

	sort.Strings(names)

	return names, nil
}

// UpStatements returns the statements of the Up section of the named file.
func UpStatements(name string) ([]string, error) {
	return sectionStatements(name, annotationUp)
}

// DownStatements returns the statements of the Down section of the named file.
func DownStatements(name string) ([]string, error) {
	return sectionStatements(name, annotationDown)
}

func sectionStatements(name, section string) ([]string, error) {
	data, err := FS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", name, err)
	}

	var (
		statements []string
		current    strings.Builder
		inSection  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "-- +goose") {
			inSection = strings.HasPrefix(line, section)
			continue
		}

		if !inSection || line == "" || strings.HasPrefix(line, "--") {
			continue
		}

		if current.Len() > 0 {
			current.WriteByte('\n')
		}

		current.WriteString(line)

		if strings.HasSuffix(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan migration %s: %w", name, err)
	}

	if current.Len() > 0 {
		return nil, fmt.Errorf("migration %s: unterminated statement %q", name, current.String())
	}

	return statements, nil
}
