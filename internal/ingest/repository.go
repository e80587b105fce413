package ingest

import (
	"context"

	"github.com/lueurxax/tweet-store/internal/core/domain"
	db "github.com/lueurxax/tweet-store/internal/storage"
)

// Repository defines the storage operations required by the ingestion service.
type Repository interface {
	InsertTweets(ctx context.Context, tweets []domain.Tweet) error
	UpsertTweets(ctx context.Context, tweets []domain.Tweet) (db.UpsertResult, error)
}

// Compile-time assertion that *db.DB implements Repository.
var _ Repository = (*db.DB)(nil)
