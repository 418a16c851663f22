package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/citelens/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []db.Summary `json:"items"`
	Pagination Pagination   `json:"pagination"`
	Sort       string       `json:"sort"`
}

// List retrieves interaction summaries with pagination, newest first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	summaries, err := db.List(ctx, database, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := db.Count(ctx, database)
	if err != nil {
		return nil, err
	}

	return &ListOutput{
		Items: summaries,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(summaries) < total,
			Total:   total,
		},
		Sort: "created_at_desc",
	}, nil
}
