package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/interaction"
)

// FetchInput contains parameters for the Fetch operation.
type FetchInput struct {
	ID          string
	IncludeText *bool // default: true (nil means default)
}

// FetchOutput contains the result of the Fetch operation.
type FetchOutput struct {
	ID          string  `json:"id"`
	Label       *string `json:"label,omitempty"`
	EventsCount int     `json:"events_count"`
	Completed   bool    `json:"completed"`
	CreatedAt   int64   `json:"created_at"`

	interaction.Result // embedded (copy, not pointer)
}

// Fetch retrieves a stored interaction by ID.
func Fetch(ctx context.Context, database *sql.DB, input FetchInput) (*FetchOutput, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	rec, err := db.GetByID(ctx, database, id)
	if err != nil {
		return nil, err
	}

	output := &FetchOutput{
		ID:          rec.ID,
		Label:       rec.Label,
		EventsCount: rec.EventsCount,
		Completed:   rec.Completed,
		CreatedAt:   rec.CreatedAt,
		Result:      *rec.Result,
	}

	includeText := true
	if input.IncludeText != nil {
		includeText = *input.IncludeText
	}
	if !includeText {
		output.ResponseText = ""
	}

	return output, nil
}
