package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/citelens/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
}

// Delete permanently removes a stored interaction.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	id, err := ValidateID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := db.Delete(ctx, database, id); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      id,
	}, nil
}
