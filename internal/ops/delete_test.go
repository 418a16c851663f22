package ops

import (
	"context"
	"testing"

	"github.com/hpungsan/citelens/internal/errors"
)

func TestDelete_ByID(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	id := ingestFixture(t, database, "")

	output, err := Delete(ctx, database, DeleteInput{ID: id})
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if !output.Deleted || output.ID != id {
		t.Errorf("output = %+v", output)
	}

	if _, err := Fetch(ctx, database, FetchInput{ID: id}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Fetch after delete: got %v, want NOT_FOUND", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	database := openTestDB(t)

	_, err := Delete(context.Background(), database, DeleteInput{ID: "01NOPE"})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("got %v, want NOT_FOUND", err)
	}
}

func TestDelete_Twice(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	id := ingestFixture(t, database, "")

	if _, err := Delete(ctx, database, DeleteInput{ID: id}); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	if _, err := Delete(ctx, database, DeleteInput{ID: id}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second Delete: got %v, want NOT_FOUND", err)
	}
}
