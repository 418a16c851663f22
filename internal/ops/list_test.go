package ops

import (
	"context"
	"testing"
)

func TestList_HappyPath(t *testing.T) {
	database := openTestDB(t)
	ids := []string{
		ingestFixture(t, database, "first"),
		ingestFixture(t, database, "second"),
		ingestFixture(t, database, "third"),
	}

	output, err := List(context.Background(), database, ListInput{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	if len(output.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(output.Items))
	}
	if output.Sort != "created_at_desc" {
		t.Errorf("Sort = %q", output.Sort)
	}
	p := output.Pagination
	if p.Limit != 2 || p.Offset != 0 || !p.HasMore || p.Total != 3 {
		t.Errorf("Pagination = %+v", p)
	}

	// ULIDs from one process sort by creation; newest first.
	if output.Items[0].ID != ids[2] {
		t.Errorf("Items[0].ID = %q, want newest %q", output.Items[0].ID, ids[2])
	}
	item := output.Items[0]
	if item.CitationsCount != 10 || item.WarningsCount != 2 || !item.Completed {
		t.Errorf("summary = %+v", item)
	}
}

func TestList_LastPage(t *testing.T) {
	database := openTestDB(t)
	ingestFixture(t, database, "")
	ingestFixture(t, database, "")

	output, err := List(context.Background(), database, ListInput{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(output.Items) != 1 {
		t.Errorf("Items = %d, want 1", len(output.Items))
	}
	if output.Pagination.HasMore {
		t.Error("HasMore = true on last page")
	}
}

func TestList_Empty(t *testing.T) {
	database := openTestDB(t)

	output, err := List(context.Background(), database, ListInput{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if output.Items == nil {
		t.Error("Items should be an empty array, not nil")
	}
	if output.Pagination.Limit != DefaultListLimit {
		t.Errorf("Limit = %d, want %d", output.Pagination.Limit, DefaultListLimit)
	}
}
