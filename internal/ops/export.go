package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/errors"
	"github.com/hpungsan/citelens/internal/interaction"
)

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path string   // optional, default: ~/.citelens/exports/<id|all>-<timestamp>.jsonl
	IDs  []string // optional; empty exports every stored interaction
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string `json:"path"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// ExportHeader is the first line of an export file.
type ExportHeader struct {
	CitelensExport bool   `json:"_citelens_export"`
	SchemaVersion  string `json:"schema_version"`
	ExportedAt     int64  `json:"exported_at"`
}

// ExportRecord is one stored interaction in an export file.
type ExportRecord struct {
	ID          string              `json:"id"`
	Label       *string             `json:"label,omitempty"`
	EventsCount int                 `json:"events_count"`
	Completed   bool                `json:"completed"`
	CreatedAt   int64               `json:"created_at"`
	Result      *interaction.Result `json:"result"`
}

// Export writes stored interactions to a JSONL file. The file is written to
// a temp name and renamed into place, so an existing file survives failure.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		var err error
		exportPath, err = defaultExportPath(input.IDs, now)
		if err != nil {
			return nil, err
		}
	}

	// Default paths are validated too: they embed caller-supplied IDs.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)

	header := ExportHeader{
		CitelensExport: true,
		SchemaVersion:  ExportSchemaVersion,
		ExportedAt:     now.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return nil, errors.NewInternal(err)
	}

	ids, err := exportIDs(ctx, database, input.IDs)
	if err != nil {
		return nil, err
	}

	count := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := db.GetByID(ctx, database, id)
		if err != nil {
			return nil, err
		}
		if err := enc.Encode(ExportRecord{
			ID:          rec.ID,
			Label:       rec.Label,
			EventsCount: rec.EventsCount,
			Completed:   rec.Completed,
			CreatedAt:   rec.CreatedAt,
			Result:      rec.Result,
		}); err != nil {
			return nil, errors.NewInternal(err)
		}
		count++
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlinked destination.
	if isSymlink(exportPath) {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}

	// On Windows os.Rename fails if the destination exists; the existing file
	// is kept rather than replaced non-atomically.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; overwriting is not supported on Windows (choose a new path or delete the existing file)")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Count:      count,
		ExportedAt: now.Unix(),
	}, nil
}

// exportIDs returns the requested IDs, or every stored ID newest first.
func exportIDs(ctx context.Context, database *sql.DB, requested []string) ([]string, error) {
	if len(requested) > 0 {
		ids := make([]string, 0, len(requested))
		for _, raw := range requested {
			id, err := ValidateID(raw)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
		return ids, nil
	}

	var ids []string
	for offset := 0; ; offset += MaxListLimit {
		page, err := db.List(ctx, database, MaxListLimit, offset)
		if err != nil {
			return nil, err
		}
		for _, s := range page {
			ids = append(ids, s.ID)
		}
		if len(page) < MaxListLimit {
			return ids, nil
		}
	}
}

// defaultExportPath builds ~/.citelens/exports/<name>-<timestamp>.jsonl where
// name is the single requested ID or "all".
func defaultExportPath(ids []string, now time.Time) (string, error) {
	dir, err := DefaultExportsDir()
	if err != nil {
		return "", err
	}

	name := "all"
	if len(ids) == 1 {
		name = SanitizeForFilename(ids[0])
	}
	filename := fmt.Sprintf("%s-%s.jsonl", name, now.Format("2006-01-02T150405"))
	return filepath.Join(dir, filename), nil
}
