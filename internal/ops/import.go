package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hpungsan/citelens/internal/config"
	"github.com/hpungsan/citelens/internal/db"
	"github.com/hpungsan/citelens/internal/errors"
)

// ImportMode controls collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail on any collision, import nothing
	ImportModeReplace ImportMode = "replace" // overwrite on collision
	ImportModeSkip    ImportMode = "skip"    // keep the stored interaction
)

// maxImportLine bounds a single export record.
const maxImportLine = 64 << 20

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path string     // required
	Mode ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Errors   []ImportError `json:"errors"`
}

// ImportError describes one line that was not imported.
type ImportError struct {
	Line    int    `json:"line,omitempty"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type importLine struct {
	line   int
	record ExportRecord
}

// Import loads interactions from an export file.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	switch input.Mode {
	case ImportModeError, ImportModeReplace, ImportModeSkip:
	default:
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, skip")
	}

	if err := ValidatePath(input.Path, PathCheckRead, cfg); err != nil {
		return nil, err
	}
	file, err := openFileNoFollowRead(input.Path)
	if err != nil {
		if _, ok := err.(*errors.CiteError); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	records, parseErrors := parseExportFile(file)
	out := &ImportOutput{Errors: parseErrors}
	if out.Errors == nil {
		out.Errors = []ImportError{}
	}

	if input.Mode == ImportModeError {
		if len(parseErrors) > 0 {
			return out, nil
		}
		for _, r := range records {
			exists, err := db.Exists(ctx, database, r.record.ID)
			if err != nil {
				return nil, err
			}
			if exists {
				out.Errors = append(out.Errors, collision(r))
			}
		}
		if len(out.Errors) > 0 {
			return out, nil
		}
	}

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		exists, err := db.Exists(ctx, database, r.record.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			switch input.Mode {
			case ImportModeSkip:
				out.Skipped++
				continue
			case ImportModeReplace:
				if err := db.Delete(ctx, database, r.record.ID); err != nil {
					return nil, err
				}
			default:
				out.Errors = append(out.Errors, collision(r))
				continue
			}
		}

		if err := db.Insert(ctx, database, &db.Record{
			ID:          r.record.ID,
			Label:       r.record.Label,
			EventsCount: r.record.EventsCount,
			Completed:   r.record.Completed,
			CreatedAt:   r.record.CreatedAt,
			Result:      r.record.Result,
		}); err != nil {
			return nil, err
		}
		out.Imported++
	}

	return out, nil
}

func collision(r importLine) ImportError {
	return ImportError{
		Line:    r.line,
		ID:      r.record.ID,
		Code:    "ID_COLLISION",
		Message: fmt.Sprintf("interaction with id %q already exists", r.record.ID),
	}
}

// parseExportFile reads export records, skipping the header line.
func parseExportFile(r io.Reader) ([]importLine, []ImportError) {
	var (
		records     []importLine
		parseErrors []ImportError
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportLine)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var header ExportHeader
		if err := json.Unmarshal(line, &header); err == nil && header.CitelensExport {
			continue
		}

		var record ExportRecord
		if err := json.Unmarshal(line, &record); err != nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				Code:    "PARSE_ERROR",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			})
			continue
		}
		if record.ID == "" || record.Result == nil {
			parseErrors = append(parseErrors, ImportError{
				Line:    lineNum,
				ID:      record.ID,
				Code:    "INVALID_RECORD",
				Message: "record needs id and result",
			})
			continue
		}
		records = append(records, importLine{line: lineNum, record: record})
	}

	if err := scanner.Err(); err != nil {
		parseErrors = append(parseErrors, ImportError{
			Line:    lineNum,
			Code:    "READ_ERROR",
			Message: fmt.Sprintf("failed to read file: %v", err),
		})
	}

	return records, parseErrors
}
