package mcp

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/citelens/internal/errors"
)

// decode unmarshals tool arguments into a typed request. Failures come back
// as INVALID_REQUEST; a mistyped field is named in Details["field"].
func decode[T any](req mcp.CallToolRequest) (T, error) {
	var result T
	b, err := json.Marshal(req.GetArguments())
	if err != nil {
		return result, errors.NewInvalidRequest(fmt.Sprintf("arguments are not JSON: %v", err))
	}
	if err := json.Unmarshal(b, &result); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) && typeErr.Field != "" {
			cErr := errors.NewInvalidRequest(fmt.Sprintf("%s must be %s", typeErr.Field, jsonKind(typeErr.Type)))
			cErr.Details = map[string]any{"field": typeErr.Field}
			return result, cErr
		}
		return result, errors.NewInvalidRequest(fmt.Sprintf("invalid arguments: %v", err))
	}
	return result, nil
}

// jsonKind names the JSON shape a Go type decodes from.
func jsonKind(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.Slice, reflect.Array:
		return "an array"
	default:
		return "an object"
	}
}
