package version

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/version-record.schema.json
var recordSchema []byte

var schemaLoader = gojsonschema.NewBytesLoader(recordSchema)

// Record is the structured output of the version helper. VersionCode is the
// build-wide code; the helper's own echo of it is ignored.
type Record struct {
	VersionName string `json:"versionName"`
	VersionCode Code   `json:"versionCode"`
}

// ParseError reports a missing or malformed version record.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing version record %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ReadRecord loads and validates the record the helper wrote to path.
func ReadRecord(path string, code Code) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		return nil, &ParseError{Path: path, Err: errors.New(strings.Join(msgs, "; "))}
	}

	var raw struct {
		VersionName string `json:"versionName"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &Record{VersionName: raw.VersionName, VersionCode: code}, nil
}
