package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/weftlabs/weft/internal/record"
)

// maxLineBytes bounds a single JSONL line. Documents larger than this are a
// producer failure rather than silent truncation.
const maxLineBytes = 4 << 20

// JSONLConfig configures a JSONL file source.
type JSONLConfig struct {
	SourceID string
	Path     string

	// IDField names the payload field holding the natural id. Required.
	IDField string

	// KindField names the payload field holding the record kind. When
	// empty, or when the field is absent, DefaultKind applies.
	KindField   string
	DefaultKind string
}

// JSONL streams records from a line-delimited JSON file, one object per
// line, blank lines skipped. A malformed line or a missing id field fails
// the producer: a record without identity cannot participate in hashing or
// orphan detection, and skipping it silently would corrupt the sweep.
type JSONL struct {
	cfg JSONLConfig
}

func NewJSONL(cfg JSONLConfig) (*JSONL, error) {
	if cfg.SourceID == "" {
		return nil, fmt.Errorf("jsonl source: SourceID is required")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("jsonl source: Path is required")
	}
	if cfg.IDField == "" {
		return nil, fmt.Errorf("jsonl source: IDField is required")
	}
	if cfg.DefaultKind == "" {
		cfg.DefaultKind = "record"
	}
	return &JSONL{cfg: cfg}, nil
}

func (j *JSONL) ID() string { return j.cfg.SourceID }

func (j *JSONL) Produce(ctx context.Context, emit func(record.SourceRecord) error) error {
	f, err := os.Open(j.cfg.Path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", j.cfg.Path, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var raw map[string]any
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return fmt.Errorf("invalid JSON at line %d: %w", line, err)
		}
		payload, err := record.ObjectFromAny(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}

		naturalID, ok := stringField(raw, j.cfg.IDField)
		if !ok {
			return fmt.Errorf("line %d: missing id field %q", line, j.cfg.IDField)
		}

		kind := j.cfg.DefaultKind
		if j.cfg.KindField != "" {
			if k, ok := stringField(raw, j.cfg.KindField); ok {
				kind = k
			}
		}

		if err := emit(record.SourceRecord{
			SourceID:  j.cfg.SourceID,
			NaturalID: naturalID,
			Kind:      kind,
			Payload:   payload,
		}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", j.cfg.Path, err)
	}
	return nil
}

func stringField(raw map[string]any, field string) (string, bool) {
	v, ok := raw[field].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
