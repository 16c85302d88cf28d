package transform

import (
	"context"
	"fmt"

	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/record"
)

// project keeps only the listed fields.
//
// Params: fields (list of strings). Missing fields are ignored rather than
// failing: sources routinely omit optional fields per record.
type project struct {
	fields []string
}

func newProject(params map[string]any) (dag.TransformStep, error) {
	fields, err := stringsParam(params, "fields")
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("project: fields must not be empty")
	}
	return &project{fields: fields}, nil
}

func (p *project) Name() string { return "project" }

func (p *project) Apply(_ context.Context, payload record.Object) ([]record.Object, error) {
	out := make(record.Object, len(p.fields))
	for _, f := range p.fields {
		if v, ok := payload[f]; ok {
			out[f] = v
		}
	}
	return []record.Object{out}, nil
}

// filter drops records whose field equals the configured value.
//
// Params: field (string), equals (string), and optional keep (bool). With
// keep=false (default) a match drops the record; with keep=true only
// matches survive. A dropped record is skipped-by-design downstream.
type filter struct {
	field  string
	equals string
	keep   bool
}

func newFilter(params map[string]any) (dag.TransformStep, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	equals, err := stringParam(params, "equals")
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	keep := false
	if v, ok := params["keep"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("filter: parameter \"keep\" must be a bool, got %T", v)
		}
		keep = b
	}
	return &filter{field: field, equals: equals, keep: keep}, nil
}

func (f *filter) Name() string { return "filter" }

func (f *filter) Apply(_ context.Context, payload record.Object) ([]record.Object, error) {
	v, present := payload[f.field]
	matches := false
	if s, ok := v.(record.String); present && ok {
		matches = string(s) == f.equals
	}

	if matches != f.keep {
		return nil, nil
	}
	return []record.Object{payload}, nil
}

// split fans one record into one output per element of an array field.
//
// Params: field (string). Each output carries all other fields unchanged,
// the field replaced by the single element, plus a "chunk_index" marker so
// sibling outputs stay distinguishable for hashing.
//
// A missing or empty array yields zero outputs (skipped-by-design); a
// non-array value is a transform error for that record.
type split struct {
	field string
}

func newSplit(params map[string]any) (dag.TransformStep, error) {
	field, err := stringParam(params, "field")
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	return &split{field: field}, nil
}

func (s *split) Name() string { return "split" }

func (s *split) Apply(_ context.Context, payload record.Object) ([]record.Object, error) {
	v, ok := payload[s.field]
	if !ok {
		return nil, nil
	}
	arr, ok := v.(record.Array)
	if !ok {
		return nil, fmt.Errorf("split: field %q is %T, want array", s.field, v)
	}

	outputs := make([]record.Object, 0, len(arr))
	for i, elem := range arr {
		out := payload.Clone()
		out[s.field] = elem
		out["chunk_index"] = record.Int(int64(i))
		outputs = append(outputs, out)
	}
	return outputs, nil
}

// rename moves a field to a new key.
//
// Params: from (string), to (string). A record without the field passes
// through unchanged.
type rename struct {
	from string
	to   string
}

func newRename(params map[string]any) (dag.TransformStep, error) {
	from, err := stringParam(params, "from")
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	to, err := stringParam(params, "to")
	if err != nil {
		return nil, fmt.Errorf("rename: %w", err)
	}
	if from == to {
		return nil, fmt.Errorf("rename: from and to are both %q", from)
	}
	return &rename{from: from, to: to}, nil
}

func (r *rename) Name() string { return "rename" }

func (r *rename) Apply(_ context.Context, payload record.Object) ([]record.Object, error) {
	v, ok := payload[r.from]
	if !ok {
		return []record.Object{payload}, nil
	}
	out := payload.Clone()
	delete(out, r.from)
	out[r.to] = v
	return []record.Object{out}, nil
}
