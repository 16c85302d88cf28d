// Package config loads pipeline definitions: YAML documents validated
// against an embedded CUE schema before anything downstream sees them.
// Validation failures never reach the engine; they surface here as
// ConfigError with a machine-readable code.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/weftlabs/weft/internal/dag"
	"github.com/weftlabs/weft/internal/engine"
)

//go:embed schema.cue
var schemaCUE string

// Config error codes.
const (
	ErrCodeNotFound = "CONFIG_NOT_FOUND"
	ErrCodeParse    = "CONFIG_PARSE"
	ErrCodeSchema   = "CONFIG_SCHEMA"
	ErrCodeInvalid  = "CONFIG_INVALID"
)

// ConfigError reports a problem with a pipeline document.
type ConfigError struct {
	Code    string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func configErr(code, format string, args ...any) *ConfigError {
	return &ConfigError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// SourceSpec declares the pipeline's record source.
type SourceSpec struct {
	ID     string         `yaml:"id"`
	Type   string         `yaml:"type"`
	Params map[string]any `yaml:"params"`
}

// TransformSpec declares one transform node.
type TransformSpec struct {
	Name   string         `yaml:"name"`
	Step   string         `yaml:"step"`
	Params map[string]any `yaml:"params"`
}

// DestinationSpec declares one destination node.
type DestinationSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// EdgeSpec declares one edge of the transform graph.
type EdgeSpec struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// JobSpec carries optional run parameter overrides.
type JobSpec struct {
	Concurrency      int    `yaml:"concurrency"`
	QueueDepth       int    `yaml:"queue_depth"`
	Timeout          string `yaml:"timeout"`
	FailureThreshold int    `yaml:"failure_threshold"`
	RetryAttempts    int    `yaml:"retry_attempts"`
}

// Pipeline is one validated pipeline document.
type Pipeline struct {
	Name         string            `yaml:"name"`
	Collection   string            `yaml:"collection"`
	Source       SourceSpec        `yaml:"source"`
	Transforms   []TransformSpec   `yaml:"transforms"`
	Destinations []DestinationSpec `yaml:"destinations"`
	Edges        []EdgeSpec        `yaml:"edges"`
	Job          JobSpec           `yaml:"job"`
}

// Load reads, schema-validates, and decodes one pipeline document.
func Load(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, configErr(ErrCodeNotFound, "pipeline file not found: %s", path)
		}
		return nil, configErr(ErrCodeNotFound, "reading %s: %v", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes one pipeline document from raw YAML.
func Parse(data []byte) (*Pipeline, error) {
	// Decode generically first: the CUE schema sees the document exactly
	// as written, unknown fields included.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, configErr(ErrCodeParse, "invalid YAML: %v", err)
	}
	if raw == nil {
		return nil, configErr(ErrCodeParse, "empty pipeline document")
	}

	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, configErr(ErrCodeParse, "decoding pipeline: %v", err)
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return &p, nil
}

func validateSchema(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return configErr(ErrCodeSchema, "compiling schema: %v", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Pipeline"))
	if err := def.Err(); err != nil {
		return configErr(ErrCodeSchema, "resolving schema: %v", err)
	}

	doc := ctx.Encode(raw)
	if err := doc.Err(); err != nil {
		return configErr(ErrCodeParse, "encoding document: %v", err)
	}

	unified := def.Unify(doc)
	if err := unified.Validate(); err != nil {
		return configErr(ErrCodeSchema, "%s", cueerrors.Details(err, nil))
	}
	return nil
}

// check covers referential constraints the CUE schema cannot express:
// edges must reference declared nodes and node names must be unique.
// Structural graph properties (acyclicity, reachability, leaf typing) are
// dag.Build's job.
func (p *Pipeline) check() error {
	names := map[string]string{p.Source.ID: "source"}
	addNode := func(name, kind string) error {
		if name == "" {
			return configErr(ErrCodeInvalid, "%s node with empty name", kind)
		}
		if prev, dup := names[name]; dup {
			return configErr(ErrCodeInvalid, "node name %q used by both %s and %s", name, prev, kind)
		}
		names[name] = kind
		return nil
	}
	for _, t := range p.Transforms {
		if err := addNode(t.Name, "transform"); err != nil {
			return err
		}
	}
	for _, d := range p.Destinations {
		if err := addNode(d.Name, "destination"); err != nil {
			return err
		}
	}

	for _, e := range p.Edges {
		if _, ok := names[e.From]; !ok {
			return configErr(ErrCodeInvalid, "edge from unknown node %q", e.From)
		}
		if _, ok := names[e.To]; !ok {
			return configErr(ErrCodeInvalid, "edge to unknown node %q", e.To)
		}
	}

	if _, err := p.JobTimeout(); err != nil {
		return err
	}
	return nil
}

// GraphSpecs translates the pipeline into DAG node and edge declarations.
// The source node carries the source's ID as its node name.
func (p *Pipeline) GraphSpecs() ([]dag.NodeSpec, []dag.EdgeSpec) {
	nodes := make([]dag.NodeSpec, 0, 1+len(p.Transforms)+len(p.Destinations))
	nodes = append(nodes, dag.NodeSpec{Name: p.Source.ID, Type: dag.NodeSource})
	for _, t := range p.Transforms {
		nodes = append(nodes, dag.NodeSpec{
			Name:   t.Name,
			Type:   dag.NodeTransform,
			Step:   t.Step,
			Params: t.Params,
		})
	}
	for _, d := range p.Destinations {
		nodes = append(nodes, dag.NodeSpec{Name: d.Name, Type: dag.NodeDestination})
	}

	edges := make([]dag.EdgeSpec, len(p.Edges))
	for i, e := range p.Edges {
		edges[i] = dag.EdgeSpec{From: e.From, To: e.To}
	}
	return nodes, edges
}

// Scope returns the job scope this pipeline syncs.
func (p *Pipeline) Scope() engine.Scope {
	return engine.Scope{SourceID: p.Source.ID, Collection: p.Collection}
}

// JobTimeout parses the optional job timeout. Zero when unset.
func (p *Pipeline) JobTimeout() (time.Duration, error) {
	if p.Job.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(p.Job.Timeout)
	if err != nil {
		return 0, configErr(ErrCodeInvalid, "job.timeout: %v", err)
	}
	if d <= 0 {
		return 0, configErr(ErrCodeInvalid, "job.timeout must be positive, got %s", p.Job.Timeout)
	}
	return d, nil
}
