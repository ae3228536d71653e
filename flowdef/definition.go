// Package flowdef parses declarative flow definitions from YAML or
// JSON documents and builds Flow values from them. The CLI and any
// embedding service use it to describe flows in files rather than code.
package flowdef

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/stemflow"
)

// Definition is the serializable shape of a flow.
type Definition struct {
	Project string    `yaml:"project" json:"project"`
	Name    string    `yaml:"name" json:"name"`
	Version string    `yaml:"version" json:"version"`
	Tasks   []TaskDef `yaml:"tasks" json:"tasks"`
	Edges   []EdgeDef `yaml:"edges" json:"edges"`
}

// TaskDef describes one task. Ref is the definition-local handle edges
// use to reference the task; it defaults to the task name and must be
// unique within the definition.
type TaskDef struct {
	Ref         string            `yaml:"ref" json:"ref"`
	Name        string            `yaml:"name" json:"name"`
	Slug        string            `yaml:"slug" json:"slug"`
	Type        string            `yaml:"type" json:"type"`
	Fields      map[string]string `yaml:"fields" json:"fields"`
	Description string            `yaml:"description" json:"description"`
	MaxRetries  int               `yaml:"max_retries" json:"max_retries"`
	RetryDelay  time.Duration     `yaml:"retry_delay" json:"retry_delay"`
	Tags        []string          `yaml:"tags" json:"tags"`
}

// EdgeDef connects two tasks by ref.
type EdgeDef struct {
	Upstream   string `yaml:"upstream" json:"upstream"`
	Downstream string `yaml:"downstream" json:"downstream"`
}

// Parse decodes a YAML (or JSON) flow definition.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("flowdef: parsing definition: %w", err)
	}
	return &def, nil
}

// ParseFile decodes the flow definition at path.
func ParseFile(path string) (*Definition, error) {
	// #nosec G304 -- path comes from an explicit caller argument.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowdef: reading %q: %w", path, err)
	}
	return Parse(data)
}

// Build validates the definition and constructs the flow. Validation
// rejects nameless tasks, duplicate refs, and edges referencing unknown
// refs; graph-level violations (self-loops, parallel edges) surface
// from the flow itself.
func (d *Definition) Build() (*stemflow.Flow, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("flowdef: flow name is required")
	}

	opts := make([]stemflow.FlowOption, 0, 2)
	if d.Project != "" {
		opts = append(opts, stemflow.WithProject(d.Project))
	}
	if d.Version != "" {
		opts = append(opts, stemflow.WithVersion(d.Version))
	}
	f := stemflow.NewFlow(d.Name, opts...)

	byRef := make(map[string]*stemflow.Task, len(d.Tasks))
	for i, td := range d.Tasks {
		if td.Name == "" {
			return nil, fmt.Errorf("flowdef: tasks[%d]: name is required", i)
		}
		ref := td.Ref
		if ref == "" {
			ref = td.Name
		}
		if _, exists := byRef[ref]; exists {
			return nil, fmt.Errorf("flowdef: duplicate task ref %q", ref)
		}
		t := &stemflow.Task{
			Name:        td.Name,
			Slug:        td.Slug,
			Type:        td.Type,
			Fields:      td.Fields,
			Description: td.Description,
			MaxRetries:  td.MaxRetries,
			RetryDelay:  td.RetryDelay,
			Tags:        td.Tags,
		}
		byRef[ref] = t
		if err := f.AddTask(t); err != nil {
			return nil, err
		}
	}

	for i, ed := range d.Edges {
		up, ok := byRef[ed.Upstream]
		if !ok {
			return nil, fmt.Errorf("flowdef: edges[%d]: unknown upstream ref %q", i, ed.Upstream)
		}
		down, ok := byRef[ed.Downstream]
		if !ok {
			return nil, fmt.Errorf("flowdef: edges[%d]: unknown downstream ref %q", i, ed.Downstream)
		}
		if err := f.AddEdge(up, down); err != nil {
			return nil, fmt.Errorf("flowdef: edges[%d]: %w", i, err)
		}
	}
	return f, nil
}
