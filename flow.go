package stemflow

import (
	"errors"
	"fmt"
	"sort"
)

// Graph errors
var (
	// ErrInvalidGraph reports a structural violation: a cycle, an edge
	// referencing a task outside the flow, a self-loop, or a parallel
	// edge. Operations that return it never produce partial results.
	ErrInvalidGraph = errors.New("invalid task graph")
)

// Edge is a directed dependency between two tasks of a flow.
type Edge struct {
	Upstream   *Task
	Downstream *Task
}

// Flow is a directed acyclic graph of tasks plus naming metadata.
// Tasks and edges are sets; insertion order is retained only so that
// enumeration is reproducible within a process.
type Flow struct {
	Project string
	Name    string
	Version string

	tasks   []*Task
	taskSet map[*Task]struct{}
	edges   []Edge
	edgeSet map[Edge]struct{}
}

// Defaults applied by NewFlow when no option overrides them.
const (
	DefaultProject = "default"
	DefaultVersion = "1"
)

// FlowOption configures a flow at construction time.
type FlowOption func(*Flow)

// WithProject sets the flow's project.
func WithProject(project string) FlowOption {
	return func(f *Flow) { f.Project = project }
}

// WithVersion sets the flow's version.
func WithVersion(version string) FlowOption {
	return func(f *Flow) { f.Version = version }
}

// NewFlow creates an empty flow with the given name.
func NewFlow(name string, opts ...FlowOption) *Flow {
	f := &Flow{
		Project: DefaultProject,
		Name:    name,
		Version: DefaultVersion,
		taskSet: make(map[*Task]struct{}),
		edgeSet: make(map[Edge]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AddTask adds a task to the flow. Adding a task twice is a no-op.
func (f *Flow) AddTask(t *Task) error {
	if t == nil {
		return fmt.Errorf("%w: nil task", ErrInvalidGraph)
	}
	if _, ok := f.taskSet[t]; ok {
		return nil
	}
	f.taskSet[t] = struct{}{}
	f.tasks = append(f.tasks, t)
	return nil
}

// AddEdge adds a directed dependency from upstream to downstream,
// adding either task to the flow if not already present. Self-loops and
// parallel edges are rejected.
func (f *Flow) AddEdge(upstream, downstream *Task) error {
	if upstream == nil || downstream == nil {
		return fmt.Errorf("%w: nil task in edge", ErrInvalidGraph)
	}
	if upstream == downstream {
		return fmt.Errorf("%w: self-loop on task %q", ErrInvalidGraph, upstream.Name)
	}
	e := Edge{Upstream: upstream, Downstream: downstream}
	if _, ok := f.edgeSet[e]; ok {
		return fmt.Errorf("%w: parallel edge %q -> %q", ErrInvalidGraph, upstream.Name, downstream.Name)
	}
	if err := f.AddTask(upstream); err != nil {
		return err
	}
	if err := f.AddTask(downstream); err != nil {
		return err
	}
	f.edgeSet[e] = struct{}{}
	f.edges = append(f.edges, e)
	return nil
}

// Has reports whether the task belongs to the flow.
func (f *Flow) Has(t *Task) bool {
	_, ok := f.taskSet[t]
	return ok
}

// Tasks returns the flow's tasks in insertion order.
func (f *Flow) Tasks() []*Task {
	out := make([]*Task, len(f.tasks))
	copy(out, f.tasks)
	return out
}

// Edges returns the flow's edges in insertion order.
func (f *Flow) Edges() []Edge {
	out := make([]Edge, len(f.edges))
	copy(out, f.edges)
	return out
}

// Len returns the number of tasks in the flow.
func (f *Flow) Len() int {
	return len(f.tasks)
}

// UpstreamTasks returns the tasks with an edge into t.
func (f *Flow) UpstreamTasks(t *Task) []*Task {
	var out []*Task
	for _, e := range f.edges {
		if e.Downstream == t {
			out = append(out, e.Upstream)
		}
	}
	return out
}

// DownstreamTasks returns the tasks t has an edge into.
func (f *Flow) DownstreamTasks(t *Task) []*Task {
	var out []*Task
	for _, e := range f.edges {
		if e.Upstream == t {
			out = append(out, e.Downstream)
		}
	}
	return out
}

// Copy returns a new flow with the same metadata, tasks, and edges.
// Task pointers are shared, matching task ownership semantics: copying
// a flow duplicates the graph, not the tasks.
func (f *Flow) Copy() *Flow {
	c := &Flow{
		Project: f.Project,
		Name:    f.Name,
		Version: f.Version,
		tasks:   make([]*Task, len(f.tasks)),
		taskSet: make(map[*Task]struct{}, len(f.taskSet)),
		edges:   make([]Edge, len(f.edges)),
		edgeSet: make(map[Edge]struct{}, len(f.edgeSet)),
	}
	copy(c.tasks, f.tasks)
	copy(c.edges, f.edges)
	for t := range f.taskSet {
		c.taskSet[t] = struct{}{}
	}
	for e := range f.edgeSet {
		c.edgeSet[e] = struct{}{}
	}
	return c
}

// Equal reports whether two flows are interchangeable: same project,
// name, and version, the same multiset of task ids, and the same set of
// id-level edges. Task object identity is irrelevant, so a flow
// round-tripped through registry serialization compares equal to its
// original. Flows whose ids cannot be generated compare unequal.
func (f *Flow) Equal(other *Flow) bool {
	if other == nil {
		return false
	}
	if f.Project != other.Project || f.Name != other.Name || f.Version != other.Version {
		return false
	}
	if len(f.tasks) != len(other.tasks) || len(f.edges) != len(other.edges) {
		return false
	}
	fIDs, err := GenerateTaskIDs(f)
	if err != nil {
		return false
	}
	oIDs, err := GenerateTaskIDs(other)
	if err != nil {
		return false
	}
	if !equalIDMultiset(fIDs, oIDs) {
		return false
	}
	return equalEdgeIDs(f, fIDs, other, oIDs)
}

func equalIDMultiset(a, b map[*Task]ID) bool {
	as := make([]ID, 0, len(a))
	bs := make([]ID, 0, len(b))
	for _, id := range a {
		as = append(as, id)
	}
	for _, id := range b {
		bs = append(bs, id)
	}
	sortIDs(as)
	sortIDs(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func equalEdgeIDs(a *Flow, aIDs map[*Task]ID, b *Flow, bIDs map[*Task]ID) bool {
	type idEdge struct{ up, down ID }
	aEdges := make(map[idEdge]struct{}, len(a.edges))
	for _, e := range a.edges {
		aEdges[idEdge{aIDs[e.Upstream], aIDs[e.Downstream]}] = struct{}{}
	}
	for _, e := range b.edges {
		if _, ok := aEdges[idEdge{bIDs[e.Upstream], bIDs[e.Downstream]}]; !ok {
			return false
		}
	}
	return true
}

func sortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool {
		return compareIDs(ids[i], ids[j]) < 0
	})
}
