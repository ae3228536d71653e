package stemflow

import (
	"errors"
	"testing"
)

func TestNewFlow_Defaults(t *testing.T) {
	f := NewFlow("etl")
	if f.Project != DefaultProject {
		t.Errorf("Project = %q, want %q", f.Project, DefaultProject)
	}
	if f.Version != DefaultVersion {
		t.Errorf("Version = %q, want %q", f.Version, DefaultVersion)
	}
	if f.Name != "etl" {
		t.Errorf("Name = %q, want %q", f.Name, "etl")
	}
}

func TestFlow_AddTask(t *testing.T) {
	f := NewFlow("f")
	task := NewTask("x")

	if err := f.AddTask(task); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := f.AddTask(task); err != nil {
		t.Fatalf("AddTask twice: %v", err)
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1 (re-adding is a no-op)", f.Len())
	}
	if !f.Has(task) {
		t.Error("Has should report the added task")
	}

	if err := f.AddTask(nil); !errors.Is(err, ErrInvalidGraph) {
		t.Errorf("AddTask(nil) err = %v, want ErrInvalidGraph", err)
	}
}

func TestFlow_AddEdge(t *testing.T) {
	f := NewFlow("f")
	a := NewTask("a")
	c := NewTask("c")

	// Edge endpoints are added implicitly.
	if err := f.AddEdge(a, c); err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
	if len(f.Edges()) != 1 {
		t.Errorf("Edges count = %d, want 1", len(f.Edges()))
	}

	ups := f.UpstreamTasks(c)
	if len(ups) != 1 || ups[0] != a {
		t.Errorf("UpstreamTasks(c) = %v, want [a]", ups)
	}
	downs := f.DownstreamTasks(a)
	if len(downs) != 1 || downs[0] != c {
		t.Errorf("DownstreamTasks(a) = %v, want [c]", downs)
	}
	if len(f.UpstreamTasks(a)) != 0 {
		t.Error("a should have no upstream tasks")
	}
}

func TestFlow_Copy(t *testing.T) {
	b := newTaskBank()
	f := flowFromChains(t, b, NewFlow("f"), []string{"x1", "x2", "x3"})

	c := f.Copy()
	if c.Len() != f.Len() || len(c.Edges()) != len(f.Edges()) {
		t.Fatal("copy should have the same tasks and edges")
	}

	// Task pointers are shared; graph structure is not.
	if c.Tasks()[0] != f.Tasks()[0] {
		t.Error("copy should share task pointers")
	}
	extra := NewTask("extra")
	if err := c.AddTask(extra); err != nil {
		t.Fatal(err)
	}
	if f.Has(extra) {
		t.Error("adding to the copy should not affect the original")
	}
}

func TestFlow_Equal(t *testing.T) {
	build := func() *Flow {
		b := newTaskBank()
		return flowFromChains(t, b, NewFlow("f"),
			[]string{"x1", "x2", "x3"},
			[]string{"x2", "y1"},
		)
	}

	f1 := build()
	f2 := build()
	if !f1.Equal(f2) {
		t.Error("independently built identical flows should compare equal")
	}
	if !f1.Equal(f1.Copy()) {
		t.Error("a flow should equal its copy")
	}

	f3 := build()
	f3.Version = "2"
	if f1.Equal(f3) {
		t.Error("flows with different versions should not compare equal")
	}

	f4 := build()
	if err := f4.AddTask(NewTask("extra")); err != nil {
		t.Fatal(err)
	}
	if f1.Equal(f4) {
		t.Error("flows with different task sets should not compare equal")
	}

	if f1.Equal(nil) {
		t.Error("a flow should not equal nil")
	}
}
