// Package stemflow assigns stable, content-derived identifiers to the
// tasks of a workflow graph.
//
// A Flow is a directed acyclic graph of tasks plus naming metadata
// (project, name, version). GenerateTaskIDs maps every task in a flow
// to a fixed-width id such that identical tasks in identical graph
// positions receive identical ids across runs, distinct tasks always
// receive distinct ids, and local edits to the graph perturb the ids
// downstream of the edit. Any other task's id moves only when that task
// still shared its id with another task at the step where the edit's
// effect reached it.
//
// The registry subpackage keeps a process-wide map of registered flows
// and serializes them, together with their computed ids, into portable
// snapshots:
//
//	import "github.com/petal-labs/stemflow/registry"
//
//	f := stemflow.NewFlow("etl", stemflow.WithProject("reports"))
//	extract := stemflow.NewTask("extract")
//	load := stemflow.NewTask("load")
//	_ = f.AddEdge(extract, load)
//	registry.Global().Register(f)
//
//	ids, err := stemflow.GenerateTaskIDs(f)
package stemflow
