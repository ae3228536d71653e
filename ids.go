package stemflow

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"
)

// NumIDSteps is the number of refinement steps the identifier engine
// runs: self, forward diffusion, backward diffusion, concentric
// neighbor diffusion, and duplicate disambiguation.
const NumIDSteps = 5

// Step tags bound into the digest at each refinement step, so values
// produced by different steps can never collide structurally.
var (
	sepUpstream   = []byte("upstream")
	sepDownstream = []byte("downstream")
	sepNeighbors  = []byte("neighbors")
	sepRank       = []byte("rank")
	sigUpMark     = byte('u')
	sigDownMark   = byte('d')
)

// GenerateTaskIDs computes a stable, content-derived id for every task
// in the flow. The mapping is total and injective. Its set of id values
// is a pure function of the flow's project, name, task fingerprints, and
// edges: construction order, hash-map iteration order, and task memory
// addresses never influence it. Tasks that are interchangeable under a
// graph automorphism are the one exception at the mapping level: they
// receive their ids in task insertion order, so which of them gets
// which id depends on construction order.
//
// An empty flow yields an empty mapping. A cycle or an edge referencing
// a task outside the flow fails with ErrInvalidGraph and no partial
// mapping.
func GenerateTaskIDs(f *Flow) (map[*Task]ID, error) {
	idx, err := buildFlowIndex(f)
	if err != nil {
		return nil, err
	}
	final, _ := runIDSteps(idx, FlowFingerprint(f), false)
	return idsToMap(idx, final), nil
}

// GenerateTaskIDsDebug runs the engine with tracing: it returns the id
// mapping after each of the five steps. Once the mapping is fully
// unique, later steps repeat it unchanged, so the trace always has
// NumIDSteps entries.
func GenerateTaskIDsDebug(f *Flow) ([]map[*Task]ID, error) {
	idx, err := buildFlowIndex(f)
	if err != nil {
		return nil, err
	}
	_, steps := runIDSteps(idx, FlowFingerprint(f), true)
	out := make([]map[*Task]ID, len(steps))
	for i, step := range steps {
		out[i] = idsToMap(idx, step)
	}
	return out, nil
}

// flowIndex is the adjacency index the engine computes once per call:
// an arena of task handles plus upstream and downstream lookup tables
// keyed by task position.
type flowIndex struct {
	tasks []*Task
	fps   []ID
	up    [][]int
	down  [][]int
	topo  []int
}

func buildFlowIndex(f *Flow) (*flowIndex, error) {
	n := len(f.tasks)
	idx := &flowIndex{
		tasks: f.Tasks(),
		fps:   make([]ID, n),
		up:    make([][]int, n),
		down:  make([][]int, n),
	}
	pos := make(map[*Task]int, n)
	for i, t := range idx.tasks {
		pos[t] = i
		idx.fps[i] = TaskFingerprint(t)
	}

	for _, e := range f.edges {
		ui, ok := pos[e.Upstream]
		if !ok {
			return nil, fmt.Errorf("%w: edge upstream task %q not in flow", ErrInvalidGraph, e.Upstream.Name)
		}
		di, ok := pos[e.Downstream]
		if !ok {
			return nil, fmt.Errorf("%w: edge downstream task %q not in flow", ErrInvalidGraph, e.Downstream.Name)
		}
		idx.down[ui] = append(idx.down[ui], di)
		idx.up[di] = append(idx.up[di], ui)
	}

	// Kahn's algorithm over task positions.
	indegree := make([]int, n)
	for i := range idx.up {
		indegree[i] = len(idx.up[i])
	}
	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}
	idx.topo = make([]int, 0, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		idx.topo = append(idx.topo, i)
		for _, d := range idx.down[i] {
			indegree[d]--
			if indegree[d] == 0 {
				queue = append(queue, d)
			}
		}
	}
	if len(idx.topo) != n {
		return nil, fmt.Errorf("%w: cycle detected", ErrInvalidGraph)
	}
	return idx, nil
}

// runIDSteps executes the five refinement steps. In production mode
// (debug false) it stops as soon as every task has a unique id; in
// debug mode it records all five snapshots, repeating the converged
// mapping once no further refinement is possible.
//
// At every step, a task whose current id is already unique keeps it;
// only tasks with duplicated ids are rehashed. This bounds change
// propagation: an edit to one task never disturbs tasks that were
// already uniquely identified before the information reached them.
func runIDSteps(idx *flowIndex, flowFP ID, debug bool) ([]ID, [][]ID) {
	n := len(idx.tasks)

	// Step 1 — self: each task is hashed with the flow fingerprint.
	cur := make([]ID, n)
	for i := range cur {
		cur[i] = Digest(flowFP[:], idx.fps[i][:])
	}
	steps := make([][]ID, 0, NumIDSteps)
	steps = append(steps, cloneIDs(cur))
	converged := uniqueIDCount(cur) == n

	fns := []func([]ID) []ID{
		func(prev []ID) []ID { return stepForward(idx, flowFP, prev) },
		func(prev []ID) []ID { return stepBackward(idx, prev) },
		func(prev []ID) []ID { return stepConcentric(idx, prev) },
		func(prev []ID) []ID { return stepDisambiguate(idx, prev) },
	}
	for _, fn := range fns {
		if converged {
			if !debug {
				break
			}
			steps = append(steps, cloneIDs(cur))
			continue
		}
		cur = fn(cur)
		converged = uniqueIDCount(cur) == n
		steps = append(steps, cloneIDs(cur))
	}
	return cur, steps
}

// stepForward diffuses information along edges: tasks are processed in
// topological order, each duplicated task rehashed with the sorted
// step-2 ids of its upstream neighbors. Upstream ids are final within
// the step before they are consumed.
func stepForward(idx *flowIndex, flowFP ID, prev []ID) []ID {
	next := cloneIDs(prev)
	dup := duplicatedIDs(prev)
	for _, i := range idx.topo {
		if !dup[prev[i]] {
			continue
		}
		parts := make([][]byte, 0, 3+len(idx.up[i]))
		parts = append(parts, flowFP[:], idx.fps[i][:], sepUpstream)
		parts = append(parts, sortedNeighborIDs(next, idx.up[i])...)
		next[i] = Digest(parts...)
	}
	return next
}

// stepBackward diffuses in the other direction: reverse topological
// order, each duplicated task rehashed from its step-2 id plus the
// sorted step-3 ids of its downstream neighbors. Seeding with the
// step-2 id keeps the forward information in the digest chain.
func stepBackward(idx *flowIndex, prev []ID) []ID {
	next := cloneIDs(prev)
	dup := duplicatedIDs(prev)
	for k := len(idx.topo) - 1; k >= 0; k-- {
		i := idx.topo[k]
		if !dup[prev[i]] {
			continue
		}
		parts := make([][]byte, 0, 2+len(idx.down[i]))
		parts = append(parts, prev[i][:], sepDownstream)
		parts = append(parts, sortedNeighborIDs(next, idx.down[i])...)
		next[i] = Digest(parts...)
	}
	return next
}

// stepConcentric runs a bounded fixed point: each round rehashes every
// duplicated task with the sorted ids of all its direct neighbors,
// updating all tasks simultaneously so the result is order-independent.
// Information spreads one hop further per round. Partition refinement
// is monotone, so a round that does not increase the number of unique
// ids is a fixed point; its result is still kept.
func stepConcentric(idx *flowIndex, prev []ID) []ID {
	n := len(prev)
	cur := cloneIDs(prev)
	uniq := uniqueIDCount(cur)
	for round := 0; round < n && uniq < n; round++ {
		dup := duplicatedIDs(cur)
		next := cloneIDs(cur)
		for i := 0; i < n; i++ {
			if !dup[cur[i]] {
				continue
			}
			nbrs := make([]int, 0, len(idx.up[i])+len(idx.down[i]))
			nbrs = append(nbrs, idx.up[i]...)
			nbrs = append(nbrs, idx.down[i]...)
			parts := make([][]byte, 0, 2+len(nbrs))
			parts = append(parts, cur[i][:], sepNeighbors)
			parts = append(parts, sortedNeighborIDs(cur, nbrs)...)
			next[i] = Digest(parts...)
		}
		nextUniq := uniqueIDCount(next)
		cur = next
		if nextUniq <= uniq {
			break
		}
		uniq = nextUniq
	}
	return cur
}

// stepDisambiguate breaks residual structural symmetry. Tasks are
// partitioned by current id; within each partition of size > 1, members
// are ranked by a breadth-first signature of their surrounding
// component and rehashed with their rank. Members whose signatures tie
// are automorphic images of one another: any rank assignment among them
// produces the same id multiset, and ranks fall back to task insertion
// order.
func stepDisambiguate(idx *flowIndex, prev []ID) []ID {
	groups := make(map[ID][]int)
	for i, id := range prev {
		groups[id] = append(groups[id], i)
	}

	next := cloneIDs(prev)
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		type candidate struct {
			pos int
			sig []byte
		}
		ranked := make([]candidate, len(members))
		for k, m := range members {
			ranked[k] = candidate{pos: m, sig: bfsSignature(idx, prev, m)}
		}
		// members is in ascending task position, so equal signatures
		// keep insertion order under the stable sort.
		sort.SliceStable(ranked, func(a, b int) bool {
			return bytes.Compare(ranked[a].sig, ranked[b].sig) < 0
		})
		for rank, c := range ranked {
			var rb [8]byte
			binary.BigEndian.PutUint64(rb[:], uint64(rank))
			next[c.pos] = Digest(prev[c.pos][:], sepRank, rb[:])
		}
	}
	return next
}

// bfsSignature emits a canonical byte sequence describing the graph as
// seen from the start task: a breadth-first walk where each visited
// task contributes its id and the ids of its upstream then downstream
// neighbors, neighbors ordered by id. Two tasks get equal signatures
// only when their rooted neighborhoods are indistinguishable under the
// current id labeling.
func bfsSignature(idx *flowIndex, ids []ID, start int) []byte {
	visited := make([]bool, len(ids))
	visited[start] = true
	queue := []int{start}
	var sig []byte
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		sig = append(sig, ids[i][:]...)
		for dir, nbrs := range [][]int{idx.up[i], idx.down[i]} {
			if dir == 0 {
				sig = append(sig, sigUpMark)
			} else {
				sig = append(sig, sigDownMark)
			}
			ordered := append([]int(nil), nbrs...)
			sort.SliceStable(ordered, func(a, b int) bool {
				return compareIDs(ids[ordered[a]], ids[ordered[b]]) < 0
			})
			for _, nb := range ordered {
				sig = append(sig, ids[nb][:]...)
				if !visited[nb] {
					visited[nb] = true
					queue = append(queue, nb)
				}
			}
		}
	}
	return sig
}

func idsToMap(idx *flowIndex, ids []ID) map[*Task]ID {
	out := make(map[*Task]ID, len(ids))
	for i, t := range idx.tasks {
		out[t] = ids[i]
	}
	return out
}

func cloneIDs(ids []ID) []ID {
	out := make([]ID, len(ids))
	copy(out, ids)
	return out
}

func uniqueIDCount(ids []ID) int {
	seen := make(map[ID]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func duplicatedIDs(ids []ID) map[ID]bool {
	counts := make(map[ID]int, len(ids))
	for _, id := range ids {
		counts[id]++
	}
	dup := make(map[ID]bool, len(counts))
	for id, c := range counts {
		if c > 1 {
			dup[id] = true
		}
	}
	return dup
}

// sortedNeighborIDs materializes the ids of the given task positions as
// a bytewise-sorted list of digest parts. Duplicates are kept: the
// neighbor ids form a multiset.
func sortedNeighborIDs(ids []ID, nbrs []int) [][]byte {
	vals := make([]ID, len(nbrs))
	for i, nb := range nbrs {
		vals[i] = ids[nb]
	}
	sortIDs(vals)
	out := make([][]byte, len(vals))
	for i := range vals {
		out[i] = vals[i][:]
	}
	return out
}
