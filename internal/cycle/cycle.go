// Package cycle implements the CircularDependency detector: a Tarjan-style
// cycle finder over the dependency graph of not-yet-installed distributions.
package cycle

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Node is one (distfile, provides, required_packages) triple fed to the
// detector for every not-yet-installed Distribution.
type Node struct {
	Distfile  string
	Distvname string
	Provides  []string
	Required  []string
}

// Detector builds the directed graph edge A → B iff a package required by A
// is in B.Provides, using gonum's graph/simple and graph/topo (the same
// library distri's batch builder reaches for to find cyclic build
// components), and reports strongly-connected components of size > 1 or
// self-loops as circular dependencies.
type Detector struct {
	nodes []Node

	g            *simple.DirectedGraph
	idByDistfile map[string]int64
	distfileByID map[int64]string
	providerOf   map[string]string // package -> providing distfile
}

// New returns an empty Detector.
func New() *Detector {
	return &Detector{
		idByDistfile: make(map[string]int64),
		distfileByID: make(map[int64]string),
		providerOf:   make(map[string]string),
	}
}

// Add registers one distribution's triple. Call Finalize once every triple
// has been added before calling Detect.
func (d *Detector) Add(n Node) {
	d.nodes = append(d.nodes, n)
}

// simpleNode adapts a distfile into a gonum graph.Node.
type simpleNode int64

func (n simpleNode) ID() int64 { return int64(n) }

// Finalize builds the dependency graph from every added triple. It must be
// called exactly once, after all triples are added and before Detect.
func (d *Detector) Finalize() {
	d.g = simple.NewDirectedGraph()

	for i, n := range d.nodes {
		id := int64(i)
		d.idByDistfile[n.Distfile] = id
		d.distfileByID[id] = n.Distfile
		d.g.AddNode(simpleNode(id))

		for _, pkg := range n.Provides {
			d.providerOf[pkg] = n.Distfile
		}
	}

	for i, n := range d.nodes {
		from := int64(i)

		for _, req := range n.Required {
			provider, ok := d.providerOf[req]
			if !ok {
				continue
			}

			to, ok := d.idByDistfile[provider]
			if !ok {
				continue
			}

			if !d.g.HasEdgeFromTo(from, to) {
				d.g.SetEdge(d.g.NewEdge(simpleNode(from), simpleNode(to)))
			}
		}
	}
}

// Detect returns, for every distfile on a strongly-connected component of
// size greater than 1 (or with a self-loop), the lexicographically-smallest
// rotation of distvnames describing one cycle through that component.
func (d *Detector) Detect() map[string][]string {
	result := make(map[string][]string)

	if d.g == nil {
		return result
	}

	for _, scc := range topo.TarjanSCC(d.g) {
		if len(scc) == 1 {
			id := scc[0].ID()
			if d.g.HasEdgeFromTo(id, id) {
				name := d.distfileByID[id]
				path := []string{d.nodeName(id), d.nodeName(id)}
				result[name] = path
			}

			continue
		}

		path := d.canonicalCycle(scc)
		for _, n := range scc {
			result[d.distfileByID[n.ID()]] = path
		}
	}

	return result
}

// canonicalCycle finds one cycle through the strongly-connected component
// scc, starting at its lexicographically smallest distvname, so that
// equivalent rotations of the same cycle always report identically.
func (d *Detector) canonicalCycle(scc []graph.Node) []string {
	ids := make([]int64, len(scc))
	inSCC := make(map[int64]bool, len(scc))

	for i, n := range scc {
		ids[i] = n.ID()
		inSCC[n.ID()] = true
	}

	sort.Slice(ids, func(i, j int) bool {
		return d.nodeName(ids[i]) < d.nodeName(ids[j])
	})

	start := ids[0]

	path := d.findCycleFrom(start, inSCC)
	if path == nil {
		// Strong connectivity guarantees a cycle exists; this should be
		// unreachable, but degrade gracefully rather than panic.
		return []string{d.nodeName(start), d.nodeName(start)}
	}

	names := make([]string, 0, len(path)+1)
	for _, id := range path {
		names = append(names, d.nodeName(id))
	}

	names = append(names, d.nodeName(start))

	return names
}

// findCycleFrom performs a DFS restricted to nodes in allowed, returning the
// first path (as a slice of node IDs starting with start) that returns to
// start, or nil if none is found.
func (d *Detector) findCycleFrom(start int64, allowed map[int64]bool) []int64 {
	visited := make(map[int64]bool)
	path := []int64{start}

	var walk func(current int64) []int64
	walk = func(current int64) []int64 {
		visited[current] = true

		to := sortedSuccessors(d.g, current)

		for _, next := range to {
			if !allowed[next] {
				continue
			}

			if next == start && len(path) > 1 {
				return append([]int64(nil), path...)
			}

			if visited[next] {
				continue
			}

			path = append(path, next)

			if found := walk(next); found != nil {
				return found
			}

			path = path[:len(path)-1]
		}

		return nil
	}

	return walk(start)
}

func sortedSuccessors(g *simple.DirectedGraph, id int64) []int64 {
	it := g.From(id)

	var out []int64
	for it.Next() {
		out = append(out, it.Node().ID())
	}

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })

	return out
}

func (d *Detector) nodeName(id int64) string {
	distfile := d.distfileByID[id]

	for _, n := range d.nodes {
		if n.Distfile == distfile {
			if n.Distvname != "" {
				return n.Distvname
			}

			return n.Distfile
		}
	}

	return distfile
}
