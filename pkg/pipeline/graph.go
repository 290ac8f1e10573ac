package pipeline

// graph is the id-based dependency graph resolved from a Pipeline's
// name-based edges, used to compute execution order and level grouping
// for each scheduling strategy.
type graph struct {
	nodes       []string
	deps        map[string]map[string]bool // node -> its dependencies
	dependents  map[string]map[string]bool // node -> nodes depending on it
	edgeKind    map[[2]string]EdgeKind
}

func newGraph(nodes []string) *graph {
	g := &graph{
		nodes:      append([]string(nil), nodes...),
		deps:       make(map[string]map[string]bool, len(nodes)),
		dependents: make(map[string]map[string]bool, len(nodes)),
		edgeKind:   make(map[[2]string]EdgeKind),
	}
	for _, n := range nodes {
		g.deps[n] = map[string]bool{}
		g.dependents[n] = map[string]bool{}
	}
	return g
}

func (g *graph) addEdge(from, to string, kind EdgeKind) {
	g.deps[to][from] = true
	g.dependents[from][to] = true
	g.edgeKind[[2]string{from, to}] = kind
}

func (g *graph) kindOf(from, to string) EdgeKind {
	if k, ok := g.edgeKind[[2]string{from, to}]; ok {
		return k
	}
	return EdgeDirect
}

func (g *graph) hasCycle() bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.nodes))
	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		for dep := range g.dependents[n] {
			switch color[dep] {
			case gray:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}
	for _, n := range g.nodes {
		if color[n] == white {
			if visit(n) {
				return true
			}
		}
	}
	return false
}

// allReachableFromSources verifies every node is reachable from at least
// one node with no dependencies (a "source").
func (g *graph) allReachableFromSources() bool {
	var sources []string
	for _, n := range g.nodes {
		if len(g.deps[n]) == 0 {
			sources = append(sources, n)
		}
	}
	if len(sources) == 0 {
		return len(g.nodes) == 0
	}
	reached := make(map[string]bool, len(g.nodes))
	var visit func(n string)
	visit = func(n string) {
		if reached[n] {
			return
		}
		reached[n] = true
		for dep := range g.dependents[n] {
			visit(dep)
		}
	}
	for _, s := range sources {
		visit(s)
	}
	return len(reached) == len(g.nodes)
}

// topologicalOrder computes a Kahn's-algorithm ordering of the nodes.
func (g *graph) topologicalOrder() []string {
	inDegree := make(map[string]int, len(g.nodes))
	for _, n := range g.nodes {
		inDegree[n] = len(g.deps[n])
	}
	var queue, order []string
	for _, n := range g.nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for dep := range g.dependents[n] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	return order
}

// levels groups nodes into parallel execution levels: a node belongs to
// the earliest level after all of its dependencies, with each level
// capped at maxParallelism members (matching Parallel/DataFlow's level
// grouping and ResourceOptimized's initial level structure).
func (g *graph) levels(maxParallelism int) [][]string {
	depth := make(map[string]int, len(g.nodes))
	order := g.topologicalOrder()
	for _, n := range order {
		d := 0
		for dep := range g.deps[n] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[n] = d
	}

	byDepth := map[int][]string{}
	maxDepth := 0
	for _, n := range order {
		byDepth[depth[n]] = append(byDepth[depth[n]], n)
		if depth[n] > maxDepth {
			maxDepth = depth[n]
		}
	}

	var levels [][]string
	for d := 0; d <= maxDepth; d++ {
		nodes := byDepth[d]
		if maxParallelism <= 0 || len(nodes) <= maxParallelism {
			levels = append(levels, nodes)
			continue
		}
		for len(nodes) > 0 {
			chunk := maxParallelism
			if chunk > len(nodes) {
				chunk = len(nodes)
			}
			levels = append(levels, nodes[:chunk])
			nodes = nodes[chunk:]
		}
	}
	return levels
}
