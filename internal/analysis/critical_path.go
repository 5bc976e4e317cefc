// Package analysis computes dependency-graph properties of a project's
// milestones: cycle detection and the critical path bounding the earliest
// achievable completion date.
package analysis

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"projectstream/internal/model"
)

// CriticalPath is the longest dependency-respecting chain of planned
// durations in a project.
type CriticalPath struct {
	MilestoneIDs []int64 `json:"milestone_ids"`
	TotalDays    int     `json:"total_days"`

	// EarliestCompletion projects the minimum achievable completion date from
	// the chain head's planned start. Nil when the head has no planned start.
	EarliestCompletion *time.Time `json:"earliest_completion"`
}

// buildGraph wires dependency -> dependent edges. Gonum node IDs are the
// milestone IDs directly.
func buildGraph(milestones []*model.Milestone) *simple.DirectedGraph {
	g := simple.NewDirectedGraph()

	for _, m := range milestones {
		if g.Node(m.ID) == nil {
			g.AddNode(simple.Node(m.ID))
		}
	}

	for _, m := range milestones {
		for _, depID := range m.DependencyIDs {
			if g.Node(depID) == nil {
				// Edge to a milestone outside the set; skip rather than
				// invent a node with no duration.
				continue
			}
			if depID == m.ID {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(depID), simple.Node(m.ID)))
		}
	}

	return g
}

// sortedOrder returns a topological order of the milestone graph, or
// model.ErrIntegrity naming the cycle members when the graph is cyclic.
func sortedOrder(g *simple.DirectedGraph) ([]int64, error) {
	order, err := topo.Sort(g)
	if err != nil {
		if unorderable, ok := err.(topo.Unorderable); ok {
			var cycleIDs []int64
			for _, scc := range unorderable {
				for _, n := range scc {
					cycleIDs = append(cycleIDs, n.ID())
				}
			}
			sort.Slice(cycleIDs, func(i, j int) bool { return cycleIDs[i] < cycleIDs[j] })
			return nil, fmt.Errorf("%w: dependency cycle involving milestones %v",
				model.ErrIntegrity, cycleIDs)
		}
		return nil, fmt.Errorf("topological sort: %w", err)
	}

	ids := make([]int64, len(order))
	for i, n := range order {
		ids[i] = n.ID()
	}
	return ids, nil
}

// ValidateAcyclic reports model.ErrIntegrity if the dependency graph formed
// by milestones (plus an optional candidate edge candidateFrom -> candidateTo,
// meaning candidateTo would depend on candidateFrom) contains a cycle.
// Pass zero IDs to validate the existing graph only.
func ValidateAcyclic(milestones []*model.Milestone, candidateFrom, candidateTo int64) error {
	g := buildGraph(milestones)
	if candidateFrom != 0 && candidateTo != 0 {
		if candidateFrom == candidateTo {
			return fmt.Errorf("%w: milestone %d cannot depend on itself",
				model.ErrIntegrity, candidateTo)
		}
		if g.Node(candidateFrom) == nil {
			g.AddNode(simple.Node(candidateFrom))
		}
		if g.Node(candidateTo) == nil {
			g.AddNode(simple.Node(candidateTo))
		}
		g.SetEdge(g.NewEdge(simple.Node(candidateFrom), simple.Node(candidateTo)))
	}

	_, err := sortedOrder(g)
	return err
}

// Compute finds the critical path over the milestones of one project.
// Milestones without planned dates contribute zero duration but still chain
// dependencies. An empty input yields an empty path.
func Compute(milestones []*model.Milestone) (CriticalPath, error) {
	if len(milestones) == 0 {
		return CriticalPath{}, nil
	}

	byID := make(map[int64]*model.Milestone, len(milestones))
	for _, m := range milestones {
		byID[m.ID] = m
	}

	g := buildGraph(milestones)
	order, err := sortedOrder(g)
	if err != nil {
		return CriticalPath{}, err
	}

	duration := func(id int64) int {
		if d := byID[id].DurationDays(); d != nil && *d > 0 {
			return *d
		}
		return 0
	}

	// Longest finish time ending at each node, walking the topological order.
	finish := make(map[int64]int, len(order))
	prev := make(map[int64]int64, len(order))

	for _, id := range order {
		best := 0
		bestPrev := int64(0)
		to := g.To(id)
		for to.Next() {
			depID := to.Node().ID()
			if finish[depID] > best {
				best = finish[depID]
				bestPrev = depID
			}
		}
		finish[id] = best + duration(id)
		if bestPrev != 0 {
			prev[id] = bestPrev
		}
	}

	var tailID int64
	longest := -1
	for _, id := range order {
		if finish[id] > longest {
			longest = finish[id]
			tailID = id
		}
	}

	var chain []int64
	for id := tailID; ; {
		chain = append([]int64{id}, chain...)
		p, ok := prev[id]
		if !ok {
			break
		}
		id = p
	}

	cp := CriticalPath{
		MilestoneIDs: chain,
		TotalDays:    longest,
	}

	if head := byID[chain[0]]; head.PlannedStartDate != nil {
		completion := head.PlannedStartDate.AddDate(0, 0, longest)
		cp.EarliestCompletion = &completion
	}

	return cp, nil
}
