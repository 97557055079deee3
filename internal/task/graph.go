package task

import (
	"fmt"
)

// Graph is a validated set of tasks with derived parent/child indices
// (spec.md §4.3). Construction checks for duplicate tasks, dangling
// dependencies, and cycles.
type Graph struct {
	tasks    []*Task
	byID     map[string]*Task
	children map[string][]*Task
}

// NewGraph validates tasks and builds a Graph. tasks must contain no
// duplicate IDs, every dependency must itself be present in tasks, and the
// dependency relation must be acyclic.
func NewGraph(tasks []*Task) (*Graph, error) {
	byID := make(map[string]*Task, len(tasks))
	for _, t := range tasks {
		if _, dup := byID[t.ID]; dup {
			return nil, fmt.Errorf("task: duplicate task id %q", t.ID)
		}
		byID[t.ID] = t
	}

	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			if _, ok := byID[dep.ID]; !ok {
				return nil, fmt.Errorf("task: %q depends on %q which is not in the task set", t.ID, dep.ID)
			}
		}
	}

	children := make(map[string][]*Task, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			children[dep.ID] = append(children[dep.ID], t)
		}
	}

	g := &Graph{tasks: tasks, byID: byID, children: children}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(g.tasks))

	var visit func(t *Task) error
	visit = func(t *Task) error {
		color[t.ID] = gray
		for _, dep := range t.Dependencies {
			switch color[dep.ID] {
			case gray:
				return fmt.Errorf("task: cycle detected involving %q", dep.ID)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		color[t.ID] = black
		return nil
	}

	for _, t := range g.tasks {
		if color[t.ID] == white {
			if err := visit(t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Tasks returns every task in the graph, in construction order.
func (g *Graph) Tasks() []*Task {
	return g.tasks
}

// Children returns t's dependents.
func (g *Graph) Children(t *Task) []*Task {
	return g.children[t.ID]
}

// RootTasks returns every task with no dependencies, in construction
// order — the runner's initial pending-cache-check queue (spec.md §4.6).
func (g *Graph) RootTasks() []*Task {
	var roots []*Task
	for _, t := range g.tasks {
		if len(t.Dependencies) == 0 {
			roots = append(roots, t)
		}
	}
	return roots
}

// Get looks up a task by id.
func (g *Graph) Get(id string) (*Task, bool) {
	t, ok := g.byID[id]
	return t, ok
}
