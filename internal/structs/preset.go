package structs

import (
	"fmt"
	"time"
)

// Preset is a saved, reusable set of call objectives.
type Preset struct {
	ID             string    `json:"id" bson:"_id"`
	OrganisationID string    `json:"organisationId,omitempty" bson:"organisationId,omitempty"`
	Title          string    `json:"title" bson:"title" validate:"required"`
	Objectives     []string  `json:"objectives" bson:"objectives" validate:"required,min=1,dive,required"`
	UpdatedAt      time.Time `json:"updatedAt" bson:"updatedAt"`
	UpdatedBy      string    `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
	// Default is set for templates shared by all organisations.
	Default bool `json:"default,omitempty" bson:"-"`
}

// TreeNode is a single step of a decision-tree template.
type TreeNode struct {
	ID     string `json:"id" bson:"id" validate:"required"`
	Type   string `json:"type" bson:"type" validate:"required"`
	Label  string `json:"label" bson:"label"`
	Prompt string `json:"prompt,omitempty" bson:"prompt,omitempty"`
}

// TreeEdge connects two nodes of a decision tree. Condition is the answer
// that leads from Source to Target.
type TreeEdge struct {
	Source    string `json:"source" bson:"source" validate:"required"`
	Target    string `json:"target" bson:"target" validate:"required"`
	Condition string `json:"condition,omitempty" bson:"condition,omitempty"`
}

// TreePreset is a decision-tree template used to script a follow-up call.
type TreePreset struct {
	ID             string     `json:"id" bson:"_id"`
	OrganisationID string     `json:"organisationId" bson:"organisationId"`
	Title          string     `json:"title" bson:"title" validate:"required"`
	Nodes          []TreeNode `json:"nodes" bson:"nodes" validate:"required,min=1,dive"`
	Edges          []TreeEdge `json:"edges" bson:"edges" validate:"dive"`
	UpdatedAt      time.Time  `json:"updatedAt" bson:"updatedAt"`
	UpdatedBy      string     `json:"updatedBy,omitempty" bson:"updatedBy,omitempty"`
}

// Validate checks that node IDs are unique, every edge references existing
// nodes and that the tree has exactly one root node.
func (tp TreePreset) Validate() error {
	nodes := make(map[string]struct{}, len(tp.Nodes))
	for _, n := range tp.Nodes {
		if _, ok := nodes[n.ID]; ok {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}

		nodes[n.ID] = struct{}{}
	}

	inbound := make(map[string]int, len(tp.Nodes))
	for idx, e := range tp.Edges {
		if _, ok := nodes[e.Source]; !ok {
			return fmt.Errorf("edge %d: unknown source node %q", idx, e.Source)
		}

		if _, ok := nodes[e.Target]; !ok {
			return fmt.Errorf("edge %d: unknown target node %q", idx, e.Target)
		}

		if e.Source == e.Target {
			return fmt.Errorf("edge %d: node %q references itself", idx, e.Source)
		}

		inbound[e.Target]++
	}

	roots := 0
	for _, n := range tp.Nodes {
		if inbound[n.ID] == 0 {
			roots++
		}
	}

	if roots != 1 {
		return fmt.Errorf("expected exactly one root node, found %d", roots)
	}

	return nil
}
