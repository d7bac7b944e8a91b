package settings

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// maxNodeDepth bounds nesting so a self-referencing alias fails.
	maxNodeDepth = 256
	// maxExpandedNodes bounds the output of alias expansion.
	maxExpandedNodes = 100000
)

// comments holds the comment text attached to one YAML node.
type comments struct {
	head, line, foot string
}

// keyNotes are the comments around one mapping key and its value.
type keyNotes struct {
	key, value comments
}

func commentsOf(n *yaml.Node) comments {
	return comments{head: n.HeadComment, line: n.LineComment, foot: n.FootComment}
}

func (c comments) apply(n *yaml.Node) {
	n.HeadComment = c.head
	n.LineComment = c.line
	n.FootComment = c.foot
}

// resolveNode returns a copy of n with every alias replaced by the node it
// names, "<<" merge keys applied and anchors cleared.
func resolveNode(n *yaml.Node) (*yaml.Node, error) {
	r := &resolver{}
	return r.resolve(n, 0)
}

type resolver struct {
	nodes int
}

func (r *resolver) resolve(n *yaml.Node, depth int) (*yaml.Node, error) {
	if depth > maxNodeDepth {
		return nil, fmt.Errorf("document nested deeper than %d levels", maxNodeDepth)
	}
	r.nodes++
	if r.nodes > maxExpandedNodes {
		return nil, fmt.Errorf("aliases expand to more than %d nodes", maxExpandedNodes)
	}

	if n.Kind == yaml.AliasNode {
		if n.Alias == nil {
			return nil, fmt.Errorf("unknown anchor %q", n.Value)
		}
		target, err := r.resolve(n.Alias, depth+1)
		if err != nil {
			return nil, err
		}
		// The alias site keeps its own comments.
		commentsOf(n).apply(target)
		return target, nil
	}

	c := *n
	c.Anchor = ""
	c.Content = nil
	for _, child := range n.Content {
		rc, err := r.resolve(child, depth+1)
		if err != nil {
			return nil, err
		}
		c.Content = append(c.Content, rc)
	}
	if c.Kind == yaml.MappingNode {
		if err := applyMerges(&c); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func isMergeKey(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!merge"
}

// applyMerges replaces each "<<" entry of a resolved mapping with the keys
// it brings in. Keys written in the mapping win over merged ones, and an
// earlier merge source wins over a later one.
func applyMerges(m *yaml.Node) error {
	seen := make(map[string]bool)
	merges := false
	for i := 0; i+1 < len(m.Content); i += 2 {
		if isMergeKey(m.Content[i]) {
			merges = true
			continue
		}
		seen[m.Content[i].Value] = true
	}
	if !merges {
		return nil
	}

	out := make([]*yaml.Node, 0, len(m.Content))
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if !isMergeKey(k) {
			out = append(out, k, v)
			continue
		}
		sources := []*yaml.Node{v}
		if v.Kind == yaml.SequenceNode {
			sources = v.Content
		}
		for _, src := range sources {
			if src.Kind != yaml.MappingNode {
				return fmt.Errorf("merge value must be a mapping, got %s", kindName(src.Kind))
			}
			for j := 0; j+1 < len(src.Content); j += 2 {
				name := src.Content[j].Value
				if seen[name] {
					continue
				}
				seen[name] = true
				out = append(out, src.Content[j], src.Content[j+1])
			}
		}
	}
	m.Content = out
	return nil
}
