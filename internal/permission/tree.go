package permission

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Tree is a nested capability map: resource domain to action grants, where a
// domain may nest further domains (for example security -> behavior -> read).
// The zero value denies everything; a missing key is a denial.
type Tree map[string]Node

// Node is either a leaf grant or a nested domain tree.
type Node struct {
	leaf   bool
	allow  bool
	branch Tree
}

// Allow returns a granting leaf node.
func Allow() Node { return Node{leaf: true, allow: true} }

// Deny returns a denying leaf node.
func Deny() Node { return Node{leaf: true, allow: false} }

// Branch returns a nested domain node.
func Branch(t Tree) Node { return Node{branch: t} }

// IsLeaf reports whether the node is a boolean grant.
func (n Node) IsLeaf() bool { return n.leaf }

// Granted reports the leaf value; false for branches.
func (n Node) Granted() bool { return n.leaf && n.allow }

// Children returns the nested tree for branch nodes, nil for leaves.
func (n Node) Children() Tree { return n.branch }

// NewDefaultTree returns the safe default: an empty tree that denies every
// path.
func NewDefaultTree() Tree { return Tree{} }

// Merge combines two trees with OR semantics per leaf: any granting input
// grants the merged capability. Merge is commutative and associative. When
// shapes disagree (leaf on one side, nested domain on the other) the nested
// form wins and the leaf is discarded, so a malformed fragment can never
// widen a whole domain.
func Merge(a, b Tree) Tree {
	if len(a) == 0 {
		return b.Clone()
	}
	if len(b) == 0 {
		return a.Clone()
	}
	out := a.Clone()
	for key, bn := range b {
		an, ok := out[key]
		if !ok {
			out[key] = bn.clone()
			continue
		}
		switch {
		case an.leaf && bn.leaf:
			out[key] = Node{leaf: true, allow: an.allow || bn.allow}
		case !an.leaf && !bn.leaf:
			out[key] = Branch(Merge(an.branch, bn.branch))
		case an.leaf:
			out[key] = bn.clone()
		default:
			// an is a branch, bn a leaf; keep the branch.
		}
	}
	return out
}

// Evaluate walks the colon- or dot-delimited action path through the tree.
// Any absent segment, a path ending on a nested domain, or a path descending
// through a leaf evaluates to false. This is the fail-safe default, not an
// error condition.
func (t Tree) Evaluate(path string) bool {
	segments := SplitPath(path)
	if len(segments) == 0 {
		return false
	}
	current := t
	for i, seg := range segments {
		node, ok := current[seg]
		if !ok {
			return false
		}
		last := i == len(segments)-1
		if node.leaf {
			return last && node.allow
		}
		if last {
			return false
		}
		current = node.branch
	}
	return false
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for key, node := range t {
		out[key] = node.clone()
	}
	return out
}

func (n Node) clone() Node {
	if n.leaf {
		return n
	}
	return Branch(n.branch.Clone())
}

// SplitPath breaks an action path into segments, accepting both colon and
// dot delimiters. Empty segments are dropped.
func SplitPath(path string) []string {
	raw := strings.FieldsFunc(path, func(r rune) bool {
		return r == ':' || r == '.'
	})
	segments := make([]string, 0, len(raw))
	for _, seg := range raw {
		seg = strings.TrimSpace(seg)
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	return segments
}

// NormalizeAction canonicalizes an action path to colon-delimited form.
func NormalizeAction(path string) string {
	return strings.Join(SplitPath(path), ":")
}

// MarshalJSON renders the tree as nested JSON objects with boolean leaves,
// the shape stored in role_permissions.capabilities.
func (t Tree) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.toAny())
}

func (t Tree) toAny() map[string]any {
	out := make(map[string]any, len(t))
	for key, node := range t {
		if node.leaf {
			out[key] = node.allow
		} else {
			out[key] = node.branch.toAny()
		}
	}
	return out
}

// UnmarshalJSON parses nested JSON objects with boolean leaves. Any leaf
// that is not a boolean is rejected so malformed fragments fail loudly at
// load time instead of silently during evaluation.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := parseTree(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func parseTree(raw map[string]json.RawMessage) (Tree, error) {
	out := make(Tree, len(raw))
	for key, msg := range raw {
		var b bool
		if err := json.Unmarshal(msg, &b); err == nil {
			if b {
				out[key] = Allow()
			} else {
				out[key] = Deny()
			}
			continue
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(msg, &nested); err != nil {
			return nil, fmt.Errorf("permission: capability %q is neither boolean nor nested object", key)
		}
		child, err := parseTree(nested)
		if err != nil {
			return nil, err
		}
		out[key] = Branch(child)
	}
	return out, nil
}
