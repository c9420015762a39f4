package tree

import "path/filepath"

// Glob resolves a '/'-segmented pattern starting at from. "*" and "?"
// match within one path segment (via filepath.Match); "**" matches zero
// or more segments, recursing into every descendant folder (spec.md
// §4.5). Results are returned in the order the matching traversal
// discovers them. Duplicates are not removed: a pattern with more than
// one "**" segment can reach, and return, the same node more than once.
func (t *Tree) Glob(from *Node, pattern string) ([]*Node, error) {
	segs := splitPath(pattern)
	var out []*Node
	if err := t.globStep(from, segs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tree) globStep(cur *Node, segs []string, out *[]*Node) error {
	if len(segs) == 0 {
		*out = append(*out, cur)
		return nil
	}
	seg, rest := segs[0], segs[1:]

	switch seg {
	case "", ".":
		return t.globStep(cur, rest, out)
	case "..":
		parent, ok := t.index[cur.ParentHandle]
		if !ok {
			return nil
		}
		return t.globStep(parent, rest, out)
	case "**":
		// Zero segments consumed: try matching the remainder here.
		if err := t.globStep(cur, rest, out); err != nil {
			return err
		}
		// One or more segments consumed: recurse into every child,
		// keeping "**" in the pattern so it can match further down.
		for _, c := range t.Children(cur) {
			if c.IsFolderish() {
				if err := t.globStep(c, segs, out); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		for _, c := range t.Children(cur) {
			matched, err := filepath.Match(seg, c.Name())
			if err != nil {
				return err
			}
			if matched {
				if err := t.globStep(c, rest, out); err != nil {
					return err
				}
			}
		}
		return nil
	}
}
