// Package naming implements the natural-naming resolver:
// alias expansion, direct-path lookup, breadth-first shortcut search with
// uniqueness checking, backwards search from a terminal name index, and
// fast-access unwrapping.
package naming

import (
	"fmt"
	"strings"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/tree"
)

// aliases maps a resolver token to the real first-level branch or
// reserved name it stands for.
var aliases = map[string]string{
	"par":  "parameters",
	"dpar": "derived_parameters",
	"conf": "config",
	"res":  "results",
}

// RunName formats k as the canonical zero-padded run name.
func RunName(k int) string { return fmt.Sprintf("run_%08d", k) }

// expandRunTokens rewrites run shorthands: "crun" becomes the pinned
// run's canonical name (run_ALL when unpinned), "r_k" and "run_k"
// become the canonical name of index k. Non-numeric run_ segments
// (run_ALL, run_set_XXXXX) pass through untouched.
func expandRunTokens(tokens []string, pinnedRun int) []string {
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		switch {
		case tok == "crun":
			if pinnedRun >= 0 {
				out[i] = RunName(pinnedRun)
			} else {
				out[i] = "run_ALL"
			}
		default:
			if k, ok := runShorthand(tok); ok {
				out[i] = RunName(k)
			} else {
				out[i] = tok
			}
		}
	}
	return out
}

// runShorthand parses "r_k" / "run_k" into k for a purely numeric k.
func runShorthand(tok string) (int, bool) {
	rest := ""
	switch {
	case strings.HasPrefix(tok, "r_"):
		rest = strings.TrimPrefix(tok, "r_")
	case strings.HasPrefix(tok, "run_"):
		rest = strings.TrimPrefix(tok, "run_")
	default:
		return 0, false
	}
	if rest == "" {
		return 0, false
	}
	k := 0
	for _, c := range rest {
		if c < '0' || c > '9' {
			return 0, false
		}
		k = k*10 + int(c-'0')
	}
	return k, true
}

// Options configures a single Resolve call.
type Options struct {
	// Shortcuts enables the breadth-first fallback search when a direct
	// dotted path does not resolve.
	Shortcuts bool
	// Backwards enables the terminal-name-first backwards search.
	Backwards bool
	// FastAccess unwraps a resolved single-valued Parameter or
	// single-item Result into its raw data.
	FastAccess bool
	// PinnedRun, when >= 0, hides any node under a run_XXXXXXXX subtree
	// that does not match this run index.
	PinnedRun int
	// AutoLoad enables loading from the archive on a miss: when the
	// path does not resolve in memory, trajectory.Resolve (the only caller with
	// access to a storage loader) attempts to load it from the archive
	// and resolve again before failing. This package only carries the
	// flag through; the load itself happens one layer up to avoid an
	// import cycle between naming and storage.
	AutoLoad bool
}

// NoPin indicates the resolver is not pinned to any particular run.
const NoPin = -1

// Split tokenizes a dotted path string, expanding aliases. Aliases are
// expanded before any shortcut search so that e.g.
// "par.foo.bar" cannot shortcut past "parameters".
func Split(path string) []string {
	raw := strings.Split(path, ".")
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if tok == "" {
			continue
		}
		if expanded, ok := aliases[tok]; ok {
			tokens = append(tokens, expanded)
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

// Resolve looks path up from start: aliases expand first, then a direct
// child walk, then (with Shortcuts) a breadth-first search that allows
// gaps, then (with Backwards) a terminal-name search. start is the root
// (or current) group to resolve from; path is a dotted string.
func Resolve(start *tree.Group, path string, opts Options) (any, error) {
	tokens := Split(path)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty path", errs.ErrSchema)
	}
	tokens = expandRunTokens(tokens, opts.PinnedRun)

	if n, ok := directPath(start, tokens); ok {
		return Finish(n, opts)
	}

	if opts.Backwards {
		n, err := backwardsSearch(start, tokens)
		if err != nil {
			return nil, err
		}
		return Finish(n, opts)
	}

	if !opts.Shortcuts {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
	}

	n, err := shortcutSearch(start, tokens)
	if err != nil {
		return nil, err
	}
	return Finish(n, opts)
}

// directPath walks tokens as a sequence of direct children from start.
func directPath(start *tree.Group, tokens []string) (tree.Node, bool) {
	var cur tree.Node = start
	for _, tok := range tokens {
		g, ok := cur.(*tree.Group)
		if !ok {
			return nil, false
		}
		child, ok := g.Child(tok)
		if !ok {
			return nil, false
		}
		cur = resolveLink(child)
	}
	return cur, true
}

// resolveLink follows a Link to its target and, in every case, unwraps
// the internal leafNode adapter so downstream type assertions to
// leaf.Parameter/leaf.Result see the leaf's real dynamic type (see
// tree.Unwrap).
func resolveLink(n tree.Node) tree.Node {
	if link, ok := n.(*tree.Link); ok {
		return tree.Unwrap(link.Target())
	}
	return tree.Unwrap(n)
}

// bfsState tracks a partial match during the shortcut search: the node
// reached so far and how many tokens have matched in order.
type bfsState struct {
	node    tree.Node
	matched int
	depth   int
}

// shortcutSearch performs a breadth-first search from start: match all
// tokens in order, allowing gaps, recording the minimum depth at which
// a match completes, and failing NotUnique on ties.
func shortcutSearch(start *tree.Group, tokens []string) (tree.Node, error) {
	queue := []bfsState{{node: start, matched: 0, depth: 0}}
	seen := map[nodeDepthKey]bool{{node: start, matched: 0}: true}

	var winners []tree.Node
	winDepth := -1

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if winDepth != -1 && cur.depth > winDepth {
			break
		}

		g, ok := cur.node.(*tree.Group)
		if !ok {
			continue
		}
		for _, name := range g.ChildNames() {
			child, _ := g.Child(name)
			resolved := resolveLink(child)

			nextMatched := cur.matched
			if name == tokens[cur.matched] {
				nextMatched++
			}

			if nextMatched == len(tokens) {
				if winDepth == -1 {
					winDepth = cur.depth + 1
				}
				if cur.depth+1 == winDepth {
					winners = append(winners, resolved)
				}
				continue
			}

			stateKey := nodeDepthKey{node: resolved, matched: nextMatched}
			if seen[stateKey] {
				continue
			}
			seen[stateKey] = true
			queue = append(queue, bfsState{node: resolved, matched: nextMatched, depth: cur.depth + 1})
		}
	}

	if len(winners) == 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, strings.Join(tokens, "."))
	}
	if len(winners) > 1 && !sameNode(winners) {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotUnique, strings.Join(tokens, "."))
	}
	return winners[0], nil
}

type nodeDepthKey struct {
	node    tree.Node
	matched int
}

func sameNode(nodes []tree.Node) bool {
	for _, n := range nodes[1:] {
		if n != nodes[0] {
			return false
		}
	}
	return true
}

// backwardsSearch finds every node whose
// own name equals the final token, then for each candidate walks upward
// checking that all preceding tokens appear in order on the path to the
// root.
func backwardsSearch(start *tree.Group, tokens []string) (tree.Node, error) {
	last := tokens[len(tokens)-1]
	prefix := tokens[:len(tokens)-1]

	var candidates []pathedNode
	collectTerminal(start, nil, last, &candidates)

	var matches []tree.Node
	for _, c := range candidates {
		if prefixOnPath(prefix, c.path) {
			matches = append(matches, c.node)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, strings.Join(tokens, "."))
	}
	if len(matches) > 1 {
		return nil, fmt.Errorf("%w: %s", errs.ErrNotUnique, strings.Join(tokens, "."))
	}
	return matches[0], nil
}

type pathedNode struct {
	node tree.Node
	path []string
}

func collectTerminal(g *tree.Group, path []string, name string, out *[]pathedNode) {
	for _, childName := range g.ChildNames() {
		child, _ := g.Child(childName)
		resolved := resolveLink(child)
		childPath := append(append([]string(nil), path...), childName)
		if childName == name {
			*out = append(*out, pathedNode{node: resolved, path: childPath})
		}
		if sub, ok := resolved.(*tree.Group); ok {
			collectTerminal(sub, childPath, name, out)
		}
	}
}

// prefixOnPath reports whether every token in prefix appears, in order,
// among path[:len(path)-1] (the ancestors of the terminal match).
func prefixOnPath(prefix, path []string) bool {
	if len(path) == 0 {
		return len(prefix) == 0
	}
	ancestors := path[:len(path)-1]
	i := 0
	for _, tok := range ancestors {
		if i < len(prefix) && tok == prefix[i] {
			i++
		}
	}
	return i == len(prefix)
}

// Finish applies the run-visibility filter and the
// fast-access unwrap (step 6) to an already-resolved node. Exported so
// trajectory.Resolve can reuse it after handling pinned-run range lookup.
func Finish(n tree.Node, opts Options) (any, error) {
	if full, ok := fullNameOf(n); ok && !VisibleUnderRun(full, opts.PinnedRun) {
		return nil, fmt.Errorf("%w: %s not visible under pinned run", errs.ErrNotFound, full)
	}
	if !opts.FastAccess {
		return n, nil
	}
	ln, ok := asLeaf(n)
	if !ok {
		return n, nil
	}
	if p, ok := ln.(leaf.Parameter); ok && !p.HasRange() {
		return p.Get()
	}
	if r, ok := ln.(leaf.Result); ok {
		names := r.ItemNames()
		if len(names) == 1 && names[0] == r.Name() {
			return r.Get(names[0])
		}
	}
	return n, nil
}

// fullNameOf extracts the dotted full path of a resolved node, if it
// carries one (Groups and Leaves do; a bare Link does not since it is
// always resolved to its target before reaching here).
func fullNameOf(n tree.Node) (string, bool) {
	switch v := n.(type) {
	case *tree.Group:
		return v.FullName(), true
	case leaf.Leaf:
		return v.FullName(), true
	default:
		return "", false
	}
}

func asLeaf(n tree.Node) (leaf.Leaf, bool) {
	if _, ok := n.(*tree.Group); ok {
		return nil, false
	}
	if l, ok := n.(leaf.Leaf); ok {
		return l, true
	}
	return nil, false
}

// VisibleUnderRun reports whether fullName is visible while pinned to
// pinnedRun: false when it lives under a run subtree that does not match
// pinnedRun, true otherwise (always true with NoPin). fullName
// segments are dot-separated; a segment of the form "run_XXXXXXXX" pins
// visibility to that numeric index.
func VisibleUnderRun(fullName string, pinnedRun int) bool {
	if pinnedRun == NoPin {
		return true
	}
	for _, seg := range strings.Split(fullName, ".") {
		if !strings.HasPrefix(seg, "run_") || strings.HasPrefix(seg, "run_set_") || strings.HasPrefix(seg, "run_ALL") {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(seg, "run_%08d", &idx); err == nil {
			return idx == pinnedRun
		}
	}
	return true
}
