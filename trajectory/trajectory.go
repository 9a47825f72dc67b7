// Package trajectory implements the root tree container: the four
// reserved branches, exploration length bookkeeping,
// explore/expand/preset/merge orchestration, wildcard name substitution,
// and the pinned run-view used during the run phase. It delegates name
// lookup to the naming package and tree structure to the tree package.
package trajectory

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/naming"
	"github.com/trajexplore/trajexplore/tree"
)

// Branch names the four reserved top-level groups.
type Branch string

const (
	BranchConfig             Branch = "config"
	BranchParameters         Branch = "parameters"
	BranchDerivedParameters  Branch = "derived_parameters"
	BranchResults            Branch = "results"
)

// MergePolicy controls how Merge treats points that compare equal across
// two trajectories.
type MergePolicy string

const (
	MergeKeepBoth        MergePolicy = "keep-both"
	MergeKeepSelf        MergePolicy = "keep-self"
	MergeKeepOther       MergePolicy = "keep-other"
	MergeDiscardEqual    MergePolicy = "discard-equal-points"
)

// Trajectory is the root group plus its exploration/run-phase state.
type Trajectory struct {
	Name      string
	Comment   string
	ID        string
	SchemaVersion string
	CreatedAt time.Time

	root              *tree.Group
	config            *tree.Group
	parameters        *tree.Group
	derivedParameters *tree.Group
	results           *tree.Group

	params map[string]leaf.Parameter // fullName -> parameter, every branch

	explorationLength int
	exploredNames     map[string]bool // fullName -> currently has a range

	presets map[string]any // pending preset overrides, keyed by the name given to Preset

	// loader is the auto-load hook: given a full dotted archive path
	// not currently present in memory, it loads that node from the
	// archive into this trajectory. Set via SetAutoLoader;
	// nil means auto-load is unavailable (e.g. no storage service is
	// attached, as for a trajectory that was never stored).
	loader func(fullPath string) error

	// deleter removes a node from the archive by full dotted path. Set
	// via SetDeleter (the storage service wires it alongside the
	// auto-loader); nil means DeleteItems has no archive to act on.
	deleter func(fullPath string) error

	runPinned       int // naming.NoPin (-1) when not pinned
	runPhaseStarted bool
	expandedSinceStore bool

	// mu guards tree mutation (AddParameter/AddResult/AddGroup). It is a
	// pointer so ViewForRun's shallow copies share one lock: concurrent
	// run-context views of the same trajectory still serialize writes to
	// the shared group/leaf maps.
	mu *sync.Mutex
}

// New creates an empty Trajectory named name with its four reserved
// branches already attached.
func New(name string) *Trajectory {
	root := tree.NewGroup("")
	cfg, _ := root.AddGroup(string(BranchConfig))
	par, _ := root.AddGroup(string(BranchParameters))
	dpar, _ := root.AddGroup(string(BranchDerivedParameters))
	res, _ := root.AddGroup(string(BranchResults))

	return &Trajectory{
		Name:          name,
		ID:            uuid.NewString(),
		SchemaVersion: "1",
		CreatedAt:     time.Now(),
		root:          root,
		config:        cfg,
		parameters:    par,
		derivedParameters: dpar,
		results:       res,
		params:        make(map[string]leaf.Parameter),
		exploredNames: make(map[string]bool),
		presets:       make(map[string]any),
		runPinned:     naming.NoPin,
		mu:            &sync.Mutex{},
	}
}

// ViewForRun returns a shallow copy of the trajectory pinned to run k,
// sharing the same underlying tree, parameter registry and lock so that
// multiple concurrent run contexts (one per worker) can each advertise
// their own pinned index without racing on runPinned while still
// serializing their writes to the shared archive tree.
func (t *Trajectory) ViewForRun(k int) *Trajectory {
	cp := *t
	cp.runPinned = k
	return &cp
}

// Root returns the underlying root group, for the storage service.
func (t *Trajectory) Root() *tree.Group { return t.root }

// Config, Parameters, DerivedParameters and Results expose the four
// reserved branches directly.
func (t *Trajectory) Config() *tree.Group            { return t.config }
func (t *Trajectory) Parameters() *tree.Group         { return t.parameters }
func (t *Trajectory) DerivedParameters() *tree.Group  { return t.derivedParameters }
func (t *Trajectory) Results() *tree.Group            { return t.results }

// ExplorationLength returns N, the common length of every explored range.
func (t *Trajectory) ExplorationLength() int { return t.explorationLength }

// PinnedRun returns the currently pinned run index, or naming.NoPin.
func (t *Trajectory) PinnedRun() int { return t.runPinned }

// PinRun pins the trajectory to run k: explored parameters resolved
// through Resolve advertise range[k].
func (t *Trajectory) PinRun(k int) { t.runPinned = k }

// UnpinRun restores the default (unpinned) view.
func (t *Trajectory) UnpinRun() { t.runPinned = naming.NoPin }

// StartRunPhase locks config/parameters mutation and fails if any
// preset was never consumed (PresetNotConsumed).
func (t *Trajectory) StartRunPhase() error {
	if len(t.presets) > 0 {
		names := make([]string, 0, len(t.presets))
		for n := range t.presets {
			names = append(names, n)
		}
		return fmt.Errorf("%w: %s", errs.ErrPresetNotConsumed, strings.Join(names, ", "))
	}
	t.runPhaseStarted = true
	return nil
}

// ExpandedSinceStore reports whether Expand was called since the last
// full Store. A resumable Environment's Run refuses a trajectory in this state,
// since the stored run rows were written against a shorter exploration.
func (t *Trajectory) ExpandedSinceStore() bool { return t.expandedSinceStore }

// ClearExpandedSinceStore is called by the storage service after a
// successful full store.
func (t *Trajectory) ClearExpandedSinceStore() { t.expandedSinceStore = false }

// CanonicalRunName formats k as the zero-padded run name.
func CanonicalRunName(k int) string { return naming.RunName(k) }

// RunSetBucket computes the $set bucket name for index k.
func RunSetBucket(k int) string { return fmt.Sprintf("run_set_%05d", k/1000) }

func runNamePattern(s string) (int, bool) {
	if !strings.HasPrefix(s, "run_") || strings.HasPrefix(s, "run_set_") || s == "run_ALL" {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(s, "run_%08d", &idx); err != nil {
		return 0, false
	}
	return idx, true
}

// substituteWildcards rewrites wildcard tokens: "$" becomes the canonical
// run name (or run_ALL outside a run), "$set" becomes the bucket name,
// and a name with neither token nor an explicit run_XXXXXXXX segment
// added inside a run is rewritten to prepend "runs.run_XXXXXXXX.".
func substituteWildcards(name string, runIdx int) string {
	segs := strings.Split(name, ".")
	runName := "run_ALL"
	if runIdx != naming.NoPin {
		runName = CanonicalRunName(runIdx)
	}
	hasWildcard := false
	hasExplicitRun := false
	for i, s := range segs {
		switch s {
		case "$":
			segs[i] = runName
			hasWildcard = true
		case "$set":
			if runIdx != naming.NoPin {
				segs[i] = RunSetBucket(runIdx)
			} else {
				segs[i] = "run_set_ALL"
			}
			hasWildcard = true
		default:
			if _, ok := runNamePattern(s); ok {
				hasExplicitRun = true
			}
		}
	}
	out := strings.Join(segs, ".")
	if runIdx != naming.NoPin && !hasWildcard && !hasExplicitRun {
		out = "runs." + runName + "." + name
	}
	return out
}

// branchGroup returns the reserved branch group for b.
func (t *Trajectory) branchGroup(b Branch) *tree.Group {
	switch b {
	case BranchConfig:
		return t.config
	case BranchParameters:
		return t.parameters
	case BranchDerivedParameters:
		return t.derivedParameters
	case BranchResults:
		return t.results
	default:
		return nil
	}
}

// addGroupPath walks a dotted name under parent, creating intermediate
// groups on demand.
func addGroupPath(parent *tree.Group, dotted string) (*tree.Group, error) {
	cur := parent
	if dotted == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(dotted, ".") {
		next, err := cur.AddGroup(seg)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

// splitParent splits "a.b.c" into ("a.b", "c"); "c" alone yields ("", "c").
func splitParent(dotted string) (parent, leafName string) {
	i := strings.LastIndex(dotted, ".")
	if i < 0 {
		return "", dotted
	}
	return dotted[:i], dotted[i+1:]
}

// AddParameter adds a Parameter under one of config/parameters/
// derived_parameters (branch typing). name may be dotted to create
// intermediate groups. If a Preset is pending for this name, it is
// applied immediately after construction.
func (t *Trajectory) AddParameter(branch Branch, name string, p leaf.Parameter) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if branch != BranchConfig && branch != BranchParameters && branch != BranchDerivedParameters {
		return fmt.Errorf("%w: %s is not a parameter branch", errs.ErrSchema, branch)
	}
	if t.runPhaseStarted && (branch == BranchConfig || branch == BranchParameters) {
		return fmt.Errorf("%w: %s is pre-run-only once the run phase has started", errs.ErrSchema, branch)
	}
	resolvedName := name
	if branch == BranchDerivedParameters {
		// Only derived_parameters can legally be added mid-run (config
		// and parameters are locked by I5 above); apply the same
		// wildcard rewrite AddResult does.
		resolvedName = substituteWildcards(name, t.runPinned)
	}
	root := t.branchGroup(branch)
	parentPath, leafName := splitParent(resolvedName)
	parent, err := addGroupPath(root, parentPath)
	if err != nil {
		return err
	}
	if err := parent.AddLeaf(leafName, p); err != nil {
		return err
	}
	t.params[p.FullName()] = p

	if v, ok := t.presets[name]; ok {
		if err := p.Set(v); err != nil {
			return err
		}
		delete(t.presets, name)
	} else if v, ok := t.presets[p.FullName()]; ok {
		if err := p.Set(v); err != nil {
			return err
		}
		delete(t.presets, p.FullName())
	}
	return nil
}

// AddResult adds a Result (typically under "results") or merges items
// into an existing one at the same path. Wildcard tokens in name are
// substituted using the currently pinned run (or run_ALL if unpinned).
// This is the path runctx.Context uses to add
// per-run results, and the path a post-processing function uses to add
// trajectory-level analysis results.
func (t *Trajectory) AddResult(name string, items ...leaf.Item) (leaf.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	resolved := substituteWildcards(name, t.runPinned)
	parentPath, leafName := splitParent(resolved)
	parent, err := addGroupPath(t.results, parentPath)
	if err != nil {
		return nil, err
	}
	if existing, ok := parent.Leaf(leafName); ok {
		r, ok := existing.(leaf.Result)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not a result", errs.ErrSchema, resolved)
		}
		if err := r.Set(items...); err != nil {
			return nil, err
		}
		return r, nil
	}
	r := leaf.NewResult(leafName)
	if err := r.Set(items...); err != nil {
		return nil, err
	}
	if err := parent.AddLeaf(leafName, r); err != nil {
		return nil, err
	}
	return r, nil
}

// AddGroup creates (or returns) the group at dotted name under root,
// applying wildcard substitution first.
func (t *Trajectory) AddGroup(name string) (*tree.Group, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	resolved := substituteWildcards(name, t.runPinned)
	return addGroupPath(t.root, resolved)
}

// Preset records a deferred default-value override consumed the next
// time a parameter is added at name.
func (t *Trajectory) Preset(name string, value any) {
	t.presets[name] = value
}

// SetAutoLoader installs the callback Resolve uses when called with
// naming.Options{AutoLoad: true}. Callers
// that have both a *Trajectory and a *storage.Service (environment, cli)
// wire this with the service's own loader constructor; trajectory itself
// cannot import storage without a cycle.
func (t *Trajectory) SetAutoLoader(loader func(fullPath string) error) {
	t.loader = loader
}

// SetDeleter installs the callback DeleteItems uses to remove nodes from
// the archive. Wired by the storage service next to the auto-loader.
func (t *Trajectory) SetDeleter(deleter func(fullPath string) error) {
	t.deleter = deleter
}

// RemoveItems detaches the named nodes from the in-memory tree. Names
// resolve through natural naming with shortcuts enabled; the archive is
// untouched. recursive carries through to Group.RemoveChild.
func (t *Trajectory) RemoveItems(recursive bool, names ...string) error {
	for _, name := range names {
		full, err := t.fullNameOf(name)
		if err != nil {
			return err
		}
		if err := t.detach(full, recursive); err != nil {
			return err
		}
	}
	return nil
}

// DeleteItems removes the named nodes from the archive, then detaches
// them from memory. Fails with ErrBackendUnavailable when no archive is
// attached.
func (t *Trajectory) DeleteItems(recursive bool, names ...string) error {
	if t.deleter == nil {
		return fmt.Errorf("%w: no archive attached for delete", errs.ErrBackendUnavailable)
	}
	for _, name := range names {
		full, err := t.fullNameOf(name)
		if err != nil {
			return err
		}
		if err := t.deleter(full); err != nil {
			return err
		}
		if err := t.detach(full, recursive); err != nil {
			return err
		}
	}
	return nil
}

// fullNameOf resolves name to the full dotted path of an existing group
// or leaf.
func (t *Trajectory) fullNameOf(name string) (string, error) {
	n, err := t.Resolve(name, naming.Options{Shortcuts: true})
	if err != nil {
		return "", err
	}
	switch v := n.(type) {
	case *tree.Group:
		return v.FullName(), nil
	case leaf.Leaf:
		return v.FullName(), nil
	default:
		return "", fmt.Errorf("%w: %s does not name a removable node", errs.ErrSchema, name)
	}
}

// detach removes the node at full from its parent group and drops any
// parameter bookkeeping for it and, when it roots a subtree, for every
// registered descendant.
func (t *Trajectory) detach(full string, recursive bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	parentPath, leafName := splitParent(full)
	parent := t.root
	if parentPath != "" {
		n, err := naming.Resolve(t.root, parentPath, naming.Options{PinnedRun: naming.NoPin})
		if err != nil {
			return err
		}
		g, ok := n.(*tree.Group)
		if !ok {
			return fmt.Errorf("%w: parent of %s is not a group", errs.ErrSchema, full)
		}
		parent = g
	}
	parent.RemoveChild(leafName, recursive)
	prefix := full + "."
	for k := range t.params {
		if k == full || strings.HasPrefix(k, prefix) {
			delete(t.params, k)
			delete(t.exploredNames, k)
		}
	}
	return nil
}

// AttachGroup creates (or returns) the group at an already wildcard-
// resolved dotted name under root. Used by the storage service while
// rebuilding skeleton structure on load;
// unlike AddGroup it does not re-apply wildcard substitution, since the
// stored full name is already concrete.
func (t *Trajectory) AttachGroup(dottedName string) (*tree.Group, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return addGroupPath(t.root, dottedName)
}

// AttachLoaded installs a parameter reconstructed from storage directly
// under branch at dottedName, bypassing AddParameter's pre-run-only gate
// and preset application: the storage service is the only caller, and
// the node it is replaying already passed those checks when first
// added.
func (t *Trajectory) AttachLoaded(branch Branch, dottedName string, p leaf.Parameter, explored bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	root := t.branchGroup(branch)
	parentPath, leafName := splitParent(dottedName)
	parent, err := addGroupPath(root, parentPath)
	if err != nil {
		return err
	}
	if err := parent.AddLeaf(leafName, p); err != nil {
		return err
	}
	t.params[p.FullName()] = p
	if explored {
		t.exploredNames[p.FullName()] = true
		if p.RangeLength() > t.explorationLength {
			t.explorationLength = p.RangeLength()
		}
	}
	return nil
}

// AttachResult installs a result reconstructed from storage at an
// already wildcard-resolved dotted name under results.
func (t *Trajectory) AttachResult(dottedName string, r leaf.Result) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	parentPath, leafName := splitParent(dottedName)
	parent, err := addGroupPath(t.results, parentPath)
	if err != nil {
		return err
	}
	return parent.AddLeaf(leafName, r)
}

// AttachLink installs a Link reconstructed from storage at dottedName
// pointing at targetFullName, which must already have been attached.
func (t *Trajectory) AttachLink(dottedName, targetFullName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	target, err := naming.Resolve(t.root, targetFullName, naming.Options{PinnedRun: naming.NoPin})
	if err != nil {
		return fmt.Errorf("%w: link target %s: %v", errs.ErrNotFound, targetFullName, err)
	}
	tn, ok := target.(tree.Node)
	if !ok {
		return fmt.Errorf("%w: link target %s did not resolve to a node", errs.ErrSchema, targetFullName)
	}
	parentPath, leafName := splitParent(dottedName)
	parent, err := addGroupPath(t.root, parentPath)
	if err != nil {
		return err
	}
	return parent.AddLink(leafName, tn)
}

// AllParameters returns every parameter currently registered, keyed by
// full name, for the storage service to walk without re-traversing the
// tree.
func (t *Trajectory) AllParameters() map[string]leaf.Parameter {
	cp := make(map[string]leaf.Parameter, len(t.params))
	for k, v := range t.params {
		cp[k] = v
	}
	return cp
}

// IsExplored reports whether fullName currently carries an installed
// exploration range.
func (t *Trajectory) IsExplored(fullName string) bool { return t.exploredNames[fullName] }

// resolveParameter resolves name to a Parameter via natural naming with
// shortcuts enabled.
func (t *Trajectory) resolveParameter(name string) (leaf.Parameter, error) {
	n, err := t.Resolve(name, naming.Options{Shortcuts: true})
	if err != nil {
		return nil, err
	}
	p, ok := n.(leaf.Parameter)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a parameter", errs.ErrSchema, name)
	}
	return p, nil
}

// Resolve looks up path using the natural-naming resolver,
// automatically applying the trajectory's pinned-run visibility filter
// and, for a pinned, explored Parameter, returning range[pinned] in
// place of the default value.
func (t *Trajectory) Resolve(path string, opts naming.Options) (any, error) {
	opts.PinnedRun = t.runPinned
	unwrap := opts.FastAccess
	opts.FastAccess = false
	n, err := naming.Resolve(t.root, path, opts)
	if err != nil {
		if opts.AutoLoad && t.loader != nil && errors.Is(err, errs.ErrNotFound) {
			if loadErr := t.loader(path); loadErr == nil {
				n, err = naming.Resolve(t.root, path, opts)
			}
		}
		if err != nil {
			return nil, err
		}
	}
	if p, ok := n.(leaf.Parameter); ok && t.runPinned != naming.NoPin && p.HasRange() {
		return p.RangeValue(t.runPinned)
	}
	opts.FastAccess = unwrap
	return naming.Finish(n.(tree.Node), opts)
}

// Explore installs exploration ranges for the parameters named in
// ranges, all of which must share one length M.
func (t *Trajectory) Explore(ranges map[string][]any) error {
	if len(ranges) == 0 {
		return nil
	}
	if t.runPhaseStarted {
		return fmt.Errorf("%w: cannot explore after the run phase started", errs.ErrSchema)
	}
	resolved := make(map[string]leaf.Parameter, len(ranges))
	m := -1
	for name, vals := range ranges {
		p, err := t.resolveParameter(name)
		if err != nil {
			return err
		}
		if m == -1 {
			m = len(vals)
		} else if len(vals) != m {
			return fmt.Errorf("%w: %s has length %d, expected %d", errs.ErrRangeLengthMismatch, name, len(vals), m)
		}
		resolved[p.FullName()] = p
	}
	if t.explorationLength > 0 && m != t.explorationLength {
		for fullName := range t.exploredNames {
			if _, ok := resolved[fullName]; !ok {
				return fmt.Errorf("%w: %s already explored at a different length; use Expand", errs.ErrAlreadyExplored, fullName)
			}
		}
	}
	for fullName, p := range resolved {
		var vals []any
		for name, v := range ranges {
			if rp, _ := t.resolveParameter(name); rp != nil && rp.FullName() == fullName {
				vals = v
				break
			}
		}
		if err := p.SetRange(vals); err != nil {
			return err
		}
		t.exploredNames[fullName] = true
	}
	t.explorationLength = m
	return nil
}

// Expand appends to existing ranges. Every currently explored parameter
// must be present in ranges; absence fails with
// ErrInconsistentExpansion.
func (t *Trajectory) Expand(ranges map[string][]any) error {
	if len(ranges) == 0 {
		return nil
	}
	resolved := make(map[string][]any, len(ranges))
	byFullName := make(map[string]leaf.Parameter, len(ranges))
	m := -1
	for name, vals := range ranges {
		p, err := t.resolveParameter(name)
		if err != nil {
			return err
		}
		if m == -1 {
			m = len(vals)
		} else if len(vals) != m {
			return fmt.Errorf("%w: %s has length %d, expected %d", errs.ErrRangeLengthMismatch, name, len(vals), m)
		}
		resolved[p.FullName()] = vals
		byFullName[p.FullName()] = p
	}
	for fullName := range t.exploredNames {
		if _, ok := resolved[fullName]; !ok {
			return fmt.Errorf("%w: %s omitted from expand", errs.ErrInconsistentExpansion, fullName)
		}
	}
	for fullName, vals := range resolved {
		if err := byFullName[fullName].ExpandRange(vals); err != nil {
			return err
		}
		t.exploredNames[fullName] = true
	}
	t.explorationLength += m
	t.expandedSinceStore = true
	return nil
}

// CartesianProduct expands an ordered list of per-parameter value lists
// into product ranges suitable for Explore. The order is x-major: the
// first-named parameter varies slowest, the last varies fastest.
func CartesianProduct(specs []ParamValues) map[string][]any {
	if len(specs) == 0 {
		return map[string][]any{}
	}
	total := 1
	for _, s := range specs {
		total *= len(s.Values)
	}
	out := make(map[string][]any, len(specs))
	for _, s := range specs {
		out[s.Name] = make([]any, total)
	}
	for k := 0; k < total; k++ {
		rem := k
		for d := len(specs) - 1; d >= 0; d-- {
			l := len(specs[d].Values)
			idx := rem % l
			rem /= l
			out[specs[d].Name][k] = specs[d].Values[idx]
		}
	}
	return out
}

// ParamValues names one dimension of a CartesianProduct call.
type ParamValues struct {
	Name   string
	Values []any
}

// FindIndices returns the run indices for which predicate, applied to
// the named parameters' range values at that index, is true.
func (t *Trajectory) FindIndices(names []string, predicate func(vals ...any) bool) ([]int, error) {
	params := make([]leaf.Parameter, len(names))
	for i, n := range names {
		p, err := t.resolveParameter(n)
		if err != nil {
			return nil, err
		}
		params[i] = p
	}
	var out []int
	for k := 0; k < t.explorationLength; k++ {
		vals := make([]any, len(params))
		for i, p := range params {
			v, err := p.RangeValue(k)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		if predicate(vals...) {
			out = append(out, k)
		}
	}
	return out, nil
}

// GetFromRuns scans results.runs.run_XXXXXXXX.<leafName> for every run
// index and returns whatever is found, keyed by index. Runs that never
// produced leafName are omitted.
func (t *Trajectory) GetFromRuns(leafName string, fastAccess bool) map[int]any {
	out := make(map[int]any)
	for k := 0; k < t.explorationLength; k++ {
		path := fmt.Sprintf("results.runs.%s.%s", CanonicalRunName(k), leafName)
		v, err := naming.Resolve(t.root, path, naming.Options{FastAccess: fastAccess, PinnedRun: naming.NoPin})
		if err != nil {
			continue
		}
		out[k] = v
	}
	return out
}

// checkSameSchema verifies self and other declare the same set of
// parameter full names.
func (t *Trajectory) checkSameSchema(other *Trajectory) error {
	if len(t.params) != len(other.params) {
		return fmt.Errorf("%w: parameter count differs (%d vs %d)", errs.ErrSchema, len(t.params), len(other.params))
	}
	for fullName := range t.params {
		if _, ok := other.params[fullName]; !ok {
			return fmt.Errorf("%w: other trajectory is missing parameter %s", errs.ErrSchema, fullName)
		}
	}
	return nil
}

// findEqualSelfIndex returns the self-side index i (< M1) whose explored
// parameter values all deep-equal other's values at index j, if any.
func (t *Trajectory) findEqualSelfIndex(other *Trajectory, j int) (int, bool) {
	for i := 0; i < t.explorationLength; i++ {
		allEqual := true
		for fullName, p := range t.params {
			if !p.HasRange() {
				continue
			}
			op := other.params[fullName]
			pv, err1 := p.RangeValue(i)
			ov, err2 := op.RangeValue(j)
			if err1 != nil || err2 != nil || !reflect.DeepEqual(pv, ov) {
				allEqual = false
				break
			}
		}
		if allEqual {
			return i, true
		}
	}
	return 0, false
}

// Merge combines other's explored range into self's, following policy
// for points that compare equal across the two trajectories. If
// trialParameter names an integer Parameter, its merged
// range is renumbered 0..newLen-1.
func (t *Trajectory) Merge(other *Trajectory, policy MergePolicy, trialParameter string) error {
	if err := t.checkSameSchema(other); err != nil {
		return err
	}
	if t.runPhaseStarted {
		return fmt.Errorf("%w: cannot merge after the run phase started", errs.ErrSchema)
	}
	m1, m2 := t.explorationLength, other.explorationLength
	keepSelf := make([]bool, m1)
	keepOther := make([]bool, m2)
	for i := range keepSelf {
		keepSelf[i] = true
	}
	for j := range keepOther {
		keepOther[j] = true
	}

	if policy != MergeKeepBoth {
		for j := 0; j < m2; j++ {
			i, dup := t.findEqualSelfIndex(other, j)
			if !dup {
				continue
			}
			switch policy {
			case MergeKeepSelf, MergeDiscardEqual:
				keepOther[j] = false
			case MergeKeepOther:
				keepSelf[i] = false
			}
		}
	}

	for fullName, p := range t.params {
		if !p.HasRange() {
			continue
		}
		op := other.params[fullName]
		merged := make([]any, 0, m1+m2)
		for k := 0; k < m1; k++ {
			if !keepSelf[k] {
				continue
			}
			v, _ := p.RangeValue(k)
			merged = append(merged, v)
		}
		for k := 0; k < m2; k++ {
			if !keepOther[k] {
				continue
			}
			v, _ := op.RangeValue(k)
			merged = append(merged, v)
		}
		if err := p.SetRange(merged); err != nil {
			return err
		}
	}

	newLen := 0
	for _, b := range keepSelf {
		if b {
			newLen++
		}
	}
	for _, b := range keepOther {
		if b {
			newLen++
		}
	}
	t.explorationLength = newLen

	if trialParameter != "" {
		tp, err := t.resolveParameter(trialParameter)
		if err != nil {
			return err
		}
		vals := make([]any, newLen)
		for i := range vals {
			vals[i] = int64(i)
		}
		if err := tp.SetRange(vals); err != nil {
			return err
		}
	}
	return nil
}
