// Package storage implements the archive service: the
// only component allowed to read or write a trajectory's on-disk
// representation. The backing store is a single bbolt file organized as
// a hierarchical archive keyed by trajectory name and dotted node path.
package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/naming"
	"github.com/trajexplore/trajexplore/trajectory"
	"github.com/trajexplore/trajexplore/tree"
)

// Service is the archive service over a single bbolt file. One Service
// may back multiple trajectories, each isolated behind its own set of
// buckets named "<table>:<trajectory name>".
type Service struct {
	db   *boltDB
	path string
	opts Options
}

// Options tunes optional service behaviors. The zero value disables
// everything; use DefaultOptions as the baseline.
type Options struct {
	// CommentDedup omits a per-run node's comment when it repeats the
	// first-stored comment under the same short name.
	CommentDedup bool
	// OverviewLarge maintains the per-run `runs` table. Disabling it
	// leaves resume with only the marker files to reconcile against.
	OverviewLarge bool
	// OverviewSmall maintains the parameters/config/explored_parameters
	// tables.
	OverviewSmall bool
	// OverviewSummary maintains results_summary and
	// derived_parameters_summary.
	OverviewSummary bool
	// CompressionLevel is a 0-9 backend hint recorded in the info row.
	// The bbolt backend does not compress; the hint survives so a
	// compressing backend behind the same interface can honor it.
	CompressionLevel int
}

// DefaultOptions enables dedup and every overview table.
func DefaultOptions() Options {
	return Options{CommentDedup: true, OverviewLarge: true, OverviewSmall: true, OverviewSummary: true}
}

// Open opens or creates the archive file at path with DefaultOptions.
func Open(path string) (*Service, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions opens or creates the archive file at path.
func OpenWithOptions(path string, opts Options) (*Service, error) {
	db, err := openBolt(path)
	if err != nil {
		return nil, err
	}
	return &Service{db: db, path: path, opts: opts}, nil
}

// Finalize flushes and closes the archive.
func (s *Service) Finalize() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func bucket(table, trajName string) string { return table + ":" + trajName }

var tables = []string{
	"nodes", "comments",
	"info", "runs", "parameters", "config", "explored_parameters",
	"results_summary", "derived_parameters_summary",
}

func (s *Service) ensureBuckets(trajName string) error {
	for _, t := range tables {
		if err := s.db.createBucket(bucket(t, trajName)); err != nil {
			return err
		}
	}
	return nil
}

// StoreTrajectory persists the full tree skeleton and every non-empty
// leaf of traj.
func (s *Service) StoreTrajectory(traj *trajectory.Trajectory, mode StoreMode) error {
	name := traj.Name
	if err := s.ensureBuckets(name); err != nil {
		return err
	}
	if mode == StoreInit && s.db.has(bucket("info", name), "info") {
		return fmt.Errorf("%w: trajectory %s already has a stored info record", errs.ErrStoreConflict, name)
	}

	now := time.Now()
	if err := s.walkTree(traj.Root(), func(fullName string, n tree.Node) error {
		return s.storeNode(name, fullName, n, traj, now)
	}); err != nil {
		return err
	}

	if err := s.writeInfoRow(name, traj); err != nil {
		return err
	}
	traj.ClearExpandedSinceStore()
	return nil
}

// StoreItem persists a single node reached by path within traj,
// idempotent in StoreAppend mode.
func (s *Service) StoreItem(traj *trajectory.Trajectory, path string, mode StoreMode) error {
	name := traj.Name
	if err := s.ensureBuckets(name); err != nil {
		return err
	}
	n, err := traj.Resolve(path, naming.Options{Shortcuts: true})
	if err != nil {
		return err
	}
	tn, ok := n.(tree.Node)
	if !ok {
		return fmt.Errorf("%w: %s did not resolve to a storable node", errs.ErrSchema, path)
	}
	full, ok := fullNameOf(tree.Unwrap(tn))
	if !ok {
		full = path
	}
	return s.storeNode(name, full, tn, traj, time.Now())
}

// walkTree visits every child of root recursively in deterministic
// order, computing each child's full dotted name directly from its
// parent rather than relying on the child's own FullName accessor (a
// Link has none). A node already visited is not re-entered, matching
// the cycle-safety tree.Group.IterNodes already provides for the
// in-memory case.
func (s *Service) walkTree(root *tree.Group, fn func(fullName string, n tree.Node) error) error {
	visited := make(map[tree.Node]bool)
	var walk func(g *tree.Group) error
	walk = func(g *tree.Group) error {
		for _, name := range g.ChildNames() {
			child, _ := g.Child(name)
			if visited[child] {
				continue
			}
			visited[child] = true
			full := name
			if g.FullName() != "" {
				full = g.FullName() + "." + name
			}
			if err := fn(full, child); err != nil {
				return err
			}
			target := child
			if link, ok := child.(*tree.Link); ok {
				target = link.Target()
				if visited[target] {
					continue
				}
				visited[target] = true
			}
			if sub, ok := tree.Unwrap(target).(*tree.Group); ok {
				if err := walk(sub); err != nil {
					return err
				}
			}
		}
		return nil
	}
	visited[root] = true
	return walk(root)
}

func (s *Service) storeNode(trajName, full string, n tree.Node, traj *trajectory.Trajectory, now time.Time) error {
	u := tree.Unwrap(n)
	switch v := u.(type) {
	case *tree.Group:
		rec := groupRecord(v, s.nodeCreatedAt(trajName, full, now))
		rec.FullName = full
		return s.db.putJSON(bucket("nodes", trajName), full, rec)

	case *tree.Link:
		targetFull, ok := fullNameOf(tree.Unwrap(v.Target()))
		if !ok {
			return fmt.Errorf("%w: link %s target has no full name", errs.ErrSchema, v.Name())
		}
		rec := linkRecord(v, full, targetFull, s.nodeCreatedAt(trajName, full, now))
		return s.db.putJSON(bucket("nodes", trajName), full, rec)

	case leaf.Parameter:
		if v.Empty() {
			return nil
		}
		explored := traj.IsExplored(v.FullName())
		rec, err := parameterRecord(v, explored, s.nodeCreatedAt(trajName, full, now))
		if err != nil {
			return err
		}
		rec.FullName = full
		s.applyCommentDedup(trajName, &rec)
		if err := s.db.putJSON(bucket("nodes", trajName), full, rec); err != nil {
			return err
		}
		return s.upsertParameterRow(trajName, full, v)

	case leaf.Result:
		if v.Empty() {
			return nil
		}
		rec, err := resultRecord(v, s.nodeCreatedAt(trajName, full, now))
		if err != nil {
			return err
		}
		rec.FullName = full
		s.applyCommentDedup(trajName, &rec)
		if err := s.db.putJSON(bucket("nodes", trajName), full, rec); err != nil {
			return err
		}
		return s.upsertSummaryRow(trajName, full, v.Name())
	}
	return nil
}

// fullNameOf extracts the dotted full path a Group or Leaf carries.
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

// nodeCreatedAt preserves a node's original creation timestamp across
// repeated stores by reusing whatever is already on disk.
func (s *Service) nodeCreatedAt(trajName, fullName string, now time.Time) time.Time {
	var existing nodeRecord
	if err := s.db.getJSON(bucket("nodes", trajName), fullName, &existing); err == nil {
		return existing.CreatedAt
	}
	return now
}

// applyCommentDedup deduplicates comments across per-run result and
// derived-parameter leaves: if rec's comment equals the
// first-stored comment under rec's short name, the comment is omitted
// from this record.
func (s *Service) applyCommentDedup(trajName string, rec *nodeRecord) {
	if !s.opts.CommentDedup {
		return
	}
	if !strings.HasPrefix(rec.FullName, "results.") && !strings.HasPrefix(rec.FullName, "derived_parameters.") {
		return
	}
	type firstComment struct {
		FullName string
		Comment  string
	}
	var first firstComment
	err := s.db.getJSON(bucket("comments", trajName), rec.Name, &first)
	if err != nil {
		_ = s.db.putJSON(bucket("comments", trajName), rec.Name, firstComment{FullName: rec.FullName, Comment: rec.Comment})
		return
	}
	if rec.Comment == first.Comment {
		rec.Comment = ""
	}
}

// resolveCommentOnLoad inverts applyCommentDedup: an absent comment on a
// result/derived-parameter record resolves to the lowest-index
// occurrence's comment.
func (s *Service) resolveCommentOnLoad(trajName string, rec nodeRecord) string {
	if rec.Comment != "" {
		return rec.Comment
	}
	if !strings.HasPrefix(rec.FullName, "results.") && !strings.HasPrefix(rec.FullName, "derived_parameters.") {
		return rec.Comment
	}
	type firstComment struct {
		FullName string
		Comment  string
	}
	var first firstComment
	if err := s.db.getJSON(bucket("comments", trajName), rec.Name, &first); err != nil {
		return ""
	}
	return first.Comment
}

// DeleteItem removes path from the archive.
// Archive fragmentation (a hole where a node used to be) is tolerated:
// siblings and overview rows are left exactly as they were.
func (s *Service) DeleteItem(trajName, path string) error {
	return s.db.delete(bucket("nodes", trajName), path)
}
