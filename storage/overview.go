package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/trajexplore/trajexplore/errs"
	"github.com/trajexplore/trajexplore/leaf"
	"github.com/trajexplore/trajexplore/trajectory"
)

// writeInfoRow refreshes the `info` overview table.
func (s *Service) writeInfoRow(trajName string, traj *trajectory.Trajectory) error {
	row := infoRow{
		Name:              traj.Name,
		ID:                traj.ID,
		Comment:           traj.Comment,
		SchemaVersion:     traj.SchemaVersion,
		CreatedAt:         traj.CreatedAt,
		ExplorationLength: traj.ExplorationLength(),
		CompressionLevel:  s.opts.CompressionLevel,
	}
	return s.db.putJSON(bucket("info", trajName), "info", row)
}

// upsertParameterRow routes a stored parameter into the `config`,
// `parameters` or `*_summary` overview table, and additionally into
// `explored_parameters` when it carries an installed range.
func (s *Service) upsertParameterRow(trajName, full string, p leaf.Parameter) error {
	row := LeafRow{Name: full, Kind: string(p.Kind()), ValueRepr: shortValueRepr(p), Comment: p.Comment()}

	switch {
	case strings.Contains(full, ".runs.") && strings.HasPrefix(full, "derived_parameters."):
		if err := s.upsertSummaryRow(trajName, full, p.Name()); err != nil {
			return err
		}
	case strings.HasPrefix(full, "config."):
		if !s.opts.OverviewSmall {
			break
		}
		if err := s.db.putJSON(bucket("config", trajName), full, row); err != nil {
			return err
		}
	case strings.HasPrefix(full, "parameters.") || strings.HasPrefix(full, "derived_parameters."):
		if !s.opts.OverviewSmall {
			break
		}
		if err := s.db.putJSON(bucket("parameters", trajName), full, row); err != nil {
			return err
		}
	}

	if p.HasRange() && s.opts.OverviewSmall {
		return s.db.putJSON(bucket("explored_parameters", trajName), full, row)
	}
	return nil
}

// upsertSummaryRow records the lowest-index run that produced shortName
// under either `results_summary` or `derived_parameters_summary`.
// Later occurrences at a higher index are ignored.
func (s *Service) upsertSummaryRow(trajName, full, shortName string) error {
	if !s.opts.OverviewSummary {
		return nil
	}
	table := "results_summary"
	if strings.HasPrefix(full, "derived_parameters.") {
		table = "derived_parameters_summary"
	}
	if s.db.has(bucket(table, trajName), shortName) {
		return nil
	}
	idx, ok := runIndexFromFullName(full)
	if !ok {
		idx = -1
	}
	return s.db.putJSON(bucket(table, trajName), shortName, SummaryRow{Name: shortName, FirstRunIndex: idx})
}

func runIndexFromFullName(full string) (int, bool) {
	for _, seg := range strings.Split(full, ".") {
		if !strings.HasPrefix(seg, "run_") || strings.HasPrefix(seg, "run_set_") || seg == "run_ALL" {
			continue
		}
		var idx int
		if _, err := fmt.Sscanf(seg, "run_%08d", &idx); err == nil {
			return idx, true
		}
	}
	return 0, false
}

// UpsertRunRow records a run's terminal (or in-flight) state in the
// `runs` overview table. Called
// by the environment as each run transitions.
func (s *Service) UpsertRunRow(trajName string, row RunRow) error {
	if !s.opts.OverviewLarge {
		return nil
	}
	if err := s.ensureBuckets(trajName); err != nil {
		return err
	}
	return s.db.putJSON(bucket("runs", trajName), fmt.Sprintf("%08d", row.Index), row)
}

// CompletedIndices returns the run indices recorded STORED in the
// `runs` overview table, for a resumable Environment's Run to reconcile
// against resume markers.
func (s *Service) CompletedIndices(trajName string) ([]int, error) {
	var out []int
	err := s.db.forEachJSON(bucket("runs", trajName), func() any { return &RunRow{} }, func(_ string, v any) error {
		row := v.(*RunRow)
		if row.Status == "STORED" {
			out = append(out, row.Index)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Ints(out)
	return out, nil
}

// Overview reads every overview table for trajName, for the `inspect`
// CLI subcommand.
func (s *Service) Overview(trajName string) (Overview, error) {
	var ov Overview
	if err := s.db.getJSON(bucket("info", trajName), "info", &ov.Info); err != nil {
		return ov, fmt.Errorf("%w: %s", errs.ErrNotFound, trajName)
	}
	if err := s.db.forEachJSON(bucket("runs", trajName), func() any { return &RunRow{} }, func(_ string, v any) error {
		ov.Runs = append(ov.Runs, *v.(*RunRow))
		return nil
	}); err != nil {
		return ov, err
	}
	sort.Slice(ov.Runs, func(i, j int) bool { return ov.Runs[i].Index < ov.Runs[j].Index })

	collect := func(table string) ([]LeafRow, error) {
		var rows []LeafRow
		err := s.db.forEachJSON(bucket(table, trajName), func() any { return &LeafRow{} }, func(_ string, v any) error {
			rows = append(rows, *v.(*LeafRow))
			return nil
		})
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
		return rows, err
	}
	var err error
	if ov.Parameters, err = collect("parameters"); err != nil {
		return ov, err
	}
	if ov.Config, err = collect("config"); err != nil {
		return ov, err
	}
	if ov.ExploredParameters, err = collect("explored_parameters"); err != nil {
		return ov, err
	}

	collectSummary := func(table string) ([]SummaryRow, error) {
		var rows []SummaryRow
		err := s.db.forEachJSON(bucket(table, trajName), func() any { return &SummaryRow{} }, func(_ string, v any) error {
			rows = append(rows, *v.(*SummaryRow))
			return nil
		})
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
		return rows, err
	}
	if ov.ResultsSummary, err = collectSummary("results_summary"); err != nil {
		return ov, err
	}
	if ov.DerivedParametersSummary, err = collectSummary("derived_parameters_summary"); err != nil {
		return ov, err
	}
	return ov, nil
}

// Summary renders a one-line human-readable digest of an Overview for
// the `inspect` CLI subcommand.
func (ov Overview) Summary() string {
	stored := 0
	for _, r := range ov.Runs {
		if r.Status == "STORED" {
			stored++
		}
	}
	return fmt.Sprintf("%s: %d/%d runs stored, %d parameters, created %s",
		ov.Info.Name, stored, len(ov.Runs), len(ov.Parameters), humanize.Time(ov.Info.CreatedAt))
}

// LoadTrajectory reconstructs a trajectory from the archive according
// to plan. The plan applies uniformly across branches.
func (s *Service) LoadTrajectory(name string, plan LoadPlan) (*trajectory.Trajectory, error) {
	if err := s.ensureBuckets(name); err != nil {
		return nil, err
	}
	var info infoRow
	if err := s.db.getJSON(bucket("info", name), "info", &info); err != nil {
		return nil, fmt.Errorf("%w: no stored trajectory named %s", errs.ErrNotFound, name)
	}
	traj := trajectory.New(name)
	traj.ID = info.ID
	traj.Comment = info.Comment
	traj.SchemaVersion = info.SchemaVersion
	traj.CreatedAt = info.CreatedAt
	s.AttachAutoLoader(traj)
	if plan == LoadNothing {
		return traj, nil
	}

	keys, err := s.db.list(bucket("nodes", name))
	if err != nil {
		return nil, err
	}
	records := make([]nodeRecord, 0, len(keys))
	for _, k := range keys {
		var rec nodeRecord
		if err := s.db.getJSON(bucket("nodes", name), k, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return strings.Count(records[i].FullName, ".") < strings.Count(records[j].FullName, ".")
	})

	for _, rec := range records {
		if rec.Kind != string(leaf.KindGroup) {
			continue
		}
		if _, err := traj.AttachGroup(rec.FullName); err != nil {
			return nil, err
		}
	}

	for _, rec := range records {
		switch leaf.Kind(rec.Kind) {
		case leaf.KindGroup, leaf.KindLink:
			continue
		case leaf.KindResult:
			rec.Comment = s.resolveCommentOnLoad(name, rec)
			r, err := decodeResult(rec, rec.Comment)
			if err != nil {
				return nil, err
			}
			if plan == LoadSkeleton {
				r.MakeEmpty()
			}
			rel := strings.TrimPrefix(rec.FullName, "results.")
			if err := traj.AttachResult(rel, r); err != nil {
				return nil, err
			}
		default:
			rec.Comment = s.resolveCommentOnLoad(name, rec)
			p, err := decodeParameter(rec, rec.Comment)
			if err != nil {
				return nil, err
			}
			if plan == LoadSkeleton {
				p.MakeEmpty()
			}
			branch, rel, ok := splitBranchPrefix(rec.FullName)
			if !ok {
				return nil, fmt.Errorf("%w: %s is not under a recognized branch", errs.ErrSchema, rec.FullName)
			}
			if err := traj.AttachLoaded(branch, rel, p, rec.Explored); err != nil {
				return nil, err
			}
		}
	}

	for _, rec := range records {
		if rec.Kind != string(leaf.KindLink) {
			continue
		}
		if err := traj.AttachLink(rec.FullName, rec.LinkTarget); err != nil {
			return nil, err
		}
	}
	return traj, nil
}

// AutoLoader returns the callback trajectory.Trajectory.SetAutoLoader
// expects: given a full dotted path missing from traj's in-memory tree,
// load it from the archive with LoadData. A skeleton-only auto-load
// would leave the node empty and fail resolution again on the very next
// access, so this service always loads full data.
func (s *Service) AutoLoader(traj *trajectory.Trajectory) func(path string) error {
	return func(path string) error {
		return s.LoadItem(traj, path, LoadData)
	}
}

// AttachAutoLoader wires traj's auto-load and delete hooks to this
// service in one call, the common case for environment/cli callers that
// always want a loaded trajectory to also auto-load on demand.
func (s *Service) AttachAutoLoader(traj *trajectory.Trajectory) {
	traj.SetAutoLoader(s.AutoLoader(traj))
	traj.SetDeleter(s.Deleter(traj))
}

// Deleter returns the callback trajectory.Trajectory.SetDeleter expects:
// remove the node at the given full dotted path from the archive.
func (s *Service) Deleter(traj *trajectory.Trajectory) func(path string) error {
	return func(path string) error {
		return s.DeleteItem(traj.Name, path)
	}
}

// LoadItem reconstructs a single archived node into traj. path is the
// node's full dotted archive path.
func (s *Service) LoadItem(traj *trajectory.Trajectory, path string, plan LoadPlan) error {
	var rec nodeRecord
	if err := s.db.getJSON(bucket("nodes", traj.Name), path, &rec); err != nil {
		return fmt.Errorf("%w: %s", errs.ErrNotFound, path)
	}
	switch leaf.Kind(rec.Kind) {
	case leaf.KindGroup:
		_, err := traj.AttachGroup(rec.FullName)
		return err
	case leaf.KindLink:
		return traj.AttachLink(rec.FullName, rec.LinkTarget)
	case leaf.KindResult:
		rec.Comment = s.resolveCommentOnLoad(traj.Name, rec)
		r, err := decodeResult(rec, rec.Comment)
		if err != nil {
			return err
		}
		if plan == LoadSkeleton {
			r.MakeEmpty()
		}
		return traj.AttachResult(strings.TrimPrefix(rec.FullName, "results."), r)
	default:
		rec.Comment = s.resolveCommentOnLoad(traj.Name, rec)
		p, err := decodeParameter(rec, rec.Comment)
		if err != nil {
			return err
		}
		if plan == LoadSkeleton {
			p.MakeEmpty()
		}
		branch, rel, ok := splitBranchPrefix(rec.FullName)
		if !ok {
			return fmt.Errorf("%w: %s is not under a recognized branch", errs.ErrSchema, rec.FullName)
		}
		return traj.AttachLoaded(branch, rel, p, rec.Explored)
	}
}

// splitBranchPrefix splits a full name like "parameters.sub.x" into
// (BranchParameters, "sub.x"), matching trajectory.AttachLoaded's
// branch-relative naming convention.
func splitBranchPrefix(full string) (trajectory.Branch, string, bool) {
	for _, b := range []trajectory.Branch{trajectory.BranchConfig, trajectory.BranchParameters, trajectory.BranchDerivedParameters} {
		prefix := string(b) + "."
		if strings.HasPrefix(full, prefix) {
			return b, strings.TrimPrefix(full, prefix), true
		}
		if full == string(b) {
			return b, "", true
		}
	}
	return "", "", false
}
