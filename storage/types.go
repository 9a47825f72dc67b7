package storage

import "time"

// StoreMode controls conflict handling on store calls.
type StoreMode string

const (
	// StoreInit fails with ErrStoreConflict if the trajectory's info
	// record already exists.
	StoreInit StoreMode = "init"
	// StoreAppend writes through regardless of any existing record,
	// idempotently: writing identical content twice yields an
	// identical archive.
	StoreAppend StoreMode = "append"
	// StoreOverwriteNode forces the write even when it would otherwise
	// be rejected, discarding whatever was previously stored at that
	// path.
	StoreOverwriteNode StoreMode = "overwrite-node"
)

// LoadPlan controls how much of a stored node a load reconstructs.
type LoadPlan string

const (
	// LoadNothing returns a bare trajectory with only the four reserved
	// branches attached.
	LoadNothing LoadPlan = "nothing"
	// LoadSkeleton reconstructs every node's identity and metadata but
	// leaves leaves empty (MakeEmpty).
	LoadSkeleton LoadPlan = "skeleton"
	// LoadData reconstructs full data. Loading a leaf into a trajectory
	// that already holds a node at that name fails with ErrSchema,
	// whether or not the existing leaf is locked.
	LoadData LoadPlan = "data"
	// LoadOverwriteData reconstructs full data. Loads handle it exactly
	// as LoadData: an existing node at the target name is not replaced,
	// and loading a leaf over it fails with ErrSchema.
	LoadOverwriteData LoadPlan = "overwrite-data"
)

// nodeRecord is the on-disk metadata envelope for one tree node,
// JSON-encoded into the "nodes" bucket. []byte fields round-trip as
// base64 inside the JSON envelope.
type nodeRecord struct {
	Kind        string
	Name        string
	FullName    string
	Comment     string
	Annotations map[string]any
	CreatedAt   time.Time
	Locked      bool
	Explored    bool

	// DataBlob carries the leaf's own Serialize() output for
	// scalar/pickle parameters and results (default, range and lock
	// state, in whichever format that leaf defines); for array
	// parameters it carries only the gob-encoded default value, since
	// the range lives in PoolBlob/Indices instead (array range
	// encoding).
	DataBlob []byte
	// Protocol is set for pickle parameters only.
	Protocol string

	// PoolBlob and Indices implement the array-parameter dedup encoding
	// (array parameters are stored as (unique-pool,
	// index-sequence)"). Unused for every other kind.
	PoolBlob []byte
	Indices  []int

	// LinkTarget is set for link nodes: the full name of the node the
	// link points at.
	LinkTarget string
}

// infoRow is the `info` overview table row: one per trajectory.
type infoRow struct {
	Name              string
	ID                string
	Comment           string
	SchemaVersion     string
	CreatedAt         time.Time
	ExplorationLength int
	CompressionLevel  int
}

// RunRow is the `runs` overview table row: one per run index. Exported
// so environment can upsert it as runs progress through
// their state machine.
type RunRow struct {
	Index    int
	Status   string
	WallTime time.Duration
	WorkerID string
	Reason   string
}

// LeafRow is a `parameters`/`config`/`explored_parameters` overview
// table row: one per leaf with name, type, short value repr, comment.
type LeafRow struct {
	Name      string
	Kind      string
	ValueRepr string
	Comment   string
}

// SummaryRow is a `results_summary`/`derived_parameters_summary`
// overview table row: one per short name, pointing at the lowest-index
// run that produced it.
type SummaryRow struct {
	Name          string
	FirstRunIndex int
}

// Overview bundles every overview table for a trajectory, as read by
// the `inspect` CLI subcommand.
type Overview struct {
	Info                      infoRow
	Runs                      []RunRow
	Parameters                []LeafRow
	Config                    []LeafRow
	ExploredParameters        []LeafRow
	ResultsSummary            []SummaryRow
	DerivedParametersSummary  []SummaryRow
}
