package install

// Status classifies the outcome of an install or restore operation.
type Status string

const (
	// StatusSuccess marks a fully applied and verified operation.
	StatusSuccess Status = "success"
	// StatusPartial marks an applied operation whose verification reported mismatches.
	StatusPartial Status = "partial"
	// StatusFailed marks an operation that was rolled back or never applied.
	StatusFailed Status = "failed"
)

// Action names the operation recorded in history.
type Action string

const (
	// ActionInstall applies a resolved profile.
	ActionInstall Action = "install"
	// ActionRestore reverses a prior installation from a snapshot.
	ActionRestore Action = "restore"
)

// Result is the immutable outcome record of one Installer invocation.
type Result struct {
	Status  Status `json:"status"`
	Action  Action `json:"action"`
	Profile string `json:"profile,omitempty"`
	// FilesWritten lists config-root-relative paths actually written.
	FilesWritten []string `json:"filesWritten"`
	// SnapshotID references the pre-operation snapshot, empty for dry runs.
	SnapshotID string `json:"snapshotId,omitempty"`
	// RestoredSnapshot names the snapshot applied by a restore, or the one
	// automatically re-applied after a failed write.
	RestoredSnapshot string `json:"restoredSnapshot,omitempty"`
	// PlannedWrites lists what a dry run would have written.
	PlannedWrites []string `json:"plannedWrites,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	Timestamp     string   `json:"timestamp"`
}
