package parley

// StateModule is implemented by components whose runtime state can be
// snapshotted and restored, such as conversation memories and agents.
// Sessions persist one state dict per registered module.
type StateModule interface {
	// StateDict returns a JSON-compatible snapshot of the module's state.
	StateDict() (map[string]any, error)
	// LoadStateDict restores the module from a snapshot. With strict set,
	// missing or malformed entries are errors; otherwise they are skipped
	// and the rest of the snapshot is applied.
	LoadStateDict(state map[string]any, strict bool) error
}
