package types

// InputMode decides how the task list is populated
type InputMode int

const (
	// ModeManual lets the operator add individual files (dialog or drag and drop)
	ModeManual InputMode = iota
	// ModeDirectoryScan fills the list from a recursive scan of the input directory
	ModeDirectoryScan
)

// Toggle returns the other mode
func (m InputMode) Toggle() InputMode {
	if m == ModeDirectoryScan {
		return ModeManual
	}
	return ModeDirectoryScan
}

func (m InputMode) String() string {
	if m == ModeDirectoryScan {
		return "directory"
	}
	return "manual"
}

// InputModeFromBool maps the persisted useDirectoryMode flag to a mode.
func InputModeFromBool(useDirectory bool) InputMode {
	if useDirectory {
		return ModeDirectoryScan
	}
	return ModeManual
}
