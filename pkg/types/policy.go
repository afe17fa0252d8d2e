package types

import "fmt"

// ConflictPolicy tells the engine what to do when an output file already exists.
// The numeric value is the persisted options.conflictIndex.
type ConflictPolicy int

const (
	ConflictRename ConflictPolicy = iota
	ConflictOverwrite
	ConflictSkip
)

// DefaultConflictPolicy is used for fresh settings and out-of-range indexes.
const DefaultConflictPolicy = ConflictSkip

var policyNames = []string{"rename", "overwrite", "skip"}

// ConflictPolicyNames lists the accepted policy names in index order.
func ConflictPolicyNames() []string {
	names := make([]string, len(policyNames))
	copy(names, policyNames)
	return names
}

// ConflictPolicyFromIndex maps a persisted index to a policy. Unknown indexes
// fall back to skip.
func ConflictPolicyFromIndex(idx int) ConflictPolicy {
	if idx < 0 || idx >= len(policyNames) {
		return DefaultConflictPolicy
	}
	return ConflictPolicy(idx)
}

// ParseConflictPolicy parses the command line spelling of a policy
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	for i, name := range policyNames {
		if name == s {
			return ConflictPolicy(i), nil
		}
	}
	return DefaultConflictPolicy, fmt.Errorf("unknown conflict policy %q (want rename, overwrite or skip)", s)
}

// Index returns the persisted form of the policy
func (p ConflictPolicy) Index() int {
	return int(ConflictPolicyFromIndex(int(p)))
}

func (p ConflictPolicy) String() string {
	return policyNames[p.Index()]
}
