package drift

import "github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"

// classification is the fixed (object_type, change_type) lookup table.
// Object existence is structural for fields, projects and automation
// rules; workflows change as configuration in every direction.
var classification = map[evidence.ObjectType]map[evidence.ChangeType]evidence.Classification{
	evidence.TypeField: {
		evidence.ChangeAdded:    evidence.ClassStructural,
		evidence.ChangeRemoved:  evidence.ClassStructural,
		evidence.ChangeModified: evidence.ClassConfigChange,
	},
	evidence.TypeProject: {
		evidence.ChangeAdded:    evidence.ClassStructural,
		evidence.ChangeRemoved:  evidence.ClassStructural,
		evidence.ChangeModified: evidence.ClassConfigChange,
	},
	evidence.TypeAutomationRule: {
		evidence.ChangeAdded:    evidence.ClassStructural,
		evidence.ChangeRemoved:  evidence.ClassStructural,
		evidence.ChangeModified: evidence.ClassConfigChange,
	},
	evidence.TypeWorkflow: {
		evidence.ChangeAdded:    evidence.ClassConfigChange,
		evidence.ChangeRemoved:  evidence.ClassConfigChange,
		evidence.ChangeModified: evidence.ClassConfigChange,
	},
	evidence.TypeScope: {
		evidence.ChangeAdded:    evidence.ClassDataVisibilityChange,
		evidence.ChangeRemoved:  evidence.ClassDataVisibilityChange,
		evidence.ChangeModified: evidence.ClassDataVisibilityChange,
	},
}

// Classify looks up the classification of a change. It is a pure
// function of its two arguments.
func Classify(t evidence.ObjectType, c evidence.ChangeType) (evidence.Classification, bool) {
	byChange, ok := classification[t]
	if !ok {
		return "", false
	}
	cls, ok := byChange[c]
	return cls, ok
}
