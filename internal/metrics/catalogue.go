package metrics

import (
	"github.com/Firsttry-Solutions/Firsttry-sub006/internal/evidence"
)

// Metric keys.
const (
	KeyUnusedRequiredFields    = "unused_required_fields"
	KeyDisabledAutomationRules = "disabled_automation_rules"
	KeyOrphanedWorkflows       = "orphaned_workflows"
	KeyProjectsWithoutLead     = "projects_without_lead"
	KeyConfigChurnDensity      = "config_churn_density"
	KeyStructuralChangeShare   = "structural_change_share"
	KeyVisibilityGapRatio      = "visibility_gap_ratio"
)

// ratio is a computed numerator over denominator.
type ratio struct {
	num, den int64
}

// Definition declares one metric: its inputs, range and computation.
type Definition struct {
	Key string

	// Required datasets make the metric NOT_AVAILABLE when absent.
	Required []string

	// Supporting datasets lower confidence when absent but do not block
	// computation.
	Supporting []string

	// Bounded is true when Value always lies in [0, 1].
	Bounded bool

	compute func(in *inputs) ratio
}

// Dependencies returns required then supporting dataset names.
func (d Definition) Dependencies() []string {
	deps := make([]string, 0, len(d.Required)+len(d.Supporting))
	deps = append(deps, d.Required...)
	return append(deps, d.Supporting...)
}

var (
	dsField          = string(evidence.TypeField)
	dsWorkflow       = string(evidence.TypeWorkflow)
	dsAutomationRule = string(evidence.TypeAutomationRule)
	dsProject        = string(evidence.TypeProject)
	dsFieldUsage     = string(evidence.TypeFieldUsage)
	dsDriftEvents    = evidence.DatasetDriftEvents
)

// Catalogue is the fixed metric catalogue, sorted by key. Every run
// carries one record per entry.
var Catalogue = []Definition{
	{
		Key:      KeyConfigChurnDensity,
		Required: []string{dsDriftEvents},
		Supporting: []string{
			dsAutomationRule, dsField, dsProject, dsWorkflow,
		},
		Bounded: false,
		compute: configChurnDensity,
	},
	{
		Key:      KeyDisabledAutomationRules,
		Required: []string{dsAutomationRule},
		Bounded:  true,
		compute:  disabledAutomationRules,
	},
	{
		Key:      KeyOrphanedWorkflows,
		Required: []string{dsProject, dsWorkflow},
		Bounded:  true,
		compute:  orphanedWorkflows,
	},
	{
		Key:      KeyProjectsWithoutLead,
		Required: []string{dsProject},
		Bounded:  true,
		compute:  projectsWithoutLead,
	},
	{
		Key:      KeyStructuralChangeShare,
		Required: []string{dsDriftEvents},
		Bounded:  true,
		compute:  structuralChangeShare,
	},
	{
		Key:      KeyUnusedRequiredFields,
		Required: []string{dsField, dsFieldUsage},
		Bounded:  true,
		compute:  unusedRequiredFields,
	},
	{
		Key:     KeyVisibilityGapRatio,
		Bounded: true,
		compute: visibilityGapRatio,
	},
}

// Lookup returns the definition for key.
func Lookup(key string) (Definition, bool) {
	for _, d := range Catalogue {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// unusedRequiredFields: required fields with no observed usage over
// required fields.
func unusedRequiredFields(in *inputs) ratio {
	usage := in.snapshot.Payload.Index(evidence.TypeFieldUsage)
	var r ratio
	for _, o := range in.snapshot.Payload[evidence.TypeField] {
		f := o.(evidence.Field)
		if !f.Required {
			continue
		}
		r.den++
		u, ok := usage[f.ID]
		if !ok || u.(evidence.FieldUsage).IssueCount == 0 {
			r.num++
		}
	}
	return r
}

func disabledAutomationRules(in *inputs) ratio {
	var r ratio
	for _, o := range in.snapshot.Payload[evidence.TypeAutomationRule] {
		r.den++
		if !o.(evidence.AutomationRule).Enabled {
			r.num++
		}
	}
	return r
}

// orphanedWorkflows: workflows no project references over workflows.
func orphanedWorkflows(in *inputs) ratio {
	used := make(map[string]bool)
	for _, o := range in.snapshot.Payload[evidence.TypeProject] {
		for _, id := range o.(evidence.Project).WorkflowIDs {
			used[id] = true
		}
	}
	var r ratio
	for _, o := range in.snapshot.Payload[evidence.TypeWorkflow] {
		r.den++
		if !used[o.ObjectID()] {
			r.num++
		}
	}
	return r
}

func projectsWithoutLead(in *inputs) ratio {
	var r ratio
	for _, o := range in.snapshot.Payload[evidence.TypeProject] {
		r.den++
		lead := o.(evidence.Project).LeadAccountID
		if lead == nil || *lead == "" {
			r.num++
		}
	}
	return r
}

// configChurnDensity: configuration events in the window over objects in
// the captured supporting datasets. One object can change many times, so
// the value may exceed 1.
func configChurnDensity(in *inputs) ratio {
	var r ratio
	for _, e := range in.events {
		if e.Classification == evidence.ClassStructural || e.Classification == evidence.ClassConfigChange {
			r.num++
		}
	}
	for _, t := range evidence.ConfigTypes {
		if in.snapshot.Captured(t) {
			r.den += int64(len(in.snapshot.Payload[t]))
		}
	}
	return r
}

func structuralChangeShare(in *inputs) ratio {
	var r ratio
	for _, e := range in.events {
		switch e.Classification {
		case evidence.ClassStructural:
			r.num++
			r.den++
		case evidence.ClassConfigChange:
			r.den++
		}
	}
	return r
}

// visibilityGapRatio: tracked snapshot datasets not fully covered over
// tracked snapshot datasets.
func visibilityGapRatio(in *inputs) ratio {
	var r ratio
	for _, t := range evidence.PayloadTypes {
		r.den++
		if in.snapshot.Coverage(string(t)).CoverageStatus != evidence.CoverageAvailable {
			r.num++
		}
	}
	return r
}
