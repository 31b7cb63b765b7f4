package validation

import (
	"fmt"

	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
)

const (
	minSteps = 1
	maxSteps = 25
)

// PlanValidator validates a Plan comprehensively, fail-fast.
type PlanValidator struct {
	plan taskspec.Plan
}

// NewPlanValidator creates a validator for the given plan.
func NewPlanValidator(plan taskspec.Plan) *PlanValidator {
	return &PlanValidator{plan: plan}
}

// ValidatePlan validates plan end to end: size, unique step numbers, enum
// and path shape, and the dependency graph.
func ValidatePlan(plan taskspec.Plan) error {
	return NewPlanValidator(plan).ValidateAll()
}

// ValidateAll checks size, uniqueness, enums, path safety, and the
// dependency graph (including the topological-order constraint that makes
// step_number execution order safe) in that order.
func (v *PlanValidator) ValidateAll() error {
	if err := v.validateSize(); err != nil {
		return err
	}
	numbers, err := v.validateUniqueStepNumbers()
	if err != nil {
		return err
	}
	if err := v.validateEnumsAndPaths(); err != nil {
		return err
	}
	if err := v.validateDependencyGraph(numbers); err != nil {
		return err
	}
	return nil
}

func (v *PlanValidator) validateSize() error {
	n := len(v.plan.Steps)
	if n < minSteps || n > maxSteps {
		return taxonomy.NewValidationError("plan",
			fmt.Sprintf("plan must have between %d and %d steps, got %d", minSteps, maxSteps, n))
	}
	return nil
}

func (v *PlanValidator) validateUniqueStepNumbers() (map[int]bool, error) {
	numbers := make(map[int]bool, len(v.plan.Steps))
	for _, s := range v.plan.Steps {
		if s.StepNumber <= 0 {
			return nil, taxonomy.NewValidationError("plan", fmt.Sprintf("step_number %d is not positive", s.StepNumber))
		}
		if numbers[s.StepNumber] {
			return nil, taxonomy.NewValidationError("plan", fmt.Sprintf("duplicate step_number %d", s.StepNumber))
		}
		numbers[s.StepNumber] = true
	}
	return numbers, nil
}

func (v *PlanValidator) validateEnumsAndPaths() error {
	for _, s := range v.plan.Steps {
		switch s.Phase {
		case taskspec.PhaseSetup, taskspec.PhaseDomain, taskspec.PhaseUI, taskspec.PhaseIntegration:
		default:
			return taxonomy.NewValidationError("plan", fmt.Sprintf("step %d: unknown phase %q", s.StepNumber, s.Phase))
		}
		switch s.FileType {
		case taskspec.FileTypeSource, taskspec.FileTypeResource, taskspec.FileTypeManifest, taskspec.FileTypeBuild:
		default:
			return taxonomy.NewValidationError("plan", fmt.Sprintf("step %d: unknown file_type %q", s.StepNumber, s.FileType))
		}
		if err := ValidateFilePath(s.FilePath); err != nil {
			return taxonomy.NewValidationError("plan", fmt.Sprintf("step %d: %v", s.StepNumber, err))
		}
	}
	return nil
}

// validateDependencyGraph enforces a closed graph (every dependency refers
// to a step present in the plan) and a topological-order constraint:
// execution proceeds in step_number order regardless of the dependency
// graph, so every dependency's step_number must be strictly less than its
// dependent's, making that implicit order a valid topological sort.
func (v *PlanValidator) validateDependencyGraph(numbers map[int]bool) error {
	for _, s := range v.plan.Steps {
		for _, dep := range s.Dependencies {
			if !numbers[dep] {
				return taxonomy.NewValidationError("plan",
					fmt.Sprintf("step %d depends on absent step %d", s.StepNumber, dep))
			}
			if dep >= s.StepNumber {
				return taxonomy.NewValidationError("plan",
					fmt.Sprintf("step %d depends on step %d, which does not precede it in execution order", s.StepNumber, dep))
			}
		}
	}
	return nil
}
