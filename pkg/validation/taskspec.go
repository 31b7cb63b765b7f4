// Package validation shape- and safety-checks the task spec, the Planner's
// plan, and every file path: a small struct wrapping the value under
// validation with one method per concern, called in dependency order
// from a single ValidateAll, every failure surfacing as a single error kind.
package validation

import (
	"fmt"

	"github.com/agentforge/pipeline/pkg/taskspec"
	"github.com/agentforge/pipeline/pkg/taxonomy"
	"github.com/agentforge/pipeline/pkg/workspace"
)

const (
	maxAppNameLength = 256
	maxFeatureLength = 128
	minFeatures      = 1
	maxFeatures      = 10
	minSDKFloor      = 21
	maxSDKCeiling    = 34
)

// TaskSpecValidator validates a TaskSpec comprehensively, fail-fast.
type TaskSpecValidator struct {
	spec taskspec.TaskSpec
}

// NewTaskSpecValidator creates a validator for the given spec.
func NewTaskSpecValidator(spec taskspec.TaskSpec) *TaskSpecValidator {
	return &TaskSpecValidator{spec: spec}
}

// ValidateTaskSpec validates spec end to end and returns a single
// taxonomy.ValidationError on the first violation found. It is idempotent:
// ValidateTaskSpec(x) called again on an already-valid x returns nil both
// times.
func ValidateTaskSpec(spec taskspec.TaskSpec) error {
	return NewTaskSpecValidator(spec).ValidateAll()
}

// ValidateAll runs every check in dependency order: identifiers first (app
// name, features), then structural fields (architecture, UI system, SDK
// range, version strings).
func (v *TaskSpecValidator) ValidateAll() error {
	if err := v.validateAppName(); err != nil {
		return err
	}
	if err := v.validateFeatures(); err != nil {
		return err
	}
	if err := v.validateArchitecture(); err != nil {
		return err
	}
	if err := v.validateUISystem(); err != nil {
		return err
	}
	if err := v.validateSDKRange(); err != nil {
		return err
	}
	if err := v.validateVersions(); err != nil {
		return err
	}
	return nil
}

func (v *TaskSpecValidator) validateAppName() error {
	name := v.spec.AppName
	if !isValidIdentifier(name, maxAppNameLength) {
		return taxonomy.NewValidationError("taskspec",
			fmt.Sprintf("app_name %q is not a valid identifier of length <= %d", name, maxAppNameLength))
	}
	if isReserved(name) {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("app_name %q is a reserved word", name))
	}
	return nil
}

func (v *TaskSpecValidator) validateFeatures() error {
	features := v.spec.Features
	if len(features) < minFeatures || len(features) > maxFeatures {
		return taxonomy.NewValidationError("taskspec",
			fmt.Sprintf("features must have between %d and %d entries, got %d", minFeatures, maxFeatures, len(features)))
	}

	seen := make(map[string]bool, len(features))
	for _, f := range features {
		if !isValidIdentifier(f, maxFeatureLength) {
			return taxonomy.NewValidationError("taskspec",
				fmt.Sprintf("feature %q is not a valid identifier of length <= %d", f, maxFeatureLength))
		}
		if isReserved(f) {
			return taxonomy.NewValidationError("taskspec", fmt.Sprintf("feature %q is a reserved word", f))
		}
		if seen[f] {
			return taxonomy.NewValidationError("taskspec", fmt.Sprintf("duplicate feature %q", f))
		}
		seen[f] = true
	}
	return nil
}

func (v *TaskSpecValidator) validateArchitecture() error {
	switch v.spec.Architecture {
	case taskspec.ArchitectureMVVM, taskspec.ArchitectureMVI, taskspec.ArchitectureClean:
		return nil
	default:
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("unknown architecture %q", v.spec.Architecture))
	}
}

func (v *TaskSpecValidator) validateUISystem() error {
	switch v.spec.UISystem {
	case taskspec.UISystemCompose, taskspec.UISystemViews:
		return nil
	default:
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("unknown ui_system %q", v.spec.UISystem))
	}
}

func (v *TaskSpecValidator) validateSDKRange() error {
	min, target := v.spec.MinSDK, v.spec.TargetSDK
	if min < minSDKFloor {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("min_sdk %d is below the floor of %d", min, minSDKFloor))
	}
	if target > maxSDKCeiling {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("target_sdk %d is above the ceiling of %d", target, maxSDKCeiling))
	}
	if min > target {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("min_sdk %d exceeds target_sdk %d", min, target))
	}
	return nil
}

func (v *TaskSpecValidator) validateVersions() error {
	if !isSemVerTriple(v.spec.GradleVersion) {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("gradle_version %q is not a semantic version triple", v.spec.GradleVersion))
	}
	if !isSemVerTriple(v.spec.KotlinVersion) {
		return taxonomy.NewValidationError("taskspec", fmt.Sprintf("kotlin_version %q is not a semantic version triple", v.spec.KotlinVersion))
	}
	return nil
}

// ValidateFilePath checks a single Step's file_path against the
// path-safety rule without requiring an existing base directory (pure
// syntactic check).
func ValidateFilePath(path string) error {
	if !workspace.IsSafe(path) {
		return taxonomy.NewValidationError("path", "unsafe file_path: "+path)
	}
	return nil
}
