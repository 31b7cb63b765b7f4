package agents

import (
	"fmt"
	"strings"

	"github.com/agentforge/pipeline/pkg/taskspec"
)

func specSummary(spec taskspec.TaskSpec) string {
	return fmt.Sprintf(
		"app_name: %s\nfeatures: %s\narchitecture: %s\nui_system: %s\nmin_sdk: %d\ntarget_sdk: %d\ngradle_version: %s\nkotlin_version: %s",
		spec.AppName, strings.Join(spec.Features, ", "), spec.Architecture, spec.UISystem,
		spec.MinSDK, spec.TargetSDK, spec.GradleVersion, spec.KotlinVersion,
	)
}

const planSchema = `[{"step_number":int,"phase":"setup|domain|ui|integration","file_path":string,"file_type":"source|resource|manifest|build","dependencies":[int],"description":string}, ...]`

func plannerPrompt(spec taskspec.TaskSpec) []string {
	return []string{
		"You are the planning stage of an Android application build pipeline.",
		"Given the application specification below, produce an ordered build plan as a JSON array matching this schema exactly, with no prose before or after it:\n" + planSchema,
		specSummary(spec),
	}
}

func coderPrompt(step taskspec.Step, spec taskspec.TaskSpec, completedFiles []string, priorIssues []taskspec.Issue) string {
	var b strings.Builder
	b.WriteString("You are the coding stage of an Android application build pipeline.\n")
	b.WriteString("Produce the complete file contents for the following step. Respond with raw file text only, no markdown fences, no commentary.\n\n")
	b.WriteString(specSummary(spec))
	b.WriteString(fmt.Sprintf("\n\nstep_number: %d\nphase: %s\nfile_path: %s\nfile_type: %s\ndescription: %s\n",
		step.StepNumber, step.Phase, step.FilePath, step.FileType, step.Description))

	if len(completedFiles) > 0 {
		b.WriteString("\nFiles already produced in this task:\n")
		for _, f := range completedFiles {
			b.WriteString("- " + f + "\n")
		}
	}

	if len(priorIssues) > 0 {
		b.WriteString("\nThe previous attempt at this file was rejected for these reasons; address every one:\n")
		for _, issue := range priorIssues {
			b.WriteString(fmt.Sprintf("- [%s] line %d: %s\n", issue.Severity, issue.Line, issue.Message))
		}
	}

	return b.String()
}

const criticSchema = `{"decision":"ACCEPT|REJECT","issues":[{"severity":"BLOCKER|MAJOR|MINOR","line":int,"message":string}]}`

func criticPrompt(step taskspec.Step, content string, spec taskspec.TaskSpec) string {
	var b strings.Builder
	b.WriteString("You are the review stage of an Android application build pipeline.\n")
	b.WriteString("Review the file below against the step description and the application specification. Respond with JSON matching this schema exactly, with no prose before or after it:\n" + criticSchema + "\n\n")
	b.WriteString(specSummary(spec))
	b.WriteString(fmt.Sprintf("\n\nstep_number: %d\nfile_path: %s\ndescription: %s\n\n--- file content ---\n%s\n",
		step.StepNumber, step.FilePath, step.Description, content))
	return b.String()
}

const verifierSchema = `{"warnings":[string],"missing_items":[string],"quality_score":float}`

func verifierPrompt(files []string, spec taskspec.TaskSpec) string {
	var b strings.Builder
	b.WriteString("You are the final verification stage of an Android application build pipeline.\n")
	b.WriteString("Given the application specification and the list of produced files below, assess completeness and quality. Respond with JSON matching this schema exactly, with no prose before or after it:\n" + verifierSchema + "\n\n")
	b.WriteString(specSummary(spec))
	b.WriteString("\n\nfiles produced:\n")
	for _, f := range files {
		b.WriteString("- " + f + "\n")
	}
	return b.String()
}
