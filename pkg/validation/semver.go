package validation

import "regexp"

var semverTriplePattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// isSemVerTriple reports whether s is a MAJOR.MINOR.PATCH semantic version
// triple, the shape required of gradle_version and kotlin_version.
func isSemVerTriple(s string) bool {
	return semverTriplePattern.MatchString(s)
}
