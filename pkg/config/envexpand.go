package config

import "os"

// expandEnv expands ${VAR} and $VAR references in YAML content using the
// standard library. Missing variables expand to the empty string;
// validation catches required fields left empty by that.
func expandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
