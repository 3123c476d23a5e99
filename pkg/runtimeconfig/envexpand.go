package runtimeconfig

import "os"

// expandEnv expands ${VAR}/$VAR references in YAML content before parsing,
// so secrets like the store DSN never need to live in the file itself.
// Missing variables expand to empty string; validation catches the
// resulting empty required fields.
func expandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
