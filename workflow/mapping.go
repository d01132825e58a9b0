package workflow

import "strings"

// MapData projects data through a mapping of target key to dot-separated
// source path. An empty mapping returns data unchanged, so unmapped nodes
// pass everything through. Paths that cannot be resolved drop the target
// key entirely rather than setting it to nil.
func MapData(data map[string]interface{}, mapping map[string]string) map[string]interface{} {
	if len(mapping) == 0 {
		return data
	}
	out := make(map[string]interface{}, len(mapping))
	for target, path := range mapping {
		if v, ok := resolvePath(data, path); ok {
			out[target] = v
		}
	}
	return out
}

// resolvePath descends through nested maps following a dot-separated path.
// A missing key or a non-map intermediate reports not found.
func resolvePath(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
