package storage

// DeepMerge merges updates into base and returns base. Map values merge
// recursively; scalars and lists replace; a nil update deletes the key.
// Keys absent from updates are left untouched.
func DeepMerge(base, updates map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for key, value := range updates {
		if value == nil {
			delete(base, key)
			continue
		}
		if newMap, ok := toStringMap(value); ok {
			if oldMap, ok := toStringMap(base[key]); ok {
				base[key] = DeepMerge(oldMap, newMap)
				continue
			}
		}
		base[key] = value
	}
	return base
}

// toStringMap normalizes the map shapes produced by YAML and JSON decoding.
func toStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			key, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[key] = val
		}
		return out, true
	}
	return nil, false
}
