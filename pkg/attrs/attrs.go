// Package attrs reads values out of flat key-value pair slices, the
// [key1, value1, key2, value2, ...] shape used by audit event detail.
package attrs

// ExtractString returns the string value following the given key, or
// empty when the key is absent or its value is not a string.
func ExtractString(pairs []any, key string) string {
	for i := 0; i < len(pairs)-1; i += 2 {
		k, ok := pairs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := pairs[i+1].(string); ok {
			return v
		}
	}
	return ""
}
