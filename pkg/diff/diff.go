// Package diff computes sparse field-level differences between two entity
// snapshots decoded from JSON. The result contains only the fields whose
// values changed, keyed by their wire (lowerCamel) names, which makes it
// suitable for direct embedding in a staged update record.
package diff

import "sort"

// Fields compares two decoded JSON objects and returns the fields of new
// whose values differ from old.
//
// A nil new object yields an empty map: replacing a snapshot with nothing is
// treated as "no intended change", not a deletion. Nil field values in new
// are skipped for the same reason; partial payloads never unset fields.
// Ordered collections are compared element-wise, so a list with different
// elements counts as changed even when old had no value for that field.
func Fields(old, new map[string]interface{}) map[string]interface{} {
	changed := make(map[string]interface{})
	if new == nil {
		return changed
	}

	for _, key := range sortedKeys(new) {
		newValue := new[key]
		if newValue == nil {
			continue
		}

		var oldValue interface{}
		if old != nil {
			oldValue = old[key]
		}

		if !Equal(oldValue, newValue) {
			changed[key] = newValue
		}
	}

	return changed
}

// Equal reports whether two decoded JSON values are structurally equal.
// Objects are compared key-wise, arrays element-wise in order, and scalars
// by value.
func Equal(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			other, present := bv[k]
			if !present || !Equal(v, other) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !Equal(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// sortedKeys returns the map keys in lexical order so that comparison and
// any downstream logging are order-stable.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
