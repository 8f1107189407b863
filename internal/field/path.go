package field

import "strings"

// Unwind walks a dotted path such as "build.upload.format" and returns the
// innermost object and the final key. ok is false when an intermediate
// segment is missing or not an object.
func Unwind(root map[string]any, path string) (container map[string]any, key string, ok bool) {
	parts := strings.Split(path, ".")
	container = root
	for _, part := range parts[:len(parts)-1] {
		next, isObj := container[part].(map[string]any)
		if !isObj {
			return nil, "", false
		}
		container = next
	}
	return container, parts[len(parts)-1], container != nil
}

// Without returns a copy of root with the dotted path removed. Only the
// objects along the path are copied; root itself is left untouched.
func Without(root map[string]any, path string) map[string]any {
	if _, _, ok := Unwind(root, path); !ok {
		return root
	}
	head, rest, nested := strings.Cut(path, ".")
	out := make(map[string]any, len(root))
	for k, v := range root {
		out[k] = v
	}
	if !nested {
		delete(out, head)
		return out
	}
	out[head] = Without(root[head].(map[string]any), rest)
	return out
}
