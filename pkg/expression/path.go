// Package expression implements the two small pieces of runtime expression
// evaluation the node handlers need: dotted-path object access (used by
// json_processor and condition clauses) and the {{NAME}} template grammar
// (used by reply_message and http_request).
package expression

import (
	"strconv"
	"strings"
)

// GetPath walks a dotted path over nested maps/slices. Numeric segments
// index into arrays. A missing segment yields (nil, false) rather than a
// panic, per the json_processor "missing yields null" rule.
func GetPath(data interface{}, path string) (interface{}, bool) {
	if path == "" {
		return data, true
	}
	segments := strings.Split(path, ".")
	cur := data
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath walks/creates intermediate map objects along a dotted path and
// writes value at the terminal segment, returning the (possibly newly
// allocated) root container. Numeric segments along the way are not
// supported for creation — only for reading via GetPath — since the
// json_processor "set" operation only ever needs to build object trees.
func SetPath(root map[string]interface{}, path string, value interface{}) map[string]interface{} {
	if root == nil {
		root = make(map[string]interface{})
	}
	segments := strings.Split(path, ".")
	cur := root
	for i, seg := range segments {
		last := i == len(segments)-1
		if last {
			cur[seg] = value
			break
		}
		next, ok := cur[seg].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			cur[seg] = next
		}
		cur = next
	}
	return root
}
