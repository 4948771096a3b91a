// Package relay implements the streaming and unary relay (spec §4.F,
// §4.G): issuing the upstream call, forwarding bytes to the downstream
// client, and -- on completion or disconnect -- reassembling a streamed
// response and handing trimmed copies to the logging and observability
// sinks.
package relay

import "strings"

const truncationSuffix = "...[truncated]"

// Trim returns a deep copy of v with secret-adjacent fields truncated for
// the request/response handed to the logging and observability sinks,
// per spec §4.F:
//   - any "url" field beginning with "data:image" is cut to 30 chars;
//   - any "b64_json" field is cut to 10 chars.
//
// The input is never mutated; the untouched original is what the relay
// forwards downstream. Unlike TrimEmbeddings, this truncation is applied
// unconditionally -- it always runs before a call record is persisted.
func Trim(v any) any {
	return walk(v, func(k string, child any) (any, bool) {
		switch k {
		case "url":
			if s, ok := child.(string); ok && strings.HasPrefix(s, "data:image") {
				return truncateString(s, 30), true
			}
		case "b64_json":
			if s, ok := child.(string); ok {
				return truncateString(s, 10), true
			}
		}
		return nil, false
	})
}

// TrimEmbeddings returns a deep copy of v with each "embedding" array cut
// to its first 5 entries, per spec §4.F's third bullet. This truncation is
// "debug log only": it is never applied to the request/response records
// persisted via the logging or observability sinks, only to the ephemeral
// copy logged at debug level (original_source's
// `settings.debug_level > 0` guard in llm/wrappers.py's
// embeddings_wrapper).
func TrimEmbeddings(v any) any {
	return walk(v, func(k string, child any) (any, bool) {
		if k == "embedding" {
			if arr, ok := child.([]any); ok {
				return truncateSlice(arr, 5), true
			}
		}
		return nil, false
	})
}

// walk deep-copies v, giving fn a chance to replace each map field. fn
// returns (replacement, true) to substitute a value directly, or
// (nil, false) to let the field recurse normally.
func walk(v any, fn func(k string, child any) (any, bool)) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if replacement, handled := fn(k, child); handled {
				out[k] = replacement
				continue
			}
			out[k] = walk(child, fn)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = walk(child, fn)
		}
		return out
	default:
		return val
	}
}

func truncateString(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + truncationSuffix
}

func truncateSlice(s []any, n int) []any {
	if len(s) < n {
		n = len(s)
	}
	out := make([]any, n)
	copy(out, s[:n])
	return out
}
