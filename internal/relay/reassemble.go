package relay

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Reassemble merges a buffered SSE stream into the same shape the
// endpoint's unary response would have had, per spec §4.F/§4.I. buf is
// the full, untouched byte buffer accumulated during relaying; objectType
// is the expected "object" value on each chunk ("chat.completion.chunk"
// or "text_completion" -- see Endpoint.ObjectType).
//
// Each event contributing textual content increments a synthetic
// completion-token counter by exactly 1 regardless of its actual token
// length -- a simplification inherited from the source this was
// distilled from and preserved deliberately (see DESIGN.md).
func Reassemble(buf []byte, objectType string) (map[string]any, error) {
	if objectType != "chat.completion.chunk" && objectType != "text_completion" {
		return nil, fmt.Errorf("relay: invalid object type %q", objectType)
	}

	events := strings.Split(string(buf), "\n\n")

	var merged map[string]any
	mergeSuccessful := false
	tokenCount := 0
	validChunks := 0

	for _, event := range events {
		if len(event) < 5 {
			break
		}
		if event[:5] != "data:" {
			break
		}
		var rest string
		if len(event) > 6 {
			rest = event[6:]
		}
		data := strings.TrimSpace(rest)
		if data == "[DONE]" {
			mergeSuccessful = true
			break
		}

		var chunk map[string]any
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			break
		}

		if chunk["object"] != objectType {
			continue
		}
		validChunks++

		choices, _ := chunk["choices"].([]any)
		if len(choices) == 0 {
			continue
		}
		choice, _ := choices[0].(map[string]any)
		if choice == nil {
			continue
		}

		if validChunks == 1 {
			merged = chunk
			mergedChoice := firstChoice(merged)
			if objectType == "chat.completion.chunk" {
				delta := ensureDelta(mergedChoice)
				if _, ok := delta["content"]; !ok {
					delta["content"] = ""
				}
			} else if _, ok := mergedChoice["text"]; !ok {
				mergedChoice["text"] = ""
			}
			continue
		}

		mergedChoice := firstChoice(merged)
		if objectType == "chat.completion.chunk" {
			delta, _ := choice["delta"].(map[string]any)
			if content, ok := delta["content"].(string); ok {
				tokenCount++
				mergedDelta := ensureDelta(mergedChoice)
				existing, _ := mergedDelta["content"].(string)
				mergedDelta["content"] = existing + content
			}
		} else {
			if text, ok := choice["text"].(string); ok {
				tokenCount++
				mergedChoice["text"] = mergedChoice["text"].(string) + text
			}
		}
		if fr, ok := choice["finish_reason"]; ok {
			mergedChoice["finish_reason"] = fr
		}
	}

	if validChunks == 0 {
		return nil, fmt.Errorf("relay: reassembly failed, no valid chunks")
	}

	if objectType == "chat.completion.chunk" {
		mergedChoice := firstChoice(merged)
		mergedChoice["message"] = mergedChoice["delta"]
		delete(mergedChoice, "delta")
	}

	if mergeSuccessful {
		merged["usage"] = map[string]any{"completion_tokens": tokenCount}
	}
	merged["streaming_response"] = true
	merged["stream_merge_successful"] = mergeSuccessful

	return merged, nil
}

func firstChoice(merged map[string]any) map[string]any {
	choices := merged["choices"].([]any)
	return choices[0].(map[string]any)
}

func ensureDelta(choice map[string]any) map[string]any {
	delta, ok := choice["delta"].(map[string]any)
	if !ok {
		delta = map[string]any{}
		choice["delta"] = delta
	}
	return delta
}
