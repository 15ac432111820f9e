// Package aimeta extracts AI generation metadata (prompts, sampler
// settings, model names) from the sidecar metadata of uploaded files.
// It understands ComfyUI workflow graphs, A1111-style parameter blocks
// and SwarmUI JSON payloads, and normalizes all of them into a flat
// record. Absence of recognizable metadata is a normal outcome, never
// an error.
package aimeta

import (
	"encoding/json"
	"sort"
	"strings"
)

// extractor is one strategy in the format-dispatch chain. The chain is
// evaluated in fixed priority order and the first non-nil result wins;
// results are never merged across formats.
type extractor struct {
	name string
	run  func(meta map[string]interface{}) map[string]interface{}
}

var extractors = []extractor{
	{name: "comfyui_workflow", run: extractFromWorkflow},
	{name: "parameter_block", run: extractFromParameters},
	{name: "swarmui", run: extractFromSwarmUI},
}

// ExtractGenerationData normalizes raw file metadata into a flat
// generation record. It returns nil when no recognizable AI metadata
// is present.
func ExtractGenerationData(meta map[string]interface{}) map[string]interface{} {
	if len(meta) == 0 {
		return nil
	}

	for _, e := range extractors {
		if data := e.run(meta); len(data) > 0 {
			return data
		}
	}

	return nil
}

// extractFromWorkflow tries ComfyUI workflow-graph extraction. The
// "prompt" and "workflow" keys are both candidates; a value qualifies
// as a node graph when it decodes to an object with at least one
// purely-numeric key.
func extractFromWorkflow(meta map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"prompt", "workflow"} {
		graph, ok := asWorkflowGraph(meta[key])
		if !ok {
			continue
		}
		if data := parseComfyUIWorkflow(graph); len(data) > 0 {
			return data
		}
	}
	return nil
}

// extractFromParameters tries the A1111/JSON parameter payloads in
// their historical key order.
func extractFromParameters(meta map[string]interface{}) map[string]interface{} {
	for _, key := range []string{"parameters", "Parameters", "prompt"} {
		value, ok := meta[key]
		if !ok || value == nil {
			continue
		}

		if obj, ok := value.(map[string]interface{}); ok {
			return obj
		}

		text, ok := value.(string)
		if !ok {
			continue
		}

		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			if obj, ok := decoded.(map[string]interface{}); ok && obj != nil {
				return obj
			}
		}

		if data := parseA1111Parameters(text); len(data) > 0 {
			return data
		}
	}
	return nil
}

// extractFromSwarmUI returns the sui_image_params payload verbatim.
func extractFromSwarmUI(meta map[string]interface{}) map[string]interface{} {
	value, ok := meta["sui_image_params"]
	if !ok || value == nil {
		return nil
	}

	if obj, ok := value.(map[string]interface{}); ok {
		return obj
	}

	// Some writers store the payload as a JSON string.
	if text, ok := value.(string); ok {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			return decoded
		}
	}

	return nil
}

// asWorkflowGraph decodes a metadata value into a node graph. Accepts
// either an already-decoded object or a JSON string.
func asWorkflowGraph(value interface{}) (map[string]interface{}, bool) {
	var graph map[string]interface{}

	switch v := value.(type) {
	case map[string]interface{}:
		graph = v
	case string:
		if err := json.Unmarshal([]byte(v), &graph); err != nil {
			return nil, false
		}
	default:
		return nil, false
	}

	// A node graph is keyed by node id; at least one key must be
	// purely numeric to distinguish it from a plain settings object.
	for key := range graph {
		if key != "" && isNumericKey(key) {
			return graph, true
		}
	}
	return nil, false
}

func isNumericKey(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// promptKeys is the priority order for locating the positive prompt in
// a normalized record.
var promptKeys = []string{"prompt", "Prompt", "positive_prompt", "positive"}

// ExtractPrompt returns the positive prompt from the file metadata, or
// an empty string when none is found.
func ExtractPrompt(meta map[string]interface{}) string {
	data := ExtractGenerationData(meta)
	if data == nil {
		return ""
	}

	for _, key := range promptKeys {
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}

	// SwarmUI nests its prompt one level down.
	if sui, ok := data["sui_image_params"].(map[string]interface{}); ok {
		if s, ok := sui["prompt"].(string); ok && s != "" {
			return s
		}
	}

	// Last resort: any key that mentions "prompt" but not "negative".
	// Keys are sorted for a deterministic pick.
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		lower := strings.ToLower(key)
		if !strings.Contains(lower, "prompt") || strings.Contains(lower, "negative") {
			continue
		}
		if s, ok := data[key].(string); ok && s != "" {
			return s
		}
	}

	return ""
}

// ParsePromptTags splits a prompt into booru-style tag names: comma
// separated, trimmed, whitespace runs collapsed to underscores,
// lowercased. Order is preserved and duplicates are kept.
func ParsePromptTags(prompt string) []string {
	if prompt == "" {
		return nil
	}

	var tags []string
	for _, part := range strings.Split(prompt, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tag := strings.Join(strings.Fields(part), "_")
		tags = append(tags, strings.ToLower(tag))
	}
	return tags
}
