package aimeta

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ComfyUI node classes the harvester recognizes. Graphs name their
// stages by node class; everything else is ignored.
var (
	samplerClasses = map[string]bool{
		"KSampler":         true,
		"KSamplerAdvanced": true,
	}
	textEncodeClasses = map[string]bool{
		"CLIPTextEncode": true,
	}
	checkpointClasses = map[string]bool{
		"CheckpointLoaderSimple": true,
		"CheckpointLoader":       true,
	}
	vaeClasses = map[string]bool{
		"VAELoader": true,
	}
	latentClasses = map[string]bool{
		"EmptyLatentImage": true,
	}
	loraClasses = map[string]bool{
		"LoraLoader":          true,
		"LoraLoaderModelOnly": true,
	}
)

// negativeWordRe matches the fixed denylist used to classify an
// untagged prompt as negative. Whole-word, case-insensitive. The list
// is deliberately frozen; changing it changes classification results
// for existing uploads.
var negativeWordRe = regexp.MustCompile(`(?i)\b(bad|worst|ugly|deformed|blurry|low quality|watermark)\b`)

// workflowNode is a single stage of a generation pipeline. Inputs are
// either literal values or [nodeID, outputIndex] references.
type workflowNode struct {
	id     string
	class  string
	inputs map[string]interface{}
}

// promptCandidate is a text-encoder node collected during harvesting.
type promptCandidate struct {
	nodeID     string
	text       string
	isPositive bool
	isNegative bool
}

// loraEntry is one LoRA loader occurrence, in encounter order.
type loraEntry struct {
	name          string
	strengthModel interface{}
	strengthClip  interface{}
}

// parseComfyUIWorkflow walks a node graph and harvests generation
// settings. Returns nil when nothing at all was recovered.
func parseComfyUIWorkflow(graph map[string]interface{}) map[string]interface{} {
	nodes := normalizeGraph(graph)
	if len(nodes) == 0 {
		return nil
	}

	data := make(map[string]interface{})

	// Pass 1: the first sampler node tells us which text encoders feed
	// the positive and negative conditioning. Later samplers are
	// ignored for this identification.
	var positiveNodeID, negativeNodeID string
	for _, node := range nodes {
		if !samplerClasses[node.class] {
			continue
		}
		if ref, ok := inputRef(node.inputs["positive"]); ok {
			positiveNodeID = ref
		}
		if ref, ok := inputRef(node.inputs["negative"]); ok {
			negativeNodeID = ref
		}
		break
	}

	// Pass 2: harvest fields node by node.
	var candidates []promptCandidate
	var loras []loraEntry
	for _, node := range nodes {
		switch {
		case textEncodeClasses[node.class]:
			text, ok := literalString(node.inputs["text"])
			if !ok || text == "" {
				continue
			}
			candidates = append(candidates, promptCandidate{
				nodeID:     node.id,
				text:       text,
				isPositive: node.id == positiveNodeID && positiveNodeID != "",
				isNegative: node.id == negativeNodeID && negativeNodeID != "",
			})

		case checkpointClasses[node.class]:
			if name, ok := literalString(node.inputs["ckpt_name"]); ok && name != "" {
				data["checkpoint"] = name
			}

		case samplerClasses[node.class]:
			setNumber(data, "seed", node.inputs["seed"])
			setNumber(data, "steps", node.inputs["steps"])
			setNumber(data, "cfg_scale", node.inputs["cfg"])
			setNumber(data, "denoise", node.inputs["denoise"])
			if s, ok := literalString(node.inputs["sampler_name"]); ok && s != "" {
				data["sampler"] = s
			}
			if s, ok := literalString(node.inputs["scheduler"]); ok && s != "" {
				data["scheduler"] = s
			}

		case vaeClasses[node.class]:
			if name, ok := literalString(node.inputs["vae_name"]); ok && name != "" {
				data["vae"] = name
			}

		case latentClasses[node.class]:
			setNumber(data, "width", node.inputs["width"])
			setNumber(data, "height", node.inputs["height"])
			setNumber(data, "batch_size", node.inputs["batch_size"])

		case loraClasses[node.class]:
			name, ok := literalString(node.inputs["lora_name"])
			if !ok || name == "" {
				continue
			}
			loras = append(loras, loraEntry{
				name:          name,
				strengthModel: node.inputs["strength_model"],
				strengthClip:  node.inputs["strength_clip"],
			})
		}
	}

	resolvePrompts(data, candidates)

	if len(loras) > 0 {
		data["loras"] = formatLoras(loras)
	}

	if len(data) == 0 {
		return nil
	}
	return data
}

// resolvePrompts assigns prompt/negative_prompt from the collected
// candidates, in priority order: direct sampler references, the
// single-candidate case, the two-candidate keyword heuristic, then
// remainder-slot filling. Three or more wholly unresolved candidates
// collapse into one labeled block; that fallback is intentionally
// lossy display data, not a semantic resolution.
func resolvePrompts(data map[string]interface{}, candidates []promptCandidate) {
	if len(candidates) == 0 {
		return
	}

	var positive, negative *promptCandidate
	var untagged []promptCandidate
	for i := range candidates {
		c := &candidates[i]
		switch {
		case c.isPositive && positive == nil:
			positive = c
		case c.isNegative && negative == nil:
			negative = c
		default:
			untagged = append(untagged, *c)
		}
	}

	switch {
	case positive != nil && negative != nil:
		data["prompt"] = positive.text
		data["negative_prompt"] = negative.text

	case len(candidates) == 1:
		data["prompt"] = candidates[0].text

	case len(candidates) == 2 && positive == nil && negative == nil:
		first, second := candidates[0], candidates[1]
		firstNeg := negativeWordRe.MatchString(first.text)
		secondNeg := negativeWordRe.MatchString(second.text)
		if firstNeg != secondNeg {
			if firstNeg {
				data["prompt"] = second.text
				data["negative_prompt"] = first.text
			} else {
				data["prompt"] = first.text
				data["negative_prompt"] = second.text
			}
		} else {
			// Heuristic matched zero or both: fall back to encounter order.
			data["prompt"] = first.text
			data["negative_prompt"] = second.text
		}

	case positive != nil && len(untagged) == 1:
		data["prompt"] = positive.text
		data["negative_prompt"] = untagged[0].text

	case negative != nil && len(untagged) == 1:
		data["prompt"] = untagged[0].text
		data["negative_prompt"] = negative.text

	case positive != nil:
		data["prompt"] = positive.text

	case negative != nil:
		data["negative_prompt"] = negative.text

	default:
		// 3+ untagged candidates: keep all of them, labeled by node id.
		sections := make([]string, len(candidates))
		for i, c := range candidates {
			sections[i] = fmt.Sprintf("[Node %s] %s", c.nodeID, c.text)
		}
		data["prompt"] = strings.Join(sections, "\n\n---\n\n")
	}
}

// formatLoras renders the LoRA list as a single display string.
func formatLoras(loras []loraEntry) string {
	parts := make([]string, len(loras))
	for i, l := range loras {
		parts[i] = fmt.Sprintf("%s (model: %s, clip: %s)",
			l.name, strengthString(l.strengthModel), strengthString(l.strengthClip))
	}
	return strings.Join(parts, ", ")
}

func strengthString(v interface{}) string {
	f, ok := toNumber(v)
	if !ok {
		return "N/A"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// normalizeGraph converts the untyped graph into nodes with string ids
// in a deterministic order (numeric ids sort numerically). Graphs key
// nodes inconsistently as strings or numbers, so everything funnels
// through one string-keyed form here.
func normalizeGraph(graph map[string]interface{}) []workflowNode {
	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})

	nodes := make([]workflowNode, 0, len(graph))
	for _, id := range ids {
		raw, ok := graph[id].(map[string]interface{})
		if !ok {
			continue
		}

		class, _ := raw["class_type"].(string)
		if class == "" {
			// Some exports use "type" instead of "class_type".
			class, _ = raw["type"].(string)
		}

		inputs, _ := raw["inputs"].(map[string]interface{})
		nodes = append(nodes, workflowNode{id: id, class: class, inputs: inputs})
	}
	return nodes
}

// inputRef interprets an input value as a [nodeID, outputIndex]
// reference and returns the referenced node id.
func inputRef(value interface{}) (string, bool) {
	ref, ok := value.([]interface{})
	if !ok || len(ref) != 2 {
		return "", false
	}

	switch id := ref[0].(type) {
	case string:
		return id, true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case int:
		return strconv.Itoa(id), true
	default:
		return "", false
	}
}

// literalString returns the value when it is a literal string input,
// not a node reference.
func literalString(value interface{}) (string, bool) {
	s, ok := value.(string)
	return s, ok
}

// setNumber stores a numeric input under key, discarding values that
// do not parse as numbers.
func setNumber(data map[string]interface{}, key string, value interface{}) {
	if f, ok := toNumber(value); ok {
		data[key] = f
	}
}

func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
