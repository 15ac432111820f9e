package aimeta

import (
	"encoding/json"
	"strings"
	"testing"
)

// mustGraph decodes a JSON workflow the way file metadata arrives.
func mustGraph(t *testing.T, src string) map[string]interface{} {
	t.Helper()
	var graph map[string]interface{}
	if err := json.Unmarshal([]byte(src), &graph); err != nil {
		t.Fatalf("bad test graph: %v", err)
	}
	return graph
}

func TestParseComfyUIWorkflowSamplerReferences(t *testing.T) {
	graph := mustGraph(t, `{
		"1": {"class_type": "KSampler", "inputs": {
			"positive": ["3", 0], "negative": ["7", 0],
			"seed": 123, "steps": 20, "cfg": 7.5,
			"sampler_name": "euler", "scheduler": "normal", "denoise": 1.0
		}},
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cat"}},
		"7": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry, bad"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data == nil {
		t.Fatalf("parseComfyUIWorkflow() = nil")
	}

	if data["prompt"] != "a cat" {
		t.Errorf("prompt = %v, want a cat", data["prompt"])
	}
	if data["negative_prompt"] != "blurry, bad" {
		t.Errorf("negative_prompt = %v, want blurry, bad", data["negative_prompt"])
	}
	if data["seed"] != float64(123) {
		t.Errorf("seed = %v, want 123", data["seed"])
	}
	if data["steps"] != float64(20) {
		t.Errorf("steps = %v, want 20", data["steps"])
	}
	if data["cfg_scale"] != 7.5 {
		t.Errorf("cfg_scale = %v, want 7.5", data["cfg_scale"])
	}
	if data["sampler"] != "euler" {
		t.Errorf("sampler = %v, want euler", data["sampler"])
	}
	if data["scheduler"] != "normal" {
		t.Errorf("scheduler = %v, want normal", data["scheduler"])
	}
	if data["denoise"] != float64(1) {
		t.Errorf("denoise = %v, want 1", data["denoise"])
	}
}

func TestParseComfyUIWorkflowNumericNodeReferences(t *testing.T) {
	// Some exports reference nodes by number rather than string.
	graph := mustGraph(t, `{
		"1": {"class_type": "KSampler", "inputs": {"positive": [3, 0], "negative": [7, 0]}},
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cat"}},
		"7": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry, bad"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["prompt"] != "a cat" {
		t.Errorf("prompt = %v, want a cat", data["prompt"])
	}
	if data["negative_prompt"] != "blurry, bad" {
		t.Errorf("negative_prompt = %v, want blurry, bad", data["negative_prompt"])
	}
}

func TestParseComfyUIWorkflowSingleEncoder(t *testing.T) {
	graph := mustGraph(t, `{
		"5": {"class_type": "CLIPTextEncode", "inputs": {"text": "a sunset"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data == nil {
		t.Fatalf("parseComfyUIWorkflow() = nil")
	}
	if data["prompt"] != "a sunset" {
		t.Errorf("prompt = %v, want a sunset", data["prompt"])
	}
	if _, ok := data["negative_prompt"]; ok {
		t.Errorf("negative_prompt should not be set, got %v", data["negative_prompt"])
	}
}

func TestParseComfyUIWorkflowKeywordHeuristic(t *testing.T) {
	tests := []struct {
		name         string
		first        string
		second       string
		wantPrompt   string
		wantNegative string
	}{
		{
			name:         "second is negative",
			first:        "a majestic mountain",
			second:       "ugly, deformed hands",
			wantPrompt:   "a majestic mountain",
			wantNegative: "ugly, deformed hands",
		},
		{
			name:         "first is negative",
			first:        "worst quality, watermark",
			second:       "a calm ocean",
			wantPrompt:   "a calm ocean",
			wantNegative: "worst quality, watermark",
		},
		{
			name:         "neither matches falls back to order",
			first:        "a red apple",
			second:       "a green pear",
			wantPrompt:   "a red apple",
			wantNegative: "a green pear",
		},
		{
			name:         "both match falls back to order",
			first:        "blurry photograph",
			second:       "bad anatomy",
			wantPrompt:   "blurry photograph",
			wantNegative: "bad anatomy",
		},
		{
			name:         "whole word only",
			first:        "a badge collection",
			second:       "blurry shot",
			wantPrompt:   "a badge collection",
			wantNegative: "blurry shot",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graph := map[string]interface{}{
				"2": map[string]interface{}{
					"class_type": "CLIPTextEncode",
					"inputs":     map[string]interface{}{"text": tt.first},
				},
				"4": map[string]interface{}{
					"class_type": "CLIPTextEncode",
					"inputs":     map[string]interface{}{"text": tt.second},
				},
			}

			data := parseComfyUIWorkflow(graph)
			if data["prompt"] != tt.wantPrompt {
				t.Errorf("prompt = %v, want %v", data["prompt"], tt.wantPrompt)
			}
			if data["negative_prompt"] != tt.wantNegative {
				t.Errorf("negative_prompt = %v, want %v", data["negative_prompt"], tt.wantNegative)
			}
		})
	}
}

func TestParseComfyUIWorkflowPartialTagging(t *testing.T) {
	// Sampler identifies the positive encoder only; the one remaining
	// untagged encoder fills the negative slot.
	graph := mustGraph(t, `{
		"1": {"class_type": "KSampler", "inputs": {"positive": ["3", 0]}},
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "a castle"}},
		"9": {"class_type": "CLIPTextEncode", "inputs": {"text": "low resolution"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["prompt"] != "a castle" {
		t.Errorf("prompt = %v, want a castle", data["prompt"])
	}
	if data["negative_prompt"] != "low resolution" {
		t.Errorf("negative_prompt = %v, want low resolution", data["negative_prompt"])
	}
}

func TestParseComfyUIWorkflowManyUntagged(t *testing.T) {
	graph := mustGraph(t, `{
		"2": {"class_type": "CLIPTextEncode", "inputs": {"text": "first"}},
		"4": {"class_type": "CLIPTextEncode", "inputs": {"text": "second"}},
		"6": {"class_type": "CLIPTextEncode", "inputs": {"text": "third"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	prompt, ok := data["prompt"].(string)
	if !ok {
		t.Fatalf("prompt missing, got %v", data)
	}

	for _, want := range []string{"[Node 2] first", "[Node 4] second", "[Node 6] third"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt %q missing section %q", prompt, want)
		}
	}
	if strings.Index(prompt, "first") > strings.Index(prompt, "second") {
		t.Errorf("sections out of encounter order: %q", prompt)
	}
	if _, ok := data["negative_prompt"]; ok {
		t.Errorf("negative_prompt should not be set for the labeled fallback")
	}
}

func TestParseComfyUIWorkflowFirstSamplerWins(t *testing.T) {
	// Only the first sampler's references identify prompts; the second
	// sampler still contributes scalar settings.
	graph := mustGraph(t, `{
		"1": {"class_type": "KSampler", "inputs": {"positive": ["3", 0], "negative": ["7", 0], "steps": 20}},
		"2": {"class_type": "KSampler", "inputs": {"positive": ["7", 0], "negative": ["3", 0], "steps": 40}},
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "a cat"}},
		"7": {"class_type": "CLIPTextEncode", "inputs": {"text": "blurry mess"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["prompt"] != "a cat" {
		t.Errorf("prompt = %v, want a cat (from first sampler)", data["prompt"])
	}
	if data["steps"] != float64(40) {
		t.Errorf("steps = %v, want 40 (harvested from the later node)", data["steps"])
	}
}

func TestParseComfyUIWorkflowModelNodes(t *testing.T) {
	graph := mustGraph(t, `{
		"10": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": "sdxl_base.safetensors"}},
		"11": {"class_type": "VAELoader", "inputs": {"vae_name": "sdxl_vae.safetensors"}},
		"12": {"class_type": "EmptyLatentImage", "inputs": {"width": 1024, "height": 768, "batch_size": 2}},
		"13": {"class_type": "LoraLoader", "inputs": {"lora_name": "detail.safetensors", "strength_model": 0.8, "strength_clip": 0.6}},
		"14": {"class_type": "LoraLoader", "inputs": {"lora_name": "style.safetensors"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["checkpoint"] != "sdxl_base.safetensors" {
		t.Errorf("checkpoint = %v", data["checkpoint"])
	}
	if data["vae"] != "sdxl_vae.safetensors" {
		t.Errorf("vae = %v", data["vae"])
	}
	if data["width"] != float64(1024) || data["height"] != float64(768) {
		t.Errorf("dimensions = %vx%v, want 1024x768", data["width"], data["height"])
	}
	if data["batch_size"] != float64(2) {
		t.Errorf("batch_size = %v, want 2", data["batch_size"])
	}

	loras, ok := data["loras"].(string)
	if !ok {
		t.Fatalf("loras missing, got %v", data["loras"])
	}
	want := "detail.safetensors (model: 0.8, clip: 0.6), style.safetensors (model: N/A, clip: N/A)"
	if loras != want {
		t.Errorf("loras = %q, want %q", loras, want)
	}
}

func TestParseComfyUIWorkflowReferenceInputsIgnored(t *testing.T) {
	// A text input wired from another node is a reference, not a
	// literal; it must not become a prompt candidate. Same for a
	// checkpoint name routed through a reference.
	graph := mustGraph(t, `{
		"3": {"class_type": "CLIPTextEncode", "inputs": {"text": ["8", 0]}},
		"5": {"class_type": "CLIPTextEncode", "inputs": {"text": "real prompt"}},
		"10": {"class_type": "CheckpointLoaderSimple", "inputs": {"ckpt_name": ["9", 0]}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["prompt"] != "real prompt" {
		t.Errorf("prompt = %v, want real prompt", data["prompt"])
	}
	if _, ok := data["checkpoint"]; ok {
		t.Errorf("checkpoint should not be set from a reference input")
	}
}

func TestParseComfyUIWorkflowEmpty(t *testing.T) {
	tests := []struct {
		name  string
		graph map[string]interface{}
	}{
		{name: "empty graph", graph: map[string]interface{}{}},
		{
			name: "no recognized nodes",
			graph: map[string]interface{}{
				"1": map[string]interface{}{
					"class_type": "SaveImage",
					"inputs":     map[string]interface{}{"filename_prefix": "out"},
				},
			},
		},
		{
			name: "encoder with empty text",
			graph: map[string]interface{}{
				"1": map[string]interface{}{
					"class_type": "CLIPTextEncode",
					"inputs":     map[string]interface{}{"text": ""},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if data := parseComfyUIWorkflow(tt.graph); data != nil {
				t.Errorf("parseComfyUIWorkflow() = %v, want nil", data)
			}
		})
	}
}

func TestParseComfyUIWorkflowTypeKeyFallback(t *testing.T) {
	// Exports that use "type" instead of "class_type" still parse.
	graph := mustGraph(t, `{
		"5": {"type": "CLIPTextEncode", "inputs": {"text": "alt export"}}
	}`)

	data := parseComfyUIWorkflow(graph)
	if data["prompt"] != "alt export" {
		t.Errorf("prompt = %v, want alt export", data["prompt"])
	}
}
