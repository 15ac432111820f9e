package aimeta

import (
	"reflect"
	"testing"
)

func TestExtractGenerationDataNoRecognizedKeys(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]interface{}
	}{
		{
			name: "nil metadata",
			meta: nil,
		},
		{
			name: "empty metadata",
			meta: map[string]interface{}{},
		},
		{
			name: "unrelated keys",
			meta: map[string]interface{}{
				"Software":      "some editor",
				"Author":        "someone",
				"XML:com.adobe": "<x/>",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractGenerationData(tt.meta); got != nil {
				t.Errorf("ExtractGenerationData() = %v, want nil", got)
			}
		})
	}
}

func TestExtractGenerationDataParametersObject(t *testing.T) {
	params := map[string]interface{}{"prompt": "a cat", "steps": float64(20)}
	meta := map[string]interface{}{"parameters": params}

	got := ExtractGenerationData(meta)
	if !reflect.DeepEqual(got, params) {
		t.Errorf("ExtractGenerationData() = %v, want the parameters object verbatim", got)
	}
}

func TestExtractGenerationDataParametersJSONString(t *testing.T) {
	meta := map[string]interface{}{
		"parameters": `{"prompt": "a dog", "seed": 42}`,
	}

	got := ExtractGenerationData(meta)
	if got == nil {
		t.Fatalf("ExtractGenerationData() = nil, want decoded object")
	}
	if got["prompt"] != "a dog" {
		t.Errorf("prompt = %v, want a dog", got["prompt"])
	}
	if got["seed"] != float64(42) {
		t.Errorf("seed = %v, want 42", got["seed"])
	}
}

func TestExtractGenerationDataCapitalizedParameters(t *testing.T) {
	meta := map[string]interface{}{
		"Parameters": "a forest\nSteps: 20, Seed: 7",
	}

	got := ExtractGenerationData(meta)
	if got == nil {
		t.Fatalf("ExtractGenerationData() = nil, want parsed record")
	}
	if got["prompt"] != "a forest" {
		t.Errorf("prompt = %v, want a forest", got["prompt"])
	}
}

func TestExtractGenerationDataSwarmUIFallback(t *testing.T) {
	sui := map[string]interface{}{"prompt": "swarm prompt", "cfgscale": float64(7)}
	meta := map[string]interface{}{"sui_image_params": sui}

	got := ExtractGenerationData(meta)
	if !reflect.DeepEqual(got, sui) {
		t.Errorf("ExtractGenerationData() = %v, want sui_image_params verbatim", got)
	}
}

func TestExtractGenerationDataWorkflowWins(t *testing.T) {
	// A graph under "prompt" takes priority over the parameter chain.
	meta := map[string]interface{}{
		"prompt": `{
			"3": {"class_type": "CLIPTextEncode", "inputs": {"text": "a city at night"}}
		}`,
		"parameters": "other prompt\nSteps: 20, Seed: 1",
	}

	got := ExtractGenerationData(meta)
	if got == nil {
		t.Fatalf("ExtractGenerationData() = nil, want workflow result")
	}
	if got["prompt"] != "a city at night" {
		t.Errorf("prompt = %v, want the workflow prompt", got["prompt"])
	}
}

func TestExtractGenerationDataPlainStringPrompt(t *testing.T) {
	// A plain text "prompt" value is not a graph; it goes through the
	// A1111 parser instead.
	meta := map[string]interface{}{
		"prompt": "a lake\nNegative prompt: blurry\nSteps: 30, Seed: 9",
	}

	got := ExtractGenerationData(meta)
	if got == nil {
		t.Fatalf("ExtractGenerationData() = nil")
	}
	if got["prompt"] != "a lake" {
		t.Errorf("prompt = %v, want a lake", got["prompt"])
	}
	if got["negative_prompt"] != "blurry" {
		t.Errorf("negative_prompt = %v, want blurry", got["negative_prompt"])
	}
}

func TestExtractPrompt(t *testing.T) {
	tests := []struct {
		name string
		meta map[string]interface{}
		want string
	}{
		{
			name: "direct prompt field",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{"prompt": "a cat"},
			},
			want: "a cat",
		},
		{
			name: "capitalized Prompt field",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{"Prompt": "a dog"},
			},
			want: "a dog",
		},
		{
			name: "positive_prompt field",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{"positive_prompt": "a bird"},
			},
			want: "a bird",
		},
		{
			name: "nested sui prompt",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{
					"sui_image_params": map[string]interface{}{"prompt": "swarm"},
				},
			},
			want: "swarm",
		},
		{
			name: "fuzzy key scan skips negative",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{
					"negative_prompt_text": "bad stuff",
					"main_prompt_text":     "good stuff",
				},
			},
			want: "good stuff",
		},
		{
			name: "no prompt anywhere",
			meta: map[string]interface{}{
				"parameters": map[string]interface{}{"steps": float64(20)},
			},
			want: "",
		},
		{
			name: "no metadata at all",
			meta: map[string]interface{}{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractPrompt(tt.meta); got != tt.want {
				t.Errorf("ExtractPrompt() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParsePromptTags(t *testing.T) {
	tests := []struct {
		name   string
		prompt string
		want   []string
	}{
		{
			name:   "basic tags",
			prompt: "1girl, blue_eyes,  Long Hair",
			want:   []string{"1girl", "blue_eyes", "long_hair"},
		},
		{
			name:   "empty entries dropped",
			prompt: "a, , b,,c",
			want:   []string{"a", "b", "c"},
		},
		{
			name:   "whitespace runs collapsed",
			prompt: "looking   at  viewer",
			want:   []string{"looking_at_viewer"},
		},
		{
			name:   "duplicates preserved in order",
			prompt: "cat, dog, cat",
			want:   []string{"cat", "dog", "cat"},
		},
		{
			name:   "empty prompt",
			prompt: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePromptTags(tt.prompt)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParsePromptTags(%q) = %v, want %v", tt.prompt, got, tt.want)
			}
		})
	}
}

func TestAsWorkflowGraph(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		ok    bool
	}{
		{
			name:  "object with numeric keys",
			value: map[string]interface{}{"3": map[string]interface{}{}},
			ok:    true,
		},
		{
			name:  "object without numeric keys",
			value: map[string]interface{}{"prompt": "text"},
			ok:    false,
		},
		{
			name:  "JSON string graph",
			value: `{"7": {"class_type": "KSampler", "inputs": {}}}`,
			ok:    true,
		},
		{
			name:  "plain string",
			value: "just a prompt",
			ok:    false,
		},
		{
			name:  "invalid JSON",
			value: "{not json",
			ok:    false,
		},
		{
			name:  "nil value",
			value: nil,
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := asWorkflowGraph(tt.value)
			if ok != tt.ok {
				t.Errorf("asWorkflowGraph() ok = %v, want %v", ok, tt.ok)
			}
		})
	}
}
