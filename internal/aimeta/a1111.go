package aimeta

import (
	"regexp"
	"strconv"
	"strings"
)

// metadataMarkers identify the trailing parameter line of an A1111
// block. A line must contain at least two of these (case-insensitive)
// to be treated as parameters rather than prompt text.
var metadataMarkers = []string{
	"steps:", "sampler:", "cfg scale:", "seed:",
	"size:", "model:", "model hash:", "clip skip:",
}

const negativePromptPrefix = "negative prompt:"

var (
	sizeRe = regexp.MustCompile(`(?i)size:\s*(\d+)\s*x\s*(\d+)`)
	// keyRe locates "Key:" positions on the parameter line, anchored at
	// the line start or a comma so commas inside values survive.
	keyRe    = regexp.MustCompile(`(?:^|,)\s*([A-Za-z][A-Za-z0-9 _-]*?)\s*:`)
	numberRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// parseA1111Parameters parses a free-text parameter block into a
// generation record. It never fails: when nothing is recognized the
// whole input comes back as the prompt.
func parseA1111Parameters(text string) (data map[string]interface{}) {
	data = make(map[string]interface{})

	defer func() {
		// A malformed block must not take the upload flow down with it.
		if r := recover(); r != nil || (len(data) == 0 && strings.TrimSpace(text) != "") {
			data = map[string]interface{}{"prompt": text}
		}
	}()

	var buf []string
	inNegative := false

	flush := func() {
		joined := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if joined == "" {
			return
		}
		if inNegative {
			data["negative_prompt"] = joined
		} else {
			data["prompt"] = joined
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if strings.HasPrefix(strings.ToLower(trimmed), negativePromptPrefix) {
			flush()
			inNegative = true
			if _, rest, ok := strings.Cut(trimmed, ":"); ok {
				if rest = strings.TrimSpace(rest); rest != "" {
					buf = append(buf, rest)
				}
			}
			continue
		}

		if isMetadataLine(trimmed) {
			flush()
			parseMetadataLine(trimmed, data)
			continue
		}

		buf = append(buf, trimmed)
	}
	flush()

	return data
}

// isMetadataLine reports whether a line carries the key/value
// parameter list. A single marker is not enough: "Steps: 20" alone is
// prompt text, "Steps: 20, Seed: 1" is parameters.
func isMetadataLine(line string) bool {
	lower := strings.ToLower(line)
	found := 0
	for _, marker := range metadataMarkers {
		if strings.Contains(lower, marker) {
			found++
			if found >= 2 {
				return true
			}
		}
	}
	return false
}

// parseMetadataLine splits the parameter line into key/value pairs.
func parseMetadataLine(line string, data map[string]interface{}) {
	// Size is special-cased first so the WxH value never reaches the
	// generic splitter.
	if m := sizeRe.FindStringSubmatchIndex(line); m != nil {
		sub := sizeRe.FindStringSubmatch(line)
		if w, err := strconv.Atoi(sub[1]); err == nil {
			data["width"] = int64(w)
		}
		if h, err := strconv.Atoi(sub[2]); err == nil {
			data["height"] = int64(h)
		}
		line = line[:m[0]] + line[m[1]:]
	}

	matches := keyRe.FindAllStringSubmatchIndex(line, -1)
	for i, m := range matches {
		key := strings.TrimSpace(line[m[2]:m[3]])
		key = strings.ToLower(strings.ReplaceAll(key, " ", "_"))
		if key == "" || key == "size" {
			continue
		}

		valueEnd := len(line)
		if i+1 < len(matches) {
			valueEnd = matches[i+1][0]
		}
		value := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[m[1]:valueEnd]), ","))
		if value == "" {
			continue
		}

		data[key] = coerceValue(value)
	}
}

// coerceValue turns pure integer/decimal values into numbers and keeps
// everything else as trimmed text.
func coerceValue(value string) interface{} {
	if !numberRe.MatchString(value) {
		return value
	}
	if strings.Contains(value, ".") {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return value
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	return value
}
