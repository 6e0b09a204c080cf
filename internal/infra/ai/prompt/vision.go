package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
)

// VisionSystemPrompt asks for a strict JSON object covering the requested features.
func VisionSystemPrompt(features []domai.Feature) string {
	names := make([]string, 0, len(features))
	for _, f := range features {
		names = append(names, string(f))
	}
	return `You are an image classification service. You must produce one valid JSON object only (no markdown, no commentary). Do not include code fences.

Requirements:
- Confidence values are numbers between 0 and 1.
- Object and tag names are short lowercase English nouns or noun phrases.
- Only fill the sections that were requested: ` + strings.Join(names, ", ") + `.
- Report at most 20 objects and 30 tags.

Schema (example with empty values):
{
  "objects": [{"name": "<string>", "confidence": 0.0}],
  "tags": [{"name": "<string>", "confidence": 0.0}],
  "categories": [{"name": "<string>", "confidence": 0.0}],
  "dominant_colors": ["<string>"],
  "caption": "<string>",
  "caption_confidence": 0.0,
  "is_adult": false,
  "is_racy": false
}`
}

// VisionUserPrompt is the text part sent next to the image.
func VisionUserPrompt() string {
	return "Classify this photo and respond with the JSON per schema."
}

// ParseVision decodes a classifier answer and normalizes it.
func ParseVision(text string) (*domai.VisionResult, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, domai.ErrEmptyResponse
	}
	var out domai.VisionResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode vision answer: %w", err)
	}
	out.Objects = cleanDetections(out.Objects)
	out.Tags = cleanDetections(out.Tags)
	out.Categories = cleanDetections(out.Categories)
	out.CaptionConfidence = clamp01(out.CaptionConfidence)
	return &out, nil
}

// cleanDetections trims names, clamps confidences and drops blanks.
func cleanDetections(in []domai.Detection) []domai.Detection {
	out := make([]domai.Detection, 0, len(in))
	for _, d := range in {
		d.Name = strings.TrimSpace(d.Name)
		if d.Name == "" {
			continue
		}
		d.Confidence = clamp01(d.Confidence)
		out = append(out, d)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExtractJSON returns the outermost JSON object in s, tolerating code fences
// and prose around it. Returns "" when there is none.
func ExtractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return ""
}
