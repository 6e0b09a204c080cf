package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	domai "github.com/bryanwahyu/photo-tagger/internal/domain/ai"
)

// DescriberSystemPrompt provides strict directions and schema for the semantic describer.
func DescriberSystemPrompt(opts domai.DescribeOptions) string {
	history := "Do not add historical background."
	if opts.IncludeHistoricalContext {
		history = "Mention relevant historical background in the description."
	}
	return `You are a photo librarian. You receive a photo plus context gathered by other services (EXIF data, an image classifier and nearby places). Produce one valid JSON object only (no markdown, no commentary).

Requirements:
- suggested_tags: 3 to 15 short English tags that describe the photo, most relevant first.
- is_tourist_spot: true only if the photo clearly shows a known landmark or attraction.
- spot_name: the landmark name when is_tourist_spot is true, otherwise "".
- confidence: one number between 0 and 1 for the whole answer.
- description: one or two sentences. ` + history + `

Schema (example with empty values):
{
  "suggested_tags": ["<string>"],
  "is_tourist_spot": false,
  "spot_name": "<string>",
  "confidence": 0.0,
  "description": "<string>"
}`
}

// DescriberUserPrompt renders the capture context next to the image.
func DescriberUserPrompt(in domai.DescribeContext) string {
	var b strings.Builder
	b.WriteString("Describe this photo and respond with the JSON per schema.\n")

	if in.Exif.DateTaken != nil {
		fmt.Fprintf(&b, "\nTaken at: %s", in.Exif.DateTaken.Format("2006-01-02 15:04"))
	}
	if in.Exif.Latitude != nil && in.Exif.Longitude != nil {
		fmt.Fprintf(&b, "\nGPS: %.6f, %.6f", *in.Exif.Latitude, *in.Exif.Longitude)
	}
	if in.Exif.CameraInfo != "" {
		fmt.Fprintf(&b, "\nCamera: %s", in.Exif.CameraInfo)
	}

	if v := in.Vision; v != nil {
		if v.Caption != "" {
			fmt.Fprintf(&b, "\n\nClassifier caption: %s", v.Caption)
		}
		if names := detectionNames(v.Objects, 10); names != "" {
			fmt.Fprintf(&b, "\nDetected objects: %s", names)
		}
		if names := detectionNames(v.Tags, 15); names != "" {
			fmt.Fprintf(&b, "\nClassifier tags: %s", names)
		}
	}

	if len(in.Places) > 0 {
		b.WriteString("\n\nNearby places:")
		for i, p := range in.Places {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "\n- %s (%.0f m", p.Name, p.DistanceMeters)
			if len(p.Types) > 0 {
				fmt.Fprintf(&b, ", %s", strings.Join(p.Types, "/"))
			}
			b.WriteString(")")
		}
	}
	return b.String()
}

func detectionNames(list []domai.Detection, n int) string {
	names := make([]string, 0, n)
	for _, d := range list {
		if len(names) == n {
			break
		}
		names = append(names, fmt.Sprintf("%s (%.2f)", d.Name, d.Confidence))
	}
	return strings.Join(names, ", ")
}

// ParseSemantic decodes a describer answer. Tags are trimmed and deduplicated.
func ParseSemantic(text string) (*domai.SemanticResult, error) {
	raw := ExtractJSON(text)
	if raw == "" {
		return nil, domai.ErrEmptyResponse
	}
	var out domai.SemanticResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode describer answer: %w", err)
	}
	seen := make(map[string]struct{}, len(out.SuggestedTags))
	tags := make([]string, 0, len(out.SuggestedTags))
	for _, t := range out.SuggestedTags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		tags = append(tags, t)
	}
	out.SuggestedTags = tags
	out.SpotName = strings.TrimSpace(out.SpotName)
	if out.SpotName == "" {
		out.IsTouristSpot = false
	}
	out.Confidence = clamp01(out.Confidence)
	return &out, nil
}
