package imageproc

import (
	"bytes"
	"strings"
	"time"

	"github.com/bep/imagemeta"
)

// Exif is the subset of embedded metadata the analysis pipeline uses.
type Exif struct {
	DateTaken   *time.Time
	Latitude    *float64
	Longitude   *float64
	CameraMake  string
	CameraModel string
}

var wantedExif = map[string]bool{
	"Make":               true,
	"Model":              true,
	"DateTimeOriginal":   true,
	"OffsetTimeOriginal": true,
	"GPSLatitude":        true,
	"GPSLatitudeRef":     true,
	"GPSLongitude":       true,
	"GPSLongitudeRef":    true,
}

// ReadExif parses EXIF from raw image bytes.
// Returns nil when there is nothing usable; it never fails.
func ReadExif(data []byte) *Exif {
	if len(data) == 0 {
		return nil
	}

	var tags imagemeta.Tags
	_, err := imagemeta.Decode(imagemeta.Options{
		R:       bytes.NewReader(data),
		Sources: imagemeta.EXIF,
		ShouldHandleTag: func(ti imagemeta.TagInfo) bool {
			return wantedExif[ti.Tag]
		},
		HandleTag: func(ti imagemeta.TagInfo) error {
			tags.Add(ti)
			return nil
		},
	})
	if err != nil {
		return nil
	}

	out := &Exif{}
	found := false
	exif := tags.EXIF()
	if v, ok := exif["Make"]; ok {
		if s := strings.TrimSpace(tagValueString(v.Value)); s != "" {
			out.CameraMake = s
			found = true
		}
	}
	if v, ok := exif["Model"]; ok {
		if s := strings.TrimSpace(tagValueString(v.Value)); s != "" {
			out.CameraModel = s
			found = true
		}
	}
	if dt, err := tags.GetDateTime(); err == nil && !dt.IsZero() {
		out.DateTaken = &dt
		found = true
	}
	if lat, lon, err := tags.GetLatLong(); err == nil && (lat != 0 || lon != 0) {
		out.Latitude, out.Longitude = &lat, &lon
		found = true
	}

	if !found {
		return nil
	}
	return out
}

func tagValueString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case []string:
		if len(val) > 0 {
			return val[0]
		}
	}
	return ""
}
