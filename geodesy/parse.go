package geodesy

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseCartographic reads "lon,lat[,height]" with angles in degrees and the
// optional height in metres.
func ParseCartographic(s string) (Cartographic, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 && len(parts) != 3 {
		return Cartographic{}, fmt.Errorf("parse cartographic %q: want lon,lat[,height]", s)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Cartographic{}, fmt.Errorf("parse cartographic %q: %w", s, err)
		}
		vals[i] = v
	}
	if vals[0] < -180 || vals[0] > 180 || vals[1] < -90 || vals[1] > 90 {
		return Cartographic{}, fmt.Errorf("parse cartographic %q: angle out of range", s)
	}
	return FromDegrees(vals[0], vals[1], vals[2]), nil
}

// ParseCartographicList reads semicolon-separated positions.
func ParseCartographicList(s string) ([]Cartographic, error) {
	var out []Cartographic
	for _, item := range strings.Split(s, ";") {
		if strings.TrimSpace(item) == "" {
			continue
		}
		c, err := ParseCartographic(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
