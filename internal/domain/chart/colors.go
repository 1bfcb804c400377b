package chart

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FallbackColor is used for plans missing from a color map.
const FallbackColor = "#6B7280"

// palette is assigned to plans in sorted order.
var palette = [...]string{
	"#14B8A6", "#F59E0B", "#6366F1", "#EC4899", "#22C55E",
	"#EF4444", "#3B82F6", "#A855F7", "#F97316", "#06B6D4",
	"#84CC16", "#E11D48", "#0EA5E9", "#D946EF", "#10B981",
	"#EAB308", "#8B5CF6", "#F43F5E", "#65A30D", "#0891B2",
}

// PlanColorMap assigns every plan a palette color. The same set of plans
// always gets the same colors.
func PlanColorMap(plans []string) map[string]string {
	sorted := append([]string(nil), plans...)
	sort.Strings(sorted)
	out := make(map[string]string, len(sorted))
	i := 0
	for _, p := range sorted {
		if _, ok := out[p]; ok {
			continue
		}
		out[p] = palette[i%len(palette)]
		i++
	}
	return out
}

// HexToRGBA converts #RRGGBB to an rgba() color string.
func HexToRGBA(hex string, opacity float64) (string, error) {
	h := strings.TrimPrefix(hex, "#")
	if len(h) != 6 {
		return "", fmt.Errorf("invalid hex color %q", hex)
	}
	var rgb [3]uint64
	for i := range rgb {
		v, err := strconv.ParseUint(h[i*2:i*2+2], 16, 8)
		if err != nil {
			return "", fmt.Errorf("invalid hex color %q: %w", hex, err)
		}
		rgb[i] = v
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", rgb[0], rgb[1], rgb[2],
		strconv.FormatFloat(opacity, 'f', -1, 64)), nil
}
