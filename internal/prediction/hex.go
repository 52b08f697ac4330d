package prediction

import "github.com/example/smartfit/internal/models"

// DefaultSkinToneHex is returned for labels outside the known set.
const DefaultSkinToneHex = "#FFFFFF"

var skinToneHex = map[string]string{
	models.SkinToneLight:  "#F0D2B6",
	models.SkinToneMedium: "#C19A6B",
	models.SkinToneDark:   "#6B4423",
}

// SkinToneHex maps a skin tone label to its display colour.
func SkinToneHex(label string) string {
	if hex, ok := skinToneHex[label]; ok {
		return hex
	}
	return DefaultSkinToneHex
}
