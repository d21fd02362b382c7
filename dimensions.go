package cardmaker

import (
	"fmt"
	"math"
)

// Render geometry constants.
const (
	// RenderScale is the device pixel ratio applied during capture so
	// 100 CSS px per inch lands on the 300 DPI print target.
	RenderScale = 3

	// TargetDPI is embedded into export PNG metadata.
	TargetDPI = 300

	// CSSPixelsPerInch is the base CSS px to inch ratio (1:1 layout scale).
	CSSPixelsPerInch = 100

	// MaxCardInches caps custom card dimensions.
	MaxCardInches = 6.0
)

// Default card dimensions (poker preset).
const (
	CardWidthInches  = 2.5
	CardHeightInches = 3.5
)

// Card size preset names.
const (
	PresetPoker  = "poker"
	PresetBridge = "bridge"
	PresetTarot  = "tarot"
	PresetCustom = "custom"
)

// cardSizePresets maps preset names to dimensions in inches.
var cardSizePresets = map[string]struct{ width, height float64 }{
	PresetPoker:  {2.5, 3.5},
	PresetBridge: {2.25, 3.5},
	PresetTarot:  {2.75, 4.75},
}

// ResolvedCardDimensions carries one card size across all unit systems.
type ResolvedCardDimensions struct {
	WidthInches  float64 `json:"widthInches"`
	HeightInches float64 `json:"heightInches"`
	WidthCSS     int     `json:"widthCss"`
	HeightCSS    int     `json:"heightCss"`
	WidthPx      int     `json:"widthPx"`
	HeightPx     int     `json:"heightPx"`
}

// ResolveCardDimensions converts a card size in inches to CSS px and output
// px at the render scale. If landscape is set and height exceeds width, the
// two are swapped before derivation.
func ResolveCardDimensions(widthInches, heightInches float64, landscape bool) ResolvedCardDimensions {
	w, h := widthInches, heightInches
	if landscape && h > w {
		w, h = h, w
	}
	return ResolvedCardDimensions{
		WidthInches:  w,
		HeightInches: h,
		WidthCSS:     int(math.Round(w * CSSPixelsPerInch)),
		HeightCSS:    int(math.Round(h * CSSPixelsPerInch)),
		WidthPx:      int(math.Round(w * CSSPixelsPerInch * RenderScale)),
		HeightPx:     int(math.Round(h * CSSPixelsPerInch * RenderScale)),
	}
}

// CardSizeSpec selects a card size by preset name or custom inches.
// The zero value resolves to the poker preset.
type CardSizeSpec struct {
	Preset       string  `json:"preset,omitempty"` // "poker", "bridge", "tarot", "custom"
	WidthInches  float64 `json:"widthInches,omitempty"`
	HeightInches float64 `json:"heightInches,omitempty"`
	Landscape    bool    `json:"landscape,omitempty"`
}

// Resolve validates the size selection and returns concrete dimensions.
// Landscape swap applies to preset sizes only; custom dimensions were
// chosen explicitly by the user and are taken verbatim.
func (s CardSizeSpec) Resolve() (ResolvedCardDimensions, error) {
	switch s.Preset {
	case "":
		return ResolveCardDimensions(CardWidthInches, CardHeightInches, s.Landscape), nil
	case PresetCustom:
		w, h := s.WidthInches, s.HeightInches
		if w <= 0 || h <= 0 {
			w, h = CardWidthInches, CardHeightInches
		}
		if w > MaxCardInches || h > MaxCardInches {
			return ResolvedCardDimensions{}, fmt.Errorf("%w: %.2fx%.2fin (max %.0fin)",
				ErrCardTooLarge, w, h, MaxCardInches)
		}
		return ResolveCardDimensions(w, h, false), nil
	default:
		preset, ok := cardSizePresets[s.Preset]
		if !ok {
			return ResolvedCardDimensions{}, fmt.Errorf("%w: %q", ErrUnknownPreset, s.Preset)
		}
		return ResolveCardDimensions(preset.width, preset.height, s.Landscape), nil
	}
}
