package animation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/platform/requestctx"
)

// ChromeOptions configure a liquid chrome surface seen through a mask.
// Unset fields keep the values from DefaultChrome when decoded over it.
type ChromeOptions struct {
	MaskImage      string  `yaml:"maskImage" json:"maskImage"`
	BaseColor      string  `yaml:"baseColor" json:"baseColor"`
	HighlightColor string  `yaml:"highlightColor" json:"highlightColor"`
	OverlayColor   string  `yaml:"overlayColor" json:"overlayColor"`
	Speed          float64 `yaml:"speed" json:"speed"`
	Amplitude      float64 `yaml:"amplitude" json:"amplitude"`
	ShadowColor    string  `yaml:"shadowColor" json:"shadowColor"`
	ShadowStrength float64 `yaml:"shadowIntensity" json:"shadowIntensity"`
	ShadowStart    float64 `yaml:"shadowStart" json:"shadowStart"`
	ShadowEnd      float64 `yaml:"shadowEnd" json:"shadowEnd"`
	ShadowCenterX  float64 `yaml:"shadowCenterX" json:"shadowCenterX"`
	ShadowCenterY  float64 `yaml:"shadowCenterY" json:"shadowCenterY"`
	ShadowWidth    float64 `yaml:"shadowWidth" json:"shadowWidth"`
	ShadowHeight   float64 `yaml:"shadowHeight" json:"shadowHeight"`
	ShadowFalloff  float64 `yaml:"shadowFalloff" json:"shadowFalloff"`
	Interactive    bool    `yaml:"interactive" json:"interactive"`
}

// DefaultChrome returns the stock chrome surface without a mask.
func DefaultChrome() ChromeOptions {
	return ChromeOptions{
		BaseColor:      "#FFFCF1",
		HighlightColor: "#F6B2B2",
		OverlayColor:   "var(--orchid-white)",
		Speed:          0.5,
		Amplitude:      0.4,
		ShadowColor:    "rgba(31, 15, 20, 1)",
		ShadowStrength: 0.4,
		ShadowStart:    50,
		ShadowEnd:      90,
		ShadowCenterX:  50,
		ShadowCenterY:  50,
		ShadowWidth:    60,
		ShadowHeight:   80,
		ShadowFalloff:  40,
	}
}

// ChromeSurface is the resolved layer stack of a masked chrome surface.
type ChromeSurface struct {
	Options        ChromeOptions `json:"options"`
	MaskURL        string        `json:"maskUrl"`
	ShadowColor    string        `json:"shadowColor"`
	ShadowGradient string        `json:"shadowGradient"`
}

var trailingAlpha = regexp.MustCompile(`[\d.]+\)$`)

// NewChromeSurface resolves the mask through assetURL and builds the shadow
// gradient. Without a mask image it logs a warning and reports ok=false, in
// which case nothing should be rendered.
func NewChromeSurface(ctx context.Context, opts ChromeOptions, assetURL func(context.Context, string) string) (ChromeSurface, bool) {
	if strings.TrimSpace(opts.MaskImage) == "" {
		requestctx.Logger(ctx).Warn("chrome surface: mask image is required")
		return ChromeSurface{}, false
	}

	maskURL := "/" + strings.TrimPrefix(opts.MaskImage, "/")
	if assetURL != nil {
		maskURL = assetURL(ctx, opts.MaskImage)
	}

	alpha := fmt.Sprintf("%g)", opts.ShadowStrength)
	shadow := fmt.Sprintf("rgba(31, 15, 20, %g)", opts.ShadowStrength)
	if strings.Contains(opts.ShadowColor, "rgba") {
		shadow = trailingAlpha.ReplaceAllLiteralString(opts.ShadowColor, alpha)
	}

	gradient := fmt.Sprintf(
		"radial-gradient(ellipse %g%% %g%% at %g%% %g%%, transparent %g%%, %s %g%%, %s %g%%)",
		opts.ShadowWidth, opts.ShadowHeight, opts.ShadowCenterX, opts.ShadowCenterY,
		opts.ShadowStart, shadow, opts.ShadowEnd, shadow, opts.ShadowEnd+opts.ShadowFalloff,
	)

	requestctx.Logger(ctx).Debug("chrome surface resolved", zap.String("mask", maskURL))
	return ChromeSurface{
		Options:        opts,
		MaskURL:        "url(" + maskURL + ")",
		ShadowColor:    shadow,
		ShadowGradient: gradient,
	}, true
}
