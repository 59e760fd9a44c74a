package scene

import (
	"fmt"

	"github.com/talgya/gearworks/internal/gear"
)

// DisplayStyle selects filled or stroked gears.
type DisplayStyle string

const (
	StyleFlat    DisplayStyle = "flat"
	StyleOutline DisplayStyle = "outline"
)

// TeethSize selects the tooth pitch when teeth are shown.
type TeethSize string

const (
	TeethSmall  TeethSize = "small"
	TeethMedium TeethSize = "medium"
	TeethLarge  TeethSize = "large"
)

// Params holds the user-facing controls. A copy is handed to the scene on
// every frame; nothing reads them from global state.
type Params struct {
	RotationSpeed float64      `yaml:"rotation_speed" json:"rotation_speed"`
	Shape         Shape        `yaml:"shape" json:"shape"`
	ShiftCenter   bool         `yaml:"shift_center" json:"shift_center"`
	DisplayStyle  DisplayStyle `yaml:"display_style" json:"display_style"`
	ShowRays      bool         `yaml:"show_rays" json:"show_rays"`
	ShowTeeth     bool         `yaml:"show_teeth" json:"show_teeth"`
	TeethSize     TeethSize    `yaml:"teeth_size" json:"teeth_size"`
}

// DefaultParams returns the controls as they are on a fresh start.
func DefaultParams() Params {
	return Params{
		RotationSpeed: 1,
		Shape:         ShapeEllipse,
		DisplayStyle:  StyleFlat,
		TeethSize:     TeethMedium,
	}
}

// EffectiveShape applies ShiftCenter to the selected shape.
func (p Params) EffectiveShape() Shape {
	if p.ShiftCenter {
		return p.Shape.Shifted()
	}
	return p.Shape
}

// SurfaceType maps the teeth controls to the outline gears are drawn with.
func (p Params) SurfaceType() gear.SurfaceType {
	if !p.ShowTeeth {
		return gear.Smooth
	}
	switch p.TeethSize {
	case TeethSmall:
		return gear.TeethSmall
	case TeethLarge:
		return gear.TeethLarge
	}
	return gear.TeethMedium
}

// Validate rejects unknown enumerated values.
func (p Params) Validate() error {
	if _, err := ParseShape(string(p.Shape)); err != nil {
		return err
	}
	switch p.DisplayStyle {
	case StyleFlat, StyleOutline:
	default:
		return fmt.Errorf("unknown display style %q", p.DisplayStyle)
	}
	switch p.TeethSize {
	case TeethSmall, TeethMedium, TeethLarge:
	default:
		return fmt.Errorf("unknown teeth size %q", p.TeethSize)
	}
	return nil
}
