// Package layout positions floating layers, such as suggestion dropdowns,
// relative to the field they belong to.
package layout

// Rect is an axis-aligned rectangle in viewport pixels.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Bottom returns the Y coordinate of the lower edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Size is a width and height in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Placements.
const (
	Below = "below"
	Above = "above"
)

// Options tune Place.
type Options struct {
	// Gap separates the layer from its anchor.
	Gap int
	// Margin is kept free between the layer and the viewport edges.
	Margin int
	// MatchAnchorWidth widens the layer to at least the anchor width.
	MatchAnchorWidth bool
}

// DefaultOptions are used by dropdowns attached to text inputs.
var DefaultOptions = Options{Gap: 4, Margin: 8, MatchAnchorWidth: true}

// Layer is the computed position of a floating layer.
type Layer struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Width     int    `json:"width"`
	MaxHeight int    `json:"max_height"`
	Placement string `json:"placement"`
}

// Place computes where a layer of the given content size goes. It opens
// below the anchor unless the content does not fit there and there is more
// room above. The height is limited to the room on the chosen side and the
// layer is shifted horizontally to stay inside the viewport.
func Place(anchor Rect, content Size, viewport Size, opts Options) Layer {
	width := content.Width
	if opts.MatchAnchorWidth && anchor.Width > width {
		width = anchor.Width
	}
	width = max(min(width, viewport.Width-2*opts.Margin), 0)

	below := max(viewport.Height-anchor.Bottom()-opts.Gap-opts.Margin, 0)
	above := max(anchor.Y-opts.Gap-opts.Margin, 0)

	l := Layer{Width: width, X: clamp(anchor.X, opts.Margin, viewport.Width-opts.Margin-width)}
	if content.Height <= below || below >= above {
		l.Placement = Below
		l.MaxHeight = min(content.Height, below)
		l.Y = anchor.Bottom() + opts.Gap
		return l
	}

	l.Placement = Above
	l.MaxHeight = min(content.Height, above)
	l.Y = anchor.Y - opts.Gap - l.MaxHeight
	return l
}

// clamp limits v to [lo, hi]; lo wins when the range is empty.
func clamp(v, lo, hi int) int {
	if v > hi {
		v = hi
	}
	if v < lo {
		v = lo
	}
	return v
}
