package markertracking

import (
	"fmt"
	"image"
	"image/color"

	"github.com/viam-labs/imagetarget/rimage"
)

// OverlayOptions selects which debug annotations DrawOverlay renders.
type OverlayOptions struct {
	Rect bool `json:"draw_rect"`
	Axis bool `json:"draw_axis"`
	// Status prints the mode and outcome in the top left corner.
	Status bool `json:"draw_status"`
}

var (
	rectColor   = color.RGBA{R: 255, A: 255}
	xAxisColor  = color.RGBA{R: 255, A: 255}
	yAxisColor  = color.RGBA{G: 255, A: 255}
	zAxisColor  = color.RGBA{B: 255, A: 255}
	statusColor = color.RGBA{R: 255, G: 255, A: 255}
)

// DrawOverlay returns a color copy of frame with the marker outline and pose axes of res drawn on it.
func DrawOverlay(frame *image.Gray, res *FrameResult, opts OverlayOptions) image.Image {
	dc := rimage.NewContextFromGray(frame)
	if res == nil {
		return dc.Image()
	}
	if opts.Rect && len(res.Quad) == 4 {
		rimage.DrawPolygonEmpty(dc, res.Quad, rectColor, 2)
	}
	if opts.Axis && res.Visible && len(res.AxisPoints) == 4 {
		origin := res.AxisPoints[0]
		rimage.DrawSegment(dc, origin, res.AxisPoints[1], xAxisColor, 3)
		rimage.DrawSegment(dc, origin, res.AxisPoints[2], yAxisColor, 3)
		rimage.DrawSegment(dc, origin, res.AxisPoints[3], zAxisColor, 3)
	}
	if opts.Status {
		rimage.DrawString(dc, fmt.Sprintf("%s: %s", res.Mode, res.Outcome), image.Pt(8, 8), statusColor, 16)
	}
	return dc.Image()
}
