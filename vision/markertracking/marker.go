package markertracking

import (
	"github.com/golang/geo/r3"

	"github.com/viam-labs/imagetarget/spatialmath"
)

// VirtualObject is content rendered on top of the marker. Offset places it in the marker frame.
type VirtualObject struct {
	Name    string
	Offset  r3.Vector
	Visible bool
	// Pose takes points of the object into the camera frame. Only meaningful while Visible.
	Pose *spatialmath.Pose
}

// Marker is a template together with the content anchored to it.
type Marker struct {
	Template *MarkerTemplate
	Visible  bool
	Pose     *spatialmath.Pose
	Content  []*VirtualObject
}

// NewMarker returns a hidden marker with no content.
func NewMarker(template *MarkerTemplate) *Marker {
	return &Marker{Template: template}
}

// Attach anchors a new object at offset in the marker frame.
func (m *Marker) Attach(name string, offset r3.Vector) *VirtualObject {
	obj := &VirtualObject{Name: name, Offset: offset}
	m.Content = append(m.Content, obj)
	return obj
}

func (m *Marker) hide() {
	m.Visible = false
	m.Pose = nil
	for _, obj := range m.Content {
		obj.Visible = false
		obj.Pose = nil
	}
}

func (m *Marker) show(pose *spatialmath.Pose) {
	m.Visible = true
	m.Pose = pose
	for _, obj := range m.Content {
		obj.Visible = true
		obj.Pose = spatialmath.NewPose(pose.Transform(obj.Offset), pose.Rotation)
	}
}
