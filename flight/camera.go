package flight

import "gonum.org/v1/gonum/spatial/r3"

// Camera is the viewer the controller drives. Positions and directions are
// in render (relative) space.
type Camera interface {
	RelativePose() (position, direction r3.Vec)
	SetRelativePose(position, direction r3.Vec)
}

// SimpleCamera is a Camera that only stores its pose.
type SimpleCamera struct {
	Position  r3.Vec
	Direction r3.Vec
}

// NewSimpleCamera returns a camera at position looking along direction.
func NewSimpleCamera(position, direction r3.Vec) *SimpleCamera {
	return &SimpleCamera{Position: position, Direction: direction}
}

func (c *SimpleCamera) RelativePose() (r3.Vec, r3.Vec) {
	return c.Position, c.Direction
}

func (c *SimpleCamera) SetRelativePose(position, direction r3.Vec) {
	c.Position = position
	c.Direction = direction
}
