package game

import (
	"math"
)

// Ball is the ball's kinematic state. Velocity is per tick.
type Ball struct {
	X, Y   float64
	VX, VY float64
}

// Speed is the velocity magnitude.
func (b Ball) Speed() float64 {
	return math.Hypot(b.VX, b.VY)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

type rect struct {
	x, y, w, h float64
}

func paddleRect(side Side, y float64) rect {
	x := PaddleMargin
	if side == SideRight {
		x = FieldWidth - PaddleMargin - PaddleWidth
	}
	return rect{x: x, y: y, w: PaddleWidth, h: PaddleHeight}
}

// overlaps tests the ball's bounding box against the paddle; both axes must intersect.
func (r rect) overlaps(b Ball) bool {
	overlapX := b.X+BallRadius > r.x && b.X-BallRadius < r.x+r.w
	overlapY := b.Y+BallRadius > r.y && b.Y-BallRadius < r.y+r.h
	return overlapX && overlapY
}

// movePaddle applies the held-direction flags for one tick and clamps to the field.
func movePaddle(y float64, up, down bool) float64 {
	if up {
		y -= PaddleSpeed
	}
	if down {
		y += PaddleSpeed
	}
	return clamp(y, 0, FieldHeight-PaddleHeight)
}

func paddleStartY() float64 {
	return (FieldHeight - PaddleHeight) / 2
}

// center parks the ball in the middle of the field with zero velocity.
func (b *Ball) center() {
	b.X = FieldWidth / 2
	b.Y = FieldHeight / 2
	b.VX = 0
	b.VY = 0
}

// launch serves from the center at BallSpeed. direction is +1 (rightward) or -1;
// angle is in radians within ±serveMaxAngle.
func (b *Ball) launch(direction int, angle float64) {
	b.X = FieldWidth / 2
	b.Y = FieldHeight / 2
	b.VX = math.Cos(angle) * BallSpeed * float64(direction)
	b.VY = math.Sin(angle) * BallSpeed
}

// bounceWalls reflects vertical velocity on top/bottom contact.
func (b *Ball) bounceWalls() {
	if b.Y-BallRadius < 0 || b.Y+BallRadius > FieldHeight {
		b.VY = -b.VY
		b.Y = clamp(b.Y, BallRadius, FieldHeight-BallRadius)
	}
}

// deflect handles a paddle hit. The contact offset from the paddle center picks the
// outgoing direction (±1, offset); the vector is then scaled to the sped-up speed,
// capped at BallMaxSpeed. Because of that rescale the vertical component is
// offset*speed/hypot(1, offset) rather than offset*speed: edge hits leave flatter
// than a raw offset*speed would, and |v| never exceeds BallMaxSpeed.
func (b *Ball) deflect(side Side, paddleY float64) {
	r := paddleRect(side, paddleY)
	center := paddleY + PaddleHeight/2
	offset := clamp((b.Y-center)/(PaddleHeight/2), -1, 1)

	speed := math.Min(b.Speed()*BallSpeedup, BallMaxSpeed)
	dirX := 1.0
	if side == SideRight {
		dirX = -1.0
	}
	norm := math.Hypot(1, offset)
	b.VX = dirX * speed / norm
	b.VY = offset * speed / norm

	if side == SideLeft {
		b.X = r.x + r.w + BallRadius
	} else {
		b.X = r.x - BallRadius
	}
}

// collidePaddles deflects the ball off whichever paddle it is travelling toward.
func (b *Ball) collidePaddles(leftY, rightY float64) bool {
	if b.VX < 0 && paddleRect(SideLeft, leftY).overlaps(*b) {
		b.deflect(SideLeft, leftY)
		return true
	}
	if b.VX > 0 && paddleRect(SideRight, rightY).overlaps(*b) {
		b.deflect(SideRight, rightY)
		return true
	}
	return false
}

// exited reports the side whose goal line the ball fully crossed.
func (b Ball) exited() (Side, bool) {
	if b.X+BallRadius < 0 {
		return SideLeft, true
	}
	if b.X-BallRadius > FieldWidth {
		return SideRight, true
	}
	return 0, false
}
