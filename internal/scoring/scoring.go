/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package scoring converts a normalized aim vector into a dartboard zone
// and score.
//
// The phone reports aim as two components in [-1, 1]. The display renders
// the board in a perspective scene, so the aim is projected onto the board
// plane with the same camera parameters before the distance from the bull
// is compared against the ring thresholds.
package scoring

import (
	"encoding/json"
	"math"
)

// Zone is a scoring region of the board.
type Zone int

const (
	Miss Zone = iota
	Single
	Double
	Triple
	Bull
)

const (
	// CameraZ and PlaneZ place the camera and the board along the view axis.
	CameraZ = 20.0
	PlaneZ  = 0.0
	// FOV is the vertical field of view of the display camera, in degrees.
	FOV = 45.0

	// DefaultRadius is the radius of the outer double ring in scene units.
	DefaultRadius = 8.1054
)

var zoneNames = map[Zone]string{
	Miss:   "MISS",
	Single: "SINGLE",
	Double: "DOUBLE",
	Triple: "TRIPLE",
	Bull:   "BULL",
}

var zoneScores = map[Zone]int{
	Miss:   0,
	Single: 10,
	Double: 20,
	Triple: 30,
	Bull:   50,
}

// thresholds are evaluated in order; the first bound the ratio does not
// exceed wins.
var thresholds = []struct {
	max  float64
	zone Zone
}{
	{0.08, Bull},
	{0.47, Single},
	{0.54, Triple},
	{0.93, Single},
	{1.00, Double},
}

func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}
	return "UNKNOWN"
}

// Points returns the fixed score for the zone.
func (z Zone) Points() int {
	return zoneScores[z]
}

// Aim is a normalized aim vector as reported by a controller.
type Aim struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// UnmarshalJSON decodes an aim leniently: a component that is missing or
// not a number is 0, and a value that is not an object is {0, 0}.
func (a *Aim) UnmarshalJSON(data []byte) error {
	*a = Aim{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}

	a.X = component(raw["x"])
	a.Y = component(raw["y"])

	return nil
}

func component(data json.RawMessage) float64 {
	var v float64
	if len(data) == 0 || json.Unmarshal(data, &v) != nil {
		return 0
	}
	return v
}

// Clamp returns the aim with both components limited to [-1, 1].
// NaN components become 0.
func (a Aim) Clamp() Aim {
	return Aim{X: clamp(a.X), Y: clamp(a.Y)}
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < -1:
		return -1
	case v > 1:
		return 1
	}
	return v
}

// Scale is the perspective factor applied to both aim components.
func Scale() float64 {
	return (CameraZ - PlaneZ) * math.Tan(FOV*math.Pi/360)
}

// Project maps a clamped aim onto the board plane.
func Project(a Aim) (float64, float64) {
	c := a.Clamp()
	s := Scale()
	return c.X * s, c.Y * s
}

// ZoneFor returns the zone hit by the given distance ratio.
func ZoneFor(ratio float64) Zone {
	for _, t := range thresholds {
		if ratio <= t.max {
			return t.zone
		}
	}
	return Miss
}

// Score returns the zone and points for an aim. A nil aim is a miss.
// A radius of zero or less uses DefaultRadius.
func Score(aim *Aim, radius float64) (Zone, int) {
	if aim == nil {
		return Miss, 0
	}
	if radius <= 0 || math.IsNaN(radius) {
		radius = DefaultRadius
	}

	x, y := Project(*aim)
	zone := ZoneFor(math.Hypot(x, y) / radius)

	return zone, zone.Points()
}
