//go:build cgo
// +build cgo

// Package faceproc defines the face-processor collaborator boundary: the
// engine treats face detection, landmark extraction, and blendshape
// computation as an opaque, delegated concern (see the engine's stated
// non-goals) and only consumes the named-scalar signals a Processor
// produces. This package also ships a deterministic synthetic backend
// for exercising the rest of the engine without a real ML model.
package faceproc

import (
	"errors"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/2060-io/liveness-detector-go/pkg/overlay"
)

// ErrEmptyFrame is returned when Process is called with an empty frame.
var ErrEmptyFrame = errors.New("faceproc: empty frame")

// Observation is one frame's worth of extracted facial signals: the
// normalized face bounding box (for overlay presentation) and the named
// scalar values (blendshape activations, head-pose components) that
// should be pushed onto the signal bus.
type Observation struct {
	Box     *overlay.FaceBox
	Signals map[string]float64
	At      time.Time
}

// Processor decodes one frame and extracts an Observation. A Processor
// is not responsible for dispatching signals onto the bus itself — the
// session server owns that so every signal carries one consistent
// timestamp and is serialized against the orchestrator's state.
type Processor interface {
	Process(frame gocv.Mat) (Observation, error)
	Close() error
}

// SyntheticProcessor is a deterministic, model-free stand-in for a real
// face-landmark extractor. It derives a plausible, slowly oscillating
// set of blendshape and head-pose values from the frame index and pixel
// statistics alone, which is enough to exercise the gesture and
// challenge machinery end to end without a real model in the loop.
type SyntheticProcessor struct {
	frameIndex int
}

// NewSyntheticProcessor constructs a SyntheticProcessor.
func NewSyntheticProcessor() *SyntheticProcessor {
	return &SyntheticProcessor{}
}

// Process returns an Observation derived from the frame's average
// brightness and a monotonically advancing phase, so that repeated
// calls sweep every oscillating signal through its full range over
// time; "brightness" follows the frame's pixels instead.
func (p *SyntheticProcessor) Process(frame gocv.Mat) (Observation, error) {
	if frame.Empty() {
		return Observation{}, ErrEmptyFrame
	}

	mean := gocv.NewMat()
	defer mean.Close()
	stddev := gocv.NewMat()
	defer stddev.Close()
	gocv.MeanStdDev(frame, &mean, &stddev)
	brightness := meanFirstChannel(mean) / 255.0

	phase := float64(p.frameIndex) * 0.05
	p.frameIndex++

	signals := map[string]float64{
		"eyeBlinkLeft":  oscillate(phase, 0.0),
		"eyeBlinkRight": oscillate(phase, 0.0),
		"mouthSmile":    oscillate(phase, math.Pi/3),
		"jawOpen":       oscillate(phase, math.Pi/2),
		"headYaw":       oscillateSigned(phase, math.Pi),
		"headPitch":     oscillateSigned(phase, 3*math.Pi/2),
		"brightness":    brightness,
	}

	box := &overlay.FaceBox{Top: 0.2, Left: 0.3, Right: 0.7, Bottom: 0.8}

	return Observation{Box: box, Signals: signals, At: time.Now()}, nil
}

// Close releases no resources; it satisfies Processor for symmetry with
// backends that do own native handles.
func (p *SyntheticProcessor) Close() error { return nil }

// oscillate maps a phase (plus offset) into [0, 1] via (sin+1)/2.
func oscillate(phase, offset float64) float64 {
	return (math.Sin(phase+offset) + 1) / 2
}

// oscillateSigned maps a phase (plus offset) into [-1, 1].
func oscillateSigned(phase, offset float64) float64 {
	return math.Sin(phase + offset)
}

func meanFirstChannel(mean gocv.Mat) float64 {
	if mean.Empty() || mean.Rows() == 0 {
		return 0
	}
	return mean.GetDoubleAt(0, 0)
}
