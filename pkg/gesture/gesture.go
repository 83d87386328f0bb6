// Package gesture implements the per-gesture stepwise state machine and
// the catalogue that owns a collection of them. A Gesture is driven by
// time-stamped scalar observations from signalbus.Bus and decides, one
// step at a time, when the subject has performed the requested motion.
package gesture

import (
	"math/rand"
	"time"

	"github.com/2060-io/liveness-detector-go/pkg/signalbus"
)

// State is a Gesture's lifecycle state.
type State int

const (
	// StateIdle is the initial state: created, not accepting observations.
	StateIdle State = iota
	// StateArmed means the gesture is actively tracking progress.
	StateArmed
	// StateCompleted is terminal for the current run: the last step
	// completed and no further observations advance it.
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Config describes a Gesture at construction time. Exactly one of
// SubscribeIndex / SubscribeKey must be set.
type Config struct {
	ID                   string
	LabelKey             string
	BudgetMs             float64
	SubscribeIndex       *int
	SubscribeKey         string
	Sequence             []Step
	TakePictureAtEnd     bool
	RandomizeStepPicture bool
	IconPath             string

	// Rand seeds the per-step picture selection. When nil, each Gesture
	// gets its own process-seeded source.
	Rand *rand.Rand
}

// Gesture is a per-gesture, multi-step state machine. It is not
// internally synchronized: callers (the Catalogue, and above it the
// session server) are responsible for serializing access, per the
// engine's single coarse-lock concurrency model.
type Gesture struct {
	id                   string
	labelKey             string
	budgetMs             float64
	subscribeIndex       *int
	subscribeKey         string
	sequence             []Step
	currentIndex         int
	state                State
	startTime            time.Time
	takePictureAtEnd     bool
	randomizeStepPicture bool
	chosenPictureStep    *int
	iconPath             string

	pictureCallback func(stepIndex int)
	rng             *rand.Rand
}

// New constructs a Gesture in its idle state.
func New(cfg Config) *Gesture {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	g := &Gesture{
		id:                   cfg.ID,
		labelKey:             cfg.LabelKey,
		budgetMs:             cfg.BudgetMs,
		subscribeIndex:       cfg.SubscribeIndex,
		subscribeKey:         cfg.SubscribeKey,
		sequence:             cfg.Sequence,
		takePictureAtEnd:     cfg.TakePictureAtEnd,
		randomizeStepPicture: cfg.RandomizeStepPicture,
		iconPath:             cfg.IconPath,
		rng:                  rng,
	}
	g.selectRandomPictureStep()
	return g
}

// SetPictureCallback registers the callback invoked when a step (index
// >= 0) or the gesture's end (index == -1) requests a picture capture.
func (g *Gesture) SetPictureCallback(cb func(stepIndex int)) {
	g.pictureCallback = cb
}

// ID returns the gesture's configuration identifier.
func (g *Gesture) ID() string { return g.id }

// LabelKey returns the translation-key fragment for this gesture.
func (g *Gesture) LabelKey() string { return g.labelKey }

// BudgetMs returns the recommended maximum time for this gesture.
func (g *Gesture) BudgetMs() float64 { return g.budgetMs }

// IconPath returns the configured icon path, if any.
func (g *Gesture) IconPath() string { return g.iconPath }

// SubscribeIndex returns the numeric signal index this gesture
// subscribes to, or nil if it subscribes by key.
func (g *Gesture) SubscribeIndex() *int { return g.subscribeIndex }

// SubscribeKey returns the signal key this gesture subscribes to, or ""
// if it subscribes by index.
func (g *Gesture) SubscribeKey() string { return g.subscribeKey }

// State returns the current lifecycle state.
func (g *Gesture) State() State { return g.state }

// CurrentIndex returns the index of the step currently in progress.
// It ranges from 0 to len(sequence) inclusive; equal to len(sequence)
// means the gesture completed.
func (g *Gesture) CurrentIndex() int { return g.currentIndex }

// StartTime returns the timestamp used by TimeoutAfterMs reset rules.
func (g *Gesture) StartTime() time.Time { return g.startTime }

// TakePictureAtEnd reports the gesture-level end-of-run picture flag.
func (g *Gesture) TakePictureAtEnd() bool { return g.takePictureAtEnd }

// Start arms the gesture: resets progress to step 0 and begins
// accepting observations.
func (g *Gesture) Start(now time.Time) {
	g.resetProgress(now)
	g.state = StateArmed
}

// Stop disarms the gesture. Subsequent observations are ignored until
// Start is called again.
func (g *Gesture) Stop() {
	g.state = StateIdle
}

// Reset rolls progress back to step 0 without changing whether the
// gesture is armed or idle.
func (g *Gesture) Reset(now time.Time) {
	g.resetProgress(now)
}

func (g *Gesture) resetProgress(now time.Time) {
	g.currentIndex = 0
	g.startTime = now
	for i := range g.sequence {
		g.sequence[i].clearBandTimer()
	}
	g.selectRandomPictureStep()
}

func (g *Gesture) selectRandomPictureStep() {
	g.chosenPictureStep = nil
	if !g.randomizeStepPicture {
		return
	}
	var candidates []int
	for i, step := range g.sequence {
		if step.TakePictureAtEnd {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return
	}
	idx := candidates[g.rng.Intn(len(candidates))]
	g.chosenPictureStep = &idx
}

// subscribed reports whether the observation is addressed to this
// gesture's subscription.
func (g *Gesture) subscribed(s signalbus.Signal) bool {
	if g.subscribeIndex != nil {
		return s.Index != nil && *s.Index == *g.subscribeIndex
	}
	return s.Key != "" && s.Key == g.subscribeKey
}

// Update applies one observation. It returns true iff this call
// completed the gesture's final step.
func (g *Gesture) Update(s signalbus.Signal) bool {
	if g.state != StateArmed {
		return false
	}
	if g.currentIndex >= len(g.sequence) {
		return false
	}
	if !g.subscribed(s) {
		return false
	}

	step := &g.sequence[g.currentIndex]
	if step.completes(s.Value, s.At) {
		g.fireStepPicture(step)
		step.clearBandTimer()

		if g.currentIndex == 0 {
			g.startTime = s.At
		}
		g.currentIndex++

		if g.currentIndex >= len(g.sequence) {
			g.state = StateCompleted
			if g.takePictureAtEnd && g.pictureCallback != nil {
				g.pictureCallback(-1)
			}
			return true
		}
		return false
	}

	if step.checkReset(s.Value, s.At, g.startTime) {
		g.Reset(s.At)
	}
	return false
}

func (g *Gesture) fireStepPicture(step *Step) {
	trigger := false
	if g.randomizeStepPicture {
		trigger = g.chosenPictureStep != nil && *g.chosenPictureStep == g.currentIndex
	} else {
		trigger = step.TakePictureAtEnd
	}
	if trigger && g.pictureCallback != nil {
		g.pictureCallback(g.currentIndex)
	}
}
