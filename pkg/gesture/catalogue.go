package gesture

import (
	"encoding/json"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/2060-io/liveness-detector-go/pkg/signalbus"
)

// AddResult summarizes the outcome of loading one gesture definition.
type AddResult struct {
	Success          bool
	ID               string
	Label            string
	IconPath         string
	BudgetMs         float64
	TakePictureAtEnd bool
}

// Catalogue owns an ordered, heterogeneous collection of Gesture state
// machines and routes signals to the subset subscribed to each one.
//
// Catalogue is not internally synchronized; the session server's single
// coarse mutex (see pkg/session) serializes every call into it.
type Catalogue struct {
	gestures []*Gesture
	onDetect func(labelKey string)
	randSeed func() *rand.Rand
}

// NewCatalogue creates an empty catalogue. randSeed, if non-nil, is
// used to obtain a fresh RNG for every loaded gesture — the seam tests
// use to get deterministic step-picture selection.
func NewCatalogue(randSeed func() *rand.Rand) *Catalogue {
	return &Catalogue{randSeed: randSeed}
}

func (c *Catalogue) newRand() *rand.Rand {
	if c.randSeed != nil {
		return c.randSeed()
	}
	return nil // Gesture.New falls back to a process-seeded source.
}

// Add appends an already-constructed Gesture to the catalogue.
func (c *Catalogue) Add(g *Gesture) {
	c.gestures = append(c.gestures, g)
}

// Gestures returns the catalogue's members in insertion order.
func (c *Catalogue) Gestures() []*Gesture {
	out := make([]*Gesture, len(c.gestures))
	copy(out, c.gestures)
	return out
}

// GestureByLabel returns the first gesture whose label key matches, or
// nil if none does.
func (c *Catalogue) GestureByLabel(label string) *Gesture {
	for _, g := range c.gestures {
		if g.LabelKey() == label {
			return g
		}
	}
	return nil
}

// SetOnDetected registers the callback invoked, in insertion order, the
// first time a gesture's Update call completes its sequence.
func (c *Catalogue) SetOnDetected(cb func(labelKey string)) {
	c.onDetect = cb
}

// HandleSignal dispatches one signal from the signal bus to the
// matching subset of armed gestures, routing by whichever addressing
// scheme (index or key) the signal itself carries. It is the
// catalogue's signalbus.Handler: subscribe it directly on a Bus to
// wire the catalogue as the bus's sole consumer.
func (c *Catalogue) HandleSignal(s signalbus.Signal) {
	if s.Index != nil {
		c.ProcessSignalByIndex(s)
		return
	}
	for _, g := range c.gestures {
		if g.State() != StateArmed || g.SubscribeKey() == "" || g.SubscribeKey() != s.Key {
			continue
		}
		if g.Update(s) {
			c.notifyDetected(g)
		}
	}
}

// ProcessSignalByIndex dispatches one index-addressed observation to
// every armed gesture subscribed by that index, in insertion order. Every
// gesture whose Update call returns true triggers on_detected, in that
// same order.
func (c *Catalogue) ProcessSignalByIndex(s signalbus.Signal) {
	for _, g := range c.gestures {
		if g.State() != StateArmed || g.SubscribeIndex() == nil {
			continue
		}
		if g.Update(s) {
			c.notifyDetected(g)
		}
	}
}

// ProcessSignalsByKey dispatches a batch of key-addressed observations
// (one lookup per armed, key-subscribed gesture) sharing one timestamp.
func (c *Catalogue) ProcessSignalsByKey(values map[string]float64, at time.Time) {
	for _, g := range c.gestures {
		if g.State() != StateArmed {
			continue
		}
		key := g.SubscribeKey()
		if key == "" {
			continue
		}
		value, ok := values[key]
		if !ok {
			continue
		}
		if g.Update(signalbus.ByKey(key, value, at)) {
			c.notifyDetected(g)
		}
	}
}

func (c *Catalogue) notifyDetected(g *Gesture) {
	if c.onDetect != nil {
		c.onDetect(g.LabelKey())
	}
}

// StartAll arms every gesture. Returns false iff the catalogue is empty.
func (c *Catalogue) StartAll(now time.Time) bool {
	for _, g := range c.gestures {
		g.Start(now)
	}
	return len(c.gestures) > 0
}

// StartByLabel arms the first gesture whose label key matches.
func (c *Catalogue) StartByLabel(label string, now time.Time) bool {
	for _, g := range c.gestures {
		if g.LabelKey() == label {
			g.Start(now)
			return true
		}
	}
	return false
}

// StartByIndex arms the gesture at the given catalogue position.
func (c *Catalogue) StartByIndex(index int, now time.Time) bool {
	if index < 0 || index >= len(c.gestures) {
		return false
	}
	c.gestures[index].Start(now)
	return true
}

// StopAll disarms every gesture.
func (c *Catalogue) StopAll() bool {
	for _, g := range c.gestures {
		g.Stop()
	}
	return len(c.gestures) > 0
}

// StopByLabel disarms the first gesture whose label key matches.
func (c *Catalogue) StopByLabel(label string) bool {
	for _, g := range c.gestures {
		if g.LabelKey() == label {
			g.Stop()
			return true
		}
	}
	return false
}

// StopByIndex disarms the gesture at the given catalogue position.
func (c *Catalogue) StopByIndex(index int) bool {
	if index < 0 || index >= len(c.gestures) {
		return false
	}
	c.gestures[index].Stop()
	return true
}

// ResetAll rolls every gesture back to step 0.
func (c *Catalogue) ResetAll(now time.Time) bool {
	for _, g := range c.gestures {
		g.Reset(now)
	}
	return len(c.gestures) > 0
}

// ResetByLabel rolls back the first gesture whose label key matches.
func (c *Catalogue) ResetByLabel(label string, now time.Time) bool {
	for _, g := range c.gestures {
		if g.LabelKey() == label {
			g.Reset(now)
			return true
		}
	}
	return false
}

// ResetByIndex rolls back the gesture at the given catalogue position.
func (c *Catalogue) ResetByIndex(index int, now time.Time) bool {
	if index < 0 || index >= len(c.gestures) {
		return false
	}
	c.gestures[index].Reset(now)
	return true
}

// Load parses one gesture-definition JSON document and, on success,
// appends the resulting Gesture to the catalogue.
func (c *Catalogue) Load(data []byte) AddResult {
	var def gestureDef
	if err := json.Unmarshal(data, &def); err != nil {
		log.Printf("gesture: malformed definition: %v", err)
		return AddResult{}
	}

	if def.GestureID == "" || def.Label == "" || len(def.Instructions) == 0 {
		log.Printf("gesture: missing required fields (gestureId/label/instructions)")
		return AddResult{}
	}
	hasIndex := def.SignalIndex != nil
	hasKey := def.SignalKey != nil && *def.SignalKey != ""
	if hasIndex == hasKey {
		log.Printf("gesture %s: exactly one of signal_index/signal_key must be set", def.GestureID)
		return AddResult{}
	}

	sequence := parseInstructions(def.Instructions, def.GestureID)
	if len(sequence) == 0 {
		log.Printf("gesture %s: no usable instructions", def.GestureID)
		return AddResult{}
	}

	cfg := Config{
		ID:                   def.GestureID,
		LabelKey:             def.Label,
		BudgetMs:             def.TotalRecommendedMaxTime,
		Sequence:             sequence,
		TakePictureAtEnd:     def.TakePictureAtTheEnd,
		RandomizeStepPicture: def.RandomizeStepPicture,
		IconPath:             def.IconPath,
		Rand:                 c.newRand(),
	}
	if hasIndex {
		cfg.SubscribeIndex = def.SignalIndex
	} else {
		cfg.SubscribeKey = *def.SignalKey
	}

	g := New(cfg)
	c.Add(g)

	return AddResult{
		Success:          true,
		ID:               def.GestureID,
		Label:            def.Label,
		IconPath:         def.IconPath,
		BudgetMs:         def.TotalRecommendedMaxTime,
		TakePictureAtEnd: def.TakePictureAtTheEnd,
	}
}

// LoadFile reads and parses one gesture-definition JSON file.
func (c *Catalogue) LoadFile(path string) AddResult {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("gesture: reading %s: %v", path, err)
		return AddResult{}
	}
	return c.Load(data)
}

// gestureDef is the JSON wire shape of a gesture-definition file.
type gestureDef struct {
	GestureID               string           `json:"gestureId"`
	Label                   string           `json:"label"`
	TotalRecommendedMaxTime float64          `json:"total_recommended_max_time"`
	TakePictureAtTheEnd     bool             `json:"take_picture_at_the_end"`
	SignalIndex             *int             `json:"signal_index"`
	SignalKey               *string          `json:"signal_key"`
	IconPath                string           `json:"icon_path"`
	RandomizeStepPicture    bool             `json:"randomize_step_picture"`
	Instructions            []instructionDef `json:"instructions"`
}

type instructionDef struct {
	InstructionType string    `json:"instruction_type"`
	MoveToNextType  string    `json:"move_to_next_type"`
	Value           float64   `json:"value"`
	MinValue        float64   `json:"min_value"`
	MaxValue        float64   `json:"max_value"`
	MinDurationMs   int64     `json:"min_duration_ms"`
	Reset           *resetDef `json:"reset"`
	TakePictureEnd  bool      `json:"take_picture_at_the_end"`
}

type resetDef struct {
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

func parseInstructions(instructions []instructionDef, gestureID string) []Step {
	steps := make([]Step, 0, len(instructions))
	for _, inst := range instructions {
		kind := inst.InstructionType
		if kind == "" {
			kind = "threshold" // absent instruction_type defaults to threshold, per the legacy schema
		}

		var reset *ResetRule
		if inst.Reset != nil {
			r, ok := parseReset(*inst.Reset)
			if !ok {
				log.Printf("gesture %s: unknown reset condition type %q, skipping reset", gestureID, inst.Reset.Type)
			} else {
				reset = &r
			}
		}

		switch kind {
		case "threshold":
			dir := Lower
			if inst.MoveToNextType == "higher" {
				dir = Higher
			}
			steps = append(steps, ThresholdStep(dir, inst.Value, reset, inst.TakePictureEnd))
		case "range":
			steps = append(steps, RangeStep(inst.MinValue, inst.MaxValue, inst.MinDurationMs, reset, inst.TakePictureEnd))
		default:
			log.Printf("gesture %s: unknown instruction_type %q, skipping instruction", gestureID, kind)
		}
	}
	return steps
}

func parseReset(r resetDef) (ResetRule, bool) {
	switch r.Type {
	case "lower":
		return ResetRule{Type: ResetLower, Value: r.Value}, true
	case "higher":
		return ResetRule{Type: ResetHigher, Value: r.Value}, true
	case "timeout_after_ms":
		return ResetRule{Type: ResetTimeoutAfterMs, Value: r.Value}, true
	default:
		return ResetRule{}, false
	}
}
