// Package challenge implements the challenge orchestrator: it samples a
// randomized sequence of gestures from a catalogue, advances through it
// under per-request time budgets, and produces the overlay text/icon
// and liveness verdict events a session should report to its client.
package challenge

import (
	"math/rand"
	"time"

	"github.com/2060-io/liveness-detector-go/pkg/gesture"
)

// Status is the orchestrator's terminal state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusProcessing
	StatusDone
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusDone:
		return "done"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Special, non-gesture request identifiers that frame a challenge run.
const (
	IDNotAlive    = "notAlive"
	IDStarting    = "starting"
	IDYouAreAlive = "youarealive"
)

const framingBudgetMs = 5000

// Request is one element of the orchestrator's sequence: either a
// framing banner (notAlive/starting/youarealive) or a live gesture the
// subject must perform within its time budget.
type Request struct {
	ID               string
	LabelKey         string
	BudgetMs         float64
	DrivesGesture    bool
	TakePictureAtEnd bool
	IconPath         string
}

// Translator resolves a dot-path translation key to display text. It is
// satisfied by pkg/translate's Translator.
type Translator interface {
	Lookup(key string) string
}

// Catalogue is the subset of gesture.Catalogue the orchestrator drives.
type Catalogue interface {
	Gestures() []*gesture.Gesture
	StartByLabel(label string, now time.Time) bool
	SetOnDetected(cb func(labelKey string))
}

// Config configures an Orchestrator at construction time.
type Config struct {
	NumGestures int
	Catalogue   Catalogue
	Translator  Translator

	// Rand seeds the without-replacement gesture sample. Nil falls back
	// to a process-seeded source.
	Rand *rand.Rand

	OnTakePicture func()
	OnAlive       func(alive bool)
}

// Orchestrator sequences a challenge run. It is not internally
// synchronized; the session server's coarse mutex serializes access.
type Orchestrator struct {
	translator Translator
	rng        *rand.Rand

	requests       []Request
	currentIndex   int
	currentStarted time.Time
	startLatched   bool
	overwriteText  string
	status         Status

	onTakePicture func()
	onAlive       func(alive bool)
	startByLabel  func(label string, now time.Time) bool
}

// New builds an Orchestrator and immediately assembles its challenge
// list from the catalogue's gestures, wiring itself as the catalogue's
// detection callback.
func New(cfg Config) *Orchestrator {
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	o := &Orchestrator{
		translator:    cfg.Translator,
		rng:           rng,
		onTakePicture: cfg.OnTakePicture,
		onAlive:       cfg.OnAlive,
	}
	o.generateRequests(cfg.Catalogue, cfg.NumGestures)
	o.startLatched = true
	if cfg.Catalogue != nil {
		o.startByLabel = cfg.Catalogue.StartByLabel
		cfg.Catalogue.SetOnDetected(func(label string) {
			o.onGestureDetected(label, time.Now())
		})
	}
	return o
}

// State returns the orchestrator's status.
func (o *Orchestrator) State() Status { return o.status }

// Requests returns the assembled challenge sequence.
func (o *Orchestrator) Requests() []Request {
	out := make([]Request, len(o.requests))
	copy(out, o.requests)
	return out
}

// CurrentIndex returns the position of the request currently active.
func (o *Orchestrator) CurrentIndex() int { return o.currentIndex }

// generateRequests builds [notAlive, starting] + N sampled gestures +
// [youarealive], matching the reference sequencing policy.
func (o *Orchestrator) generateRequests(cat Catalogue, n int) {
	o.requests = []Request{
		{ID: IDNotAlive, LabelKey: "notAlive", BudgetMs: framingBudgetMs},
		{ID: IDStarting, LabelKey: "starting", BudgetMs: framingBudgetMs},
	}

	if cat != nil {
		all := cat.Gestures()
		for _, idx := range sampleWithoutReplacement(o.rng, len(all), n) {
			g := all[idx]
			o.requests = append(o.requests, Request{
				ID:               g.ID(),
				LabelKey:         g.LabelKey(),
				BudgetMs:         g.BudgetMs(),
				DrivesGesture:    true,
				TakePictureAtEnd: g.TakePictureAtEnd(),
				IconPath:         g.IconPath(),
			})
		}
	}

	o.requests = append(o.requests, Request{ID: IDYouAreAlive, LabelKey: "youarealive", BudgetMs: framingBudgetMs})
	o.currentIndex = 1
}

// sampleWithoutReplacement returns up to n distinct indices in
// [0, total), order randomized, by shuffling all indices (Fisher-Yates)
// and keeping the first n.
func sampleWithoutReplacement(rng *rand.Rand, total, n int) []int {
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	pool := make([]int, total)
	for i := range pool {
		pool[i] = i
	}
	rng.Shuffle(total, func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	return pool[:n]
}

func (o *Orchestrator) current() *Request {
	if o.currentIndex < 0 || o.currentIndex >= len(o.requests) {
		return nil
	}
	return &o.requests[o.currentIndex]
}

// moveToNext advances past the currently active request, firing the
// picture and alive-true callbacks as the reference policy dictates.
func (o *Orchestrator) moveToNext(now time.Time) {
	if o.currentIndex == 0 {
		return
	}
	req := o.current()
	if req == nil {
		return
	}

	if req.TakePictureAtEnd && o.onTakePicture != nil {
		o.onTakePicture()
	}

	if o.currentIndex+2 == len(o.requests) {
		if o.onAlive != nil {
			o.onAlive(true)
		}
	}

	o.currentIndex++
	o.currentStarted = now
	if o.currentIndex >= len(o.requests) {
		o.status = StatusDone
		return
	}
	next := o.current()
	if next.DrivesGesture && o.startByLabel != nil {
		// Orchestrator policy: only one gesture is armed at a time.
		o.startByLabel(next.LabelKey, now)
	}
}

// resetNotAlive enters the terminal failure framing and reports death.
func (o *Orchestrator) resetNotAlive() {
	o.currentIndex = 0
	o.status = StatusFailure
	if o.onAlive != nil {
		o.onAlive(false)
	}
}

// onGestureDetected is the catalogue's detection callback: it advances
// the sequence iff the detected gesture matches the active request.
func (o *Orchestrator) onGestureDetected(labelKey string, now time.Time) {
	req := o.current()
	if req == nil || !req.DrivesGesture || req.LabelKey != labelKey {
		return
	}
	o.moveToNext(now)
}

// ProcessTick enforces the active request's time budget and should be
// called once per inbound frame. It transitions to Done once the
// terminal youarealive framing elapses.
func (o *Orchestrator) ProcessTick(now time.Time) {
	if o.startLatched {
		o.currentStarted = now
		o.startLatched = false
	}
	if o.status == StatusIdle {
		o.status = StatusProcessing
	}

	req := o.current()
	if req == nil || o.currentIndex == 0 {
		return
	}

	elapsed := now.Sub(o.currentStarted)
	if float64(elapsed.Milliseconds()) >= req.BudgetMs {
		if req.DrivesGesture {
			o.resetNotAlive()
			o.currentStarted = now
		} else {
			o.moveToNext(now)
		}
	}
}

// SetOverwriteText forces the overlay text, optionally entering the
// Failure terminal state.
func (o *Orchestrator) SetOverwriteText(text string, failure bool) {
	o.overwriteText = text
	if failure {
		o.status = StatusFailure
	}
}

// Overlay returns the text and icon path for the currently active
// request, honoring any forced overwrite text.
func (o *Orchestrator) Overlay() (text string, iconPath string) {
	req := o.current()
	if req == nil {
		return "No gesture", ""
	}
	if o.overwriteText != "" {
		return o.overwriteText, req.IconPath
	}
	if o.translator != nil {
		return o.translator.Lookup("gestures." + req.ID + ".label"), req.IconPath
	}
	return req.LabelKey, req.IconPath
}
