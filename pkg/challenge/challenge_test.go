package challenge

import (
	"math/rand"
	"testing"
	"time"

	"github.com/2060-io/liveness-detector-go/pkg/gesture"
)

type fakeCatalogue struct {
	gestures []*gesture.Gesture
	onDetect func(string)
	started  []string
}

func (f *fakeCatalogue) Gestures() []*gesture.Gesture { return f.gestures }

func (f *fakeCatalogue) StartByLabel(label string, now time.Time) bool {
	f.started = append(f.started, label)
	return true
}

func (f *fakeCatalogue) SetOnDetected(cb func(string)) { f.onDetect = cb }

func newFakeCatalogue(labels ...string) *fakeCatalogue {
	f := &fakeCatalogue{}
	for _, l := range labels {
		f.gestures = append(f.gestures, gesture.New(gesture.Config{
			ID:       l,
			LabelKey: l,
			BudgetMs: 3000,
		}))
	}
	return f
}

type stubTranslator struct{}

func (stubTranslator) Lookup(key string) string { return key }

func TestGenerateRequestsFraming(t *testing.T) {
	cat := newFakeCatalogue("blink", "smile", "yaw")
	o := New(Config{
		NumGestures: 2,
		Catalogue:   cat,
		Translator:  stubTranslator{},
		Rand:        rand.New(rand.NewSource(1)),
	})

	reqs := o.Requests()
	if reqs[0].ID != IDNotAlive {
		t.Fatalf("expected first request to be notAlive, got %s", reqs[0].ID)
	}
	if reqs[1].ID != IDStarting {
		t.Fatalf("expected second request to be starting, got %s", reqs[1].ID)
	}
	if reqs[len(reqs)-1].ID != IDYouAreAlive {
		t.Fatalf("expected last request to be youarealive, got %s", reqs[len(reqs)-1].ID)
	}
	if len(reqs) != 2+2+1 {
		t.Fatalf("expected 2 framing + 2 sampled + 1 = 5 requests, got %d", len(reqs))
	}
	if o.CurrentIndex() != 1 {
		t.Fatalf("expected current index to start at 1 (starting), got %d", o.CurrentIndex())
	}
}

// TestOrchestratorSuccess mirrors scenario S6: the orchestrator reports
// alive(true) exactly when the final driving gesture completes, before
// advancing into the youarealive framing, then reaches Done once that
// framing's own budget elapses.
func TestOrchestratorSuccess(t *testing.T) {
	cat := newFakeCatalogue("blink")
	var alive *bool
	o := New(Config{
		NumGestures: 1,
		Catalogue:   cat,
		Translator:  stubTranslator{},
		Rand:        rand.New(rand.NewSource(1)),
		OnAlive:     func(v bool) { alive = &v },
	})

	t0 := time.Now()
	o.ProcessTick(t0)
	o.ProcessTick(t0.Add(5001 * time.Millisecond)) // starting.time=5000 auto-advances into the gesture

	cat.onDetect("blink")

	if alive == nil || !*alive {
		t.Fatal("expected reportAlive(true) once the final gesture completes")
	}
	if o.CurrentIndex() != len(o.Requests())-1 {
		t.Fatalf("expected to be on the youarealive framing, index=%d", o.CurrentIndex())
	}

	o.ProcessTick(t0.Add(6 * time.Second))
	if o.State() != StatusDone {
		t.Fatalf("expected Done once youarealive framing elapses, got %s", o.State())
	}
}

// TestOrchestratorTimeout mirrors scenario S5: a driving gesture that
// exceeds its time budget fails the challenge and resets to index 0.
func TestOrchestratorTimeout(t *testing.T) {
	cat := newFakeCatalogue("blink")
	var alive *bool
	o := New(Config{
		NumGestures: 1,
		Catalogue:   cat,
		Translator:  stubTranslator{},
		Rand:        rand.New(rand.NewSource(1)),
		OnAlive:     func(v bool) { alive = &v },
	})

	t0 := time.Now()
	o.ProcessTick(t0)
	o.ProcessTick(t0.Add(5001 * time.Millisecond)) // starting.time=5000 auto-advances

	o.ProcessTick(t0.Add(5001*time.Millisecond + 3001*time.Millisecond))

	if alive == nil || *alive {
		t.Fatal("expected reportAlive(false) once the driving gesture times out")
	}
	if o.CurrentIndex() != 0 {
		t.Fatalf("expected current index reset to 0, got %d", o.CurrentIndex())
	}
	if o.State() != StatusFailure {
		t.Fatalf("expected Failure state, got %s", o.State())
	}
}

func TestOverlayUsesOverwriteText(t *testing.T) {
	cat := newFakeCatalogue("blink")
	o := New(Config{NumGestures: 1, Catalogue: cat, Translator: stubTranslator{}, Rand: rand.New(rand.NewSource(1))})

	o.SetOverwriteText("hold still", false)
	text, _ := o.Overlay()
	if text != "hold still" {
		t.Fatalf("expected overwrite text to win, got %q", text)
	}
}

func TestOverlayFallsBackToTranslator(t *testing.T) {
	cat := newFakeCatalogue("blink")
	o := New(Config{NumGestures: 1, Catalogue: cat, Translator: stubTranslator{}, Rand: rand.New(rand.NewSource(1))})

	text, _ := o.Overlay()
	if text != "gestures.starting.label" {
		t.Fatalf("expected translator lookup for starting frame, got %q", text)
	}
}
