//go:build cgo
// +build cgo

package session

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/2060-io/liveness-detector-go/pkg/challenge"
	"github.com/2060-io/liveness-detector-go/pkg/faceproc"
	"github.com/2060-io/liveness-detector-go/pkg/gesture"
	"github.com/2060-io/liveness-detector-go/pkg/overlay"
	"github.com/2060-io/liveness-detector-go/pkg/signalbus"
)

// Config builds one liveSession. One Config is shared across
// connections; each connection gets its own Catalogue and Orchestrator.
type Config struct {
	GestureDefPaths []string
	NumGestures     int
	Translator      challenge.Translator
	Renderer        *overlay.Renderer
	NewProcessor    func() faceproc.Processor
	FaceBoxMode     overlay.FaceBoxMode

	// RNGSeed seeds the gesture sampler and every loaded gesture's
	// step-picture selector. Zero falls back to a process-seeded source
	// (the default, non-deterministic behavior).
	RNGSeed int64

	// ReadTimeoutMs and WriteTimeoutMs bound how long a single request
	// read or reply write may take on a connection; 0 disables the
	// deadline. Applied per request/reply in serveConnection.
	ReadTimeoutMs  int
	WriteTimeoutMs int
}

// newRandSeed returns a seed function for gesture.NewCatalogue that
// builds a *rand.Rand deterministically derived from cfg.RNGSeed when it
// is non-zero, or nil (process-seeded gestures) otherwise.
func (cfg Config) newRandSeed() func() *rand.Rand {
	if cfg.RNGSeed == 0 {
		return nil
	}
	return func() *rand.Rand { return rand.New(rand.NewSource(cfg.RNGSeed)) }
}

// liveSession owns one client connection's object graph: its own
// gesture catalogue, challenge orchestrator, and face processor. mu
// guards the (Catalogue, Orchestrator) pair, mirroring the engine's
// single coarse-lock concurrency model: it is held across every signal
// dispatch, tick, and config mutation, with no suspension points inside.
type liveSession struct {
	mu sync.Mutex

	catalogue    *gesture.Catalogue
	orchestrator *challenge.Orchestrator
	processor    faceproc.Processor
	renderer     *overlay.Renderer
	faceBoxMode  overlay.FaceBoxMode
	bus          *signalbus.Bus

	pendingPicture bool
	pendingAlive   *bool
	pendingWarning string
}

func newLiveSession(cfg Config) (*liveSession, error) {
	catalogue := gesture.NewCatalogue(cfg.newRandSeed())
	for _, path := range cfg.GestureDefPaths {
		if res := catalogue.LoadFile(path); !res.Success {
			log.Printf("session: failed to load gesture definition %s", path)
		}
	}

	bus := signalbus.New()
	bus.Subscribe(catalogue.HandleSignal)

	s := &liveSession{
		catalogue:   catalogue,
		renderer:    cfg.Renderer,
		faceBoxMode: cfg.FaceBoxMode,
		bus:         bus,
	}
	if cfg.NewProcessor != nil {
		s.processor = cfg.NewProcessor()
	} else {
		s.processor = faceproc.NewSyntheticProcessor()
	}

	var orchestratorRand *rand.Rand
	if cfg.RNGSeed != 0 {
		orchestratorRand = rand.New(rand.NewSource(cfg.RNGSeed))
	}

	s.orchestrator = challenge.New(challenge.Config{
		NumGestures: cfg.NumGestures,
		Catalogue:   catalogue,
		Translator:  cfg.Translator,
		Rand:        orchestratorRand,
		OnTakePicture: func() {
			s.pendingPicture = true
		},
		OnAlive: func(alive bool) {
			s.pendingAlive = &alive
		},
	})

	return s, nil
}

func (s *liveSession) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processor != nil {
		if err := s.processor.Close(); err != nil {
			log.Printf("session: closing processor: %v", err)
		}
	}
}

// handleImage decodes one inbound BGR24 frame, drives the face
// processor and orchestrator tick, and returns the annotated reply
// frame plus the events accumulated since the previous image reply.
func (s *liveSession) handleImage(req *ImageRequest) (Event, gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := gocv.NewMatFromBytes(req.Rows, req.Cols, gocv.MatTypeCV8UC3, req.Data)
	if err != nil {
		return Event{}, gocv.Mat{}, fmt.Errorf("decoding frame: %w", err)
	}
	defer frame.Close()

	now := time.Now()

	var box *overlay.FaceBox
	if s.processor != nil {
		obs, err := s.processor.Process(frame)
		if err != nil {
			log.Printf("session: face processing: %v", err)
		} else {
			box = obs.Box
			now = obs.At
			s.bus.PublishBatch(obs.Signals, now)
		}
	}

	s.orchestrator.ProcessTick(now)

	text, iconPath := s.orchestrator.Overlay()
	out := s.renderer.Render(frame, s.faceBoxMode, box, text, iconPath, s.pendingWarning)

	event := Event{TakeAPicture: s.pendingPicture, ReportAlive: s.pendingAlive}
	s.pendingPicture = false
	s.pendingAlive = nil

	return event, out, nil
}

// handleConfig applies a 0x02 config command. Unknown actions or
// variables are silently ignored, per the wire protocol's contract.
func (s *liveSession) handleConfig(cfg *ConfigRequest) {
	if cfg == nil || cfg.Action != "set" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cfg.Variable {
	case "overwrite_text":
		s.orchestrator.SetOverwriteText(cfg.Value, false)
	case "warning_message":
		// Warning messages are passed through orthogonally at render
		// time rather than stored on the orchestrator: liveSession holds
		// it directly and hands it to the renderer on every subsequent
		// image reply, until the client sets a new one.
		s.pendingWarning = cfg.Value
	default:
		// Unknown variable: no-op.
	}
}

// serveConnection runs the request loop for one accepted connection
// until a socket error, a frame-decode error, or client disconnect.
// readTimeout and writeTimeout, when non-zero, are applied as a fresh
// deadline before every request read and reply write respectively,
// per internal/config's ServerConfig knobs.
func serveConnection(conn net.Conn, s *liveSession, readTimeout, writeTimeout time.Duration) {
	for {
		if readTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
				log.Printf("session: setting read deadline: %v", err)
				return
			}
		}

		functionID, img, cfg, err := ReadRequest(conn)
		if err != nil {
			if err != io.EOF {
				log.Printf("session: connection terminated: %v", err)
			}
			return
		}

		switch functionID {
		case FunctionImage:
			event, out, err := s.handleImage(img)
			if err != nil {
				log.Printf("session: %v", err)
				return
			}
			outRows, outCols := out.Rows(), out.Cols()
			framePtr, err := out.DataPtrUint8()
			if err != nil {
				out.Close()
				log.Printf("session: reading annotated frame bytes: %v", err)
				return
			}
			frameBytes := make([]byte, len(framePtr))
			copy(frameBytes, framePtr)
			out.Close()

			if writeTimeout > 0 {
				if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
					log.Printf("session: setting write deadline: %v", err)
					return
				}
			}
			if err := WriteEventAndFrame(conn, event, outRows, outCols, frameBytes); err != nil {
				log.Printf("session: writing reply: %v", err)
				return
			}
		case FunctionConfig:
			s.handleConfig(cfg)
		}
	}
}
