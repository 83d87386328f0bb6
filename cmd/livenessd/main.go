//go:build cgo
// +build cgo

// Package main provides the CLI entry point for the liveness session
// server.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/2060-io/liveness-detector-go/internal/config"
	"github.com/2060-io/liveness-detector-go/pkg/faceproc"
	"github.com/2060-io/liveness-detector-go/pkg/gesture"
	"github.com/2060-io/liveness-detector-go/pkg/overlay"
	"github.com/2060-io/liveness-detector-go/pkg/session"
	"github.com/2060-io/liveness-detector-go/pkg/translate"
)

var version = "0.1.0"

// colonList is a flag.Value for colon-separated path/name lists, e.g.
// "--gestures_folder_path a:b:c". Empty segments are dropped; a later
// occurrence of the same flag replaces the values of an earlier one.
type colonList struct {
	values []string
}

func (c *colonList) String() string {
	if c == nil {
		return ""
	}
	return strings.Join(c.values, ":")
}

func (c *colonList) Set(v string) error {
	c.values = nil
	for _, part := range strings.Split(v, ":") {
		if part == "" {
			continue
		}
		c.values = append(c.values, part)
	}
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		modelPath      string
		gesturesFolder colonList
		language       string
		socketPath     string
		numGestures    int
		fontPath       string
		localesPaths   colonList
		gesturesList   colonList
		settingsPath   string
		showVersion    bool
	)

	flagSet := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flagSet.StringVar(&modelPath, "model_path", "", "Path to the face landmark model (reserved for a future ML backend)")
	flagSet.Var(&gesturesFolder, "gestures_folder_path", "Colon-separated list of directories containing gesture definition files")
	flagSet.StringVar(&language, "language", "", "Locale used for translation lookups, e.g. en or en_US")
	flagSet.StringVar(&socketPath, "socket_path", "", "Filesystem path of the Unix domain socket to serve on")
	flagSet.IntVar(&numGestures, "num_gestures", 0, "Number of gestures to sample into each challenge")
	flagSet.StringVar(&fontPath, "font_path", "", "Path to a font file for the overlay renderer")
	flagSet.Var(&localesPaths, "locales_paths", "Colon-separated list of translation catalogue directories")
	flagSet.Var(&gesturesList, "gestures_list", "Colon-separated whitelist of gesture file stems to load")
	flagSet.StringVar(&settingsPath, "settings", "", "Optional path to a TOML settings file")
	flagSet.BoolVar(&showVersion, "version", false, "Show version information")

	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "livenessd - facial liveness verification session server\n\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Options:\n")
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		return 1
	}

	if showVersion {
		fmt.Printf("livenessd version %s\n", version)
		return 0
	}

	for name, v := range map[string]string{
		"model_path":  modelPath,
		"language":    language,
		"socket_path": socketPath,
		"font_path":   fontPath,
	} {
		if v == "" {
			log.Printf("missing required flag --%s", name)
			return 1
		}
	}
	if len(gesturesFolder.values) == 0 {
		log.Printf("missing required flag --gestures_folder_path")
		return 1
	}
	if numGestures <= 0 {
		log.Printf("--num_gestures must be positive")
		return 1
	}

	settings, err := config.Load(settingsPath)
	if err != nil {
		log.Printf("loading settings: %v", err)
		return 1
	}

	gestureFiles, err := discoverGestureFiles(gesturesFolder.values, gesturesList.values)
	if err != nil {
		log.Printf("discovering gesture files: %v", err)
		return 1
	}
	if len(gestureFiles) == 0 {
		log.Printf("no gesture definition files found under %v", gesturesFolder.values)
		return 1
	}

	catalogueSize := countLoadableGestures(gestureFiles)
	if catalogueSize == 0 {
		log.Printf("no gesture definitions loaded successfully")
		return 1
	}
	if numGestures > catalogueSize {
		log.Printf("--num_gestures (%d) exceeds catalogue size (%d)", numGestures, catalogueSize)
		return 1
	}

	translator := translate.New(language, localesPaths.values)
	renderer := overlay.New(fontPath)

	if settings.Gestures.RNGSeed != 0 {
		log.Printf("gesture RNG seed override configured: %d", settings.Gestures.RNGSeed)
	}
	if settings.Logging.Verbose {
		log.Printf("verbose logging enabled")
	}

	sessionCfg := session.Config{
		GestureDefPaths: gestureFiles,
		NumGestures:     numGestures,
		Translator:      translator,
		Renderer:        renderer,
		FaceBoxMode:     overlay.FaceBoxOutline,
		NewProcessor: func() faceproc.Processor {
			return faceproc.NewSyntheticProcessor()
		},
		RNGSeed:        settings.Gestures.RNGSeed,
		ReadTimeoutMs:  settings.Server.ReadTimeoutMs,
		WriteTimeoutMs: settings.Server.WriteTimeoutMs,
	}

	srv := session.NewServer(socketPath, sessionCfg)
	if err := srv.Start(); err != nil {
		log.Printf("starting server: %v", err)
		return 1
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	runErr := make(chan error, 1)
	go func() {
		runErr <- srv.Run()
	}()

	select {
	case sig := <-sigCh:
		log.Printf("received signal %v, shutting down...", sig)
		if err := srv.Stop(); err != nil {
			log.Printf("stopping server: %v", err)
		}
		<-runErr
		return 0
	case err := <-runErr:
		if err != nil {
			log.Printf("server error: %v", err)
			return 1
		}
		return 0
	}
}

// discoverGestureFiles walks each gestures folder (non-recursively,
// matching the reference server's flat directory layout) collecting
// *.json files, restricted to whitelist stems when non-empty.
func discoverGestureFiles(dirs []string, whitelist []string) ([]string, error) {
	allowed := map[string]bool{}
	for _, stem := range whitelist {
		allowed[stem] = true
	}

	var files []string
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("reading gestures folder %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
				continue
			}
			stem := strings.TrimSuffix(entry.Name(), ".json")
			if len(allowed) > 0 && !allowed[stem] {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}

// countLoadableGestures loads every file into a scratch catalogue to
// determine how many definitions actually parse, without retaining the
// catalogue: the real per-connection catalogues are built independently
// by the session server.
func countLoadableGestures(files []string) int {
	cat := gesture.NewCatalogue(nil)
	for _, f := range files {
		if res := cat.Load(mustReadFile(f)); !res.Success {
			log.Printf("skipping invalid gesture definition %s", f)
		}
	}
	return len(cat.Gestures())
}

func mustReadFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("reading gesture definition %s: %v", path, err)
		return nil
	}
	return data
}
