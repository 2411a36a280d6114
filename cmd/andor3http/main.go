package main

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/theckman/yacspin"

	yml "gopkg.in/yaml.v2"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
	"github.com/nasa-jpl/andor3ctl/generichttp"
	"github.com/nasa-jpl/andor3ctl/generichttp/camera"
	"github.com/nasa-jpl/andor3ctl/server/middleware/locker"
	"github.com/nasa-jpl/andor3ctl/session"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "andor3-http.yml"
	k              = koanf.New(".")
)

type config struct {
	Addr           string            `yaml:"Addr" koanf:"Addr"`
	Root           string            `yaml:"Root" koanf:"Root"`
	Mock           bool              `yaml:"Mock" koanf:"Mock"`
	CameraIndex    int               `yaml:"CameraIndex" koanf:"CameraIndex"`
	CaptureTimeout string            `yaml:"CaptureTimeout" koanf:"CaptureTimeout"`
	SearchRate     float64           `yaml:"SearchRate" koanf:"SearchRate"`
	Settings       []session.Setting `yaml:"Settings" koanf:"Settings"`
}

func defaults() config {
	return config{
		Addr:           ":8000",
		Root:           "/",
		Mock:           false,
		CameraIndex:    -1,
		CaptureTimeout: session.DefaultCaptureTimeout.String(),
		SearchRate:     0.2,
		Settings:       session.DefaultSettings(),
	}
}

func setupconfig() {
	k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func loadconfig() config {
	c := config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	return c
}

// sessionConfig converts the file config to a session config
func (c config) sessionConfig() (session.Config, error) {
	sc := session.Config{Settings: c.Settings}
	if c.CaptureTimeout != "" {
		d, err := time.ParseDuration(c.CaptureTimeout)
		if err != nil {
			return sc, fmt.Errorf("CaptureTimeout: %w", err)
		}
		sc.CaptureTimeout = d
	}
	return sc, nil
}

// opener returns the session's device opener and a function releasing the library
func (c config) opener() (session.Opener, func(), error) {
	if c.Mock {
		return func() (session.Device, error) { return sdk3.NewSimulator(), nil }, func() {}, nil
	}
	return sdkOpener(c.CameraIndex)
}

func root() {
	str := `andor3-http exposes control of Andor SDK3 cameras (Neo, Zyla) over HTTP
This enables a server-client architecture,
and the clients can leverage the excellent HTTP
libraries for any programming language,
instead of custom socket logic.

Usage:
	andor3-http <command>

Commands:
	run
	acquire [out.png]
	features
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `andor3-http is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

When no configuration is provided, the defaults are used.  Keys are not case-sensitive.
The command mkconf generates the configuration file with the default values.
There is no need to do this unless you want to start from the prepopulated defaults when making
a config file.

Settings is the ordered list of features written to the camera before each capture.
A feature the camera rejects is reported and skipped; the rest are still written.
The command features lists every known feature and its type.

CameraIndex -1 causes the server to scan the available cameras and pick the first one
which is not a software simulation camera.  Mock: true uses an in-memory simulated
camera instead of the SDK.

The server routes are listed at <Root>/endpoints.  POST <Root>/lock with {"bool": true}
to keep other clients from driving the camera.`
	fmt.Println(str)
}

func mkconf() {
	c := loadconfig()
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := loadconfig()
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("andor3-http version %v\n", Version)
}

func features() {
	for _, name := range sdk3.FeatureNames() {
		fmt.Printf("%-32s %s\n", name, sdk3.Features[name])
	}
}

func newSession(c config) (*session.Session, func()) {
	sc, err := c.sessionConfig()
	if err != nil {
		log.Fatal(err)
	}
	open, finalize, err := c.opener()
	if err != nil {
		log.Fatal(err)
	}
	return session.New(open, sc), finalize
}

func run() {
	cfg := loadconfig()
	log.Println("initializing SDK, andor's code can deadlock here.")
	log.Println("Power cycle the camera if this is stuck.")
	sess, finalize := newSession(cfg)
	defer finalize()
	defer sess.Close()

	w := camera.NewHTTPSession(sess, cfg.SearchRate)
	lock := locker.New()
	locker.Inject(w, lock)

	// clean up the submux string
	hndlrS := generichttp.SubMuxSanitize(cfg.Root)
	root := chi.NewRouter()
	root.Use(middleware.Logger)
	mux := chi.NewRouter()
	mux.Use(lock.Check)
	w.RT().Bind(mux)
	root.Mount(hndlrS, mux)

	srv := &http.Server{Addr: cfg.Addr, Handler: root}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		log.Println("shutting down, releasing camera")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Println("now listening for requests at ", cfg.Addr+hndlrS)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Println(err)
	}
}

func newSpinner(msg string) *yacspin.Spinner {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " ",
		Message:           msg,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	return spinner
}

// step runs one action under a spinner, failing the spinner on error
func step(spinner *yacspin.Spinner, msg string, action func() error) error {
	spinner.Message(msg)
	err := action()
	if err != nil {
		spinner.StopFailMessage(fmt.Sprintf("%s: %s", session.KindOf(err), err))
		spinner.StopFail()
	}
	return err
}

// acquire runs the four actions once from the command line, writing the frame
// to out as a 16-bit png if out is not empty
func acquire(out string) error {
	cfg := loadconfig()
	sess, finalize := newSession(cfg)
	defer finalize()
	defer sess.Close()

	spinner := newSpinner("searching for camera")
	spinner.Start()

	var (
		report session.ConfigReport
		img    session.CaptureResult
	)
	if err := step(spinner, "searching for camera", sess.Search); err != nil {
		return err
	}
	err := step(spinner, "configuring and starting capture", func() error {
		var err error
		report, err = sess.StartCapture()
		return err
	})
	if err != nil {
		return err
	}
	err = step(spinner, "waiting for a frame", func() error {
		var err error
		img, err = sess.CaptureImage()
		return err
	})
	if err != nil {
		return err
	}
	if err := step(spinner, "stopping capture", sess.StopCapture); err != nil {
		return err
	}
	spinner.StopMessage(fmt.Sprintf("captured %dx%d frame %s at tick %d", img.Width, img.Height, img.ID, img.Timestamp))
	spinner.Stop()
	for _, name := range report.Failed() {
		log.Printf("warning: feature %s was not applied", name)
	}

	if out == "" {
		return nil
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, camera.Gray16(img))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "acquire":
		var out string
		if len(args) > 2 {
			out = args[2]
		}
		if err := acquire(out); err != nil {
			log.Fatal(err)
		}
		return
	case "features":
		features()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
