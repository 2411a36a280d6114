/*Package session sequences one Andor camera through discovery, configuration,
and acquisition.

A Session owns the device handle exclusively.  Its states run

	Uninitialized -> Connected -> Configured -> Acquiring -> (stop) Connected

and every operation besides Search and Close fails with ErrNotInitialized,
without touching the device, until Search has succeeded.  Configuration is
best effort: each feature write is attempted in order and failures are
reported per feature, with no rollback of the writes that went through.
*/
package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
)

// DefaultCaptureTimeout is how long CaptureImage waits for a frame
const DefaultCaptureTimeout = 1000 * time.Millisecond

// State is the acquisition state of a Session
type State int

const (
	// Uninitialized means no device handle is held
	Uninitialized State = iota

	// Connected means a handle is held and acquisition is not running
	Connected

	// Configured means the settings have been applied at least once
	Configured

	// Acquiring means acquisition was started
	Acquiring
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Connected:
		return "Connected"
	case Configured:
		return "Configured"
	case Acquiring:
		return "Acquiring"
	}
	return "Unknown"
}

// Device is the camera SDK seen by a Session.  sdk3.Camera and
// sdk3.Simulator both satisfy it.
type Device interface {
	SetInt(feature string, value int64) error
	SetFloat(feature string, value float64) error
	SetBool(feature string, value bool) error
	SetString(feature, value string) error
	SetEnumString(feature, value string) error

	// QueueBuffer places one acquisition buffer on the device's queue
	QueueBuffer() error

	// Start and Stop issue AcquisitionStart and AcquisitionStop
	Start() error
	Stop() error

	// WaitBuffer blocks for up to timeout for a filled buffer.  A timeout
	// is reported as an error with a Timeout() bool method returning true.
	WaitBuffer(timeout time.Duration) ([]byte, error)

	// Decode converts a raw buffer into pixels and a timestamp
	Decode(raw []byte) (sdk3.Frame, error)

	Close() error
}

// Opener discovers and opens the first available device
type Opener func() (Device, error)

// Config holds the tunables of a Session
type Config struct {
	// Settings is the ordered list applied by Configure; nil means DefaultSettings
	Settings []Setting

	// CaptureTimeout bounds CaptureImage; zero means DefaultCaptureTimeout
	CaptureTimeout time.Duration
}

// CaptureResult is one decoded frame
type CaptureResult struct {
	// ID uniquely identifies the capture
	ID uuid.UUID

	// Pix holds Height rows of Width samples
	Pix [][]uint16

	Width  int
	Height int

	// Timestamp is the device clock in ticks, zero when metadata is off
	Timestamp uint64

	// Received is the wall clock time the frame came off the queue
	Received time.Time
}

// Session is the relationship between the program and one camera.  Its
// methods are safe for concurrent use; they are serialised, so a blocked
// CaptureImage holds off every other call for up to the capture timeout.
type Session struct {
	mu sync.Mutex

	open     Opener
	dev      Device
	state    State
	id       uuid.UUID
	settings []Setting
	timeout  time.Duration
}

// New returns an Uninitialized session that will use open to find its device
func New(open Opener, cfg Config) *Session {
	s := &Session{open: open, settings: cfg.Settings, timeout: cfg.CaptureTimeout}
	if s.settings == nil {
		s.settings = DefaultSettings()
	}
	if s.timeout <= 0 {
		s.timeout = DefaultCaptureTimeout
	}
	return s
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier assigned by the last successful Search, or "" when uninitialized
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ""
	}
	return s.id.String()
}

// Settings returns a copy of the settings Configure applies
func (s *Session) Settings() []Setting {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Setting, len(s.settings))
	copy(out, s.settings)
	return out
}

// CaptureTimeout returns how long CaptureImage waits for a frame
func (s *Session) CaptureTimeout() time.Duration {
	return s.timeout
}

// Search opens a device, releasing any handle already held first
func (s *Session) Search() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
	dev, err := s.open()
	if err != nil {
		return &DeviceInitializationError{Cause: err}
	}
	if dev == nil {
		return &DeviceInitializationError{Cause: errors.New("opener returned no device")}
	}
	s.dev = dev
	s.id = uuid.New()
	s.state = Connected
	if g, ok := dev.(interface{ GetString(string) (string, error) }); ok {
		model, _ := g.GetString("CameraModel")
		serial, _ := g.GetString("SerialNumber")
		log.Printf("session %s connected to camera %s serial %s", s.id, model, serial)
	} else {
		log.Printf("session %s connected", s.id)
	}
	return nil
}

// release closes the held handle, if any; the caller holds the lock
func (s *Session) release() {
	if s.dev == nil {
		return
	}
	if err := s.dev.Close(); err != nil {
		log.Printf("session %s: error releasing camera: %v", s.id, err)
	}
	s.dev = nil
	s.state = Uninitialized
}

// Close releases the device handle.  Closing an uninitialized session does nothing.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return nil
	}
	err := s.dev.Close()
	s.dev = nil
	s.state = Uninitialized
	return err
}

// Configure applies every setting in order.  A failed write does not stop
// the ones after it, and earlier writes are not undone.  The returned
// error is ErrNotInitialized, or the report's Err().
func (s *Session) Configure() (ConfigReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ConfigReport{}, ErrNotInitialized
	}
	r := s.configure()
	return r, r.Err()
}

// configure is Configure with the lock held and a device present
func (s *Session) configure() ConfigReport {
	r := ConfigReport{Results: make([]FeatureResult, 0, len(s.settings))}
	for _, set := range s.settings {
		res := apply(s.dev, set)
		if res.Err != nil {
			log.Printf("session %s: %v", s.id, res.Err)
		}
		r.Results = append(r.Results, res)
	}
	if s.state == Connected {
		s.state = Configured
	}
	return r
}

// SetFeature applies one assignment outside the configured list
func (s *Session) SetFeature(feature string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrNotInitialized
	}
	return apply(s.dev, Setting{Feature: feature, Value: value}).Err
}

// StartCapture configures the camera, queues one buffer, and starts
// acquisition.  Acquisition is attempted even if some settings failed; those
// failures are in the report, and the error concerns acquisition alone.
func (s *Session) StartCapture() (ConfigReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ConfigReport{}, ErrNotInitialized
	}
	r := s.configure()
	if err := s.dev.QueueBuffer(); err != nil {
		return r, &AcquisitionStartError{Cause: err}
	}
	if err := s.dev.Start(); err != nil {
		return r, &AcquisitionStartError{Cause: err}
	}
	s.state = Acquiring
	return r, nil
}

// StopCapture halts acquisition.  Stopping an idle camera is left to the device to judge.
func (s *Session) StopCapture() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return ErrNotInitialized
	}
	if err := s.dev.Stop(); err != nil {
		return &AcquisitionStopError{Cause: err}
	}
	s.state = Connected
	return nil
}

// CaptureImage waits up to the capture timeout for one frame and decodes it
func (s *Session) CaptureImage() (CaptureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev == nil {
		return CaptureResult{}, ErrNotInitialized
	}
	raw, err := s.dev.WaitBuffer(s.timeout)
	if err != nil {
		if isTimeout(err) {
			return CaptureResult{}, &CaptureTimeoutError{Cause: err}
		}
		return CaptureResult{}, &CaptureError{Cause: err}
	}
	if raw == nil {
		return CaptureResult{}, &CaptureTimeoutError{}
	}
	received := time.Now()
	frame, err := s.dev.Decode(raw)
	if err != nil {
		return CaptureResult{}, &DecodeError{Cause: err}
	}
	return CaptureResult{
		ID:        uuid.New(),
		Pix:       frame.Pix,
		Width:     frame.Width,
		Height:    frame.Height,
		Timestamp: frame.Timestamp,
		Received:  received,
	}, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
