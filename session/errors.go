package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotInitialized is returned by every operation that needs a device
	// handle when Search has not succeeded
	ErrNotInitialized = errors.New("camera not initialized, search for the camera first")

	// ErrValueType is wrapped by a FeatureWriteError when a setting's value
	// does not match the kind of its feature
	ErrValueType = errors.New("value does not match feature kind")

	// ErrNotAssignable is wrapped by a FeatureWriteError when a setting names a command feature
	ErrNotAssignable = errors.New("command features cannot be assigned a value")
)

// Kinds reported by KindOf, stable for presentation layers
const (
	KindNotInitialized       = "NotInitialized"
	KindDeviceInitialization = "DeviceInitializationError"
	KindUnknownFeature       = "UnknownFeature"
	KindFeatureWrite         = "FeatureWriteError"
	KindConfiguration        = "ConfigurationError"
	KindAcquisitionStart     = "AcquisitionStartError"
	KindAcquisitionStop      = "AcquisitionStopError"
	KindCaptureTimeout       = "CaptureTimeout"
	KindCapture              = "CaptureError"
	KindDecode               = "DecodeError"
)

// DeviceInitializationError is returned when Search cannot open a device
type DeviceInitializationError struct {
	Cause error
}

func (e *DeviceInitializationError) Error() string {
	return fmt.Sprintf("failed to initialize camera: %v", e.Cause)
}

// Unwrap returns the cause
func (e *DeviceInitializationError) Unwrap() error { return e.Cause }

// UnknownFeatureError is returned when a setting names a feature absent from the registry
type UnknownFeatureError struct {
	Feature string
}

func (e *UnknownFeatureError) Error() string {
	return fmt.Sprintf("unknown feature '%s'", e.Feature)
}

// FeatureWriteError is a single feature assignment rejected by the device
type FeatureWriteError struct {
	Feature string
	Cause   error
}

func (e *FeatureWriteError) Error() string {
	return fmt.Sprintf("failed to set feature '%s': %v", e.Feature, e.Cause)
}

// Unwrap returns the cause
func (e *FeatureWriteError) Unwrap() error { return e.Cause }

// ConfigError collects the failures of one pass of Configure
type ConfigError struct {
	Failures []error
}

func (e *ConfigError) Error() string {
	strs := make([]string, len(e.Failures))
	for i, err := range e.Failures {
		strs[i] = err.Error()
	}
	return fmt.Sprintf("%d of the camera settings failed:\n%s", len(e.Failures), strings.Join(strs, "\n"))
}

// Unwrap exposes every failure to errors.Is and errors.As
func (e *ConfigError) Unwrap() []error { return e.Failures }

// AcquisitionStartError is returned when queueing a buffer or starting acquisition fails
type AcquisitionStartError struct {
	Cause error
}

func (e *AcquisitionStartError) Error() string {
	return fmt.Sprintf("failed to start capture: %v", e.Cause)
}

// Unwrap returns the cause
func (e *AcquisitionStartError) Unwrap() error { return e.Cause }

// AcquisitionStopError is returned when stopping acquisition fails
type AcquisitionStopError struct {
	Cause error
}

func (e *AcquisitionStopError) Error() string {
	return fmt.Sprintf("failed to stop capture: %v", e.Cause)
}

// Unwrap returns the cause
func (e *AcquisitionStopError) Unwrap() error { return e.Cause }

// CaptureTimeoutError is returned when no buffer completes within the capture timeout
type CaptureTimeoutError struct {
	Cause error
}

func (e *CaptureTimeoutError) Error() string {
	if e.Cause == nil {
		return "failed to capture image: no frame within timeout"
	}
	return fmt.Sprintf("failed to capture image: no frame within timeout: %v", e.Cause)
}

// Unwrap returns the cause
func (e *CaptureTimeoutError) Unwrap() error { return e.Cause }

// Timeout is always true
func (e *CaptureTimeoutError) Timeout() bool { return true }

// CaptureError is a wait failure other than a timeout
type CaptureError struct {
	Cause error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("failed to capture image: %v", e.Cause)
}

// Unwrap returns the cause
func (e *CaptureError) Unwrap() error { return e.Cause }

// DecodeError is returned when a raw buffer cannot be decoded
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Cause)
}

// Unwrap returns the cause
func (e *DecodeError) Unwrap() error { return e.Cause }

// KindOf names the taxonomy kind of err, or "" if it is not one of this package's errors
func KindOf(err error) string {
	var (
		dev   *DeviceInitializationError
		unk   *UnknownFeatureError
		write *FeatureWriteError
		cfg   *ConfigError
		start *AcquisitionStartError
		stop  *AcquisitionStopError
		tout  *CaptureTimeoutError
		capt  *CaptureError
		dec   *DecodeError
	)
	// wrappers are checked before what they wrap, a ConfigError can hold an
	// UnknownFeatureError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotInitialized):
		return KindNotInitialized
	case errors.As(err, &dev):
		return KindDeviceInitialization
	case errors.As(err, &cfg):
		return KindConfiguration
	case errors.As(err, &start):
		return KindAcquisitionStart
	case errors.As(err, &stop):
		return KindAcquisitionStop
	case errors.As(err, &tout):
		return KindCaptureTimeout
	case errors.As(err, &capt):
		return KindCapture
	case errors.As(err, &dec):
		return KindDecode
	case errors.As(err, &unk):
		return KindUnknownFeature
	case errors.As(err, &write):
		return KindFeatureWrite
	}
	return ""
}
