//go:build andor

package sdk3

import (
	"log"
	"strings"
	"time"
)

// simulatorModel is the CameraModel reported by the software cameras the SDK
// always enumerates
const simulatorModel = "SIMCAM"

// Camera represents a camera from SDK3
type Camera struct {
	// Handle holds the int that points to a specific camera
	Handle int

	// bufs holds every buffer allocated since the last Stop; the SDK may
	// still reference any of them until the queue is flushed
	bufs []buffer

	queued queueCount
}

// Open opens a connection to the camera.  Typically, a real camera
// is index 0, and there are two simulator cameras at indices 1 and 2
func Open(camIdx int) (*Camera, error) {
	h, err := open(camIdx)
	if err != nil {
		return nil, err
	}
	return &Camera{Handle: h}, nil
}

// Discover opens camera idx, or when idx < 0 the first camera that is not
// one of the SDK's simulators.  InitializeLibrary must be called first.
func Discover(idx int) (*Camera, error) {
	if idx >= 0 {
		return Open(idx)
	}
	n, err := DeviceCount()
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		c, err := Open(i)
		if err != nil {
			log.Printf("camera %d would not open: %v", i, err)
			continue
		}
		model, err := c.GetString("CameraModel")
		if err == nil && !strings.HasPrefix(model, simulatorModel) {
			return c, nil
		}
		c.Close()
	}
	return nil, ErrNoCamera
}

// SetInt sets an integer feature
func (c *Camera) SetInt(feature string, v int64) error { return SetInt(c.Handle, feature, v) }

// SetFloat sets a floating point feature
func (c *Camera) SetFloat(feature string, v float64) error { return SetFloat(c.Handle, feature, v) }

// SetBool sets a boolean feature
func (c *Camera) SetBool(feature string, v bool) error { return SetBool(c.Handle, feature, v) }

// SetString sets a string feature
func (c *Camera) SetString(feature, v string) error { return SetString(c.Handle, feature, v) }

// SetEnumString sets an enumerated feature by option name
func (c *Camera) SetEnumString(feature, v string) error { return SetEnumString(c.Handle, feature, v) }

// GetString gets a string feature, or the option name of an enumerated one
func (c *Camera) GetString(feature string) (string, error) {
	if Features[feature] == Enumerated {
		return GetEnumString(c.Handle, feature)
	}
	return GetString(c.Handle, feature)
}

// QueueBuffer allocates a buffer of ImageSizeBytes and puts it on the SDK's
// queue.  It must be called again whenever the AOI or encoding changes.
func (c *Camera) QueueBuffer() error {
	n, err := GetInt(c.Handle, "ImageSizeBytes")
	if err != nil {
		return err
	}
	b := allocBuffer(n)
	if err = queueBuffer(c.Handle, b); err != nil {
		b.free()
		return err
	}
	c.bufs = append(c.bufs, b)
	c.queued.add()
	return nil
}

// Start issues AcquisitionStart
func (c *Camera) Start() error {
	return IssueCommand(c.Handle, "AcquisitionStart")
}

// Stop issues AcquisitionStop and releases the queued buffers
func (c *Camera) Stop() error {
	err := IssueCommand(c.Handle, "AcquisitionStop")
	if ferr := c.release(); err == nil {
		err = ferr
	}
	return err
}

// release flushes the SDK queue and frees the buffers it held
func (c *Camera) release() error {
	err := flush(c.Handle)
	for _, b := range c.bufs {
		b.free()
	}
	c.bufs = nil
	c.queued.reset()
	return err
}

// WaitBuffer waits for the camera to fill a queued buffer and returns a copy of it
func (c *Camera) WaitBuffer(timeout time.Duration) ([]byte, error) {
	return c.queued.wait(timeout, func(d time.Duration) ([]byte, error) {
		return waitBuffer(c.Handle, d)
	})
}

// Layout reads the frame geometry currently programmed into the camera
func (c *Camera) Layout() (Layout, error) {
	var (
		l   Layout
		err error
	)
	if l.Width, err = GetInt(c.Handle, "AOIWidth"); err != nil {
		return l, err
	}
	if l.Height, err = GetInt(c.Handle, "AOIHeight"); err != nil {
		return l, err
	}
	if l.Stride, err = GetInt(c.Handle, "AOIStride"); err != nil {
		return l, err
	}
	if l.Encoding, err = GetEnumString(c.Handle, "PixelEncoding"); err != nil {
		return l, err
	}
	l.Metadata, err = GetBool(c.Handle, "MetadataEnable")
	return l, err
}

// Decode decodes a buffer returned by WaitBuffer with the camera's current layout
func (c *Camera) Decode(raw []byte) (Frame, error) {
	l, err := c.Layout()
	if err != nil {
		return Frame{}, err
	}
	return Decode(raw, l)
}

// Close closes a connection to the camera
func (c *Camera) Close() error {
	if len(c.bufs) > 0 {
		c.release()
	}
	return closeHandle(c.Handle)
}
