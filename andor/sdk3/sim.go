package sdk3

import (
	"fmt"
	"math"
	"sync"
	"time"
)

const (
	errReadonly      DRVError = 3
	errInvalidHandle DRVError = 12

	simSensorWidth  = 2560
	simSensorHeight = 2160

	// 100 MHz, same as a Zyla
	simClockFrequency = 100_000_000
)

var (
	// simEnums holds the options of each enumerated feature the simulator implements,
	// in SDK index order
	simEnums = map[string][]string{
		"AOIBinning":               {"1x1", "2x2", "3x3", "4x4", "8x8"},
		"AOILayout":                {"Image"},
		"BitDepth":                 {"11 Bit", "16 Bit"},
		"CycleMode":                {"Fixed", "Continuous"},
		"ElectronicShutteringMode": {"Rolling", "Global"},
		"FanSpeed":                 {"Off", "Low", "On"},
		"PixelEncoding":            PixelEncodings,
		"PixelReadoutRate":         {"100 MHz", "280 MHz"},
		"SimplePreAmpGainControl": {
			"12-bit (high well capacity)",
			"12-bit (low noise)",
			"16-bit (low noise & high well capacity)",
		},
		"TemperatureStatus": {"Cooler Off", "Stabilised", "Cooling", "Drift", "Not Stabilised", "Fault"},
		"TriggerMode":       {"Internal", "Software", "External", "External Start", "External Exposure"},
	}

	// simReadonly are features the simulator reports but refuses to write
	simReadonly = map[string]bool{
		"AOIStride":               true,
		"BitDepth":                true,
		"BytesPerPixel":           true,
		"CameraAcquiring":         true,
		"CameraModel":             true,
		"ControllerID":            true,
		"DeviceCount":             true,
		"DriverVersion":           true,
		"FirmwareVersion":         true,
		"ImageSizeBytes":          true,
		"InterfaceType":           true,
		"ReadoutTime":             true,
		"SensorHeight":            true,
		"SensorTemperature":       true,
		"SensorWidth":             true,
		"SerialNumber":            true,
		"TemperatureStatus":       true,
		"TimestampClock":          true,
		"TimestampClockFrequency": true,
	}
)

// Write is one feature assignment received by a Simulator
type Write struct {
	Feature string
	Value   interface{}
}

// Simulator is an in-memory stand-in for an SDK3 camera.  It implements the
// same methods as Camera, validates values the way the SDK does, and
// synthesises frames for the programmed AOI and encoding.
type Simulator struct {
	mu sync.Mutex

	ints    map[string]int64
	floats  map[string]float64
	bools   map[string]bool
	strs    map[string]string
	enums   map[string]string
	rejects map[string]error

	writes []Write

	queued    int
	acquiring bool
	delivered int
	ticks     uint64
	closed    bool

	// RowPadding is the number of bytes appended to each row, mirroring the
	// AOIStride padding real cameras add
	RowPadding int
}

// NewSimulator returns a simulator with a Neo/Zyla sized sensor at its
// power-on defaults
func NewSimulator() *Simulator {
	return &Simulator{
		ints: map[string]int64{
			"AccumulateCount": 1,
			"AOIHBin":         1,
			"AOIVBin":         1,
			"AOILeft":         1,
			"AOITop":          1,
			"AOIWidth":        simSensorWidth,
			"AOIHeight":       simSensorHeight,
			"BaselineLevel":   100,
			"DeviceCount":     1,
			"FrameCount":      1,
			"SensorWidth":     simSensorWidth,
			"SensorHeight":    simSensorHeight,

			"TimestampClockFrequency": simClockFrequency,
		},
		floats: map[string]float64{
			"ExposureTime":      0.01,
			"FrameRate":         10,
			"PixelHeight":       6.5,
			"PixelWidth":        6.5,
			"SensorTemperature": 20,
		},
		bools: map[string]bool{
			"FullAOIControl":          true,
			"MetadataEnable":          false,
			"MetadataTimestamp":       true,
			"Overlap":                 false,
			"SensorCooling":           false,
			"SpuriousNoiseFilter":     true,
			"StaticBlemishCorrection": true,
			"VerticallyCentreAOI":     false,
		},
		strs: map[string]string{
			"CameraModel":     "SIMCAM CMOS",
			"CameraName":      "Simulator",
			"ControllerID":    "SIM",
			"DriverVersion":   "3.15",
			"FirmwareVersion": "1.0.0",
			"InterfaceType":   "Simulated",
			"SerialNumber":    "SIM-0001",
		},
		enums: map[string]string{
			"AOIBinning":               "1x1",
			"AOILayout":                "Image",
			"BitDepth":                 "16 Bit",
			"CycleMode":                "Continuous",
			"ElectronicShutteringMode": "Rolling",
			"FanSpeed":                 "On",
			"PixelEncoding":            "Mono12",
			"PixelReadoutRate":         "100 MHz",
			"SimplePreAmpGainControl":  "12-bit (high well capacity)",
			"TemperatureStatus":        "Cooler Off",
			"TriggerMode":              "Internal",
		},
		rejects: map[string]error{},
	}
}

// Reject makes every subsequent write to feature fail with err
func (s *Simulator) Reject(feature string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejects[feature] = err
}

// Writes returns the feature writes received so far, in order
func (s *Simulator) Writes() []Write {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Write, len(s.writes))
	copy(out, s.writes)
	return out
}

// Acquiring reports if acquisition is running
func (s *Simulator) Acquiring() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acquiring
}

// Closed reports if Close has been called
func (s *Simulator) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// precheck is common to every write; the caller holds the lock
func (s *Simulator) precheck(feature string, value interface{}) error {
	if s.closed {
		return enrich(errInvalidHandle, feature)
	}
	s.writes = append(s.writes, Write{Feature: feature, Value: value})
	if err, ok := s.rejects[feature]; ok {
		return err
	}
	if simReadonly[feature] {
		return enrich(errReadonly, feature)
	}
	if s.acquiring {
		return enrich(errNotWritable, feature)
	}
	return nil
}

// SetInt sets an integer feature
func (s *Simulator) SetInt(feature string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precheck(feature, value); err != nil {
		return err
	}
	if _, ok := s.ints[feature]; !ok {
		return enrich(errNotImplemented, feature)
	}
	sw, sh := s.ints["SensorWidth"], s.ints["SensorHeight"]
	var ok bool
	switch feature {
	case "AOIWidth":
		ok = value >= 1 && s.ints["AOILeft"]+value-1 <= sw
	case "AOILeft":
		ok = value >= 1 && value+s.ints["AOIWidth"]-1 <= sw
	case "AOIHeight":
		ok = value >= 1 && s.ints["AOITop"]+value-1 <= sh
		if !ok && s.bools["VerticallyCentreAOI"] && value >= 1 && value <= sh {
			ok = true
		}
	case "AOITop":
		ok = value >= 1 && value+s.ints["AOIHeight"]-1 <= sh && !s.bools["VerticallyCentreAOI"]
	case "AccumulateCount", "FrameCount", "AOIHBin", "AOIVBin":
		ok = value >= 1
	default:
		ok = value >= 0
	}
	if !ok {
		return enrich(errOutOfRange, feature)
	}
	s.ints[feature] = value
	s.centre()
	return nil
}

// centre recomputes AOITop when vertical centring is on
func (s *Simulator) centre() {
	if s.bools["VerticallyCentreAOI"] {
		s.ints["AOITop"] = (s.ints["SensorHeight"]-s.ints["AOIHeight"])/2 + 1
	}
}

// SetFloat sets a floating point feature
func (s *Simulator) SetFloat(feature string, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precheck(feature, value); err != nil {
		return err
	}
	if _, ok := s.floats[feature]; !ok {
		return enrich(errNotImplemented, feature)
	}
	if feature == "ExposureTime" && (value < 1e-5 || value > 30) {
		return enrich(errOutOfRange, feature)
	}
	if value < 0 {
		return enrich(errOutOfRange, feature)
	}
	s.floats[feature] = value
	return nil
}

// SetBool sets a boolean feature
func (s *Simulator) SetBool(feature string, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precheck(feature, value); err != nil {
		return err
	}
	if _, ok := s.bools[feature]; !ok {
		return enrich(errNotImplemented, feature)
	}
	s.bools[feature] = value
	if feature == "SensorCooling" {
		if value {
			s.enums["TemperatureStatus"] = "Cooling"
		} else {
			s.enums["TemperatureStatus"] = "Cooler Off"
		}
	}
	s.centre()
	return nil
}

// SetString sets a string feature
func (s *Simulator) SetString(feature, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precheck(feature, value); err != nil {
		return err
	}
	if _, ok := s.strs[feature]; !ok {
		return enrich(errNotImplemented, feature)
	}
	s.strs[feature] = value
	return nil
}

// SetEnumString sets an enumerated feature by the name of one of its options
func (s *Simulator) SetEnumString(feature, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.precheck(feature, value); err != nil {
		return err
	}
	opts, ok := simEnums[feature]
	if !ok {
		return enrich(errNotImplemented, feature)
	}
	for _, o := range opts {
		if o == value {
			s.enums[feature] = value
			if feature == "AOIBinning" {
				var h, v int
				fmt.Sscanf(value, "%dx%d", &h, &v)
				s.ints["AOIHBin"], s.ints["AOIVBin"] = int64(h), int64(v)
			}
			return nil
		}
	}
	return enrich(errIndexNotAvail, fmt.Sprintf("%s=%q", feature, value))
}

// GetInt gets an integer feature
func (s *Simulator) GetInt(feature string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch feature {
	case "AOIStride":
		l, err := s.layout()
		return l.Stride, err
	case "ImageSizeBytes":
		n, err := s.imageSizeBytes()
		return n, err
	case "TimestampClock":
		return int(s.ticks), nil
	}
	v, ok := s.ints[feature]
	if !ok {
		return 0, enrich(errNotImplemented, feature)
	}
	return int(v), nil
}

// GetString gets a string or enumerated feature
func (s *Simulator) GetString(feature string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.strs[feature]; ok {
		return v, nil
	}
	if v, ok := s.enums[feature]; ok {
		return v, nil
	}
	return "", enrich(errNotImplemented, feature)
}

// layout is the current frame geometry; the caller holds the lock
func (s *Simulator) layout() (Layout, error) {
	l := Layout{
		Width:    int(s.ints["AOIWidth"] / s.ints["AOIHBin"]),
		Height:   int(s.ints["AOIHeight"] / s.ints["AOIVBin"]),
		Encoding: s.enums["PixelEncoding"],
		Metadata: s.bools["MetadataEnable"],
	}
	rb, err := BytesPerRow(l.Encoding, l.Width)
	if err != nil {
		return l, err
	}
	l.Stride = rb + s.RowPadding
	return l, nil
}

func (s *Simulator) imageSizeBytes() (int, error) {
	l, err := s.layout()
	if err != nil {
		return 0, err
	}
	n := l.Stride * l.Height
	if l.Metadata {
		// frame data, ticks, and frame info blocks
		n += 3*blockTrailer + 8 + 8
	}
	return n, nil
}

// QueueBuffer places one buffer on the simulated queue
func (s *Simulator) QueueBuffer() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return enrich(errInvalidHandle, "AT_QueueBuffer")
	}
	if _, err := s.imageSizeBytes(); err != nil {
		return enrich(errInvalidSize, "AT_QueueBuffer")
	}
	s.queued++
	return nil
}

// Start issues AcquisitionStart
func (s *Simulator) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return enrich(errInvalidHandle, "AcquisitionStart")
	}
	if s.acquiring {
		return enrich(errNotWritable, "AcquisitionStart")
	}
	s.acquiring = true
	s.delivered = 0
	return nil
}

// Stop issues AcquisitionStop.  Stopping an idle camera is not an error.
func (s *Simulator) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return enrich(errInvalidHandle, "AcquisitionStop")
	}
	s.acquiring = false
	s.queued = 0
	return nil
}

// WaitBuffer returns the next frame.  When no frame can complete, it fails
// with AT_ERR_TIMED_OUT at once rather than sleeping out the timeout.
func (s *Simulator) WaitBuffer(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, enrich(errInvalidHandle, "AT_WaitBuffer")
	}
	fixed := s.enums["CycleMode"] == "Fixed"
	if !s.acquiring || s.queued == 0 || (fixed && int64(s.delivered) >= s.ints["FrameCount"]) {
		return nil, enrich(errTimedOut, fmt.Sprintf("AT_WaitBuffer(%v)", timeout))
	}
	l, err := s.layout()
	if err != nil {
		return nil, err
	}
	mask := uint16(0xFFFF)
	if l.Encoding != "Mono16" {
		mask = 0x0FFF
	}
	pix := make([][]uint16, l.Height)
	for r := range pix {
		row := make([]uint16, l.Width)
		for c := range row {
			row[c] = uint16(r+c+s.delivered) & mask
		}
		pix[r] = row
	}
	s.ticks += uint64(math.Round(s.floats["ExposureTime"] * float64(s.ints["TimestampClockFrequency"])))
	buf, err := Encode(pix, s.ticks, l)
	if err != nil {
		return nil, err
	}
	s.queued--
	s.delivered++
	return buf, nil
}

// Decode decodes a buffer returned by WaitBuffer using the current AOI and encoding
func (s *Simulator) Decode(raw []byte) (Frame, error) {
	s.mu.Lock()
	l, err := s.layout()
	s.mu.Unlock()
	if err != nil {
		return Frame{}, err
	}
	return Decode(raw, l)
}

// Close releases the simulated handle
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return enrich(errInvalidHandle, "AT_Close")
	}
	s.closed = true
	s.acquiring = false
	return nil
}
