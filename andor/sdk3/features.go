/*Package sdk3 exposes control of Andor cameras in Go via their SDK, v3.

The package holds the feature registry, the driver error table, and decoding
of raw frames into pixel grids, none of which need the SDK to be installed.
The cgo back-end (Camera) is only compiled with the andor build tag; the
Simulator implements the same method set in pure Go.
*/
package sdk3

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Kind is the primitive type of an SDK3 feature
type Kind int

const (
	// Integer features are set with AT_SetInt
	Integer Kind = iota

	// FloatingPoint features are set with AT_SetFloat
	FloatingPoint

	// Boolean features are set with AT_SetBool
	Boolean

	// String features are set with AT_SetString
	String

	// Enumerated features are set by symbolic name with AT_SetEnumString
	Enumerated

	// Command features are issued with AT_Command and hold no value
	Command
)

var kindNames = map[Kind]string{
	Integer:       "Integer",
	FloatingPoint: "Floating Point",
	Boolean:       "Boolean",
	String:        "String",
	Enumerated:    "Enumerated",
	Command:       "Command",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalJSON encodes the kind by its human name
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its human name
func (k *Kind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("%q is not a feature kind", s)
}

// ErrFeatureNotFound is generated when a feature is looked up in the Features
// map but does not exist there
type ErrFeatureNotFound struct {
	// Feature is the specific feature not found
	Feature string
}

// Error satisfies the error interface
func (e ErrFeatureNotFound) Error() string {
	return fmt.Sprintf("feature %s not found in Features map, see andor/sdk3#Features for known features", e.Feature)
}

var (
	// Features maps feature names to their primitive kind.  It is populated
	// once and must not be mutated.
	Features = map[string]Kind{
		// ints
		"AccumulateCount":         Integer,
		"AOIHBin":                 Integer,
		"AOIVBin":                 Integer,
		"AOILeft":                 Integer,
		"AOITop":                  Integer,
		"AOIStride":               Integer,
		"AOIHeight":               Integer,
		"AOIWidth":                Integer,
		"BaselineLevel":           Integer,
		"BufferOverflowEvent":     Integer,
		"DeviceCount":             Integer,
		"DeviceVideoIndex":        Integer,
		"EventsMissedEvent":       Integer,
		"ExposureStartEvent":      Integer,
		"ExposureEndEvent":        Integer,
		"FrameCount":              Integer,
		"ImageSizeBytes":          Integer,
		"LUTIndex":                Integer,
		"LUTValue":                Integer,
		"RowNExposureEndEvent":    Integer,
		"RowNExposureStartEvent":  Integer,
		"SensorHeight":            Integer,
		"SensorWidth":             Integer,
		"TimestampClock":          Integer,
		"TimestampClockFrequency": Integer,

		// bools
		"CameraAcquiring":         Boolean,
		"EventEnable":             Boolean,
		"FullAOIControl":          Boolean,
		"IOInvert":                Boolean,
		"MetadataEnable":          Boolean,
		"MetadataFrame":           Boolean,
		"MetadataTimestamp":       Boolean,
		"Overlap":                 Boolean,
		"SensorCooling":           Boolean,
		"SpuriousNoiseFilter":     Boolean,
		"StaticBlemishCorrection": Boolean,
		"SynchronousTriggering":   Boolean,
		"VerticallyCentreAOI":     Boolean,

		// commands
		"AcquisitionStart":    Command,
		"AcquisitionStop":     Command,
		"CameraDump":          Command,
		"SoftwareTrigger":     Command,
		"TimestampClockReset": Command,

		// floats
		"BytesPerPixel":            FloatingPoint,
		"ExposureTime":             FloatingPoint,
		"FrameRate":                FloatingPoint,
		"MaxInterfaceTransferRate": FloatingPoint,
		"PixelHeight":              FloatingPoint,
		"PixelWidth":               FloatingPoint,
		"ReadoutTime":              FloatingPoint,
		"SensorTemperature":        FloatingPoint,

		// enums
		"AOIBinning":               Enumerated,
		"AOILayout":                Enumerated,
		"BitDepth":                 Enumerated,
		"CycleMode":                Enumerated,
		"ElectronicShutteringMode": Enumerated,
		"FanSpeed":                 Enumerated,
		"PixelEncoding":            Enumerated,
		"PixelReadoutRate":         Enumerated,
		"SimplePreAmpGainControl":  Enumerated,
		"TemperatureControl":       Enumerated,
		"TemperatureStatus":        Enumerated,
		"TriggerMode":              Enumerated,

		// strings
		"CameraModel":     String,
		"CameraName":      String,
		"ControllerID":    String,
		"DriverVersion":   String,
		"FirmwareVersion": String,
		"InterfaceType":   String,
		"SerialNumber":    String,
	}
)

// Lookup returns the kind of a feature, or ErrFeatureNotFound
func Lookup(feature string) (Kind, error) {
	k, ok := Features[feature]
	if !ok {
		return 0, ErrFeatureNotFound{Feature: feature}
	}
	return k, nil
}

// FeatureNames returns the registry keys in sorted order
func FeatureNames() []string {
	names := make([]string, 0, len(Features))
	for k := range Features {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
