package session

import (
	"fmt"
	"math"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
)

// Setting is one feature assignment applied by Configure
type Setting struct {
	Feature string      `yaml:"Feature" koanf:"Feature" json:"feature"`
	Value   interface{} `yaml:"Value" koanf:"Value" json:"value"`
}

// DefaultSettings returns the capture configuration: a cooled sensor,
// internally triggered 10 ms rolling shutter exposures in 16-bit mode with
// onboard corrections off, reading only the middle 128 rows of the sensor
func DefaultSettings() []Setting {
	return []Setting{
		{"SensorCooling", true},
		{"FanSpeed", "On"},
		{"CycleMode", "Fixed"},
		{"AccumulateCount", 1},
		{"TriggerMode", "Internal"},
		{"ExposureTime", 0.01},
		{"ElectronicShutteringMode", "Rolling"},
		{"Overlap", true},
		{"SimplePreAmpGainControl", "16-bit (low noise & high well capacity)"},
		{"PixelReadoutRate", "280 MHz"},
		{"PixelEncoding", "Mono16"},
		{"SpuriousNoiseFilter", false},
		{"StaticBlemishCorrection", false},
		{"MetadataEnable", false},

		{"AOIHeight", 128},
		{"AOILeft", 1},
		{"AOIWidth", 2560},
		{"VerticallyCentreAOI", true},
	}
}

// FeatureResult is the outcome of one setting
type FeatureResult struct {
	Feature string
	Kind    sdk3.Kind
	Value   interface{}

	// Err is nil when the device accepted the write
	Err error
}

// ConfigReport holds one FeatureResult per setting, in the order applied
type ConfigReport struct {
	Results []FeatureResult
}

// Err returns a *ConfigError holding every failed write, or nil
func (r ConfigReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &ConfigError{Failures: errs}
}

// Failed lists the features whose write failed
func (r ConfigReport) Failed() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Feature)
		}
	}
	return out
}

// asInt accepts any integer, or a float with no fractional part since
// JSON and some YAML producers hand those back for whole numbers
func asInt(v interface{}) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1<<53 {
			return int64(t), true
		}
	}
	return 0, false
}

func asFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// apply dispatches one setting to the typed setter matching its kind
func apply(dev Device, s Setting) FeatureResult {
	res := FeatureResult{Feature: s.Feature, Value: s.Value}
	kind, err := sdk3.Lookup(s.Feature)
	if err != nil {
		res.Err = &UnknownFeatureError{Feature: s.Feature}
		return res
	}
	res.Kind = kind
	mismatch := fmt.Errorf("%w: %v (%T) is not %s", ErrValueType, s.Value, s.Value, kind)
	switch kind {
	case sdk3.Integer:
		i, ok := asInt(s.Value)
		if !ok {
			err = mismatch
			break
		}
		err = dev.SetInt(s.Feature, i)
	case sdk3.FloatingPoint:
		f, ok := asFloat(s.Value)
		if !ok {
			err = mismatch
			break
		}
		err = dev.SetFloat(s.Feature, f)
	case sdk3.Boolean:
		b, ok := s.Value.(bool)
		if !ok {
			err = mismatch
			break
		}
		err = dev.SetBool(s.Feature, b)
	case sdk3.String, sdk3.Enumerated:
		str, ok := s.Value.(string)
		if !ok {
			err = mismatch
			break
		}
		if kind == sdk3.Enumerated {
			err = dev.SetEnumString(s.Feature, str)
		} else {
			err = dev.SetString(s.Feature, str)
		}
	default:
		err = ErrNotAssignable
	}
	if err != nil {
		res.Err = &FeatureWriteError{Feature: s.Feature, Cause: err}
	}
	return res
}
