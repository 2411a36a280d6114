package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
)

// mockDevice records every call made into the device layer
type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) SetInt(f string, v int64) error { return m.Called(f, v).Error(0) }
func (m *mockDevice) SetFloat(f string, v float64) error { return m.Called(f, v).Error(0) }
func (m *mockDevice) SetBool(f string, v bool) error { return m.Called(f, v).Error(0) }
func (m *mockDevice) SetString(f, v string) error { return m.Called(f, v).Error(0) }
func (m *mockDevice) SetEnumString(f, v string) error { return m.Called(f, v).Error(0) }
func (m *mockDevice) QueueBuffer() error { return m.Called().Error(0) }
func (m *mockDevice) Start() error { return m.Called().Error(0) }
func (m *mockDevice) Stop() error { return m.Called().Error(0) }
func (m *mockDevice) Close() error { return m.Called().Error(0) }
func (m *mockDevice) Decode(raw []byte) (sdk3.Frame, error) {
	args := m.Called(raw)
	return args.Get(0).(sdk3.Frame), args.Error(1)
}
func (m *mockDevice) WaitBuffer(d time.Duration) ([]byte, error) {
	args := m.Called(d)
	raw, _ := args.Get(0).([]byte)
	return raw, args.Error(1)
}

// acceptAll makes every setter succeed
func (m *mockDevice) acceptAll() *mockDevice {
	for _, meth := range []string{"SetInt", "SetFloat", "SetBool", "SetString", "SetEnumString"} {
		m.On(meth, mock.Anything, mock.Anything).Return(nil).Maybe()
	}
	return m
}

func openerFor(dev Device) Opener {
	return func() (Device, error) { return dev, nil }
}

func connected(t *testing.T, dev Device, cfg Config) *Session {
	t.Helper()
	s := New(openerFor(dev), cfg)
	require.NoError(t, s.Search())
	return s
}

// setterCalls lists the feature names passed to setters, in call order
func setterCalls(m *mockDevice) []string {
	var out []string
	for _, c := range m.Calls {
		if len(c.Arguments) == 2 {
			out = append(out, c.Arguments.String(0))
		}
	}
	return out
}

func TestOperationsWithoutHandleDoNotTouchDevice(t *testing.T) {
	dev := &mockDevice{}
	s := New(openerFor(dev), Config{})

	_, err := s.Configure()
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = s.StartCapture()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.StopCapture(), ErrNotInitialized)
	_, err = s.CaptureImage()
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.SetFeature("Overlap", true), ErrNotInitialized)
	assert.Equal(t, KindNotInitialized, KindOf(err))

	assert.NoError(t, s.Close())
	assert.Empty(t, dev.Calls)
	assert.Equal(t, Uninitialized, s.State())
	assert.Equal(t, "", s.ID())
}

func TestSearchFailureStaysUninitialized(t *testing.T) {
	cause := sdk3.DRVError(39)
	s := New(func() (Device, error) { return nil, cause }, Config{})

	err := s.Search()
	var ie *DeviceInitializationError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindDeviceInitialization, KindOf(err))
	assert.Equal(t, Uninitialized, s.State())

	_, err = s.StartCapture()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestSearchReleasesPreviousHandle(t *testing.T) {
	first := &mockDevice{}
	first.On("Close").Return(nil).Once()
	second := &mockDevice{}
	devs := []Device{first, second}
	s := New(func() (Device, error) {
		d := devs[0]
		devs = devs[1:]
		return d, nil
	}, Config{})

	require.NoError(t, s.Search())
	id := s.ID()
	require.NoError(t, s.Search())
	first.AssertExpectations(t)
	assert.NotEqual(t, id, s.ID(), "a new search gets a new session id")
	assert.Equal(t, Connected, s.State())
}

func TestConfigureAppliesDefaultsInOrderByKind(t *testing.T) {
	dev := (&mockDevice{}).acceptAll()
	s := connected(t, dev, Config{})

	r, err := s.Configure()
	require.NoError(t, err)
	require.Len(t, r.Results, 18)

	want := make([]string, 0, 18)
	for _, set := range DefaultSettings() {
		want = append(want, set.Feature)
	}
	assert.Equal(t, want, setterCalls(dev))

	dev.AssertCalled(t, "SetBool", "SensorCooling", true)
	dev.AssertCalled(t, "SetEnumString", "FanSpeed", "On")
	dev.AssertCalled(t, "SetInt", "AccumulateCount", int64(1))
	dev.AssertCalled(t, "SetFloat", "ExposureTime", 0.01)
	dev.AssertCalled(t, "SetEnumString", "SimplePreAmpGainControl", "16-bit (low noise & high well capacity)")
	dev.AssertCalled(t, "SetInt", "AOIWidth", int64(2560))
	dev.AssertNotCalled(t, "SetString", mock.Anything, mock.Anything)
	assert.Equal(t, Configured, s.State())
}

func TestConfigureContinuesPastRejectedFeature(t *testing.T) {
	rejected := sdk3.DRVError(5)
	dev := &mockDevice{}
	dev.On("SetEnumString", "PixelReadoutRate", "280 MHz").Return(rejected)
	dev.acceptAll()
	s := connected(t, dev, Config{})

	r, err := s.Configure()
	require.Error(t, err)
	assert.Equal(t, KindConfiguration, KindOf(err))
	assert.ErrorIs(t, err, rejected)
	assert.Equal(t, []string{"PixelReadoutRate"}, r.Failed())
	assert.Len(t, setterCalls(dev), 18, "every feature is still attempted")

	for _, res := range r.Results {
		if res.Feature == "PixelReadoutRate" {
			var we *FeatureWriteError
			require.True(t, errors.As(res.Err, &we))
			assert.Equal(t, "PixelReadoutRate", we.Feature)
			continue
		}
		assert.NoError(t, res.Err, res.Feature)
	}
}

func TestConfigureUnknownFeatureCallsNoSetter(t *testing.T) {
	dev := (&mockDevice{}).acceptAll()
	settings := []Setting{{"NotAFeature", 3}, {"AOIHeight", 64}}
	s := connected(t, dev, Config{Settings: settings})

	r, err := s.Configure()
	require.Error(t, err)
	var unk *UnknownFeatureError
	require.True(t, errors.As(r.Results[0].Err, &unk))
	assert.Equal(t, "NotAFeature", unk.Feature)
	assert.Equal(t, KindUnknownFeature, KindOf(r.Results[0].Err))
	assert.Equal(t, []string{"AOIHeight"}, setterCalls(dev))
}

func TestConfigureValueKindMismatch(t *testing.T) {
	dev := (&mockDevice{}).acceptAll()
	settings := []Setting{
		{"AOIHeight", "tall"},
		{"ExposureTime", 1},
		{"AOIWidth", float64(512)},
		{"AOILeft", 1.5},
		{"AcquisitionStart", true},
	}
	s := connected(t, dev, Config{Settings: settings})

	r, _ := s.Configure()
	assert.ErrorIs(t, r.Results[0].Err, ErrValueType)
	assert.NoError(t, r.Results[1].Err, "ints widen to floats")
	assert.NoError(t, r.Results[2].Err, "whole floats narrow to ints")
	assert.ErrorIs(t, r.Results[3].Err, ErrValueType)
	assert.ErrorIs(t, r.Results[4].Err, ErrNotAssignable)
	dev.AssertCalled(t, "SetFloat", "ExposureTime", 1.0)
	dev.AssertCalled(t, "SetInt", "AOIWidth", int64(512))
	assert.Equal(t, []string{"ExposureTime", "AOIWidth"}, setterCalls(dev))
}

func TestStartCaptureAttemptsAcquisitionAfterPartialConfig(t *testing.T) {
	dev := &mockDevice{}
	dev.On("SetBool", "Overlap", true).Return(errors.New("nope"))
	dev.acceptAll()
	dev.On("QueueBuffer").Return(nil).Once()
	dev.On("Start").Return(nil).Once()
	s := connected(t, dev, Config{})

	r, err := s.StartCapture()
	require.NoError(t, err)
	assert.Equal(t, []string{"Overlap"}, r.Failed())
	dev.AssertExpectations(t)
	assert.Equal(t, Acquiring, s.State())
}

func TestStartCaptureFailures(t *testing.T) {
	cause := sdk3.DRVError(15)
	t.Run("queue", func(t *testing.T) {
		dev := (&mockDevice{}).acceptAll()
		dev.On("QueueBuffer").Return(cause)
		s := connected(t, dev, Config{})
		_, err := s.StartCapture()
		var se *AcquisitionStartError
		require.True(t, errors.As(err, &se))
		assert.ErrorIs(t, err, cause)
		dev.AssertNotCalled(t, "Start")
		assert.Equal(t, Configured, s.State())
	})
	t.Run("start", func(t *testing.T) {
		dev := (&mockDevice{}).acceptAll()
		dev.On("QueueBuffer").Return(nil)
		dev.On("Start").Return(cause)
		s := connected(t, dev, Config{})
		_, err := s.StartCapture()
		assert.Equal(t, KindAcquisitionStart, KindOf(err))
	})
}

func TestStopCapture(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Stop").Return(nil).Once()
	s := connected(t, dev, Config{})
	require.NoError(t, s.StopCapture())
	assert.Equal(t, Connected, s.State())

	dev.On("Stop").Return(sdk3.DRVError(17))
	err := s.StopCapture()
	assert.Equal(t, KindAcquisitionStop, KindOf(err))
}

func TestCaptureImageRoundTripsDecode(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	frame := sdk3.Frame{Pix: [][]uint16{{1, 2}, {3, 4}}, Width: 2, Height: 2, Timestamp: 987654}
	dev := &mockDevice{}
	dev.On("WaitBuffer", 250*time.Millisecond).Return(raw, nil)
	dev.On("Decode", raw).Return(frame, nil)
	s := connected(t, dev, Config{CaptureTimeout: 250 * time.Millisecond})

	res, err := s.CaptureImage()
	require.NoError(t, err)
	assert.Equal(t, frame.Pix, res.Pix)
	assert.Equal(t, frame.Timestamp, res.Timestamp)
	assert.Equal(t, 2, res.Width)
	assert.Equal(t, 2, res.Height)
	assert.False(t, res.Received.IsZero())
}

func TestCaptureImageTimeout(t *testing.T) {
	t.Run("driver timeout", func(t *testing.T) {
		dev := &mockDevice{}
		dev.On("WaitBuffer", DefaultCaptureTimeout).Return(nil, sdk3.DRVError(13))
		s := connected(t, dev, Config{})
		_, err := s.CaptureImage()
		var te *CaptureTimeoutError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, KindCaptureTimeout, KindOf(err))
		dev.AssertNotCalled(t, "Decode", mock.Anything)
	})
	t.Run("no buffer", func(t *testing.T) {
		dev := &mockDevice{}
		dev.On("WaitBuffer", DefaultCaptureTimeout).Return(nil, nil)
		s := connected(t, dev, Config{})
		_, err := s.CaptureImage()
		assert.Equal(t, KindCaptureTimeout, KindOf(err))
	})
	t.Run("other wait failure", func(t *testing.T) {
		dev := &mockDevice{}
		dev.On("WaitBuffer", DefaultCaptureTimeout).Return(nil, sdk3.DRVError(10))
		s := connected(t, dev, Config{})
		_, err := s.CaptureImage()
		assert.Equal(t, KindCapture, KindOf(err))
	})
}

func TestCaptureImageDecodeError(t *testing.T) {
	dev := &mockDevice{}
	dev.On("WaitBuffer", DefaultCaptureTimeout).Return([]byte{0}, nil)
	dev.On("Decode", []byte{0}).Return(sdk3.Frame{}, sdk3.ErrShortBuffer)
	s := connected(t, dev, Config{})
	_, err := s.CaptureImage()
	assert.Equal(t, KindDecode, KindOf(err))
	assert.ErrorIs(t, err, sdk3.ErrShortBuffer)
}

func TestCloseReleasesHandle(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Close").Return(nil).Once()
	s := connected(t, dev, Config{})
	require.NoError(t, s.Close())
	dev.AssertExpectations(t)
	assert.Equal(t, Uninitialized, s.State())
	assert.ErrorIs(t, s.StopCapture(), ErrNotInitialized)
}
