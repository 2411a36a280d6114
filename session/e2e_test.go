package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nasa-jpl/andor3ctl/andor/sdk3"
)

func simulated(sim *sdk3.Simulator) Opener {
	return func() (Device, error) { return sim, nil }
}

func TestSimulatedCaptureCycle(t *testing.T) {
	sim := sdk3.NewSimulator()
	s := New(simulated(sim), Config{})
	require.NoError(t, s.Search())
	assert.NotEmpty(t, s.ID())

	r, err := s.StartCapture()
	require.NoError(t, err)
	require.NoError(t, r.Err())
	assert.Equal(t, Acquiring, s.State())
	assert.True(t, sim.Acquiring())

	writes := sim.Writes()
	defaults := DefaultSettings()
	require.Len(t, writes, len(defaults))
	for i, set := range defaults {
		assert.Equal(t, set.Feature, writes[i].Feature, "write %d out of order", i)
	}

	top, err := sim.GetInt("AOITop")
	require.NoError(t, err)
	assert.Equal(t, (2160-128)/2+1, top)

	img, err := s.CaptureImage()
	require.NoError(t, err)
	assert.Equal(t, 2560, img.Width)
	assert.Equal(t, 128, img.Height)
	require.Len(t, img.Pix, 128)
	require.Len(t, img.Pix[0], 2560)
	assert.Equal(t, uint16(127+2559), img.Pix[127][2559])
	assert.Zero(t, img.Timestamp, "metadata is off by default")

	// fixed mode with a frame count of one
	_, err = s.CaptureImage()
	assert.Equal(t, KindCaptureTimeout, KindOf(err))

	require.NoError(t, s.StopCapture())
	assert.Equal(t, Connected, s.State())
	assert.False(t, sim.Acquiring())

	require.NoError(t, s.Close())
	assert.True(t, sim.Closed())
}

func TestSimulatedRejectedFeatureStillAcquires(t *testing.T) {
	sim := sdk3.NewSimulator()
	sim.Reject("SpuriousNoiseFilter", sdk3.Error(5))
	s := New(simulated(sim), Config{})
	require.NoError(t, s.Search())

	r, err := s.StartCapture()
	require.NoError(t, err)
	assert.Equal(t, []string{"SpuriousNoiseFilter"}, r.Failed())
	assert.Len(t, sim.Writes(), len(DefaultSettings()))

	_, err = s.CaptureImage()
	assert.NoError(t, err)
}

func TestSimulatedMetadataTimestamp(t *testing.T) {
	sim := sdk3.NewSimulator()
	settings := append(DefaultSettings(), Setting{"MetadataEnable", true}, Setting{"CycleMode", "Continuous"})
	s := New(simulated(sim), Config{Settings: settings})
	require.NoError(t, s.Search())
	_, err := s.StartCapture()
	require.NoError(t, err)

	img, err := s.CaptureImage()
	require.NoError(t, err)
	// one 10 ms exposure on a 100 MHz clock
	assert.Equal(t, uint64(1_000_000), img.Timestamp)
	assert.Equal(t, 128, img.Height)
}

func TestSimulatedWritesRejectedWhileAcquiring(t *testing.T) {
	sim := sdk3.NewSimulator()
	s := New(simulated(sim), Config{})
	require.NoError(t, s.Search())
	_, err := s.StartCapture()
	require.NoError(t, err)

	err = s.SetFeature("ExposureTime", 0.5)
	assert.Equal(t, KindFeatureWrite, KindOf(err))
	var drv sdk3.DRVError
	assert.True(t, errors.As(err, &drv))
}

func TestFailedSearchThenStart(t *testing.T) {
	s := New(func() (Device, error) { return nil, sdk3.ErrNoCamera }, Config{})
	err := s.Search()
	assert.Equal(t, KindDeviceInitialization, KindOf(err))
	assert.ErrorIs(t, err, sdk3.ErrNoCamera)

	_, err = s.StartCapture()
	assert.ErrorIs(t, err, ErrNotInitialized)
}
