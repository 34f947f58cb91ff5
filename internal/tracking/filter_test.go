package tracking

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(lat, lon, acc float64) Sample {
	return Sample{Latitude: lat, Longitude: lon, AccuracyMeters: acc}
}

func TestHaversine(t *testing.T) {
	tests := []struct {
		name     string
		lat1     float64
		lon1     float64
		lat2     float64
		lon2     float64
		expected float64
		delta    float64
	}{
		{"same point", 10, 10, 10, 10, 0, 1e-9},
		{"1e-4 degree of longitude on the equator", 0, 0, 0, 0.0001, 11.1195, 0.001},
		{"1 degree of latitude", 0, 0, 1, 0, 111194.93, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2), tt.delta)
		})
	}
}

func TestFilter_InitialPosition(t *testing.T) {
	f := NewFilter(DefaultParams())

	d := f.Process(sample(0, 0, 10))

	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonInitialPosition, d.Reason)
	assert.Zero(t, f.TotalMeters())
	require.NotNil(t, f.State().LastAccepted)
	assert.Equal(t, 1, f.SampleCount())
}

func TestFilter_AcceptsWalkingMove(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))

	d := f.Process(sample(0, 0.0001, 10))

	assert.True(t, d.Accepted)
	assert.Equal(t, ReasonAccepted, d.Reason)
	assert.InDelta(t, 11.12, d.DistanceMeters, 0.01)
	assert.InDelta(t, 4.97, d.SpeedMph, 0.02)
	assert.InDelta(t, 11.12, f.TotalMeters(), 0.01)
	assert.Equal(t, 1, f.ValidatedMovements())
	assert.Equal(t, 0.0001, f.State().LastAccepted.Longitude)
}

func TestFilter_LowAccuracyIgnored(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))
	before := f.State()

	d := f.Process(sample(0, 0.0001, 65.1))

	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonLowAccuracy, d.Reason)
	assert.Equal(t, before.TotalMeters, f.TotalMeters())
	assert.Equal(t, *before.LastAccepted, *f.State().LastAccepted)
}

func TestFilter_LowAccuracyFirstSampleDoesNotSetPosition(t *testing.T) {
	f := NewFilter(DefaultParams())

	d := f.Process(sample(0, 0, 100))

	assert.Equal(t, ReasonLowAccuracy, d.Reason)
	assert.Nil(t, f.State().LastAccepted)
}

func TestFilter_AccuracyBoundaryIsAccepted(t *testing.T) {
	f := NewFilter(DefaultParams())

	d := f.Process(sample(0, 0, 65))

	assert.Equal(t, ReasonInitialPosition, d.Reason)
}

func TestFilter_ImplausibleSpeedIgnored(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))

	// 约 111 米，按 5 秒计约 50 mph
	d := f.Process(sample(0, 0.001, 10))

	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonImplausibleSpeed, d.Reason)
	assert.Greater(t, d.SpeedMph, 15.0)
	assert.Zero(t, f.TotalMeters())
	assert.Equal(t, 0.0, f.State().LastAccepted.Longitude)
}

func TestFilter_NoiseIgnored(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))

	// 约 2.2 米
	d := f.Process(sample(0, 0.00002, 10))

	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonNoise, d.Reason)
	assert.Zero(t, f.TotalMeters())
	assert.Equal(t, 0.0, f.State().LastAccepted.Longitude)
}

func TestFilter_NoiseAccumulatesAgainstLastAccepted(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))

	// 每步约 2.2 米，但基准点始终是原点
	assert.Equal(t, ReasonNoise, f.Process(sample(0, 0.00002, 10)).Reason)
	d := f.Process(sample(0, 0.00004, 10))

	assert.Equal(t, ReasonAccepted, d.Reason)
	assert.InDelta(t, 4.45, f.TotalMeters(), 0.01)
}

func TestFilter_MeasuredInterval(t *testing.T) {
	params := DefaultParams()
	params.IntervalMode = IntervalMeasured
	f := NewFilter(params)
	start := time.Date(2025, 9, 13, 7, 0, 0, 0, time.UTC)

	first := sample(0, 0, 10)
	first.Timestamp = start
	f.Process(first)

	// 30 秒约 111 米即 8.3 mph，固定 5 秒时会被拒绝
	next := sample(0, 0.001, 10)
	next.Timestamp = start.Add(30 * time.Second)
	d := f.Process(next)

	assert.True(t, d.Accepted)
	assert.InDelta(t, 8.29, d.SpeedMph, 0.05)
}

func TestFilter_MeasuredIntervalFallsBackWithoutTimestamps(t *testing.T) {
	params := DefaultParams()
	params.IntervalMode = IntervalMeasured
	f := NewFilter(params)
	f.Process(sample(0, 0, 10))

	d := f.Process(sample(0, 0.001, 10))

	assert.Equal(t, ReasonImplausibleSpeed, d.Reason)
}

func TestFilter_TotalNeverDecreases(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	f := NewFilter(DefaultParams())
	lat, lon := 40.0, -74.0
	prev := 0.0

	for i := 0; i < 2000; i++ {
		lat += (r.Float64() - 0.5) * 0.0004
		lon += (r.Float64() - 0.5) * 0.0004
		d := f.Process(sample(lat, lon, r.Float64()*100))

		assert.GreaterOrEqual(t, d.TotalMeters, prev)
		if !d.Accepted {
			assert.Equal(t, prev, d.TotalMeters)
		}
		prev = d.TotalMeters
	}
	assert.Equal(t, 2000, f.SampleCount())
}

func TestFilter_ResetAndRestore(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(0, 0, 10))
	f.Process(sample(0, 0.0001, 10))

	restored := RestoreFilter(DefaultParams(), f.State())
	assert.Equal(t, f.TotalMeters(), restored.TotalMeters())
	assert.Equal(t, f.ValidatedMovements(), restored.ValidatedMovements())

	d := restored.Process(sample(0, 0.0002, 10))
	assert.True(t, d.Accepted)
	assert.InDelta(t, 22.24, restored.TotalMeters(), 0.02)

	f.Reset()
	assert.Zero(t, f.TotalMeters())
	assert.Zero(t, f.SampleCount())
	assert.Nil(t, f.State().LastAccepted)
}

func TestFilter_Miles(t *testing.T) {
	f := RestoreFilter(DefaultParams(), State{TotalMeters: 1609.344 * 2.5})
	assert.InDelta(t, 2.5, f.Miles(), 1e-9)
}

func TestHaversine_NearAntipodalStaysFinite(t *testing.T) {
	d := Haversine(-72.54548659539277, -71.67173018929665, 72.54548659691403, 108.32826984206734)

	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusMeters, d, 1)
}

func TestFilter_AntipodalJumpRejectedAsSpeed(t *testing.T) {
	f := NewFilter(DefaultParams())
	f.Process(sample(-72.54548659539277, -71.67173018929665, 10))

	d := f.Process(sample(72.54548659691403, 108.32826984206734, 10))

	assert.False(t, d.Accepted)
	assert.Equal(t, ReasonImplausibleSpeed, d.Reason)
	assert.Zero(t, f.TotalMeters())
	assert.Zero(t, f.ValidatedMovements())
}

func TestFilter_InvalidPositionIgnored(t *testing.T) {
	tests := []struct {
		name string
		s    Sample
	}{
		{"latitude above 90", sample(90.5, 0, 10)},
		{"latitude below -90", sample(-91, 0, 10)},
		{"longitude above 180", sample(0, 180.01, 10)},
		{"longitude below -180", sample(0, -200, 10)},
		{"NaN latitude", sample(math.NaN(), 0, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(DefaultParams())
			f.Process(sample(0, 0, 10))

			d := f.Process(tt.s)

			assert.Equal(t, ReasonInvalidPosition, d.Reason)
			assert.Zero(t, f.TotalMeters())
			assert.Equal(t, 0.0, f.State().LastAccepted.Latitude)
		})
	}

	f := NewFilter(DefaultParams())
	assert.Equal(t, ReasonInvalidPosition, f.Process(sample(100, 0, 10)).Reason)
	assert.Nil(t, f.State().LastAccepted)
}

func TestFilter_NaNAccuracyIgnored(t *testing.T) {
	f := NewFilter(DefaultParams())

	d := f.Process(sample(0, 0, math.NaN()))

	assert.Equal(t, ReasonLowAccuracy, d.Reason)
	assert.Nil(t, f.State().LastAccepted)
}
