package tracking

import (
	"math"
	"time"
)

const (
	EarthRadiusMeters = 6371000.0
	MetersPerMile     = 1609.344
	// MpsToMph 米/秒 换算为 英里/小时
	MpsToMph = 2.237
)

// Sample 设备定位传感器上报的一次定位
type Sample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy"`
	Timestamp      time.Time `json:"timestamp"`
}

type IntervalMode string

const (
	// IntervalFixed 假定每个样本间隔固定为 AssumedInterval
	IntervalFixed IntervalMode = "fixed"
	// IntervalMeasured 两个样本都带时间戳时使用实际时间差
	IntervalMeasured IntervalMode = "measured"
)

type Params struct {
	MaxAccuracyMeters float64
	MaxSpeedMph       float64
	MinMovementMeters float64
	AssumedInterval   time.Duration
	IntervalMode      IntervalMode
}

func DefaultParams() Params {
	return Params{
		MaxAccuracyMeters: 65,
		MaxSpeedMph:       15,
		MinMovementMeters: 3,
		AssumedInterval:   5 * time.Second,
		IntervalMode:      IntervalFixed,
	}
}

type Reason string

const (
	ReasonLowAccuracy      Reason = "low_accuracy"
	ReasonInitialPosition  Reason = "initial_position"
	ReasonImplausibleSpeed Reason = "implausible_speed"
	ReasonAccepted         Reason = "accepted"
	ReasonNoise            Reason = "gps_noise"
	ReasonInvalidPosition  Reason = "invalid_position"
)

// Decision 单个样本的处理结果
type Decision struct {
	Accepted       bool    `json:"accepted"`
	Reason         Reason  `json:"reason"`
	DistanceMeters float64 `json:"distance_meters"`
	SpeedMph       float64 `json:"speed_mph"`
	TotalMeters    float64 `json:"total_meters"`
}

// State 过滤器中可序列化的状态，会话在请求之间保存它
type State struct {
	LastAccepted       *Sample `json:"last_accepted,omitempty"`
	TotalMeters        float64 `json:"total_meters"`
	SampleCount        int     `json:"sample_count"`
	ValidatedMovements int     `json:"validated_movements"`
}

// Filter 把原始定位流转换为单调不减的有效里程，非并发安全
type Filter struct {
	params Params
	state  State
}

func NewFilter(params Params) *Filter {
	return &Filter{params: params}
}

// RestoreFilter 从保存的状态恢复过滤器
func RestoreFilter(params Params, state State) *Filter {
	return &Filter{params: params, state: state}
}

func (f *Filter) State() State {
	s := f.state
	if s.LastAccepted != nil {
		last := *s.LastAccepted
		s.LastAccepted = &last
	}
	return s
}

func (f *Filter) Reset() {
	f.state = State{}
}

func (f *Filter) TotalMeters() float64 {
	return f.state.TotalMeters
}

func (f *Filter) Miles() float64 {
	return f.state.TotalMeters / MetersPerMile
}

func (f *Filter) SampleCount() int {
	return f.state.SampleCount
}

func (f *Filter) ValidatedMovements() int {
	return f.state.ValidatedMovements
}

// Process 处理一个样本，只有被接受的移动才会累加 TotalMeters。
// 比较都写成 NaN 不通过的形式
func (f *Filter) Process(s Sample) Decision {
	f.state.SampleCount++

	if !validPosition(s) {
		return f.reject(ReasonInvalidPosition, 0, 0)
	}

	if !(s.AccuracyMeters <= f.params.MaxAccuracyMeters) {
		return f.reject(ReasonLowAccuracy, 0, 0)
	}

	if f.state.LastAccepted == nil {
		first := s
		f.state.LastAccepted = &first
		return f.reject(ReasonInitialPosition, 0, 0)
	}

	last := *f.state.LastAccepted
	d := Haversine(last.Latitude, last.Longitude, s.Latitude, s.Longitude)
	speed := d / f.interval(last, s).Seconds() * MpsToMph

	if !(speed <= f.params.MaxSpeedMph) {
		return f.reject(ReasonImplausibleSpeed, d, speed)
	}

	if !(d >= f.params.MinMovementMeters) {
		return f.reject(ReasonNoise, d, speed)
	}

	accepted := s
	f.state.LastAccepted = &accepted
	f.state.TotalMeters += d
	f.state.ValidatedMovements++

	return Decision{
		Accepted:       true,
		Reason:         ReasonAccepted,
		DistanceMeters: d,
		SpeedMph:       speed,
		TotalMeters:    f.state.TotalMeters,
	}
}

func (f *Filter) reject(reason Reason, d, speed float64) Decision {
	return Decision{
		Reason:         reason,
		DistanceMeters: d,
		SpeedMph:       speed,
		TotalMeters:    f.state.TotalMeters,
	}
}

func (f *Filter) interval(last, cur Sample) time.Duration {
	if f.params.IntervalMode == IntervalMeasured && !last.Timestamp.IsZero() && !cur.Timestamp.IsZero() {
		if dt := cur.Timestamp.Sub(last.Timestamp); dt > 0 {
			return dt
		}
	}
	return f.params.AssumedInterval
}

// Haversine 两点（角度）之间的大圆距离，单位米
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	// 近对跖点时舍入误差会让 a 略大于 1
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

func validPosition(s Sample) bool {
	return s.Latitude >= -90 && s.Latitude <= 90 &&
		s.Longitude >= -180 && s.Longitude <= 180
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
