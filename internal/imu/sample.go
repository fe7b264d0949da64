package imu

// Raw represents a single raw IMU sample in sensor counts, exactly as
// read from the device registers.
type Raw struct {
	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// Sample is one IMU reading in SI units, as published on the raw IMU
// topic and consumed by the fusion engine.
type Sample struct {
	TimestampMs int64 `json:"ts_ms"`

	Ax float64 `json:"ax"` // m/s²
	Ay float64 `json:"ay"`
	Az float64 `json:"az"`

	Gx float64 `json:"gx"` // rad/s
	Gy float64 `json:"gy"`
	Gz float64 `json:"gz"`

	// Linear marks the accelerometer values as already
	// gravity-compensated by the producing tier.
	Linear bool `json:"linear"`
}

// Source is anything that can provide IMU samples over time.
type Source interface {
	Next() (Sample, error)
}
