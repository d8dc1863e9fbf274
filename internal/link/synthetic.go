package link

import (
	"math"

	"github.com/extropian/motionsync/internal/codec"
	"github.com/extropian/motionsync/internal/domain"
)

// SyntheticFrames returns n valid frames whose timestamps start at tick and
// advance by one per sample. Sensor values follow a slow sine so that
// different devices can be told apart by phase.
func SyntheticFrames(n int, tick uint32, phase float64) [][]byte {
	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		var samples [domain.SamplesPerPacket]domain.SensorSample
		for j := range samples {
			t := float64(tick)
			v := float32(math.Sin(t/50 + phase))
			samples[j] = domain.SensorSample{
				Timestamp: tick,
				Accel:     domain.Vector3{X: v, Y: v / 2, Z: 9.81},
				Gyro:      domain.Vector3{X: -v, Y: v * 3, Z: 0},
				Mag:       domain.Vector3{X: 30, Y: -12, Z: v * 40},
			}
			tick++
		}
		frames = append(frames, codec.Encode(byte(i), samples))
	}
	return frames
}
