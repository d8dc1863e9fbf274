package codec

import (
	"encoding/binary"
	"math"

	"github.com/extropian/motionsync/internal/domain"
)

// Marker bytes preceding each field group of a sub-record.
const (
	MarkerTimestamp byte = 'A'
	MarkerAccel     byte = 'B'
	MarkerGyro      byte = 'C'
	MarkerMag       byte = 'D'
)

// SubRecordLength is the size of one sub-record: 4 markers, a u32 and 9 f32.
const SubRecordLength = 4 + 4 + 9*4

// Frame is a decoded packet.
type Frame struct {
	// Sequence is the leading packet counter. It is not used downstream but
	// is kept for wire compatibility.
	Sequence byte

	// Samples holds between 0 and 5 NaN-free samples in sub-record order.
	Samples []domain.SensorSample

	// Dropped is the number of sub-records filtered out for NaN values.
	Dropped int
}

// Decode decodes raw into its samples. See DecodeFrame.
func Decode(raw []byte) ([]domain.SensorSample, error) {
	f, err := DecodeFrame(raw)
	if err != nil {
		return nil, err
	}
	return f.Samples, nil
}

// DecodeFrame validates and decodes one frame. It fails with a
// *domain.FrameError wrapping ErrLengthMismatch, ErrMarkerMismatch or
// ErrFieldOutOfBounds; on failure no samples are returned.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) != domain.PacketLength {
		return Frame{}, &domain.FrameError{
			Kind:      domain.ErrLengthMismatch,
			Length:    len(raw),
			SubRecord: -1,
		}
	}

	r := reader{buf: raw}
	seq, err := r.u8(-1)
	if err != nil {
		return Frame{}, err
	}

	f := Frame{
		Sequence: seq,
		Samples:  make([]domain.SensorSample, 0, domain.SamplesPerPacket),
	}
	for i := 0; i < domain.SamplesPerPacket; i++ {
		s, err := r.subRecord(i)
		if err != nil {
			return Frame{}, err
		}
		if !s.Valid() {
			f.Dropped++
			continue
		}
		f.Samples = append(f.Samples, s)
	}
	return f, nil
}

// Encode builds a frame from a sequence byte and exactly five samples.
// NaN values are written as-is so that decoders see them.
func Encode(seq byte, samples [domain.SamplesPerPacket]domain.SensorSample) []byte {
	buf := make([]byte, domain.PacketLength)
	buf[0] = seq
	off := 1
	putVec := func(v domain.Vector3) {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v.X))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(v.Y))
		binary.LittleEndian.PutUint32(buf[off+8:], math.Float32bits(v.Z))
		off += 12
	}
	for _, s := range samples {
		buf[off] = MarkerTimestamp
		off++
		binary.LittleEndian.PutUint32(buf[off:], s.Timestamp)
		off += 4
		buf[off] = MarkerAccel
		off++
		putVec(s.Accel)
		buf[off] = MarkerGyro
		off++
		putVec(s.Gyro)
		buf[off] = MarkerMag
		off++
		putVec(s.Mag)
	}
	return buf
}

// MarkerOffset returns the byte offset of marker m (0..3 for A..D) in
// sub-record sub. Useful for corrupting frames in tests and tools.
func MarkerOffset(sub, m int) int {
	base := 1 + sub*SubRecordLength
	switch m {
	case 0:
		return base
	case 1:
		return base + 1 + 4
	case 2:
		return base + 1 + 4 + 1 + 12
	default:
		return base + 1 + 4 + 1 + 12 + 1 + 12
	}
}

// reader is a bounds-checked little-endian cursor over a frame.
type reader struct {
	buf []byte
	off int
}

func (r *reader) outOfBounds(sub, n int) error {
	if r.off+n > len(r.buf) {
		return &domain.FrameError{
			Kind:      domain.ErrFieldOutOfBounds,
			SubRecord: sub,
			Offset:    r.off,
		}
	}
	return nil
}

func (r *reader) u8(sub int) (byte, error) {
	if err := r.outOfBounds(sub, 1); err != nil {
		return 0, err
	}
	b := r.buf[r.off]
	r.off++
	return b, nil
}

func (r *reader) u32(sub int) (uint32, error) {
	if err := r.outOfBounds(sub, 4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) vec(sub int) (domain.Vector3, error) {
	if err := r.outOfBounds(sub, 12); err != nil {
		return domain.Vector3{}, err
	}
	b := r.buf[r.off:]
	r.off += 12
	return domain.Vector3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}, nil
}

func (r *reader) marker(sub int, want byte) error {
	at := r.off
	got, err := r.u8(sub)
	if err != nil {
		return err
	}
	if got != want {
		return &domain.FrameError{
			Kind:      domain.ErrMarkerMismatch,
			Expected:  want,
			Got:       got,
			SubRecord: sub,
			Offset:    at,
		}
	}
	return nil
}

func (r *reader) subRecord(sub int) (domain.SensorSample, error) {
	var s domain.SensorSample
	var err error

	if err = r.marker(sub, MarkerTimestamp); err != nil {
		return s, err
	}
	if s.Timestamp, err = r.u32(sub); err != nil {
		return s, err
	}
	if err = r.marker(sub, MarkerAccel); err != nil {
		return s, err
	}
	if s.Accel, err = r.vec(sub); err != nil {
		return s, err
	}
	if err = r.marker(sub, MarkerGyro); err != nil {
		return s, err
	}
	if s.Gyro, err = r.vec(sub); err != nil {
		return s, err
	}
	if err = r.marker(sub, MarkerMag); err != nil {
		return s, err
	}
	if s.Mag, err = r.vec(sub); err != nil {
		return s, err
	}
	return s, nil
}
