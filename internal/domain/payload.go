package domain

import "time"

// SessionIDFormat is the layout of time-derived session identifiers.
const SessionIDFormat = "20060102T150405.000Z"

// TimeSessionID derives a session identifier from the session start time.
func TimeSessionID(t time.Time) string {
	return t.UTC().Format(SessionIDFormat)
}

// SlotRecord is one slot's contribution to a session.
type SlotRecord struct {
	Slot     SlotID
	DeviceID string
	Samples  []SensorSample
}

// SessionPayload is an assembled multi-device capture.
// After hand-off the sink owns it; the coordinator keeps no reference.
type SessionPayload struct {
	ID        string
	StartedAt time.Time
	Slots     []SlotRecord
}

// SampleCount returns the total number of samples across all slots.
func (p *SessionPayload) SampleCount() int {
	n := 0
	for _, s := range p.Slots {
		n += len(s.Samples)
	}
	return n
}

// Slot returns the record for id, or nil if the slot did not take part.
func (p *SessionPayload) Slot(id SlotID) *SlotRecord {
	for i := range p.Slots {
		if p.Slots[i].Slot == id {
			return &p.Slots[i]
		}
	}
	return nil
}

// SessionDocument is the persisted shape of a session: slot names map to
// device identifiers and to ordered sample sequences.
type SessionDocument struct {
	ID        string                    `json:"id"`
	StartTime time.Time                 `json:"startTime"`
	Devices   map[string]string         `json:"devices"`
	Samples   map[string][]SensorSample `json:"samples"`
}

// Document converts the payload into its persisted shape.
func (p *SessionPayload) Document() SessionDocument {
	doc := SessionDocument{
		ID:        p.ID,
		StartTime: p.StartedAt.UTC(),
		Devices:   make(map[string]string, len(p.Slots)),
		Samples:   make(map[string][]SensorSample, len(p.Slots)),
	}
	for _, s := range p.Slots {
		name := s.Slot.String()
		doc.Devices[name] = s.DeviceID
		samples := s.Samples
		if samples == nil {
			samples = []SensorSample{}
		}
		doc.Samples[name] = samples
	}
	return doc
}
