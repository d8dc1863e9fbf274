package serial

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/extropian/motionsync/internal/domain"
)

// Gateway frame layout:
//
//	0x7E | slot u8 | channel u8 | length u16 LE | payload | xor u8
//
// The checksum is the XOR of every byte between the start byte and itself.
const (
	frameStart   byte = 0x7E
	headerLength      = 5
	maxPayload        = 512
)

// Channel identifies the kind of a gateway frame.
type Channel byte

const (
	ChannelData       Channel = 0x00 // gateway -> host, one device notification
	ChannelThreshold  Channel = 0x01 // gateway -> host
	ChannelCommand    Channel = 0x02 // host -> gateway, one control byte
	ChannelConnect    Channel = 0x03 // host -> gateway, payload is the device id
	ChannelDisconnect Channel = 0x04 // host -> gateway
	ChannelAck        Channel = 0x05 // gateway -> host, payload is [channel, status]
)

// Ack status codes.
const (
	StatusOK          byte = 0x00
	StatusNotFound    byte = 0x01
	StatusUnsupported byte = 0x02
)

var errChecksum = errors.New("gateway frame checksum mismatch")

type frame struct {
	slot    domain.SlotID
	channel Channel
	payload []byte
}

func encodeFrame(f frame) ([]byte, error) {
	if len(f.payload) > maxPayload {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(f.payload), maxPayload)
	}
	buf := make([]byte, headerLength+len(f.payload)+1)
	buf[0] = frameStart
	buf[1] = byte(f.slot)
	buf[2] = byte(f.channel)
	binary.LittleEndian.PutUint16(buf[3:5], uint16(len(f.payload)))
	copy(buf[headerLength:], f.payload)
	buf[len(buf)-1] = checksum(buf[1 : len(buf)-1])
	return buf, nil
}

// readFrame reads the next frame, skipping bytes until a start byte. A
// checksum mismatch returns errChecksum after consuming the bad frame.
func readFrame(r *bufio.Reader) (frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return frame{}, err
		}
		if b == frameStart {
			break
		}
	}

	var hdr [headerLength - 1]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}
	n := int(binary.LittleEndian.Uint16(hdr[2:4]))
	if n > maxPayload {
		return frame{}, fmt.Errorf("gateway frame length %d exceeds %d", n, maxPayload)
	}
	body := make([]byte, n+1)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, err
	}

	sum := checksum(hdr[:]) ^ checksum(body[:n])
	if sum != body[n] {
		return frame{}, errChecksum
	}
	return frame{
		slot:    domain.SlotID(hdr[0]),
		channel: Channel(hdr[1]),
		payload: body[:n],
	}, nil
}

func checksum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}
