package artnet

import "encoding/binary"

// OpTimeCode is the opcode for ArtTimeCode (0x9700). It is not enumerated in
// the spec's §4.1 opcode table (the distilled spec documents send_timecode
// as a Node core operation without a wire layout); this codec follows the
// Art-Net standard's own ArtTimeCode layout, matching the field set the OLA
// source's SendTimeCode populates (frames/seconds/minutes/hours/type).
const OpTimeCode uint16 = 0x9700

// TimeCode is the body of an ArtTimeCode packet (opcode 0x9700): an SMPTE
// timecode frame broadcast to synchronize show playback across the network.
type TimeCode struct {
	Frames  uint8
	Seconds uint8
	Minutes uint8
	Hours   uint8
	Type    uint8 // 0=Film(24fps) 1=EBU(25fps) 2=DF(29.97fps) 3=SMPTE(30fps)
}

// OpCode implements Packet.
func (t *TimeCode) OpCode() uint16 { return OpTimeCode }

const timeCodeSize = headerSize + 2 /*version*/ + 2 /*filler*/ + 5

func (t *TimeCode) encode() []byte {
	buf := make([]byte, timeCodeSize)
	putHeader(buf, OpTimeCode)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	off := 14 // skip 2 filler bytes
	buf[off] = t.Frames
	buf[off+1] = t.Seconds
	buf[off+2] = t.Minutes
	buf[off+3] = t.Hours
	buf[off+4] = t.Type
	return buf
}

func decodeTimeCode(data []byte) (*TimeCode, error) {
	if len(data) < timeCodeSize {
		return nil, malformed("ArtTimeCode body shorter than fixed layout")
	}
	off := 14
	return &TimeCode{
		Frames:  data[off],
		Seconds: data[off+1],
		Minutes: data[off+2],
		Hours:   data[off+3],
		Type:    data[off+4],
	}, nil
}
