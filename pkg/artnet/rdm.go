package artnet

import "encoding/binary"

// RDM is the body of an ArtRdm packet (opcode 0x8300): one tunnelled RDM
// command or response. The RDM payload itself is opaque to the codec; it is
// serialized/parsed by an external RDM command codec (see internal/rdm).
type RDM struct {
	Net     uint8
	Address uint8
	Data    []byte // opaque RDM bytes, at most MaxRDMDataSize
}

// OpCode implements Packet.
func (r *RDM) OpCode() uint16 { return OpRDM }

const rdmFixed = 1 /*rdmver*/ + 1 /*net*/ + 1 /*command*/ + 1 /*address*/

func (r *RDM) encode() []byte {
	buf := make([]byte, headerSize+2+rdmFixed+len(r.Data))
	putHeader(buf, OpRDM)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	off := 12
	buf[off] = 1 // rdm version
	off++
	buf[off] = r.Net
	off++
	buf[off] = 0 // command: always 0 for ArtRdm
	off++
	buf[off] = r.Address
	off++
	copy(buf[off:], r.Data)
	return buf
}

func decodeRDM(data []byte) (*RDM, error) {
	want := headerSize + 2 + rdmFixed
	if len(data) < want {
		return nil, malformed("ArtRdm body shorter than fixed header")
	}
	off := 12
	off++ // rdm version
	net8 := data[off]
	off++
	off++ // command
	addr := data[off]
	off++

	rdmLen := len(data) - off
	if rdmLen > MaxRDMDataSize {
		return nil, malformed("ArtRdm payload %d bytes exceeds maximum", rdmLen)
	}
	return &RDM{
		Net:     net8,
		Address: addr,
		Data:    append([]byte(nil), data[off:]...),
	}, nil
}
