package artnet

import "encoding/binary"

// IPProg is the body of an ArtIpProg packet (opcode 0xF800). Remote IP
// reprogramming is explicitly out of scope (see spec Non-goals); the codec
// parses enough to drop the datagram cleanly but the node never acts on it.
type IPProg struct {
	Command uint8
	Raw     []byte
}

// OpCode implements Packet.
func (i *IPProg) OpCode() uint16 { return OpIPProg }

func (i *IPProg) encode() []byte {
	buf := make([]byte, headerSize+2+len(i.Raw))
	putHeader(buf, OpIPProg)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	copy(buf[12:], i.Raw)
	return buf
}

func decodeIPProg(data []byte) (*IPProg, error) {
	if len(data) < headerSize+2 {
		return nil, malformed("ArtIpProg body shorter than fixed header")
	}
	return &IPProg{
		Raw: append([]byte(nil), data[12:]...),
	}, nil
}
