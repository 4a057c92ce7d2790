package artnet

import "encoding/binary"

// DMX is the body of an ArtDmx packet (opcode 0x5000).
type DMX struct {
	Sequence byte
	Physical byte
	Universe uint16 // 15-bit universe address, low byte = port-address low nibble + subnet
	Data     []byte // up to 512 bytes, padded to even length
}

// OpCode implements Packet.
func (d *DMX) OpCode() uint16 { return OpDMX }

func (d *DMX) encode() []byte {
	length := len(d.Data)
	if length%2 != 0 {
		length++
	}
	if length < 2 {
		length = 2
	}
	buf := make([]byte, headerSize+dmxBodyFixed+length)
	putHeader(buf, OpDMX)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = d.Sequence
	buf[13] = d.Physical
	binary.LittleEndian.PutUint16(buf[14:16], d.Universe)
	binary.BigEndian.PutUint16(buf[16:18], uint16(length))
	copy(buf[18:], d.Data)
	return buf
}

func decodeDMX(data []byte) (*DMX, error) {
	if len(data) < headerSize+dmxBodyFixed {
		return nil, malformed("ArtDmx body shorter than fixed header")
	}
	length := binary.BigEndian.Uint16(data[16:18])
	if int(length) < 2 || length%2 != 0 {
		return nil, malformed("ArtDmx length %d invalid (must be even, >= 2)", length)
	}
	if len(data) < headerSize+dmxBodyFixed+int(length) {
		return nil, malformed("ArtDmx declared length %d exceeds datagram", length)
	}
	d := &DMX{
		Sequence: data[12],
		Physical: data[13],
		Universe: binary.LittleEndian.Uint16(data[14:16]),
		Data:     append([]byte(nil), data[18:18+length]...),
	}
	return d, nil
}
