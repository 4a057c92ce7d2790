package artnet

import "encoding/binary"

// UIDSize is the length of an RDM UID: 2-byte manufacturer ID + 4-byte serial.
const UIDSize = 6

// TodRequest is the body of an ArtTodRequest packet (opcode 0x8000): a
// solicitation for the table of RDM devices on the named universe addresses.
type TodRequest struct {
	Net       uint8
	Addresses []uint8 // port-addresses being queried, at most MaxTodRequestAddresses
}

// OpCode implements Packet.
func (t *TodRequest) OpCode() uint16 { return OpTodRequest }

const todRequestFixed = 4 // net(1) + command(1) + addressCount(1) + spare(1), see encode

func (t *TodRequest) encode() []byte {
	buf := make([]byte, headerSize+2+todRequestFixed+MaxTodRequestAddresses)
	putHeader(buf, OpTodRequest)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	off := 12
	buf[off] = t.Net
	off++
	buf[off] = 0 // command: always 0 for ArtTodRequest
	off++
	buf[off] = uint8(len(t.Addresses))
	off++
	off++ // spare
	copy(buf[off:off+MaxTodRequestAddresses], t.Addresses)
	return buf
}

func decodeTodRequest(data []byte) (*TodRequest, error) {
	want := headerSize + 2 + todRequestFixed + MaxTodRequestAddresses
	if len(data) < want {
		return nil, malformed("ArtTodRequest body shorter than fixed layout")
	}
	off := 12
	net8 := data[off]
	off++
	off++ // command
	count := int(data[off])
	off++
	off++ // spare
	if count > MaxTodRequestAddresses {
		return nil, malformed("ArtTodRequest address count %d exceeds maximum", count)
	}
	return &TodRequest{
		Net:       net8,
		Addresses: append([]uint8(nil), data[off:off+count]...),
	}, nil
}

// TodData is the body of an ArtTodData packet (opcode 0x8100): a fragment of
// the table of RDM devices known on one universe.
type TodData struct {
	Port             uint8
	CommandResponse  uint8
	Net              uint8
	Address          uint8
	UIDTotal         uint16
	BlockCount       uint8
	UIDs             [][UIDSize]byte
}

// OpCode implements Packet.
func (t *TodData) OpCode() uint16 { return OpTodData }

const todDataFixed = 1 /*rdmver*/ + 1 /*port*/ + 1 /*cmdresp*/ + 1 /*net*/ + 1 /*address*/ +
	2 /*uidtotal*/ + 1 /*blockcount*/ + 1 /*uidcount*/

func (t *TodData) encode() []byte {
	n := len(t.UIDs)
	buf := make([]byte, headerSize+2+todDataFixed+n*UIDSize)
	putHeader(buf, OpTodData)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	off := 12
	buf[off] = 1 // rdm version
	off++
	buf[off] = t.Port
	off++
	buf[off] = t.CommandResponse
	off++
	buf[off] = t.Net
	off++
	buf[off] = t.Address
	off++
	binary.BigEndian.PutUint16(buf[off:off+2], t.UIDTotal)
	off += 2
	buf[off] = t.BlockCount
	off++
	buf[off] = uint8(n)
	off++
	for _, uid := range t.UIDs {
		copy(buf[off:off+UIDSize], uid[:])
		off += UIDSize
	}
	return buf
}

func decodeTodData(data []byte) (*TodData, error) {
	want := headerSize + 2 + todDataFixed
	if len(data) < want {
		return nil, malformed("ArtTodData body shorter than fixed header")
	}
	off := 12
	off++ // rdm version
	port := data[off]
	off++
	cmdResp := data[off]
	off++
	net8 := data[off]
	off++
	addr := data[off]
	off++
	uidTotal := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	blockCount := data[off]
	off++
	count := int(data[off])
	off++

	if count > MaxTodUIDsPerBlock {
		return nil, malformed("ArtTodData uid count %d exceeds maximum", count)
	}
	if len(data) < off+count*UIDSize {
		return nil, malformed("ArtTodData declared uid count %d exceeds datagram", count)
	}

	uids := make([][UIDSize]byte, count)
	for i := range uids {
		copy(uids[i][:], data[off:off+UIDSize])
		off += UIDSize
	}

	return &TodData{
		Port:            port,
		CommandResponse: cmdResp,
		Net:             net8,
		Address:         addr,
		UIDTotal:        uidTotal,
		BlockCount:      blockCount,
		UIDs:            uids,
	}, nil
}

// TodControl is the body of an ArtTodControl packet (opcode 0x8200).
type TodControl struct {
	Net     uint8
	Command uint8 // 0 = none, TodFlush = flush and rebuild the TOD
	Address uint8
}

// OpCode implements Packet.
func (t *TodControl) OpCode() uint16 { return OpTodControl }

const todControlSize = headerSize + 2 + 3 // version(2) + net(1) + command(1) + address(1)

func (t *TodControl) encode() []byte {
	buf := make([]byte, todControlSize)
	putHeader(buf, OpTodControl)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = t.Net
	buf[13] = t.Command
	buf[14] = t.Address
	return buf
}

func decodeTodControl(data []byte) (*TodControl, error) {
	if len(data) < todControlSize {
		return nil, malformed("ArtTodControl body shorter than fixed layout")
	}
	return &TodControl{
		Net:     data[12],
		Command: data[13],
		Address: data[14],
	}, nil
}
