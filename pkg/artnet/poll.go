package artnet

import "encoding/binary"

// TalkToMeReplyOnChange requests an unsolicited ArtPollReply whenever the
// node's configuration changes.
const TalkToMeReplyOnChange uint8 = 0x02

// Poll is the body of an ArtPoll packet (opcode 0x2000).
type Poll struct {
	TalkToMe uint8
	Priority uint8
}

// OpCode implements Packet.
func (p *Poll) OpCode() uint16 { return OpPoll }

func (p *Poll) encode() []byte {
	buf := make([]byte, headerSize+4)
	putHeader(buf, OpPoll)
	binary.BigEndian.PutUint16(buf[10:12], ProtocolVersion)
	buf[12] = p.TalkToMe
	buf[13] = p.Priority
	return buf
}

func decodePoll(data []byte) (*Poll, error) {
	if len(data) < headerSize+4 {
		return nil, malformed("ArtPoll body shorter than fixed header")
	}
	return &Poll{
		TalkToMe: data[12],
		Priority: data[13],
	}, nil
}
