package rdm

import (
	"encoding/binary"
	"fmt"
)

// SimpleCodec is a minimal concrete CommandCodec. The real wire format for
// RDM commands is an external collaborator the node merely calls through
// CommandCodec (see spec §6); SimpleCodec exists so the node and its tests
// have a working implementation to drive instead of a hand-rolled mock in
// every test file.
type SimpleCodec struct{}

const fixedCommandSize = Size*2 + 1 /*transaction*/ + 1 /*class*/ + 2 /*subdevice*/ + 2 /*pid*/ + 1 /*datalen*/

// Pack implements CommandCodec.
func (SimpleCodec) Pack(cmd *Command) ([]byte, error) {
	if len(cmd.Data) > 255 {
		return nil, fmt.Errorf("rdm: parameter data %d bytes exceeds 255", len(cmd.Data))
	}
	buf := make([]byte, fixedCommandSize+len(cmd.Data))
	off := 0
	copy(buf[off:off+Size], cmd.SourceUID[:])
	off += Size
	copy(buf[off:off+Size], cmd.DestinationUID[:])
	off += Size
	buf[off] = cmd.TransactionNum
	off++
	buf[off] = byte(cmd.CommandClass)
	off++
	binary.BigEndian.PutUint16(buf[off:off+2], cmd.SubDevice)
	off += 2
	binary.BigEndian.PutUint16(buf[off:off+2], uint16(cmd.PID))
	off += 2
	buf[off] = byte(len(cmd.Data))
	off++
	copy(buf[off:], cmd.Data)
	return buf, nil
}

// Inflate implements CommandCodec.
func (SimpleCodec) Inflate(data []byte) (*Command, error) {
	if len(data) < fixedCommandSize {
		return nil, fmt.Errorf("rdm: command shorter than fixed header (%d bytes)", len(data))
	}
	off := 0
	var cmd Command
	copy(cmd.SourceUID[:], data[off:off+Size])
	off += Size
	copy(cmd.DestinationUID[:], data[off:off+Size])
	off += Size
	cmd.TransactionNum = data[off]
	off++
	cmd.CommandClass = CommandClass(data[off])
	off++
	cmd.SubDevice = binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	cmd.PID = PID(binary.BigEndian.Uint16(data[off : off+2]))
	off += 2
	dataLen := int(data[off])
	off++
	if len(data) < off+dataLen {
		return nil, fmt.Errorf("rdm: declared data length %d exceeds command", dataLen)
	}
	cmd.Data = append([]byte(nil), data[off:off+dataLen]...)
	return &cmd, nil
}
