// Package ebpfengine decodes kernel-captured packet records from a
// pinned eBPF ring buffer and republishes them as ironcore.PacketEvent
// values. Attaching and loading the capture program itself is out of
// scope here: the engine attaches to a ring buffer map an operator has
// already pinned (via bpftool or a separate loader), matching the
// split between program-loading and userspace-consumption common in
// production eBPF agents.
package ebpfengine

import (
	"encoding/binary"
	"fmt"
	"net"
	"unsafe"
)

// protocolID mirrors the small closed label domain the kernel side
// reports.
type protocolID uint8

const (
	protoOther protocolID = 0
	protoTCP   protocolID = 1
	protoUDP   protocolID = 2
	protoICMP  protocolID = 3
)

func (p protocolID) String() string {
	switch p {
	case protoTCP:
		return "tcp"
	case protoUDP:
		return "udp"
	case protoICMP:
		return "icmp"
	default:
		return "other"
	}
}

// rawPacketRecord mirrors the C struct ironpost_packet_event emitted by
// the kernel-side capture program. Layout (24 bytes, 4-byte aligned):
//
//	[0]     protocol     u8
//	[1..3]  _pad         u8[3]
//	[4..7]  src_ip       u32 (network byte order)
//	[8..11] dst_ip       u32 (network byte order)
//	[12..13] src_port    u16
//	[14..15] dst_port    u16
//	[16..19] length      u32
//	[20..23] _pad2       u32
//
// Go struct uses explicit padding to match this layout exactly;
// unsafe.Sizeof(rawPacketRecord{}) must equal 24.
type rawPacketRecord struct {
	Protocol uint8
	_pad     [3]uint8
	SrcIP    uint32
	DstIP    uint32
	SrcPort  uint16
	DstPort  uint16
	Length   uint32
	_pad2    uint32
}

const expectedPacketRecordSize = 24

func init() {
	if sz := unsafe.Sizeof(rawPacketRecord{}); sz != expectedPacketRecordSize {
		panic(fmt.Sprintf("ebpfengine: rawPacketRecord size mismatch: got %d bytes, want %d", sz, expectedPacketRecordSize))
	}
}

// PacketInfo is the decoded form handed to the log pipeline.
type PacketInfo struct {
	Protocol string
	SourceIP string
	DestIP   string
	SrcPort  uint16
	DstPort  uint16
	Length   int
}

// DecodePacket deserializes one raw ring buffer record. Returns an
// error if raw is shorter than the fixed record size — a short read
// from the ring buffer is always a bug upstream, never recoverable by
// guessing at the missing bytes.
func DecodePacket(raw []byte) (PacketInfo, error) {
	if len(raw) < expectedPacketRecordSize {
		return PacketInfo{}, fmt.Errorf("ebpfengine: packet record too short: got %d bytes, want %d", len(raw), expectedPacketRecordSize)
	}

	proto := protocolID(raw[0])
	srcIP := binary.BigEndian.Uint32(raw[4:8])
	dstIP := binary.BigEndian.Uint32(raw[8:12])
	srcPort := binary.LittleEndian.Uint16(raw[12:14])
	dstPort := binary.LittleEndian.Uint16(raw[14:16])
	length := binary.LittleEndian.Uint32(raw[16:20])

	return PacketInfo{
		Protocol: proto.String(),
		SourceIP: ipv4String(srcIP),
		DestIP:   ipv4String(dstIP),
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Length:   int(length),
	}, nil
}

func ipv4String(v uint32) string {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip.String()
}
