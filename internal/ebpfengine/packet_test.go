package ebpfengine

import (
	"encoding/binary"
	"testing"
)

func buildRecord(proto protocolID, srcIP, dstIP uint32, srcPort, dstPort uint16, length uint32) []byte {
	raw := make([]byte, expectedPacketRecordSize)
	raw[0] = uint8(proto)
	binary.BigEndian.PutUint32(raw[4:8], srcIP)
	binary.BigEndian.PutUint32(raw[8:12], dstIP)
	binary.LittleEndian.PutUint16(raw[12:14], srcPort)
	binary.LittleEndian.PutUint16(raw[14:16], dstPort)
	binary.LittleEndian.PutUint32(raw[16:20], length)
	return raw
}

func TestDecodePacket(t *testing.T) {
	raw := buildRecord(protoTCP, 0x0A000001, 0x08080808, 443, 51234, 1500)
	info, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if info.Protocol != "tcp" {
		t.Errorf("protocol = %s, want tcp", info.Protocol)
	}
	if info.SourceIP != "10.0.0.1" {
		t.Errorf("source ip = %s, want 10.0.0.1", info.SourceIP)
	}
	if info.DestIP != "8.8.8.8" {
		t.Errorf("dest ip = %s, want 8.8.8.8", info.DestIP)
	}
	if info.SrcPort != 443 || info.DstPort != 51234 {
		t.Errorf("ports = %d/%d, want 443/51234", info.SrcPort, info.DstPort)
	}
	if info.Length != 1500 {
		t.Errorf("length = %d, want 1500", info.Length)
	}
}

func TestDecodePacket_RejectsShortRecord(t *testing.T) {
	if _, err := DecodePacket(make([]byte, 10)); err == nil {
		t.Fatal("expected short record to be rejected")
	}
}

func TestProtocolID_String(t *testing.T) {
	cases := map[protocolID]string{protoTCP: "tcp", protoUDP: "udp", protoICMP: "icmp", protoOther: "other", protocolID(99): "other"}
	for id, want := range cases {
		if got := id.String(); got != want {
			t.Errorf("protocolID(%d).String() = %s, want %s", id, got, want)
		}
	}
}
