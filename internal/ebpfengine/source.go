package ebpfengine

import (
	"fmt"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"
	"golang.org/x/sys/unix"
)

// Source yields raw packet records one at a time. The production
// implementation reads from a pinned BPF ring buffer map; tests
// substitute an in-memory fake.
type Source interface {
	Read() ([]byte, error)
	Close() error
}

// ringbufSource wraps a ring buffer reader attached to a map an
// operator has pinned at a known bpffs path (e.g.
// /sys/fs/bpf/ironpost/packet_events), produced by a separately loaded
// and attached capture program.
type ringbufSource struct {
	reader *ringbuf.Reader
	m      *ebpf.Map
}

// OpenPinned attaches to the ring buffer map pinned at path.
func OpenPinned(path string) (Source, error) {
	m, err := ebpf.LoadPinnedMap(path, &ebpf.LoadPinOptions{})
	if err != nil {
		return nil, fmt.Errorf("ebpfengine: load pinned map %s: %w", path, err)
	}
	if m.Type() != ebpf.RingBuf {
		_ = m.Close()
		return nil, fmt.Errorf("ebpfengine: map %s is not a BPF_MAP_TYPE_RINGBUF", path)
	}
	reader, err := ringbuf.NewReader(m)
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("ebpfengine: open ring buffer reader: %w", err)
	}
	return &ringbufSource{reader: reader, m: m}, nil
}

func (s *ringbufSource) Read() ([]byte, error) {
	rec, err := s.reader.Read()
	if err != nil {
		return nil, err
	}
	return rec.RawSample, nil
}

func (s *ringbufSource) Close() error {
	err := s.reader.Close()
	if cerr := s.m.Close(); err == nil {
		err = cerr
	}
	return err
}

// rlimitRemoveMemlock raises (or, on modern kernels, is a no-op
// against) the memlock limit that older kernels enforce against BPF
// map allocations. Called once before the first OpenPinned.
func rlimitRemoveMemlock() error {
	return unix.Setrlimit(unix.RLIMIT_MEMLOCK, &unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY})
}
