package soc

import "encoding/binary"

// Memory is the flat RAM device.
type Memory struct {
	data []byte
}

// NewMemory allocates size bytes of zeroed RAM.
func NewMemory(size uint64) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Name implements Device.
func (m *Memory) Name() string { return "DRAM" }

// Size implements Device.
func (m *Memory) Size() uint64 { return uint64(len(m.data)) }

// Read implements Device.
func (m *Memory) Read(offset uint64, size int) (uint64, bool) {
	if offset+uint64(size) > uint64(len(m.data)) {
		return 0, false
	}
	switch size {
	case 1:
		return uint64(m.data[offset]), true
	case 2:
		return uint64(binary.LittleEndian.Uint16(m.data[offset:])), true
	case 4:
		return uint64(binary.LittleEndian.Uint32(m.data[offset:])), true
	case 8:
		return binary.LittleEndian.Uint64(m.data[offset:]), true
	}
	return 0, false
}

// Write implements Device.
func (m *Memory) Write(offset uint64, size int, value uint64) bool {
	if offset+uint64(size) > uint64(len(m.data)) {
		return false
	}
	switch size {
	case 1:
		m.data[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(m.data[offset:], uint16(value))
	case 4:
		binary.LittleEndian.PutUint32(m.data[offset:], uint32(value))
	case 8:
		binary.LittleEndian.PutUint64(m.data[offset:], value)
	default:
		return false
	}
	return true
}

// ReadBytes copies RAM contents starting at offset into p.
func (m *Memory) ReadBytes(offset uint64, p []byte) bool {
	if offset+uint64(len(p)) > uint64(len(m.data)) {
		return false
	}
	copy(p, m.data[offset:])
	return true
}

// WriteBytes copies p into RAM starting at offset.
func (m *Memory) WriteBytes(offset uint64, p []byte) bool {
	if offset+uint64(len(p)) > uint64(len(m.data)) {
		return false
	}
	copy(m.data[offset:], p)
	return true
}
