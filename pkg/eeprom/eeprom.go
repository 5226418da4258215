// Package eeprom provides parameter store backends: byte-addressable
// fixed-slot storage in memory or on disk, standing in for the EEPROM of
// an embedded deployment.
package eeprom

import (
	"errors"
	"os"
	"sync"
)

// ErrOutOfRange indicates an access beyond the store's fixed size.
var ErrOutOfRange = errors.New("eeprom: access out of range")

// Mem is an in-memory store of fixed size.
type Mem struct {
	data []byte
	lock sync.Mutex
}

// NewMem creates a zeroed in-memory store of size bytes.
func NewMem(size int) *Mem {
	return &Mem{data: make([]byte, size)}
}

// Read copies len(buf) bytes at offset.
func (m *Mem) Read(offset int64, buf []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if offset < 0 || offset+int64(len(buf)) > int64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(buf, m.data[offset:])
	return nil
}

// Write stores data at offset.
func (m *Mem) Write(offset int64, data []byte) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if offset < 0 || offset+int64(len(data)) > int64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(m.data[offset:], data)
	return nil
}

// Snapshot returns a copy of the raw contents.
func (m *Mem) Snapshot() []byte {
	m.lock.Lock()
	defer m.lock.Unlock()
	return append([]byte(nil), m.data...)
}

// File is a store backed by a fixed-size image file. The image is created
// zero-filled on first open.
type File struct {
	f    *os.File
	size int64
	lock sync.Mutex
}

// OpenFile opens (or creates) the image at path with the given size.
func OpenFile(path string, size int64) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}
	return &File{f: f, size: size}, nil
}

// Read copies len(buf) bytes at offset.
func (s *File) Read(offset int64, buf []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if offset < 0 || offset+int64(len(buf)) > s.size {
		return ErrOutOfRange
	}
	_, err := s.f.ReadAt(buf, offset)
	return err
}

// Write stores data at offset.
func (s *File) Write(offset int64, data []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if offset < 0 || offset+int64(len(data)) > s.size {
		return ErrOutOfRange
	}
	_, err := s.f.WriteAt(data, offset)
	return err
}

// Close closes the image file.
func (s *File) Close() error {
	return s.f.Close()
}
