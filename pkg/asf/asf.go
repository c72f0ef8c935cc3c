// Package asf walks the top-level ASF header object far enough to read the
// file properties. Every other header object is kept as opaque payload.
package asf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	objectHeaderSize    = 24 // GUID + 64-bit size
	topLevelHeaderSize  = objectHeaderSize + 6
	filePropertiesSize  = objectHeaderSize + 80
	broadcastFlag       = 0x01
	seekableFlag        = 0x02
	hundredNanosPerTick = 100 * time.Nanosecond
)

var (
	HeaderObjectID         = uuid.MustParse("75B22630-668E-11CF-A6D9-00AA0062CE6C")
	FilePropertiesObjectID = uuid.MustParse("8CABDCA1-A947-11CF-8EE4-00C00C205365")
	DataObjectID           = uuid.MustParse("75B22636-668E-11CF-A6D9-00AA0062CE6C")
)

var (
	ErrNotHeader         = errors.New("asf: not a header object")
	ErrTruncated         = errors.New("asf: truncated object")
	ErrNoFileProperties  = errors.New("asf: header carries no file properties object")
	ErrInvalidObjectSize = errors.New("asf: invalid object size")
)

// Object is a header sub-object whose payload is not interpreted.
type Object struct {
	ID   uuid.UUID
	Data []byte
}

// Header is the top-level ASF header object.
type Header struct {
	Size    uint64
	Objects []Object
}

// FileProperties holds the fields of the file properties object.
type FileProperties struct {
	FileID          uuid.UUID
	FileSize        uint64
	CreationDate    uint64
	DataPacketCount uint64
	PlayDuration    time.Duration
	SendDuration    time.Duration
	Preroll         time.Duration
	Broadcast       bool
	Seekable        bool
	MinPacketSize   uint32
	MaxPacketSize   uint32
	MaxBitrate      uint32
}

// PacketCount returns the declared data packet count, or false when the
// stream is a broadcast and the count is not meaningful.
func (fp *FileProperties) PacketCount() (int64, bool) {
	if fp == nil || fp.Broadcast {
		return 0, false
	}

	return int64(fp.DataPacketCount), true
}

// PacketSize returns the fixed data packet size, or 0 when min and max differ.
func (fp *FileProperties) PacketSize() int {
	if fp == nil || fp.MinPacketSize != fp.MaxPacketSize {
		return 0
	}

	return int(fp.MinPacketSize)
}

func (fp *FileProperties) String() string {
	return fmt.Sprintf("FileProperties{packets=%d size=%d duration=%s preroll=%s broadcast=%t seekable=%t packetSize=%d-%d bitrate=%d}",
		fp.DataPacketCount, fp.FileSize, fp.PlayDuration, fp.Preroll, fp.Broadcast, fp.Seekable,
		fp.MinPacketSize, fp.MaxPacketSize, fp.MaxBitrate)
}

// ParseHeader reads the top-level header object from b. Bytes after the
// declared header size (usually the start of the data object) are ignored.
func ParseHeader(b []byte) (*Header, error) {
	if len(b) < topLevelHeaderSize {
		return nil, ErrTruncated
	}

	if guidAt(b) != HeaderObjectID {
		return nil, ErrNotHeader
	}

	size := binary.LittleEndian.Uint64(b[16:24])
	if size < topLevelHeaderSize {
		return nil, ErrInvalidObjectSize
	}

	if size > uint64(len(b)) {
		return nil, fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncated, size, len(b))
	}

	count := binary.LittleEndian.Uint32(b[24:28])
	body := b[topLevelHeaderSize:size]

	h := &Header{Size: size, Objects: make([]Object, 0, min(int(count), len(body)/objectHeaderSize))}
	for i := uint32(0); i < count; i++ {
		obj, n, err := readObject(body)
		if err != nil {
			return nil, fmt.Errorf("object %d: %w", i, err)
		}

		h.Objects = append(h.Objects, obj)
		body = body[n:]
	}

	return h, nil
}

// Find returns the first nested object with the given ID.
func (h *Header) Find(id uuid.UUID) (Object, bool) {
	for _, obj := range h.Objects {
		if obj.ID == id {
			return obj, true
		}
	}

	return Object{}, false
}

// FileProperties decodes the nested file properties object.
func (h *Header) FileProperties() (*FileProperties, error) {
	obj, ok := h.Find(FilePropertiesObjectID)
	if !ok {
		return nil, ErrNoFileProperties
	}

	d := obj.Data
	if len(d) < filePropertiesSize-objectHeaderSize {
		return nil, ErrTruncated
	}

	le := binary.LittleEndian
	flags := le.Uint32(d[64:68])

	return &FileProperties{
		FileID:          guidAt(d[0:16]),
		FileSize:        le.Uint64(d[16:24]),
		CreationDate:    le.Uint64(d[24:32]),
		DataPacketCount: le.Uint64(d[32:40]),
		PlayDuration:    time.Duration(le.Uint64(d[40:48])) * hundredNanosPerTick,
		SendDuration:    time.Duration(le.Uint64(d[48:56])) * hundredNanosPerTick,
		Preroll:         time.Duration(le.Uint64(d[56:64])) * time.Millisecond,
		Broadcast:       flags&broadcastFlag != 0,
		Seekable:        flags&seekableFlag != 0,
		MinPacketSize:   le.Uint32(d[68:72]),
		MaxPacketSize:   le.Uint32(d[72:76]),
		MaxBitrate:      le.Uint32(d[76:80]),
	}, nil
}

// ParseFileProperties is a shortcut for ParseHeader followed by
// Header.FileProperties.
func ParseFileProperties(b []byte) (*FileProperties, error) {
	h, err := ParseHeader(b)
	if err != nil {
		return nil, err
	}

	return h.FileProperties()
}

func readObject(b []byte) (Object, int, error) {
	if len(b) < objectHeaderSize {
		return Object{}, 0, ErrTruncated
	}

	size := binary.LittleEndian.Uint64(b[16:24])
	if size < objectHeaderSize {
		return Object{}, 0, ErrInvalidObjectSize
	}

	if size > uint64(len(b)) {
		return Object{}, 0, ErrTruncated
	}

	return Object{ID: guidAt(b), Data: b[objectHeaderSize:size]}, int(size), nil
}

// guidAt decodes a GUID stored with its first three fields little-endian.
func guidAt(b []byte) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = b[3], b[2], b[1], b[0]
	u[4], u[5] = b[5], b[4]
	u[6], u[7] = b[7], b[6]
	copy(u[8:], b[8:16])

	return u
}

// PutGUID writes id in its on-disk byte order.
func PutGUID(b []byte, id uuid.UUID) {
	b[0], b[1], b[2], b[3] = id[3], id[2], id[1], id[0]
	b[4], b[5] = id[5], id[4]
	b[6], b[7] = id[7], id[6]
	copy(b[8:16], id[8:])
}
