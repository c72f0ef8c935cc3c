package asf

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// EncodeFileProperties serializes fp as a complete file properties object.
func EncodeFileProperties(fp FileProperties) []byte {
	b := make([]byte, filePropertiesSize)
	PutGUID(b[0:16], FilePropertiesObjectID)

	le := binary.LittleEndian
	le.PutUint64(b[16:24], filePropertiesSize)

	d := b[objectHeaderSize:]
	PutGUID(d[0:16], fp.FileID)
	le.PutUint64(d[16:24], fp.FileSize)
	le.PutUint64(d[24:32], fp.CreationDate)
	le.PutUint64(d[32:40], fp.DataPacketCount)
	le.PutUint64(d[40:48], uint64(fp.PlayDuration/hundredNanosPerTick))
	le.PutUint64(d[48:56], uint64(fp.SendDuration/hundredNanosPerTick))
	le.PutUint64(d[56:64], uint64(fp.Preroll.Milliseconds()))

	var flags uint32
	if fp.Broadcast {
		flags |= broadcastFlag
	}

	if fp.Seekable {
		flags |= seekableFlag
	}

	le.PutUint32(d[64:68], flags)
	le.PutUint32(d[68:72], fp.MinPacketSize)
	le.PutUint32(d[72:76], fp.MaxPacketSize)
	le.PutUint32(d[76:80], fp.MaxBitrate)

	return b
}

// EncodeObject serializes an opaque header sub-object.
func EncodeObject(id uuid.UUID, data []byte) []byte {
	b := make([]byte, objectHeaderSize+len(data))
	PutGUID(b[0:16], id)
	binary.LittleEndian.PutUint64(b[16:24], uint64(len(b)))
	copy(b[objectHeaderSize:], data)

	return b
}

// EncodeHeader wraps already encoded sub-objects in a top-level header object.
func EncodeHeader(objects ...[]byte) []byte {
	size := topLevelHeaderSize
	for _, o := range objects {
		size += len(o)
	}

	b := make([]byte, topLevelHeaderSize, size)
	PutGUID(b[0:16], HeaderObjectID)
	binary.LittleEndian.PutUint64(b[16:24], uint64(size))
	binary.LittleEndian.PutUint32(b[24:28], uint32(len(objects)))
	b[28] = 0x01
	b[29] = 0x02

	for _, o := range objects {
		b = append(b, o...)
	}

	return b
}
