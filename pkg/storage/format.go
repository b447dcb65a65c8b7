package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/adfharrison1/livedb/pkg/domain"
)

const (
	// Magic bytes to identify checkpoint files
	MagicBytes = "LVDB"
	// Current version
	FormatVersion = 1
	// File extension for checkpoint files
	FileExtension = ".lvdb"

	// FlagUncompressed marks a body stored without lz4 compression
	FlagUncompressed uint8 = 1 << 0
)

// FileHeader represents the header of a checkpoint file
type FileHeader struct {
	Magic    [4]byte // "LVDB"
	Version  uint8   // Format version
	Flags    uint8   // FlagUncompressed or 0
	Reserved [2]byte // Reserved for future use
	RawSize  uint32  // Size of the uncompressed body
}

// WriteHeader writes the file header to the given writer
func WriteHeader(w io.Writer, rawSize int, flags uint8) error {
	header := FileHeader{
		Magic:   [4]byte{'L', 'V', 'D', 'B'},
		Version: FormatVersion,
		Flags:   flags,
		RawSize: uint32(rawSize),
	}

	return binary.Write(w, binary.LittleEndian, header)
}

// ReadHeader reads and validates the file header
func ReadHeader(r io.Reader) (*FileHeader, error) {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	if string(header.Magic[:]) != MagicBytes {
		return nil, fmt.Errorf("invalid file format: expected %s, got %s", MagicBytes, string(header.Magic[:]))
	}

	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported file version: %d", header.Version)
	}

	return &header, nil
}

// value kinds of storedValue
const (
	kindNull uint8 = iota
	kindInt
	kindFloat
	kindString
	kindBool
	kindTime
	kindRef
)

// storedValue carries a field value with an explicit kind so it decodes back
// to the same Go type.
type storedValue struct {
	Kind  uint8      `msgpack:"k"`
	Int   int64      `msgpack:"i,omitempty"`
	Float float64    `msgpack:"f,omitempty"`
	Str   string     `msgpack:"s,omitempty"`
	Bool  bool       `msgpack:"b,omitempty"`
	Time  time.Time  `msgpack:"t,omitempty"`
	Ref   domain.Ref `msgpack:"r,omitempty"`
}

type storedRecord struct {
	ID     domain.RecordID        `msgpack:"id"`
	Fields map[string]storedValue `msgpack:"fields"`
}

// StorageData represents the body of a checkpoint file
type StorageData struct {
	Version uint64                    `msgpack:"version"`
	Tables  map[string][]storedRecord `msgpack:"tables"`
}

// NewStorageData creates a new empty storage data structure
func NewStorageData(version uint64) *StorageData {
	return &StorageData{
		Version: version,
		Tables:  make(map[string][]storedRecord),
	}
}

func encodeValue(v interface{}) (storedValue, error) {
	switch val := v.(type) {
	case nil:
		return storedValue{Kind: kindNull}, nil
	case int64:
		return storedValue{Kind: kindInt, Int: val}, nil
	case int:
		return storedValue{Kind: kindInt, Int: int64(val)}, nil
	case float64:
		return storedValue{Kind: kindFloat, Float: val}, nil
	case string:
		return storedValue{Kind: kindString, Str: val}, nil
	case bool:
		return storedValue{Kind: kindBool, Bool: val}, nil
	case time.Time:
		return storedValue{Kind: kindTime, Time: val}, nil
	case domain.Ref:
		return storedValue{Kind: kindRef, Ref: val}, nil
	default:
		return storedValue{}, fmt.Errorf("unsupported value type %T", v)
	}
}

func (sv storedValue) decode() interface{} {
	switch sv.Kind {
	case kindInt:
		return sv.Int
	case kindFloat:
		return sv.Float
	case kindString:
		return sv.Str
	case kindBool:
		return sv.Bool
	case kindTime:
		return sv.Time.UTC()
	case kindRef:
		return sv.Ref
	default:
		return nil
	}
}
