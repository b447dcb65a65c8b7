package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/adfharrison1/livedb/pkg/domain"
)

// SaveToFile writes the latest committed version of every table to a checkpoint file.
// The file is written to a temporary name first and renamed into place.
func (s *Store) SaveToFile(filename string) error {
	snap, err := s.OpenSnapshot()
	if err != nil {
		return err
	}
	defer snap.Release()

	storageData := NewStorageData(snap.version)
	for _, tableName := range s.Tables() {
		var records []storedRecord
		var encodeErr error
		err := snap.Scan(tableName, func(id domain.RecordID, rec domain.Record) bool {
			stored := storedRecord{ID: id, Fields: make(map[string]storedValue, len(rec))}
			for field, value := range rec {
				if field == domain.IDField {
					continue
				}
				sv, err := encodeValue(value)
				if err != nil {
					encodeErr = fmt.Errorf("table %s record %s field %s: %w", tableName, id, field, err)
					return false
				}
				stored.Fields[field] = sv
			}
			records = append(records, stored)
			return true
		})
		if err != nil {
			return err
		}
		if encodeErr != nil {
			return encodeErr
		}
		storageData.Tables[tableName] = records
	}

	msgpackData, err := msgpack.Marshal(storageData)
	if err != nil {
		return fmt.Errorf("failed to encode MessagePack: %w", err)
	}
	compressedData := make([]byte, lz4.CompressBlockBound(len(msgpackData)))
	var hashTable [1 << 16]int
	n, err := lz4.CompressBlock(msgpackData, compressedData, hashTable[:])
	if err != nil {
		return fmt.Errorf("failed to compress data: %w", err)
	}
	compressedData = compressedData[:n]

	// Incompressible input is reported as n == 0 and stored raw
	var flags uint8
	if n == 0 {
		compressedData = msgpackData
		flags = FlagUncompressed
	}

	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %w", err)
		}
	}

	tmpName := filename + ".tmp"
	file, err := os.Create(tmpName)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteHeader(file, len(msgpackData), flags); err != nil {
		file.Close()
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := file.Write(compressedData); err != nil {
		file.Close()
		return fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}

	s.logger.Info("checkpoint saved", "file", filename, "version", snap.version, "tables", len(storageData.Tables))
	return nil
}

// readCheckpoint decodes a checkpoint file. A missing file yields nil data.
func readCheckpoint(filename string) (*StorageData, error) {
	file, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	header, err := ReadHeader(file)
	if err != nil {
		return nil, fmt.Errorf("invalid file header: %w", err)
	}
	compressedData, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read compressed data: %w", err)
	}

	decompressedData := compressedData
	if header.Flags&FlagUncompressed == 0 {
		decompressedData = make([]byte, header.RawSize)
		n, err := lz4.UncompressBlock(compressedData, decompressedData)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress data: %w", err)
		}
		decompressedData = decompressedData[:n]
	}

	var storageData StorageData
	if err := msgpack.NewDecoder(bytes.NewReader(decompressedData)).Decode(&storageData); err != nil {
		return nil, fmt.Errorf("failed to decode MessagePack: %w", err)
	}
	return &storageData, nil
}

// loadCheckpoint replaces the store contents with a checkpoint. Only called from Open.
func (s *Store) loadCheckpoint(filename string) error {
	storageData, err := readCheckpoint(filename)
	if err != nil {
		return err
	}
	if storageData == nil {
		s.logger.Info("no checkpoint found, starting empty", "file", filename)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	version := storageData.Version
	for tableName, records := range storageData.Tables {
		t := newTable(tableName)
		for _, stored := range records {
			rec := make(domain.Record, len(stored.Fields)+1)
			for field, sv := range stored.Fields {
				rec[field] = sv.decode()
			}
			rec[domain.IDField] = string(stored.ID)
			t.apply(stored.ID, rec, version, s.nextSeqLocked)
		}
		s.tables[tableName] = t
	}
	s.current = version

	s.logger.Info("checkpoint loaded", "file", filename, "version", version, "tables", len(s.tables))
	return nil
}
