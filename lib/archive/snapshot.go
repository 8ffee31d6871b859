// Copyright 2026 The Villim Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"github.com/seongminnpark/Villim/lib/codec"
	"github.com/seongminnpark/Villim/lib/registry"
)

// Snapshot is a complete point-in-time copy of all listings, as
// written to a snapshot file. The on-disk format is the CBOR encoding
// of this struct, zstd-compressed.
type Snapshot struct {
	// TakenAt is the capture time, Unix seconds.
	TakenAt int64 `cbor:"taken_at"`

	// Listings holds every listing in id order.
	Listings []registry.Listing `cbor:"listings"`
}

// zstdEncoder and zstdDecoder are reused across calls to avoid
// repeated initialization overhead. Both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
	)
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// WriteSnapshot encodes and compresses the snapshot, then writes it
// to path atomically: the bytes go to a temporary file in the same
// directory, which is renamed over the target only after a successful
// write. A crash mid-write never leaves a truncated snapshot at path.
func WriteSnapshot(path string, snapshot *Snapshot) error {
	encoded, err := codec.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("archive: encoding snapshot: %w", err)
	}
	compressed := zstdEncoder.EncodeAll(encoded, nil)

	directory := filepath.Dir(path)
	tempFile, err := os.CreateTemp(directory, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("archive: creating temp snapshot in %s: %w", directory, err)
	}
	tempPath := tempFile.Name()

	if _, err := tempFile.Write(compressed); err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("archive: writing snapshot: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("archive: closing snapshot: %w", err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("archive: setting snapshot permissions: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("archive: installing snapshot at %s: %w", path, err)
	}
	return nil
}

// ReadSnapshot reads, decompresses, and decodes a snapshot file.
func ReadSnapshot(path string) (*Snapshot, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: reading snapshot %s: %w", path, err)
	}

	encoded, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: decompressing snapshot %s: %w", path, err)
	}

	var snapshot Snapshot
	if err := codec.Unmarshal(encoded, &snapshot); err != nil {
		return nil, fmt.Errorf("archive: decoding snapshot %s: %w", path, err)
	}
	return &snapshot, nil
}
