// Package codec serializes snapshot chunks to and from their stored form: a
// versioned JSON document compressed with gzip.
//
// Encoding is deterministic: the same header and entry sequence always yields
// byte-identical output. The document embeds no timestamps and the gzip
// header carries no modification time.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/ava-labs/libevm/common"
	"github.com/klauspost/compress/gzip"

	"github.com/zenrollup/snapshotter/pkg/types"
)

// FormatVersion identifies the chunk document layout. Decoders reject any
// other version with types.ErrMalformedChunk.
const FormatVersion = 1

// Header carries the checkpoint a chunk belongs to. Every chunk of one
// snapshot stores the same header.
type Header struct {
	LastL1BatchNumber   uint64
	LastMiniblockNumber uint64
}

// chunkDocument is the encode-side wire form.
type chunkDocument struct {
	FormatVersion       int                `json:"formatVersion"`
	LastL1BatchNumber   uint64             `json:"lastL1BatchNumber"`
	LastMiniblockNumber uint64             `json:"lastMiniblockNumber"`
	StorageLogs         []storageLogRecord `json:"storageLogs"`
}

type storageLogRecord struct {
	AccountAddress common.Address `json:"accountAddress"`
	Key            common.Hash    `json:"key"`
	Value          common.Hash    `json:"value"`
	LastModified   uint64         `json:"lastModifiedL1Batch"`
}

// decode-side wire form: pointer fields so missing keys are detectable
// instead of silently defaulting to zero values.
type chunkDocumentIn struct {
	FormatVersion       *int                 `json:"formatVersion"`
	LastL1BatchNumber   *uint64              `json:"lastL1BatchNumber"`
	LastMiniblockNumber *uint64              `json:"lastMiniblockNumber"`
	StorageLogs         []storageLogRecordIn `json:"storageLogs"`
}

type storageLogRecordIn struct {
	AccountAddress *common.Address `json:"accountAddress"`
	Key            *common.Hash    `json:"key"`
	Value          *common.Hash    `json:"value"`
	LastModified   *uint64         `json:"lastModifiedL1Batch"`
}

// EncodeChunk serializes the entries and checkpoint header into a compressed
// chunk blob.
func EncodeChunk(h Header, entries []types.StorageLogEntry) ([]byte, error) {
	doc := chunkDocument{
		FormatVersion:       FormatVersion,
		LastL1BatchNumber:   h.LastL1BatchNumber,
		LastMiniblockNumber: h.LastMiniblockNumber,
		StorageLogs:         make([]storageLogRecord, 0, len(entries)),
	}
	for _, e := range entries {
		doc.StorageLogs = append(doc.StorageLogs, storageLogRecord{
			AccountAddress: e.AccountAddress,
			Key:            e.Key,
			Value:          e.Value,
			LastModified:   e.LastModifiedL1Batch,
		})
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chunk document: %w", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress chunk document: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish chunk compression: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeChunk parses a chunk blob produced by EncodeChunk. Truncated or
// corrupted input, an unknown format version, unknown fields and missing
// required fields all fail with types.ErrMalformedChunk; partial data is
// never returned.
func DecodeChunk(blob []byte) (Header, []types.StorageLogEntry, error) {
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: bad gzip header: %v", types.ErrMalformedChunk, err)
	}
	raw, err := io.ReadAll(zr)
	if err != nil {
		return Header{}, nil, fmt.Errorf("%w: truncated or corrupted payload: %v", types.ErrMalformedChunk, err)
	}
	if err := zr.Close(); err != nil {
		return Header{}, nil, fmt.Errorf("%w: bad gzip checksum: %v", types.ErrMalformedChunk, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var doc chunkDocumentIn
	if err := dec.Decode(&doc); err != nil {
		return Header{}, nil, fmt.Errorf("%w: invalid document: %v", types.ErrMalformedChunk, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Header{}, nil, fmt.Errorf("%w: trailing data after document", types.ErrMalformedChunk)
	}

	if doc.FormatVersion == nil || doc.LastL1BatchNumber == nil || doc.LastMiniblockNumber == nil || doc.StorageLogs == nil {
		return Header{}, nil, fmt.Errorf("%w: missing required document fields", types.ErrMalformedChunk)
	}
	if *doc.FormatVersion != FormatVersion {
		return Header{}, nil, fmt.Errorf("%w: unsupported format version %d", types.ErrMalformedChunk, *doc.FormatVersion)
	}

	entries := make([]types.StorageLogEntry, 0, len(doc.StorageLogs))
	for i, rec := range doc.StorageLogs {
		if rec.AccountAddress == nil || rec.Key == nil || rec.Value == nil || rec.LastModified == nil {
			return Header{}, nil, fmt.Errorf("%w: storage log %d is missing required fields", types.ErrMalformedChunk, i)
		}
		entries = append(entries, types.StorageLogEntry{
			AccountAddress:      *rec.AccountAddress,
			Key:                 *rec.Key,
			Value:               *rec.Value,
			LastModifiedL1Batch: *rec.LastModified,
		})
	}

	h := Header{
		LastL1BatchNumber:   *doc.LastL1BatchNumber,
		LastMiniblockNumber: *doc.LastMiniblockNumber,
	}
	return h, entries, nil
}
