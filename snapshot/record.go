package snapshot

import (
	"bytes"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/saiset-co/sai-lru/types"
	"github.com/saiset-co/sai-lru/utils"
)

const RecordVersion = 1

// compressedMagic prefixes brotli-compressed records so readers can tell
// them apart from plain JSON without extra configuration.
var compressedMagic = []byte("SLB1")

// Record is the persisted form of a cache, entries oldest first.
type Record struct {
	Version  int                `json:"version"`
	Capacity int                `json:"capacity"`
	Entries  []types.CacheEntry `json:"entries"`
}

type rawRecord struct {
	Version  int                 `json:"version"`
	Capacity int                 `json:"capacity"`
	Entries  *[]types.CacheEntry `json:"entries"`
}

func EncodeRecord(entries []types.CacheEntry, capacity int, compress bool) ([]byte, error) {
	if entries == nil {
		entries = []types.CacheEntry{}
	}

	data, err := utils.Marshal(Record{
		Version:  RecordVersion,
		Capacity: capacity,
		Entries:  entries,
	})
	if err != nil {
		return nil, types.WrapError(err, "failed to marshal snapshot record")
	}

	if !compress {
		return data, nil
	}

	var buf bytes.Buffer
	buf.Write(compressedMagic)

	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(data); err != nil {
		return nil, types.WrapError(err, "failed to compress snapshot record")
	}
	if err := w.Close(); err != nil {
		return nil, types.WrapError(err, "failed to compress snapshot record")
	}

	return buf.Bytes(), nil
}

// DecodeRecord parses a persisted record. Anything short of a complete,
// well-formed record is ErrSnapshotMalformed; there is no partial recovery.
func DecodeRecord(data []byte) (*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "empty record")
	}

	if bytes.HasPrefix(data, compressedMagic) {
		plain, err := io.ReadAll(brotli.NewReader(bytes.NewReader(data[len(compressedMagic):])))
		if err != nil {
			return nil, types.Errorf(types.ErrSnapshotMalformed, "decompress: %v", err)
		}
		data = plain
	}

	var raw rawRecord
	if err := utils.Unmarshal(data, &raw); err != nil {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "%v", err)
	}

	if raw.Version != RecordVersion {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "unsupported version %d", raw.Version)
	}

	if raw.Entries == nil {
		return nil, types.Errorf(types.ErrSnapshotMalformed, "entries missing")
	}

	seen := make(map[string]struct{}, len(*raw.Entries))
	for _, entry := range *raw.Entries {
		if entry.Key == "" {
			return nil, types.Errorf(types.ErrSnapshotMalformed, "empty key")
		}
		if _, dup := seen[entry.Key]; dup {
			return nil, types.Errorf(types.ErrSnapshotMalformed, "duplicate key %q", entry.Key)
		}
		seen[entry.Key] = struct{}{}
	}

	return &Record{
		Version:  raw.Version,
		Capacity: raw.Capacity,
		Entries:  *raw.Entries,
	}, nil
}
