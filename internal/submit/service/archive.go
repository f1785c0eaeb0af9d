package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"codearena/internal/common/storage"
	pkgerrors "codearena/pkg/errors"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

const (
	defaultArchivePrefix = "solutions"
	maxArchiveBytes      = 8 << 20
)

// SourceArchive keeps zstd-compressed copies of accepted solutions in object storage.
type SourceArchive struct {
	storage storage.ObjectStorage
	bucket  string
	prefix  string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func NewSourceArchive(objectStorage storage.ObjectStorage, bucket, prefix string) (*SourceArchive, error) {
	if objectStorage == nil {
		return nil, fmt.Errorf("object storage is required")
	}
	if bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	if prefix == "" {
		prefix = defaultArchivePrefix
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxArchiveBytes))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder failed: %w", err)
	}
	return &SourceArchive{
		storage: objectStorage,
		bucket:  bucket,
		prefix:  prefix,
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// Store uploads the compressed source and returns its object key.
func (a *SourceArchive) Store(ctx context.Context, userID, problemID int64, language, source string) (string, error) {
	key := fmt.Sprintf("%s/%d/%d/%s-%s.%s.zst", a.prefix, userID, problemID,
		time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8], languageExt(language))
	compressed := a.encoder.EncodeAll([]byte(source), nil)
	if err := a.storage.PutObject(ctx, a.bucket, key, bytes.NewReader(compressed), int64(len(compressed)), "application/zstd"); err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.StorageError, "archive source failed")
	}
	return key, nil
}

// Load fetches and decompresses an archived source.
func (a *SourceArchive) Load(ctx context.Context, key string) (string, error) {
	reader, err := a.storage.GetObject(ctx, a.bucket, key)
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.StorageError, "read archived source failed")
	}
	defer reader.Close()
	compressed, err := io.ReadAll(io.LimitReader(reader, maxArchiveBytes))
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.StorageError, "read archived source failed")
	}
	source, err := a.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return "", pkgerrors.Wrapf(err, pkgerrors.StorageError, "decode archived source failed")
	}
	return string(source), nil
}

func languageExt(language string) string {
	switch strings.ToLower(language) {
	case "python", "python3", "py":
		return "py"
	case "cpp", "c++":
		return "cpp"
	case "java":
		return "java"
	default:
		return "js"
	}
}
