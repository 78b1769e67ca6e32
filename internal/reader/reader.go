// Package reader implements the secure file reader: validation, resource
// controls, then a no-follow open whose descriptor is the only handle ever
// read from.
package reader

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"orgsafe/internal/audit"
	"orgsafe/internal/logging"
	"orgsafe/internal/pathguard"
	"orgsafe/internal/ratelimit"
	"orgsafe/pkg/fileops"
)

const (
	// DefaultStreamThreshold is the size above which content is read in chunks.
	DefaultStreamThreshold = 100 << 10
	chunkSize              = 64 << 10
	sniffLen               = 3072
)

// Encoding selects how ReadResult.Text is populated.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingBinary Encoding = "binary"
	EncodingBase64 Encoding = "base64"
)

// ParseEncoding accepts the names above plus a few common aliases.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8", "text":
		return EncodingUTF8, nil
	case "binary", "raw":
		return EncodingBinary, nil
	case "base64":
		return EncodingBase64, nil
	}
	return "", fmt.Errorf("unsupported encoding %q", s)
}

// ReadOptions tunes a single read.
type ReadOptions struct {
	Encoding Encoding
	// MaxBytes caps the bytes returned. Zero means the configured ceiling;
	// larger values are clamped to it.
	MaxBytes int64
	// Offset is where reading starts.
	Offset int64
}

// Metadata describes the file and the bytes delivered.
type Metadata struct {
	Path     string
	MIMEType string
	// Size is the full file size, not the bytes read.
	Size     int64
	ReadAt   time.Time
	Checksum string
	Encoding Encoding
}

// ReadResult is the outcome of a successful read. Checksum always covers
// exactly Data.
type ReadResult struct {
	Data []byte
	// Text is Data rendered per Metadata.Encoding; empty for binary.
	Text      string
	BytesRead int64
	// Truncated is set when the file extends past the returned range.
	Truncated bool
	Metadata  Metadata
}

// Validator is the part of pathguard.Validator the reader depends on.
type Validator interface {
	Validate(raw string, opts pathguard.Options) (pathguard.ValidatedPath, error)
	Contains(abs string) bool
}

// Config holds the reader's limits.
type Config struct {
	MaxReadBytes    int64
	MaxFileSize     int64
	StreamThreshold int64
}

// SecureFileReader reads file content without following symbolic links.
type SecureFileReader struct {
	validator Validator
	limiter   ratelimit.Checker
	sink      audit.Sink
	logger    *logging.AppLogger
	cfg       Config
}

// New wires a reader. limiter and sink may be nil.
func New(validator Validator, limiter ratelimit.Checker, sink audit.Sink, logger *logging.AppLogger, cfg Config) *SecureFileReader {
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	if cfg.StreamThreshold <= 0 {
		cfg.StreamThreshold = DefaultStreamThreshold
	}
	return &SecureFileReader{
		validator: validator,
		limiter:   limiter,
		sink:      sink,
		logger:    logger.With("component", "reader"),
		cfg:       cfg,
	}
}

// Read validates path, applies resource controls and returns its content.
func (r *SecureFileReader) Read(ctx context.Context, path string, opts ReadOptions) (*ReadResult, error) {
	r.sink.Record(audit.Event{Operation: "read", Path: path, Outcome: audit.OutcomeStart, Time: time.Now()})

	result, err := r.read(ctx, path, opts)
	if err != nil {
		r.sink.Record(audit.Event{
			Operation: "read",
			Path:      path,
			Outcome:   audit.OutcomeFailure,
			Context:   map[string]any{"error": fileops.KindOf(err).String()},
			Time:      time.Now(),
		})
		r.logger.Debug("Read failed", "path", path, "error", err)
		return nil, err
	}

	r.sink.Record(audit.Event{
		Operation: "read",
		Path:      result.Metadata.Path,
		Outcome:   audit.OutcomeSuccess,
		Context: map[string]any{
			"bytes":    result.BytesRead,
			"checksum": result.Metadata.Checksum,
		},
		Time: result.Metadata.ReadAt,
	})
	return result, nil
}

func (r *SecureFileReader) read(ctx context.Context, path string, opts ReadOptions) (*ReadResult, error) {
	if opts.Encoding == "" {
		opts.Encoding = EncodingUTF8
	}
	if _, err := ParseEncoding(string(opts.Encoding)); err != nil {
		return nil, fileops.NewError(fileops.KindInternal, "read", path, err.Error())
	}
	if opts.Offset < 0 {
		return nil, fileops.NewError(fileops.KindOffsetBeyondEnd, "read", path, "offset cannot be negative")
	}

	// Stage 1: validation.
	if fileops.IsSensitivePath(fileops.ExpandPath(path)) {
		return nil, fileops.NewError(fileops.KindSensitivePathBlocked, "read", path, "refusing to read credential or key material")
	}
	vp, err := r.validator.Validate(path, pathguard.Options{AllowSymlinks: false, RequireExists: true})
	if err != nil {
		return nil, err
	}
	if fileops.IsSensitivePath(vp.Real) {
		return nil, fileops.NewError(fileops.KindSensitivePathBlocked, "read", vp.Path, "refusing to read credential or key material")
	}

	// Stage 2: resource controls.
	if err := ratelimit.Enforce(r.limiter, "read", vp.Path); err != nil {
		return nil, err
	}

	// Stage 3: execution.
	if err := ctx.Err(); err != nil {
		return nil, &fileops.Error{Kind: fileops.KindAborted, Op: "read", Path: vp.Path, Err: err}
	}

	f, err := fileops.OpenNoFollow(vp.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if actual, ok := fileops.DescriptorPath(f); ok {
		if !r.validator.Contains(actual) || fileops.IsSensitivePath(actual) {
			r.logger.Warn("Opened file resolved outside allowed directories", "path", vp.Path, "actual", actual)
			return nil, fileops.NewError(fileops.KindPathRejected, "read", vp.Path, "file changed between validation and open")
		}
	}

	info, err := f.Stat()
	if err != nil {
		return nil, fileops.Translate("stat", vp.Path, err)
	}
	if info.IsDir() {
		return nil, fileops.NewError(fileops.KindIsDirectory, "read", vp.Path, "path is a directory")
	}
	if !info.Mode().IsRegular() {
		return nil, fileops.NewError(fileops.KindNotRegular, "read", vp.Path, "not a regular file")
	}

	size := info.Size()
	if r.cfg.MaxFileSize > 0 {
		if err := fileops.ValidateFileSizeLimit(vp.Path, size, r.cfg.MaxFileSize); err != nil {
			return nil, err
		}
	}
	if opts.Offset > size {
		return nil, fileops.NewError(fileops.KindOffsetBeyondEnd, "read", vp.Path,
			fmt.Sprintf("offset %d is beyond end of file (%d bytes)", opts.Offset, size))
	}

	maxBytes := r.cfg.MaxReadBytes
	if opts.MaxBytes > 0 && (maxBytes <= 0 || opts.MaxBytes < maxBytes) {
		maxBytes = opts.MaxBytes
	}
	remaining := size - opts.Offset
	toRead := remaining
	if maxBytes > 0 && toRead > maxBytes {
		toRead = maxBytes
	}

	section := io.NewSectionReader(f, opts.Offset, toRead)
	hasher := sha256.New()

	var data []byte
	if toRead > r.cfg.StreamThreshold {
		data, err = readStreaming(ctx, section, toRead, hasher)
	} else {
		data, err = readWhole(section, toRead, hasher)
	}
	if err != nil {
		return nil, fileops.Translate("read", vp.Path, err)
	}

	mimeType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(io.NewSectionReader(f, 0, sniffLen)); err == nil {
		mimeType = mt.String()
	}

	result := &ReadResult{
		Data:      data,
		BytesRead: int64(len(data)),
		Truncated: opts.Offset+int64(len(data)) < size,
		Metadata: Metadata{
			Path:     vp.Path,
			MIMEType: mimeType,
			Size:     size,
			ReadAt:   time.Now(),
			Checksum: hex.EncodeToString(hasher.Sum(nil)),
			Encoding: opts.Encoding,
		},
	}

	switch opts.Encoding {
	case EncodingUTF8:
		result.Text = strings.ToValidUTF8(string(data), "\uFFFD")
	case EncodingBase64:
		result.Text = base64.StdEncoding.EncodeToString(data)
	}

	return result, nil
}

// readWhole reads up to n bytes in one call. A file that shrank since stat
// yields the bytes that were still there.
func readWhole(src io.Reader, n int64, h hash.Hash) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(src, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	buf = buf[:read]
	h.Write(buf)
	return buf, nil
}

// readStreaming reads n bytes in fixed size chunks, checking ctx before each
// chunk and hashing as it goes.
func readStreaming(ctx context.Context, src io.Reader, n int64, h hash.Hash) ([]byte, error) {
	out := make([]byte, 0, n)
	chunk := make([]byte, chunkSize)

	for int64(len(out)) < n {
		if err := ctx.Err(); err != nil {
			return nil, &fileops.Error{Kind: fileops.KindAborted, Op: "read", Reason: "cancelled between chunks", Err: err}
		}

		want := n - int64(len(out))
		if want > chunkSize {
			want = chunkSize
		}
		read, err := io.ReadFull(src, chunk[:want])
		if read > 0 {
			h.Write(chunk[:read])
			out = append(out, chunk[:read]...)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

var _ Validator = (*pathguard.Validator)(nil)
