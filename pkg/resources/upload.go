package resources

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/tendant/simple-resources/pkg/resources/objectkey"
)

// UploadClass bounds what an upload endpoint accepts.
type UploadClass struct {
	Name         string
	MaxBytes     int64
	AllowedTypes []string
}

// Allows reports whether mediaType is on the class allow-list
func (c UploadClass) Allows(mediaType string) bool {
	for _, allowed := range c.AllowedTypes {
		if allowed == mediaType {
			return true
		}
	}
	return false
}

var (
	// GeneralUploads covers documents, archives, images, video and audio for the resource tree
	GeneralUploads = UploadClass{
		Name:     "general",
		MaxBytes: 50 << 20,
		AllowedTypes: []string{
			"application/pdf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"text/plain",
			"text/csv",
			"application/rtf",
			"application/vnd.oasis.opendocument.text",
			"application/zip",
			"application/x-zip-compressed",
			"application/x-rar-compressed",
			"application/x-7z-compressed",
			"image/jpeg",
			"image/png",
			"image/gif",
			"image/webp",
			"image/svg+xml",
			"video/mp4",
			"video/webm",
			"video/quicktime",
			"audio/mpeg",
		},
	}

	// TimetableUploads covers the timetable image or PDF
	TimetableUploads = UploadClass{
		Name:         "timetable",
		MaxBytes:     20 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp", "image/gif", "application/pdf"},
	}
)

// UploadRequest is one file received from a client
type UploadRequest struct {
	Filename  string
	MediaType string
	Body      io.Reader
	Class     UploadClass
}

// Pipeline stages an upload on local disk, persists it to the durable store
// and always removes the staged copy afterwards.
type Pipeline struct {
	stager Stager
	store  DurableStore
	layout objectkey.Layout
	logger *slog.Logger
	now    func() time.Time
	suffix func() string
}

// PipelineOption configures a Pipeline
type PipelineOption func(*Pipeline)

// WithDurableStore sets the remote store. Without one, uploads are inlined
// as data URIs.
func WithDurableStore(store DurableStore) PipelineOption {
	return func(p *Pipeline) {
		p.store = store
	}
}

// WithNamespace sets the public id namespace
func WithNamespace(namespace string) PipelineOption {
	return func(p *Pipeline) {
		p.layout = objectkey.NewLayout(namespace, "")
	}
}

func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClock overrides time.Now for staging names
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithSuffixFunc overrides the random staging name suffix
func WithSuffixFunc(suffix func() string) PipelineOption {
	return func(p *Pipeline) {
		p.suffix = suffix
	}
}

// NewPipeline creates an upload pipeline staging through stager
func NewPipeline(stager Stager, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		stager: stager,
		layout: objectkey.NewLayout("", ""),
		logger: slog.Default(),
		now:    time.Now,
		suffix: randomSuffix,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Upload runs one file through the pipeline and returns its locator.
func (p *Pipeline) Upload(ctx context.Context, req UploadRequest) (*UploadLocator, error) {
	if req.Body == nil || req.Filename == "" {
		return nil, newValidationError("file", ErrMissingField, "file required")
	}

	mediaType := normalizeMediaType(req.MediaType)
	if !req.Class.Allows(mediaType) {
		return nil, newValidationError("file", ErrUnsupportedMediaType, "unsupported media type: %s", req.MediaType)
	}

	name := objectkey.StagingName(req.Filename, p.now(), p.suffix())
	defer p.cleanup(name)

	staged, err := p.stager.Stage(ctx, name, io.LimitReader(req.Body, req.Class.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to stage upload: %w", err)
	}
	if staged.Size > req.Class.MaxBytes {
		return nil, newValidationError("file", ErrPayloadTooLarge, "file exceeds %s limit", humanize.IBytes(uint64(req.Class.MaxBytes)))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.store == nil {
		return p.inline(name, mediaType, staged.Size)
	}
	return p.persist(ctx, name, mediaType, staged.Size)
}

func (p *Pipeline) persist(ctx context.Context, name, mediaType string, size int64) (*UploadLocator, error) {
	reader, err := p.stager.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen staged upload: %w", err)
	}
	defer reader.Close()

	kind := KindForMediaType(mediaType)
	asset, err := p.store.Persist(ctx, reader, PersistParams{
		Kind:      kind,
		PublicID:  p.layout.PublicID(objectkey.CanonicalKey(name)),
		Format:    objectkey.Format(name),
		MediaType: mediaType,
		Size:      size,
	})
	if err != nil {
		p.logger.Error("Failed to persist upload", "name", name, "kind", kind, "error", err)
		return nil, asUpstreamError("persist", err)
	}

	p.logger.Info("Upload persisted", "name", name, "kind", kind, "url", asset.URL, "size", size)
	return &UploadLocator{
		Name:        name,
		URL:         asset.URL,
		Size:        size,
		MediaType:   mediaType,
		StorageKind: string(kind),
	}, nil
}

// inline embeds the staged bytes as a data URI. Used only when no durable
// store is configured.
func (p *Pipeline) inline(name, mediaType string, size int64) (*UploadLocator, error) {
	reader, err := p.stager.Open(name)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen staged upload: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read staged upload: %w", err)
	}

	p.logger.Info("Upload inlined", "name", name, "size", size)
	return &UploadLocator{
		Name:        name,
		URL:         "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
		Size:        size,
		MediaType:   mediaType,
		StorageKind: StorageKindInline,
	}, nil
}

func (p *Pipeline) cleanup(name string) {
	if err := p.stager.Remove(name); err != nil {
		p.logger.Warn("Failed to remove staged upload", "name", name, "error", err)
	}
}

// Delete removes filename from the durable store under every kind and from
// staging. Absent objects are not an error.
func (p *Pipeline) Delete(ctx context.Context, filename string) error {
	if err := p.stager.Remove(filename); err != nil {
		if errors.Is(err, ErrValidation) {
			return newValidationError("filename", err, "invalid filename")
		}
		p.logger.Warn("Failed to remove staged file", "name", filename, "error", err)
	}
	if p.store == nil {
		return nil
	}

	publicID := p.layout.PublicID(objectkey.CanonicalKey(filename))
	format := objectkey.Format(filename)
	for _, kind := range ProbeOrder {
		ref := ObjectRef{Kind: kind, PublicID: publicID, Format: format}
		if err := p.store.Delete(ctx, ref); err != nil && !errors.Is(err, ErrNotFound) {
			return asUpstreamError("delete", err)
		}
	}
	p.logger.Info("File deleted", "name", filename)
	return nil
}

// normalizeMediaType lowercases and strips parameters
func normalizeMediaType(mediaType string) string {
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		return parsed
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// asUpstreamError keeps an existing UpstreamError and wraps anything else
func asUpstreamError(op string, err error) error {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	return &UpstreamError{Op: op, StatusCode: status, Err: err}
}
