package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/volunteer-hub-web/internal/observability"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

const (
	defaultUploadMaxBytes       = 10 * 1024 * 1024
	defaultUploadRetries        = 2
	defaultUploadBaseDelay      = time.Second
	defaultUploadAttemptTimeout = 120 * time.Second
)

// ProgressFunc receives upload progress as a percentage in [0, 100].
type ProgressFunc func(percent int)

// MediaAPI is the subset of the activities API used for media storage.
type MediaAPI interface {
	Upload(ctx context.Context, req activityapi.UploadRequest) (activityapi.MediaReference, error)
	DeleteTemp(ctx context.Context, publicID, resourceType string) error
}

// UploadFile is a single file selected for upload. Size is taken from
// len(Content) when zero.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Content     []byte
}

// UploadConfig tunes the upload coordinator.
type UploadConfig struct {
	MaxBytes       int64
	MaxRetries     int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
	// Sleep waits between attempts. Tests replace it to avoid real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// UploadService uploads single media files with validation and retry.
type UploadService interface {
	Upload(ctx context.Context, file UploadFile, progress ProgressFunc) (activityapi.MediaReference, error)
	DeleteTemp(ctx context.Context, publicID, resourceType string) error
	MaxBytes() int64
}

type uploadService struct {
	api            MediaAPI
	logger         zerolog.Logger
	tracer         trace.Tracer
	maxBytes       int64
	maxRetries     int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	sleep          func(ctx context.Context, d time.Duration) error
}

// NewUploadService constructs the upload coordinator.
func NewUploadService(api MediaAPI, cfg UploadConfig, logger zerolog.Logger) UploadService {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultUploadMaxBytes
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultUploadBaseDelay
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultUploadAttemptTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}

	return &uploadService{
		api:            api,
		logger:         logger.With().Str("component", "upload_service").Logger(),
		tracer:         otel.Tracer("github.com/noah-isme/volunteer-hub-web/internal/service/upload"),
		maxBytes:       cfg.MaxBytes,
		maxRetries:     cfg.MaxRetries,
		baseDelay:      cfg.BaseDelay,
		attemptTimeout: cfg.AttemptTimeout,
		sleep:          cfg.Sleep,
	}
}

// DefaultUploadConfig returns the production retry policy.
func DefaultUploadConfig() UploadConfig {
	return UploadConfig{
		MaxBytes:       defaultUploadMaxBytes,
		MaxRetries:     defaultUploadRetries,
		BaseDelay:      defaultUploadBaseDelay,
		AttemptTimeout: defaultUploadAttemptTimeout,
	}
}

func (s *uploadService) MaxBytes() int64 {
	return s.maxBytes
}

func (s *uploadService) Upload(ctx context.Context, file UploadFile, progress ProgressFunc) (activityapi.MediaReference, error) {
	if progress == nil {
		progress = func(int) {}
	}

	size := file.Size
	if size <= 0 {
		size = int64(len(file.Content))
	}

	ctx, span := s.tracer.Start(ctx, "upload.media")
	defer span.End()
	span.SetAttributes(
		attribute.String("upload.name", strings.TrimSpace(file.Name)),
		attribute.Int64("upload.size_bytes", size),
		attribute.Int64("upload.max_bytes", s.maxBytes),
	)

	if size > s.maxBytes {
		observability.UploadRejected().WithLabelValues("size").Inc()
		err := &activityapi.ValidationError{
			Field:   "file",
			Message: fmt.Sprintf("file %q exceeds the maximum size of %d MB", file.Name, s.maxBytes/(1024*1024)),
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "payload too large")
		return activityapi.MediaReference{}, err
	}
	if len(file.Content) == 0 {
		observability.UploadRejected().WithLabelValues("empty").Inc()
		err := &activityapi.ValidationError{Field: "file", Message: "file is empty"}
		span.RecordError(err)
		span.SetStatus(codes.Error, "empty payload")
		return activityapi.MediaReference{}, err
	}

	contentType, resourceType := detectMedia(file)
	span.SetAttributes(
		attribute.String("upload.content_type", contentType),
		attribute.String("upload.resource_type", resourceType),
	)

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * time.Duration(1<<(attempt-1))
			s.logger.Warn().
				Err(lastErr).
				Str("file", file.Name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying media upload")
			if err := s.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		progress(0)
		ref, err := s.attempt(ctx, file, contentType, resourceType, size, progress)
		if err == nil {
			progress(100)
			observability.UploadAttempts().WithLabelValues("success").Inc()
			span.SetAttributes(attribute.Int("upload.attempts", attempt+1))
			span.SetStatus(codes.Ok, "uploaded")
			return ref, nil
		}

		lastErr = err
		observability.UploadAttempts().WithLabelValues(attemptOutcome(err)).Inc()
		if !activityapi.IsRetryable(err) || ctx.Err() != nil {
			break
		}
	}

	s.logger.Error().Err(lastErr).Str("file", file.Name).Msg("media upload failed")
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "upload failed")
	return activityapi.MediaReference{}, lastErr
}

func (s *uploadService) attempt(ctx context.Context, file UploadFile, contentType, resourceType string, size int64, progress ProgressFunc) (activityapi.MediaReference, error) {
	body, err := activityapi.NewFileMultipart("files", file.Name, contentType, file.Content)
	if err != nil {
		return activityapi.MediaReference{}, &activityapi.ValidationError{Field: "file", Message: err.Error()}
	}
	body.Body = &progressReader{reader: body.Body, total: body.Length, report: progress}

	return s.api.Upload(ctx, activityapi.UploadRequest{
		Body:         body,
		Name:         file.Name,
		Size:         size,
		ResourceType: resourceType,
		Timeout:      s.attemptTimeout,
	})
}

func (s *uploadService) DeleteTemp(ctx context.Context, publicID, resourceType string) error {
	if err := s.api.DeleteTemp(ctx, publicID, resourceType); err != nil {
		s.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to delete temporary upload")
		return err
	}
	return nil
}

// detectMedia returns the content type to send and the derived resource type.
func detectMedia(file UploadFile) (string, string) {
	declared := strings.ToLower(strings.TrimSpace(file.ContentType))
	if declared == "" || declared == "application/octet-stream" {
		declared = mimetype.Detect(file.Content).String()
	}
	if idx := strings.Index(declared, ";"); idx >= 0 {
		declared = strings.TrimSpace(declared[:idx])
	}

	resourceType := activityapi.ResourceImage
	if strings.HasPrefix(declared, "video/") {
		resourceType = activityapi.ResourceVideo
	}
	return declared, resourceType
}

func attemptOutcome(err error) string {
	var (
		timeoutErr *activityapi.TimeoutError
		networkErr *activityapi.NetworkError
		httpErr    *activityapi.HTTPError
		parseErr   *activityapi.ParseError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return "timeout"
	case errors.As(err, &networkErr):
		return "network"
	case errors.As(err, &httpErr):
		return "http"
	case errors.As(err, &parseErr):
		return "parse"
	default:
		return "error"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// progressReader reports the share of the body consumed by the transport.
type progressReader struct {
	reader io.Reader
	total  int64
	read   int64
	last   int
	report ProgressFunc
	mu     sync.Mutex
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if n > 0 && p.total > 0 {
		p.mu.Lock()
		p.read += int64(n)
		percent := int(p.read * 100 / p.total)
		if percent > 100 {
			percent = 100
		}
		changed := percent != p.last
		p.last = percent
		p.mu.Unlock()
		if changed {
			p.report(percent)
		}
	}
	return n, err
}
