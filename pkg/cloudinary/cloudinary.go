package cloudinary

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/rs/zerolog"
)

const defaultThumbnailTransformation = "c_fill,g_auto,w_600,h_400,q_auto,f_auto"

var versionSegment = regexp.MustCompile(`^v\d+$`)

// Config contains the delivery settings for Cloudinary assets.
type Config struct {
	CloudName      string
	APIKey         string
	APISecret      string
	Transformation string
}

// Thumbnailer rewrites Cloudinary delivery URLs into resized thumbnails.
type Thumbnailer struct {
	client         *cloudinary.Cloudinary
	cloudName      string
	transformation string
	logger         zerolog.Logger
}

// New constructs a Thumbnailer for the configured cloud.
func New(cfg Config, logger zerolog.Logger) (*Thumbnailer, error) {
	if strings.TrimSpace(cfg.CloudName) == "" {
		return nil, fmt.Errorf("cloudinary cloud name must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	transformation := strings.TrimSpace(cfg.Transformation)
	if transformation == "" {
		transformation = defaultThumbnailTransformation
	}

	return &Thumbnailer{
		client:         cld,
		cloudName:      cfg.CloudName,
		transformation: transformation,
		logger:         logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Thumbnail returns a resized delivery URL for an image hosted on the
// configured cloud. Other URLs are returned unchanged.
func (t *Thumbnailer) Thumbnail(rawURL string) string {
	publicID, ok := t.publicID(rawURL)
	if !ok {
		return rawURL
	}

	image, err := t.client.Image(publicID)
	if err != nil {
		t.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to build cloudinary asset")
		return rawURL
	}
	image.Transformation = t.transformation

	thumbnail, err := image.String()
	if err != nil || thumbnail == "" {
		t.logger.Warn().Err(err).Str("public_id", publicID).Msg("failed to build thumbnail url")
		return rawURL
	}
	return thumbnail
}

// publicID extracts the public id from an image delivery URL of the form
// https://res.cloudinary.com/<cloud>/image/upload/[v123/]<public id>.
func (t *Thumbnailer) publicID(rawURL string) (string, bool) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !strings.HasSuffix(parsed.Host, "cloudinary.com") {
		return "", false
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) < 4 || segments[0] != t.cloudName || segments[1] != "image" || segments[2] != "upload" {
		return "", false
	}

	rest := segments[3:]
	if len(rest) > 1 && versionSegment.MatchString(rest[0]) {
		rest = rest[1:]
	}
	publicID := strings.Join(rest, "/")
	if publicID == "" {
		return "", false
	}
	return publicID, true
}
