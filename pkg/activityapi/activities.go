package activityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const envelopeSchemaURL = "activityapi://envelope.json"

const envelopeSchemaJSON = `{
  "type": "object",
  "required": ["success"],
  "properties": {
    "success": {"type": "boolean"},
    "message": {"type": ["string", "null"]}
  }
}`

var (
	envelopeSchemaOnce sync.Once
	envelopeSchema     *jsonschema.Schema
)

func loadEnvelopeSchema() *jsonschema.Schema {
	envelopeSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(envelopeSchemaURL, strings.NewReader(envelopeSchemaJSON)); err != nil {
			panic(err)
		}
		envelopeSchema = compiler.MustCompile(envelopeSchemaURL)
	})
	return envelopeSchema
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// call performs req and unwraps the {success, data, message} envelope. When
// data is non-nil the envelope's data section is decoded into it.
func (c *Client) call(ctx context.Context, req Request, data any) (string, error) {
	var raw json.RawMessage
	if err := c.Do(ctx, req, &raw); err != nil {
		return "", err
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return "", &ParseError{Err: err}
	}
	if err := loadEnvelopeSchema().Validate(generic); err != nil {
		return "", &ParseError{Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", &ParseError{Err: err}
	}
	if !env.Success {
		message := env.Message
		if message == "" {
			message = "request was not successful"
		}
		return "", &HTTPError{Status: http.StatusOK, Message: message}
	}

	if data == nil {
		return env.Message, nil
	}
	trimmed := bytes.TrimSpace(env.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", &ParseError{Err: errors.New("response has no data")}
	}
	if err := json.Unmarshal(trimmed, data); err != nil {
		return "", &ParseError{Err: err}
	}

	return env.Message, nil
}

// ListActivities fetches one page of activities.
func (c *Client) ListActivities(ctx context.Context, query ActivityQuery) (ActivityList, error) {
	var list ActivityList
	_, err := c.call(ctx, Request{Method: http.MethodGet, Path: "/activities", Query: query.Values()}, &list)
	if err != nil {
		return ActivityList{}, err
	}
	if list.Activities == nil {
		list.Activities = []Activity{}
	}
	return list, nil
}

// FilterOptions fetches facet metadata for the filter controls.
func (c *Client) FilterOptions(ctx context.Context) (FilterOptions, error) {
	var options FilterOptions
	if _, err := c.call(ctx, Request{Method: http.MethodGet, Path: "/activities/filters"}, &options); err != nil {
		return FilterOptions{}, err
	}
	return options, nil
}

// GetActivity fetches a single activity.
func (c *Client) GetActivity(ctx context.Context, id string) (Activity, error) {
	if strings.TrimSpace(id) == "" {
		return Activity{}, &ValidationError{Field: "id", Message: "activity id is required"}
	}
	var activity Activity
	req := Request{Method: http.MethodGet, Path: "/activities/" + url.PathEscape(id), Route: "/activities/:id"}
	if _, err := c.call(ctx, req, &activity); err != nil {
		return Activity{}, err
	}
	return activity, nil
}

// CreateActivity creates a new activity.
func (c *Client) CreateActivity(ctx context.Context, input ActivityInput) (SaveResult, error) {
	return c.save(ctx, Request{Method: http.MethodPost, Path: "/activities", Body: input})
}

// UpdateActivity updates the activity with the given id.
func (c *Client) UpdateActivity(ctx context.Context, id string, input ActivityInput) (SaveResult, error) {
	if strings.TrimSpace(id) == "" {
		return SaveResult{}, &ValidationError{Field: "id", Message: "activity id is required"}
	}
	return c.save(ctx, Request{Method: http.MethodPut, Path: "/activities/" + url.PathEscape(id), Route: "/activities/:id", Body: input})
}

func (c *Client) save(ctx context.Context, req Request) (SaveResult, error) {
	var raw json.RawMessage
	message, err := c.call(ctx, req, &raw)
	if err != nil {
		return SaveResult{}, err
	}

	// The API returns either the activity itself or {activity, message}.
	var wrapped struct {
		Activity *Activity `json:"activity"`
		Message  string    `json:"message"`
	}
	result := SaveResult{Message: message}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Activity != nil {
		result.Activity = *wrapped.Activity
		if wrapped.Message != "" {
			result.Message = wrapped.Message
		}
		return result, nil
	}
	if err := json.Unmarshal(raw, &result.Activity); err != nil {
		return SaveResult{}, &ParseError{Err: err}
	}
	if wrapped.Message != "" {
		result.Message = wrapped.Message
	}
	return result, nil
}

// DeleteActivity removes the activity with the given id.
func (c *Client) DeleteActivity(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &ValidationError{Field: "id", Message: "activity id is required"}
	}
	_, err := c.call(ctx, Request{Method: http.MethodDelete, Path: "/activities/" + url.PathEscape(id), Route: "/activities/:id"}, nil)
	return err
}

// Stats fetches aggregate activity counts.
func (c *Client) Stats(ctx context.Context) (ActivityStats, error) {
	var stats ActivityStats
	if _, err := c.call(ctx, Request{Method: http.MethodGet, Path: "/activities/stats"}, &stats); err != nil {
		return ActivityStats{}, err
	}
	return stats, nil
}

// DeleteTemp deletes an uploaded file that is not yet attached to a saved
// activity.
func (c *Client) DeleteTemp(ctx context.Context, publicID, resourceType string) error {
	if strings.TrimSpace(publicID) == "" {
		return &ValidationError{Field: "publicId", Message: "public id is required"}
	}
	if resourceType == "" {
		resourceType = ResourceImage
	}
	body := map[string]string{"publicId": publicID, "resourceType": resourceType}
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: "/activities/upload/temp", Body: body}, nil)
}

// UploadRequest describes one file upload attempt.
type UploadRequest struct {
	Body         *Multipart
	Name         string
	Size         int64
	ResourceType string
	Timeout      time.Duration
}

type uploadedFile struct {
	PublicID     string `json:"publicId"`
	URL          string `json:"url"`
	SecureURL    string `json:"secure_url"`
	ResourceType string `json:"resourceType"`
	UploadedAt   string `json:"uploadedAt"`
}

// Upload posts a multipart body to the upload endpoint and returns the
// resulting media reference.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (MediaReference, error) {
	if req.Body == nil {
		return MediaReference{}, &ValidationError{Field: "files", Message: "file is required"}
	}

	var raw json.RawMessage
	if err := c.Do(ctx, Request{Method: http.MethodPost, Path: "/activities/upload", Body: req.Body, Timeout: req.Timeout}, &raw); err != nil {
		return MediaReference{}, err
	}

	file, err := parseUploadResponse(raw)
	if err != nil {
		return MediaReference{}, err
	}

	ref := MediaReference{
		PublicID:     file.PublicID,
		ResourceType: file.ResourceType,
		URL:          file.URL,
		Size:         req.Size,
		Name:         req.Name,
		UploadedAt:   time.Now().UTC(),
	}
	if ref.URL == "" {
		ref.URL = file.SecureURL
	}
	if ref.ResourceType == "" {
		ref.ResourceType = req.ResourceType
	}
	if file.UploadedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, file.UploadedAt); err == nil {
			ref.UploadedAt = parsed
		}
	}

	return ref, nil
}

// parseUploadResponse accepts {data: [file]}, {data: file}, {files: [file]}
// or a bare file object.
func parseUploadResponse(raw []byte) (uploadedFile, error) {
	var outer struct {
		Data  json.RawMessage `json:"data"`
		Files []uploadedFile  `json:"files"`
	}
	if err := json.Unmarshal(raw, &outer); err != nil {
		return uploadedFile{}, &ParseError{Err: err}
	}

	var file uploadedFile
	data := bytes.TrimSpace(outer.Data)
	switch {
	case len(data) > 0 && data[0] == '[':
		var files []uploadedFile
		if err := json.Unmarshal(data, &files); err != nil {
			return uploadedFile{}, &ParseError{Err: err}
		}
		if len(files) > 0 {
			file = files[0]
		}
	case len(data) > 0 && data[0] == '{':
		if err := json.Unmarshal(data, &file); err != nil {
			return uploadedFile{}, &ParseError{Err: err}
		}
	case len(outer.Files) > 0:
		file = outer.Files[0]
	default:
		if err := json.Unmarshal(raw, &file); err != nil {
			return uploadedFile{}, &ParseError{Err: err}
		}
	}

	if file.URL == "" && file.SecureURL == "" {
		return uploadedFile{}, &ParseError{Err: errors.New("upload response has no url")}
	}
	return file, nil
}
