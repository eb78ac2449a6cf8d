package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/models"
	"github.com/noah-isme/volunteer-hub-web/internal/repository"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

var (
	// ErrFormClosed indicates an operation on a form that is not open.
	ErrFormClosed = errors.New("activity form is not open")
	// ErrFormBusy indicates a submit is already running.
	ErrFormBusy = errors.New("activity form is being submitted")
	// ErrUploadInProgress indicates another upload batch is still running.
	ErrUploadInProgress = errors.New("an upload is already in progress")
	// ErrInvalidMediaKind indicates a media kind other than image or video.
	ErrInvalidMediaKind = errors.New("media kind must be image or video")
	// ErrMediaIndexOutOfRange indicates removal of a media entry that does not exist.
	ErrMediaIndexOutOfRange = errors.New("media index out of range")
	// ErrFormInvalid indicates the form failed validation on submit.
	ErrFormInvalid = errors.New("activity form is invalid")
)

const (
	formModeCreate   = "create"
	formModeEdit     = "edit"
	cleanupTimeout   = 30 * time.Second
	inputDateLayout  = "2006-01-02"
	submitDateLayout = "2006-01-02T15:04:05.000Z"
)

// FormSubmitFunc persists a normalised activity input.
type FormSubmitFunc func(ctx context.Context, input activityapi.ActivityInput) error

// mediaEntry is one attached URL. Upload is set only for temporary uploads
// that can still be deleted from storage.
type mediaEntry struct {
	URL    string
	Upload *activityapi.MediaReference
}

func (e mediaEntry) temporary() bool {
	return e.Upload != nil && e.Upload.PublicID != ""
}

// ActivityFormConfig wires the form's collaborators. Ledger may be nil.
type ActivityFormConfig struct {
	Uploads   UploadService
	Ledger    repository.TempUploadRepository
	Notifier  NotificationService
	Validator *validator.Validate
	Locale    string
	SessionID string
}

// ActivityForm holds the create/edit form of one dashboard session together
// with the temporary uploads it owns.
type ActivityForm struct {
	mu         sync.Mutex
	cfg        ActivityFormConfig
	messages   uiMessages
	logger     zerolog.Logger
	sanitizer  *bluemonday.Policy
	open       bool
	generation uint64
	activityID string
	editing    bool
	fields     dto.FormFields
	media      map[string][]mediaEntry
	uploading  bool
	uploadKind string
	progress   int
	submitting bool
	errors     map[string]string
}

// NewActivityForm constructs a closed form.
func NewActivityForm(cfg ActivityFormConfig, logger zerolog.Logger) *ActivityForm {
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	return &ActivityForm{
		cfg:       cfg,
		messages:  messagesFor(cfg.Locale),
		logger:    logger.With().Str("component", "activity_form").Str("session_id", cfg.SessionID).Logger(),
		sanitizer: bluemonday.UGCPolicy(),
		fields:    emptyFormFields(),
		media:     emptyMedia(),
	}
}

func emptyFormFields() dto.FormFields {
	return dto.FormFields{Status: activityapi.StatusUpcoming}
}

func emptyMedia() map[string][]mediaEntry {
	return map[string][]mediaEntry{
		activityapi.ResourceImage: {},
		activityapi.ResourceVideo: {},
	}
}

// Open replaces the whole form state with activity's values, or with empty
// defaults when activity is nil. Temporary uploads of the previous state stop
// being tracked by the form and are left to the ledger sweeper.
func (f *ActivityForm) Open(activity *activityapi.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitting {
		return ErrFormBusy
	}

	f.generation++
	f.open = true
	f.errors = nil
	f.progress = 0
	f.media = emptyMedia()
	f.activityID = ""
	f.editing = activity != nil

	if activity == nil {
		f.fields = emptyFormFields()
		return nil
	}

	status := activity.Status
	if status == "" {
		status = activityapi.StatusUpcoming
	}
	f.activityID = activity.ID
	f.fields = dto.FormFields{
		Title:        activity.Title,
		Description:  activity.Description,
		Category:     activity.Category,
		Location:     activity.Location,
		Date:         FormatDateForInput(activity.Date),
		Participants: activity.Participants,
		Status:       status,
	}
	for _, url := range activity.Images {
		f.media[activityapi.ResourceImage] = append(f.media[activityapi.ResourceImage], mediaEntry{URL: url})
	}
	for _, url := range activity.Videos {
		f.media[activityapi.ResourceVideo] = append(f.media[activityapi.ResourceVideo], mediaEntry{URL: url})
	}
	return nil
}

// Hide closes the form view without touching tracked uploads.
func (f *ActivityForm) Hide() {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
}

// IsOpen reports whether the form is shown.
func (f *ActivityForm) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Editing returns the id of the edited activity and whether the form is in
// edit mode.
func (f *ActivityForm) Editing() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activityID, f.editing
}

// Update applies a partial field edit.
func (f *ActivityForm) Update(req dto.FormUpdateRequest) error {
	if err := f.cfg.Validator.Struct(req); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return ErrFormClosed
	}

	if req.Title != nil {
		f.fields.Title = *req.Title
	}
	if req.Description != nil {
		f.fields.Description = *req.Description
	}
	if req.Category != nil {
		f.fields.Category = *req.Category
	}
	if req.Location != nil {
		f.fields.Location = *req.Location
	}
	if req.Date != nil {
		f.fields.Date = *req.Date
	}
	if req.Participants != nil {
		f.fields.Participants = *req.Participants
	}
	if req.Status != nil {
		f.fields.Status = *req.Status
	}
	return nil
}

// Upload uploads files one at a time in the given order and appends each
// resulting URL to the kind's media list. The first failure stops the batch.
func (f *ActivityForm) Upload(ctx context.Context, kind string, files []UploadFile) error {
	if !validMediaKind(kind) {
		return ErrInvalidMediaKind
	}

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return ErrFormClosed
	}
	if f.uploading {
		f.mu.Unlock()
		return ErrUploadInProgress
	}
	f.uploading = true
	f.uploadKind = kind
	f.progress = 0
	generation := f.generation
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.uploading = false
		f.uploadKind = ""
		f.mu.Unlock()
	}()

	onProgress := func(percent int) {
		f.mu.Lock()
		f.progress = percent
		f.mu.Unlock()
	}

	for _, file := range files {
		ref, err := f.cfg.Uploads.Upload(ctx, file, onProgress)
		if err != nil {
			f.logger.Error().Err(err).Str("file", file.Name).Msg("upload failed")
			f.notifier().Error(fmt.Sprintf(f.messages.UploadFailed, userMessage(err, f.messages.UnknownUploadError)))
			return err
		}
		if ref.ResourceType == "" {
			ref.ResourceType = kind
		}

		f.track(ctx, ref)

		f.mu.Lock()
		stale := f.generation != generation
		if !stale {
			upload := ref
			f.media[kind] = append(f.media[kind], mediaEntry{URL: ref.URL, Upload: &upload})
		}
		f.mu.Unlock()

		if stale {
			f.logger.Warn().Str("public_id", ref.PublicID).Msg("form changed during upload, leaving file to the sweeper")
		}
	}
	return nil
}

// RemoveMedia drops the entry at index. Temporary uploads are also deleted
// from storage on a best-effort basis.
func (f *ActivityForm) RemoveMedia(ctx context.Context, kind string, index int) error {
	if !validMediaKind(kind) {
		return ErrInvalidMediaKind
	}

	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return ErrFormClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return ErrFormBusy
	}
	entries := f.media[kind]
	if index < 0 || index >= len(entries) {
		f.mu.Unlock()
		return ErrMediaIndexOutOfRange
	}
	removed := entries[index]
	f.media[kind] = append(append([]mediaEntry{}, entries[:index]...), entries[index+1:]...)
	f.mu.Unlock()

	if !removed.temporary() {
		f.notifier().Success(f.messages.FileRemoved, WithDuration(2*time.Second))
		return nil
	}

	f.notifier().Info(f.messages.DeletingFile, WithDuration(1500*time.Millisecond))
	if err := f.cfg.Uploads.DeleteTemp(ctx, removed.Upload.PublicID, removed.Upload.ResourceType); err != nil {
		f.logger.Warn().Err(err).Str("public_id", removed.Upload.PublicID).Msg("failed to delete temporary file")
		f.notifier().Warning(f.messages.FileDeleteFailed, WithDuration(3*time.Second))
		return nil
	}
	f.release(ctx, removed.Upload.PublicID)
	f.notifier().Success(f.messages.FileDeleted, WithDuration(2*time.Second))
	return nil
}

// Cancel deletes every temporary upload concurrently and closes the form
// regardless of the outcome. It is rejected while a submit is running.
func (f *ActivityForm) Cancel(ctx context.Context) error {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return ErrFormBusy
	}
	temps := f.takeTempsLocked()
	f.open = false
	f.errors = nil
	f.generation++
	f.mu.Unlock()

	if len(temps) == 0 {
		return nil
	}

	f.notifier().Info(f.messages.CleaningTemps, WithDuration(2*time.Second))
	if err := f.deleteAll(ctx, temps); err != nil {
		f.logger.Error().Err(err).Int("count", len(temps)).Msg("failed to clean up temporary uploads")
		f.notifier().Warning(f.messages.TempsCleanupFailed, WithDuration(3*time.Second))
		return nil
	}
	f.notifier().Success(f.messages.TempsCleaned, WithDuration(2*time.Second))
	return nil
}

// Submit normalises and validates the form, then hands it to onSubmit. On
// success temporary uploads become permanent. The form stays open; closing
// it is the caller's decision.
func (f *ActivityForm) Submit(ctx context.Context, onSubmit FormSubmitFunc) error {
	f.mu.Lock()
	if !f.open {
		f.mu.Unlock()
		return ErrFormClosed
	}
	if f.submitting {
		f.mu.Unlock()
		return ErrFormBusy
	}
	if f.uploading {
		f.mu.Unlock()
		return ErrUploadInProgress
	}

	input, fieldErrors := f.normalizeLocked()
	if len(fieldErrors) == 0 {
		if err := f.cfg.Validator.Struct(input); err != nil {
			fieldErrors = validationMessages(err)
		}
	}
	if len(fieldErrors) > 0 {
		f.errors = fieldErrors
		f.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFormInvalid, joinFieldErrors(fieldErrors))
	}
	f.errors = nil
	f.submitting = true
	generation := f.generation
	var submitted []string
	for _, entries := range f.media {
		for _, entry := range entries {
			if entry.temporary() {
				submitted = append(submitted, entry.Upload.PublicID)
			}
		}
	}
	f.mu.Unlock()

	err := onSubmit(ctx, input)

	f.mu.Lock()
	f.submitting = false
	if err != nil {
		f.mu.Unlock()
		return err
	}
	// The saved activity owns every upload it was submitted with, even if the
	// form was reopened meanwhile.
	if f.generation == generation {
		for kind, entries := range f.media {
			for i := range entries {
				entries[i].Upload = nil
			}
			f.media[kind] = entries
		}
	}
	f.mu.Unlock()

	f.release(ctx, submitted...)
	return nil
}

// Dispose is called when the owning session goes away. Remaining temporary
// uploads are deleted in the background and failures are only logged. Uploads
// held by a running submit are left to it, or to the ledger sweeper if the
// save fails.
func (f *ActivityForm) Dispose() {
	f.mu.Lock()
	var temps []activityapi.MediaReference
	if f.submitting {
		f.media = emptyMedia()
	} else {
		temps = f.takeTempsLocked()
	}
	f.open = false
	f.generation++
	f.mu.Unlock()

	if len(temps) == 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()
		if err := f.deleteAll(ctx, temps); err != nil {
			f.logger.Warn().Err(err).Int("count", len(temps)).Msg("background cleanup of temporary uploads incomplete")
		}
	}()
}

// View returns a snapshot for rendering.
func (f *ActivityForm) View() dto.FormView {
	f.mu.Lock()
	defer f.mu.Unlock()

	mode := formModeCreate
	if f.editing {
		mode = formModeEdit
	}
	view := dto.FormView{
		Open:           f.open,
		Mode:           mode,
		ActivityID:     f.activityID,
		Fields:         f.fields,
		Images:         mediaViews(f.media[activityapi.ResourceImage]),
		Videos:         mediaViews(f.media[activityapi.ResourceVideo]),
		Uploading:      f.uploading,
		UploadKind:     f.uploadKind,
		UploadProgress: f.progress,
		Submitting:     f.submitting,
		MaxUploadBytes: f.cfg.Uploads.MaxBytes(),
	}
	if len(f.errors) > 0 {
		view.Errors = make(map[string]string, len(f.errors))
		for k, v := range f.errors {
			view.Errors[k] = v
		}
	}
	return view
}

// TempCount returns the number of temporary uploads owned by the form.
func (f *ActivityForm) TempCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, entries := range f.media {
		for _, entry := range entries {
			if entry.temporary() {
				count++
			}
		}
	}
	return count
}

func (f *ActivityForm) normalizeLocked() (activityapi.ActivityInput, map[string]string) {
	fieldErrors := map[string]string{}

	date := ""
	if raw := strings.TrimSpace(f.fields.Date); raw != "" {
		parsed, err := time.Parse(inputDateLayout, raw)
		if err != nil {
			fieldErrors["date"] = "must be a date in YYYY-MM-DD format"
		} else {
			date = parsed.UTC().Format(submitDateLayout)
		}
	}

	input := activityapi.ActivityInput{
		Title:        strings.TrimSpace(f.fields.Title),
		Description:  strings.TrimSpace(f.sanitizer.Sanitize(f.fields.Description)),
		Category:     strings.TrimSpace(f.fields.Category),
		Location:     strings.TrimSpace(f.fields.Location),
		Date:         date,
		Participants: f.fields.Participants,
		Status:       f.fields.Status,
		Images:       mediaURLs(f.media[activityapi.ResourceImage]),
		Videos:       mediaURLs(f.media[activityapi.ResourceVideo]),
	}
	return input, fieldErrors
}

func (f *ActivityForm) takeTempsLocked() []activityapi.MediaReference {
	var temps []activityapi.MediaReference
	for kind, entries := range f.media {
		for _, entry := range entries {
			if entry.temporary() {
				temps = append(temps, *entry.Upload)
			}
		}
		f.media[kind] = nil
	}
	f.media = emptyMedia()
	return temps
}

func (f *ActivityForm) deleteAll(ctx context.Context, temps []activityapi.MediaReference) error {
	// Every delete is attempted; a failure does not cancel the others.
	var group errgroup.Group
	failures := make([]error, len(temps))
	for i, temp := range temps {
		group.Go(func() error {
			if err := f.cfg.Uploads.DeleteTemp(ctx, temp.PublicID, temp.ResourceType); err != nil {
				failures[i] = fmt.Errorf("delete %s: %w", temp.PublicID, err)
				return nil
			}
			f.release(ctx, temp.PublicID)
			return nil
		})
	}
	_ = group.Wait()
	return errors.Join(failures...)
}

func (f *ActivityForm) track(ctx context.Context, ref activityapi.MediaReference) {
	if f.cfg.Ledger == nil || ref.PublicID == "" {
		return
	}
	record := &models.TempUpload{
		PublicID:     ref.PublicID,
		ResourceType: ref.ResourceType,
		URL:          ref.URL,
		SessionID:    f.cfg.SessionID,
		Metadata: datatypes.JSONMap{
			"name": ref.Name,
			"size": ref.Size,
		},
	}
	if err := f.cfg.Ledger.Track(ctx, record); err != nil {
		f.logger.Warn().Err(err).Str("public_id", ref.PublicID).Msg("failed to record temporary upload")
	}
}

func (f *ActivityForm) release(ctx context.Context, publicIDs ...string) {
	if f.cfg.Ledger == nil || len(publicIDs) == 0 {
		return
	}
	if err := f.cfg.Ledger.Release(ctx, publicIDs...); err != nil {
		f.logger.Warn().Err(err).Strs("public_ids", publicIDs).Msg("failed to release temporary uploads")
	}
}

func (f *ActivityForm) notifier() NotificationService {
	if f.cfg.Notifier == nil {
		return discardNotifier
	}
	return f.cfg.Notifier
}

// FormatDateForInput renders an ISO timestamp as YYYY-MM-DD.
func FormatDateForInput(value string) string {
	parsed, ok := parseActivityDate(strings.TrimSpace(value))
	if !ok {
		return ""
	}
	return parsed.Format(inputDateLayout)
}

func validMediaKind(kind string) bool {
	return kind == activityapi.ResourceImage || kind == activityapi.ResourceVideo
}

func mediaURLs(entries []mediaEntry) []string {
	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		if strings.TrimSpace(entry.URL) != "" {
			urls = append(urls, entry.URL)
		}
	}
	return urls
}

func mediaViews(entries []mediaEntry) []dto.MediaEntryView {
	views := make([]dto.MediaEntryView, 0, len(entries))
	for _, entry := range entries {
		view := dto.MediaEntryView{URL: entry.URL, Temporary: entry.temporary()}
		if entry.Upload != nil {
			view.Name = entry.Upload.Name
			view.Size = entry.Upload.Size
		}
		views = append(views, view)
	}
	return views
}

func validationMessages(err error) map[string]string {
	messages := map[string]string{}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		messages["form"] = err.Error()
		return messages
	}
	for _, fieldErr := range validationErrors {
		name := lowerFirst(fieldErr.Field())
		switch fieldErr.Tag() {
		case "required":
			messages[name] = "is required"
		case "max":
			messages[name] = "must be at most " + fieldErr.Param() + " characters"
		case "gte":
			messages[name] = "must be at least " + fieldErr.Param()
		case "oneof":
			messages[name] = "must be one of " + fieldErr.Param()
		default:
			messages[name] = "is invalid"
		}
	}
	return messages
}

func joinFieldErrors(fieldErrors map[string]string) string {
	parts := make([]string, 0, len(fieldErrors))
	for _, field := range []string{"title", "description", "category", "location", "date", "participants", "status", "form"} {
		if msg, ok := fieldErrors[field]; ok {
			parts = append(parts, field+" "+msg)
		}
	}
	return strings.Join(parts, "; ")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
