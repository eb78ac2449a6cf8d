package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/observability"
	"github.com/noah-isme/volunteer-hub-web/internal/repository"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

var (
	// ErrSessionNotFound indicates an unknown or evicted dashboard session.
	ErrSessionNotFound = errors.New("dashboard session not found")
	// ErrDeleteInProgress indicates a delete for the same activity is running.
	ErrDeleteInProgress = errors.New("activity delete already in progress")
	// ErrActivityNotFound indicates the activity is neither listed nor fetchable.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrMissingActivityID indicates an update for an activity without id.
	ErrMissingActivityID = errors.New("selected activity has no id")
)

const defaultRequestTimeout = 30 * time.Second

// ActivitiesAPI is the subset of the activities API used by the dashboard.
type ActivitiesAPI interface {
	ListActivities(ctx context.Context, query activityapi.ActivityQuery) (activityapi.ActivityList, error)
	FilterOptions(ctx context.Context) (activityapi.FilterOptions, error)
	GetActivity(ctx context.Context, id string) (activityapi.Activity, error)
	CreateActivity(ctx context.Context, input activityapi.ActivityInput) (activityapi.SaveResult, error)
	UpdateActivity(ctx context.Context, id string, input activityapi.ActivityInput) (activityapi.SaveResult, error)
	DeleteActivity(ctx context.Context, id string) error
	Stats(ctx context.Context) (activityapi.ActivityStats, error)
}

// DashboardSessionConfig wires a dashboard session. Ledger and Events may
// be nil.
type DashboardSessionConfig struct {
	API            ActivitiesAPI
	Uploads        UploadService
	Ledger         repository.TempUploadRepository
	Events         ActivityChangePublisher
	Validator      *validator.Validate
	Locale         string
	KeywordDelay   time.Duration
	RequestTimeout time.Duration
}

// DashboardSession is the server-side state of one unlocked dashboard: the
// activity list with its filters, the form and the notification slot.
type DashboardSession struct {
	id       string
	cfg      DashboardSessionConfig
	messages uiMessages
	logger   zerolog.Logger

	filter   *FilterState
	keyword  *Debouncer
	sequence RequestSequence
	tracker  *DeleteTracker
	form     *ActivityForm
	notifier NotificationService

	baseCtx context.Context
	cancel  context.CancelFunc

	mu            sync.Mutex
	activities    []activityapi.Activity
	pagination    *activityapi.PaginationInfo
	loading       bool
	listError     string
	options       *activityapi.FilterOptions
	optionsLoaded bool
	selected      *activityapi.Activity
	viewing       *activityapi.Activity
	lastSeen      time.Time
}

// NewDashboardSession builds a session. Mount must be called before use.
func NewDashboardSession(id string, cfg DashboardSessionConfig, logger zerolog.Logger) *DashboardSession {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New()
	}
	cfg.Locale = NormalizeLocale(cfg.Locale)

	sessionLogger := logger.With().Str("component", "dashboard_session").Str("session_id", id).Logger()
	notifier := NewNotificationService(logger)
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &DashboardSession{
		id:       id,
		cfg:      cfg,
		messages: messagesFor(cfg.Locale),
		logger:   sessionLogger,
		filter:   NewFilterState(),
		tracker:  NewDeleteTracker(),
		notifier: notifier,
		baseCtx:  baseCtx,
		cancel:   cancel,
		lastSeen: time.Now(),
	}
	s.form = NewActivityForm(ActivityFormConfig{
		Uploads:   cfg.Uploads,
		Ledger:    cfg.Ledger,
		Notifier:  notifier,
		Validator: cfg.Validator,
		Locale:    cfg.Locale,
		SessionID: id,
	}, logger)
	s.keyword = NewDebouncer(cfg.KeywordDelay, func(value string) {
		if value == s.filter.Query().Keyword {
			return
		}
		if err := s.filter.Set(FilterKeyword, value); err != nil {
			s.logger.Warn().Err(err).Msg("failed to apply keyword")
		}
	})
	s.filter.OnChange(func(activityapi.ActivityQuery) {
		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.RequestTimeout)
		defer cancel()
		_ = s.load(ctx)
	})

	return s
}

// ID returns the session identifier.
func (s *DashboardSession) ID() string {
	return s.id
}

// Notifier returns the session's notification channel.
func (s *DashboardSession) Notifier() NotificationService {
	return s.notifier
}

// Form returns the session's activity form.
func (s *DashboardSession) Form() *ActivityForm {
	return s.form
}

// Mount loads the first page and the filter options.
func (s *DashboardSession) Mount(ctx context.Context) {
	_ = s.load(ctx)
	s.loadFilterOptions(ctx)
}

// Touch records activity for idle eviction.
func (s *DashboardSession) Touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen returns the time of the last request.
func (s *DashboardSession) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Refresh reloads the current page with progress notifications.
func (s *DashboardSession) Refresh(ctx context.Context) error {
	s.notifier.Info(s.messages.Refreshing, WithDuration(1500*time.Millisecond))
	if err := s.load(ctx); err != nil {
		return err
	}
	s.notifier.Success(s.messages.Refreshed, WithDuration(2*time.Second))
	return nil
}

// UpdateFilters applies filter changes and reloads page 1.
func (s *DashboardSession) UpdateFilters(changes map[string]string) error {
	if keyword, ok := changes[FilterKeyword]; ok {
		s.keyword.Reset(keyword)
	}
	return s.filter.Update(changes)
}

// SetKeyword records live keyword input. The filter is updated after the
// input has been quiet for the debounce delay.
func (s *DashboardSession) SetKeyword(value string) {
	s.keyword.Push(value)
}

// ResetFilters restores the default filters.
func (s *DashboardSession) ResetFilters() {
	s.keyword.Reset("")
	s.filter.Reset()
}

// SetPage moves to page. Requests for the current page are ignored.
func (s *DashboardSession) SetPage(page int) error {
	s.mu.Lock()
	info := s.pagination
	s.mu.Unlock()

	if info != nil {
		if _, ok := PageChangeTarget(info, page); !ok {
			if page == info.CurrentPage {
				return nil
			}
			return ErrInvalidFilter
		}
	}
	return s.filter.SetPage(page)
}

// Delete removes an activity. Deletes of different activities may overlap;
// a second delete of the same activity is rejected.
func (s *DashboardSession) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrActivityNotFound
	}
	if !s.tracker.Begin(id) {
		s.notifier.Warning(s.messages.DeleteInProgress, WithDuration(2*time.Second))
		return ErrDeleteInProgress
	}
	defer s.tracker.End(id)

	s.notifier.Info(s.messages.DeletingActivity, WithDuration(2*time.Second))
	if err := s.cfg.API.DeleteActivity(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("activity_id", id).Msg("failed to delete activity")
		s.notifier.Error(s.messages.ActivityDeleteFailed)
		return err
	}

	s.notifier.Success(s.messages.ActivityDeleted)
	s.publish(ctx, ActionDeleted, id)
	_ = s.load(ctx)
	return nil
}

// Add opens an empty form.
func (s *DashboardSession) Add() error {
	if err := s.form.Open(nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	return nil
}

// Edit opens the form for the activity with id.
func (s *DashboardSession) Edit(ctx context.Context, id string) error {
	activity, err := s.findActivity(ctx, id)
	if err != nil {
		return err
	}
	if err := s.form.Open(&activity); err != nil {
		return err
	}
	s.mu.Lock()
	s.selected = &activity
	s.mu.Unlock()
	return nil
}

// Save submits the form. On success the list is reloaded and the form is
// closed; on failure the form stays open.
func (s *DashboardSession) Save(ctx context.Context) error {
	err := s.form.Submit(ctx, s.persist)
	if err != nil {
		if errors.Is(err, ErrFormInvalid) {
			s.notifier.Warning(s.messages.FormInvalid)
		}
		return err
	}

	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.form.Hide()
	return nil
}

func (s *DashboardSession) persist(ctx context.Context, input activityapi.ActivityInput) error {
	s.mu.Lock()
	selected := s.selected
	s.mu.Unlock()

	var (
		result  activityapi.SaveResult
		err     error
		action  string
		message string
	)
	if selected != nil {
		if strings.TrimSpace(selected.ID) == "" {
			s.logger.Error().Msg("selected activity has no id")
			s.notifier.Error(s.messages.MissingActivityID)
			return ErrMissingActivityID
		}
		s.notifier.Info(s.messages.Updating, WithDuration(2*time.Second))
		result, err = s.cfg.API.UpdateActivity(ctx, selected.ID, input)
		action, message = ActionUpdated, s.messages.Updated
	} else {
		s.notifier.Info(s.messages.Creating, WithDuration(2*time.Second))
		result, err = s.cfg.API.CreateActivity(ctx, input)
		action, message = ActionCreated, s.messages.Created
	}
	if err != nil {
		s.logger.Error().Err(err).Str("action", action).Msg("failed to save activity")
		s.notifier.Error(s.messages.SaveFailed)
		return err
	}

	id := result.Activity.ID
	if id == "" && selected != nil {
		id = selected.ID
	}
	s.publish(ctx, action, id)
	_ = s.load(ctx)

	if strings.TrimSpace(result.Message) != "" {
		message = result.Message
	}
	s.notifier.Success(message)
	return nil
}

// CancelForm discards the form and its temporary uploads.
func (s *DashboardSession) CancelForm(ctx context.Context) error {
	if err := s.form.Cancel(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	return nil
}

// ViewActivity shows the read-only detail of an activity.
func (s *DashboardSession) ViewActivity(ctx context.Context, id string) (dto.ActivityDetail, error) {
	activity, err := s.findActivity(ctx, id)
	if err != nil {
		return dto.ActivityDetail{}, err
	}
	s.mu.Lock()
	s.viewing = &activity
	s.mu.Unlock()
	return BuildActivityDetail(s.cfg.Locale, activity), nil
}

// CloseView hides the detail view.
func (s *DashboardSession) CloseView() {
	s.mu.Lock()
	s.viewing = nil
	s.mu.Unlock()
}

// Overview returns aggregate counts for the dashboard home.
func (s *DashboardSession) Overview(ctx context.Context) (dto.OverviewResponse, error) {
	stats, err := s.cfg.API.Stats(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load activity stats")
		return dto.OverviewResponse{}, err
	}
	return dto.OverviewResponse{Stats: stats}, nil
}

// View returns the state of the activities page.
func (s *DashboardSession) View() dto.ActivitiesView {
	query := s.filter.Query()
	hasActive := s.filter.HasActiveFilters()

	s.mu.Lock()
	defer s.mu.Unlock()

	view := dto.ActivitiesView{
		Rows:       BuildActivityRows(s.cfg.Locale, s.activities, s.tracker),
		Pagination: BuildPaginationControl(s.pagination),
		Filters: dto.FilterStateResponse{
			Query:            query,
			KeywordInput:     s.keyword.Pending(),
			HasActiveFilters: hasActive,
			Options:          s.options,
		},
		Loading:  s.loading,
		Error:    s.listError,
		FormOpen: s.form.IsOpen(),
	}
	if s.viewing != nil {
		detail := BuildActivityDetail(s.cfg.Locale, *s.viewing)
		view.Viewing = &detail
	}
	return view
}

// Close releases the session's resources. Remaining temporary uploads are
// deleted in the background.
func (s *DashboardSession) Close() {
	s.keyword.Stop()
	s.cancel()
	s.form.Dispose()
	s.notifier.Close()
}

// load fetches the list for the current filters. Results of superseded
// requests are discarded.
func (s *DashboardSession) load(ctx context.Context) error {
	token := s.sequence.Next()
	query := s.filter.Query()

	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	list, err := s.cfg.API.ListActivities(ctx, query)
	if !s.sequence.IsCurrent(token) {
		s.logger.Debug().Uint64("token", token).Msg("discarding superseded activity list")
		return err
	}

	s.mu.Lock()
	s.loading = false
	if err != nil {
		s.listError = s.messages.ListFailed
		s.mu.Unlock()
		s.logger.Error().Err(err).Msg("failed to fetch activities")
		s.notifier.Error(s.messages.ListFailed)
		return err
	}
	s.listError = ""
	s.activities = list.Activities
	s.pagination = list.Pagination
	s.mu.Unlock()
	return nil
}

func (s *DashboardSession) loadFilterOptions(ctx context.Context) {
	s.mu.Lock()
	if s.optionsLoaded {
		s.mu.Unlock()
		return
	}
	s.optionsLoaded = true
	s.mu.Unlock()

	options, err := s.cfg.API.FilterOptions(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to fetch filter options")
		return
	}
	s.mu.Lock()
	s.options = &options
	s.mu.Unlock()
}

func (s *DashboardSession) findActivity(ctx context.Context, id string) (activityapi.Activity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return activityapi.Activity{}, ErrActivityNotFound
	}

	s.mu.Lock()
	for _, activity := range s.activities {
		if activity.ID == id {
			s.mu.Unlock()
			return activity, nil
		}
	}
	s.mu.Unlock()

	activity, err := s.cfg.API.GetActivity(ctx, id)
	if err != nil {
		if activityapi.StatusCode(err) == 404 {
			return activityapi.Activity{}, ErrActivityNotFound
		}
		return activityapi.Activity{}, err
	}
	return activity, nil
}

func (s *DashboardSession) publish(ctx context.Context, action, id string) {
	if s.cfg.Events == nil {
		return
	}
	if err := s.cfg.Events.Publish(ctx, action, id); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to publish activity change")
	}
}

// DashboardSessionStore keeps dashboard sessions in memory and evicts idle
// ones.
type DashboardSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*DashboardSession
	cfg      DashboardSessionConfig
	ttl      time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewDashboardSessionStore constructs a session store.
func NewDashboardSessionStore(cfg DashboardSessionConfig, ttl time.Duration, logger zerolog.Logger) *DashboardSessionStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &DashboardSessionStore{
		sessions: make(map[string]*DashboardSession),
		cfg:      cfg,
		ttl:      ttl,
		logger:   logger.With().Str("component", "dashboard_session_store").Logger(),
		now:      time.Now,
	}
}

// Create starts and mounts a new session.
func (s *DashboardSessionStore) Create(ctx context.Context) *DashboardSession {
	session := NewDashboardSession(uuid.NewString(), s.cfg, s.logger)
	session.Touch(s.now())

	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()

	observability.DashboardSessionsActive().Set(float64(count))
	session.Mount(ctx)
	return session
}

// Get returns the session with id and records the access.
func (s *DashboardSessionStore) Get(id string) (*DashboardSession, error) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	session.Touch(s.now())
	return session, nil
}

// Remove closes and forgets the session with id.
func (s *DashboardSessionStore) Remove(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	if ok {
		session.Close()
		observability.DashboardSessionsActive().Set(float64(count))
	}
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (s *DashboardSessionStore) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*DashboardSession
	for id, session := range s.sessions {
		if session.LastSeen().Before(cutoff) {
			expired = append(expired, session)
			delete(s.sessions, id)
		}
	}
	count := len(s.sessions)
	s.mu.Unlock()

	for _, session := range expired {
		session.Close()
	}
	if len(expired) > 0 {
		observability.DashboardSessionsActive().Set(float64(count))
		s.logger.Info().Int("evicted", len(expired)).Msg("evicted idle dashboard sessions")
	}
	return len(expired)
}

// Run sweeps idle sessions until ctx is cancelled.
func (s *DashboardSessionStore) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CloseAll closes every session.
func (s *DashboardSessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*DashboardSession)
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
	observability.DashboardSessionsActive().Set(0)
}
