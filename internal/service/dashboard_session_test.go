package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

type activitiesAPIStub struct {
	mu           sync.Mutex
	listFn       func(activityapi.ActivityQuery) (activityapi.ActivityList, error)
	listCalls    []activityapi.ActivityQuery
	optionsErr   error
	optionsCalls int
	byID         map[string]activityapi.Activity
	getCalls     int
	created      []activityapi.ActivityInput
	updated      map[string]activityapi.ActivityInput
	saveErr      error
	saveMessage  string
	deleted      []string
	deleteErr    error
	deleteGate   chan struct{}
	stats        activityapi.ActivityStats
}

func newActivitiesAPIStub() *activitiesAPIStub {
	return &activitiesAPIStub{
		byID:    make(map[string]activityapi.Activity),
		updated: make(map[string]activityapi.ActivityInput),
	}
}

func listedActivities(page int) activityapi.ActivityList {
	return activityapi.ActivityList{
		Activities: []activityapi.Activity{
			{ID: "act-1", Title: "Beach cleanup", Date: "2025-06-01T00:00:00.000Z", Status: activityapi.StatusUpcoming},
			{ID: "act-2", Title: "Food bank", Date: "2025-05-20T00:00:00.000Z", Status: activityapi.StatusCompleted},
		},
		Pagination: &activityapi.PaginationInfo{
			CurrentPage:  page,
			TotalPages:   3,
			TotalItems:   25,
			ItemsPerPage: 10,
			HasNextPage:  page < 3,
			HasPrevPage:  page > 1,
			StartIndex:   (page-1)*10 + 1,
			EndIndex:     minInt(page*10, 25),
		},
	}
}

func (a *activitiesAPIStub) ListActivities(ctx context.Context, query activityapi.ActivityQuery) (activityapi.ActivityList, error) {
	a.mu.Lock()
	a.listCalls = append(a.listCalls, query)
	fn := a.listFn
	a.mu.Unlock()

	if fn != nil {
		return fn(query)
	}
	return listedActivities(query.Page), nil
}

func (a *activitiesAPIStub) FilterOptions(ctx context.Context) (activityapi.FilterOptions, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.optionsCalls++
	if a.optionsErr != nil {
		return activityapi.FilterOptions{}, a.optionsErr
	}
	return activityapi.FilterOptions{
		Categories: []activityapi.FilterOption{{Value: "environment", Label: "Environment", Count: 4}},
	}, nil
}

func (a *activitiesAPIStub) GetActivity(ctx context.Context, id string) (activityapi.Activity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.getCalls++
	activity, ok := a.byID[id]
	if !ok {
		return activityapi.Activity{}, &activityapi.HTTPError{Status: 404, Message: "Activity not found"}
	}
	return activity, nil
}

func (a *activitiesAPIStub) CreateActivity(ctx context.Context, input activityapi.ActivityInput) (activityapi.SaveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return activityapi.SaveResult{}, a.saveErr
	}
	a.created = append(a.created, input)
	return activityapi.SaveResult{Activity: activityapi.Activity{ID: "act-new", Title: input.Title}, Message: a.saveMessage}, nil
}

func (a *activitiesAPIStub) UpdateActivity(ctx context.Context, id string, input activityapi.ActivityInput) (activityapi.SaveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.saveErr != nil {
		return activityapi.SaveResult{}, a.saveErr
	}
	a.updated[id] = input
	return activityapi.SaveResult{Activity: activityapi.Activity{ID: id, Title: input.Title}, Message: a.saveMessage}, nil
}

func (a *activitiesAPIStub) DeleteActivity(ctx context.Context, id string) error {
	a.mu.Lock()
	gate := a.deleteGate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *activitiesAPIStub) Stats(ctx context.Context) (activityapi.ActivityStats, error) {
	return a.stats, nil
}

func (a *activitiesAPIStub) calls() []activityapi.ActivityQuery {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activityapi.ActivityQuery(nil), a.listCalls...)
}

func (a *activitiesAPIStub) lastQuery() activityapi.ActivityQuery {
	calls := a.calls()
	if len(calls) == 0 {
		return activityapi.ActivityQuery{}
	}
	return calls[len(calls)-1]
}

type sessionFixture struct {
	session *DashboardSession
	api     *activitiesAPIStub
	events  *eventRecorder
}

func newSessionFixture(t *testing.T, api *activitiesAPIStub) sessionFixture {
	t.Helper()
	uploadCfg := DefaultUploadConfig()
	uploadCfg.Sleep = func(context.Context, time.Duration) error { return nil }

	bus := NewActivityChangeBus(nil, "", nil, testLogger())
	events := &eventRecorder{}
	bus.Handle(events.record)

	session := NewDashboardSession("session-1", DashboardSessionConfig{
		API:          api,
		Uploads:      NewUploadService(&mediaAPIStub{}, uploadCfg, testLogger()),
		Ledger:       newLedgerStub(),
		Events:       bus,
		Locale:       LocaleVietnamese,
		KeywordDelay: 10 * time.Millisecond,
	}, testLogger())
	t.Cleanup(session.Close)

	session.Mount(context.Background())
	return sessionFixture{session: session, api: api, events: events}
}

func fillForm(t *testing.T, form *ActivityForm) {
	t.Helper()
	title := "Tree planting"
	description := "Plant trees in the park"
	category := "environment"
	location := "Hue"
	date := "2025-07-01"
	require.NoError(t, form.Update(dto.FormUpdateRequest{
		Title:       &title,
		Description: &description,
		Category:    &category,
		Location:    &location,
		Date:        &date,
	}))
}

func TestDashboardSessionMountLoadsListAndOptions(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())

	view := fx.session.View()
	require.Len(t, view.Rows, 2)
	require.Equal(t, "1/6/2025", view.Rows[0].DateLabel)
	require.True(t, view.Pagination.Visible)
	require.Equal(t, 3, view.Pagination.TotalPages)
	require.NotNil(t, view.Filters.Options)
	require.False(t, view.Loading)
	require.Empty(t, view.Error)

	fx.session.Mount(context.Background())
	fx.api.mu.Lock()
	require.Equal(t, 1, fx.api.optionsCalls, "filter options are fetched once")
	fx.api.mu.Unlock()
}

func TestDashboardSessionFilterOptionsFailureIsSilent(t *testing.T) {
	api := newActivitiesAPIStub()
	api.optionsErr = errors.New("boom")
	fx := newSessionFixture(t, api)

	require.Nil(t, fx.session.View().Filters.Options)
	require.Nil(t, fx.session.Notifier().Current())
}

func TestDashboardSessionFilterChangeRefetchesFirstPage(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	require.NoError(t, fx.session.SetPage(2))
	require.Equal(t, 2, fx.api.lastQuery().Page)

	require.NoError(t, fx.session.UpdateFilters(map[string]string{FilterStatus: activityapi.StatusOngoing}))

	query := fx.api.lastQuery()
	require.Equal(t, 1, query.Page)
	require.Equal(t, activityapi.StatusOngoing, query.Status)
	require.True(t, fx.session.View().Filters.HasActiveFilters)
}

func TestDashboardSessionDiscardsSupersededResults(t *testing.T) {
	api := newActivitiesAPIStub()
	gate := make(chan struct{})
	api.listFn = func(q activityapi.ActivityQuery) (activityapi.ActivityList, error) {
		switch q.Status {
		case activityapi.StatusOngoing:
			<-gate
			return activityapi.ActivityList{Activities: []activityapi.Activity{{ID: "stale"}}}, nil
		case activityapi.StatusCompleted:
			return activityapi.ActivityList{Activities: []activityapi.Activity{{ID: "fresh"}}}, nil
		default:
			return listedActivities(q.Page), nil
		}
	}
	fx := newSessionFixture(t, api)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fx.session.UpdateFilters(map[string]string{FilterStatus: activityapi.StatusOngoing})
	}()
	require.Eventually(t, func() bool { return len(api.calls()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, fx.session.UpdateFilters(map[string]string{FilterStatus: activityapi.StatusCompleted}))
	close(gate)
	<-done

	rows := fx.session.View().Rows
	require.Len(t, rows, 1)
	require.Equal(t, "fresh", rows[0].ID)
}

func TestDashboardSessionKeywordIsDebounced(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	before := len(fx.api.calls())

	fx.session.SetKeyword("b")
	fx.session.SetKeyword("be")
	fx.session.SetKeyword("beach")
	require.Equal(t, "beach", fx.session.View().Filters.KeywordInput)

	require.Eventually(t, func() bool {
		return fx.api.lastQuery().Keyword == "beach"
	}, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, before+1, len(fx.api.calls()))
}

func TestDashboardSessionRevertedKeywordKeepsPage(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	require.NoError(t, fx.session.SetPage(2))
	before := len(fx.api.calls())

	fx.session.SetKeyword("be")
	fx.session.SetKeyword("")

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, before, len(fx.api.calls()))
	require.Equal(t, 2, fx.session.View().Pagination.CurrentPage)
}

func TestDashboardSessionSetPageIgnoresCurrentPage(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	before := len(fx.api.calls())

	require.NoError(t, fx.session.SetPage(1))
	require.Equal(t, before, len(fx.api.calls()))
	require.ErrorIs(t, fx.session.SetPage(9), ErrInvalidFilter)

	require.NoError(t, fx.session.SetPage(3))
	require.Equal(t, 3, fx.api.lastQuery().Page)
}

func TestDashboardSessionRefresh(t *testing.T) {
	api := newActivitiesAPIStub()
	fx := newSessionFixture(t, api)

	require.NoError(t, fx.session.Refresh(context.Background()))
	current := fx.session.Notifier().Current()
	require.NotNil(t, current)
	require.Equal(t, NotificationSuccess, current.Kind)
	require.Equal(t, messagesFor(LocaleVietnamese).Refreshed, current.Message)

	api.mu.Lock()
	api.listFn = func(activityapi.ActivityQuery) (activityapi.ActivityList, error) {
		return activityapi.ActivityList{}, &activityapi.NetworkError{Op: "GET /activities", Err: errors.New("refused")}
	}
	api.mu.Unlock()

	require.Error(t, fx.session.Refresh(context.Background()))
	view := fx.session.View()
	require.Equal(t, messagesFor(LocaleVietnamese).ListFailed, view.Error)
	require.Len(t, view.Rows, 2, "previous rows stay visible")
	require.Equal(t, NotificationError, fx.session.Notifier().Current().Kind)
}

func TestDashboardSessionDeleteRefetchesAndPublishes(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	before := len(fx.api.calls())

	require.NoError(t, fx.session.Delete(context.Background(), "act-1"))

	require.Equal(t, []string{"act-1"}, fx.api.deleted)
	require.Equal(t, before+1, len(fx.api.calls()))
	require.Equal(t, messagesFor(LocaleVietnamese).ActivityDeleted, fx.session.Notifier().Current().Message)
	events := fx.events.snapshot()
	require.Len(t, events, 1)
	require.Equal(t, ActionDeleted, events[0].Action)
}

func TestDashboardSessionRejectsDuplicateDelete(t *testing.T) {
	api := newActivitiesAPIStub()
	api.deleteGate = make(chan struct{})
	fx := newSessionFixture(t, api)

	done := make(chan error, 1)
	go func() { done <- fx.session.Delete(context.Background(), "act-1") }()
	require.Eventually(t, func() bool { return fx.session.View().Rows[0].Deleting }, time.Second, 5*time.Millisecond)

	require.ErrorIs(t, fx.session.Delete(context.Background(), "act-1"), ErrDeleteInProgress)

	close(api.deleteGate)
	require.NoError(t, <-done)
	require.False(t, fx.session.View().Rows[0].Deleting)
}

func TestDashboardSessionDeleteFailure(t *testing.T) {
	api := newActivitiesAPIStub()
	api.deleteErr = &activityapi.HTTPError{Status: 500, Message: "boom"}
	fx := newSessionFixture(t, api)

	require.Error(t, fx.session.Delete(context.Background(), "act-1"))
	current := fx.session.Notifier().Current()
	require.Equal(t, NotificationError, current.Kind)
	require.Equal(t, messagesFor(LocaleVietnamese).ActivityDeleteFailed, current.Message)
	require.Empty(t, fx.events.snapshot())
}

func TestDashboardSessionSaveCreates(t *testing.T) {
	api := newActivitiesAPIStub()
	api.saveMessage = "Activity created successfully"
	fx := newSessionFixture(t, api)

	require.NoError(t, fx.session.Add())
	fillForm(t, fx.session.Form())
	require.NoError(t, fx.session.Save(context.Background()))

	require.Len(t, api.created, 1)
	require.Equal(t, "Tree planting", api.created[0].Title)
	require.Equal(t, "2025-07-01T00:00:00.000Z", api.created[0].Date)
	require.False(t, fx.session.Form().IsOpen())
	require.Equal(t, "Activity created successfully", fx.session.Notifier().Current().Message)
	require.Equal(t, ActionCreated, fx.events.snapshot()[0].Action)
}

func TestDashboardSessionSaveUpdatesSelected(t *testing.T) {
	api := newActivitiesAPIStub()
	fx := newSessionFixture(t, api)

	require.NoError(t, fx.session.Edit(context.Background(), "act-1"))
	fillForm(t, fx.session.Form())
	require.NoError(t, fx.session.Save(context.Background()))

	require.Contains(t, api.updated, "act-1")
	require.Empty(t, api.created)
	require.Equal(t, messagesFor(LocaleVietnamese).Updated, fx.session.Notifier().Current().Message)
}

func TestDashboardSessionSaveFailureKeepsFormOpen(t *testing.T) {
	api := newActivitiesAPIStub()
	api.saveErr = &activityapi.HTTPError{Status: 500, Message: "boom"}
	fx := newSessionFixture(t, api)

	require.NoError(t, fx.session.Add())
	fillForm(t, fx.session.Form())
	require.Error(t, fx.session.Save(context.Background()))

	require.True(t, fx.session.Form().IsOpen())
	require.Equal(t, messagesFor(LocaleVietnamese).SaveFailed, fx.session.Notifier().Current().Message)
}

func TestDashboardSessionSaveRequiresSelectedID(t *testing.T) {
	api := newActivitiesAPIStub()
	fx := newSessionFixture(t, api)

	activity := activityapi.Activity{Title: "No id"}
	fx.session.mu.Lock()
	fx.session.selected = &activity
	fx.session.mu.Unlock()
	require.NoError(t, fx.session.Form().Open(&activity))
	fillForm(t, fx.session.Form())

	require.ErrorIs(t, fx.session.Save(context.Background()), ErrMissingActivityID)
	require.Empty(t, api.updated)
	require.Equal(t, messagesFor(LocaleVietnamese).MissingActivityID, fx.session.Notifier().Current().Message)
}

func TestDashboardSessionSaveInvalidFormWarns(t *testing.T) {
	fx := newSessionFixture(t, newActivitiesAPIStub())
	require.NoError(t, fx.session.Add())

	require.ErrorIs(t, fx.session.Save(context.Background()), ErrFormInvalid)
	require.Equal(t, NotificationWarning, fx.session.Notifier().Current().Kind)
}

func TestDashboardSessionViewActivity(t *testing.T) {
	api := newActivitiesAPIStub()
	api.byID["act-99"] = activityapi.Activity{ID: "act-99", Title: "Archived", Images: []string{"https://cdn/a.png", ""}}
	fx := newSessionFixture(t, api)

	detail, err := fx.session.ViewActivity(context.Background(), "act-1")
	require.NoError(t, err)
	require.Equal(t, "Beach cleanup", detail.Title)
	require.Zero(t, api.getCalls, "listed activities are not refetched")

	detail, err = fx.session.ViewActivity(context.Background(), "act-99")
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn/a.png"}, detail.Images)
	require.NotNil(t, fx.session.View().Viewing)

	fx.session.CloseView()
	require.Nil(t, fx.session.View().Viewing)

	_, err = fx.session.ViewActivity(context.Background(), "missing")
	require.ErrorIs(t, err, ErrActivityNotFound)
}

func TestDashboardSessionOverview(t *testing.T) {
	api := newActivitiesAPIStub()
	api.stats = activityapi.ActivityStats{Total: 7, Upcoming: 3, Ongoing: 1, Completed: 3}
	fx := newSessionFixture(t, api)

	overview, err := fx.session.Overview(context.Background())
	require.NoError(t, err)
	require.Equal(t, 7, overview.Stats.Total)
}

func TestDashboardSessionStoreEvictsIdleSessions(t *testing.T) {
	store := NewDashboardSessionStore(DashboardSessionConfig{
		API:     newActivitiesAPIStub(),
		Uploads: NewUploadService(&mediaAPIStub{}, DefaultUploadConfig(), testLogger()),
	}, time.Hour, testLogger())
	t.Cleanup(store.CloseAll)

	now := time.Now()
	store.now = func() time.Time { return now }

	session := store.Create(context.Background())
	require.Len(t, session.View().Rows, 2)

	got, err := store.Get(session.ID())
	require.NoError(t, err)
	require.Same(t, session, got)

	require.Zero(t, store.Sweep())

	now = now.Add(2 * time.Hour)
	require.Equal(t, 1, store.Sweep())

	_, err = store.Get(session.ID())
	require.ErrorIs(t, err, ErrSessionNotFound)
}
