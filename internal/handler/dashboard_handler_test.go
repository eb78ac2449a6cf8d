package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/volunteer-hub-web/internal/config"
	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/handler"
	"github.com/noah-isme/volunteer-hub-web/internal/middleware"
	"github.com/noah-isme/volunteer-hub-web/internal/router"
	"github.com/noah-isme/volunteer-hub-web/internal/service"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

const testDashboardPassword = "open-sesame"

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Details map[string]string `json:"details"`
}

type testActivitiesAPI struct {
	mu        sync.Mutex
	listCalls []activityapi.ActivityQuery
	created   []activityapi.ActivityInput
	deleted   []string
	deleteErr error
	uploads   int
}

func (a *testActivitiesAPI) ListActivities(ctx context.Context, query activityapi.ActivityQuery) (activityapi.ActivityList, error) {
	a.mu.Lock()
	a.listCalls = append(a.listCalls, query)
	a.mu.Unlock()

	page := query.Page
	if page < 1 {
		page = 1
	}
	return activityapi.ActivityList{
		Activities: []activityapi.Activity{
			{ID: "act-1", Title: "Beach cleanup", Description: "<b>Bring gloves</b>", Date: "2025-06-01T00:00:00.000Z", Status: activityapi.StatusUpcoming, Images: []string{"https://cdn.example.com/beach.jpg"}},
			{ID: "act-2", Title: "Food bank", Date: "2025-05-20T00:00:00.000Z", Status: activityapi.StatusCompleted},
		},
		Pagination: &activityapi.PaginationInfo{
			CurrentPage:  page,
			TotalPages:   2,
			TotalItems:   12,
			ItemsPerPage: 10,
			HasNextPage:  page < 2,
			HasPrevPage:  page > 1,
			StartIndex:   (page-1)*10 + 1,
			EndIndex:     page * 10,
		},
	}, nil
}

func (a *testActivitiesAPI) FilterOptions(ctx context.Context) (activityapi.FilterOptions, error) {
	return activityapi.FilterOptions{
		Statuses: []activityapi.FilterOption{{Value: activityapi.StatusUpcoming, Label: "Upcoming", Count: 1}},
	}, nil
}

func (a *testActivitiesAPI) GetActivity(ctx context.Context, id string) (activityapi.Activity, error) {
	if id == "act-1" {
		return activityapi.Activity{ID: "act-1", Title: "Beach cleanup", Date: "2025-06-01T00:00:00.000Z", Status: activityapi.StatusUpcoming}, nil
	}
	return activityapi.Activity{}, &activityapi.HTTPError{Status: http.StatusNotFound, Message: "Activity not found"}
}

func (a *testActivitiesAPI) CreateActivity(ctx context.Context, input activityapi.ActivityInput) (activityapi.SaveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.created = append(a.created, input)
	return activityapi.SaveResult{Activity: activityapi.Activity{ID: "act-new", Title: input.Title}}, nil
}

func (a *testActivitiesAPI) UpdateActivity(ctx context.Context, id string, input activityapi.ActivityInput) (activityapi.SaveResult, error) {
	return activityapi.SaveResult{Activity: activityapi.Activity{ID: id, Title: input.Title}}, nil
}

func (a *testActivitiesAPI) DeleteActivity(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deleted = append(a.deleted, id)
	return nil
}

func (a *testActivitiesAPI) Stats(ctx context.Context) (activityapi.ActivityStats, error) {
	return activityapi.ActivityStats{Total: 12, Upcoming: 5, Ongoing: 2, Completed: 5}, nil
}

func (a *testActivitiesAPI) Upload(ctx context.Context, req activityapi.UploadRequest) (activityapi.MediaReference, error) {
	a.mu.Lock()
	a.uploads++
	a.mu.Unlock()
	return activityapi.MediaReference{
		PublicID:     "temp/" + req.Name,
		ResourceType: req.ResourceType,
		URL:          "https://res.cloudinary.com/demo/image/upload/v1/temp/" + req.Name,
		Size:         req.Size,
		Name:         req.Name,
	}, nil
}

func (a *testActivitiesAPI) DeleteTemp(ctx context.Context, publicID, resourceType string) error {
	return nil
}

func (a *testActivitiesAPI) createdInputs() []activityapi.ActivityInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]activityapi.ActivityInput(nil), a.created...)
}

type dashboardApp struct {
	app   *fiber.App
	api   *testActivitiesAPI
	store *service.DashboardSessionStore
}

func setupDashboardApp(t *testing.T) dashboardApp {
	t.Helper()

	logger := zerolog.Nop()
	validate := validator.New()
	api := &testActivitiesAPI{}

	uploadCfg := service.DefaultUploadConfig()
	uploadCfg.MaxBytes = 1024
	uploadCfg.Sleep = func(context.Context, time.Duration) error { return nil }

	store := service.NewDashboardSessionStore(service.DashboardSessionConfig{
		API:          api,
		Uploads:      service.NewUploadService(api, uploadCfg, logger),
		Validator:    validate,
		Locale:       service.LocaleVietnamese,
		KeywordDelay: 10 * time.Millisecond,
	}, time.Hour, logger)
	t.Cleanup(store.CloseAll)

	lock := middleware.NewDashboardLock("test-secret", time.Hour, false)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", APIBaseURL: "http://api.test/api"}, router.Dependencies{
		DashboardAuthHandler:     handler.NewDashboardAuthHandler(store, lock, testDashboardPassword, validate, logger),
		DashboardActivityHandler: handler.NewDashboardActivityHandler(store, validate, logger),
		DashboardFormHandler:     handler.NewDashboardFormHandler(store, validate, uploadCfg.MaxBytes, logger),
		NotificationHandler:      handler.NewNotificationHandler(store, logger, time.Second),
		DashboardLock:            lock,
	})

	return dashboardApp{app: app, api: api, store: store}
}

func (d dashboardApp) unlock(t *testing.T) string {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/dashboard/unlock", strings.NewReader(`{"password":"`+testDashboardPassword+`"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var cookie *http.Cookie
	for _, candidate := range resp.Cookies() {
		if candidate.Name == middleware.DashboardCookieName {
			cookie = candidate
		}
	}
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	var body envelope
	decodeResponse(t, resp, &body)
	var unlocked handler.UnlockResponse
	require.NoError(t, json.Unmarshal(body.Data, &unlocked))
	require.NotEmpty(t, unlocked.SessionID)
	require.Equal(t, cookie.Value, unlocked.Token)

	return cookie.Name + "=" + cookie.Value
}

func (d dashboardApp) do(t *testing.T, method, path, cookie string, payload interface{}) (*http.Response, envelope) {
	t.Helper()

	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := d.app.Test(req, 5000)
	require.NoError(t, err)

	var body envelope
	decodeResponse(t, resp, &body)
	return resp, body
}

func TestDashboardUnlockRejectsWrongPassword(t *testing.T) {
	d := setupDashboardApp(t)

	resp, body := d.do(t, http.MethodPost, "/dashboard/unlock", "", map[string]string{"password": "guess"})
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.False(t, body.Success)
	require.Empty(t, resp.Cookies())

	resp, _ = d.do(t, http.MethodPost, "/dashboard/unlock", "", map[string]string{})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestDashboardRoutesRequireUnlock(t *testing.T) {
	d := setupDashboardApp(t)

	resp, body := d.do(t, http.MethodGet, "/dashboard/api/activities", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, middleware.ErrDashboardLocked.Error(), body.Message)

	resp, _ = d.do(t, http.MethodGet, "/dashboard/api/activities", middleware.DashboardCookieName+"=forged", nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestDashboardLockEndsSession(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, _ := d.do(t, http.MethodPost, "/dashboard/lock", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := d.do(t, http.MethodGet, "/dashboard/api/activities", cookie, nil)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "dashboard session expired", body.Message)
}

func TestDashboardActivitiesListAndFilters(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, body := d.do(t, http.MethodGet, "/dashboard/api/activities", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var view dto.ActivitiesView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	require.Len(t, view.Rows, 2)
	require.Equal(t, "1/6/2025", view.Rows[0].DateLabel)
	require.True(t, view.Pagination.Visible)
	require.NotNil(t, view.Filters.Options)

	resp, body = d.do(t, http.MethodPut, "/dashboard/api/activities/filters", cookie, map[string]string{"status": "ongoing", "sortOrder": "asc"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	require.Equal(t, "ongoing", view.Filters.Query.Status)
	require.Equal(t, 1, view.Filters.Query.Page)
	require.True(t, view.Filters.HasActiveFilters)

	resp, body = d.do(t, http.MethodPut, "/dashboard/api/activities/filters", cookie, map[string]string{"status": "archived"})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "oneof", body.Details["status"])

	resp, body = d.do(t, http.MethodPut, "/dashboard/api/activities/page", cookie, map[string]int{"page": 2})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	require.Equal(t, 2, view.Pagination.CurrentPage)

	resp, body = d.do(t, http.MethodPost, "/dashboard/api/activities/filters/reset", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &view))
	require.False(t, view.Filters.HasActiveFilters)
}

func TestDashboardKeywordIsDebounced(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, _ := d.do(t, http.MethodPut, "/dashboard/api/activities/filters/keyword", cookie, map[string]string{"keyword": "beach"})
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		d.api.mu.Lock()
		defer d.api.mu.Unlock()
		last := d.api.listCalls[len(d.api.listCalls)-1]
		return last.Keyword == "beach"
	}, time.Second, 10*time.Millisecond)
}

func TestDashboardDeleteActivity(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, _ := d.do(t, http.MethodDelete, "/dashboard/api/activities/act-2", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.Equal(t, []string{"act-2"}, d.api.deleted)

	d.api.mu.Lock()
	d.api.deleteErr = &activityapi.HTTPError{Status: http.StatusInternalServerError, Message: "database unavailable"}
	d.api.mu.Unlock()

	resp, body := d.do(t, http.MethodDelete, "/dashboard/api/activities/act-1", cookie, nil)
	require.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	require.Equal(t, "database unavailable", body.Message)

	resp, body = d.do(t, http.MethodGet, "/dashboard/api/notifications", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var state dto.NotificationState
	require.NoError(t, json.Unmarshal(body.Data, &state))
	require.NotNil(t, state.Notification)
	require.Equal(t, "error", state.Notification.Kind)
}

func TestDashboardViewActivity(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, body := d.do(t, http.MethodPost, "/dashboard/api/activities/act-1/view", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var detail dto.ActivityDetail
	require.NoError(t, json.Unmarshal(body.Data, &detail))
	require.Equal(t, "act-1", detail.ID)

	resp, _ = d.do(t, http.MethodPost, "/dashboard/api/activities/missing/view", cookie, nil)
	require.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, body = d.do(t, http.MethodDelete, "/dashboard/api/activities/view", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var view dto.ActivitiesView
	require.NoError(t, json.Unmarshal(body.Data, &view))
	require.Nil(t, view.Viewing)
}

func TestDashboardOverview(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, body := d.do(t, http.MethodGet, "/dashboard/api/overview", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var overview dto.OverviewResponse
	require.NoError(t, json.Unmarshal(body.Data, &overview))
	require.Equal(t, 12, overview.Stats.Total)
}

func TestDashboardFormCreateWithUpload(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, body := d.do(t, http.MethodPost, "/dashboard/api/form/open", cookie, map[string]string{})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var form dto.FormView
	require.NoError(t, json.Unmarshal(body.Data, &form))
	require.True(t, form.Open)
	require.Equal(t, activityapi.StatusUpcoming, form.Fields.Status)

	resp, _ = d.do(t, http.MethodPatch, "/dashboard/api/form", cookie, map[string]interface{}{
		"title":        "Tree planting",
		"description":  "Plant trees <script>alert(1)</script>in the park",
		"category":     "environment",
		"location":     "Hue",
		"date":         "2025-07-01",
		"participants": 12,
	})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := &bytes.Buffer{}
	writer := multipart.NewWriter(payload)
	part, err := writer.CreateFormFile("files", "tree.png")
	require.NoError(t, err)
	_, err = part.Write(pngHeader)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/dashboard/api/form/media/image", payload)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Cookie", cookie)
	uploadResp, err := d.app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, uploadResp.StatusCode)

	var uploadBody envelope
	decodeResponse(t, uploadResp, &uploadBody)
	require.NoError(t, json.Unmarshal(uploadBody.Data, &form))
	require.Len(t, form.Images, 1)
	require.True(t, form.Images[0].Temporary)

	resp, _ = d.do(t, http.MethodPost, "/dashboard/api/form/submit", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	created := d.api.createdInputs()
	require.Len(t, created, 1)
	require.Equal(t, "Tree planting", created[0].Title)
	require.Equal(t, "2025-07-01T00:00:00.000Z", created[0].Date)
	require.NotContains(t, created[0].Description, "<script>")
	require.Equal(t, []string{"https://res.cloudinary.com/demo/image/upload/v1/temp/tree.png"}, created[0].Images)

	resp, body = d.do(t, http.MethodGet, "/dashboard/api/form", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body.Data, &form))
	require.False(t, form.Open)
}

func TestDashboardFormRejectsInvalidSubmit(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, _ := d.do(t, http.MethodPost, "/dashboard/api/form/open", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := d.do(t, http.MethodPost, "/dashboard/api/form/submit", cookie, nil)
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
	require.False(t, body.Success)
	require.Contains(t, body.Details, "title")
	require.Empty(t, d.api.createdInputs())
}

func TestDashboardFormRejectsOversizeUpload(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	resp, _ := d.do(t, http.MethodPost, "/dashboard/api/form/open", cookie, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	payload := &bytes.Buffer{}
	writer := multipart.NewWriter(payload)
	part, err := writer.CreateFormFile("files", "huge.png")
	require.NoError(t, err)
	_, err = part.Write(append(pngHeader, bytes.Repeat([]byte{0}, 2048)...))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/dashboard/api/form/media/image", payload)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Cookie", cookie)
	uploadResp, err := d.app.Test(req, 5000)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusBadRequest, uploadResp.StatusCode)
	require.NoError(t, uploadResp.Body.Close())
	require.Zero(t, d.api.uploads)

	resp, _ = d.do(t, http.MethodDelete, "/dashboard/api/form/media/audio/0", cookie, nil)
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestNotificationWebSocketStreamsCurrentState(t *testing.T) {
	d := setupDashboardApp(t)
	cookie := d.unlock(t)

	d.api.mu.Lock()
	d.api.deleteErr = errors.New("boom")
	d.api.mu.Unlock()
	resp, _ := d.do(t, http.MethodDelete, "/dashboard/api/activities/act-1", cookie, nil)
	require.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = d.app.Listener(listener)
	}()
	t.Cleanup(func() {
		_ = d.app.Shutdown()
	})

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	url := "ws://" + listener.Addr().String() + "/dashboard/api/notifications/ws"
	conn, wsResp, err := dialer.Dial(url, http.Header{"Cookie": {cookie}})
	require.NoError(t, err)
	if wsResp != nil && wsResp.Body != nil {
		_ = wsResp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var state dto.NotificationState
	require.NoError(t, conn.ReadJSON(&state))
	require.NotNil(t, state.Notification)
	require.Equal(t, "error", state.Notification.Kind)

	clearResp, _ := d.do(t, http.MethodDelete, "/dashboard/api/notifications", cookie, nil)
	require.Equal(t, fiber.StatusOK, clearResp.StatusCode)

	require.NoError(t, conn.ReadJSON(&state))
	require.Nil(t, state.Notification)
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}
