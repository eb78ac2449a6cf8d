package dto

import (
	"time"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

// UnlockRequest carries the dashboard password.
type UnlockRequest struct {
	Password string `json:"password" validate:"required,max=200"`
}

// FilterUpdateRequest is a partial update of the filter state. Values are the
// raw control values; an empty string clears the field.
type FilterUpdateRequest struct {
	Keyword         *string `json:"keyword" validate:"omitempty,max=200"`
	Status          *string `json:"status" validate:"omitempty,oneof=upcoming ongoing completed"`
	Category        *string `json:"category" validate:"omitempty,max=100"`
	DateFrom        *string `json:"dateFrom" validate:"omitempty,datetime=2006-01-02"`
	DateTo          *string `json:"dateTo" validate:"omitempty,datetime=2006-01-02"`
	ParticipantsMin *string `json:"participantsMin" validate:"omitempty,numeric"`
	ParticipantsMax *string `json:"participantsMax" validate:"omitempty,numeric"`
	SortBy          *string `json:"sortBy" validate:"omitempty,max=50"`
	SortOrder       *string `json:"sortOrder" validate:"omitempty,oneof=asc desc"`
	Limit           *string `json:"limit" validate:"omitempty,numeric"`
}

// Fields returns the set fields keyed by filter name.
func (r FilterUpdateRequest) Fields() map[string]string {
	fields := make(map[string]string)
	set := func(key string, value *string) {
		if value != nil {
			fields[key] = *value
		}
	}
	set("keyword", r.Keyword)
	set("status", r.Status)
	set("category", r.Category)
	set("dateFrom", r.DateFrom)
	set("dateTo", r.DateTo)
	set("participantsMin", r.ParticipantsMin)
	set("participantsMax", r.ParticipantsMax)
	set("sortBy", r.SortBy)
	set("sortOrder", r.SortOrder)
	set("limit", r.Limit)
	return fields
}

// KeywordRequest carries live keyword input.
type KeywordRequest struct {
	Keyword string `json:"keyword" validate:"max=200"`
}

// PageRequest selects a list page.
type PageRequest struct {
	Page int `json:"page" validate:"required,min=1"`
}

// FilterStateResponse describes the current filter controls.
type FilterStateResponse struct {
	Query            activityapi.ActivityQuery  `json:"query"`
	KeywordInput     string                     `json:"keyword_input"`
	HasActiveFilters bool                       `json:"has_active_filters"`
	Options          *activityapi.FilterOptions `json:"options,omitempty"`
}

// ActivityRow is one rendered row of the admin activity table.
type ActivityRow struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description"`
	Category       string `json:"category"`
	Location       string `json:"location"`
	Date           string `json:"date"`
	DateLabel      string `json:"date_label"`
	Participants   int    `json:"participants"`
	Status         string `json:"status"`
	StatusLabel    string `json:"status_label"`
	StatusClass    string `json:"status_class"`
	ImageCount     int    `json:"image_count"`
	VideoCount     int    `json:"video_count"`
	ShowImageCount bool   `json:"show_image_count"`
	ShowVideoCount bool   `json:"show_video_count"`
	Deleting       bool   `json:"deleting"`
}

// PageItem is one entry of the pagination window.
type PageItem struct {
	Number   int  `json:"number,omitempty"`
	Ellipsis bool `json:"ellipsis,omitempty"`
	Current  bool `json:"current,omitempty"`
}

// PaginationControl is the rendered pagination bar.
type PaginationControl struct {
	Visible     bool       `json:"visible"`
	CurrentPage int        `json:"current_page"`
	TotalPages  int        `json:"total_pages"`
	TotalItems  int        `json:"total_items"`
	StartIndex  int        `json:"start_index"`
	EndIndex    int        `json:"end_index"`
	Pages       []PageItem `json:"pages"`
	CanFirst    bool       `json:"can_first"`
	CanPrev     bool       `json:"can_prev"`
	CanNext     bool       `json:"can_next"`
	CanLast     bool       `json:"can_last"`
}

// ActivityDetail is the read-only view of a single activity.
type ActivityDetail struct {
	ActivityRow
	Images    []string `json:"images"`
	Videos    []string `json:"videos"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

// ActivitiesView is the full state of the activities management page.
type ActivitiesView struct {
	Rows       []ActivityRow       `json:"rows"`
	Pagination PaginationControl   `json:"pagination"`
	Filters    FilterStateResponse `json:"filters"`
	Loading    bool                `json:"loading"`
	Error      string              `json:"error,omitempty"`
	Viewing    *ActivityDetail     `json:"viewing,omitempty"`
	FormOpen   bool                `json:"form_open"`
}

// OverviewResponse feeds the dashboard home.
type OverviewResponse struct {
	Stats activityapi.ActivityStats `json:"stats"`
}

// FormFields are the editable scalar fields of the activity form.
type FormFields struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Location     string `json:"location"`
	Date         string `json:"date"`
	Participants int    `json:"participants"`
	Status       string `json:"status"`
}

// FormUpdateRequest is a partial edit of the form fields.
type FormUpdateRequest struct {
	Title        *string `json:"title" validate:"omitempty,max=200"`
	Description  *string `json:"description"`
	Category     *string `json:"category" validate:"omitempty,max=100"`
	Location     *string `json:"location" validate:"omitempty,max=200"`
	Date         *string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Participants *int    `json:"participants" validate:"omitempty,gte=0"`
	Status       *string `json:"status" validate:"omitempty,oneof=upcoming ongoing completed"`
}

// FormOpenRequest opens the form for creation or for editing ActivityID.
type FormOpenRequest struct {
	ActivityID string `json:"activityId"`
}

// MediaEntryView is one image or video attached to the form.
type MediaEntryView struct {
	URL       string `json:"url"`
	Temporary bool   `json:"temporary"`
	Name      string `json:"name,omitempty"`
	Size      int64  `json:"size,omitempty"`
}

// FormView is the full state of the activity form.
type FormView struct {
	Open           bool              `json:"open"`
	Mode           string            `json:"mode"`
	ActivityID     string            `json:"activity_id,omitempty"`
	Fields         FormFields        `json:"fields"`
	Images         []MediaEntryView  `json:"images"`
	Videos         []MediaEntryView  `json:"videos"`
	Uploading      bool              `json:"uploading"`
	UploadKind     string            `json:"upload_kind,omitempty"`
	UploadProgress int               `json:"upload_progress"`
	Submitting     bool              `json:"submitting"`
	Errors         map[string]string `json:"errors,omitempty"`
	MaxUploadBytes int64             `json:"max_upload_bytes"`
}

// NotificationResponse is the single visible dashboard notification.
type NotificationResponse struct {
	ID         uint64    `json:"id"`
	Kind       string    `json:"kind"`
	Message    string    `json:"message"`
	AutoClose  bool      `json:"auto_close"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationState is what a display subscriber receives. A nil
// Notification means the slot was cleared.
type NotificationState struct {
	Notification *NotificationResponse `json:"notification"`
}
