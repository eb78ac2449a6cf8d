package service

import (
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

// Supported UI locales.
const (
	LocaleVietnamese = "vi"
	LocaleEnglish    = "en"
)

// StatusPresentation is the label and badge class shown for a status.
type StatusPresentation struct {
	Label string
	Class string
}

var statusLabels = map[string]map[string]string{
	LocaleVietnamese: {
		activityapi.StatusUpcoming:  "Sắp diễn ra",
		activityapi.StatusOngoing:   "Đang diễn ra",
		activityapi.StatusCompleted: "Đã hoàn thành",
		"":                          "Không rõ",
	},
	LocaleEnglish: {
		activityapi.StatusUpcoming:  "Upcoming",
		activityapi.StatusOngoing:   "Ongoing",
		activityapi.StatusCompleted: "Completed",
		"":                          "Unknown",
	},
}

var statusClasses = map[string]string{
	activityapi.StatusUpcoming:  "bg-blue-100 text-blue-800",
	activityapi.StatusOngoing:   "bg-green-100 text-green-800",
	activityapi.StatusCompleted: "bg-gray-100 text-gray-800",
}

const unknownStatusClass = "bg-gray-100 text-gray-800"

// NormalizeLocale falls back to Vietnamese for unsupported locales.
func NormalizeLocale(locale string) string {
	switch strings.ToLower(strings.TrimSpace(locale)) {
	case LocaleEnglish:
		return LocaleEnglish
	default:
		return LocaleVietnamese
	}
}

// PresentStatus returns the localized label and class for status.
func PresentStatus(locale, status string) StatusPresentation {
	labels := statusLabels[NormalizeLocale(locale)]
	label, ok := labels[status]
	if !ok {
		label = labels[""]
	}
	class, ok := statusClasses[status]
	if !ok {
		class = unknownStatusClass
	}
	return StatusPresentation{Label: label, Class: class}
}

// FormatActivityDate renders an ISO date for display. Unparseable input is
// returned unchanged.
func FormatActivityDate(locale, value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	parsed, ok := parseActivityDate(value)
	if !ok {
		return value
	}
	if NormalizeLocale(locale) == LocaleEnglish {
		return parsed.Format("1/2/2006")
	}
	return parsed.Format("2/1/2006")
}

func parseActivityDate(value string) (time.Time, bool) {
	layouts := []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// BuildActivityRow derives the table row for one activity.
func BuildActivityRow(locale string, activity activityapi.Activity, deleting bool) dto.ActivityRow {
	status := PresentStatus(locale, activity.Status)
	images := countNonEmpty(activity.Images)
	videos := countNonEmpty(activity.Videos)
	return dto.ActivityRow{
		ID:             activity.ID,
		Title:          activity.Title,
		Description:    activity.Description,
		Category:       activity.Category,
		Location:       activity.Location,
		Date:           activity.Date,
		DateLabel:      FormatActivityDate(locale, activity.Date),
		Participants:   activity.Participants,
		Status:         activity.Status,
		StatusLabel:    status.Label,
		StatusClass:    status.Class,
		ImageCount:     images,
		VideoCount:     videos,
		ShowImageCount: images > 0,
		ShowVideoCount: videos > 0,
		Deleting:       deleting,
	}
}

// BuildActivityRows derives all rows, marking in-flight deletes.
func BuildActivityRows(locale string, activities []activityapi.Activity, tracker *DeleteTracker) []dto.ActivityRow {
	rows := make([]dto.ActivityRow, 0, len(activities))
	for _, activity := range activities {
		deleting := tracker != nil && tracker.InFlight(activity.ID)
		rows = append(rows, BuildActivityRow(locale, activity, deleting))
	}
	return rows
}

// BuildActivityDetail derives the read-only detail view.
func BuildActivityDetail(locale string, activity activityapi.Activity) dto.ActivityDetail {
	return dto.ActivityDetail{
		ActivityRow: BuildActivityRow(locale, activity, false),
		Images:      nonEmpty(activity.Images),
		Videos:      nonEmpty(activity.Videos),
		CreatedAt:   activity.CreatedAt,
		UpdatedAt:   activity.UpdatedAt,
	}
}

func countNonEmpty(values []string) int {
	count := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			count++
		}
	}
	return count
}

func nonEmpty(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			result = append(result, v)
		}
	}
	return result
}

// DeleteTracker records activity ids with a delete in flight.
type DeleteTracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

// NewDeleteTracker returns an empty tracker.
func NewDeleteTracker() *DeleteTracker {
	return &DeleteTracker{ids: make(map[string]struct{})}
}

// Begin marks id as in flight. It returns false when a delete for id is
// already running.
func (t *DeleteTracker) Begin(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.ids[id]; busy {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

// End clears id.
func (t *DeleteTracker) End(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}

// InFlight reports whether a delete for id is running.
func (t *DeleteTracker) InFlight(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, busy := t.ids[id]
	return busy
}
