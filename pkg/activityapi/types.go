package activityapi

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Activity statuses understood by the remote API.
const (
	StatusUpcoming  = "upcoming"
	StatusOngoing   = "ongoing"
	StatusCompleted = "completed"
)

// Resource types reported for uploaded media.
const (
	ResourceImage = "image"
	ResourceVideo = "video"
)

// Activity mirrors a single activity record returned by the API.
type Activity struct {
	ID           string   `json:"_id,omitempty"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Location     string   `json:"location"`
	Date         string   `json:"date"`
	Participants int      `json:"participants"`
	Status       string   `json:"status"`
	Images       []string `json:"images"`
	Videos       []string `json:"videos"`
	CreatedAt    string   `json:"createdAt,omitempty"`
	UpdatedAt    string   `json:"updatedAt,omitempty"`
}

// UnmarshalJSON accepts both "_id" and "id" as the identifier.
func (a *Activity) UnmarshalJSON(data []byte) error {
	type plain Activity
	var aux struct {
		plain
		AltID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*a = Activity(aux.plain)
	if a.ID == "" {
		a.ID = aux.AltID
	}
	return nil
}

// ActivityInput is the payload for create and update requests.
type ActivityInput struct {
	Title        string   `json:"title" validate:"required,max=200"`
	Description  string   `json:"description" validate:"required"`
	Category     string   `json:"category" validate:"required,max=100"`
	Location     string   `json:"location" validate:"required,max=200"`
	Date         string   `json:"date" validate:"required"`
	Participants int      `json:"participants" validate:"gte=0"`
	Status       string   `json:"status" validate:"required,oneof=upcoming ongoing completed"`
	Images       []string `json:"images"`
	Videos       []string `json:"videos"`
}

// MediaReference records one file uploaded to remote storage.
type MediaReference struct {
	PublicID     string    `json:"publicId,omitempty"`
	ResourceType string    `json:"resourceType"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	Name         string    `json:"name"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// PaginationInfo is the server-reported metadata for one page of results.
type PaginationInfo struct {
	CurrentPage  int  `json:"currentPage"`
	TotalPages   int  `json:"totalPages"`
	TotalItems   int  `json:"totalItems"`
	ItemsPerPage int  `json:"itemsPerPage"`
	HasNextPage  bool `json:"hasNextPage"`
	HasPrevPage  bool `json:"hasPrevPage"`
	StartIndex   int  `json:"startIndex"`
	EndIndex     int  `json:"endIndex"`
}

// ActivityMetadata carries diagnostics returned with a list response.
type ActivityMetadata struct {
	TotalActivities int    `json:"totalActivities"`
	QueryTime       string `json:"queryTime"`
}

// ActivityList is the data section of a list response.
type ActivityList struct {
	Activities []Activity        `json:"activities"`
	Pagination *PaginationInfo   `json:"pagination,omitempty"`
	Filters    map[string]any    `json:"filters,omitempty"`
	Metadata   *ActivityMetadata `json:"metadata,omitempty"`
}

// FilterOption is one selectable facet value.
type FilterOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DateRange is the global range of activity dates.
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// ParticipantsRange is the global range of participant counts.
type ParticipantsRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// SortOption is a selectable sort field or direction.
type SortOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// FilterOptions is the facet metadata used to populate filter controls.
type FilterOptions struct {
	Categories        []FilterOption     `json:"categories"`
	Statuses          []FilterOption     `json:"statuses"`
	DateRange         *DateRange         `json:"dateRange"`
	ParticipantsRange *ParticipantsRange `json:"participantsRange"`
	SortOptions       []SortOption       `json:"sortOptions"`
	SortOrders        []SortOption       `json:"sortOrders"`
}

// ActivityStats holds aggregate counts.
type ActivityStats struct {
	Total     int `json:"total"`
	Upcoming  int `json:"upcoming"`
	Ongoing   int `json:"ongoing"`
	Completed int `json:"completed"`
}

// SaveResult is the data section of create and update responses.
type SaveResult struct {
	Activity Activity
	Message  string
}

// ActivityQuery holds the parameters that control which activities are listed.
type ActivityQuery struct {
	Page            int    `json:"page"`
	Limit           int    `json:"limit"`
	Status          string `json:"status,omitempty"`
	Category        string `json:"category,omitempty"`
	Keyword         string `json:"keyword,omitempty"`
	Search          string `json:"search,omitempty"`
	SortBy          string `json:"sortBy,omitempty"`
	SortOrder       string `json:"sortOrder,omitempty"`
	DateFrom        string `json:"dateFrom,omitempty"`
	DateTo          string `json:"dateTo,omitempty"`
	ParticipantsMin *int   `json:"participantsMin,omitempty"`
	ParticipantsMax *int   `json:"participantsMax,omitempty"`
}

// Values encodes the query, omitting empty and unset fields.
func (q ActivityQuery) Values() url.Values {
	values := url.Values{}
	setInt := func(key string, v int) {
		if v > 0 {
			values.Set(key, strconv.Itoa(v))
		}
	}
	setString := func(key, v string) {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			values.Set(key, trimmed)
		}
	}
	setOptional := func(key string, v *int) {
		if v != nil {
			values.Set(key, strconv.Itoa(*v))
		}
	}

	setInt("page", q.Page)
	setInt("limit", q.Limit)
	setString("status", q.Status)
	setString("category", q.Category)
	setString("keyword", q.Keyword)
	setString("search", q.Search)
	setString("sortBy", q.SortBy)
	setString("sortOrder", q.SortOrder)
	setString("dateFrom", q.DateFrom)
	setString("dateTo", q.DateTo)
	setOptional("participantsMin", q.ParticipantsMin)
	setOptional("participantsMax", q.ParticipantsMax)

	return values
}
