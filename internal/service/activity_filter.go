package service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

// Filter field names accepted by FilterState.Set.
const (
	FilterPage            = "page"
	FilterLimit           = "limit"
	FilterKeyword         = "keyword"
	FilterSearch          = "search"
	FilterStatus          = "status"
	FilterCategory        = "category"
	FilterDateFrom        = "dateFrom"
	FilterDateTo          = "dateTo"
	FilterParticipantsMin = "participantsMin"
	FilterParticipantsMax = "participantsMax"
	FilterSortBy          = "sortBy"
	FilterSortOrder       = "sortOrder"
)

const (
	defaultFilterLimit     = 10
	defaultFilterSortBy    = "date"
	defaultFilterSortOrder = "desc"
)

// ErrInvalidFilter indicates an unknown filter field or malformed value.
var ErrInvalidFilter = errors.New("invalid filter")

// DefaultActivityQuery is the state restored by FilterState.Reset.
func DefaultActivityQuery() activityapi.ActivityQuery {
	return activityapi.ActivityQuery{
		Page:      1,
		Limit:     defaultFilterLimit,
		SortBy:    defaultFilterSortBy,
		SortOrder: defaultFilterSortOrder,
	}
}

// FilterState owns the query used to list activities. Any change to a field
// other than the page sends the list back to page 1.
type FilterState struct {
	mu       sync.Mutex
	query    activityapi.ActivityQuery
	onChange func(activityapi.ActivityQuery)
}

// NewFilterState returns a filter state with default values.
func NewFilterState() *FilterState {
	return &FilterState{query: DefaultActivityQuery()}
}

// OnChange registers the callback invoked with a snapshot after every change.
func (f *FilterState) OnChange(fn func(activityapi.ActivityQuery)) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Query returns a snapshot of the current state.
func (f *FilterState) Query() activityapi.ActivityQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyQuery(f.query)
}

// Set updates a single field.
func (f *FilterState) Set(field, value string) error {
	return f.Update(map[string]string{field: value})
}

// Update applies several field changes as one change.
func (f *FilterState) Update(changes map[string]string) error {
	if len(changes) == 0 {
		return nil
	}

	f.mu.Lock()
	next := copyQuery(f.query)
	resetPage := false
	for field, value := range changes {
		if err := applyFilterField(&next, field, value); err != nil {
			f.mu.Unlock()
			return err
		}
		if field != FilterPage {
			resetPage = true
		}
	}
	if resetPage {
		next.Page = 1
	}
	f.query = next
	snapshot, fn := copyQuery(next), f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
	return nil
}

// SetPage moves to page without touching other fields.
func (f *FilterState) SetPage(page int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be at least 1", ErrInvalidFilter)
	}
	return f.Set(FilterPage, strconv.Itoa(page))
}

// Reset restores the default state.
func (f *FilterState) Reset() {
	f.mu.Lock()
	f.query = DefaultActivityQuery()
	snapshot, fn := copyQuery(f.query), f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn(snapshot)
	}
}

// HasActiveFilters reports whether any narrowing filter is set. A zero
// participants bound counts as unset.
func (f *FilterState) HasActiveFilters() bool {
	q := f.Query()
	return strings.TrimSpace(q.Keyword) != "" ||
		strings.TrimSpace(q.Search) != "" ||
		q.Status != "" ||
		q.Category != "" ||
		q.DateFrom != "" ||
		q.DateTo != "" ||
		positive(q.ParticipantsMin) ||
		positive(q.ParticipantsMax)
}

func positive(n *int) bool {
	return n != nil && *n > 0
}

func applyFilterField(q *activityapi.ActivityQuery, field, value string) error {
	value = strings.TrimSpace(value)
	switch field {
	case FilterPage:
		n, err := parsePositive(field, value, 1)
		if err != nil {
			return err
		}
		q.Page = n
	case FilterLimit:
		n, err := parsePositive(field, value, defaultFilterLimit)
		if err != nil {
			return err
		}
		q.Limit = n
	case FilterKeyword:
		q.Keyword = value
	case FilterSearch:
		q.Search = value
	case FilterStatus:
		if value != "" && value != activityapi.StatusUpcoming && value != activityapi.StatusOngoing && value != activityapi.StatusCompleted {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, value)
		}
		q.Status = value
	case FilterCategory:
		q.Category = value
	case FilterDateFrom:
		q.DateFrom = value
	case FilterDateTo:
		q.DateTo = value
	case FilterParticipantsMin:
		n, err := parseOptionalCount(field, value)
		if err != nil {
			return err
		}
		q.ParticipantsMin = n
	case FilterParticipantsMax:
		n, err := parseOptionalCount(field, value)
		if err != nil {
			return err
		}
		q.ParticipantsMax = n
	case FilterSortBy:
		if value == "" {
			value = defaultFilterSortBy
		}
		q.SortBy = value
	case FilterSortOrder:
		switch value {
		case "":
			value = defaultFilterSortOrder
		case "asc", "desc":
		default:
			return fmt.Errorf("%w: sort order must be asc or desc", ErrInvalidFilter)
		}
		q.SortOrder = value
	default:
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, field)
	}
	return nil
}

func parsePositive(field, value string, fallback int) (int, error) {
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", ErrInvalidFilter, field)
	}
	return n, nil
}

func parseOptionalCount(field, value string) (*int, error) {
	if value == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidFilter, field)
	}
	return &n, nil
}

func copyQuery(q activityapi.ActivityQuery) activityapi.ActivityQuery {
	if q.ParticipantsMin != nil {
		v := *q.ParticipantsMin
		q.ParticipantsMin = &v
	}
	if q.ParticipantsMax != nil {
		v := *q.ParticipantsMax
		q.ParticipantsMax = &v
	}
	return q
}

// RequestSequence hands out monotonically increasing tokens so that only the
// result of the most recent request is applied.
type RequestSequence struct {
	current atomic.Uint64
}

// Next starts a new request and returns its token.
func (s *RequestSequence) Next() uint64 {
	return s.current.Add(1)
}

// IsCurrent reports whether token belongs to the most recent request.
func (s *RequestSequence) IsCurrent(token uint64) bool {
	return s.current.Load() == token
}
