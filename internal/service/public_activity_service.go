package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/volunteer-hub-web/internal/dto"
	"github.com/noah-isme/volunteer-hub-web/internal/observability"
	"github.com/noah-isme/volunteer-hub-web/pkg/activityapi"
)

// PublicActivitiesPerPage is the page size of the public listing.
const PublicActivitiesPerPage = 3

const publicCachePrefix = "public:activities:v1:"

// PublicActivitySource is the read side of the activities API.
type PublicActivitySource interface {
	ListActivities(ctx context.Context, query activityapi.ActivityQuery) (activityapi.ActivityList, error)
	GetActivity(ctx context.Context, id string) (activityapi.Activity, error)
}

// ThumbnailBuilder rewrites image URLs into thumbnail URLs.
type ThumbnailBuilder interface {
	Thumbnail(rawURL string) string
}

// PublicActivityService serves the public activity listing.
type PublicActivityService interface {
	Page(ctx context.Context, page int) (dto.PublicActivityPage, error)
	Detail(ctx context.Context, id string) (dto.PublicActivityItem, error)
	Invalidate(ctx context.Context) error
}

type publicActivityService struct {
	api    PublicActivitySource
	cache  *redis.Client
	thumbs ThumbnailBuilder
	ttl    time.Duration
	locale string
	policy *bluemonday.Policy
	logger zerolog.Logger
}

// NewPublicActivityService constructs the public listing service. cache and
// thumbs may be nil.
func NewPublicActivityService(api PublicActivitySource, cache *redis.Client, thumbs ThumbnailBuilder, ttl time.Duration, locale string, logger zerolog.Logger) PublicActivityService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &publicActivityService{
		api:    api,
		cache:  cache,
		thumbs: thumbs,
		ttl:    ttl,
		locale: NormalizeLocale(locale),
		policy: bluemonday.StrictPolicy(),
		logger: logger.With().Str("component", "public_activity_service").Logger(),
	}
}

// Page returns one page of activities, newest first. HasMore is true when
// the page is full.
func (s *publicActivityService) Page(ctx context.Context, page int) (dto.PublicActivityPage, error) {
	page = maxInt(page, 1)

	cacheKey := ""
	if s.cache != nil {
		cacheKey = fmt.Sprintf("%spage:%d", publicCachePrefix, page)
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response dto.PublicActivityPage
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				response.CacheHit = true
				observability.PublicCacheRequests().WithLabelValues("hit").Inc()
				return response, nil
			}
		} else if err != nil && err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read public activity cache")
		}
	}

	list, err := s.api.ListActivities(ctx, activityapi.ActivityQuery{
		Page:      page,
		Limit:     PublicActivitiesPerPage,
		SortBy:    "date",
		SortOrder: "desc",
	})
	if err != nil {
		observability.PublicCacheRequests().WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Int("page", page).Msg("failed to fetch public activities")
		return dto.PublicActivityPage{}, err
	}

	items := make([]dto.PublicActivityItem, 0, len(list.Activities))
	for _, activity := range list.Activities {
		items = append(items, s.present(activity))
	}

	response := dto.PublicActivityPage{
		Items:   items,
		Page:    page,
		PerPage: PublicActivitiesPerPage,
		HasMore: len(items) == PublicActivitiesPerPage,
	}

	if cacheKey != "" {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache public activities")
			}
		}
	}

	observability.PublicCacheRequests().WithLabelValues("miss").Inc()
	return response, nil
}

func (s *publicActivityService) Detail(ctx context.Context, id string) (dto.PublicActivityItem, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return dto.PublicActivityItem{}, ErrActivityNotFound
	}

	activity, err := s.api.GetActivity(ctx, id)
	if err != nil {
		if activityapi.StatusCode(err) == 404 {
			return dto.PublicActivityItem{}, ErrActivityNotFound
		}
		s.logger.Error().Err(err).Str("activity_id", id).Msg("failed to fetch public activity")
		return dto.PublicActivityItem{}, err
	}
	return s.present(activity), nil
}

// Invalidate drops every cached page.
func (s *publicActivityService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}

	var keys []string
	iter := s.cache.Scan(ctx, 0, publicCachePrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.cache.Del(ctx, keys...).Err(); err != nil {
		return err
	}
	s.logger.Debug().Int("keys", len(keys)).Msg("public activity cache invalidated")
	return nil
}

func (s *publicActivityService) present(activity activityapi.Activity) dto.PublicActivityItem {
	images := nonEmpty(activity.Images)
	thumbnail := ""
	if len(images) > 0 {
		thumbnail = images[0]
		if s.thumbs != nil {
			thumbnail = s.thumbs.Thumbnail(thumbnail)
		}
	}

	status := PresentStatus(s.locale, activity.Status)
	return dto.PublicActivityItem{
		ID:           activity.ID,
		Title:        strings.TrimSpace(activity.Title),
		Description:  s.policy.Sanitize(activity.Description),
		Category:     activity.Category,
		Location:     activity.Location,
		Date:         activity.Date,
		DateLabel:    FormatActivityDate(s.locale, activity.Date),
		Participants: activity.Participants,
		Status:       activity.Status,
		StatusLabel:  status.Label,
		Thumbnail:    thumbnail,
		Images:       images,
		Videos:       nonEmpty(activity.Videos),
	}
}
