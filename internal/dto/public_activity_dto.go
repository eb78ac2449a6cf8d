package dto

// PublicActivityItem is an activity as shown on the public site.
type PublicActivityItem struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Category     string   `json:"category"`
	Location     string   `json:"location"`
	Date         string   `json:"date"`
	DateLabel    string   `json:"date_label"`
	Participants int      `json:"participants"`
	Status       string   `json:"status"`
	StatusLabel  string   `json:"status_label"`
	Thumbnail    string   `json:"thumbnail"`
	Images       []string `json:"images"`
	Videos       []string `json:"videos"`
}

// PublicActivityPage is one page of the public activity listing.
type PublicActivityPage struct {
	Items    []PublicActivityItem `json:"items"`
	Page     int                  `json:"page"`
	PerPage  int                  `json:"per_page"`
	HasMore  bool                 `json:"has_more"`
	CacheHit bool                 `json:"cache_hit"`
}
