package activity

// Activity is an experience listed by a local host, as returned by the
// activities backend. The gateway only relays it.
type Activity struct {
	ID            string   `json:"id"`
	Slug          string   `json:"slug,omitempty"`
	Title         string   `json:"title"`
	Summary       string   `json:"summary,omitempty"`
	Location      string   `json:"location"`
	Category      string   `json:"category"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	DurationMins  int      `json:"duration_minutes,omitempty"`
	Rating        float64  `json:"rating"`
	ReviewsCount  int      `json:"reviews_count"`
	MaxGuests     int      `json:"max_guests,omitempty"`
	CoverImageURL string   `json:"cover_image_url,omitempty"`
	HostName      string   `json:"host_name,omitempty"`
	Tags          []string `json:"tags,omitempty"`
}

// Key identifies the activity in rendered lists.
func (a Activity) Key() string { return a.ID }
