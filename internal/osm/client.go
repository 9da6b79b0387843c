package osm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"bookings-assistant/internal/config"
	"bookings-assistant/internal/models"
)

// ErrAuthRequired signals that no valid OSM token exists. Unlike transient
// fetch failures this propagates to the sync caller so it can be surfaced
// as a user-actionable condition.
var ErrAuthRequired = errors.New("osm: authentication required")

// Gateway fetches booking data from the external OSM API
type Gateway interface {
	// FetchBookings returns the booking list for one status. Transient
	// failures degrade to an empty list; only authentication failures
	// return an error.
	FetchBookings(ctx context.Context, status string) ([]models.BookingDTO, error)
	// FetchBookingDetail returns the raw detail JSON and the comments for
	// one booking.
	FetchBookingDetail(ctx context.Context, osmBookingID string) (string, []models.CommentDTO, error)
}

// Client is the HTTP implementation of Gateway
type Client struct {
	httpClient *http.Client
	tokens     oauth2.TokenSource
	baseURL    string
	campsiteID string
	sectionID  string
}

// NewClient creates an OSM API client. The token source is managed by the
// auth layer; a nil token source means the user has never authenticated.
func NewClient(cfg config.OsmConfig, tokens oauth2.TokenSource) *Client {
	return &Client{
		httpClient: &http.Client{},
		tokens:     tokens,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		campsiteID: cfg.CampsiteID,
		sectionID:  cfg.SectionID,
	}
}

// apiResponse is the OSM envelope: {"status": bool, "error": ..., "data": ...}
type apiResponse struct {
	Status bool            `json:"status"`
	Error  string          `json:"error"`
	Data   json.RawMessage `json:"data"`
}

type osmBooking struct {
	ID        int    `json:"id"`
	GroupName string `json:"group_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Status    string `json:"status"`
}

type osmComment struct {
	ID        int    `json:"id"`
	Comment   string `json:"comment"`
	CreatedAt string `json:"created_at"`
	User      *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"user"`
}

// FetchBookings fetches the booking list for one status value
func (c *Client) FetchBookings(ctx context.Context, status string) ([]models.BookingDTO, error) {
	mode := mapStatusToMode(status)
	url := fmt.Sprintf("%s/v3/campsites/%s/bookings?mode=%s", c.baseURL, c.campsiteID, mode)

	logrus.Infof("Fetching OSM bookings with mode: %s", mode)

	body, err := c.get(ctx, url)
	if err != nil {
		if errors.Is(err, ErrAuthRequired) {
			return nil, err
		}
		logrus.Errorf("Error fetching bookings from OSM API: %v", err)
		return []models.BookingDTO{}, nil
	}

	var envelope apiResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		logrus.Errorf("Failed to decode OSM bookings response: %v", err)
		return []models.BookingDTO{}, nil
	}
	if !envelope.Status {
		logrus.Errorf("OSM API returned error: %s", envelope.Error)
		return []models.BookingDTO{}, nil
	}

	var raw []osmBooking
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &raw); err != nil {
			logrus.Errorf("Failed to decode OSM bookings data: %v", err)
			return []models.BookingDTO{}, nil
		}
	}

	bookings := make([]models.BookingDTO, 0, len(raw))
	for _, b := range raw {
		bookings = append(bookings, models.BookingDTO{
			OsmBookingID: strconv.Itoa(b.ID),
			CustomerName: b.GroupName,
			StartDate:    parseDate(b.StartDate),
			EndDate:      parseDate(b.EndDate),
			Status:       capitalize(b.Status),
		})
	}

	logrus.Infof("Successfully fetched %d bookings from OSM", len(bookings))
	return bookings, nil
}

// FetchBookingDetail fetches the full detail JSON and comments for one
// booking. The two requests run concurrently; each side degrades
// independently on transient failure.
func (c *Client) FetchBookingDetail(ctx context.Context, osmBookingID string) (string, []models.CommentDTO, error) {
	detailsURL := fmt.Sprintf("%s/v3/campsites/%s/items?booking_id=%s&mode=booking&audience=venue",
		c.baseURL, c.campsiteID, osmBookingID)
	commentsURL := fmt.Sprintf("%s/v3/comments/campsite_booking/%s/list?section_id=%s",
		c.baseURL, osmBookingID, c.sectionID)

	logrus.Infof("Fetching OSM booking details for booking: %s", osmBookingID)

	type fetchResult struct {
		body []byte
		err  error
	}
	detailCh := make(chan fetchResult, 1)
	commentCh := make(chan fetchResult, 1)

	go func() {
		body, err := c.get(ctx, detailsURL)
		detailCh <- fetchResult{body, err}
	}()
	go func() {
		body, err := c.get(ctx, commentsURL)
		commentCh <- fetchResult{body, err}
	}()

	detail := <-detailCh
	comment := <-commentCh

	if errors.Is(detail.err, ErrAuthRequired) || errors.Is(comment.err, ErrAuthRequired) {
		return "", nil, ErrAuthRequired
	}

	fullDetails := ""
	if detail.err != nil {
		logrus.Errorf("OSM API error fetching details for booking %s: %v", osmBookingID, detail.err)
	} else {
		fullDetails = string(detail.body)
	}

	comments := []models.CommentDTO{}
	if comment.err != nil {
		logrus.Errorf("OSM API error fetching comments for booking %s: %v", osmBookingID, comment.err)
	} else {
		var envelope apiResponse
		if err := json.Unmarshal(comment.body, &envelope); err != nil || !envelope.Status {
			logrus.Errorf("OSM API returned error for comments of booking %s", osmBookingID)
		} else {
			var raw []osmComment
			if len(envelope.Data) > 0 {
				if err := json.Unmarshal(envelope.Data, &raw); err != nil {
					logrus.Errorf("Failed to decode OSM comments data: %v", err)
				}
			}
			for _, cm := range raw {
				comments = append(comments, mapComment(cm, osmBookingID))
			}
		}
	}

	logrus.Infof("Successfully fetched booking details and %d comments from OSM", len(comments))
	return fullDetails, comments, nil
}

// get performs an authenticated GET and returns the body. A missing token
// or a 401 response maps to ErrAuthRequired; other failures return a
// generic error for the caller to degrade on.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	if c.tokens == nil {
		return nil, ErrAuthRequired
	}
	token, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	logRateLimiting(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrAuthRequired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OSM API returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// logRateLimiting surfaces the OSM rate limit headers in the logs
func logRateLimiting(resp *http.Response) {
	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		logrus.Debugf("Rate limit: %s", limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		logrus.Debugf("Rate limit remaining: %s", remaining)
		if n, err := strconv.Atoi(remaining); err == nil && n < 10 {
			logrus.Warnf("OSM API rate limit running low: %d requests remaining", n)
		}
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		logrus.Debugf("Rate limit reset in: %s seconds", reset)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		logrus.Errorf("OSM API rate limit exceeded. Retry after: %s seconds", resp.Header.Get("Retry-After"))
	}
}

func mapComment(c osmComment, osmBookingID string) models.CommentDTO {
	author := ""
	if c.User != nil {
		author = strings.TrimSpace(c.User.FirstName + " " + c.User.LastName)
	}

	preview := c.Comment
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}

	return models.CommentDTO{
		OsmBookingID: osmBookingID,
		OsmCommentID: strconv.Itoa(c.ID),
		AuthorName:   author,
		TextPreview:  preview,
		CreatedDate:  parseDate(c.CreatedAt),
	}
}

// mapStatusToMode maps the canonical status vocabulary to the OSM API mode
// parameter. Unknown statuses default to current.
func mapStatusToMode(status string) string {
	switch strings.ToLower(status) {
	case "provisional":
		return "provisional"
	case "confirmed":
		return "current"
	case "future":
		return "future"
	case "past":
		return "past"
	case "cancelled":
		return "cancelled"
	default:
		return "current"
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDate(value string) time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func capitalize(text string) string {
	if text == "" {
		return "Unknown"
	}
	return strings.ToUpper(text[:1]) + strings.ToLower(text[1:])
}
