// Package backend is the HTTP client of the scheduling REST backend.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"agendei/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrUnavailable marks a request that got no usable answer from the backend:
// a transport failure or an undecodable 2xx body.
var ErrUnavailable = errors.New("scheduling backend unavailable")

// ErrInvalidWindow is returned before any request is made when the window is malformed.
var ErrInvalidWindow = errors.New("invalid availability window")

// APIError is a non-2xx response. Message is the backend's own text.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client calls the availability and appointment endpoints.
type Client struct {
	baseURL    string
	apiKey     string
	apiExtra   string
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
	now      func() time.Time
}

// NewClient constructs a client with baseURL, API key and extra header.
func NewClient(baseURL, apiKey, apiExtra string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiExtra:   apiExtra,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// UseRedisCache configures optional Redis caching for GET endpoints.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// FetchAvailability queries the availability endpoint for w and validates the payload.
func (c *Client) FetchAvailability(ctx context.Context, w models.AvailabilityWindow) (*models.AvailabilityResponse, error) {
	if err := ValidateWindow(w); err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("serviceId", w.ServiceID)
	q.Set("companyId", w.CompanyID)
	q.Set("timezone", w.Timezone)
	q.Set("dateForwardStart", strconv.Itoa(w.DateForwardStart))
	q.Set("dateForwardEnd", strconv.Itoa(w.DateForwardEnd))
	if w.ClientID != "" {
		q.Set("clientId", w.ClientID)
	}
	endpoint := fmt.Sprintf("%s/api/v1/availability?%s", c.baseURL, q.Encode())

	// Offsets are relative to today, so the cached entry must not outlive the day.
	loc, _ := time.LoadLocation(w.Timezone)
	cacheKey := fmt.Sprintf("availability:%s:%s:%s:%d-%d:%s",
		w.CompanyID, w.ServiceID, w.ClientID, w.DateForwardStart, w.DateForwardEnd,
		c.now().In(loc).Format(models.DateLayout))

	var resp models.AvailabilityResponse
	if c.readCache(ctx, cacheKey, &resp) {
		return &resp, nil
	}
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if err := resp.Normalize(); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, resp)
	return &resp, nil
}

// CreateAppointment posts req and returns the created appointment. Any 2xx is
// a created appointment: when the body does not decode, the request fields are
// returned instead.
func (c *Client) CreateAppointment(ctx context.Context, req models.AppointmentRequest) (*models.Appointment, error) {
	endpoint := fmt.Sprintf("%s/api/v1/appointments", c.baseURL)
	var appt models.Appointment
	err := c.doPost(ctx, endpoint, req, &appt)
	var decodeErr *decodeError
	switch {
	case errors.As(err, &decodeErr):
		c.logger.Warn().Err(err).Str("start_time", req.StartTime).Msg("Appointment created but response did not decode")
		appt = models.Appointment{}
	case err != nil:
		return nil, err
	}

	if appt.BranchID == "" {
		appt.BranchID = req.BranchID
	}
	if appt.ClientID == "" {
		appt.ClientID = req.ClientID
	}
	if appt.CompanyID == "" {
		appt.CompanyID = req.CompanyID
	}
	if appt.EmployeeID == "" {
		appt.EmployeeID = req.EmployeeID
	}
	if appt.ServiceID == "" {
		appt.ServiceID = req.ServiceID
	}
	if appt.StartTime == "" {
		appt.StartTime = req.StartTime
	}
	return &appt, nil
}

// ListServices returns the service catalog of a company.
func (c *Client) ListServices(ctx context.Context, companyID string) ([]models.Service, error) {
	if strings.TrimSpace(companyID) == "" {
		return nil, fmt.Errorf("%w: company id is required", ErrInvalidWindow)
	}
	endpoint := fmt.Sprintf("%s/api/v1/companies/%s/services", c.baseURL, url.PathEscape(companyID))
	cacheKey := fmt.Sprintf("services:%s", companyID)
	var wrap struct {
		Services []models.Service `json:"services"`
	}

	if c.readCache(ctx, cacheKey, &wrap) {
		return wrap.Services, nil
	}
	if err := c.doGet(ctx, endpoint, &wrap); err != nil {
		return nil, err
	}
	c.writeCache(ctx, cacheKey, wrap)
	return wrap.Services, nil
}

// ValidateWindow checks the fetch preconditions.
func ValidateWindow(w models.AvailabilityWindow) error {
	if strings.TrimSpace(w.ServiceID) == "" {
		return fmt.Errorf("%w: service id is required", ErrInvalidWindow)
	}
	if strings.TrimSpace(w.CompanyID) == "" {
		return fmt.Errorf("%w: company id is required", ErrInvalidWindow)
	}
	if w.DateForwardStart < 0 || w.DateForwardEnd <= w.DateForwardStart {
		return fmt.Errorf("%w: range %d..%d", ErrInvalidWindow, w.DateForwardStart, w.DateForwardEnd)
	}
	if w.Timezone == "" {
		return fmt.Errorf("%w: timezone is required", ErrInvalidWindow)
	}
	if _, err := time.LoadLocation(w.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidWindow, w.Timezone, err)
	}
	return nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	c.logger.Debug().Str("key", key).Msg("Backend cache hit")
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Failed to write backend cache")
	}
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) doPost(ctx context.Context, endpoint string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(data)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Backend request failed")
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Backend request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.StatusCode, body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &decodeError{path: req.URL.Path, err: err}
	}
	return nil
}

// decodeError is a 2xx response whose body could not be read into the result.
type decodeError struct {
	path string
	err  error
}

func (e *decodeError) Error() string { return fmt.Sprintf("decode %s response: %v", e.path, e.err) }

func (e *decodeError) Unwrap() []error { return []error{ErrUnavailable, e.err} }

// errorMessage extracts the backend's message from an error body.
func errorMessage(status int, body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	if text := strings.TrimSpace(strings.ToValidUTF8(string(body), "")); text != "" {
		return text
	}
	return fmt.Sprintf("http %d", status)
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	if c.apiExtra != "" {
		req.Header.Set("x-api-extra", c.apiExtra)
	}
}
