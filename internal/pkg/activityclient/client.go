package activityclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/wanderhost/browse-api/internal/collection"
	"github.com/wanderhost/browse-api/internal/domain/activity"
	"github.com/wanderhost/browse-api/internal/pkg/errorhandler"
	"github.com/wanderhost/browse-api/internal/pkg/requestid"
)

const (
	defaultTimeout = 10 * time.Second
	listPath       = "/api/v1/activities"
	listOp         = "activities list"
	maxErrorBody   = 1024
	serviceName    = "activities-backend"
)

// Config configures the activities backend client.
type Config struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string
}

// Client talks to the activities backend listing API.
type Client struct {
	baseURL string
	token   string
	ua      string
	http    *http.Client
}

// listEnvelope mirrors the backend's standard JSON envelope.
type listEnvelope struct {
	Success bool                `json:"success"`
	Data    []activity.Activity `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Meta *struct {
		Total int `json:"total"`
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Pages int `json:"pages"`
	} `json:"meta,omitempty"`
}

// NewClient creates a new activities backend client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		ua:      cfg.UserAgent,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// FetchPage implements collection.Fetcher for activities.
func (c *Client) FetchPage(ctx context.Context, filters collection.FilterSet, page, pageSize int) (*collection.Page[activity.Activity], error) {
	return c.ListActivities(ctx, filters, page, pageSize)
}

// ListActivities requests one page of activities matching filters.
func (c *Client) ListActivities(ctx context.Context, filters collection.FilterSet, page, limit int) (*collection.Page[activity.Activity], error) {
	if c == nil || c.http == nil {
		return nil, fmt.Errorf("%s request error: client is nil", listOp)
	}
	if strings.TrimSpace(c.baseURL) == "" {
		return nil, fmt.Errorf("%s config error: base_url is empty", listOp)
	}

	endpoint := c.listURL(filters, page, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s request error: %w", listOp, err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.ua != "" {
		req.Header.Set("User-Agent", c.ua)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		terr := classifyRequestError(ctx, err)
		errorhandler.LogExternalServiceError(ctx, serviceName, listPath, 0, terr, "")
		return nil, terr
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := string(body)
		if readErr != nil {
			text = fmt.Sprintf("<failed to read body: %v>", readErr)
		}
		serr := &collection.ServerError{Op: listOp, StatusCode: resp.StatusCode, Body: text}
		errorhandler.LogExternalServiceError(ctx, serviceName, listPath, resp.StatusCode, serr, text)
		return nil, serr
	}

	var env listEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if isTimeoutError(ctx, err) {
			return nil, &collection.TransportError{Op: listOp, Timeout: true, Err: err}
		}
		serr := &collection.ServerError{Op: listOp, StatusCode: resp.StatusCode, Body: "malformed response: " + err.Error()}
		errorhandler.LogExternalServiceError(ctx, serviceName, listPath, resp.StatusCode, serr, "")
		return nil, serr
	}
	if !env.Success {
		msg := "success=false"
		if env.Error != nil {
			msg = env.Error.Code + ": " + env.Error.Message
		}
		serr := &collection.ServerError{Op: listOp, StatusCode: resp.StatusCode, Body: msg}
		errorhandler.LogExternalServiceError(ctx, serviceName, listPath, resp.StatusCode, serr, msg)
		return nil, serr
	}

	return toPage(&env, page, limit), nil
}

func (c *Client) listURL(filters collection.FilterSet, page, limit int) string {
	q := filters.Values()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	return c.baseURL + listPath + "?" + q.Encode()
}

func toPage(env *listEnvelope, page, limit int) *collection.Page[activity.Activity] {
	items := env.Data
	if items == nil {
		items = []activity.Activity{}
	}
	out := &collection.Page[activity.Activity]{
		Items:    items,
		Page:     page,
		PageSize: limit,
	}
	if env.Meta != nil {
		out.TotalItems = env.Meta.Total
		out.TotalPages = env.Meta.Pages
		if env.Meta.Page > 0 {
			out.Page = env.Meta.Page
		}
		if env.Meta.Limit > 0 {
			out.PageSize = env.Meta.Limit
		}
	} else {
		// Backend without meta: a single unpaginated page.
		out.TotalItems = len(items)
		if len(items) > 0 {
			out.TotalPages = 1
		}
	}
	return out
}

func classifyRequestError(ctx context.Context, err error) error {
	timeout := isTimeoutError(ctx, err)
	return &collection.TransportError{
		Op:      listOp,
		Timeout: timeout,
		Network: !timeout && isNetworkError(err),
		Err:     err,
	}
}

func isTimeoutError(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH)
}
