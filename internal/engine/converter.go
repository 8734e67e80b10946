package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/tartampluch/go-hebrew-birthday/internal/config"
)

// Converter defines the contract for Gregorian/Hebrew date conversion.
// Implementations hold no session state and can be shared by every component.
type Converter interface {
	GregorianToHebrew(ctx context.Context, date time.Time, afterSunset bool) (HebrewDate, error)
	HebrewToGregorian(ctx context.Context, year int, month string, day int) (time.Time, error)
	CurrentHebrewYear(ctx context.Context) (int, error)
}

// HebcalClient implements Converter against the Hebcal converter API.
type HebcalClient struct {
	Client   *http.Client
	BaseURL  string
	Language string
	// Timeout bounds each individual try.
	Timeout  time.Duration
	MaxTries uint
	// RetryInterval is the initial backoff interval between tries.
	RetryInterval time.Duration

	Clock    Clock
	Location *time.Location
	Metrics  ConversionObserver
}

// ConversionObserver receives one notification per finished upstream call.
type ConversionObserver interface {
	ObserveConversion(direction string, err error, elapsed time.Duration)
}

// Conversion directions reported to the observer.
const (
	DirectionG2H = "g2h"
	DirectionH2G = "h2g"
)

// NewHebcalClient creates a client with the default endpoint, timeouts and retry policy.
func NewHebcalClient() *HebcalClient {
	return &HebcalClient{
		Client:        &http.Client{},
		BaseURL:       config.DefaultHebcalURL,
		Language:      config.DefaultHebcalLanguage,
		Timeout:       config.DefaultHebcalTimeout,
		MaxTries:      config.DefaultHebcalMaxTries,
		RetryInterval: config.DefaultRetryInterval,
		Clock:         RealClock{},
	}
}

type g2hResponse struct {
	Hebrew string `json:"hebrew"`
	HY     int    `json:"hy"`
	HM     string `json:"hm"`
	HD     int    `json:"hd"`
	Error  string `json:"error"`
}

type h2gResponse struct {
	GY    int    `json:"gy"`
	GM    int    `json:"gm"`
	GD    int    `json:"gd"`
	Error string `json:"error"`
}

// GregorianToHebrew converts a civil date, shifting to the next Hebrew day when afterSunset is set.
func (c *HebcalClient) GregorianToHebrew(ctx context.Context, date time.Time, afterSunset bool) (HebrewDate, error) {
	q := url.Values{}
	q.Set(config.ParamConfig, config.ValueJSON)
	q.Set(config.ParamGregYear, strconv.Itoa(date.Year()))
	q.Set(config.ParamGregMonth, strconv.Itoa(int(date.Month())))
	q.Set(config.ParamGregDay, strconv.Itoa(date.Day()))
	q.Set(config.ParamG2H, config.ValueOne)
	if c.Language != "" {
		q.Set(config.ParamLanguage, c.Language)
	}
	if afterSunset {
		q.Set(config.ParamAfterSunset, config.ValueOn)
	}

	var resp g2hResponse
	if err := c.call(ctx, DirectionG2H, q, &resp); err != nil {
		return HebrewDate{}, err
	}
	if resp.Hebrew == "" || resp.HY == 0 || resp.HM == "" || resp.HD == 0 {
		return HebrewDate{}, fmt.Errorf("%w: missing hebrew date fields %s", ErrConversionMalformed, resp.Error)
	}

	return HebrewDate{String: resp.Hebrew, Year: resp.HY, Month: resp.HM, Day: resp.HD}, nil
}

// HebrewToGregorian resolves the Gregorian civil date of a Hebrew date.
func (c *HebcalClient) HebrewToGregorian(ctx context.Context, year int, month string, day int) (time.Time, error) {
	q := url.Values{}
	q.Set(config.ParamConfig, config.ValueJSON)
	q.Set(config.ParamHebYear, strconv.Itoa(year))
	q.Set(config.ParamHebMonth, month)
	q.Set(config.ParamHebDay, strconv.Itoa(day))
	q.Set(config.ParamH2G, config.ValueOne)

	var resp h2gResponse
	if err := c.call(ctx, DirectionH2G, q, &resp); err != nil {
		return time.Time{}, err
	}
	if resp.GY == 0 || resp.GM < 1 || resp.GM > 12 || resp.GD < 1 || resp.GD > 31 {
		return time.Time{}, fmt.Errorf("%w: missing gregorian date fields %s", ErrConversionMalformed, resp.Error)
	}

	return time.Date(resp.GY, time.Month(resp.GM), resp.GD, 0, 0, 0, 0, time.UTC), nil
}

// CurrentHebrewYear converts today's date in the client's location.
func (c *HebcalClient) CurrentHebrewYear(ctx context.Context) (int, error) {
	h, err := c.GregorianToHebrew(ctx, today(c.Clock, c.Location), false)
	if err != nil {
		return 0, err
	}
	return h.Year, nil
}

// call performs one logical request with retries and decodes the JSON body into out.
// Transport failures and 5xx are retried; 4xx and undecodable bodies are permanent.
func (c *HebcalClient) call(ctx context.Context, direction string, q url.Values, out any) error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConversionUnavailable, config.ErrInvalidURL, err)
	}
	if u.Scheme != config.SchemeHTTP && u.Scheme != config.SchemeHTTPS {
		return fmt.Errorf("%w: %s: %s", ErrConversionUnavailable, config.ErrProtocol, u.Scheme)
	}
	u.RawQuery = q.Encode()
	target := u.String()
	safeURL := u.Scheme + "://" + u.Host + u.Path

	log := slog.With(
		slog.String(config.LogKeyComponent, config.CompConverter),
		slog.String(config.LogKeyURL, safeURL),
	)
	log.Debug(config.MsgConvertRequest, config.LogKeyReason, direction)

	maxTries := c.MaxTries
	if maxTries == 0 {
		maxTries = 1
	}
	policy := backoff.NewExponentialBackOff()
	if c.RetryInterval > 0 {
		policy.InitialInterval = c.RetryInterval
	}

	start := time.Now()
	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, c.try(ctx, target, out)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn(config.MsgConvertRetry,
				config.LogKeyAttempt, attempt,
				config.LogKeyDuration, next.Milliseconds(),
				config.LogKeyError, err,
			)
		}),
	)

	if c.Metrics != nil {
		c.Metrics.ObserveConversion(direction, err, time.Since(start))
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConversionMalformed) {
		return err
	}
	if errors.Is(err, ErrConversionUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrConversionUnavailable, err)
}

func (c *HebcalClient) try(ctx context.Context, target string, out any) error {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("%w: failed to create request: %v", ErrConversionUnavailable, err))
	}
	req.Header.Set(config.HeaderUserAgent, config.UserAgent)
	req.Header.Set(config.HeaderAccept, config.MimeJSON)

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("network error during conversion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		slog.Warn(config.MsgUpstreamStatus,
			config.LogKeyComponent, config.CompConverter,
			slog.Int(config.LogKeyStatus, resp.StatusCode),
		)
		statusErr := fmt.Errorf("%w: unexpected status %d", ErrConversionUnavailable, resp.StatusCode)
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, config.MaxHTTPResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read conversion response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrConversionMalformed, err))
	}
	return nil
}
