// Package backend is a client for the call orchestration backend that
// places, transcribes and summarizes the calls.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carefollow/callboard/internal/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
)

const apiPrefix = "/customer_app_api/"

// Error is returned when the backend did not accept a request.
type Error struct {
	// StatusCode is the HTTP status code or 0 if no response was received.
	StatusCode int
	Message    string
	// Temporary is set for transport errors and 5xx responses.
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("backend: %s", e.Err)
	case e.Message != "":
		return fmt.Sprintf("backend: status %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("backend: status %d", e.StatusCode)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// IsTemporary reports whether err is a backend error worth retrying later.
func IsTemporary(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Temporary
	}

	return false
}

type Client struct {
	baseURL    string
	token      string
	maxElapsed time.Duration
	httpClient *http.Client
}

// New returns a client for the backend at baseURL. Failed requests are
// retried until maxElapsed passed. A maxElapsed of zero disables retries.
func New(baseURL, token string, maxElapsed time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		maxElapsed: maxElapsed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// status is the union of all success indicators used by the backend.
type status struct {
	Message             *string `json:"message"`
	RegistrationMessage *string `json:"registration_message"`
}

// checkResponse decides whether a response signals success. Any non-2xx
// status is a failure, so is a message or registration_message field that
// is present but not "success".
func checkResponse(code int, body []byte) error {
	var s status
	// non-JSON bodies only carry the status code
	_ = json.Unmarshal(body, &s)

	if code < 200 || code > 299 {
		msg := strings.TrimSpace(string(body))
		if s.Message != nil {
			msg = *s.Message
		}

		return &Error{
			StatusCode: code,
			Message:    msg,
			Temporary:  code >= 500,
		}
	}

	for _, m := range []*string{s.Message, s.RegistrationMessage} {
		if m != nil && *m != "success" {
			return &Error{
				StatusCode: code,
				Message:    *m,
			}
		}
	}

	return nil
}

func (cli *Client) backoff(ctx context.Context) backoff.BackOff {
	if cli.maxElapsed <= 0 {
		return backoff.WithContext(&backoff.StopBackOff{}, ctx)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = cli.maxElapsed

	return backoff.WithContext(bo, ctx)
}

// do posts payload to path and decodes the response into target, which
// may be nil.
func (cli *Client) do(ctx context.Context, path string, payload any, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	url := cli.baseURL + apiPrefix + path
	l := log.L(ctx).WithField("endpoint", path)

	var response []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}

		req.Header.Set("Content-Type", "application/json")
		if cli.token != "" {
			req.Header.Set("Authorization", "Bearer "+cli.token)
		}

		res, err := cli.httpClient.Do(req)
		if err != nil {
			l.Warnf("request failed: %s", err)

			return &Error{Temporary: true, Err: err}
		}
		defer res.Body.Close()

		response, err = io.ReadAll(res.Body)
		if err != nil {
			return &Error{Temporary: true, StatusCode: res.StatusCode, Err: err}
		}

		if err := checkResponse(res.StatusCode, response); err != nil {
			if IsTemporary(err) {
				l.Warnf("backend returned %d, retrying", res.StatusCode)

				return err
			}

			return backoff.Permanent(err)
		}

		return nil
	}

	if err := backoff.Retry(op, cli.backoff(ctx)); err != nil {
		// backoff.Retry returns ctx.Err() once the context is done
		var be *Error
		if !errors.As(err, &be) {
			return &Error{Temporary: true, Err: err}
		}

		return err
	}

	if target == nil || len(bytes.TrimSpace(response)) == 0 {
		return nil
	}

	if err := json.Unmarshal(response, target); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}

	return nil
}

// ScheduleRequest describes a follow-up call to place.
type ScheduleRequest struct {
	OrganisationID string   `json:"organisation_id" validate:"required"`
	PatientID      string   `json:"patient_id,omitempty"`
	PatientName    string   `json:"patient_name" validate:"required"`
	PhoneNumber    string   `json:"phone_number" validate:"required,e164"`
	Objectives     []string `json:"objectives" validate:"required,min=1,dive,required"`
	TemplateTitle  string   `json:"template_title,omitempty"`
	// Date and Time are the local schedule in the format 2006-01-02 and
	// 15:04. An empty date means as soon as possible.
	Date         string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Time         string `json:"time,omitempty" validate:"omitempty,datetime=15:04"`
	TwilioNumber string `json:"twilio_number,omitempty"`
}

type ScheduleResult struct {
	CallID  string `json:"call_id"`
	Message string `json:"message,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ScheduleCall asks the backend to place a follow-up call. Requests that
// violate their validate tags are rejected without contacting the backend.
func (cli *Client) ScheduleCall(ctx context.Context, req ScheduleRequest) (*ScheduleResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid schedule request: %w", err)
	}

	var res ScheduleResult
	if err := cli.do(ctx, "follow_ups/schedule_call", req, &res); err != nil {
		return nil, err
	}

	return &res, nil
}

type callRef struct {
	OrganisationID string `json:"organisation_id"`
	CallID         string `json:"call_id"`
}

func (cli *Client) DeleteQueuedCall(ctx context.Context, orgID, callID string) error {
	return cli.do(ctx, "follow_ups/delete_queued_call", callRef{
		OrganisationID: orgID,
		CallID:         callID,
	}, nil)
}

func (cli *Client) RetryCall(ctx context.Context, orgID, callID string) error {
	return cli.do(ctx, "follow_ups/retry_call", callRef{
		OrganisationID: orgID,
		CallID:         callID,
	}, nil)
}

func (cli *Client) MarkViewed(ctx context.Context, orgID, callID string, viewed bool) error {
	return cli.do(ctx, "calls/mark_viewed", struct {
		callRef
		Viewed bool `json:"viewed"`
	}{
		callRef: callRef{OrganisationID: orgID, CallID: callID},
		Viewed:  viewed,
	}, nil)
}

// GenerateObjectives turns free-text instructions into a list of call
// objectives.
func (cli *Client) GenerateObjectives(ctx context.Context, instructions string) ([]string, error) {
	var res struct {
		Objectives []string `json:"objectives"`
	}

	if err := cli.do(ctx, "objectives/generate", map[string]string{
		"instructions": instructions,
	}, &res); err != nil {
		return nil, err
	}

	if res.Objectives == nil {
		res.Objectives = []string{}
	}

	return res.Objectives, nil
}
