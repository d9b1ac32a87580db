// Package submitter posts accepted nonces to the pool/wallet and retries a
// bounded number of times on transport failure.
//
// Grounded on original_source/src/requests.rs's submit_nonce: the query
// string shape (accountId/nonce/secretPhrase/blockheight, plus a deadline
// parameter only in pool mode), the plain retry-without-backoff loop ("No
// exponential backoff is required" per the distilled spec — kept as a
// flat loop rather than reaching for a backoff library), and distinguishing
// a deadline-mismatch response from a structured pool error from a bare
// transport failure.
package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"scavenge/internal/errs"
)

// MaxRetries is the number of additional attempts made after an initial
// submission fails with a transport error, matching the source's
// `retried < 3` cutoff.
const MaxRetries = 3

type submitResponse struct {
	Deadline uint64 `json:"deadline"`
}

type poolErrorWrapper struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Submitter posts nonces found by the pipeline to the pool/wallet.
type Submitter struct {
	baseURL      string
	secretPhrase string
	httpClient   *http.Client
	log          zerolog.Logger
}

// New builds a Submitter against baseURL with the given request timeout.
func New(baseURL, secretPhrase string, timeout time.Duration, log zerolog.Logger) *Submitter {
	return &Submitter{
		baseURL:      baseURL,
		secretPhrase: secretPhrase,
		httpClient:   &http.Client{Timeout: timeout},
		log:          log.With().Str("component", "submitter").Logger(),
	}
}

// Submit posts one nonce, retrying up to MaxRetries times on transport
// failure. A structured pool rejection is logged and returned; a deadline
// mismatch is logged as a warning and counts as success. Neither is
// retried, since retrying wouldn't change the pool's answer.
func (s *Submitter) Submit(ctx context.Context, accountID, nonce, height, deadline uint64) error {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		err := s.attempt(ctx, accountID, nonce, height, deadline)
		if err == nil {
			return nil
		}

		if eerr, ok := err.(*errs.Error); ok && eerr.Type == errs.PoolError {
			return err
		}

		lastErr = err
		if attempt < MaxRetries {
			s.log.Warn().Err(err).Int("attempt", attempt+1).Msg("submit: error submitting nonce, retrying")
		}
	}

	s.log.Error().Err(lastErr).Msg("submit: error submitting nonce, exhausted retries")
	return errs.Wrap(errs.TransportError, "submit: exhausted retries", lastErr, map[string]interface{}{
		"height": height, "nonce": nonce,
	})
}

func (s *Submitter) attempt(ctx context.Context, accountID, nonce, height, deadline uint64) error {
	q := url.Values{}
	q.Set("requestType", "submitNonce")
	q.Set("accountId", strconv.FormatUint(accountID, 10))
	q.Set("nonce", strconv.FormatUint(nonce, 10))
	q.Set("secretPhrase", s.secretPhrase)
	q.Set("blockheight", strconv.FormatUint(height, 10))
	if s.secretPhrase == "" {
		q.Set("deadline", strconv.FormatUint(deadline, 10))
	}

	reqURL := s.baseURL + "/burst?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, nil)
	if err != nil {
		return errs.Wrap(errs.TransportError, "failed to build submitNonce request", err, nil)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return errs.Wrap(errs.Timeout, "submitNonce timed out", err, nil)
		}
		return errs.Wrap(errs.TransportError, "submitNonce request failed", err, nil)
	}
	defer resp.Body.Close()

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errs.Wrap(errs.TransportError, "failed to decode submitNonce response", err, nil)
	}

	var wrapped poolErrorWrapper
	if json.Unmarshal(body, &wrapped) == nil && wrapped.Error.Message != "" {
		s.log.Error().
			Uint64("height", height).Uint64("nonce", nonce).Uint64("deadline", deadline).
			Int("code", wrapped.Error.Code).Str("message", wrapped.Error.Message).
			Msg("submit: error submitting nonce")
		return errs.New(errs.PoolError, wrapped.Error.Message, map[string]interface{}{
			"code": wrapped.Error.Code,
		})
	}

	var ok submitResponse
	if err := json.Unmarshal(body, &ok); err != nil {
		return errs.Wrap(errs.TransportError, "submitNonce response was neither an error nor a deadline", err, nil)
	}

	if ok.Deadline != deadline {
		s.log.Warn().
			Uint64("deadline_miner", deadline).Uint64("deadline_pool", ok.Deadline).
			Msg("pool: deadlines mismatch")
	}

	return nil
}

func (s *Submitter) String() string {
	return fmt.Sprintf("submitter.Submitter{url=%s pool=%v}", s.baseURL, s.secretPhrase == "")
}
