// Package coordinator polls the pool/wallet for mining info, detects round
// changes, and tracks the best deadline seen for the current round.
//
// The getMiningInfo shape and its string-or-int base_target/height fields
// are grounded on original_source/src/requests.rs's MiningInfo struct and
// from_str_or_int visitor; the plain net/http client with an explicit
// timeout and status-code handling is grounded on the teacher's
// internal/client/api.go APIClient.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"scavenge/internal/errs"
	"scavenge/internal/pipeline"
)

// MiningInfo mirrors the pool's getMiningInfo response. BaseTarget and
// Height may arrive as either a JSON string or a JSON number depending on
// the pool software, so they use flexibleUint64.
type MiningInfo struct {
	GenerationSignature string         `json:"generationSignature"`
	BaseTarget          flexibleUint64 `json:"baseTarget"`
	Height              flexibleUint64 `json:"height"`
	TargetDeadline      uint64         `json:"targetDeadline"`
}

// flexibleUint64 decodes a uint64 from either a JSON string or number,
// replicating requests.rs's from_str_or_int deserializer.
type flexibleUint64 uint64

func (f *flexibleUint64) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexibleUint64(v)
		return nil
	}
	var v uint64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = flexibleUint64(v)
	return nil
}

// Round is a decoded, parsed snapshot of one getMiningInfo response, ready
// for the reader/worker pipeline to consume. Scoop and TargetDeadline are
// derived values: Scoop is the protocol-defined function of (gensig,
// height), and TargetDeadline is the server's value capped by the local
// config value, whichever is lower.
type Round struct {
	Height         uint64
	BaseTarget     uint64
	GenSig         [32]byte
	Scoop          uint32
	TargetDeadline uint64
}

// Client polls getMiningInfo and tracks acceptance state for submission.
type Client struct {
	baseURL            string
	secretPhrase       string
	localTargetDeadline uint64
	httpClient         *http.Client
	log                zerolog.Logger

	mu            sync.Mutex
	currentRound  Round
	bestDeadlines map[uint64]uint64 // height -> best deadline seen so far
}

// NewClient builds a Client against baseURL with the given request
// timeout. localTargetDeadline is the operator's configured cap (§6
// "target_deadline: local cap, combined with the server's"); pass
// ^uint64(0) for no local cap.
func NewClient(baseURL, secretPhrase string, localTargetDeadline uint64, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:             baseURL,
		secretPhrase:        secretPhrase,
		localTargetDeadline: localTargetDeadline,
		httpClient:          &http.Client{Timeout: timeout},
		log:                 log.With().Str("component", "coordinator").Logger(),
		bestDeadlines:       make(map[uint64]uint64),
	}
}

// FetchMiningInfo performs one getMiningInfo GET request and decodes it.
func (c *Client) FetchMiningInfo(ctx context.Context) (Round, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/burst?requestType=getMiningInfo", nil)
	if err != nil {
		return Round{}, errs.Wrap(errs.TransportError, "failed to build getMiningInfo request", err, nil)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Round{}, errs.Wrap(errs.Timeout, "getMiningInfo timed out", err, nil)
		}
		return Round{}, errs.Wrap(errs.TransportError, "getMiningInfo request failed", err, nil)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Round{}, errs.New(errs.TransportError, "getMiningInfo returned a non-200 status", map[string]interface{}{
			"status": resp.StatusCode,
		})
	}

	var info MiningInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return Round{}, errs.Wrap(errs.TransportError, "failed to decode getMiningInfo response", err, nil)
	}

	gensig, err := decodeGenSig(info.GenerationSignature)
	if err != nil {
		return Round{}, err
	}

	targetDeadline := info.TargetDeadline
	if targetDeadline == 0 {
		targetDeadline = ^uint64(0)
	}
	if c.localTargetDeadline < targetDeadline {
		targetDeadline = c.localTargetDeadline
	}

	height := uint64(info.Height)
	return Round{
		Height:         height,
		BaseTarget:     uint64(info.BaseTarget),
		GenSig:         gensig,
		Scoop:          computeScoop(gensig, height),
		TargetDeadline: targetDeadline,
	}, nil
}

// computeScoop is the protocol-defined function mapping a round's
// generation signature and height to a scoop number in [0, 4096). The
// real Burst rule derives it from the first bytes of SHA-256(gensig ∥
// height); like the deadline kernel, the actual cryptographic primitive is
// out of scope, so this is a deterministic stand-in that takes the last 8
// bytes of SHA-256(gensig ∥ big-endian height) modulo 4096.
func computeScoop(gensig [32]byte, height uint64) uint32 {
	var heightBytes [8]byte
	binary.BigEndian.PutUint64(heightBytes[:], height)

	h := sha256.New()
	h.Write(gensig[:])
	h.Write(heightBytes[:])
	sum := h.Sum(nil)

	scoopNum := binary.BigEndian.Uint64(sum[len(sum)-8:])
	return uint32(scoopNum % 4096)
}

func decodeGenSig(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 32 {
		return out, errs.New(errs.TransportError, "generationSignature is not 32 bytes of hex", map[string]interface{}{
			"generationSignature": s,
		})
	}
	copy(out[:], raw)
	return out, nil
}

// Poll blocks, polling getMiningInfo at interval, until ctx is done. Each
// time the height or generation signature changes from the last observed
// round, onRoundChange is invoked with the new Round.
func (c *Client) Poll(ctx context.Context, interval time.Duration, onRoundChange func(Round)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		round, err := c.FetchMiningInfo(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("getMiningInfo failed, will retry next interval")
		} else if c.observeRound(round) {
			onRoundChange(round)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// observeRound reports whether round is a change from the last one seen,
// and resets the per-height best-deadline tracker when it is.
func (c *Client) observeRound(round Round) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if round.Height == c.currentRound.Height && round.GenSig == c.currentRound.GenSig {
		return false
	}
	c.currentRound = round
	c.bestDeadlines[round.Height] = ^uint64(0)
	return true
}

// CurrentRound returns the most recently observed round.
func (c *Client) CurrentRound() Round {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentRound
}

// Consider records nd as a candidate for submission. It returns true only
// when nd is for the active height, beats every deadline previously seen
// for that height, and passes the protocol's acceptable-deadline filter:
// deadline ≤ target_deadline × base_target.
func (c *Client) Consider(nd pipeline.NonceData) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if nd.Height != c.currentRound.Height {
		return false
	}

	if nd.Deadline > saturatingMul(c.currentRound.TargetDeadline, c.currentRound.BaseTarget) {
		return false
	}

	best, ok := c.bestDeadlines[nd.Height]
	if !ok || nd.Deadline < best {
		c.bestDeadlines[nd.Height] = nd.Deadline
		return true
	}
	return false
}

// saturatingMul multiplies two uint64s, returning the maximum uint64
// instead of wrapping on overflow — the acceptable-deadline filter must
// stay permissive when target_deadline is left at its ^uint64(0) default.
func saturatingMul(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}
	product := a * b
	if product/a != b {
		return ^uint64(0)
	}
	return product
}

func (c *Client) String() string {
	return fmt.Sprintf("coordinator.Client{url=%s pool=%v}", c.baseURL, c.secretPhrase == "")
}
