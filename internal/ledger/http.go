package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gosuda/turingarena/internal/domain"
)

// validateMethod is the contract method the relay invokes.
const validateMethod = "validateVotes"

// ErrRelayStatus is returned when the relay answers with a non-2xx status.
var ErrRelayStatus = errors.New("ledger: relay rejected settlement") //nolint:gochecknoglobals // sentinel error

// HTTPConfig configures the settlement relay endpoint.
type HTTPConfig struct {
	URL        string
	Secret     string //nolint:gosec // relay signing secret
	Issuer     string
	HTTPClient *http.Client
}

// HTTPClient posts settlements to a relay that holds the service wallet and
// performs the contract call. Requests carry an HS256 bearer token.
type HTTPClient struct {
	cfg HTTPConfig
}

type relayRequest struct {
	Method    string  `json:"method"`
	SessionID int64   `json:"session_id"`
	PlayerIDs []int64 `json:"player_ids"`
}

func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "turingarena"
	}
	return &HTTPClient{cfg: cfg}
}

func (c *HTTPClient) Submit(ctx context.Context, s domain.Settlement) error {
	body, err := json.Marshal(relayRequest{
		Method:    validateMethod,
		SessionID: s.SessionID,
		PlayerIDs: s.PlayerIDs,
	})
	if err != nil {
		return fmt.Errorf("ledger.HTTPClient.Submit: marshal: %w", err)
	}

	token, err := c.sign(s.SessionID, time.Now())
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ledger.HTTPClient.Submit: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("ledger.HTTPClient.Submit: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("ledger.HTTPClient.Submit: status %d: %s: %w", res.StatusCode, strings.TrimSpace(string(msg)), ErrRelayStatus)
	}

	return nil
}

func (c *HTTPClient) sign(sessionID int64, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    c.cfg.Issuer,
		Subject:   strconv.FormatInt(sessionID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("ledger.HTTPClient.sign: %w", err)
	}
	return signed, nil
}
