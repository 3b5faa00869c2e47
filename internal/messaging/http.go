package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sendPath      = "/internal/messages/send"
	tokenIssuer   = "crm-gateway"
	tokenAudience = "messaging"
	tokenTTL      = time.Minute
)

// ServiceClaims identify the gateway and the tenant a send is made for.
type ServiceClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// SendError is a failure reported by the delivery subsystem.
type SendError struct {
	Status  int
	Message string
}

func (e *SendError) Error() string { return e.Message }

// HTTPSender calls the delivery subsystem over HTTP, authenticating each call
// with a short-lived HS256 service token.
type HTTPSender struct {
	baseURL    string
	secret     []byte
	httpClient *http.Client
	now        func() time.Time
}

var _ Sender = (*HTTPSender)(nil)

func NewHTTPSender(baseURL, signingSecret string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secret:     []byte(signingSecret),
		httpClient: &http.Client{Timeout: timeout},
		now:        time.Now,
	}
}

func (s *HTTPSender) serviceToken(req SendRequest) (string, error) {
	now := s.now()
	claims := ServiceClaims{
		TenantID: req.TenantID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   req.TenantID.String(),
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HTTPSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	if req.MessageType == "" {
		req.MessageType = "text"
	}

	token, err := s.serviceToken(req)
	if err != nil {
		return SendResult{}, errors.Wrap(err, "sign service token")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return SendResult{}, errors.Wrap(err, "marshal send request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+sendPath, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, errors.Wrap(err, "create send request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return SendResult{}, errors.Wrap(err, "send message")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return SendResult{}, errors.Wrap(err, "read send response")
	}

	if resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		msg := fmt.Sprintf("message delivery failed with status %d", resp.StatusCode)
		if json.Unmarshal(raw, &failure) == nil && failure.Error != "" {
			msg = failure.Error
		}
		return SendResult{}, &SendError{Status: resp.StatusCode, Message: msg}
	}

	var out SendResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return SendResult{}, errors.Wrap(err, "decode send response")
	}
	if out.MessageID == "" {
		return SendResult{}, &SendError{Status: resp.StatusCode, Message: "message delivery returned no message id"}
	}
	return out, nil
}
