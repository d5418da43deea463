package approval

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Decision is the approver's verdict carried in a decision link.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a recognized decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// DefaultWindow is how long a decision link stays valid after issuance.
const DefaultWindow = time.Hour

// ErrInvalidToken is the only error verification returns. Signature
// mismatch, malformed parameters, and expired links look identical to the
// caller, so a rejected request leaks nothing about which check failed.
var ErrInvalidToken = errors.New("invalid approval token")

// Signer mints and verifies decision link tokens.
type Signer struct {
	secret []byte
	window time.Duration
}

// NewSigner creates a signer with the default link validity window.
func NewSigner(secret string) (*Signer, error) {
	return NewSignerWithWindow(secret, DefaultWindow)
}

// NewSignerWithWindow creates a signer whose links expire after window.
func NewSignerWithWindow(secret string, window time.Duration) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("approval secret must not be empty")
	}
	if window <= 0 {
		return nil, errors.New("approval window must be positive")
	}
	return &Signer{secret: []byte(secret), window: window}, nil
}

// Sign returns the hex token binding executionID to the issue time.
func (s *Signer) Sign(executionID string, issuedAt time.Time) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(executionID + ":" + strconv.FormatInt(issuedAt.Unix(), 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a token for executionID at the given issue time. Any defect
// yields ErrInvalidToken.
func (s *Signer) Verify(executionID, token string, issuedAt, now time.Time) error {
	want := s.Sign(executionID, issuedAt)
	if !hmac.Equal([]byte(token), []byte(want)) {
		return ErrInvalidToken
	}
	age := now.Sub(issuedAt)
	if age < 0 || age > s.window {
		return ErrInvalidToken
	}
	return nil
}

// VerifyQuery checks the raw query parameters of a decision link. The
// timestamp is the string form carried in the ts parameter.
func (s *Signer) VerifyQuery(executionID, token, ts string, now time.Time) error {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidToken
	}
	return s.Verify(executionID, token, time.Unix(unix, 0), now)
}

// Window returns how long links minted by this signer stay valid.
func (s *Signer) Window() time.Duration {
	return s.window
}

// Request is everything needed to render one decision link.
type Request struct {
	ExecutionID string
	Decision    Decision
	Token       string
	IssuedAt    time.Time
}

// NewRequest mints a signed decision link request. The approve and reject
// links for one execution share a token; holding either link means holding
// the notification that carries both.
func (s *Signer) NewRequest(executionID string, decision Decision, issuedAt time.Time) Request {
	return Request{
		ExecutionID: executionID,
		Decision:    decision,
		Token:       s.Sign(executionID, issuedAt),
		IssuedAt:    issuedAt,
	}
}

// URL renders the clickable decision link under base, the controller's
// externally reachable address.
func (r Request) URL(base string) string {
	v := url.Values{}
	v.Set("id", r.ExecutionID)
	v.Set("sig", r.Token)
	v.Set("ts", strconv.FormatInt(r.IssuedAt.Unix(), 10))
	v.Set("decision", string(r.Decision))
	return strings.TrimSuffix(base, "/") + "/approve?" + v.Encode()
}
