package ledger

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/features/attendance/derive"
	"solock-backend/internal/features/attendance/models"
	"solock-backend/internal/features/attendance/ops"
)

// Client is the HTTP Gateway implementation against a ledger node's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// operationRequest is the wire form of a signed operation.
type operationRequest struct {
	Kind            string `json:"kind"`
	SubmissionID    string `json:"submission_id"`
	Identity        string `json:"identity"` // base64
	DisplayName     string `json:"display_name,omitempty"`
	ProfileAddress  string `json:"profile_address"`
	RegistryAddress string `json:"registry_address,omitempty"`
	RecordAddress   string `json:"record_address,omitempty"`
	DayIndex        uint64 `json:"day_index,omitempty"`
	Signature       string `json:"signature"` // base64
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) ExecuteRegister(ctx context.Context, signed *SignedOperation) error {
	return c.executeOperation(ctx, signed)
}

func (c *Client) ExecuteCheckIn(ctx context.Context, signed *SignedOperation) error {
	return c.executeOperation(ctx, signed)
}

func (c *Client) executeOperation(ctx context.Context, signed *SignedOperation) error {
	op := signed.Op
	req := operationRequest{
		Kind:           string(op.Kind),
		SubmissionID:   op.SubmissionID,
		Identity:       base64.StdEncoding.EncodeToString(op.Identity),
		ProfileAddress: op.ProfileAddress.String(),
		Signature:      base64.StdEncoding.EncodeToString(signed.Signature),
	}
	switch op.Kind {
	case ops.KindRegister:
		req.DisplayName = op.DisplayName
		req.RegistryAddress = op.RegistryAddress.String()
	case ops.KindCheckIn:
		req.RecordAddress = op.RecordAddress.String()
		req.DayIndex = op.DayIndexHint
	}

	body, err := json.Marshal(req)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode operation")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/operations", bytes.NewReader(body))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return apperrors.NewTransportError("execute "+string(op.Kind), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		c.logger.Debug().
			Str("kind", string(op.Kind)).
			Str("submission_id", op.SubmissionID).
			Msg("Operation accepted by node")
		return nil
	}

	return c.decodeRejection(resp, string(op.Kind))
}

// decodeRejection turns a node error response into a typed rejection.
// Server-side failures are transient transport errors; everything with a
// known code is a deterministic rejection.
func (c *Client) decodeRejection(resp *http.Response, operation string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= http.StatusInternalServerError {
		return apperrors.NewTransportError(operation,
			fmt.Errorf("node returned %d: %s", resp.StatusCode, raw))
	}

	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error.Code == "" {
		return apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("unrecognized node rejection (%d)", resp.StatusCode)).
			WithDetail("body", string(raw))
	}

	code := rejectionCode(body.Error.Code)
	return apperrors.NewRejectedError(code, body.Error.Message).
		WithDetail("node_code", body.Error.Code)
}

func rejectionCode(nodeCode string) apperrors.ErrorCode {
	switch nodeCode {
	case "ALREADY_REGISTERED":
		return apperrors.ErrCodeAlreadyRegistered
	case "NOT_REGISTERED":
		return apperrors.ErrCodeNotRegistered
	case "ALREADY_CLOCKED_IN_TODAY":
		return apperrors.ErrCodeAlreadyClockedInToday
	case "DUPLICATE_SUBMISSION":
		return apperrors.ErrCodeDuplicateSubmission
	case "RECORD_ADDRESS_MISMATCH":
		return apperrors.ErrCodeRecordAddressMismatch
	case "UNAUTHORIZED":
		return apperrors.ErrCodeUnauthorized
	default:
		return apperrors.ErrCodeBadRequest
	}
}

func (c *Client) FetchConfirmation(ctx context.Context, submissionID string) (ConfirmationStatus, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.getJSON(ctx, "/v1/operations/"+submissionID, &out)
	if err != nil {
		if appErr, ok := apperrors.AsAppError(err); ok && appErr.IsNotFound() {
			return ConfirmationUnknown, nil
		}
		return ConfirmationUnknown, err
	}

	switch out.Status {
	case "confirmed":
		return ConfirmationConfirmed, nil
	case "pending":
		return ConfirmationPending, nil
	default:
		return ConfirmationUnknown, nil
	}
}

func (c *Client) FetchProfile(ctx context.Context, addr derive.Address) (*models.Profile, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/v1/accounts/"+addr.String(), &raw); err != nil {
		return nil, err
	}
	return decodeProfile(raw)
}

func (c *Client) FetchDailyRecord(ctx context.Context, addr derive.Address) (*models.DailyRecord, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/v1/accounts/"+addr.String(), &raw); err != nil {
		return nil, err
	}
	return decodeDailyRecord(raw)
}

func (c *Client) FetchAllProfiles(ctx context.Context) ([]models.Profile, error) {
	var out struct {
		Profiles []json.RawMessage `json:"profiles"`
	}
	if err := c.getJSON(ctx, "/v1/profiles", &out); err != nil {
		return nil, err
	}

	profiles := make([]models.Profile, 0, len(out.Profiles))
	for _, raw := range out.Profiles {
		p, err := decodeProfile(raw)
		if err != nil {
			// A single undecodable account must not poison the projection.
			c.logger.Warn().Err(err).Msg("Skipping undecodable profile account")
			continue
		}
		profiles = append(profiles, *p)
	}
	return profiles, nil
}

func (c *Client) FetchRegistry(ctx context.Context, addr derive.Address) (*models.SystemRegistry, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/v1/accounts/"+addr.String(), &raw); err != nil {
		return nil, err
	}
	return decodeRegistry(raw)
}

func (c *Client) FetchClock(ctx context.Context) (int64, error) {
	var out struct {
		EpochSeconds int64 `json:"epoch_seconds"`
	}
	if err := c.getJSON(ctx, "/v1/clock", &out); err != nil {
		return 0, err
	}
	return out.EpochSeconds, nil
}

func (c *Client) Ping(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.getJSON(ctx, "/v1/health", &out)
}

func (c *Client) getJSON(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewTransportError("fetch "+path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode node response")
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return apperrors.NewNotFoundError("account", path)
	case resp.StatusCode >= http.StatusInternalServerError:
		return apperrors.NewTransportError("fetch "+path,
			fmt.Errorf("node returned %d", resp.StatusCode))
	default:
		return apperrors.New(apperrors.ErrCodeInternal,
			fmt.Sprintf("unexpected node status %d for %s", resp.StatusCode, path))
	}
}
