package sheets

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrCredentialsMissing means neither a client-secrets file nor a client ID/secret pair was provided.
	ErrCredentialsMissing = errors.New("google credentials not found: download credentials.json from Google Cloud Console or set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")

	// ErrNotAuthenticated means no token is available.
	ErrNotAuthenticated = errors.New("not authenticated with Google Sheets: please authenticate first")

	// ErrAuthExpired means the stored token could not be refreshed.
	ErrAuthExpired = errors.New("google authorization expired: please authenticate again")

	// ErrStateMismatch means an OAuth callback did not match a pending flow.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrSheetNameRequired means the spreadsheet title was empty.
	ErrSheetNameRequired = errors.New("please enter a Google Sheet name")
)

// APIError carries the message returned by a Google API call.
type APIError struct {
	Op      string
	Code    int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google sheets API error (%s, HTTP %d): %s", e.Op, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// wrapAPIError converts transport and API failures into package errors.
func wrapAPIError(op string, err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		return &APIError{Op: op, Code: gerr.Code, Message: msg, Err: err}
	}

	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	}

	return fmt.Errorf("google sheets %s: %w", op, err)
}
