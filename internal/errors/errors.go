package errors

import "fmt"

type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code, message string, cause ...error) *AppError {
	var c error
	if len(cause) > 0 {
		c = cause[0]
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   c,
	}
}

var (
	ErrConfigNotFound = &AppError{Code: "CONFIG_001", Message: "configuration not found"}
	ErrConfigInvalid  = &AppError{Code: "CONFIG_002", Message: "invalid configuration"}

	ErrUnauthorized       = &AppError{Code: "AUTH_001", Message: "unauthorized"}
	ErrForbidden          = &AppError{Code: "AUTH_002", Message: "forbidden"}
	ErrInvalidCredentials = &AppError{Code: "AUTH_003", Message: "invalid email or password"}
	ErrAccountSuspended   = &AppError{Code: "AUTH_004", Message: "account is suspended, contact an administrator"}

	ErrUserNotFound = &AppError{Code: "USER_001", Message: "user not found"}
	ErrUserExists   = &AppError{Code: "USER_002", Message: "email already registered"}
	ErrWeakPassword = &AppError{Code: "USER_003", Message: "password does not meet requirements"}

	ErrNoFiles          = &AppError{Code: "UPLOAD_001", Message: "no files in request"}
	ErrTooManyFiles     = &AppError{Code: "UPLOAD_002", Message: "too many files in one request"}
	ErrBadFileType      = &AppError{Code: "UPLOAD_003", Message: "file type not allowed"}
	ErrBadDocumentType  = &AppError{Code: "UPLOAD_004", Message: "unknown document type"}

	ErrDocumentNotFound = &AppError{Code: "DOC_001", Message: "document not found"}
	ErrDocumentPending  = &AppError{Code: "DOC_002", Message: "document still processing"}

	ErrProviderNotConfigured = &AppError{Code: "VISION_001", Message: "no vision provider configured"}
	ErrProviderUnavailable   = &AppError{Code: "VISION_002", Message: "vision provider unavailable"}
	ErrRateLimited           = &AppError{Code: "VISION_003", Message: "rate limit exceeded"}
	ErrExtractionFailed      = &AppError{Code: "VISION_004", Message: "extraction failed"}

	ErrSheetsUnavailable = &AppError{Code: "SHEETS_001", Message: "spreadsheet service unavailable"}
	ErrSheetsAppend      = &AppError{Code: "SHEETS_002", Message: "failed to append row to worksheet"}

	ErrExportFailed = &AppError{Code: "EXPORT_001", Message: "export failed"}

	ErrNotFound   = &AppError{Code: "GEN_001", Message: "resource not found"}
	ErrBadRequest = &AppError{Code: "GEN_002", Message: "bad request"}
	ErrInternal   = &AppError{Code: "GEN_003", Message: "internal error"}
)

func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// HTTPStatus maps stable error codes onto HTTP status codes. Unknown
// codes fall through to 500.
func HTTPStatus(err error) int {
	appErr, ok := err.(*AppError)
	if !ok {
		return 500
	}
	switch appErr.Code {
	case "AUTH_001", "AUTH_003":
		return 401
	case "AUTH_002", "AUTH_004":
		return 403
	case "USER_001", "DOC_001", "GEN_001":
		return 404
	case "USER_002", "DOC_002":
		return 409
	case "USER_003", "UPLOAD_001", "UPLOAD_002", "UPLOAD_003", "UPLOAD_004", "GEN_002":
		return 400
	case "VISION_003":
		return 429
	case "SHEETS_001", "SHEETS_002", "VISION_002":
		return 502
	default:
		return 500
	}
}
