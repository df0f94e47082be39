package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every JSON endpoint returns.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListDataResponse is one page of rows plus the unpaged total.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

func envelope(status int, data interface{}) APIResponse {
	return APIResponse{Status: status, Message: http.StatusText(status), Data: data}
}

// EncodeEnvelope marshals data the way DataResponse would write it, for callers
// that cache response bodies.
func EncodeEnvelope(status int, data interface{}) ([]byte, error) {
	return json.Marshal(envelope(status, data))
}

// DataResponse writes data in the envelope with the given status.
func DataResponse(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, envelope(status, data))
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// ListResponse writes one page of rows.
func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return SuccessResponse(c, ListDataResponse{Rows: rows, Total: total})
}

func BadRequestResponse(c echo.Context, errs []ValidationError) error {
	return DataResponse(c, http.StatusBadRequest, errs)
}

// AppErrorResponse answers with the status err carries. Any other error becomes
// an opaque 500; callers log the cause.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Errorf(http.StatusInternalServerError, "internal error")
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
