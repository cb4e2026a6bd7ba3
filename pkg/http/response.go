package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// DataResponse writes API response with status and data. The envelope status mirrors
// the HTTP status.
func DataResponse(c echo.Context, statusCode int, data interface{}) error {
	return c.JSON(statusCode, APIResponse{
		Status:  statusCode,
		Message: http.StatusText(statusCode),
		Data:    data,
	})
}

// SuccessResponse writes success response.
func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

// BadRequestResponse writes validation errors.
func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// WarningsResponse writes a success response carrying advisory warnings next to the data.
func WarningsResponse(c echo.Context, data interface{}, warnings []string) error {
	return c.JSON(http.StatusOK, APIResponse{
		Status:   http.StatusOK,
		Message:  http.StatusText(http.StatusOK),
		Data:     data,
		Warnings: warnings,
	})
}

// AppErrorResponse writes application error response. A "retry_after" param in seconds
// is mirrored into the Retry-After header.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return DataResponse(c, http.StatusInternalServerError, "Something went wrong")
	}
	if secs, ok := appErr.Params["retry_after"].(int); ok && secs > 0 {
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
