// Package jsend renders JSend envelopes and maps classified errors onto
// HTTP statuses.
package jsend

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/miniwallet/internal/apperr"
)

const (
	statusSuccess = "success"
	statusFail    = "fail"
	statusError   = "error"
)

// Success writes {"status":"success","data":data}.
func Success(c *fiber.Ctx, code int, data any) error {
	return c.Status(code).JSON(fiber.Map{"status": statusSuccess, "data": data})
}

// Fail writes {"status":"fail","data":{"error":message}}.
func Fail(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{"status": statusFail, "data": fiber.Map{"error": message}})
}

// Error writes {"status":"error","message":message}.
func Error(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(fiber.Map{"status": statusError, "message": message})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind apperr.Kind) int {
	switch {
	case kind == apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case kind == apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	case kind.ClientCorrectable():
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Render writes err as a fail envelope when the caller can correct it and as
// an error envelope otherwise. Internal details never reach the client.
func Render(c *fiber.Ctx, err error) error {
	kind := apperr.KindOf(err)
	code := StatusFor(kind)
	if code < http.StatusInternalServerError {
		return Fail(c, code, apperr.Message(err))
	}
	return Error(c, code, apperr.Message(err))
}

// ErrorHandler is a fiber.ErrorHandler that keeps every response, including
// routing and middleware failures, inside a JSend envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		if fe.Code >= http.StatusInternalServerError {
			return Error(c, fe.Code, fe.Message)
		}
		return Fail(c, fe.Code, fe.Message)
	}
	return Render(c, err)
}
