// utils/response.go
package utils

import "github.com/gofiber/fiber/v2"

// ApiResponse is the envelope every REST reply uses.
type ApiResponse struct {
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
}

func Respond(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(ApiResponse{
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

func RespondError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ApiResponse{
		StatusCode: status,
		Message:    message,
	})
}
