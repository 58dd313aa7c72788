package middleware

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/linguacast/api/internal/admission"
	"github.com/linguacast/api/pkg/response"
)

// Admit gates generation endpoints through the admission controller.
// Rejections answer 429 with the controller's retry metadata and a
// Retry-After header; nothing here is retried on the user's behalf.
func Admit(ctrl *admission.Controller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := GetUserID(c)
		if userID == "" {
			return response.Unauthorized(c, "Missing user identity")
		}

		err := ctrl.Admit(c.Context(), userID, GetUserRole(c))
		if err == nil {
			return c.Next()
		}

		var limitErr *admission.LimitError
		if errors.As(err, &limitErr) {
			c.Set("Retry-After", fmt.Sprintf("%d", limitErr.RetryAfterSeconds))
			return response.TooManyRequests(c, limitErr.Error(), limitErr)
		}
		return response.ServiceError(c, "Admission check failed")
	}
}
