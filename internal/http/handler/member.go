package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kbapi/internal/http/middleware"
	"kbapi/internal/service"
)

type grantRequest struct {
	Tags []string `json:"tags" validate:"required,min=1,max=32,dive,required,max=64"`
}

// GrantTags gives a member access tags, creating tags that do not exist yet.
//
// @Summary  Grant access tags
// @Tags     access
// @Accept   json
// @Param    tenant path string       true "Tenant subdomain"
// @Param    userId path string       true "Member user ID"
// @Param    body   body grantRequest true "Tags"
// @Success  204
// @Failure  404 {object} errorPayload
// @Router   /tenants/{tenant}/members/{userId}/tags [put]
func GrantTags(acc AccessResolver) fiber.Handler {
	return memberTags(acc.Grant)
}

// RevokeTags removes access tags from a member.
//
// @Summary  Revoke access tags
// @Tags     access
// @Accept   json
// @Param    tenant path string       true "Tenant subdomain"
// @Param    userId path string       true "Member user ID"
// @Param    body   body grantRequest true "Tags"
// @Success  204
// @Router   /tenants/{tenant}/members/{userId}/tags [delete]
func RevokeTags(acc AccessResolver) fiber.Handler {
	return memberTags(acc.Revoke)
}

func memberTags(apply func(ctx context.Context, tenantID, userID string, names []string) error) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Params("userId")
		if _, err := uuid.Parse(userID); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		var req grantRequest
		if err := c.BodyParser(&req); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return validationError(c, err)
		}

		names := service.NormalizeTagNames(req.Tags)
		if err := apply(c.UserContext(), middleware.CurrentTenant(c).ID, userID, names); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
