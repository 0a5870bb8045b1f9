package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/app/repository"
	"github.com/planboard/planboard/internal/pkg/usercontext"
)

// HandleCompetitorList lists the caller's tracked competitor profiles.
func HandleCompetitorList(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	repo := repository.GetGlobalFactory().GetCompetitorRepository()
	competitors, err := repo.GetByUserID(userID)
	if err != nil {
		log.Errorf("competitor list failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"competitors": competitors})
}

// HandleCompetitorCreate adds a competitor profile for the caller.
func HandleCompetitorCreate(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)

	var competitor models.Competitor
	if err := c.BodyParser(&competitor); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	competitor.ID = 0
	competitor.UUID = uuid.NewString()
	competitor.UserID = userID

	if err := competitor.Validate(); err != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	repo := repository.GetGlobalFactory().GetCompetitorRepository()
	if err := repo.Create(&competitor); err != nil {
		log.Errorf("competitor create failed for user %d: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.Status(fiber.StatusCreated).JSON(competitor)
}

// HandleCompetitorDelete removes a competitor profile owned by the caller.
func HandleCompetitorDelete(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	id := c.Params("id")

	repo := repository.GetGlobalFactory().GetCompetitorRepository()
	competitor, err := repo.GetByUUID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Errorf("competitor lookup failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if competitor.UserID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
	}

	if err := repo.DeleteByUUID(userID, id); err != nil {
		log.Errorf("competitor delete failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	return c.JSON(fiber.Map{"ok": true})
}
