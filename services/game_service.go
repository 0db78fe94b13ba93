// services/game_service.go
package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"

	"game-challenge-system/models"
	"game-challenge-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// GameService manages the catalog of games challenges can be bet on.
type GameService struct {
	DB *gorm.DB
}

func NewGameService(db *gorm.DB) *GameService {
	return &GameService{DB: db}
}

// GetGame resolves a catalog entry by id.
func (s *GameService) GetGame(id string) (*models.Game, error) {
	var game models.Game
	if err := s.DB.First(&game, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Resource: "game"}
		}
		return nil, err
	}
	return &game, nil
}

// --- HTTP handlers ---

// RegisterGame creates a catalog entry (Admin only). Accepts multipart
// form data with an optional logo file pushed to R2.
func (s *GameService) RegisterGame(c *fiber.Ctx) error {
	title := c.FormValue("title")
	playURL := c.FormValue("play_url")
	if title == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title is required"})
	}

	game := models.Game{
		ID:      uuid.NewString(),
		Title:   title,
		Slug:    slug.Make(title),
		PlayURL: playURL,
		Active:  true,
	}

	if fileHeader, err := c.FormFile("logo"); err == nil {
		key := fmt.Sprintf("game-logos/%s%s", game.ID, filepath.Ext(fileHeader.Filename))
		url, err := utils.UploadFileToR2(fileHeader, key)
		if err != nil {
			log.Printf("R2 upload failed for game logo %s: %v", game.ID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to upload logo"})
		}
		game.ImageURL = url
	}

	if err := s.DB.Create(&game).Error; err != nil {
		log.Printf("DB Error creating game: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to create game"})
	}

	return c.Status(fiber.StatusCreated).JSON(game)
}

// ListGames returns all active catalog entries.
func (s *GameService) ListGames(c *fiber.Ctx) error {
	var games []models.Game
	if err := s.DB.Where("active = ?", true).Order("title ASC").Find(&games).Error; err != nil {
		log.Printf("DB Error fetching games: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch games"})
	}
	return c.JSON(games)
}

// DeactivateGame handles retiring a game from the catalog (Admin only).
// Existing challenges keep their denormalized copy of the reference.
func (s *GameService) DeactivateGame(c *fiber.Ctx) error {
	id := c.Params("id")

	res := s.DB.Model(&models.Game{}).Where("id = ?", id).Update("active", false)
	if res.Error != nil {
		log.Printf("DB Error deactivating game %s: %v", id, res.Error)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to deactivate game"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Game not found"})
	}
	return c.JSON(fiber.Map{"message": "Game deactivated"})
}
