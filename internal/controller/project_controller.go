package controller

import (
	"log"
	"math"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/utils/jwt"
	"tilemate_backend/pkg/utils/storage"
)

type ProjectController struct {
	DB *gorm.DB
}

func NewProjectController(db *gorm.DB) *ProjectController {
	return &ProjectController{DB: db}
}

type ProjectInput struct {
	Name        string  `json:"name"`
	RoomLengthM float64 `json:"room_length_m"`
	RoomWidthM  float64 `json:"room_width_m"`
}

// CreateProject runs behind the project feature gate; by the time it
// executes, one project unit has already been consumed.
func (ctrl *ProjectController) CreateProject(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	input := new(ProjectInput)
	if err := c.BodyParser(input); err != nil || input.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid input",
		})
	}

	project := model.Project{
		UserID:      claims.UserID,
		Name:        input.Name,
		RoomLengthM: input.RoomLengthM,
		RoomWidthM:  input.RoomWidthM,
	}

	if err := ctrl.DB.Create(&project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not create project",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"project":   project,
		"remaining": c.Locals("feature_remaining"),
	})
}

func (ctrl *ProjectController) ListMyProjects(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	var projects []model.Project
	if err := ctrl.DB.Where("user_id = ?", claims.UserID).
		Preload("RoomPhotos").
		Order("created_at desc").Find(&projects).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not fetch projects",
		})
	}

	return c.JSON(projects)
}

// UploadRoomPhoto stores a room scan for the 3D view feature. Gated: one
// three_d_view unit per upload.
func (ctrl *ProjectController) UploadRoomPhoto(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	project, err := ctrl.ownedProject(claims.UserID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	file, err := c.FormFile("photo")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Photo file is required",
		})
	}

	result, err := storage.UploadRoomPhoto(storage.RoomPhotoConfig{
		File:        file,
		UserID:      claims.UserID,
		ProjectName: project.Name,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not upload photo",
		})
	}

	photo := model.RoomPhoto{
		ProjectID: project.ID,
		URL:       result.URL,
		StorageID: result.StorageID,
	}
	if err := ctrl.DB.Create(&photo).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not save photo",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"photo":     photo,
		"remaining": c.Locals("feature_remaining"),
	})
}

type EstimateInput struct {
	TileLengthCM   float64 `json:"tile_length_cm"`
	TileWidthCM    float64 `json:"tile_width_cm"`
	WastagePercent float64 `json:"wastage_percent"`
}

// ManualEstimate computes how many tiles cover the project's room. Gated:
// one manual_estimate unit per call.
func (ctrl *ProjectController) ManualEstimate(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	project, err := ctrl.ownedProject(claims.UserID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	input := new(EstimateInput)
	if err := c.BodyParser(input); err != nil || input.TileLengthCM <= 0 || input.TileWidthCM <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Tile dimensions are required",
		})
	}
	if project.RoomLengthM <= 0 || project.RoomWidthM <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Project has no room dimensions",
		})
	}

	wastage := input.WastagePercent
	if wastage <= 0 {
		wastage = 10 // industry default for cuts and breakage
	}

	roomArea := project.RoomLengthM * project.RoomWidthM
	tileArea := (input.TileLengthCM / 100) * (input.TileWidthCM / 100)
	tiles := int(math.Ceil(roomArea / tileArea * (1 + wastage/100)))

	return c.JSON(fiber.Map{
		"room_area_m2":    roomArea,
		"tile_area_m2":    tileArea,
		"wastage_percent": wastage,
		"tiles_needed":    tiles,
		"remaining":       c.Locals("feature_remaining"),
	})
}

// DeleteProject removes a project with its room photos, including the stored
// scans. Deleting does not refund consumed feature units.
func (ctrl *ProjectController) DeleteProject(c *fiber.Ctx) error {
	claims := c.Locals("user").(*jwt.Claims)

	project, err := ctrl.ownedProject(claims.UserID, c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Project not found",
		})
	}

	var photos []model.RoomPhoto
	if err := ctrl.DB.Where("project_id = ?", project.ID).Find(&photos).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete project",
		})
	}
	for _, photo := range photos {
		if err := storage.DeleteRoomPhoto(photo.URL); err != nil {
			log.Printf("Could not delete room photo %s: %v", photo.StorageID, err)
		}
	}

	if err := ctrl.DB.Where("project_id = ?", project.ID).Delete(&model.RoomPhoto{}).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete project",
		})
	}
	if err := ctrl.DB.Delete(project).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Could not delete project",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Project deleted",
	})
}

func (ctrl *ProjectController) ownedProject(userID uint, projectID string) (*model.Project, error) {
	var project model.Project
	if err := ctrl.DB.Where("id = ? AND user_id = ?", projectID, userID).First(&project).Error; err != nil {
		return nil, err
	}
	return &project, nil
}
