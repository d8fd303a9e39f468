// handlers/submission_routes.go
package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"visit-verify-system/middleware"
	"visit-verify-system/models"
	"visit-verify-system/services"
	"visit-verify-system/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionDeps bundles what the submission routes need.
type SubmissionDeps struct {
	DB         *gorm.DB
	Pipeline   *services.SubmissionPipeline
	Challenges services.ChallengeStore
	Rewards    *services.RewardLedgerClient
}

func SetupSubmissionRoutes(app *fiber.App, deps SubmissionDeps) {
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	// Intake. JSON body or multipart with a "photo" file part.
	securedGroup.Post("/s/submissions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var req services.SubmissionRequest
		var parseErr error
		if form, err := c.MultipartForm(); err == nil && form != nil {
			req, parseErr = parseMultipartSubmission(c, deps.Challenges)
		} else {
			parseErr = c.BodyParser(&req)
		}
		if parseErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"error":   "invalid request body",
				"cause":   parseErr.Error(),
			})
		}

		outcome := deps.Pipeline.Process(c.Context(), userID, req)
		return writeOutcome(c, outcome)
	})

	// Owner-scoped fetch.
	securedGroup.Get("/s/submissions/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
		}

		var sub models.Submission
		if err := deps.DB.Where("id = ? AND user_id = ?", id, userID).First(&sub).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Submission not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(sub)
	})

	// Owner-scoped list, newest first, optional status filter.
	securedGroup.Get("/s/submissions", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		if page < 1 {
			page = 1
		}
		if size < 1 || size > 100 {
			size = 20
		}

		query := deps.DB.Where("user_id = ?", userID)
		if status := c.Query("status"); status != "" {
			query = query.Where("verification_status = ?", status)
		}

		var total int64
		if err := query.Model(&models.Submission{}).Count(&total).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		var subs []models.Submission
		if err := query.Order("submitted_at DESC").
			Limit(size).Offset((page - 1) * size).
			Find(&subs).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		return c.JSON(fiber.Map{
			"submissions": subs,
			"page":        page,
			"size":        size,
			"total_items": total,
		})
	})

	// The caller's visit profile.
	securedGroup.Get("/s/profile", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		var profile models.VisitProfile
		if err := deps.DB.Where("user_id = ?", userID).First(&profile).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.JSON(fiber.Map{"user_id": userID, "total_submissions": 0})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}
		return c.JSON(profile)
	})

	// Moderator resolution of manual_review.
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware())

	adminGroup.Post("/submissions/:id/resolve", func(c *fiber.Ctx) error {
		if !middleware.HasRole(c, "moderator") {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "moderator role required"})
		}

		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid submission ID"})
		}

		var req struct {
			Action string `json:"action"` // approve | reject
			Note   string `json:"note"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
		}
		if req.Action != "approve" && req.Action != "reject" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "action must be approve or reject"})
		}

		var sub models.Submission
		if err := deps.DB.First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Submission not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		if sub.VerificationStatus.Terminal() {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Submission already finalized"})
		}
		if sub.VerificationStatus != models.StatusManualReview {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Submission is not awaiting review"})
		}

		newStatus := models.StatusRejected
		if req.Action == "approve" {
			newStatus = models.StatusApproved
		}
		sub.VerificationStatus = newStatus
		if err := deps.DB.Save(&sub).Error; err != nil {
			log.Printf("DB Error resolving submission %s: %v", id, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to resolve submission"})
		}

		// Approval out of review still earns the base points.
		if newStatus == models.StatusApproved {
			challenge, err := deps.Challenges.ActiveChallenge(sub.ChallengeID)
			if err == nil {
				if err := deps.Rewards.Grant(c.Context(), sub.ID, sub.UserID, sub.ChallengeID, challenge.PointsValue); err != nil {
					log.Printf("⚠️ [RESOLVE] Reward handoff failed for submission %s: %v", sub.ID, err)
				}
			} else {
				log.Printf("⚠️ [RESOLVE] Challenge lookup failed for submission %s: %v", sub.ID, err)
			}
		}

		return c.JSON(fiber.Map{
			"message":             "Submission resolved",
			"submission_id":       sub.ID,
			"verification_status": sub.VerificationStatus,
		})
	})
}

// parseMultipartSubmission reads a multipart intake: the photo part is
// uploaded to R2 first and its URL becomes the proof image reference.
func parseMultipartSubmission(c *fiber.Ctx, challenges services.ChallengeStore) (services.SubmissionRequest, error) {
	var req services.SubmissionRequest
	req.ChallengeID = c.FormValue("challenge_id")
	req.ProofType = models.ProofType(c.FormValue("proof_type"))
	req.ProofData = models.ProofData{
		BusinessName: c.FormValue("business_name"),
		Timestamp:    c.FormValue("receipt_timestamp"),
		Amount:       c.FormValue("receipt_amount"),
		Answer:       c.FormValue("answer"),
	}

	lat, err := strconv.ParseFloat(c.FormValue("latitude"), 64)
	if err != nil {
		return req, errors.New("latitude is not a number")
	}
	lon, err := strconv.ParseFloat(c.FormValue("longitude"), 64)
	if err != nil {
		return req, errors.New("longitude is not a number")
	}
	req.Coordinate = models.GPSCoordinate{Latitude: lat, Longitude: lon}

	if acc := c.FormValue("accuracy"); acc != "" {
		a, err := strconv.ParseFloat(acc, 64)
		if err != nil {
			return req, errors.New("accuracy is not a number")
		}
		req.Coordinate.Accuracy = a
	}
	if ts := c.FormValue("reading_at"); ts != "" {
		t, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return req, errors.New("reading_at must be RFC3339")
		}
		req.Coordinate.Timestamp = &t
	}

	if fileHeader, err := c.FormFile("photo"); err == nil {
		businessName := "challenge"
		if challenge, err := challenges.ActiveChallenge(req.ChallengeID); err == nil {
			businessName = challenge.BusinessName
		}
		url, err := utils.UploadProofPhoto(c.Context(), fileHeader, businessName, uuid.NewString())
		if err != nil {
			return req, err
		}
		req.ProofData.ImageURL = url
	}

	return req, nil
}

// writeOutcome maps the pipeline's discriminated result onto the intake
// response contract.
func writeOutcome(c *fiber.Ctx, outcome services.SubmissionOutcome) error {
	switch outcome.Kind {
	case services.OutcomeApproved, services.OutcomeManualReview:
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"success":             true,
			"submission_id":       outcome.SubmissionID,
			"verification_status": outcome.Status,
			"message":             outcome.Message,
		})
	case services.OutcomeRejected:
		return c.JSON(fiber.Map{
			"success":             false,
			"submission_id":       outcome.SubmissionID,
			"verification_status": outcome.Status,
			"error":               outcome.Message,
			"field_errors":        outcome.FieldErrors,
			"reasons":             outcome.Reasons,
		})
	case services.OutcomeUnauthorized:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"error":   outcome.Message,
		})
	case services.OutcomeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   outcome.Message,
		})
	default:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   outcome.Message,
		})
	}
}
