package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vagrigoreva/moderation-be/internal/api/dto"
	"github.com/vagrigoreva/moderation-be/internal/cache"
	"github.com/vagrigoreva/moderation-be/internal/moderation/domain"
)

// SubmitModeration handles POST /api/v1/moderation
// Creates a pending record, then publishes the task message, in that
// order: write-before-publish keeps a consumer from ever seeing a task
// with no backing record.
func (h *ModerationHandler) SubmitModeration(c *gin.Context) {
	var req dto.SubmitModerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	exists, err := h.storage.AdExists(c.Request.Context(), req.ItemID)
	if err != nil {
		h.logger.Error("Failed to check ad existence",
			slog.Int64("item_id", req.ItemID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit moderation request",
		})
		return
	}

	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Ad not found",
		})
		return
	}

	taskID, err := h.storage.CreatePending(c.Request.Context(), req.ItemID)
	if err != nil {
		h.logger.Error("Failed to create pending moderation record",
			slog.Int64("item_id", req.ItemID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit moderation request",
		})
		return
	}

	msg := domain.TaskMessage{
		TaskID:     taskID,
		ItemID:     req.ItemID,
		EnqueuedAt: time.Now().UTC(),
		RetryCount: 0,
	}

	if err := h.publisher.PublishTask(c.Request.Context(), msg); err != nil {
		h.logger.Error("Failed to publish moderation task",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)

		// The pending record would otherwise stay pending forever
		if failErr := h.storage.FailResult(c.Request.Context(), taskID, "failed to publish moderation task"); failErr != nil {
			h.logger.Error("Failed to mark unpublished task as failed",
				slog.Int64("task_id", taskID),
				slog.String("error", failErr.Error()),
			)
		}

		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to enqueue moderation task",
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.SubmitModerationResponse{
		TaskID:  taskID,
		Status:  domain.StatusPending,
		Message: "Moderation task accepted",
	})
}

// GetModerationResult handles GET /api/v1/moderation/:task_id
// Returns the current status snapshot for a moderation task. Pure
// state read with no side effects beyond best-effort snapshot caching.
func (h *ModerationHandler) GetModerationResult(c *gin.Context) {
	taskID, err := strconv.ParseInt(c.Param("task_id"), 10, 64)
	if err != nil || taskID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "task_id must be a positive integer",
		})
		return
	}

	if snap, ok := h.cache.GetLookup(c.Request.Context(), taskID); ok {
		c.JSON(http.StatusOK, dto.ModerationResultResponse{
			TaskID:       snap.TaskID,
			Status:       snap.Status,
			IsViolation:  snap.IsViolation,
			Probability:  snap.Probability,
			ErrorMessage: snap.ErrorMessage,
		})
		return
	}

	result, err := h.storage.GetResult(c.Request.Context(), taskID)
	if err != nil {
		if err == domain.ErrTaskNotFound {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Moderation task not found",
			})
			return
		}

		h.logger.Error("Failed to get moderation result",
			slog.Int64("task_id", taskID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get moderation result",
		})
		return
	}

	resp := dto.ModerationResultResponse{
		TaskID: result.ID,
		Status: result.Status,
	}
	if result.IsViolation.Valid {
		resp.IsViolation = &result.IsViolation.Bool
	}
	if result.Probability.Valid {
		resp.Probability = &result.Probability.Float64
	}
	if result.ErrorMessage.Valid {
		resp.ErrorMessage = &result.ErrorMessage.String
	}

	// Only terminal snapshots get cached; SetLookup enforces that
	h.cache.SetLookup(c.Request.Context(), cache.LookupSnapshot{
		TaskID:       resp.TaskID,
		Status:       resp.Status,
		IsViolation:  resp.IsViolation,
		Probability:  resp.Probability,
		ErrorMessage: resp.ErrorMessage,
	})

	c.JSON(http.StatusOK, resp)
}

// PredictAd handles POST /api/v1/ads/predict
// Synchronous prediction over a full ad payload, read-through cached by
// content fingerprint.
func (h *ModerationHandler) PredictAd(c *gin.Context) {
	var req dto.PredictAdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	ad := &domain.Ad{
		ItemID:           req.ItemID,
		SellerID:         req.SellerID,
		SellerIsVerified: req.IsVerifiedSeller,
		Name:             req.Name,
		Description:      req.Description,
		Category:         req.Category,
		ImagesQty:        req.ImagesQty,
	}

	fingerprint := cache.Fingerprint(ad)

	pred, hit := h.cache.Get(c.Request.Context(), fingerprint)
	if !hit {
		var err error
		pred, err = h.model.Predict(ad)
		if err != nil {
			h.logger.Error("Model invocation failed",
				slog.Int64("item_id", req.ItemID),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Model unavailable",
			})
			return
		}

		h.cache.Set(c.Request.Context(), fingerprint, pred)
	}

	h.logger.Info("Prediction served",
		slog.Int64("item_id", req.ItemID),
		slog.Bool("is_violation", pred.IsViolation),
		slog.Float64("probability", pred.Probability),
		slog.Bool("cache_hit", hit),
	)

	c.JSON(http.StatusOK, dto.PredictResponse{
		IsViolation: pred.IsViolation,
		Probability: pred.Probability,
	})
}
