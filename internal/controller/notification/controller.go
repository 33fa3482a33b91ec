// Package notification provides HTTP handlers for reading the
// notifications produced by domain events.
package notification

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard-backend/internal/database"
	"jobboard-backend/internal/model"
	"jobboard-backend/internal/utilities"
)

// NotificationController handles notification related endpoints
type NotificationController struct {
	DB *database.DBinstanceStruct
}

// NewNotificationController creates a new instance of NotificationController
func NewNotificationController(db *database.DBinstanceStruct) *NotificationController {
	return &NotificationController{DB: db}
}

// GetNotifications lists the caller's notifications, newest first.
// @Summary List own notifications
// @Tags Notification
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param unread query bool false "Only unread notifications"
// @Success 200 {array} model.Notification "Notifications"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /notification [get]
func (nc *NotificationController) GetNotifications(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	query := nc.DB.Where("user_id = ?", user.ID)
	if c.Query("unread") == "true" {
		query = query.Where("is_read = ?", false)
	}

	var notifications []model.Notification
	if err := query.Order("created_at DESC").Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
			Error: fmt.Sprintf("Failed to fetch notifications: %s", err.Error()),
		})
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkRead marks one of the caller's notifications as read.
// @Summary Mark a notification as read
// @Tags Notification
// @Produce json
// @Param Authorization header string true "Insert your access token" default(Bearer <your access token>)
// @Param id path int true "Notification ID"
// @Success 200 {object} model.Notification "Updated notification"
// @Failure 401 {object} utilities.ErrorResponse "Invalid token"
// @Failure 404 {object} utilities.ErrorResponse "Notification not found"
// @Failure 500 {object} utilities.ErrorResponse "Database error"
// @Router /notification/{id}/read [patch]
func (nc *NotificationController) MarkRead(c *gin.Context) {
	user, err := utilities.ExtractUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	var notification model.Notification
	err = nc.DB.Where("id = ? AND user_id = ?", c.Param("id"), user.ID).First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, utilities.ErrorResponse{Error: "Notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{Error: err.Error()})
		return
	}

	if !notification.IsRead {
		if err := nc.DB.Model(&notification).UpdateColumn("is_read", true).Error; err != nil {
			c.JSON(http.StatusInternalServerError, utilities.ErrorResponse{
				Error: fmt.Sprintf("Failed to update notification: %s", err.Error()),
			})
			return
		}
		notification.IsRead = true
	}
	c.JSON(http.StatusOK, notification)
}
