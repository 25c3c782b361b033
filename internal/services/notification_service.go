// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/utils"
)

// Pusher delivers a realtime payload to a user's open connections.
type Pusher interface {
	SendToUser(userID uuid.UUID, payload interface{})
}

// MailSender matches smtp.SendMail.
type MailSender func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type NotificationService struct {
	db       *gorm.DB
	config   *config.Config
	pusher   Pusher
	sendMail MailSender
}

type EmailTemplate struct {
	Subject string
	Body    string
}

// RealtimeMessage is the websocket frame pushed for every notification.
type RealtimeMessage struct {
	Event        string               `json:"event"`
	Notification *models.Notification `json:"notification"`
}

func NewNotificationService(db *gorm.DB, config *config.Config, pusher Pusher) *NotificationService {
	return &NotificationService{
		db:       db,
		config:   config,
		pusher:   pusher,
		sendMail: smtp.SendMail,
	}
}

// Notify stores the notification, pushes it to live sessions and emails the
// user in the background. Failures are logged and never reach the caller.
func (s *NotificationService) Notify(ctx context.Context, userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) {
	notification := &models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
		Data:    models.JSONB(data),
	}

	if err := s.db.WithContext(ctx).Create(notification).Error; err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id": userID,
			"type":    kind,
		}).Error("Failed to store notification")
		return
	}

	if s.pusher != nil {
		s.pusher.SendToUser(userID, RealtimeMessage{Event: "notification", Notification: notification})
	}

	go s.emailUser(userID, kind, title, message, data)
}

func (s *NotificationService) emailUser(userID uuid.UUID, kind models.NotificationType, title, message string, data map[string]interface{}) {
	var user models.User
	if err := s.db.Select("id", "username", "email").First(&user, "id = ?", userID).Error; err != nil {
		logrus.WithError(err).WithField("user_id", userID).Warn("Notification email skipped, user not found")
		return
	}

	tmpl := s.getEmailTemplate(kind)
	body, err := s.renderTemplate(tmpl.Body, map[string]interface{}{
		"Username":     user.Username,
		"Title":        title,
		"Message":      message,
		"Data":         data,
		"DashboardURL": s.config.Frontend.BaseURL + "/dashboard",
		"PlatformName": s.config.Email.FromName,
	})
	if err != nil {
		logrus.WithError(err).Error("Failed to render email template")
		return
	}

	if err := s.sendEmail(user.Email, title, body); err != nil {
		logrus.WithError(err).WithField("user_id", userID).Error("Failed to send notification email")
	}
}

func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, params utils.PaginationParams) ([]models.Notification, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count notifications: %w", err)
	}

	var notifications []models.Notification
	query = utils.ApplySort(query, params, []string{"created_at"})
	if err := utils.ApplyPagination(query, params).Find(&notifications).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, total, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) (*models.Notification, error) {
	var notification models.Notification
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&notification).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}

	if notification.ReadAt == nil {
		now := time.Now()
		if err := s.db.WithContext(ctx).Model(&notification).Update("read_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to mark notification read: %w", err)
		}
		notification.ReadAt = &now
	}
	return &notification, nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.db.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read_at IS NULL", userID).
		Update("read_at", time.Now())
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).Debug("SMTP not configured, email skipped")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	msg := []byte(fmt.Sprintf("From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s",
		s.config.Email.FromName, s.config.Email.FromEmail, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return s.sendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

var emailTemplates = map[models.NotificationType]EmailTemplate{
	models.NotificationPurchaseCompleted: {
		Subject: "Your purchase is ready",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Thanks for your purchase, {{.Username}}!</h2>
	<p>{{.Message}}</p>
	<p>Your download is available from your library for a limited time.</p>
	<a href="{{.DashboardURL}}">Go to my library</a>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
	},
	models.NotificationSaleCompleted: {
		Subject: "You made a sale",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Good news, {{.Username}}!</h2>
	<p>{{.Message}}</p>
	<a href="{{.DashboardURL}}">View earnings</a>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
	},
}

func (s *NotificationService) getEmailTemplate(kind models.NotificationType) EmailTemplate {
	if template, exists := emailTemplates[kind]; exists {
		return template
	}

	// Default template
	return EmailTemplate{
		Subject: "Notification",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>{{.Title}}</h2>
	<p>Hello {{.Username}},</p>
	<p>{{.Message}}</p>
	<p>Best regards,<br>{{.PlatformName}} Team</p>
</body>
</html>`,
	}
}
