package services

import (
	"context"
	"net/smtp"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/digistore-backend/internal/config"
	"github.com/javajoker/digistore-backend/internal/models"
	"github.com/javajoker/digistore-backend/internal/testutil"
	"github.com/javajoker/digistore-backend/internal/utils"
)

type recordingPusher struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]interface{}
}

func (p *recordingPusher) SendToUser(userID uuid.UUID, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[uuid.UUID][]interface{})
	}
	p.messages[userID] = append(p.messages[userID], payload)
}

func (p *recordingPusher) count(userID uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages[userID])
}

func notificationConfig() *config.Config {
	return &config.Config{
		Email:    config.EmailConfig{FromEmail: "noreply@digistore.test", FromName: "DigiStore"},
		Frontend: config.FrontendConfig{BaseURL: "https://shop.test"},
	}
}

func TestNotifyStoresAndPushes(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, models.UserTypeBuyer)
	pusher := &recordingPusher{}
	svc := NewNotificationService(db, notificationConfig(), pusher)
	ctx := context.Background()

	svc.Notify(ctx, user.ID, models.NotificationPurchaseCompleted, "Purchase complete", "Your file is ready.", map[string]interface{}{"reference": "DGS-1"})

	assert.Equal(t, 1, pusher.count(user.ID))

	params := utils.PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}
	list, total, err := svc.List(ctx, user.ID, false, params)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, models.NotificationPurchaseCompleted, list[0].Type)
	assert.Equal(t, "DGS-1", list[0].Data["reference"])
	assert.Nil(t, list[0].ReadAt)

	read, err := svc.MarkRead(ctx, user.ID, list[0].ID)
	require.NoError(t, err)
	assert.NotNil(t, read.ReadAt)

	_, total, err = svc.List(ctx, user.ID, true, params)
	require.NoError(t, err)
	assert.Zero(t, total)

	// Other users cannot touch the notification.
	stranger := testutil.CreateUser(t, db, models.UserTypeBuyer)
	_, err = svc.MarkRead(ctx, stranger.ID, list[0].ID)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

// The row is written before Notify returns; a row that cannot be stored is
// never pushed.
func TestNotifyPersistsBeforeReturning(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, models.UserTypeBuyer)
	pusher := &recordingPusher{}
	svc := NewNotificationService(db, notificationConfig(), pusher)

	svc.Notify(context.Background(), user.ID, models.NotificationSaleCompleted, "Sale", "You made a sale.", nil)

	var stored int64
	require.NoError(t, db.Model(&models.Notification{}).Where("user_id = ?", user.ID).Count(&stored).Error)
	assert.Equal(t, int64(1), stored)
	assert.Equal(t, 1, pusher.count(user.ID))

	require.NoError(t, db.Migrator().DropTable(&models.Notification{}))
	svc.Notify(context.Background(), user.ID, models.NotificationSaleCompleted, "Sale", "Another sale.", nil)
	assert.Equal(t, 1, pusher.count(user.ID))
}

func TestMarkAllRead(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, models.UserTypeSeller)
	svc := NewNotificationService(db, notificationConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		svc.Notify(ctx, user.ID, models.NotificationSaleCompleted, "Sale", "You made a sale.", nil)
	}

	n, err := svc.MarkAllRead(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestNotifySendsEmailWhenSMTPConfigured(t *testing.T) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, models.UserTypeSeller)

	cfg := notificationConfig()
	cfg.Email.SMTPHost = "smtp.digistore.test"
	cfg.Email.SMTPPort = "587"

	type mail struct {
		addr string
		to   []string
		msg  string
	}
	sent := make(chan mail, 1)

	svc := NewNotificationService(db, cfg, nil)
	svc.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		sent <- mail{addr: addr, to: to, msg: string(msg)}
		return nil
	}

	svc.Notify(context.Background(), user.ID, models.NotificationSaleCompleted, "New sale", "You sold \"Go Patterns\".", nil)

	select {
	case m := <-sent:
		assert.Equal(t, "smtp.digistore.test:587", m.addr)
		assert.Equal(t, []string{user.Email}, m.to)
		assert.Contains(t, m.msg, "Subject: New sale")
		assert.Contains(t, m.msg, "Good news, "+user.Username)
		assert.Contains(t, m.msg, "https://shop.test/dashboard")
	case <-time.After(5 * time.Second):
		t.Fatal("email was not sent")
	}
}

func TestEmailTemplateFallback(t *testing.T) {
	svc := NewNotificationService(nil, notificationConfig(), nil)

	body, err := svc.renderTemplate(svc.getEmailTemplate(models.NotificationWithdrawalCompleted).Body, map[string]interface{}{
		"Title":        "Withdrawal update",
		"Username":     "ada",
		"Message":      "NGN 6000.00 has been paid to your bank account.",
		"PlatformName": "DigiStore",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "<h2>Withdrawal update</h2>")
	assert.Contains(t, body, "NGN 6000.00 has been paid")
}
