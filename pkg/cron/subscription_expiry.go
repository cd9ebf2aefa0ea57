package cron

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"tilemate_backend/internal/model"
	"tilemate_backend/pkg/sms"
)

// InitSubscriptionExpiryCron schedules the daily ledger sweep: deactivate
// windows that have passed and warn users a few days ahead by SMS.
func InitSubscriptionExpiryCron(db *gorm.DB, smsService *sms.Service) {
	c := cron.New()

	_, err := c.AddFunc("0 9 * * *", func() {
		deactivateExpiredSubscriptions(db)
		sendExpiryWarnings(db, smsService)
	})

	if err != nil {
		log.Printf("Could not initialize subscription expiry cron: %v", err)
		return
	}

	c.Start()
}

// deactivateExpiredSubscriptions flips Active off for ledgers whose window
// has passed. Counters and limits are left alone; a renewal payment resets
// them through the activation engine. Ledgers without a window store the
// zero time and must never be swept.
func deactivateExpiredSubscriptions(db *gorm.DB) {
	now := time.Now()

	res := db.Model(&model.UserSubscription{}).
		Where("active = ? AND expires_at > ? AND expires_at <= ?", true, time.Time{}, now).
		Update("active", false)
	if res.Error != nil {
		log.Printf("Error deactivating expired subscriptions: %v", res.Error)
		return
	}
	if res.RowsAffected > 0 {
		log.Printf("Deactivated %d expired subscriptions", res.RowsAffected)
	}
}

func sendExpiryWarnings(db *gorm.DB, smsService *sms.Service) {
	warningDays := []int{7, 3}

	for _, days := range warningDays {
		var subs []model.UserSubscription
		targetDate := time.Now().AddDate(0, 0, days).Format("2006-01-02")

		err := db.Where("DATE(expires_at) = ? AND active = ?", targetDate, true).
			Preload("User").
			Preload("Plan").
			Find(&subs).Error
		if err != nil {
			log.Printf("Error fetching expiring subscriptions: %v", err)
			continue
		}

		log.Printf("Found %d subscriptions expiring in %d days", len(subs), days)

		for _, sub := range subs {
			if err := smsService.SendExpiryWarning(sub.User.PhoneNumber, sub.Plan.Name, days); err != nil {
				log.Printf("Error sending expiry warning to user %d: %v", sub.UserID, err)
			}
		}
	}
}
