package service

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tilemate_backend/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("could not open test db: %v", err)
	}

	// A single connection keeps the in-memory database alive for the test.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("could not get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	err = db.AutoMigrate(
		&model.User{},
		&model.Plan{},
		&model.PaymentRecord{},
		&model.UserSubscription{},
	)
	if err != nil {
		t.Fatalf("could not migrate test db: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB) *model.User {
	t.Helper()

	user := model.User{
		Email:       "kwame@example.com",
		Password:    "irrelevant",
		FullName:    "Kwame Mensah",
		PhoneNumber: "0241234567",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("could not create test user: %v", err)
	}
	return &user
}
