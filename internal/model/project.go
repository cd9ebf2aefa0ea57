package model

import "gorm.io/gorm"

// Project is a tiling job the user is estimating. Creation is gated by the
// project feature counter.
type Project struct {
	gorm.Model
	UserID      uint    `json:"user_id" gorm:"index;not null"`
	Name        string  `json:"name" gorm:"not null"`
	RoomLengthM float64 `json:"room_length_m"`
	RoomWidthM  float64 `json:"room_width_m"`

	RoomPhotos []RoomPhoto `json:"room_photos,omitempty"`

	User User `json:"-" gorm:"foreignKey:UserID"`
}

// RoomPhoto is an uploaded room scan used for the 3D view feature.
type RoomPhoto struct {
	gorm.Model
	ProjectID uint   `json:"project_id" gorm:"index;not null"`
	URL       string `json:"url" gorm:"not null"`
	StorageID string `json:"storage_id"`
}
