package models

import "time"

// PhotoSession groups the photos of one capture and the share state of
// the selected photo.
type PhotoSession struct {
	ID              string    `json:"id"`
	DeviceID        string    `json:"deviceId"`
	Name            string    `json:"sessionName"`
	CreatedAt       time.Time `json:"createdAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	SelectedPhotoID string    `json:"selectedPhotoId,omitempty"`
	DownloadCount   int       `json:"downloadCount"`
}

// TempPhoto is one stored frame of a session. Order is the 1-based
// capture index.
type TempPhoto struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	ObjectKey string    `json:"-"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
}
