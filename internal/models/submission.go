package models

import "time"

// ProjectType is the kind of construction work a submission describes.
type ProjectType string

const (
	ProjectTypeNew        ProjectType = "neuf"
	ProjectTypeRenovation ProjectType = "renovation"
)

// Valid reports whether t is a known project type.
func (t ProjectType) Valid() bool {
	return t == ProjectTypeNew || t == ProjectTypeRenovation
}

// Label returns the French label used in notifications and exports.
func (t ProjectType) Label() string {
	if t == ProjectTypeRenovation {
		return "Rénovation"
	}
	return "Projet neuf"
}

// Submission is one project filed through the intake form. Rows live in file_submissions.
type Submission struct {
	ID               string      `db:"id" json:"id"`
	Company          string      `db:"entreprise" json:"entreprise"`
	City             *string     `db:"ville" json:"ville,omitempty"`
	Department       *string     `db:"departement" json:"departement,omitempty"`
	ProjectType      ProjectType `db:"type_projet" json:"type_projet"`
	Message          *string     `db:"message" json:"message,omitempty"`
	Latitude         *float64    `db:"latitude" json:"latitude,omitempty"`
	Longitude        *float64    `db:"longitude" json:"longitude,omitempty"`
	LocationAccuracy *float64    `db:"location_accuracy" json:"location_accuracy,omitempty"`
	AudioURL         *string     `db:"audio_description_url" json:"audio_description_url,omitempty"`
	AudioDuration    *int        `db:"audio_duration" json:"audio_duration,omitempty"`
	VideoURL         *string     `db:"video_url" json:"video_url,omitempty"`
	VideoDuration    *int        `db:"video_duration" json:"video_duration,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// HasAudio reports whether an audio recording is attached.
func (s *Submission) HasAudio() bool {
	return s.AudioURL != nil && *s.AudioURL != ""
}

// HasVideo reports whether a video recording is attached.
func (s *Submission) HasVideo() bool {
	return s.VideoURL != nil && *s.VideoURL != ""
}

// HasLocation reports whether GPS coordinates were captured.
func (s *Submission) HasLocation() bool {
	return s.Latitude != nil && s.Longitude != nil
}

// PhotoPrefix is the storage prefix owning the submission's photos.
func (s *Submission) PhotoPrefix() string {
	return SubmissionPhotoPrefix(s.ID)
}

// SubmissionPhotoPrefix returns the storage prefix for a submission id.
func SubmissionPhotoPrefix(id string) string {
	return id + "/"
}

// SubmissionFilter narrows admin listings.
type SubmissionFilter struct {
	Companies []string
	Search    string
	Page      int
	PageSize  int
}

// SubmissionUpdate lists the fields an admin may edit. Nil leaves the column untouched.
type SubmissionUpdate struct {
	Company     *string
	City        *string
	Department  *string
	ProjectType *ProjectType
	Message     *string
}

// Empty reports whether no field is set.
func (u SubmissionUpdate) Empty() bool {
	return u.Company == nil && u.City == nil && u.Department == nil && u.ProjectType == nil && u.Message == nil
}

// StoredFile describes one object in the files bucket.
type StoredFile struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	URL       string    `json:"url,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
