// Package model defines the data exchanged between the recommendation
// coordinator, the scoring engine and the upstream services.
package model

// StatusActive is the job status that makes a job eligible for recommendation.
// The comparison is case-sensitive.
const StatusActive = "ACCEPTED"

// ReservationApproved marks a reservation that counts towards job popularity.
const ReservationApproved = "APPROVED"

// SubjectType tags a rating or report statistic with the kind of entity it describes.
type SubjectType string

const (
	// SubjectWorker tags statistics about the worker who posted a job.
	SubjectWorker SubjectType = "USER"
	// SubjectJob tags statistics about a single job posting.
	SubjectJob SubjectType = "JOB"
)

// Job is a posting offered by a worker.
type Job struct {
	ID          int64    `json:"id"`
	WorkerID    int64    `json:"userId"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Status      string   `json:"status"`
	HourlyRate  *float64 `json:"hourlyRate,omitempty"`
	Experience  *int     `json:"experience,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
}

// Active reports whether the job may be recommended.
func (j Job) Active() bool {
	return j.Status == StatusActive
}

// UserProfile carries the address fields used to geocode a user.
type UserProfile struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	City    string `json:"city"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

// Preferences are the user's stated search preferences. Nil pointer fields
// mean the user has not set that preference.
type Preferences struct {
	UserID              int64    `json:"userId"`
	PreferredRadiusKm   *float64 `json:"preferredDistanceRadius,omitempty"`
	PreferredExperience *int     `json:"preferredExperience,omitempty"`
	WantedCategories    []string `json:"wantedCategories"`
}

// DefaultPreferences builds the preferences used when the preference store is unavailable.
func DefaultPreferences(userID int64, maxDistanceKm float64, minExperience int) Preferences {
	return Preferences{
		UserID:              userID,
		PreferredRadiusKm:   &maxDistanceKm,
		PreferredExperience: &minExperience,
		WantedCategories:    []string{},
	}
}

// Wants reports whether category is among the wanted categories.
func (p Preferences) Wants(category string) bool {
	for _, c := range p.WantedCategories {
		if c == category {
			return true
		}
	}
	return false
}

// RatingStats is the aggregate review rating of a worker or job.
type RatingStats struct {
	Subject   SubjectType `json:"reviewType"`
	SubjectID int64       `json:"id"`
	Average   *float64    `json:"rating,omitempty"`
	Count     int         `json:"reviewCount"`
}

// DefaultRatingStats returns an empty rating carrying the requested tag.
func DefaultRatingStats(subject SubjectType, id int64) RatingStats {
	zero := 0.0
	return RatingStats{Subject: subject, SubjectID: id, Average: &zero}
}

// ReportStats counts abuse reports against a worker or job by severity.
type ReportStats struct {
	Subject   SubjectType `json:"type"`
	SubjectID int64       `json:"id"`
	Low       int64       `json:"lowSeverityCount"`
	Medium    int64       `json:"mediumSeverityCount"`
	High      int64       `json:"highSeverityCount"`
}

// DefaultReportStats returns zero report counts carrying the requested tag.
func DefaultReportStats(subject SubjectType, id int64) ReportStats {
	return ReportStats{Subject: subject, SubjectID: id}
}

// JobScore is one ranked recommendation.
type JobScore struct {
	JobID    int64   `json:"jobId"`
	WorkerID int64   `json:"workerId"`
	Score    float64 `json:"score"`
}

// Reservation is a booking of a job by a customer.
type Reservation struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customerId"`
	WorkerID   int64  `json:"workerId"`
	JobID      int64  `json:"jobId"`
	Status     string `json:"status"`
}

// Review is a single customer review of a job.
type Review struct {
	ID     int64  `json:"id"`
	Rating int    `json:"rating"`
	Text   string `json:"text"`
}

// IDSet is a set of user ids. A nil IDSet means the set could not be loaded.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids. The result is never nil.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is in the set. It is safe on a nil set.
func (s IDSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Categories lists the job categories known to the job service.
var Categories = []string{
	"PLUMBER",
	"ELECTRICIAN",
	"CARPENTER",
	"PAINTER",
	"MECHANIC",
	"LOCKSMITH",
	"HANDYMAN",
	"CLEANER",
	"GARDENER",
	"HAIRDRESSER",
	"MAKEUP_ARTIST",
	"MASSAGE_THERAPIST",
	"DELIVERY_DRIVER",
}
