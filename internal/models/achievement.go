package models

// Verification statuses shared by education, work and admin review
const (
	VerificationPending  = "PENDING"
	VerificationApproved = "APPROVED"
	VerificationRejected = "REJECTED"
)

// EducationInput submits an education entry for verification
type EducationInput struct {
	DegreeType   string  `json:"degree_type"`
	CollegeID    string  `json:"college_id"`
	GPA          float64 `json:"gpa"`
	StartDate    string  `json:"start_date,omitempty"`
	EndDate      string  `json:"end_date,omitempty"`
	IsCompleted  bool    `json:"is_completed"`
	AdvisorName  string  `json:"advisor_name"`
	AdvisorEmail string  `json:"advisor_email"`
	AdvisorPhone string  `json:"advisor_phone,omitempty"`
}

// Education is a stored education entry
type Education struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	DegreeType         string    `json:"degree_type"`
	CollegeID          string    `json:"college_id"`
	UniversityName     string    `json:"university_name"`
	UniversityTier     int       `json:"university_tier"`
	GPA                *float64  `json:"gpa,omitempty"`
	IsCompleted        bool      `json:"is_completed"`
	VerificationStatus string    `json:"verification_status"`
	VerifiedAt         Timestamp `json:"verified_at"`
}

// EducationScore is the score contributed by one education entry
type EducationScore struct {
	EducationID    int64   `json:"education_id"`
	UserID         int64   `json:"user_id"`
	UniversityName string  `json:"university_name"`
	Total          float64 `json:"total"`
	Breakdown      struct {
		Base            float64 `json:"base"`
		CompletionBonus float64 `json:"completion_bonus"`
		GPABonus        float64 `json:"gpa_bonus"`
		TierBonus       float64 `json:"tier_bonus"`
	} `json:"breakdown"`
}

// WorkInput submits a work entry for verification
type WorkInput struct {
	CompanyName     string `json:"company_name"`
	Title           string `json:"title"`
	EmploymentType  string `json:"employment_type"`
	IsCurrent       bool   `json:"is_current"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date,omitempty"`
	SupervisorName  string `json:"supervisor_name"`
	SupervisorEmail string `json:"supervisor_email"`
	SupervisorPhone string `json:"supervisor_phone,omitempty"`
}

// Work is a stored work entry
type Work struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	CompanyName        string    `json:"company_name"`
	Title              string    `json:"title"`
	EmploymentType     string    `json:"employment_type"`
	IsCurrent          bool      `json:"is_current"`
	StartDate          string    `json:"start_date"`
	EndDate            string    `json:"end_date,omitempty"`
	VerificationStatus string    `json:"verification_status"`
	VerifiedAt         Timestamp `json:"verified_at"`
}

// WorkScore is the score contributed by one work entry
type WorkScore struct {
	WorkID      int64   `json:"work_id"`
	UserID      int64   `json:"user_id"`
	CompanyName string  `json:"company_name"`
	Title       string  `json:"title"`
	Total       float64 `json:"total"`
	Breakdown   struct {
		Base          float64 `json:"base"`
		Months        float64 `json:"months"`
		DurationBonus float64 `json:"duration_bonus"`
	} `json:"breakdown"`
}

// Verification is an admin-reviewed verification request
type Verification struct {
	ID              int64     `json:"id"`
	OwnerUserID     int64     `json:"owner_user_id"`
	SubjectType     string    `json:"subject_type"`
	SubjectID       int64     `json:"subject_id"`
	Status          string    `json:"status"`
	ContactName     string    `json:"contact_name"`
	ContactEmail    string    `json:"contact_email"`
	ContactPhone    string    `json:"contact_phone,omitempty"`
	CreatedAt       Timestamp `json:"created_at"`
	DecidedAt       Timestamp `json:"decided_at"`
	DecidedByUserID *int64    `json:"decided_by_user_id,omitempty"`
	AdminNotes      string    `json:"admin_notes,omitempty"`
}

// AdminCredentials is the admin login payload
type AdminCredentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AdminDecision carries optional notes with an approve/reject
type AdminDecision struct {
	AdminNotes string `json:"admin_notes,omitempty"`
}
