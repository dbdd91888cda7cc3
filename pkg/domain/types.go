package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ApplicationStatus string

const (
	ApplicationSubmitted        ApplicationStatus = "submitted"
	ApplicationUnderReview      ApplicationStatus = "under_review"
	ApplicationPendingDocuments ApplicationStatus = "pending_documents"
	ApplicationPreApproved      ApplicationStatus = "pre_approved"
	ApplicationVehicleSelection ApplicationStatus = "vehicle_selection"
	ApplicationFinalApproval    ApplicationStatus = "final_approval"
	ApplicationFinalized        ApplicationStatus = "finalized"
)

type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

type UserStatus string

const (
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type TicketStatus string

const (
	TicketOpen       TicketStatus = "open"
	TicketInProgress TicketStatus = "in_progress"
	TicketResolved   TicketStatus = "resolved"
	TicketClosed     TicketStatus = "closed"
)

type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "scheduled"
	AppointmentCancelled AppointmentStatus = "cancelled"
	AppointmentCompleted AppointmentStatus = "completed"
)

// Progress event statuses written to the stage log.
const (
	StageCompleted  = "completed"
	StageInProgress = "in_progress"
)

// Application is one customer loan request.
type Application struct {
	ID           string            `json:"id"`
	UserID       string            `json:"userId,omitempty"`
	TempUserID   string            `json:"tempUserId,omitempty"`
	Status       ApplicationStatus `json:"status"`
	CurrentStage int               `json:"currentStage"`

	LoanAmountMin         decimal.NullDecimal `json:"loanAmountMin"`
	LoanAmountMax         decimal.NullDecimal `json:"loanAmountMax"`
	InterestRate          decimal.NullDecimal `json:"interestRate"`
	InterestRateMin       decimal.NullDecimal `json:"interestRateMin"`
	InterestRateMax       decimal.NullDecimal `json:"interestRateMax"`
	TermMonths            int                 `json:"termMonths,omitempty"`
	DownPayment           decimal.NullDecimal `json:"downPayment"`
	DesiredMonthlyPayment decimal.NullDecimal `json:"desiredMonthlyPayment"`

	FirstName        string              `json:"firstName"`
	LastName         string              `json:"lastName"`
	Email            string              `json:"email"`
	Phone            string              `json:"phone"`
	AddressLine      string              `json:"addressLine"`
	City             string              `json:"city"`
	State            string              `json:"state"`
	ZipCode          string              `json:"zipCode"`
	EmploymentStatus string              `json:"employmentStatus"`
	EmployerName     string              `json:"employerName,omitempty"`
	AnnualIncome     decimal.NullDecimal `json:"annualIncome"`
	CreditScore      string              `json:"creditScore"`
	VehicleType      string              `json:"vehicleType,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is an uploaded file attached to an application. Filename is the
// storage key, not a display name.
type Document struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"applicationId"`
	Category      DocumentCategory  `json:"category"`
	Filename      string            `json:"filename"`
	OriginalName  string            `json:"originalName"`
	ContentType   string            `json:"contentType"`
	SizeBytes     int64             `json:"sizeBytes"`
	Status        DocumentStatus    `json:"status"`
	ReviewNotes   string            `json:"reviewNotes,omitempty"`
	ReviewedBy    string            `json:"reviewedBy,omitempty"`
	UploadedBy    string            `json:"uploadedBy"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	UploadedAt    time.Time         `json:"uploadedAt"`
	ReviewedAt    *time.Time        `json:"reviewedAt,omitempty"`
}

// ApplicationStage is an append-only progress event.
type ApplicationStage struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	StageNumber   int       `json:"stageNumber"`
	Status        string    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ApplicationNote is a free-text admin note on an application.
type ApplicationNote struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"applicationId"`
	AuthorID      string    `json:"authorId"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

// Message is one entry of the support thread between a customer and admins.
// UserID always names the customer; IsAdmin tells the direction.
type Message struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	ApplicationID string    `json:"applicationId,omitempty"`
	SenderID      string    `json:"senderId"`
	IsAdmin       bool      `json:"isAdmin"`
	Content       string    `json:"content"`
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"createdAt"`
}

type SupportTicket struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Subject   string       `json:"subject"`
	Message   string       `json:"message"`
	Status    TicketStatus `json:"status"`
	Priority  string       `json:"priority"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type Appointment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	ApplicationID   string            `json:"applicationId,omitempty"`
	ScheduledAt     time.Time         `json:"scheduledAt"`
	DurationMinutes int               `json:"durationMinutes"`
	Topic           string            `json:"topic"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	RemindedAt      *time.Time        `json:"remindedAt,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	FirstName    string     `json:"firstName,omitempty"`
	LastName     string     `json:"lastName,omitempty"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the account has back-office access.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Identity is the authenticated caller as seen by the portal.
type Identity struct {
	UserID  string   `json:"userId"`
	Email   string   `json:"email"`
	Role    UserRole `json:"role"`
	IsAdmin bool     `json:"isAdmin"`
}

// Admin reports whether the identity may act on any application.
func (i Identity) Admin() bool {
	return i.IsAdmin || i.Role == RoleAdmin
}
