package store

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	FirstName    string
	LastName     string
	Role         string    `gorm:"not null"`
	Status       string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

type ApplicationModel struct {
	ID           string `gorm:"primaryKey"`
	UserID       string `gorm:"index"`
	TempUserID   string `gorm:"index"`
	Status       string `gorm:"not null;index"`
	CurrentStage int    `gorm:"not null"`

	LoanAmountMin         decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	LoanAmountMax         decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	InterestRate          decimal.NullDecimal `gorm:"type:numeric(6,3)"`
	InterestRateMin       decimal.NullDecimal `gorm:"type:numeric(6,3)"`
	InterestRateMax       decimal.NullDecimal `gorm:"type:numeric(6,3)"`
	TermMonths            int
	DownPayment           decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	DesiredMonthlyPayment decimal.NullDecimal `gorm:"type:numeric(12,2)"`

	FirstName        string
	LastName         string
	Email            string `gorm:"index"`
	Phone            string
	AddressLine      string
	City             string
	State            string
	ZipCode          string
	EmploymentStatus string
	EmployerName     string
	AnnualIncome     decimal.NullDecimal `gorm:"type:numeric(12,2)"`
	CreditScore      string
	VehicleType      string

	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

type DocumentModel struct {
	ID            string `gorm:"primaryKey"`
	ApplicationID string `gorm:"not null;index"`
	Category      string `gorm:"not null"`
	Filename      string `gorm:"not null;uniqueIndex"`
	OriginalName  string
	ContentType   string
	SizeBytes     int64
	Status        string `gorm:"not null;index"`
	ReviewNotes   string
	ReviewedBy    string
	UploadedBy    string         `gorm:"not null"`
	Metadata      datatypes.JSON `gorm:"type:jsonb"`
	UploadedAt    time.Time      `gorm:"not null;index"`
	ReviewedAt    *time.Time
}

type ApplicationStageModel struct {
	ID            string    `gorm:"primaryKey"`
	ApplicationID string    `gorm:"not null;index"`
	StageNumber   int       `gorm:"not null"`
	Status        string    `gorm:"not null"`
	Notes         string    `gorm:"type:text"`
	Timestamp     time.Time `gorm:"not null;index"`
}

type ApplicationNoteModel struct {
	ID            string    `gorm:"primaryKey"`
	ApplicationID string    `gorm:"not null;index"`
	AuthorID      string    `gorm:"not null"`
	Body          string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

type NotificationModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Title     string    `gorm:"not null"`
	Message   string    `gorm:"type:text;not null"`
	Read      bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

type MessageModel struct {
	ID            string `gorm:"primaryKey"`
	UserID        string `gorm:"not null;index"`
	ApplicationID string
	SenderID      string    `gorm:"not null"`
	IsAdmin       bool      `gorm:"not null"`
	Content       string    `gorm:"type:text;not null"`
	Read          bool      `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;index"`
}

type AppointmentModel struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"not null;index"`
	ApplicationID   string
	ScheduledAt     time.Time `gorm:"not null;index"`
	DurationMinutes int       `gorm:"not null"`
	Topic           string    `gorm:"not null"`
	Status          string    `gorm:"not null;index"`
	Notes           string    `gorm:"type:text"`
	RemindedAt      *time.Time
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

type SupportTicketModel struct {
	ID        string    `gorm:"primaryKey"`
	UserID    string    `gorm:"not null;index"`
	Subject   string    `gorm:"not null"`
	Message   string    `gorm:"type:text;not null"`
	Status    string    `gorm:"not null;index"`
	Priority  string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}
