package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"loanportal/pkg/domain"
)

const migrateLockID int64 = 51822024

// GormStore implements Store and UserStore on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and migrates the schema under an advisory
// lock so concurrent service starts do not race.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, migrate); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// newGormStoreWithDB wraps an already opened connection without migrating.
func newGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(
		&UserModel{},
		&ApplicationModel{},
		&DocumentModel{},
		&ApplicationStageModel{},
		&ApplicationNoteModel{},
		&NotificationModel{},
		&MessageModel{},
		&AppointmentModel{},
		&SupportTicketModel{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	// Child rows follow their application.
	for _, table := range []string{"document_models", "application_stage_models", "application_note_models"} {
		constraint := table + "_application_id_fkey"
		stmt := fmt.Sprintf(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = '%[1]s'
					AND constraint_name = '%[2]s'
				) THEN
					DELETE FROM %[1]s c
					WHERE NOT EXISTS (SELECT 1 FROM application_models a WHERE a.id = c.application_id);
					ALTER TABLE %[1]s
					ADD CONSTRAINT %[2]s
					FOREIGN KEY (application_id) REFERENCES application_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`, table, constraint)
		if err := tx.Exec(stmt).Error; err != nil {
			return fmt.Errorf("ensure %s foreign key: %w", table, err)
		}
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Ping checks the database connection.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first loads one row into dest and folds "not found" into found=false.
func first(q *gorm.DB, dest any, conds ...any) (bool, error) {
	err := q.First(dest, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func upsert(db *gorm.DB, model any, columns []string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(model).Error
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(u domain.User) error {
	model := userToModel(u)
	return upsert(s.db, &model, []string{"email", "password_hash", "first_name", "last_name", "role", "status", "updated_at"})
}

func (s *GormStore) HasUserEmail(email string) (bool, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *GormStore) GetUserByEmail(email string) (domain.User, bool, error) {
	var model UserModel
	found, err := first(s.db.Where("email = ?", email), &model)
	if !found || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

func (s *GormStore) GetUserByID(id string) (domain.User, bool, error) {
	var model UserModel
	found, err := first(s.db, &model, "id = ?", id)
	if !found || err != nil {
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListUsers returns all users, oldest first.
func (s *GormStore) ListUsers() ([]domain.User, error) {
	var models []UserModel
	if err := s.db.Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(models))
	for _, m := range models {
		out = append(out, userFromModel(m))
	}
	return out, nil
}

func (s *GormStore) UserCount() (int, error) {
	var count int64
	if err := s.db.Model(&UserModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

var applicationColumns = []string{
	"user_id", "temp_user_id", "status", "current_stage",
	"loan_amount_min", "loan_amount_max", "interest_rate", "interest_rate_min", "interest_rate_max",
	"term_months", "down_payment", "desired_monthly_payment",
	"first_name", "last_name", "email", "phone", "address_line", "city", "state", "zip_code",
	"employment_status", "employer_name", "annual_income", "credit_score", "vehicle_type",
	"updated_at",
}

// SaveApplication inserts or overwrites an application. Last write wins.
func (s *GormStore) SaveApplication(a domain.Application) error {
	model := applicationToModel(a)
	return upsert(s.db, &model, applicationColumns)
}

func (s *GormStore) GetApplication(id string) (domain.Application, bool, error) {
	var model ApplicationModel
	found, err := first(s.db, &model, "id = ?", id)
	if !found || err != nil {
		return domain.Application{}, false, err
	}
	return applicationFromModel(model), true, nil
}

// GetApplicationByUser returns the user's most recent application.
func (s *GormStore) GetApplicationByUser(userID string) (domain.Application, bool, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Application{}, false, nil
	}
	var model ApplicationModel
	found, err := first(s.db.Where("user_id = ?", userID).Order("created_at desc"), &model)
	if !found || err != nil {
		return domain.Application{}, false, err
	}
	return applicationFromModel(model), true, nil
}

// GetApplicationByTempUser returns an unlinked application for a
// pre-qualification key.
func (s *GormStore) GetApplicationByTempUser(tempUserID string) (domain.Application, bool, error) {
	if strings.TrimSpace(tempUserID) == "" {
		return domain.Application{}, false, nil
	}
	var model ApplicationModel
	found, err := first(s.db.Where("temp_user_id = ?", tempUserID).Order("created_at desc"), &model)
	if !found || err != nil {
		return domain.Application{}, false, err
	}
	return applicationFromModel(model), true, nil
}

func (s *GormStore) ListApplications(filter ApplicationFilter) ([]domain.Application, error) {
	q := s.db.Model(&ApplicationModel{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		q = q.Where("LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(email) LIKE ?", like, like, like)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	var models []ApplicationModel
	if err := q.Order("created_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.Application, 0, len(models))
	for _, m := range models {
		out = append(out, applicationFromModel(m))
	}
	return out, nil
}

func (s *GormStore) AppendStage(stage domain.ApplicationStage) error {
	model := stageToModel(stage)
	return s.db.Create(&model).Error
}

// ListStages returns the progress log oldest first.
func (s *GormStore) ListStages(applicationID string) ([]domain.ApplicationStage, error) {
	var models []ApplicationStageModel
	if err := s.db.Where("application_id = ?", applicationID).Order("timestamp asc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ApplicationStage, 0, len(models))
	for _, m := range models {
		out = append(out, stageFromModel(m))
	}
	return out, nil
}

func (s *GormStore) AddNote(note domain.ApplicationNote) error {
	model := noteToModel(note)
	return s.db.Create(&model).Error
}

// ListNotes returns admin notes newest first.
func (s *GormStore) ListNotes(applicationID string) ([]domain.ApplicationNote, error) {
	var models []ApplicationNoteModel
	if err := s.db.Where("application_id = ?", applicationID).Order("created_at desc").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.ApplicationNote, 0, len(models))
	for _, m := range models {
		out = append(out, noteFromModel(m))
	}
	return out, nil
}
