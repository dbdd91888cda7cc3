package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"loanportal/internal/util"
	"loanportal/pkg/domain"
	"loanportal/pkg/lifecycle"
	"loanportal/pkg/realtime"
	"loanportal/pkg/store"
	"loanportal/pkg/textutil"
)

// PrequalRequest is the anonymous pre-qualification form.
type PrequalRequest struct {
	TempUserID            string          `json:"tempUserId" validate:"omitempty,max=64"`
	FirstName             string          `json:"firstName" validate:"required,max=100"`
	LastName              string          `json:"lastName" validate:"required,max=100"`
	Email                 string          `json:"email" validate:"required,email,max=254"`
	Phone                 string          `json:"phone" validate:"required,min=7,max=32"`
	AddressLine           string          `json:"addressLine" validate:"max=200"`
	City                  string          `json:"city" validate:"max=100"`
	State                 string          `json:"state" validate:"omitempty,len=2,alpha"`
	ZipCode               string          `json:"zipCode" validate:"required,numeric,len=5"`
	EmploymentStatus      string          `json:"employmentStatus" validate:"required,oneof=employed self_employed retired student unemployed other"`
	EmployerName          string          `json:"employerName" validate:"max=200"`
	AnnualIncome          decimal.Decimal `json:"annualIncome"`
	CreditScore           string          `json:"creditScore" validate:"required,oneof=excellent good fair poor unknown"`
	VehicleType           string          `json:"vehicleType" validate:"omitempty,oneof=new used"`
	LoanAmountMin         decimal.Decimal `json:"loanAmountMin"`
	LoanAmountMax         decimal.Decimal `json:"loanAmountMax"`
	DownPayment           decimal.Decimal `json:"downPayment"`
	DesiredMonthlyPayment decimal.Decimal `json:"desiredMonthlyPayment"`
	TermMonths            int             `json:"termMonths" validate:"omitempty,min=12,max=96"`
}

// Prequalify creates an unlinked application keyed by a temporary user id
// that signup later claims.
func (a *App) Prequalify(ctx context.Context, req PrequalRequest) (domain.Application, error) {
	if err := a.check(req); err != nil {
		return domain.Application{}, err
	}
	if req.AnnualIncome.IsNegative() || req.DownPayment.IsNegative() || req.DesiredMonthlyPayment.IsNegative() {
		return domain.Application{}, invalid("amounts must not be negative")
	}
	if !req.LoanAmountMax.IsZero() && req.LoanAmountMin.GreaterThan(req.LoanAmountMax) {
		return domain.Application{}, invalid("loanAmountMin must not exceed loanAmountMax")
	}
	tempID := strings.TrimSpace(req.TempUserID)
	if tempID == "" {
		tempID = util.NewEntityID()
	}
	now := a.timestamp()
	app := domain.Application{
		ID:                    util.NewEntityID(),
		TempUserID:            tempID,
		Status:                domain.ApplicationSubmitted,
		CurrentStage:          lifecycle.FirstStage,
		FirstName:             textutil.StripHTML(req.FirstName),
		LastName:              textutil.StripHTML(req.LastName),
		Email:                 strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:                 strings.TrimSpace(req.Phone),
		AddressLine:           textutil.StripHTML(req.AddressLine),
		City:                  textutil.StripHTML(req.City),
		State:                 strings.ToUpper(req.State),
		ZipCode:               req.ZipCode,
		EmploymentStatus:      req.EmploymentStatus,
		EmployerName:          textutil.StripHTML(req.EmployerName),
		AnnualIncome:          nullable(req.AnnualIncome),
		CreditScore:           req.CreditScore,
		VehicleType:           req.VehicleType,
		LoanAmountMin:         nullable(req.LoanAmountMin),
		LoanAmountMax:         nullable(req.LoanAmountMax),
		DownPayment:           nullable(req.DownPayment),
		DesiredMonthlyPayment: nullable(req.DesiredMonthlyPayment),
		TermMonths:            req.TermMonths,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := a.store.SaveApplication(app); err != nil {
		return domain.Application{}, fmt.Errorf("save application: %w", err)
	}
	a.appendStage(ctx, app, lifecycle.FirstStage, domain.StageCompleted, "Pre-qualification submitted")
	a.publish(ctx, realtime.TableApplications, realtime.EventInsert, "", app)
	return app, nil
}

// ClaimApplication links the pre-qualification identified by tempUserID to
// a newly registered user, or creates an empty application when there is
// nothing to claim.
func (a *App) ClaimApplication(ctx context.Context, userID, email, tempUserID string) (domain.Application, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Application{}, invalid("userId required")
	}
	if existing, ok, err := a.store.GetApplicationByUser(userID); err != nil {
		return domain.Application{}, fmt.Errorf("load application: %w", err)
	} else if ok {
		return existing, nil
	}
	if tempUserID = strings.TrimSpace(tempUserID); tempUserID != "" {
		app, ok, err := a.store.GetApplicationByTempUser(tempUserID)
		if err != nil {
			return domain.Application{}, fmt.Errorf("load application: %w", err)
		}
		if ok && app.UserID == "" {
			app.UserID = userID
			app.UpdatedAt = a.timestamp()
			if app.Email == "" {
				app.Email = strings.ToLower(strings.TrimSpace(email))
			}
			if err := a.store.SaveApplication(app); err != nil {
				return domain.Application{}, fmt.Errorf("link application: %w", err)
			}
			a.log(ctx).Info("application claimed", "application_id", app.ID, "user_id", userID)
			a.publish(ctx, realtime.TableApplications, realtime.EventUpdate, userID, app)
			a.notify(ctx, userID, "Application Created", "Your auto loan application has been created. We'll keep you posted on every step.")
			return app, nil
		}
	}
	return a.createApplication(ctx, userID, email)
}

// EnsureApplication returns the caller's application, creating one on the
// first visit.
func (a *App) EnsureApplication(ctx context.Context, id domain.Identity) (domain.Application, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Application{}, err
	}
	app, ok, err := a.store.GetApplicationByUser(id.UserID)
	if err != nil {
		return domain.Application{}, fmt.Errorf("load application: %w", err)
	}
	if ok {
		return app, nil
	}
	return a.createApplication(ctx, id.UserID, id.Email)
}

func (a *App) createApplication(ctx context.Context, userID, email string) (domain.Application, error) {
	now := a.timestamp()
	app := domain.Application{
		ID:           util.NewEntityID(),
		UserID:       userID,
		Status:       domain.ApplicationSubmitted,
		CurrentStage: lifecycle.FirstStage,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveApplication(app); err != nil {
		return domain.Application{}, fmt.Errorf("create application: %w", err)
	}
	a.log(ctx).Info("application created", "application_id", app.ID, "user_id", userID)
	a.appendStage(ctx, app, lifecycle.FirstStage, domain.StageCompleted, "Application created")
	a.publish(ctx, realtime.TableApplications, realtime.EventInsert, userID, app)
	a.notify(ctx, userID, "Application Created", "Your auto loan application has been created. We'll keep you posted on every step.")
	return app, nil
}

// ProfileUpdate carries the applicant-editable fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	FirstName        *string          `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName         *string          `json:"lastName" validate:"omitempty,min=1,max=100"`
	Phone            *string          `json:"phone" validate:"omitempty,min=7,max=32"`
	AddressLine      *string          `json:"addressLine" validate:"omitempty,max=200"`
	City             *string          `json:"city" validate:"omitempty,max=100"`
	State            *string          `json:"state" validate:"omitempty,len=2,alpha"`
	ZipCode          *string          `json:"zipCode" validate:"omitempty,numeric,len=5"`
	EmploymentStatus *string          `json:"employmentStatus" validate:"omitempty,oneof=employed self_employed retired student unemployed other"`
	EmployerName     *string          `json:"employerName" validate:"omitempty,max=200"`
	CreditScore      *string          `json:"creditScore" validate:"omitempty,oneof=excellent good fair poor unknown"`
	VehicleType      *string          `json:"vehicleType" validate:"omitempty,oneof=new used"`
	AnnualIncome     *decimal.Decimal `json:"annualIncome"`
}

// UpdateProfile applies an applicant's edits to their own application.
func (a *App) UpdateProfile(ctx context.Context, id domain.Identity, req ProfileUpdate) (domain.Application, error) {
	if err := requireIdentity(id); err != nil {
		return domain.Application{}, err
	}
	if err := a.check(req); err != nil {
		return domain.Application{}, err
	}
	if req.AnnualIncome != nil && req.AnnualIncome.IsNegative() {
		return domain.Application{}, invalid("annualIncome must not be negative")
	}
	app, err := a.loadApplication(id, "")
	if err != nil {
		return domain.Application{}, err
	}
	req.apply(&app)
	return a.saveEdited(ctx, app)
}

func (p ProfileUpdate) apply(app *domain.Application) {
	setText(&app.FirstName, p.FirstName)
	setText(&app.LastName, p.LastName)
	setText(&app.Phone, p.Phone)
	setText(&app.AddressLine, p.AddressLine)
	setText(&app.City, p.City)
	if p.State != nil {
		app.State = strings.ToUpper(*p.State)
	}
	setText(&app.ZipCode, p.ZipCode)
	setText(&app.EmploymentStatus, p.EmploymentStatus)
	setText(&app.EmployerName, p.EmployerName)
	setText(&app.CreditScore, p.CreditScore)
	setText(&app.VehicleType, p.VehicleType)
	if p.AnnualIncome != nil {
		app.AnnualIncome = nullable(*p.AnnualIncome)
	}
}

// AdminPatch is the raw back-office edit. Status and CurrentStage are
// written as given; they are not reconciled with each other.
type AdminPatch struct {
	ProfileUpdate
	Status                *string          `json:"status" validate:"omitempty,min=1,max=64"`
	CurrentStage          *int             `json:"currentStage"`
	LoanAmountMin         *decimal.Decimal `json:"loanAmountMin"`
	LoanAmountMax         *decimal.Decimal `json:"loanAmountMax"`
	InterestRate          *decimal.Decimal `json:"interestRate"`
	InterestRateMin       *decimal.Decimal `json:"interestRateMin"`
	InterestRateMax       *decimal.Decimal `json:"interestRateMax"`
	TermMonths            *int             `json:"termMonths" validate:"omitempty,min=0,max=120"`
	DownPayment           *decimal.Decimal `json:"downPayment"`
	DesiredMonthlyPayment *decimal.Decimal `json:"desiredMonthlyPayment"`
}

// PatchApplication applies an admin edit.
func (a *App) PatchApplication(ctx context.Context, id domain.Identity, applicationID string, req AdminPatch) (domain.Application, error) {
	if err := requireAdmin(id); err != nil {
		return domain.Application{}, err
	}
	if err := a.check(req); err != nil {
		return domain.Application{}, err
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	req.ProfileUpdate.apply(&app)
	if req.Status != nil {
		app.Status = domain.ApplicationStatus(strings.TrimSpace(*req.Status))
	}
	if req.CurrentStage != nil {
		app.CurrentStage = *req.CurrentStage
	}
	setDecimal(&app.LoanAmountMin, req.LoanAmountMin)
	setDecimal(&app.LoanAmountMax, req.LoanAmountMax)
	setDecimal(&app.InterestRate, req.InterestRate)
	setDecimal(&app.InterestRateMin, req.InterestRateMin)
	setDecimal(&app.InterestRateMax, req.InterestRateMax)
	setDecimal(&app.DownPayment, req.DownPayment)
	setDecimal(&app.DesiredMonthlyPayment, req.DesiredMonthlyPayment)
	if req.TermMonths != nil {
		app.TermMonths = *req.TermMonths
	}
	return a.saveEdited(ctx, app)
}

func (a *App) saveEdited(ctx context.Context, app domain.Application) (domain.Application, error) {
	app.UpdatedAt = a.timestamp()
	if err := a.store.SaveApplication(app); err != nil {
		return domain.Application{}, fmt.Errorf("save application: %w", err)
	}
	a.publish(ctx, realtime.TableApplications, realtime.EventUpdate, app.UserID, app)
	return app, nil
}

// ChangeStatus moves an application to one of the lifecycle statuses, logs
// the progress event and tells the applicant. current_stage is not touched.
func (a *App) ChangeStatus(ctx context.Context, id domain.Identity, applicationID string, status domain.ApplicationStatus, notes string) (domain.Application, error) {
	if err := requireAdmin(id); err != nil {
		return domain.Application{}, err
	}
	stage, ok := lifecycle.Lookup(status)
	if !ok {
		return domain.Application{}, ErrInvalidStatus
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return domain.Application{}, err
	}
	previous := app.Status
	app.Status = status
	app, err = a.saveEdited(ctx, app)
	if err != nil {
		return domain.Application{}, err
	}
	a.log(ctx).Info("application status changed", "application_id", app.ID, "from", string(previous), "to", string(status), "by", id.UserID)
	a.appendStage(ctx, app, stage.Number, domain.StageInProgress, textutil.StripHTML(notes))
	a.notify(ctx, app.UserID, "Application Status Updated",
		fmt.Sprintf("Your application is now at stage %d: %s. %s", stage.Number, stage.Title, stage.NextStep))
	return app, nil
}

// AddNote appends an admin note to an application.
func (a *App) AddNote(ctx context.Context, id domain.Identity, applicationID, body string) (domain.ApplicationNote, error) {
	if err := requireAdmin(id); err != nil {
		return domain.ApplicationNote{}, err
	}
	body = textutil.Truncate(textutil.StripHTML(body), 5000)
	if body == "" {
		return domain.ApplicationNote{}, invalid("note body required")
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return domain.ApplicationNote{}, err
	}
	note := domain.ApplicationNote{
		ID:            util.NewEntityID(),
		ApplicationID: app.ID,
		AuthorID:      id.UserID,
		Body:          body,
		CreatedAt:     a.timestamp(),
	}
	if err := a.store.AddNote(note); err != nil {
		return domain.ApplicationNote{}, fmt.Errorf("add note: %w", err)
	}
	return note, nil
}

// ListApplications is the admin application list.
func (a *App) ListApplications(_ context.Context, id domain.Identity, filter store.ApplicationFilter) ([]domain.Application, error) {
	if err := requireAdmin(id); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return a.store.ListApplications(filter)
}

// ApplicationDetail is the admin view of one application.
type ApplicationDetail struct {
	Application domain.Application        `json:"application"`
	Stage       lifecycle.View            `json:"stage"`
	Documents   []DocumentGroup           `json:"documents"`
	Timeline    []domain.ApplicationStage `json:"timeline"`
	Notes       []domain.ApplicationNote  `json:"notes"`
}

func (a *App) GetApplicationDetail(_ context.Context, id domain.Identity, applicationID string) (ApplicationDetail, error) {
	if err := requireAdmin(id); err != nil {
		return ApplicationDetail{}, err
	}
	app, err := a.loadApplication(id, applicationID)
	if err != nil {
		return ApplicationDetail{}, err
	}
	docs, err := a.store.ListDocuments(app.ID)
	if err != nil {
		return ApplicationDetail{}, fmt.Errorf("list documents: %w", err)
	}
	stages, err := a.store.ListStages(app.ID)
	if err != nil {
		return ApplicationDetail{}, fmt.Errorf("list stages: %w", err)
	}
	notes, err := a.store.ListNotes(app.ID)
	if err != nil {
		return ApplicationDetail{}, fmt.Errorf("list notes: %w", err)
	}
	return ApplicationDetail{
		Application: app,
		Stage:       lifecycle.Describe(app),
		Documents:   GroupDocuments(docs),
		Timeline:    stages,
		Notes:       notes,
	}, nil
}

func setText(dst *string, v *string) {
	if v != nil {
		*dst = textutil.StripHTML(*v)
	}
}

func setDecimal(dst *decimal.NullDecimal, v *decimal.Decimal) {
	if v != nil {
		*dst = decimal.NewNullDecimal(*v)
	}
}

// nullable stores zero amounts as NULL.
func nullable(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
