// Package lifecycle holds the application status table: stage numbers,
// labels, next-step copy and the actions a customer can take at each stage.
package lifecycle

import "loanportal/pkg/domain"

const (
	FirstStage = 1
	LastStage  = 7
)

// Action is a call to action shown for a stage. Section names the dashboard
// section the action switches to.
type Action struct {
	Key     string `json:"key"`
	Label   string `json:"label"`
	Section string `json:"section"`
}

type Stage struct {
	Status      domain.ApplicationStatus `json:"status"`
	Number      int                      `json:"number"`
	Icon        string                   `json:"icon"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	NextStep    string                   `json:"nextStep"`
	Actions     []Action                 `json:"actions"`
}

var stages = []Stage{
	{
		Status:      domain.ApplicationSubmitted,
		Number:      1,
		Icon:        "file-text",
		Title:       "Application Submitted",
		Description: "Your pre-qualification has been received.",
		NextStep:    "We've received your application and will begin reviewing it shortly.",
	},
	{
		Status:      domain.ApplicationUnderReview,
		Number:      2,
		Icon:        "search",
		Title:       "Under Review",
		Description: "A loan specialist is reviewing your information.",
		NextStep:    "Our team is reviewing your application. We'll reach out if we need anything.",
	},
	{
		Status:      domain.ApplicationPendingDocuments,
		Number:      3,
		Icon:        "upload",
		Title:       "Documents Needed",
		Description: "We need a few documents to verify your details.",
		NextStep:    "Please upload the required documents to continue.",
		Actions:     []Action{{Key: "upload_documents", Label: "Upload Documents", Section: "documents"}},
	},
	{
		Status:      domain.ApplicationPreApproved,
		Number:      4,
		Icon:        "badge-check",
		Title:       "Pre-Approved",
		Description: "You're pre-approved for financing.",
		NextStep:    "You're pre-approved! Book a time to discuss vehicle options.",
		Actions:     []Action{{Key: "schedule_consultation", Label: "Schedule Consultation", Section: "appointments"}},
	},
	{
		Status:      domain.ApplicationVehicleSelection,
		Number:      5,
		Icon:        "car",
		Title:       "Vehicle Selection",
		Description: "Pick the vehicle you want to finance.",
		NextStep:    "Choose your vehicle and share the details with your loan specialist.",
	},
	{
		Status:      domain.ApplicationFinalApproval,
		Number:      6,
		Icon:        "clipboard-check",
		Title:       "Final Approval",
		Description: "Your loan terms are being finalized.",
		NextStep:    "We're finalizing your loan terms. Expect final approval soon.",
	},
	{
		Status:      domain.ApplicationFinalized,
		Number:      7,
		Icon:        "check-circle",
		Title:       "Finalized",
		Description: "Your loan is complete.",
		NextStep:    "Congratulations! Your auto loan has been finalized.",
	},
}

var byStatus = func() map[domain.ApplicationStatus]int {
	m := make(map[domain.ApplicationStatus]int, len(stages))
	for i, s := range stages {
		m[s.Status] = i
	}
	return m
}()

// Stages returns the table in stage order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s.clone()
	}
	return out
}

// Lookup returns the stage for a known status.
func Lookup(status domain.ApplicationStatus) (Stage, bool) {
	i, ok := byStatus[status]
	if !ok {
		return Stage{}, false
	}
	return stages[i].clone(), true
}

// Known reports whether status is one of the seven lifecycle statuses.
func Known(status domain.ApplicationStatus) bool {
	_, ok := byStatus[status]
	return ok
}

func StageByNumber(n int) (Stage, bool) {
	if n < FirstStage || n > LastStage {
		return Stage{}, false
	}
	return stages[n-1].clone(), true
}

// CurrentStage derives the displayed stage number. A known status always
// wins over the stored value; otherwise stored is clamped into range.
func CurrentStage(status domain.ApplicationStatus, stored int) int {
	if s, ok := Lookup(status); ok {
		return s.Number
	}
	switch {
	case stored < FirstStage:
		return FirstStage
	case stored > LastStage:
		return LastStage
	default:
		return stored
	}
}

// Terminal reports whether no further stage follows status.
func Terminal(status domain.ApplicationStatus) bool {
	return status == domain.ApplicationFinalized
}

// Next returns the stage after status, if any.
func Next(status domain.ApplicationStatus) (Stage, bool) {
	s, ok := Lookup(status)
	if !ok || Terminal(status) {
		return Stage{}, false
	}
	return StageByNumber(s.Number + 1)
}

// View is the stage summary rendered by the dashboard and the admin detail
// page alike.
type View struct {
	Stage
	Current  int  `json:"current"`
	Total    int  `json:"total"`
	Terminal bool `json:"terminal"`
	// KnownStatus is false when the stage came from the stored number.
	KnownStatus bool `json:"knownStatus"`
}

// Describe builds the view for an application.
func Describe(app domain.Application) View {
	current := CurrentStage(app.Status, app.CurrentStage)
	stage, _ := StageByNumber(current)
	known := Known(app.Status)
	return View{
		Stage:       stage,
		Current:     current,
		Total:       LastStage,
		Terminal:    current == LastStage,
		KnownStatus: known,
	}
}

func (s Stage) clone() Stage {
	if s.Actions != nil {
		s.Actions = append([]Action(nil), s.Actions...)
	}
	return s
}
