package lifecycle

import (
	"testing"

	"loanportal/pkg/domain"
)

func TestCurrentStageStatusWins(t *testing.T) {
	cases := []struct {
		status domain.ApplicationStatus
		stored int
		want   int
	}{
		{domain.ApplicationSubmitted, 5, 1},
		{domain.ApplicationUnderReview, 0, 2},
		{domain.ApplicationPendingDocuments, 7, 3},
		{domain.ApplicationPreApproved, 1, 4},
		{domain.ApplicationVehicleSelection, 2, 5},
		{domain.ApplicationFinalApproval, 3, 6},
		{domain.ApplicationFinalized, 1, 7},
		{"note_added", 3, 3},
		{"", 0, 1},
		{"archived", 12, 7},
	}
	for _, tc := range cases {
		if got := CurrentStage(tc.status, tc.stored); got != tc.want {
			t.Fatalf("CurrentStage(%q, %d) = %d, want %d", tc.status, tc.stored, got, tc.want)
		}
	}
}

func TestTableIsLinear(t *testing.T) {
	all := Stages()
	if len(all) != LastStage {
		t.Fatalf("expected %d stages, got %d", LastStage, len(all))
	}
	for i, s := range all {
		if s.Number != i+1 {
			t.Fatalf("stage %q numbered %d at position %d", s.Status, s.Number, i)
		}
		if s.Title == "" || s.NextStep == "" || s.Icon == "" {
			t.Fatalf("stage %q is missing copy", s.Status)
		}
	}
	if _, ok := Next(domain.ApplicationFinalized); ok {
		t.Fatalf("finalized must be terminal")
	}
	if next, ok := Next(domain.ApplicationPreApproved); !ok || next.Status != domain.ApplicationVehicleSelection {
		t.Fatalf("unexpected next stage %+v", next)
	}
}

func TestActionsByExactStatus(t *testing.T) {
	for _, s := range Stages() {
		switch s.Status {
		case domain.ApplicationPendingDocuments:
			if len(s.Actions) != 1 || s.Actions[0].Label != "Upload Documents" || s.Actions[0].Section != "documents" {
				t.Fatalf("unexpected pending_documents actions %+v", s.Actions)
			}
		case domain.ApplicationPreApproved:
			if len(s.Actions) != 1 || s.Actions[0].Label != "Schedule Consultation" || s.Actions[0].Section != "appointments" {
				t.Fatalf("unexpected pre_approved actions %+v", s.Actions)
			}
		default:
			if len(s.Actions) != 0 {
				t.Fatalf("status %q should expose no actions", s.Status)
			}
		}
	}
}

func TestDescribePreApproved(t *testing.T) {
	v := Describe(domain.Application{Status: domain.ApplicationPreApproved, CurrentStage: 2})
	if v.Current != 4 || !v.KnownStatus || v.Terminal {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.NextStep != "You're pre-approved! Book a time to discuss vehicle options." {
		t.Fatalf("next step = %q", v.NextStep)
	}
	if len(v.Actions) != 1 || v.Actions[0].Key != "schedule_consultation" {
		t.Fatalf("actions = %+v", v.Actions)
	}
}

func TestLookupReturnsCopies(t *testing.T) {
	s, _ := Lookup(domain.ApplicationPendingDocuments)
	s.Actions[0].Label = "changed"
	again, _ := Lookup(domain.ApplicationPendingDocuments)
	if again.Actions[0].Label != "Upload Documents" {
		t.Fatalf("table was mutated through a lookup")
	}
}
