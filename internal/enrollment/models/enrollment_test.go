package models

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	t.Run("forward path is legal", func(t *testing.T) {
		path := []Status{
			StatusDraft, StatusDocumentsPending, StatusDocumentsSubmitted,
			StatusHealthDeclarationPending, StatusInterviewScheduled,
			StatusInterviewCompleted, StatusCompleted,
		}
		for i := 0; i < len(path)-1; i++ {
			assert.True(t, path[i].CanTransitionTo(path[i+1]),
				"%s -> %s must be legal", path[i], path[i+1])
		}
	})

	t.Run("documents pending may skip straight to declaration", func(t *testing.T) {
		assert.True(t, StatusDocumentsPending.CanTransitionTo(StatusHealthDeclarationPending))
	})

	t.Run("status never regresses", func(t *testing.T) {
		assert.False(t, StatusDocumentsSubmitted.CanTransitionTo(StatusDraft))
		assert.False(t, StatusInterviewScheduled.CanTransitionTo(StatusHealthDeclarationPending))
		assert.False(t, StatusCompleted.CanTransitionTo(StatusInterviewCompleted))
	})

	t.Run("cancel reachable from every non-terminal status", func(t *testing.T) {
		for status := range transitions {
			if status.Terminal() {
				assert.False(t, status.CanTransitionTo(StatusCancelled), "%s is terminal", status)
				continue
			}
			assert.True(t, status.CanTransitionTo(StatusCancelled), "%s must allow cancel", status)
		}
	})

	t.Run("terminal statuses allow nothing", func(t *testing.T) {
		for status := range transitions {
			if !status.Terminal() {
				continue
			}
			for next := range transitions {
				assert.False(t, status.CanTransitionTo(next))
			}
		}
	})

	t.Run("unknown status is invalid and goes nowhere", func(t *testing.T) {
		bogus := Status("PENDING_REVIEW")
		assert.False(t, bogus.IsValid())
		assert.False(t, bogus.CanTransitionTo(StatusCancelled))
	})
}

// TestRandomWalksStayInTable drives many random valid-transition sequences
// from DRAFT and asserts every visited status is a known one reachable from
// the previous, ending terminal or mid-flow but never outside the table.
func TestRandomWalksStayInTable(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for walk := 0; walk < 500; walk++ {
		current := StatusDraft
		for step := 0; step < 10; step++ {
			next := NextStatuses(current)
			if len(next) == 0 {
				require.True(t, current.Terminal())
				break
			}
			chosen := next[rng.Intn(len(next))]
			require.True(t, current.CanTransitionTo(chosen))
			require.True(t, chosen.IsValid())
			current = chosen
		}
	}
}

func TestMissingMetadataKeys(t *testing.T) {
	assert.Empty(t, MissingMetadataKeys(map[string]string{
		"full_name":     "Sample Member",
		"date_of_birth": "1990-02-03",
		"contact_email": "member@example.com",
	}))

	missing := MissingMetadataKeys(map[string]string{"full_name": "Sample Member"})
	assert.ElementsMatch(t, []string{"date_of_birth", "contact_email"}, missing)

	assert.Len(t, MissingMetadataKeys(nil), 3)
}

func TestMissingDeclarationAnswers(t *testing.T) {
	assert.Empty(t, MissingDeclarationAnswers(map[string]string{
		"chronic_conditions":  "none",
		"current_medications": "none",
		"allergies":           "none",
	}))
	assert.Contains(t, MissingDeclarationAnswers(map[string]string{
		"chronic_conditions": "asthma",
	}), "allergies")
}
