//go:build integration

package enrollment

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregate/internal/enrollment/models"
	"caregate/internal/enrollment/store"
	id "caregate/pkg/domain"
	"caregate/pkg/platform/sentinel"
	"caregate/pkg/testutil/containers"
)

func applySchema(t *testing.T, pc *containers.PostgresContainer) {
	t.Helper()
	schema, err := os.ReadFile("../../../migrations/001_init.sql")
	require.NoError(t, err, "read schema migration")
	pc.Exec(t, string(schema))
}

func newEnrollment(ownerID id.UserID) *models.Enrollment {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Enrollment{
		ID:      id.NewEnrollmentID(),
		OwnerID: ownerID,
		Status:  models.StatusDraft,
		Metadata: map[string]string{
			"full_name":     "Ada Nilsen",
			"date_of_birth": "1987-04-12",
			"contact_email": "ada.nilsen@example.com",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresStore_EnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	applySchema(t, pc)
	enrollments := store.NewPostgresStore(pc.DB)

	ownerID := id.NewUserID()
	enrollment := newEnrollment(ownerID)
	require.NoError(t, enrollments.Create(ctx, enrollment))

	found, err := enrollments.FindByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.ID, found.ID)
	assert.Equal(t, models.StatusDraft, found.Status)
	assert.Equal(t, enrollment.Metadata, found.Metadata)

	// CAS succeeds only when the expected status still holds.
	at := time.Now().UTC()
	require.NoError(t, enrollments.UpdateStatusCAS(ctx, enrollment.ID,
		models.StatusDraft, models.StatusDocumentsPending, at))

	err = enrollments.UpdateStatusCAS(ctx, enrollment.ID,
		models.StatusDraft, models.StatusDocumentsPending, at)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	err = enrollments.UpdateStatusCAS(ctx, id.NewEnrollmentID(),
		models.StatusDraft, models.StatusDocumentsPending, at)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	found, err = enrollments.FindByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentsPending, found.Status)
}

func TestPostgresStore_DocumentsAndDeclaration(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	applySchema(t, pc)
	enrollments := store.NewPostgresStore(pc.DB)

	enrollment := newEnrollment(id.NewUserID())
	require.NoError(t, enrollments.Create(ctx, enrollment))

	first := id.NewDocumentID()
	second := id.NewDocumentID()
	require.NoError(t, enrollments.AttachDocument(ctx, enrollment.ID, first))
	require.NoError(t, enrollments.AttachDocument(ctx, enrollment.ID, second))
	// Re-attaching the same document is idempotent.
	require.NoError(t, enrollments.AttachDocument(ctx, enrollment.ID, first))

	declaration := models.HealthDeclaration{
		Answers: map[string]string{
			"chronic_conditions":  "none",
			"current_medications": "none",
			"allergies":           "pollen",
		},
		RecordedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, enrollments.SaveDeclaration(ctx, enrollment.ID, declaration))

	found, err := enrollments.FindByID(ctx, enrollment.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []id.DocumentID{first, second}, found.DocumentIDs)
	require.NotNil(t, found.Declaration)
	assert.Equal(t, declaration.Answers, found.Declaration.Answers)
}

func TestPostgresStore_ListByOwner(t *testing.T) {
	ctx := context.Background()
	pc := containers.NewPostgresContainer(t)
	applySchema(t, pc)
	enrollments := store.NewPostgresStore(pc.DB)

	ownerID := id.NewUserID()
	first := newEnrollment(ownerID)
	require.NoError(t, enrollments.Create(ctx, first))
	second := newEnrollment(ownerID)
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	require.NoError(t, enrollments.Create(ctx, second))
	require.NoError(t, enrollments.Create(ctx, newEnrollment(id.NewUserID())))

	owned, err := enrollments.ListByOwner(ctx, ownerID)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, first.ID, owned[0].ID)
	assert.Equal(t, second.ID, owned[1].ID)
}
