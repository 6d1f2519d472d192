package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"vtrack/internal/storage/memory"
	user "vtrack/internal/user/models"
	violator "vtrack/internal/violator/models"
)

func seedPeople(t *testing.T, db *memory.DB, violatorID, officerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.Violators().Create(ctx, &violator.Violator{
		ID: violatorID, LicenseNumber: violatorID.String(), FirstName: "Juan", LastName: "Dela Cruz", CreatedAt: time.Now(),
	}))
	require.NoError(t, db.Users().Create(ctx, &user.User{
		ID: officerID, Email: officerID.String() + "@vtrack.test", FirstName: "Ana", LastName: "Reyes", Role: "officer", IsActive: true,
	}))
}
