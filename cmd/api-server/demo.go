package main

import (
	"strings"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/appointment"
)

// seedMemoryDirectory fills an in-memory user directory with fake users so a
// memory-backed server can take bookings. IDs are logged for use in the
// X-User-ID header.
func seedMemoryDirectory(repo *appointment.MemoryRepository, lg *zap.Logger) {
	plan := []struct {
		role  appointment.Role
		count int
	}{
		{appointment.RoleAdmin, 1},
		{appointment.RolePsychologist, 3},
		{appointment.RoleStudent, 5},
	}

	for _, p := range plan {
		for i := 0; i < p.count; i++ {
			first, last := gofakeit.FirstName(), gofakeit.LastName()
			u := appointment.User{
				ID:       uuid.New(),
				Name:     first + " " + last,
				Email:    strings.ToLower(first + "." + last + "@university.test"),
				Role:     p.role,
				IsActive: true,
			}
			repo.PutUser(u)
			lg.Info("demo user", zap.String("role", string(u.Role)), zap.Stringer("id", u.ID), zap.String("email", u.Email))
		}
	}
}
