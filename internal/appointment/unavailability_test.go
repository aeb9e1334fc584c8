package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

func TestCreateBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reason := "conference"

	block, err := f.svc.CreateBlock(ctx, f.actor(f.psych), BlockRequest{
		PsychologistID: f.psych.ID,
		Date:           tomorrow,
		StartTime:      tod("08:00"),
		EndTime:        tod("09:00"),
		Reason:         &reason,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if block.ID == uuid.Nil || block.IsWholeDay() {
		t.Fatalf("expected stored partial block, got %+v", block)
	}

	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, at := range []string{"08:00", "08:45"} {
		if s := slotByTime(t, day, at); s.Available {
			t.Errorf("expected %s blocked", at)
		}
	}
	if s := slotByTime(t, day, "09:30"); !s.Available {
		t.Error("expected 09:30 available")
	}
}

func TestCreateBlock_Validation(t *testing.T) {
	tests := []struct {
		name  string
		req   func(f *fixture) BlockRequest
		kind  ValidationKind
		field string
	}{
		{"past date", func(f *fixture) BlockRequest {
			return BlockRequest{PsychologistID: f.psych.ID, Date: schedule.NewDate(2025, time.March, 7)}
		}, InvalidDate, "date"},
		{"only start", func(f *fixture) BlockRequest {
			return BlockRequest{PsychologistID: f.psych.ID, Date: tomorrow, StartTime: tod("10:00")}
		}, InvalidRange, "start_time"},
		{"end before start", func(f *fixture) BlockRequest {
			return BlockRequest{PsychologistID: f.psych.ID, Date: tomorrow, StartTime: tod("10:00"), EndTime: tod("09:00")}
		}, InvalidRange, "end_time"},
		{"empty range", func(f *fixture) BlockRequest {
			return BlockRequest{PsychologistID: f.psych.ID, Date: tomorrow, StartTime: tod("10:00"), EndTime: tod("10:00")}
		}, InvalidRange, "end_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateBlock(context.Background(), f.actor(f.admin), tt.req(f))
			expectValidation(t, err, tt.kind, tt.field)
		})
	}
}

func TestCreateBlock_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := BlockRequest{PsychologistID: f.psych.ID, Date: tomorrow}

	for _, actor := range []Actor{f.actor(f.student), f.actor(f.otherPsych)} {
		_, err := f.svc.CreateBlock(ctx, actor, req)
		expectPermission(t, err)
	}
	if _, err := f.svc.CreateBlock(ctx, f.actor(f.admin), req); err != nil {
		t.Fatalf("expected admin to declare unavailability, got %v", err)
	}

	_, err := f.svc.CreateBlock(ctx, f.actor(f.admin), BlockRequest{PsychologistID: uuid.New(), Date: tomorrow})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for unknown psychologist, got %v", err)
	}
}

func TestDeleteBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	block, err := f.svc.CreateBlock(ctx, f.actor(f.psych), BlockRequest{PsychologistID: f.psych.ID, Date: tomorrow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var nf *NotFoundError
	err = f.svc.DeleteBlock(ctx, f.actor(f.otherPsych), f.otherPsych.ID, block.ID)
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError for another psychologist's block, got %v", err)
	}
	err = f.svc.DeleteBlock(ctx, f.actor(f.student), f.psych.ID, block.ID)
	expectPermission(t, err)

	if err := f.svc.DeleteBlock(ctx, f.actor(f.psych), f.psych.ID, block.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	day, err := f.svc.Availability(ctx, f.psych.ID, tomorrow)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if day.DayBlocked {
		t.Error("expected day open after deleting block")
	}

	if err := f.svc.DeleteBlock(ctx, f.actor(f.psych), f.psych.ID, block.ID); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError deleting twice, got %v", err)
	}
}

func TestListBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []schedule.Date{tomorrow, schedule.NewDate(2025, time.March, 13), schedule.NewDate(2025, time.April, 30)} {
		if _, err := f.svc.CreateBlock(ctx, f.actor(f.psych), BlockRequest{PsychologistID: f.psych.ID, Date: d}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	blocks, err := f.svc.ListBlocks(ctx, f.psych.ID, schedule.Date{}, schedule.Date{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks within the horizon, got %d", len(blocks))
	}
	if blocks[0].Date != tomorrow {
		t.Errorf("expected ascending dates, got %s first", blocks[0].Date)
	}

	_, err = f.svc.ListBlocks(ctx, f.psych.ID, tomorrow, today)
	expectValidation(t, err, InvalidRange, "to")
}
