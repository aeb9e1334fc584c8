package appointment

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/counseling-scheduler/internal/schedule"
)

// maxBlockRangeDays bounds ListBlocks queries.
const maxBlockRangeDays = 92

type BlockRequest struct {
	PsychologistID uuid.UUID
	Date           schedule.Date
	StartTime      *schedule.TimeOfDay
	EndTime        *schedule.TimeOfDay
	Reason         *string
}

func canManageBlocks(actor Actor, psychologistID uuid.UUID) bool {
	return actor.IsAdmin() || (actor.Role == RolePsychologist && actor.ID == psychologistID)
}

// CreateBlock declares a psychologist unavailable for a whole day, or for
// [StartTime, EndTime) when both are given.
func (s *Service) CreateBlock(ctx context.Context, actor Actor, req BlockRequest) (*UnavailabilityBlock, error) {
	if !canManageBlocks(actor, req.PsychologistID) {
		return nil, &PermissionError{Role: actor.Role, Action: "manage this psychologist's unavailability"}
	}
	if _, err := s.psychologist(ctx, req.PsychologistID, false); err != nil {
		return nil, err
	}

	if req.Date.IsZero() || req.Date.Before(s.calendar.Today()) {
		return nil, &ValidationError{Kind: InvalidDate, Field: "date", Message: "unavailability cannot be declared for a past date"}
	}
	if (req.StartTime == nil) != (req.EndTime == nil) {
		return nil, &ValidationError{Kind: InvalidRange, Field: "start_time", Message: "start_time and end_time must be given together"}
	}
	if req.StartTime != nil {
		if !req.StartTime.Valid() || !req.EndTime.Valid() || *req.StartTime >= *req.EndTime {
			return nil, &ValidationError{Kind: InvalidRange, Field: "end_time", Message: "end_time must be after start_time"}
		}
	}

	block := &UnavailabilityBlock{
		PsychologistID: req.PsychologistID,
		Date:           req.Date,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Reason:         req.Reason,
	}
	if err := s.repo.CreateBlock(ctx, block); err != nil {
		return nil, fmt.Errorf("create unavailability block: %w", err)
	}

	s.log.Info("unavailability declared",
		zap.Stringer("block_id", block.ID),
		zap.Stringer("psychologist_id", block.PsychologistID),
		zap.Stringer("date", block.Date),
		zap.Bool("whole_day", block.IsWholeDay()),
	)
	return block, nil
}

// DeleteBlock removes a block owned by psychologistID. Blocks of other
// psychologists are reported as not found.
func (s *Service) DeleteBlock(ctx context.Context, actor Actor, psychologistID, blockID uuid.UUID) error {
	if !canManageBlocks(actor, psychologistID) {
		return &PermissionError{Role: actor.Role, Action: "manage this psychologist's unavailability"}
	}

	block, err := s.repo.GetBlock(ctx, blockID)
	if err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return notFound("unavailability block", blockID.String())
		}
		return fmt.Errorf("load unavailability block: %w", err)
	}
	if block.PsychologistID != psychologistID {
		return notFound("unavailability block", blockID.String())
	}

	if err := s.repo.DeleteBlock(ctx, blockID); err != nil {
		if errors.Is(err, ErrBlockNotFound) {
			return notFound("unavailability block", blockID.String())
		}
		return fmt.Errorf("delete unavailability block: %w", err)
	}

	s.log.Info("unavailability removed",
		zap.Stringer("block_id", blockID),
		zap.Stringer("psychologist_id", psychologistID),
	)
	return nil
}

// ListBlocks returns the blocks of one psychologist between from and to
// inclusive. A zero from defaults to today, a zero to to the booking horizon.
func (s *Service) ListBlocks(ctx context.Context, psychologistID uuid.UUID, from, to schedule.Date) ([]UnavailabilityBlock, error) {
	if _, err := s.psychologist(ctx, psychologistID, false); err != nil {
		return nil, err
	}

	today := s.calendar.Today()
	if from.IsZero() {
		from = today
	}
	if to.IsZero() {
		to = today.AddDays(s.calendar.Policy().BookingHorizonDays)
	}
	if to.Before(from) {
		return nil, &ValidationError{Kind: InvalidRange, Field: "to", Message: "to must not be before from"}
	}
	if to.DaysSince(from) > maxBlockRangeDays {
		return nil, &ValidationError{Kind: InvalidRange, Field: "to", Message: fmt.Sprintf("range must not exceed %d days", maxBlockRangeDays)}
	}

	blocks, err := s.repo.ListBlocks(ctx, psychologistID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list unavailability blocks: %w", err)
	}
	return blocks, nil
}
