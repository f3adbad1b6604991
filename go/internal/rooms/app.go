package rooms

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/pokerroom/go/internal/models"
)

const (
	codeLength   = 6
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeAttempts = 5
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RoomsRepository defines what the app layer needs from the repository
type RoomsRepository interface {
	Create(ctx context.Context, req CreateRoomRequest) (*models.RoomRecord, error)
	FindByID(ctx context.Context, id string) (*models.RoomRecord, error)
	FindByCode(ctx context.Context, code string) (*models.RoomRecord, error)
	Update(ctx context.Context, id string, req UpdateRoomRequest) (*models.RoomRecord, error)
	Delete(ctx context.Context, id string) error
}

// App handles room metadata business logic
type App struct {
	repo    RoomsRepository
	newCode func() string
}

// NewApp creates a new rooms App
func NewApp(repo RoomsRepository) *App {
	return &App{
		repo:    repo,
		newCode: randomCode,
	}
}

// CreateRoom validates and stores a new room record, generating its id and
// join code when they are not supplied.
func (a *App) CreateRoom(ctx context.Context, req CreateRoomRequest) (*models.RoomRecord, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Topic = strings.TrimSpace(req.Topic)
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	generated := req.Code == ""
	for attempt := 0; ; attempt++ {
		if generated {
			req.Code = a.newCode()
		}
		rec, err := a.repo.Create(ctx, req)
		if err == nil {
			log.Info().
				Str("room_id", rec.ID).
				Str("code", rec.Code).
				Msg("room record created")
			return rec, nil
		}
		if !generated || !errors.Is(err, ErrCodeTaken) || attempt+1 >= codeAttempts {
			return nil, err
		}
		log.Debug().Str("code", req.Code).Msg("room code collision, retrying")
	}
}

// GetRoom retrieves a room record by id
func (a *App) GetRoom(ctx context.Context, id string) (*models.RoomRecord, error) {
	return a.repo.FindByID(ctx, id)
}

// GetRoomByCode retrieves an active room record by its join code
func (a *App) GetRoomByCode(ctx context.Context, code string) (*models.RoomRecord, error) {
	return a.repo.FindByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Resolve finds the record a client refers to, trying the id first and then
// the join code. It returns ErrNotFound when neither matches.
func (a *App) Resolve(ctx context.Context, ref string) (*models.RoomRecord, error) {
	rec, err := a.repo.FindByID(ctx, ref)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if len(ref) != codeLength {
		return nil, err
	}
	return a.GetRoomByCode(ctx, ref)
}

// EnsureRoom returns the record for a room id, creating an ad-hoc one when
// clients join a room that was never created through the API.
func (a *App) EnsureRoom(ctx context.Context, id string) (*models.RoomRecord, error) {
	rec, err := a.repo.FindByID(ctx, id)
	if err == nil {
		if rec.Active {
			return rec, nil
		}
		active := true
		updated, err := a.repo.Update(ctx, id, UpdateRoomRequest{Active: &active})
		if errors.Is(err, ErrCodeTaken) {
			// The old code went to another room; the session still runs by id.
			log.Warn().Str("room_id", id).Str("code", rec.Code).Msg("room code reused, leaving record inactive")
			return rec, nil
		}
		return updated, err
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return a.CreateRoom(ctx, CreateRoomRequest{ID: id})
}

// UpdateRoom applies a partial update
func (a *App) UpdateRoom(ctx context.Context, id string, req UpdateRoomRequest) (*models.RoomRecord, error) {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Topic != nil {
		topic := strings.TrimSpace(*req.Topic)
		req.Topic = &topic
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	return a.repo.Update(ctx, id, req)
}

// Deactivate marks a record inactive once its live room is gone. The code is
// released for reuse; the record stays for lookups by id.
func (a *App) Deactivate(ctx context.Context, id string) error {
	active := false
	if _, err := a.repo.Update(ctx, id, UpdateRoomRequest{Active: &active}); err != nil {
		return fmt.Errorf("failed to deactivate room: %w", err)
	}
	log.Info().Str("room_id", id).Msg("room record deactivated")
	return nil
}

// DeleteRoom removes a record
func (a *App) DeleteRoom(ctx context.Context, id string) error {
	return a.repo.Delete(ctx, id)
}

func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%w: %s must satisfy %s=%s", ErrValidation, fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: %s must satisfy %s", ErrValidation, fe.Field(), fe.Tag())
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

func randomCode() string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
	}
	return string(b)
}
