package service

import (
	"context"
	"encoding/json"

	"github.com/Laisky/errors/v2"
	"go.uber.org/zap"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

var (
	emptyIconPositions = json.RawMessage(`{}`)
	emptyDesktopItems  = json.RawMessage(`[]`)
)

func DefaultDesktopState() models.DesktopState {
	return models.DesktopState{IconPositions: emptyIconPositions, DesktopItems: emptyDesktopItems}
}

func normalizeDesktop(state models.DesktopState) models.DesktopState {
	if len(state.IconPositions) == 0 || string(state.IconPositions) == "null" {
		state.IconPositions = emptyIconPositions
	}
	if len(state.DesktopItems) == 0 || string(state.DesktopItems) == "null" {
		state.DesktopItems = emptyDesktopItems
	}
	return state
}

// GetDesktop never fails. Anything short of a stored state yields the empty
// default.
func (s *Service) GetDesktop(ctx context.Context) models.DesktopState {
	if s.Store == nil {
		return DefaultDesktopState()
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	state, err := s.Store.GetDesktopState(storeCtx)
	if err != nil {
		if !errors.Is(err, store.ErrItemNotFound) {
			log.Logger.Error("failed to load desktop state", zap.Error(err))
		}
		return DefaultDesktopState()
	}
	return normalizeDesktop(state)
}

func (s *Service) SaveDesktop(ctx context.Context, state models.DesktopState) error {
	if err := s.requireStore(); err != nil {
		return err
	}

	state = normalizeDesktop(state)
	state.UpdatedAt = s.now()

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	if err := s.Store.SaveDesktopState(storeCtx, state); err != nil {
		return errors.Wrap(err, "save desktop state")
	}
	return nil
}
