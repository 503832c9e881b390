package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-wabot/botengine"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	"github.com/AzielCF/az-wabot/domains/store"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/validations"
)

type botService struct {
	store    store.IStore
	registry *botengine.Registry
	proc     ProcessorControl
}

func NewBotService(st store.IStore, registry *botengine.Registry, proc ProcessorControl) domainBot.IBotUsecase {
	return &botService{store: st, registry: registry, proc: proc}
}

func (s *botService) ListTypes(ctx context.Context) []domainBot.TypeInfo {
	return s.registry.List()
}

func (s *botService) ListInstances(ctx context.Context) ([]domainBot.Instance, error) {
	return s.store.ListBotInstances(ctx)
}

func (s *botService) CreateInstance(ctx context.Context, req domainBot.CreateInstanceRequest) (domainBot.Instance, error) {
	if err := validations.ValidateCreateInstance(ctx, req); err != nil {
		return domainBot.Instance{}, err
	}
	impl, ok := s.registry.Get(req.TypeKey)
	if !ok {
		return domainBot.Instance{}, pkgError.UnknownTypeError("unknown bot type " + req.TypeKey)
	}

	cfg, err := s.normalizeConfig(impl, req.Config)
	if err != nil {
		return domainBot.Instance{}, err
	}

	now := time.Now().UTC()
	instance := domainBot.Instance{
		ID:          uuid.NewString(),
		TypeKey:     req.TypeKey,
		Name:        req.Name,
		Description: req.Description,
		Config:      cfg,
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateBotInstance(ctx, instance); err != nil {
		return domainBot.Instance{}, err
	}
	logrus.Infof("[BOT] Created %s instance %s (%s)", instance.TypeKey, instance.Name, instance.ID)
	return instance, nil
}

func (s *botService) UpdateInstance(ctx context.Context, id string, req domainBot.UpdateInstanceRequest) (domainBot.Instance, error) {
	instance, err := s.store.GetBotInstance(ctx, id)
	if err != nil {
		return domainBot.Instance{}, err
	}
	impl, ok := s.registry.Get(instance.TypeKey)
	if !ok {
		return domainBot.Instance{}, pkgError.UnknownTypeError("unknown bot type " + instance.TypeKey)
	}

	if req.Name != nil {
		if *req.Name == "" {
			return domainBot.Instance{}, pkgError.ValidationError("name cannot be empty")
		}
		instance.Name = *req.Name
	}
	if req.Description != nil {
		instance.Description = *req.Description
	}
	if req.Config != nil {
		cfg, err := s.normalizeConfig(impl, *req.Config)
		if err != nil {
			return domainBot.Instance{}, err
		}
		instance.Config = cfg
	}
	if req.Enabled != nil {
		instance.Enabled = *req.Enabled
	}
	instance.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateBotInstance(ctx, instance); err != nil {
		return domainBot.Instance{}, err
	}
	return instance, nil
}

func (s *botService) DeleteInstance(ctx context.Context, id string) error {
	if err := s.store.DeleteBotInstance(ctx, id); err != nil {
		return err
	}
	logrus.Infof("[BOT] Deleted bot instance %s", id)
	return nil
}

func (s *botService) ListAssignments(ctx context.Context, chatID string) ([]domainBot.Assignment, error) {
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	return s.store.ListAssignments(ctx, chatID)
}

func (s *botService) Assign(ctx context.Context, chatID string, req domainBot.AssignRequest) (domainBot.Assignment, error) {
	if err := validations.ValidateAssign(ctx, req); err != nil {
		return domainBot.Assignment{}, err
	}
	if _, err := s.store.GetChat(ctx, chatID); err != nil {
		return domainBot.Assignment{}, err
	}
	if _, err := s.store.GetBotInstance(ctx, req.BotInstanceID); err != nil {
		return domainBot.Assignment{}, err
	}
	if _, err := s.store.GetAssignment(ctx, chatID, req.BotInstanceID); err == nil {
		return domainBot.Assignment{}, pkgError.DuplicateError("bot already assigned to chat")
	} else {
		var nf pkgError.NotFoundError
		if !errors.As(err, &nf) {
			return domainBot.Assignment{}, err
		}
	}

	now := time.Now().UTC()
	assignment := domainBot.Assignment{
		ID:            uuid.NewString(),
		ChatID:        chatID,
		BotInstanceID: req.BotInstanceID,
		Priority:      req.Priority,
		Enabled:       req.Enabled == nil || *req.Enabled,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateAssignment(ctx, assignment); err != nil {
		return domainBot.Assignment{}, err
	}
	// Take effect now instead of at the next interval tick.
	s.proc.Wake(chatID)
	logrus.Infof("[BOT] Assigned bot %s to chat %s (priority %d)", req.BotInstanceID, chatID, req.Priority)
	return assignment, nil
}

func (s *botService) UpdateAssignment(ctx context.Context, chatID, botInstanceID string, req domainBot.UpdateAssignmentRequest) (domainBot.Assignment, error) {
	assignment, err := s.store.GetAssignment(ctx, chatID, botInstanceID)
	if err != nil {
		return domainBot.Assignment{}, err
	}
	if req.Priority != nil {
		assignment.Priority = *req.Priority
	}
	if req.Enabled != nil {
		assignment.Enabled = *req.Enabled
	}
	assignment.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateAssignment(ctx, assignment); err != nil {
		return domainBot.Assignment{}, err
	}
	s.proc.Wake(chatID)
	return assignment, nil
}

func (s *botService) Unassign(ctx context.Context, chatID, botInstanceID string) error {
	if err := s.store.DeleteAssignment(ctx, chatID, botInstanceID); err != nil {
		return err
	}
	s.proc.Wake(chatID)
	return nil
}

// normalizeConfig validates against the type schema and enforces the
// bracketed prefix shape when the type has a prefix option.
func (s *botService) normalizeConfig(impl botengine.Bot, raw map[string]any) (map[string]any, error) {
	cfg, err := botengine.NormalizeConfig(impl.Info().ConfigSchema, raw)
	if err != nil {
		return nil, err
	}
	if err := validations.ValidatePrefix(botengine.ConfigString(cfg, "prefix", "")); err != nil {
		return nil, err
	}
	return cfg, nil
}
