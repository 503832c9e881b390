package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	domainUser "github.com/AzielCF/az-wabot/domains/user"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore implements store.IStore on GORM (SQLite or Postgres).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// --- Chats ---

func (r *GormStore) CreateChat(ctx context.Context, c domainChat.Chat) error {
	m := toChatModel(c)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormStore) GetChat(ctx context.Context, id string) (domainChat.Chat, error) {
	var m chatModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainChat.Chat{}, pkgError.NotFoundError("chat not found")
		}
		return domainChat.Chat{}, err
	}
	return fromChatModel(m), nil
}

func (r *GormStore) GetChatByJID(ctx context.Context, jid string) (domainChat.Chat, error) {
	var m chatModel
	if err := r.db.WithContext(ctx).First(&m, "jid = ?", jid).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainChat.Chat{}, pkgError.NotFoundError("chat not found")
		}
		return domainChat.Chat{}, err
	}
	return fromChatModel(m), nil
}

func (r *GormStore) ListChats(ctx context.Context) ([]domainChat.Chat, error) {
	var models []chatModel
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domainChat.Chat, len(models))
	for i, m := range models {
		res[i] = fromChatModel(m)
	}
	return res, nil
}

func (r *GormStore) ListEnabledChats(ctx context.Context) ([]domainChat.Chat, error) {
	var models []chatModel
	if err := r.db.WithContext(ctx).Where("enabled = ?", true).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domainChat.Chat, len(models))
	for i, m := range models {
		res[i] = fromChatModel(m)
	}
	return res, nil
}

func (r *GormStore) UpdateChat(ctx context.Context, c domainChat.Chat) error {
	m := toChatModel(c)
	return r.db.WithContext(ctx).Save(&m).Error
}

func (r *GormStore) DeleteChat(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m chatModel
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgError.NotFoundError("chat not found")
			}
			return err
		}
		if err := tx.Delete(&assignmentModel{}, "chat_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&processedMessageModel{}, "chat_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&chatModel{}, "id = ?", id).Error
	})
}

func (r *GormStore) AdvanceChatWatermark(ctx context.Context, chatID, lastProcessedID string, lastMessageAt time.Time) error {
	// Monotonic: only accept advances whose activity instant is not older
	// than what we already stored.
	return r.db.WithContext(ctx).Model(&chatModel{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at <= ?)", chatID, lastMessageAt).
		Updates(map[string]any{
			"last_processed_message_id": lastProcessedID,
			"last_message_at":           lastMessageAt,
			"updated_at":                time.Now().UTC(),
		}).Error
}

func (r *GormStore) TouchChatActivity(ctx context.Context, chatID string, lastMessageAt time.Time) error {
	return r.db.WithContext(ctx).Model(&chatModel{}).
		Where("id = ? AND (last_message_at IS NULL OR last_message_at < ?)", chatID, lastMessageAt).
		Updates(map[string]any{
			"last_message_at": lastMessageAt,
			"updated_at":      time.Now().UTC(),
		}).Error
}

// --- Bot instances ---

func (r *GormStore) CreateBotInstance(ctx context.Context, b domainBot.Instance) error {
	m, err := toBotInstanceModel(b)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormStore) GetBotInstance(ctx context.Context, id string) (domainBot.Instance, error) {
	var m botInstanceModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainBot.Instance{}, pkgError.NotFoundError("bot instance not found")
		}
		return domainBot.Instance{}, err
	}
	return fromBotInstanceModel(m)
}

func (r *GormStore) ListBotInstances(ctx context.Context) ([]domainBot.Instance, error) {
	var models []botInstanceModel
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domainBot.Instance, 0, len(models))
	for _, m := range models {
		b, err := fromBotInstanceModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func (r *GormStore) UpdateBotInstance(ctx context.Context, b domainBot.Instance) error {
	m, err := toBotInstanceModel(b)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Save(&m).Error
}

func (r *GormStore) DeleteBotInstance(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m botInstanceModel
		if err := tx.First(&m, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgError.NotFoundError("bot instance not found")
			}
			return err
		}
		if err := tx.Delete(&assignmentModel{}, "bot_instance_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&processedMessageModel{}, "bot_instance_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&botInstanceModel{}, "id = ?", id).Error
	})
}

// --- Assignments ---

// CreateAssignment inserts atomically against the (chat_id,
// bot_instance_id) unique index, so concurrent assigns of the same pair
// surface as Duplicate instead of a raw constraint violation.
func (r *GormStore) CreateAssignment(ctx context.Context, a domainBot.Assignment) error {
	m := toAssignmentModel(a)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "bot_instance_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgError.DuplicateError("bot already assigned to chat")
	}
	return nil
}

func (r *GormStore) GetAssignment(ctx context.Context, chatID, botInstanceID string) (domainBot.Assignment, error) {
	var m assignmentModel
	err := r.db.WithContext(ctx).
		First(&m, "chat_id = ? AND bot_instance_id = ?", chatID, botInstanceID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainBot.Assignment{}, pkgError.NotFoundError("assignment not found")
		}
		return domainBot.Assignment{}, err
	}
	return fromAssignmentModel(m), nil
}

func (r *GormStore) ListAssignments(ctx context.Context, chatID string) ([]domainBot.Assignment, error) {
	var models []assignmentModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("priority asc, bot_instance_id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domainBot.Assignment, len(models))
	for i, m := range models {
		res[i] = fromAssignmentModel(m)
	}
	return res, nil
}

func (r *GormStore) ListEnabledAssignments(ctx context.Context, chatID string) ([]domainBot.Assignment, error) {
	var models []assignmentModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ? AND enabled = ?", chatID, true).
		Order("priority asc, bot_instance_id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domainBot.Assignment, len(models))
	for i, m := range models {
		res[i] = fromAssignmentModel(m)
	}
	return res, nil
}

func (r *GormStore) UpdateAssignment(ctx context.Context, a domainBot.Assignment) error {
	m := toAssignmentModel(a)
	return r.db.WithContext(ctx).Save(&m).Error
}

func (r *GormStore) DeleteAssignment(ctx context.Context, chatID, botInstanceID string) error {
	res := r.db.WithContext(ctx).
		Delete(&assignmentModel{}, "chat_id = ? AND bot_instance_id = ?", chatID, botInstanceID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgError.NotFoundError("assignment not found")
	}
	return nil
}

// --- Processed messages ---

func (r *GormStore) EnsureProcessed(ctx context.Context, row domainMessage.ProcessedMessage) (bool, error) {
	m := toProcessedModel(row)
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "bot_instance_id"}, {Name: "external_message_id"}},
			DoNothing: true,
		}).
		Create(&m)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormStore) UpdateProcessed(ctx context.Context, botInstanceID, externalMessageID string, status domainMessage.Status, excerpt, errorKind string) error {
	return r.db.WithContext(ctx).Model(&processedMessageModel{}).
		Where("bot_instance_id = ? AND external_message_id = ?", botInstanceID, externalMessageID).
		Updates(map[string]any{
			"status":           string(status),
			"response_excerpt": nullString(excerpt),
			"error_kind":       nullString(errorKind),
			"processed_at":     time.Now().UTC(),
		}).Error
}

func (r *GormStore) ListProcessedForChat(ctx context.Context, chatID string, limit int) ([]domainMessage.ProcessedMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []processedMessageModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("processed_at desc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domainMessage.ProcessedMessage, len(models))
	for i, m := range models {
		res[i] = fromProcessedModel(m)
	}
	return res, nil
}

func (r *GormStore) FilterFullyProcessed(ctx context.Context, chatID string, botIDs, externalIDs []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if len(botIDs) == 0 || len(externalIDs) == 0 {
		return result, nil
	}
	type countRow struct {
		ExternalMessageID string
		Bots              int
	}
	var rows []countRow
	err := r.db.WithContext(ctx).Model(&processedMessageModel{}).
		Select("external_message_id, COUNT(DISTINCT bot_instance_id) AS bots").
		Where("chat_id = ? AND external_message_id IN ? AND bot_instance_id IN ?", chatID, externalIDs, botIDs).
		Group("external_message_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Bots >= len(botIDs) {
			result[row.ExternalMessageID] = true
		}
	}
	return result, nil
}

func (r *GormStore) ReconcilePending(ctx context.Context, errorKind string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&processedMessageModel{}).
		Where("status = ?", string(domainMessage.StatusPending)).
		Updates(map[string]any{
			"status":       string(domainMessage.StatusFailed),
			"error_kind":   nullString(errorKind),
			"processed_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// --- Schedules ---

func (r *GormStore) CreateSchedule(ctx context.Context, s domainSchedule.Schedule) error {
	m := toScheduleModel(s)
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormStore) GetSchedule(ctx context.Context, id string) (domainSchedule.Schedule, error) {
	var m scheduleModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainSchedule.Schedule{}, pkgError.NotFoundError("schedule not found")
		}
		return domainSchedule.Schedule{}, err
	}
	return fromScheduleModel(m), nil
}

func (r *GormStore) ListSchedules(ctx context.Context) ([]domainSchedule.Schedule, error) {
	var models []scheduleModel
	if err := r.db.WithContext(ctx).Order("created_at asc").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domainSchedule.Schedule, len(models))
	for i, m := range models {
		res[i] = fromScheduleModel(m)
	}
	return res, nil
}

func (r *GormStore) ListDueSchedules(ctx context.Context, now time.Time) ([]domainSchedule.Schedule, error) {
	var models []scheduleModel
	err := r.db.WithContext(ctx).
		Where("enabled = ? AND next_fire_at IS NOT NULL AND next_fire_at <= ?", true, now).
		Order("next_fire_at asc, id asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	res := make([]domainSchedule.Schedule, len(models))
	for i, m := range models {
		res[i] = fromScheduleModel(m)
	}
	return res, nil
}

func (r *GormStore) UpdateSchedule(ctx context.Context, s domainSchedule.Schedule) error {
	m := toScheduleModel(s)
	// Save skips nil pointers on updates via struct; use a full update map
	// so next_fire_at can transition to NULL (spent one-shot schedules).
	return r.db.WithContext(ctx).Model(&scheduleModel{}).
		Where("id = ?", s.ID).
		Select("*").Omit("id", "created_at").
		Updates(&m).Error
}

func (r *GormStore) DeleteSchedule(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Delete(&scheduleModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgError.NotFoundError("schedule not found")
	}
	return nil
}

func (r *GormStore) RecordScheduleFire(ctx context.Context, id string, firedAt time.Time, result domainSchedule.Result, nextFireAt *time.Time, disable bool) error {
	updates := map[string]any{
		"last_fire_at": firedAt,
		"last_result":  nullString(string(result)),
		"next_fire_at": nextFireAt,
		"updated_at":   time.Now().UTC(),
	}
	if disable {
		updates["enabled"] = false
	}
	return r.db.WithContext(ctx).Model(&scheduleModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// --- Users ---

func (r *GormStore) CreateUser(ctx context.Context, u domainUser.User) error {
	m := userModel{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	return r.db.WithContext(ctx).Create(&m).Error
}

func (r *GormStore) GetUserByUsername(ctx context.Context, username string) (domainUser.User, error) {
	var m userModel
	if err := r.db.WithContext(ctx).First(&m, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domainUser.User{}, pkgError.NotFoundError("user not found")
		}
		return domainUser.User{}, err
	}
	return domainUser.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

func (r *GormStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&userModel{}).Count(&count).Error
	return count, err
}

// --- Mappers ---

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toChatModel(c domainChat.Chat) chatModel {
	m := chatModel{
		ID:            c.ID,
		JID:           c.JID,
		Name:          c.Name,
		Kind:          string(c.Kind),
		LastMessageAt: c.LastMessageAt,
		Enabled:       c.Enabled,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	if c.LastProcessedMessageID != nil {
		m.LastProcessedMessageID = nullString(*c.LastProcessedMessageID)
	}
	return m
}

func fromChatModel(m chatModel) domainChat.Chat {
	c := domainChat.Chat{
		ID:            m.ID,
		JID:           m.JID,
		Name:          m.Name,
		Kind:          domainChat.Kind(m.Kind),
		LastMessageAt: m.LastMessageAt,
		Enabled:       m.Enabled,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.LastProcessedMessageID.Valid {
		v := m.LastProcessedMessageID.String
		c.LastProcessedMessageID = &v
	}
	return c
}

func toBotInstanceModel(b domainBot.Instance) (botInstanceModel, error) {
	cfg := b.Config
	if cfg == nil {
		cfg = map[string]any{}
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return botInstanceModel{}, err
	}
	return botInstanceModel{
		ID:          b.ID,
		TypeKey:     b.TypeKey,
		Name:        b.Name,
		Description: nullString(b.Description),
		Config:      string(raw),
		Enabled:     b.Enabled,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}, nil
}

func fromBotInstanceModel(m botInstanceModel) (domainBot.Instance, error) {
	cfg := map[string]any{}
	if m.Config != "" {
		if err := json.Unmarshal([]byte(m.Config), &cfg); err != nil {
			return domainBot.Instance{}, err
		}
	}
	return domainBot.Instance{
		ID:          m.ID,
		TypeKey:     m.TypeKey,
		Name:        m.Name,
		Description: m.Description.String,
		Config:      cfg,
		Enabled:     m.Enabled,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}

func toAssignmentModel(a domainBot.Assignment) assignmentModel {
	return assignmentModel{
		ID:            a.ID,
		ChatID:        a.ChatID,
		BotInstanceID: a.BotInstanceID,
		Priority:      a.Priority,
		Enabled:       a.Enabled,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func fromAssignmentModel(m assignmentModel) domainBot.Assignment {
	return domainBot.Assignment{
		ID:            m.ID,
		ChatID:        m.ChatID,
		BotInstanceID: m.BotInstanceID,
		Priority:      m.Priority,
		Enabled:       m.Enabled,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toProcessedModel(p domainMessage.ProcessedMessage) processedMessageModel {
	return processedMessageModel{
		ID:                p.ID,
		BotInstanceID:     p.BotInstanceID,
		ChatID:            p.ChatID,
		ExternalMessageID: p.ExternalMessageID,
		Status:            string(p.Status),
		ResponseExcerpt:   nullString(p.ResponseExcerpt),
		ErrorKind:         nullString(p.ErrorKind),
		ProcessedAt:       p.ProcessedAt,
	}
}

func fromProcessedModel(m processedMessageModel) domainMessage.ProcessedMessage {
	return domainMessage.ProcessedMessage{
		ID:                m.ID,
		BotInstanceID:     m.BotInstanceID,
		ChatID:            m.ChatID,
		ExternalMessageID: m.ExternalMessageID,
		Status:            domainMessage.Status(m.Status),
		ResponseExcerpt:   m.ResponseExcerpt.String,
		ErrorKind:         m.ErrorKind.String,
		ProcessedAt:       m.ProcessedAt,
	}
}

func toScheduleModel(s domainSchedule.Schedule) scheduleModel {
	return scheduleModel{
		ID:         s.ID,
		Kind:       string(s.Kind),
		FireAt:     s.FireAt,
		Expression: nullString(s.Expression),
		Timezone:   nullString(s.Timezone),
		TargetJID:  s.TargetJID,
		Content:    s.Content,
		Enabled:    s.Enabled,
		NextFireAt: s.NextFireAt,
		LastFireAt: s.LastFireAt,
		LastResult: nullString(string(s.LastResult)),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func fromScheduleModel(m scheduleModel) domainSchedule.Schedule {
	return domainSchedule.Schedule{
		ID:         m.ID,
		Kind:       domainSchedule.Kind(m.Kind),
		FireAt:     m.FireAt,
		Expression: m.Expression.String,
		Timezone:   m.Timezone.String,
		TargetJID:  m.TargetJID,
		Content:    m.Content,
		Enabled:    m.Enabled,
		NextFireAt: m.NextFireAt,
		LastFireAt: m.LastFireAt,
		LastResult: domainSchedule.Result(m.LastResult.String),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
