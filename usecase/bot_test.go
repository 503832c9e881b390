package usecase

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AzielCF/az-wabot/botengine"
	"github.com/AzielCF/az-wabot/botengine/bots"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainSchedule "github.com/AzielCF/az-wabot/domains/schedule"
	pkgError "github.com/AzielCF/az-wabot/pkg/error"
	"github.com/AzielCF/az-wabot/repository"
)

type fakeProcControl struct {
	ensured []string
	dropped []string
	woken   []string
}

func (f *fakeProcControl) EnsureChat(chatID string) { f.ensured = append(f.ensured, chatID) }
func (f *fakeProcControl) DropChat(chatID string)   { f.dropped = append(f.dropped, chatID) }
func (f *fakeProcControl) Wake(chatID string)       { f.woken = append(f.woken, chatID) }

func newTestStore(t *testing.T) *repository.GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repository.NewGormStore(db)
}

func newTestBotService(t *testing.T) (domainBot.IBotUsecase, *repository.GormStore, *fakeProcControl) {
	t.Helper()
	st := newTestStore(t)
	registry := botengine.NewRegistry()
	if err := registry.Register(bots.NewTranslationBot()); err != nil {
		t.Fatalf("register translation bot: %v", err)
	}
	if err := registry.Register(bots.NewJokeBot()); err != nil {
		t.Fatalf("register joke bot: %v", err)
	}
	proc := &fakeProcControl{}
	return NewBotService(st, registry, proc), st, proc
}

func TestBotService_CreateInstanceAppliesSchemaDefaults(t *testing.T) {
	svc, _, _ := newTestBotService(t)
	ctx := context.Background()

	created, err := svc.CreateInstance(ctx, domainBot.CreateInstanceRequest{
		TypeKey: "translation",
		Name:    "Translator",
		Config:  map[string]any{"translate_audio": true},
	})
	if err != nil {
		t.Fatalf("CreateInstance() unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("CreateInstance() returned empty id")
	}
	if created.Config["prefix"] != "[ai]" {
		t.Fatalf("expected default prefix [ai], got %v", created.Config["prefix"])
	}
	if created.Config["translate_audio"] != true {
		t.Fatalf("explicit option lost: %v", created.Config)
	}
	if !created.Enabled {
		t.Fatalf("instance should default to enabled")
	}
}

func TestBotService_CreateInstanceRejectsUnknownType(t *testing.T) {
	svc, _, _ := newTestBotService(t)

	_, err := svc.CreateInstance(context.Background(), domainBot.CreateInstanceRequest{
		TypeKey: "astrology",
		Name:    "Stars",
	})
	if _, ok := err.(pkgError.UnknownTypeError); !ok {
		t.Fatalf("expected UnknownTypeError, got %v", err)
	}
}

func TestBotService_CreateInstanceRejectsUnknownConfigKey(t *testing.T) {
	svc, _, _ := newTestBotService(t)

	_, err := svc.CreateInstance(context.Background(), domainBot.CreateInstanceRequest{
		TypeKey: "translation",
		Name:    "Translator",
		Config:  map[string]any{"volume": 11},
	})
	if _, ok := err.(pkgError.BadConfigError); !ok {
		t.Fatalf("expected BadConfigError, got %v", err)
	}
}

func TestBotService_CreateInstanceRejectsUnbracketedPrefix(t *testing.T) {
	svc, _, _ := newTestBotService(t)

	_, err := svc.CreateInstance(context.Background(), domainBot.CreateInstanceRequest{
		TypeKey: "translation",
		Name:    "Translator",
		Config:  map[string]any{"prefix": "ai:"},
	})
	if _, ok := err.(pkgError.BadConfigError); !ok {
		t.Fatalf("expected BadConfigError for unbracketed prefix, got %v", err)
	}
}

func TestBotService_UpdateInstanceRevalidatesConfig(t *testing.T) {
	svc, _, _ := newTestBotService(t)
	ctx := context.Background()

	created, err := svc.CreateInstance(ctx, domainBot.CreateInstanceRequest{
		TypeKey: "joke",
		Name:    "Jester",
	})
	if err != nil {
		t.Fatalf("CreateInstance() unexpected error: %v", err)
	}

	badCfg := map[string]any{"prefix": "nope"}
	_, err = svc.UpdateInstance(ctx, created.ID, domainBot.UpdateInstanceRequest{Config: &badCfg})
	if _, ok := err.(pkgError.BadConfigError); !ok {
		t.Fatalf("expected BadConfigError on update, got %v", err)
	}

	goodCfg := map[string]any{"prefix": "[haha]"}
	updated, err := svc.UpdateInstance(ctx, created.ID, domainBot.UpdateInstanceRequest{Config: &goodCfg})
	if err != nil {
		t.Fatalf("UpdateInstance() unexpected error: %v", err)
	}
	if updated.Config["prefix"] != "[haha]" {
		t.Fatalf("config not updated: %v", updated.Config)
	}
}

func TestBotService_AssignWakesPollerAndRejectsDuplicates(t *testing.T) {
	svc, st, proc := newTestBotService(t)
	ctx := context.Background()

	if err := st.CreateChat(ctx, domainChat.Chat{ID: "chat-1", JID: "g@g.us", Enabled: true}); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	created, err := svc.CreateInstance(ctx, domainBot.CreateInstanceRequest{TypeKey: "joke", Name: "Jester"})
	if err != nil {
		t.Fatalf("CreateInstance() unexpected error: %v", err)
	}

	_, err = svc.Assign(ctx, "chat-1", domainBot.AssignRequest{BotInstanceID: created.ID, Priority: 1})
	if err != nil {
		t.Fatalf("Assign() unexpected error: %v", err)
	}
	if len(proc.woken) != 1 || proc.woken[0] != "chat-1" {
		t.Fatalf("assign should wake the chat poller, got %v", proc.woken)
	}

	_, err = svc.Assign(ctx, "chat-1", domainBot.AssignRequest{BotInstanceID: created.ID, Priority: 2})
	if _, ok := err.(pkgError.DuplicateError); !ok {
		t.Fatalf("expected DuplicateError, got %v", err)
	}

	_, err = svc.Assign(ctx, "no-such-chat", domainBot.AssignRequest{BotInstanceID: created.ID, Priority: 1})
	if _, ok := err.(pkgError.NotFoundError); !ok {
		t.Fatalf("expected NotFoundError for missing chat, got %v", err)
	}
}

func TestScheduleService_CreateCronComputesNextFire(t *testing.T) {
	st := newTestStore(t)
	svc := NewScheduleService(st).(*scheduleService)
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 7, 0, 0, time.UTC) }

	created, err := svc.Create(context.Background(), domainSchedule.CreateRequest{
		Kind:       domainSchedule.KindCron,
		Expression: "*/15 * * * *",
		Timezone:   "UTC",
		TargetJID:  "g@g.us",
		Content:    "poke",
	})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}
	want := time.Date(2026, 3, 1, 12, 15, 0, 0, time.UTC)
	if created.NextFireAt == nil || !created.NextFireAt.Equal(want) {
		t.Fatalf("next_fire_at = %v, want %v", created.NextFireAt, want)
	}
}

func TestScheduleService_CreateRejectsBadCron(t *testing.T) {
	st := newTestStore(t)
	svc := NewScheduleService(st)

	_, err := svc.Create(context.Background(), domainSchedule.CreateRequest{
		Kind:       domainSchedule.KindCron,
		Expression: "every full moon",
		TargetJID:  "g@g.us",
		Content:    "howl",
	})
	if _, ok := err.(pkgError.BadCronError); !ok {
		t.Fatalf("expected BadCronError, got %v", err)
	}
}

func TestScheduleService_FireNowRejectsDisabled(t *testing.T) {
	st := newTestStore(t)
	svc := NewScheduleService(st)
	ctx := context.Background()

	fireAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	disabled := false
	created, err := svc.Create(ctx, domainSchedule.CreateRequest{
		Kind:      domainSchedule.KindOnce,
		FireAt:    &fireAt,
		TargetJID: "g@g.us",
		Content:   "hi",
		Enabled:   &disabled,
	})
	if err != nil {
		t.Fatalf("Create() unexpected error: %v", err)
	}

	err = svc.FireNow(ctx, created.ID)
	if _, ok := err.(pkgError.ValidationError); !ok {
		t.Fatalf("expected ValidationError for disabled schedule, got %v", err)
	}

	got, _ := st.GetSchedule(ctx, created.ID)
	if got.NextFireAt == nil || !got.NextFireAt.Equal(fireAt) {
		t.Fatalf("state changed by rejected FireNow: %v", got.NextFireAt)
	}
}
