package processor

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/AzielCF/az-wabot/botengine"
	domainBot "github.com/AzielCF/az-wabot/domains/bot"
	domainChat "github.com/AzielCF/az-wabot/domains/chat"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	"github.com/AzielCF/az-wabot/infrastructure/gateway"
	"github.com/AzielCF/az-wabot/pkg/mediajobs"
	"github.com/AzielCF/az-wabot/repository"
)

type fakeGateway struct {
	mu    sync.Mutex
	msgs  []gateway.Message
	sends []string
	errs  []error // one per FetchMessages call, nil entries mean success

	// ignoreSince re-serves every message on each fetch, imitating a
	// gateway whose since filter lags behind.
	ignoreSince bool
}

func (f *fakeGateway) FetchMessages(ctx context.Context, chatJID, sinceID string, limit int) ([]gateway.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	var out []gateway.Message
	for _, m := range f.msgs {
		if f.ignoreSince || sinceID == "" || m.ID > sinceID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeGateway) SendText(ctx context.Context, chatJID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, text)
	return "sent-1", nil
}

func (f *fakeGateway) DownloadMedia(ctx context.Context, messageID string) ([]byte, string, error) {
	return []byte{0xFF, 0xD8, 0xFF}, "image/jpeg", nil
}

func (f *fakeGateway) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

// echoBot replies "<prefix> pong" to any text and records invocations.
type echoBot struct {
	mu      sync.Mutex
	invoked []string // external message ids in invocation order
}

func (e *echoBot) Info() domainBot.TypeInfo {
	return domainBot.TypeInfo{
		TypeKey:      "echo",
		DisplayName:  "Echo",
		Capabilities: []domainBot.Capability{domainBot.CapabilityText},
		ConfigSchema: domainBot.ConfigSchema{
			"prefix": {Type: domainBot.OptionString, Default: "[echo]"},
		},
	}
}

func (e *echoBot) Process(ctx context.Context, env *botengine.Env, msg botengine.Message) (*botengine.Reply, error) {
	e.mu.Lock()
	e.invoked = append(e.invoked, msg.ExternalID)
	e.mu.Unlock()
	prefix := botengine.ConfigString(env.Config, "prefix", "[echo]")
	return &botengine.Reply{Text: prefix + " pong"}, nil
}

func (e *echoBot) invocations() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.invoked...)
}

// audioBot accepts audio, records what it was handed, and can hold each
// invocation open to expose concurrency.
type audioBot struct {
	mu   sync.Mutex
	seen []botengine.Message
	hold time.Duration

	active int32
	peak   int32
}

func (b *audioBot) Info() domainBot.TypeInfo {
	return domainBot.TypeInfo{
		TypeKey:      "transcript",
		DisplayName:  "Transcript",
		Capabilities: []domainBot.Capability{domainBot.CapabilityAudio},
		ConfigSchema: domainBot.ConfigSchema{
			"prefix": {Type: domainBot.OptionString, Default: "[tr]"},
		},
	}
}

func (b *audioBot) Process(ctx context.Context, env *botengine.Env, msg botengine.Message) (*botengine.Reply, error) {
	cur := atomic.AddInt32(&b.active, 1)
	for {
		p := atomic.LoadInt32(&b.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&b.peak, p, cur) {
			break
		}
	}
	if b.hold > 0 {
		time.Sleep(b.hold)
	}
	atomic.AddInt32(&b.active, -1)

	b.mu.Lock()
	b.seen = append(b.seen, msg)
	b.mu.Unlock()
	return &botengine.Reply{Text: "[tr] heard"}, nil
}

func (b *audioBot) messages() []botengine.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]botengine.Message(nil), b.seen...)
}

type fixture struct {
	store    *repository.GormStore
	gw       *fakeGateway
	bot      *echoBot
	registry *botengine.Registry
	proc     *Processor
	chat     domainChat.Chat
}

func newFixture(t *testing.T) *fixture {
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
	st := repository.NewGormStore(db)

	bot := &echoBot{}
	registry := botengine.NewRegistry()
	if err := registry.Register(bot); err != nil {
		t.Fatalf("register bot: %v", err)
	}

	gw := &fakeGateway{}
	proc := New(Options{
		Store:        st,
		Gateway:      gw,
		Registry:     registry,
		Media:        mediajobs.NewLimiter(2),
		PollInterval: time.Hour, // ticks are driven manually in tests
	})

	ctx := context.Background()
	chat := domainChat.Chat{ID: "chat-1", JID: "12345@g.us", Name: "Test", Kind: domainChat.KindGroup, Enabled: true}
	if err := st.CreateChat(ctx, chat); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	return &fixture{store: st, gw: gw, bot: bot, registry: registry, proc: proc, chat: chat}
}

// addAudioBot registers the transcript type (once) and assigns an instance
// of it to the given chat.
func (f *fixture) addAudioBot(t *testing.T, b *audioBot, chatID, instanceID string) {
	t.Helper()
	ctx := context.Background()
	if _, ok := f.registry.Get("transcript"); !ok {
		if err := f.registry.Register(b); err != nil {
			t.Fatalf("register audio bot: %v", err)
		}
	}
	err := f.store.CreateBotInstance(ctx, domainBot.Instance{
		ID:      instanceID,
		TypeKey: "transcript",
		Name:    instanceID,
		Config:  map[string]any{"prefix": "[tr]"},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	err = f.store.CreateAssignment(ctx, domainBot.Assignment{
		ID:            "asg-" + chatID + "-" + instanceID,
		ChatID:        chatID,
		BotInstanceID: instanceID,
		Priority:      1,
		Enabled:       true,
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
}

func (f *fixture) addBot(t *testing.T, instanceID string, priority int) {
	t.Helper()
	ctx := context.Background()
	err := f.store.CreateBotInstance(ctx, domainBot.Instance{
		ID:      instanceID,
		TypeKey: "echo",
		Name:    instanceID,
		Config:  map[string]any{"prefix": "[echo]"},
		Enabled: true,
	})
	if err != nil {
		t.Fatalf("create instance: %v", err)
	}
	err = f.store.CreateAssignment(ctx, domainBot.Assignment{
		ID:            "asg-" + instanceID,
		ChatID:        f.chat.ID,
		BotInstanceID: instanceID,
		Priority:      priority,
		Enabled:       true,
	})
	if err != nil {
		t.Fatalf("create assignment: %v", err)
	}
}

func (f *fixture) setWatermark(t *testing.T, msgID string, at time.Time) {
	t.Helper()
	if err := f.store.AdvanceChatWatermark(context.Background(), f.chat.ID, msgID, at); err != nil {
		t.Fatalf("set watermark: %v", err)
	}
}

func TestPollTick_DispatchesAndSendsAfterTerminalRow(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	f.gw.msgs = []gateway.Message{
		{ID: "m1", SenderJID: "u@w.net", Timestamp: base.Add(time.Second), Content: "Hello"},
	}

	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() unexpected error: %v", err)
	}

	sends := f.gw.sentTexts()
	if len(sends) != 1 || sends[0] != "[echo] pong" {
		t.Fatalf("unexpected sends: %v", sends)
	}

	rows, err := f.store.ListProcessedForChat(context.Background(), f.chat.ID, 10)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != domainMessage.StatusOk || rows[0].ExternalMessageID != "m1" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	chat, err := f.store.GetChat(context.Background(), f.chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if chat.LastProcessedMessageID == nil || *chat.LastProcessedMessageID != "m1" {
		t.Fatalf("watermark not advanced: %+v", chat.LastProcessedMessageID)
	}
}

func TestPollTick_AtMostOncePerMessage(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	f.gw.ignoreSince = true
	f.gw.msgs = []gateway.Message{
		{ID: "m1", Timestamp: base.Add(time.Second), Content: "Hello"},
	}

	for i := 0; i < 3; i++ {
		if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
			t.Fatalf("pollTick() unexpected error: %v", err)
		}
	}

	if got := f.bot.invocations(); len(got) != 1 {
		t.Fatalf("bot invoked %d times, want exactly once: %v", len(got), got)
	}
	if sends := f.gw.sentTexts(); len(sends) != 1 {
		t.Fatalf("expected exactly one send, got %v", sends)
	}
}

func TestPollTick_FirstPollCatchUp(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)
	base := time.Now().UTC().Add(-time.Hour)

	f.gw.msgs = []gateway.Message{
		{ID: "m1", Timestamp: base, Content: "old 1"},
		{ID: "m2", Timestamp: base.Add(time.Minute), Content: "old 2"},
		{ID: "m3", Timestamp: base.Add(2 * time.Minute), Content: "old 3"},
	}

	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() unexpected error: %v", err)
	}

	if sends := f.gw.sentTexts(); len(sends) != 0 {
		t.Fatalf("catch-up must not reply, got %v", sends)
	}
	if got := f.bot.invocations(); len(got) != 0 {
		t.Fatalf("catch-up must not invoke bots, got %v", got)
	}

	rows, err := f.store.ListProcessedForChat(context.Background(), f.chat.ID, 10)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 skipped rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != domainMessage.StatusSkipped {
			t.Fatalf("expected skipped, got %s for %s", row.Status, row.ExternalMessageID)
		}
	}

	chat, _ := f.store.GetChat(context.Background(), f.chat.ID)
	if chat.LastProcessedMessageID == nil || *chat.LastProcessedMessageID != "m3" {
		t.Fatalf("watermark should point at newest history message, got %v", chat.LastProcessedMessageID)
	}
}

func TestPollTick_SelfReplySuppression(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	f.gw.msgs = []gateway.Message{
		{ID: "m1", IsFromMe: true, Timestamp: base.Add(time.Second), Content: "[echo] pong"},
	}

	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() unexpected error: %v", err)
	}

	if sends := f.gw.sentTexts(); len(sends) != 0 {
		t.Fatalf("suppressed message must not be answered, got %v", sends)
	}
	rows, _ := f.store.ListProcessedForChat(context.Background(), f.chat.ID, 10)
	if len(rows) != 1 || rows[0].Status != domainMessage.StatusSkipped {
		t.Fatalf("expected one skipped row, got %+v", rows)
	}
}

func TestPollTick_PriorityTiebreakByInstanceID(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "b-instance", 1)
	f.addBot(t, "a-instance", 1)
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	var order []string
	var mu sync.Mutex
	f.proc.events = eventFunc(func(chatJID string, row domainMessage.ProcessedMessage) {
		mu.Lock()
		order = append(order, row.BotInstanceID)
		mu.Unlock()
	})

	f.gw.msgs = []gateway.Message{
		{ID: "m1", Timestamp: base.Add(time.Second), Content: "Hello"},
	}
	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "a-instance" || order[1] != "b-instance" {
		t.Fatalf("expected lexicographic dispatch order on equal priority, got %v", order)
	}
}

func TestPollTick_RetriesTransientGatewayErrors(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	f.gw.errs = []error{
		&gateway.Error{Kind: gateway.KindServer, Status: 503, Message: "boom"},
		nil,
	}
	f.gw.msgs = []gateway.Message{
		{ID: "m1", Timestamp: base.Add(time.Second), Content: "Hello"},
	}

	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() should recover from one transient error: %v", err)
	}
	if sends := f.gw.sentTexts(); len(sends) != 1 {
		t.Fatalf("expected one send after retry, got %v", sends)
	}
}

func TestPollTick_VoiceNoteDispatchesAsAudio(t *testing.T) {
	f := newFixture(t)
	ab := &audioBot{}
	f.addAudioBot(t, ab, f.chat.ID, "tr-a")
	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)

	f.gw.msgs = []gateway.Message{
		{ID: "m1", SenderJID: "u@w.net", Timestamp: base.Add(time.Second), MediaType: "voice", MimeType: "audio/ogg; codecs=opus"},
	}

	if err := f.proc.pollTick(context.Background(), f.chat.ID); err != nil {
		t.Fatalf("pollTick() unexpected error: %v", err)
	}

	seen := ab.messages()
	if len(seen) != 1 {
		t.Fatalf("audio bot invoked %d times, want 1", len(seen))
	}
	if seen[0].MediaType != "audio" {
		t.Fatalf("media type handed to bot = %q, want audio", seen[0].MediaType)
	}
	if len(seen[0].Media) == 0 {
		t.Fatal("voice note payload was not downloaded")
	}
	if sends := f.gw.sentTexts(); len(sends) != 1 || sends[0] != "[tr] heard" {
		t.Fatalf("unexpected sends: %v", sends)
	}
}

func TestPollTick_MediaDispatchBoundedByLimiter(t *testing.T) {
	f := newFixture(t)
	f.proc.media = mediajobs.NewLimiter(1)
	ab := &audioBot{hold: 50 * time.Millisecond}
	f.addAudioBot(t, ab, f.chat.ID, "tr-a")

	ctx := context.Background()
	chat2 := domainChat.Chat{ID: "chat-2", JID: "67890@g.us", Name: "Second", Kind: domainChat.KindGroup, Enabled: true}
	if err := f.store.CreateChat(ctx, chat2); err != nil {
		t.Fatalf("create chat: %v", err)
	}
	f.addAudioBot(t, ab, chat2.ID, "tr-b")

	base := time.Now().UTC().Add(-time.Minute)
	f.setWatermark(t, "m0", base)
	if err := f.store.AdvanceChatWatermark(ctx, chat2.ID, "m0", base); err != nil {
		t.Fatalf("set watermark: %v", err)
	}

	f.gw.msgs = []gateway.Message{
		{ID: "m1", Timestamp: base.Add(time.Second), MediaType: "audio", MimeType: "audio/mpeg"},
	}

	var wg sync.WaitGroup
	for _, id := range []string{f.chat.ID, chat2.ID} {
		wg.Add(1)
		go func(chatID string) {
			defer wg.Done()
			if err := f.proc.pollTick(ctx, chatID); err != nil {
				t.Errorf("pollTick(%s) unexpected error: %v", chatID, err)
			}
		}(id)
	}
	wg.Wait()

	if len(ab.messages()) != 2 {
		t.Fatalf("expected both chats dispatched, got %d", len(ab.messages()))
	}
	if peak := atomic.LoadInt32(&ab.peak); peak > 1 {
		t.Fatalf("media dispatch concurrency peaked at %d, limiter allows 1", peak)
	}
}

func TestStart_ReconcilesInterruptedRows(t *testing.T) {
	f := newFixture(t)
	f.addBot(t, "bot-a", 1)

	ctx := context.Background()
	_, err := f.store.EnsureProcessed(ctx, domainMessage.ProcessedMessage{
		ID:                "row-1",
		BotInstanceID:     "bot-a",
		ChatID:            f.chat.ID,
		ExternalMessageID: "m9",
		Status:            domainMessage.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed pending row: %v", err)
	}

	if err := f.proc.Start(ctx); err != nil {
		t.Fatalf("Start() unexpected error: %v", err)
	}
	defer f.proc.Stop()

	rows, err := f.store.ListProcessedForChat(ctx, f.chat.ID, 10)
	if err != nil {
		t.Fatalf("list processed: %v", err)
	}
	if len(rows) != 1 || rows[0].Status != domainMessage.StatusFailed || rows[0].ErrorKind != domainMessage.ErrorKindInterrupted {
		t.Fatalf("expected failed(InterruptedAtShutdown), got %+v", rows)
	}
	if got := f.bot.invocations(); len(got) != 0 {
		t.Fatalf("reconciliation must not re-invoke bots, got %v", got)
	}
}

// eventFunc adapts a function to the EventSink interface.
type eventFunc func(chatJID string, row domainMessage.ProcessedMessage)

func (f eventFunc) PublishMessageProcessed(chatJID string, row domainMessage.ProcessedMessage) {
	f(chatJID, row)
}
