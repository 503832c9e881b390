package processor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-wabot/botengine"
	domainMessage "github.com/AzielCF/az-wabot/domains/message"
	"github.com/AzielCF/az-wabot/domains/store"
	"github.com/AzielCF/az-wabot/infrastructure/gateway"
	"github.com/AzielCF/az-wabot/pkg/mediajobs"
)

const (
	// drainTimeout bounds shutdown: pollers finish the in-flight message
	// fan-out, then must exit within this window.
	drainTimeout = 30 * time.Second

	excerptLimit = 500
)

// fetchBackoff is the delay schedule for retriable gateway errors within
// one poll tick.
var fetchBackoff = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// Gateway is the slice of the gateway client the processor uses.
type Gateway interface {
	FetchMessages(ctx context.Context, chatJID, sinceID string, limit int) ([]gateway.Message, error)
	SendText(ctx context.Context, chatJID, text string) (string, error)
	DownloadMedia(ctx context.Context, messageID string) ([]byte, string, error)
}

// EventSink receives processed-message notifications for live observers.
type EventSink interface {
	PublishMessageProcessed(chatJID string, row domainMessage.ProcessedMessage)
}

// Stats is a snapshot for the monitoring endpoint.
type Stats struct {
	ActivePollers      int       `json:"active_pollers"`
	TicksCompleted     int64     `json:"ticks_completed"`
	MessagesDispatched int64     `json:"messages_dispatched"`
	RepliesSent        int64     `json:"replies_sent"`
	DispatchErrors     int64     `json:"dispatch_errors"`
	LastTickAt         time.Time `json:"last_tick_at"`
}

// Processor owns one polling goroutine per enabled chat. Each poller is
// the only writer of its chat's watermark, which keeps watermark updates
// serialized without locking.
type Processor struct {
	store     store.IStore
	gw        Gateway
	registry  *botengine.Registry
	llm       botengine.LLM
	extractor botengine.AudioExtractor
	models    botengine.Models
	media     *mediajobs.Limiter
	events    EventSink

	pollInterval time.Duration
	msgLimit     int

	mu      sync.Mutex
	pollers map[string]*chatPoller
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool

	ticksCompleted     int64
	messagesDispatched int64
	repliesSent        int64
	dispatchErrors     int64
	lastTickUnixNano   int64
}

type chatPoller struct {
	chatID string
	wake   chan struct{}
	cancel context.CancelFunc
}

type Options struct {
	Store        store.IStore
	Gateway      Gateway
	Registry     *botengine.Registry
	LLM          botengine.LLM
	Extractor    botengine.AudioExtractor
	Models       botengine.Models
	Media        *mediajobs.Limiter
	Events       EventSink
	PollInterval time.Duration
	MessageLimit int
}

func New(opts Options) *Processor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.MessageLimit <= 0 {
		opts.MessageLimit = 20
	}
	return &Processor{
		store:        opts.Store,
		gw:           opts.Gateway,
		registry:     opts.Registry,
		llm:          opts.LLM,
		extractor:    opts.Extractor,
		models:       opts.Models,
		media:        opts.Media,
		events:       opts.Events,
		pollInterval: opts.PollInterval,
		msgLimit:     opts.MessageLimit,
		pollers:      make(map[string]*chatPoller),
	}
}

// Start reconciles rows left non-terminal by a previous run, then spawns
// one poller per enabled chat.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return nil
	}

	reconciled, err := p.store.ReconcilePending(ctx, domainMessage.ErrorKindInterrupted)
	if err != nil {
		return err
	}
	if reconciled > 0 {
		logrus.Warnf("[PROCESSOR] Marked %d interrupted dispatches as failed", reconciled)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.started = true

	chats, err := p.store.ListEnabledChats(ctx)
	if err != nil {
		return err
	}
	for _, c := range chats {
		p.startPollerLocked(c.ID)
	}
	logrus.Infof("[PROCESSOR] Started with %d chat pollers, poll interval %s", len(chats), p.pollInterval)
	return nil
}

// Stop cancels all pollers and waits for the drain window. Pollers finish
// their current message's fan-out before exiting so no pending rows are
// left behind by a clean shutdown.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	logrus.Info("[PROCESSOR] Stopping chat pollers...")
	cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		logrus.Info("[PROCESSOR] All chat pollers stopped")
	case <-time.After(drainTimeout):
		logrus.Error("[PROCESSOR] Drain timeout exceeded, abandoning pollers")
	}
}

// EnsureChat starts a poller for the chat if none is running. Called when
// a chat is registered or re-enabled at runtime.
func (p *Processor) EnsureChat(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.startPollerLocked(chatID)
}

// DropChat stops the chat's poller. Called on chat delete or disable.
func (p *Processor) DropChat(chatID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if poller, ok := p.pollers[chatID]; ok {
		poller.cancel()
		delete(p.pollers, chatID)
	}
}

// Wake nudges a chat's poller to tick now instead of waiting out the poll
// interval. Assignment changes call this so they take effect promptly.
func (p *Processor) Wake(chatID string) {
	p.mu.Lock()
	poller, ok := p.pollers[chatID]
	p.mu.Unlock()
	if !ok {
		return
	}
	select {
	case poller.wake <- struct{}{}:
	default:
	}
}

func (p *Processor) GetStats() Stats {
	p.mu.Lock()
	active := len(p.pollers)
	p.mu.Unlock()
	return Stats{
		ActivePollers:      active,
		TicksCompleted:     atomic.LoadInt64(&p.ticksCompleted),
		MessagesDispatched: atomic.LoadInt64(&p.messagesDispatched),
		RepliesSent:        atomic.LoadInt64(&p.repliesSent),
		DispatchErrors:     atomic.LoadInt64(&p.dispatchErrors),
		LastTickAt:         time.Unix(0, atomic.LoadInt64(&p.lastTickUnixNano)),
	}
}

func (p *Processor) startPollerLocked(chatID string) {
	if _, running := p.pollers[chatID]; running {
		return
	}
	pollerCtx, cancel := context.WithCancel(p.ctx)
	poller := &chatPoller{
		chatID: chatID,
		wake:   make(chan struct{}, 1),
		cancel: cancel,
	}
	p.pollers[chatID] = poller

	p.wg.Add(1)
	go p.runPoller(pollerCtx, poller)
}

// runPoller ticks, then sleeps the poll interval measured from tick
// completion. A slow tick therefore delays the next one instead of
// stacking work behind it.
func (p *Processor) runPoller(ctx context.Context, poller *chatPoller) {
	defer p.wg.Done()
	logrus.Debugf("[PROCESSOR] Poller started for chat %s", poller.chatID)

	for {
		if ctx.Err() != nil {
			logrus.Debugf("[PROCESSOR] Poller for chat %s shutting down", poller.chatID)
			return
		}
		if err := p.pollTick(ctx, poller.chatID); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warnf("[PROCESSOR] Tick failed for chat %s", poller.chatID)
		}
		atomic.AddInt64(&p.ticksCompleted, 1)
		atomic.StoreInt64(&p.lastTickUnixNano, time.Now().UnixNano())

		select {
		case <-ctx.Done():
			logrus.Debugf("[PROCESSOR] Poller for chat %s shutting down", poller.chatID)
			return
		case <-poller.wake:
		case <-time.After(p.pollInterval):
		}
	}
}

func truncateExcerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit]
}
