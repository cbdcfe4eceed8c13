package services

import (
	"context"
	"sync"
	"testing"
	"time"

	localCache "git.solsynth.dev/hypernet/relay/pkg/internal/cache"
	"git.solsynth.dev/hypernet/relay/pkg/internal/database"
	"git.solsynth.dev/hypernet/relay/pkg/internal/models"
	"github.com/glebarez/sqlite"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDatabase points database.C at a fresh in-memory SQLite. One
// connection keeps the memory database alive and shared.
func setupTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.RunMigration(db))

	prevDB, prevStore := database.C, localCache.S
	database.C = db
	localCache.S = localCache.NewMemoryStore(time.Minute)
	t.Cleanup(func() {
		database.C, localCache.S = prevDB, prevStore
		_ = sqlDB.Close()
	})
	return db
}

type publishedEvent struct {
	Scope   models.Scope
	Event   models.Event
	Exclude uint
}

type recordingBus struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (v *recordingBus) Publish(_ context.Context, scope models.Scope, event models.Event, opts ...PublishOption) {
	options := collectPublishOptions(opts)
	v.mu.Lock()
	defer v.mu.Unlock()
	v.events = append(v.events, publishedEvent{Scope: scope, Event: event, Exclude: options.excludeUser})
}

func (v *recordingBus) Events() []publishedEvent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]publishedEvent(nil), v.events...)
}

func (v *recordingBus) OfKind(kind models.EventKind) []publishedEvent {
	var out []publishedEvent
	for _, item := range v.Events() {
		if item.Event.Kind() == kind {
			out = append(out, item)
		}
	}
	return out
}

func useBus(t *testing.T, bus Broadcaster) {
	t.Helper()
	prev := Bus
	Bus = bus
	t.Cleanup(func() { Bus = prev })
}

// staticOracle answers from a fixed membership table.
type staticOracle struct {
	mu            sync.Mutex
	channels      map[[2]uint]bool
	conversations map[[2]uint]bool
}

func newStaticOracle() *staticOracle {
	return &staticOracle{
		channels:      make(map[[2]uint]bool),
		conversations: make(map[[2]uint]bool),
	}
}

func (v *staticOracle) SetChannelMember(userId, channelId uint, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.channels[[2]uint{userId, channelId}] = ok
}

func (v *staticOracle) SetParticipant(userId, conversationId uint, ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.conversations[[2]uint{userId, conversationId}] = ok
}

func (v *staticOracle) IsChannelMember(_ context.Context, userId, channelId uint) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channels[[2]uint{userId, channelId}], nil
}

func (v *staticOracle) IsConversationParticipant(_ context.Context, userId, conversationId uint) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conversations[[2]uint{userId, conversationId}], nil
}

// recordingSession is a Session collecting every packet it gets.
type recordingSession struct {
	id     string
	userId uint

	mu      sync.Mutex
	packets []models.UnifiedCommand
	fail    error
}

func (v *recordingSession) ID() string   { return v.id }
func (v *recordingSession) UserID() uint { return v.userId }

func (v *recordingSession) Deliver(packet []byte) error {
	if v.fail != nil {
		return v.fail
	}
	var command models.UnifiedCommand
	if err := jsoniter.Unmarshal(packet, &command); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.packets = append(v.packets, command)
	return nil
}

func (v *recordingSession) Packets() []models.UnifiedCommand {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]models.UnifiedCommand(nil), v.packets...)
}
