package daemon

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/chatterbox-im/chatterbox/internal/api"
	"github.com/chatterbox-im/chatterbox/internal/backend"
	"github.com/chatterbox-im/chatterbox/internal/bus"
	"github.com/chatterbox-im/chatterbox/internal/config"
	"github.com/chatterbox-im/chatterbox/internal/lock"
	"github.com/chatterbox-im/chatterbox/internal/logging"
	"github.com/chatterbox-im/chatterbox/internal/media"
	"github.com/chatterbox-im/chatterbox/internal/outbox"
	"github.com/chatterbox-im/chatterbox/internal/session"
	"github.com/chatterbox-im/chatterbox/internal/status"
	"github.com/chatterbox-im/chatterbox/internal/store"
	intsync "github.com/chatterbox-im/chatterbox/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideConfig,
			provideStore,
			provideClient,
			provideProfiles,
			provideFeed,
			provideEngine,
			provideMarker,
			provideSender,
			provideSweeper,
			provideUploader,
			provideSessionService,
			provideProfileService,
			provideChatService,
			provideMessageService,
			provideFriendService,
			provideStoryService,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if err != nil {
		return nil, err
	}
	logger.Info("config loaded", zap.String("backend_url", cfg.Backend.URL))
	return cfg, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(cfg *config.Config, logger *zap.Logger) (*backend.Client, error) {
	return backend.NewClient(cfg.Backend, logger)
}

func provideProfiles(client *backend.Client) *backend.Profiles {
	return backend.NewProfiles(client)
}

// feedScopes lists the change-feed subscriptions; row visibility is trimmed
// server-side by policy, so filters only narrow the firehose.
func feedScopes(userID string) []backend.Scope {
	return []backend.Scope{
		{Table: "messages"},
		{Table: "chats"},
		{Table: "chat_participants", Filter: "user_id=eq." + userID},
		{Table: "profiles"},
		{Table: "friends"},
		{Table: "stories"},
	}
}

func provideFeed(cfg *config.Config, client *backend.Client, b *bus.Bus, m *status.Machine, logger *zap.Logger) *backend.Feed {
	return backend.NewFeed(cfg.Backend, client.UserID(), feedScopes(client.UserID()), b, m, logger)
}

func provideEngine(db *store.DB, b *bus.Bus, client *backend.Client, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, client, client.UserID(), logger)
}

func provideMarker(db *store.DB, client *backend.Client, logger *zap.Logger) *intsync.Marker {
	return intsync.NewMarker(db, client, logger)
}

func provideSender(db *store.DB, cfg *config.Config, client *backend.Client, profiles *backend.Profiles, engine *intsync.Engine, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	name := cfg.Backend.DisplayName
	if name == "" {
		name = backend.ParseDisplayName(cfg.Backend.AccessToken)
	}
	return outbox.NewSender(db, client, profiles, engine, b, client.UserID(), name, logger)
}

func provideSweeper(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Sweeper {
	return intsync.NewSweeper(db, b, logger)
}

func provideUploader(cfg *config.Config, logger *zap.Logger) (*media.Uploader, error) {
	if cfg.Media.Bucket == "" {
		logger.Info("no media bucket configured, uploads disabled")
		return nil, nil
	}
	return media.NewUploader(context.Background(), cfg.Media)
}

func provideSessionService(p Params, cfg *config.Config, client *backend.Client, m *status.Machine, b *bus.Bus, db *store.DB, logger *zap.Logger) *api.SessionService {
	var expiry time.Time
	if cfg.Backend.AccessToken != "" {
		if t, err := backend.TokenExpiry(cfg.Backend.AccessToken); err == nil {
			expiry = t
			if !t.IsZero() && t.Before(time.Now()) {
				logger.Warn("access token already expired", zap.Time("expired_at", t))
			}
		}
	}
	return api.NewSessionService(p.SessionName, client.UserID(), expiry, m, b, db, logger)
}

func provideProfileService(client *backend.Client, profiles *backend.Profiles, uploader *media.Uploader, logger *zap.Logger) *api.ProfileService {
	var au api.AvatarUploader
	if uploader != nil {
		au = uploader
	}
	return api.NewProfileService(profiles, au, client.UserID(), logger)
}

func provideChatService(db *store.DB, client *backend.Client, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(db, client, logger)
}

func provideMessageService(db *store.DB, client *backend.Client, marker *intsync.Marker, logger *zap.Logger) *api.MessageService {
	return api.NewMessageService(db, client, marker, client.UserID(), logger)
}

func provideFriendService(db *store.DB, client *backend.Client, logger *zap.Logger) *api.FriendService {
	return api.NewFriendService(db, client, client.UserID(), logger)
}

func provideStoryService(db *store.DB, client *backend.Client, uploader *media.Uploader, logger *zap.Logger) *api.StoryService {
	var mu api.MediaUploader
	if uploader != nil {
		mu = uploader
	}
	return api.NewStoryService(db, client, mu, client.UserID(), logger)
}

func provideHandler(
	sessionSvc *api.SessionService,
	chatSvc *api.ChatService,
	messageSvc *api.MessageService,
	friendSvc *api.FriendService,
	storySvc *api.StoryService,
	profileSvc *api.ProfileService,
) http.Handler {
	return api.Router(sessionSvc, chatSvc, messageSvc, friendSvc, storySvc, profileSvc)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	client *backend.Client,
	feed *backend.Feed,
	engine *intsync.Engine,
	sender *outbox.Sender,
	sweeper *intsync.Sweeper,
	machine *status.Machine,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Engine first: it must be subscribed before the feed connects,
			// or early events are dropped on the floor.
			engine.Start(context.Background())
			sender.Start(context.Background())
			sweeper.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("api server error", zap.Error(err))
				}
			}()

			if client.Authenticated() {
				_ = machine.Transition(status.Connecting)
				feed.Start(context.Background())
				// Seed the cache behind the live subscription so nothing
				// between the snapshot and the first feed event is lost.
				go func() {
					if err := engine.Backfill(context.Background()); err != nil {
						logger.Warn("initial backfill", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no access token configured, auth required")
				_ = machine.Transition(status.AuthRequired)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			feed.Stop()
			sweeper.Stop()
			sender.Stop()
			engine.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
