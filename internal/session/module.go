package session

import (
	"context"
	"time"

	"github.com/courseloop/chatsync/internal/api"
	"github.com/courseloop/chatsync/internal/bus"
	"github.com/courseloop/chatsync/internal/channel"
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/config"
	"github.com/courseloop/chatsync/internal/logging"
	"github.com/courseloop/chatsync/internal/media"
	"github.com/courseloop/chatsync/internal/receipts"
	"github.com/courseloop/chatsync/internal/rooms"
	"github.com/courseloop/chatsync/internal/status"
	"github.com/courseloop/chatsync/internal/transfer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved configuration and identity passed to the
// fx module.
type Params struct {
	Config   *config.Config
	Identity chat.Sender
}

// Module returns the fx module for the sync engine, composing all
// providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatsync",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideChannel,
			provideRooms,
			provideStore,
			provideTransfer,
			provideUploader,
			provideAPIClient,
			provideReceipts,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath, p.Identity.ID)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideChannel(p Params, m *status.Machine, b *bus.Bus, logger *zap.Logger) *channel.Conn {
	return channel.New(p.Config.ChannelURL, p.Config.AuthToken, p.Config.Reconnect, m, b, logger)
}

func provideRooms(conn *channel.Conn, b *bus.Bus, logger *zap.Logger) *rooms.Manager {
	return rooms.NewManager(conn, b, logger)
}

func provideStore(b *bus.Bus, logger *zap.Logger) *chat.Store {
	return chat.NewStore(b, logger)
}

func provideTransfer(p Params, logger *zap.Logger) *transfer.Client {
	return transfer.NewClient(p.Config.APIBaseURL, p.Config.AuthToken, logger)
}

func provideUploader(t *transfer.Client, p Params, b *bus.Bus, logger *zap.Logger) *media.Uploader {
	return media.NewUploader(t, p.Config.Media, b, logger)
}

func provideAPIClient(p Params, logger *zap.Logger) *api.Client {
	return api.NewClient(p.Config.APIBaseURL, p.Config.AuthToken, logger)
}

func provideReceipts(c *api.Client, b *bus.Bus, logger *zap.Logger) *receipts.Tracker {
	return receipts.NewTracker(c, b, logger)
}

func provideSession(p Params, c *api.Client, conn *channel.Conn, u *media.Uploader, t *transfer.Client, rm *rooms.Manager, st *chat.Store, rc *receipts.Tracker, b *bus.Bus, logger *zap.Logger) *Session {
	timeout := time.Duration(p.Config.RequestTimeoutSec) * time.Second
	return New(p.Identity, timeout, Deps{
		Backend:   c,
		Channel:   conn,
		Uploader:  u,
		Refresher: t,
		Rooms:     rm,
		Store:     st,
		Receipts:  rc,
		Bus:       b,
		Logger:    logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, s *Session, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Start(ctx); err != nil {
				logger.Error("session start failed", zap.Error(err))
				return err
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			s.Close()
			return nil
		},
	})
}
