// Package chatsync is the client-side synchronization engine for
// in-course chat: live delivery over a websocket channel, optimistic
// sends reconciled against the backend, deduplication across the
// persist-response and broadcast paths, the signed-URL attachment
// pipeline, read receipts and room subscriptions.
//
// The exported surface is deliberately thin: construct the engine with
// Module inside an fx application, or assemble the internal packages
// directly from a cmd binary in this module.
package chatsync

import (
	"github.com/courseloop/chatsync/internal/chat"
	"github.com/courseloop/chatsync/internal/config"
	"github.com/courseloop/chatsync/internal/media"
	"github.com/courseloop/chatsync/internal/session"
	"go.uber.org/fx"
)

// Identity is the authenticated participant the engine acts as.
type Identity = chat.Sender

// Message is one chat message as rendered in a room.
type Message = chat.Message

// Room is a course chat room with its unread counter and last-message
// summary.
type Room = chat.Room

// Config is the engine configuration, loaded from TOML.
type Config = config.Config

// Session is the running engine bound to one identity.
type Session = session.Session

// LoadConfig reads the configuration file at path, applying defaults
// for unset fields. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// DefaultConfigPath returns ~/.chatsync/config.toml.
func DefaultConfigPath() string {
	return config.Path()
}

// OpenFile prepares a local file for sending as an attachment.
func OpenFile(path string) (*media.LocalFile, error) {
	return media.Open(path)
}

// Module returns the fx module composing the whole engine for the given
// configuration and identity.
func Module(cfg *Config, identity Identity) fx.Option {
	return session.Module(session.Params{Config: cfg, Identity: identity})
}
