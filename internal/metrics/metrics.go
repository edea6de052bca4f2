// Package metrics exposes engine counters on the default prometheus
// registry; the embedding application decides whether to serve them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_sent_total",
		Help: "Messages submitted through the send pipeline.",
	})
	MessagesConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_confirmed_total",
		Help: "Messages confirmed by the persist call.",
	})
	MessagesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_messages_failed_total",
		Help: "Messages rolled back after an upload or persist failure.",
	})

	DuplicatesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_broadcast_duplicates_dropped_total",
		Help: "Broadcast messages dropped because their id was already rendered.",
	})
	CrossRoomDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_broadcast_cross_room_dropped_total",
		Help: "Broadcast messages dropped because they target an inactive room.",
	})
	MalformedDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_broadcast_malformed_dropped_total",
		Help: "Broadcast messages dropped because they were structurally invalid.",
	})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsync_channel_reconnects_total",
		Help: "Automatic live-channel reconnection attempts.",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsync_uploads_total",
		Help: "Attachment uploads by outcome.",
	}, []string{"outcome"})
)
