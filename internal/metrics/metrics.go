package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusBlocked = "blocked"
)

var (
	socialMetricsOnce sync.Once

	friendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_requests_total",
			Help: "Total number of friend request attempts",
		},
		[]string{"status"},
	)

	friendAcceptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_accepts_total",
			Help: "Total number of friend request accept attempts",
		},
		[]string{"status"},
	)

	friendRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "friend_rejects_total",
			Help: "Total number of friend request refuse attempts",
		},
		[]string{"status"},
	)

	messagesSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_sent_total",
			Help: "Total number of direct message send attempts",
		},
		[]string{"status"},
	)

	accountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_operations_total",
			Help: "Total number of signup, block and account deletion attempts",
		},
		[]string{"operation", "status"},
	)
)

func RegisterSocialMetrics() {
	socialMetricsOnce.Do(func() {
		prometheus.MustRegister(friendRequestsTotal, friendAcceptsTotal, friendRejectsTotal, messagesSentTotal, accountsTotal)
	})
}

func IncFriendRequest(status string) {
	RegisterSocialMetrics()
	friendRequestsTotal.WithLabelValues(status).Inc()
}

func IncFriendAccept(status string) {
	RegisterSocialMetrics()
	friendAcceptsTotal.WithLabelValues(status).Inc()
}

func IncFriendReject(status string) {
	RegisterSocialMetrics()
	friendRejectsTotal.WithLabelValues(status).Inc()
}

func IncMessageSent(status string) {
	RegisterSocialMetrics()
	messagesSentTotal.WithLabelValues(status).Inc()
}

func IncAccountOperation(operation, status string) {
	RegisterSocialMetrics()
	accountsTotal.WithLabelValues(operation, status).Inc()
}
