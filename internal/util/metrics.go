package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order lifecycle transitions",
	}, []string{"to_status"})

	OrderTransitionConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "order_transition_conflicts_total",
		Help: "Total number of order transitions lost to a concurrent update",
	})

	OrdersRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_rejected_total",
		Help: "Total number of rejected order operations",
	}, []string{"reason"})

	PaymentsInitiatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Total number of payments initiated",
	}, []string{"provider"})

	PaymentsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_settled_total",
		Help: "Total number of payments settled via webhook",
	}, []string{"provider", "status"})

	WebhooksReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_received_total",
		Help: "Total number of provider webhooks received",
	}, []string{"provider"})

	WebhooksRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_webhooks_rejected_total",
		Help: "Total number of provider webhooks rejected",
	}, []string{"provider", "reason"})

	WebhookProcessingLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_webhook_processing_latency_seconds",
		Help:    "Latency of webhook settlement processing",
		Buckets: prometheus.DefBuckets,
	})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_published_total",
		Help: "Total number of notification events published",
	}, []string{"event"})

	NotificationsDeliveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_delivered_total",
		Help: "Total number of notifications delivered",
	}, []string{"channel"})

	NotificationsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_dropped_total",
		Help: "Total number of notifications dropped after retries",
	}, []string{"channel"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
