// FILE: alerts.go
// Package main – Operator notification sink (§6.2).
//
// Delivery is a best-effort webhook POST, the same shape as the teacher's
// postSlack helper in trader.go (fire a JSON body at an env-configured
// webhook URL, ignore delivery errors) generalized into a throttled sink:
// at most 30 alerts/min go out, with overflow counted rather than dropped
// silently so an operator can tell a storm happened.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"
)

const alertsPerMinuteLimit = 30

// AlertSink delivers Alerts to the operator notification channel, throttled
// to alertsPerMinuteLimit per rolling minute.
type AlertSink struct {
	webhookURL string
	hc         *http.Client

	mu           sync.Mutex
	windowStart  time.Time
	sentInWindow int
	overflow     int
}

// NewAlertSink builds a sink posting to the given webhook URL ("" disables
// delivery; alerts are still logged and counted).
func NewAlertSink(webhookURL string) *AlertSink {
	return &AlertSink{
		webhookURL:  webhookURL,
		hc:          &http.Client{Timeout: 3 * time.Second},
		windowStart: time.Now().UTC(),
	}
}

// Send delivers an Alert, subject to the per-minute throttle. Always logs
// locally regardless of throttle state or delivery outcome.
func (s *AlertSink) Send(a Alert) {
	log.Printf("[ALERT] %s", a.String())

	s.mu.Lock()
	now := time.Now().UTC()
	if now.Sub(s.windowStart) >= time.Minute {
		s.windowStart = now
		s.sentInWindow = 0
	}
	if s.sentInWindow >= alertsPerMinuteLimit {
		s.overflow++
		s.mu.Unlock()
		return
	}
	s.sentInWindow++
	s.mu.Unlock()

	s.post(a)
}

// Overflow returns the count of alerts suppressed by the throttle since the
// sink was created.
func (s *AlertSink) Overflow() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overflow
}

func (s *AlertSink) post(a Alert) {
	if s.webhookURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	body := map[string]string{"text": a.String()}
	bs, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(bs))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	_, _ = s.hc.Do(req)
}
