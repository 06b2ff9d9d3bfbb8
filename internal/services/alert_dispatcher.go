package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/badoux/checkmail"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"teambudget/internal/core"
)

// SentMarkerKey is the marker recorded after an alert e-mail went out.
func SentMarkerKey(notificationID string) string {
	return "alert_sent_" + notificationID
}

// AlertDispatcher e-mails allocation alerts at most once per notification id.
type AlertDispatcher struct {
	markers MarkerStore
	sender  EmailSender
	appLink string
	group   singleflight.Group
	// maxParallel bounds concurrent sends in DispatchAll.
	maxParallel int
}

func NewAlertDispatcher(markers MarkerStore, sender EmailSender, appLink string) *AlertDispatcher {
	return &AlertDispatcher{
		markers:     markers,
		sender:      sender,
		appLink:     appLink,
		maxParallel: 4,
	}
}

// Ready reports whether settings carry everything needed to send an alert.
// An unparseable recipient counts as missing.
func Ready(settings core.AppSettings) bool {
	to := strings.TrimSpace(settings.AlertEmail)
	if to == "" || !settings.Email.Complete() {
		return false
	}
	return checkmail.ValidateFormat(to) == nil
}

// Dispatch sends the alert for n unless it is not an allocation alert, alerting
// is not configured, or the sent marker is already present. The marker is set
// only after a successful send, so failed sends are retried on later cycles.
// Concurrent calls for the same id share one attempt.
func (d *AlertDispatcher) Dispatch(ctx context.Context, n core.Notification, settings core.AppSettings) (bool, error) {
	if !n.IsAllocationAlert() || !Ready(settings) || d.sender == nil {
		return false, nil
	}

	v, err, _ := d.group.Do(n.ID, func() (any, error) {
		return d.dispatchOnce(ctx, n, settings)
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (d *AlertDispatcher) dispatchOnce(ctx context.Context, n core.Notification, settings core.AppSettings) (bool, error) {
	key := SentMarkerKey(n.ID)
	sent, err := d.markers.HasMarker(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check sent marker %s: %w", key, err)
	}
	if sent {
		return false, nil
	}

	msg := d.render(n, settings)
	if err := d.sender.Send(ctx, msg, settings.Email); err != nil {
		return false, fmt.Errorf("send alert %s: %w", n.ID, err)
	}

	if err := d.markers.SetMarker(ctx, key); err != nil {
		// the e-mail went out; a missing marker means a possible duplicate next cycle
		slog.ErrorContext(ctx, "Failed to persist sent marker",
			"notification_id", n.ID,
			"error", err)
	}

	slog.InfoContext(ctx, "Allocation alert sent",
		"notification_id", n.ID,
		"description", n.Subject.Description)
	return true, nil
}

func (d *AlertDispatcher) render(n core.Notification, settings core.AppSettings) AlertEmail {
	return AlertEmail{
		To:          strings.TrimSpace(settings.AlertEmail),
		Description: n.Subject.Description,
		Amount:      n.Subject.Amount.Format(),
		Date:        n.Subject.Date.String(),
		Message:     fmt.Sprintf("Incoming allocation of %s %s due on %s", core.Currency, n.Subject.Amount.Format(), n.Subject.Date),
		Link:        d.appLink,
	}
}

// DispatchReport summarizes one DispatchAll run.
type DispatchReport struct {
	Sent    int
	Skipped int
	Failed  int
}

// DispatchAll dispatches every notification concurrently. A failing send is
// logged and counted and never prevents the others from going out.
func (d *AlertDispatcher) DispatchAll(ctx context.Context, ns []core.Notification, settings core.AppSettings) DispatchReport {
	var report DispatchReport
	if !Ready(settings) {
		for _, n := range ns {
			if n.IsAllocationAlert() {
				report.Skipped++
			}
		}
		if report.Skipped > 0 {
			slog.DebugContext(ctx, "Alert e-mail not configured, skipping dispatch", "alerts", report.Skipped)
		}
		return report
	}

	results := make([]int, len(ns))
	const (
		skipped = iota
		sent
		failed
	)

	// plain Group: one failure must not cancel the remaining sends
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i, n := range ns {
		if !n.IsAllocationAlert() {
			results[i] = -1
			continue
		}
		g.Go(func() error {
			ok, err := d.Dispatch(ctx, n, settings)
			switch {
			case err != nil:
				slog.WarnContext(ctx, "Alert dispatch failed, will retry next cycle",
					"notification_id", n.ID,
					"error", err)
				results[i] = failed
			case ok:
				results[i] = sent
			default:
				results[i] = skipped
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		switch r {
		case sent:
			report.Sent++
		case failed:
			report.Failed++
		case skipped:
			report.Skipped++
		}
	}
	return report
}
