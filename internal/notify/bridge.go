package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"axle-monitor/core/internal/domain"
	"axle-monitor/core/internal/metrics"
)

// Claimer records that a warning was surfaced at a severity tier so later
// scans skip it. A claim is released when nobody received the warning.
type Claimer interface {
	ClaimWarning(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseWarning(ctx context.Context, key string) error
}

type BridgeConfig struct {
	SendTimeout time.Duration
	DedupTTL    time.Duration
}

// Bridge maps warnings and maintenance reminders onto the push channel and
// the mailer.
type Bridge struct {
	push    Pusher
	mail    Mailer
	claims  Claimer
	cfg     BridgeConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewBridge wires the bridge. mail and claims may be nil: without a mailer
// no email is sent, without a claimer deduplication is per scan only.
func NewBridge(push Pusher, mail Mailer, claims Claimer, cfg BridgeConfig, m *metrics.Metrics, logger *zap.Logger) *Bridge {
	return &Bridge{
		push:    push,
		mail:    mail,
		claims:  claims,
		cfg:     cfg,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

type Result struct {
	Surfaced     int `json:"surfaced"`
	Deduplicated int `json:"deduplicated"`
	Failed       int `json:"failed"`
}

// SurfaceWarnings pushes every distinct warning of one scan to the device's
// notified users.
func (b *Bridge) SurfaceWarnings(ctx context.Context, device *domain.Device, events []domain.WarningEvent) Result {
	var res Result
	seen := make(map[string]struct{}, len(events))
	recipients := recipientsOf(device)

	for _, ev := range events {
		sig := ev.Signature()
		if _, dup := seen[sig]; dup {
			res.Deduplicated++
			b.metrics.Deduplicated()
			continue
		}
		seen[sig] = struct{}{}

		key := claimKey(ev)
		if !b.claim(ctx, key) {
			res.Deduplicated++
			b.metrics.Deduplicated()
			continue
		}

		msg := Message{
			Kind:   KindWarning,
			Title:  fmt.Sprintf("%s warning on train %s", ev.Severity, ev.TrainID),
			Body:   warningBody(ev),
			Data:   ev,
			SentAt: b.now(),
		}
		delivered := false
		for _, r := range recipients {
			if b.send(ctx, r, msg) {
				delivered = true
			} else {
				res.Failed++
			}
		}
		if delivered {
			res.Surfaced++
		} else {
			b.release(ctx, key)
		}
	}
	return res
}

// MaintenanceDue tells the device's notified users about a newly scheduled
// window, by push and by email.
func (b *Bridge) MaintenanceDue(ctx context.Context, device *domain.Device, rec domain.MaintenanceRecord) Result {
	var res Result
	date := rec.MaintainDate.Format("02/01/2006")
	msg := Message{
		Kind:   KindMaintenance,
		Title:  "Upcoming maintenance",
		Body:   fmt.Sprintf("Device %s is due for maintenance on %s.", device.Name, date),
		Data:   rec,
		SentAt: b.now(),
	}

	for _, u := range device.NotifiedUsers {
		if b.send(ctx, u.RecipientKey(), msg) {
			res.Surfaced++
		} else {
			res.Failed++
		}

		if b.mail == nil || u.Email == "" {
			continue
		}
		err := b.withTimeout(ctx, func(ctx context.Context) error {
			return b.mail.Send(ctx, u.Email, TemplateMaintenanceUpcoming, map[string]string{
				"UserName":   u.UserName,
				"DeviceName": device.Name,
				"Location":   device.Location,
				"Date":       date,
			})
		})
		b.metrics.Notified("email", err)
		if err != nil {
			res.Failed++
			b.logger.Warn("maintenance email failed",
				zap.String("device_id", device.ID),
				zap.String("recipient", u.Email),
				zap.Error(err))
		}
	}
	return res
}

// claimKey scopes cross-scan dedup to one severity tier, so a reading that
// climbs from Differential to Hot is surfaced again.
func claimKey(ev domain.WarningEvent) string {
	return ev.Signature() + "|" + string(ev.Severity)
}

func (b *Bridge) claim(ctx context.Context, key string) bool {
	if b.claims == nil {
		return true
	}
	ok, err := b.claims.ClaimWarning(ctx, key, b.cfg.DedupTTL)
	if err != nil {
		// Prefer a duplicate alert over a missed one.
		b.logger.Warn("warning dedup unavailable", zap.String("key", key), zap.Error(err))
		return true
	}
	return ok
}

func (b *Bridge) release(ctx context.Context, key string) {
	if b.claims == nil {
		return
	}
	if err := b.claims.ReleaseWarning(ctx, key); err != nil {
		b.logger.Warn("warning claim not released", zap.String("key", key), zap.Error(err))
	}
}

func (b *Bridge) send(ctx context.Context, recipient string, msg Message) bool {
	err := b.withTimeout(ctx, func(ctx context.Context) error {
		return b.push.Notify(ctx, recipient, msg)
	})
	b.metrics.Notified(b.push.Name(), err)
	if err != nil {
		b.logger.Warn("push notification failed",
			zap.String("channel", b.push.Name()),
			zap.String("recipient", recipient),
			zap.String("kind", string(msg.Kind)),
			zap.Error(err))
		return false
	}
	return true
}

func (b *Bridge) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	if b.cfg.SendTimeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, b.cfg.SendTimeout)
	defer cancel()
	return fn(ctx)
}

// recipientsOf falls back to the device key so unattended devices still
// reach whoever subscribes to the device channel.
func recipientsOf(device *domain.Device) []string {
	if len(device.NotifiedUsers) == 0 {
		return []string{device.Name}
	}
	out := make([]string, 0, len(device.NotifiedUsers))
	for _, u := range device.NotifiedUsers {
		out = append(out, u.RecipientKey())
	}
	return out
}

func warningBody(ev domain.WarningEvent) string {
	return fmt.Sprintf("%s %s sensor %d reads %.1f°C on axle %d (coach %s), direction %s.",
		ev.Side, ev.SensorGroup, ev.SensorIndex, ev.Temperature, ev.AxleNumber, ev.CoachLabel(), ev.Direction)
}
