package autoreply

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"autoflow/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultMessage is sent when no message is configured
const DefaultMessage = "I'm currently in a meeting and cannot take your call. I'll get back to you as soon as possible."

// Sender delivers the reply and tells the user about it
type Sender interface {
	SendSMS(ctx context.Context, number, message string) error
	Notify(ctx context.Context, title, message, priority string) error
}

// ModeSource reports the ringer mode last applied to the device
type ModeSource interface {
	SoundMode() string
}

// Settings configure the responder
type Settings struct {
	Enabled         bool
	Message         string
	Cooldown        time.Duration // per number; zero disables it
	MeetingModeOnly bool          // reply only while DND or Silent is on
	KeyPrefix       string
}

// Outcome says what the responder did with a call event
type Outcome string

// Outcomes
const (
	Replied      Outcome = "replied"
	Disabled     Outcome = "disabled"
	Ignored      Outcome = "ignored" // call state that needs no reply
	NoNumber     Outcome = "no_number"
	NotInMeeting Outcome = "not_in_meeting"
	CoolingDown  Outcome = "cooldown"
)

// Responder texts back callers whose calls were missed or ended unanswered
type Responder struct {
	sender   Sender
	modes    ModeSource // optional
	rdb      *redis.Client
	settings Settings
	logger   *zap.Logger

	mu   sync.Mutex
	sent map[string]time.Time // cooldowns when rdb is nil
	now  func() time.Time
}

// NewResponder creates a Responder. rdb may be nil to keep cooldowns in memory.
func NewResponder(sender Sender, modes ModeSource, rdb *redis.Client, settings Settings, logger *zap.Logger) *Responder {
	if settings.Message == "" {
		settings.Message = DefaultMessage
	}
	if settings.KeyPrefix == "" {
		settings.KeyPrefix = "autoflow:autoreply"
	}
	return &Responder{
		sender:   sender,
		modes:    modes,
		rdb:      rdb,
		settings: settings,
		logger:   logger,
		sent:     make(map[string]time.Time),
		now:      time.Now,
	}
}

// HandleCall is the engine hook for CALL events
func (r *Responder) HandleCall(ctx context.Context, ev models.Event) error {
	outcome, err := r.Respond(ctx, ev)
	if err != nil {
		return err
	}
	r.logger.Debug("call handled",
		zap.String("event_id", ev.ID),
		zap.String("state", ev.Field(models.FieldState)),
		zap.String("outcome", string(outcome)))
	return nil
}

// Respond decides whether the call deserves a reply and sends it
func (r *Responder) Respond(ctx context.Context, ev models.Event) (Outcome, error) {
	if !r.settings.Enabled {
		return Disabled, nil
	}
	switch ev.Field(models.FieldState) {
	case models.CallMissed, models.CallEnded:
	default:
		return Ignored, nil
	}
	number := strings.TrimSpace(ev.Field(models.FieldNumber))
	if number == "" {
		return NoNumber, nil
	}
	if r.settings.MeetingModeOnly && !r.inMeeting(ev) {
		return NotInMeeting, nil
	}

	ok, err := r.claim(ctx, number)
	if err != nil {
		return "", err
	}
	if !ok {
		return CoolingDown, nil
	}

	if err := r.sender.SendSMS(ctx, number, r.settings.Message); err != nil {
		if relErr := r.release(ctx, number); relErr != nil {
			r.logger.Warn("release auto-reply cooldown failed", zap.Error(relErr))
		}
		return "", fmt.Errorf("auto-reply to %s: %w", number, err)
	}
	r.logger.Info("auto-reply sent", zap.String("number", number))

	if err := r.sender.Notify(ctx, "Auto-Reply Sent", "Replied to "+number, models.PriorityLow); err != nil {
		r.logger.Warn("auto-reply notification failed", zap.Error(err))
	}
	return Replied, nil
}

func (r *Responder) inMeeting(ev models.Event) bool {
	if dnd, err := strconv.ParseBool(ev.Field(models.FieldDND)); err == nil && dnd {
		return true
	}
	if r.modes == nil {
		return false
	}
	switch r.modes.SoundMode() {
	case models.SoundDND, models.SoundSilent:
		return true
	}
	return false
}

func (r *Responder) key(number string) string {
	return r.settings.KeyPrefix + ":" + number
}

// claim starts the cooldown for number; false means one is already running
func (r *Responder) claim(ctx context.Context, number string) (bool, error) {
	if r.settings.Cooldown <= 0 {
		return true, nil
	}
	if r.rdb != nil {
		ok, err := r.rdb.SetNX(ctx, r.key(number), r.now().UnixMilli(), r.settings.Cooldown).Result()
		if err != nil {
			return false, fmt.Errorf("auto-reply cooldown: %w", err)
		}
		return ok, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if last, ok := r.sent[number]; ok && now.Sub(last) < r.settings.Cooldown {
		return false, nil
	}
	r.sent[number] = now
	return true, nil
}

func (r *Responder) release(ctx context.Context, number string) error {
	if r.settings.Cooldown <= 0 {
		return nil
	}
	if r.rdb != nil {
		err := r.rdb.Del(ctx, r.key(number)).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	r.mu.Lock()
	delete(r.sent, number)
	r.mu.Unlock()
	return nil
}
