package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var alertCounterScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Outcomes recorded by the auth handlers.
const (
	OutcomeSuccess     = "success"
	OutcomeFail        = "fail"
	OutcomeRateLimited = "rate_limited"
)

// AlertResult contains alert evaluation output.
type AlertResult struct {
	Triggered bool
	Count     int64
	Threshold int64
	Window    time.Duration
}

// AuditAlerter counts security events per source ip in fixed windows and
// reports when a rule's threshold is reached. A nil alerter records nothing.
type AuditAlerter struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditAlerter(client redis.UniversalClient, prefix string, logger *slog.Logger) *AuditAlerter {
	if client == nil {
		return nil
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "loanportal:auth:alerts"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditAlerter{client: client, prefix: prefix, logger: logger, now: time.Now}
}

// Observe records a security event and returns whether alert threshold is reached.
func (a *AuditAlerter) Observe(ctx context.Context, event, outcome, ip string) (AlertResult, error) {
	result := AlertResult{}
	if a == nil || a.client == nil {
		return result, nil
	}
	threshold, window, ok := alertRule(event, outcome)
	if !ok {
		return result, nil
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		ip = "unknown"
	}
	windowMs := window.Milliseconds()
	slot := a.now().UTC().UnixMilli() / windowMs
	key := fmt.Sprintf("%s:%s:%s:%s:%d", a.prefix, sanitizeSegment(event), sanitizeSegment(outcome), sanitizeSegment(ip), slot)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	count, err := alertCounterScript.Run(ctx, a.client, []string{key}, windowMs).Int64()
	if err != nil {
		return result, err
	}
	result.Count = count
	result.Threshold = threshold
	result.Window = window
	result.Triggered = count >= threshold
	return result, nil
}

// Record observes the event and logs when an alert fires or the counter
// fails. It never blocks the caller's outcome.
func (a *AuditAlerter) Record(ctx context.Context, event, outcome, ip string) {
	if a == nil {
		return
	}
	res, err := a.Observe(ctx, event, outcome, ip)
	if err != nil {
		a.logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if res.Triggered && res.Count == res.Threshold {
		a.logger.Error("security alert triggered",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", res.Count,
			"window", res.Window.String(),
		)
	}
}

func alertRule(event, outcome string) (threshold int64, window time.Duration, ok bool) {
	event = strings.TrimSpace(event)
	outcome = strings.TrimSpace(outcome)
	if outcome == OutcomeRateLimited {
		return 20, time.Minute, true
	}
	if outcome != OutcomeFail {
		return 0, 0, false
	}
	switch event {
	case "auth.login", "auth.signup":
		return 10, 5 * time.Minute, true
	case "auth.password.reset.confirm":
		return 5, 15 * time.Minute, true
	case "auth.refresh", "auth.logout", "auth.password.change":
		return 15, 5 * time.Minute, true
	case "auth.authorize", "auth.admin.authorize":
		return 25, 5 * time.Minute, true
	default:
		return 0, 0, false
	}
}

func sanitizeSegment(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}
	replacer := strings.NewReplacer(":", "_", "|", "_", " ", "_")
	return replacer.Replace(in)
}
