package trial

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"fleetshare.app/cloud/internal/email"
	"fleetshare.app/cloud/internal/logger"
	"fleetshare.app/cloud/internal/metrics"
	"fleetshare.app/cloud/models"
	"fleetshare.app/cloud/storage"
)

type Notice string

const (
	NoticeExpiringInTwoDays Notice = "expiring_in_2_days"
	NoticeExpiringTomorrow  Notice = "expiring_tomorrow"
	NoticeExpired           Notice = "expired"
)

// noticeFor picks the notice for a trial ending on endsAt, compared by UTC
// calendar date so repeated runs on the same day pick the same notice.
func noticeFor(endsAt, now time.Time) (Notice, bool) {
	switch calendarDaysBetween(now, endsAt) {
	case 2:
		return NoticeExpiringInTwoDays, true
	case 1:
		return NoticeExpiringTomorrow, true
	case 0:
		return NoticeExpired, true
	}
	return "", false
}

func calendarDaysBetween(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

type Failure struct {
	OrganizationID string `json:"organization_id"`
	Error          string `json:"error"`
}

type Report struct {
	Checked           int       `json:"checked"`
	ExpiringInTwoDays int       `json:"expiring_in_2_days"`
	ExpiringTomorrow  int       `json:"expiring_tomorrow"`
	Expired           int       `json:"expired"`
	Failures          []Failure `json:"failures"`
	ProcessedAt       time.Time `json:"processed_at"`
}

func (r *Report) count(n Notice) {
	switch n {
	case NoticeExpiringInTwoDays:
		r.ExpiringInTwoDays++
	case NoticeExpiringTomorrow:
		r.ExpiringTomorrow++
	case NoticeExpired:
		r.Expired++
	}
}

type Notifier struct {
	Store  storage.Storage
	Sender email.Sender
	AppURL string
	Now    func() time.Time
}

func NewNotifier(store storage.Storage, sender email.Sender, appURL string) *Notifier {
	return &Notifier{Store: store, Sender: sender, AppURL: appURL, Now: time.Now}
}

// Run sends at most one notice to the owners of every trialing organization.
// A failure for one organization is recorded in the report and does not stop
// the others; only failing to list organizations returns an error.
func (n *Notifier) Run(ctx context.Context) (*Report, error) {
	now := n.Now().UTC()

	orgs, err := n.Store.ListTrialingOrganizations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list trials: %w", err)
	}

	report := &Report{Failures: []Failure{}, ProcessedAt: now}
	var errs *multierror.Error

	for _, org := range orgs {
		if org.TrialEndsAt == nil {
			continue
		}
		report.Checked++

		notice, ok := noticeFor(*org.TrialEndsAt, now)
		if !ok {
			continue
		}

		if err := n.notify(ctx, org, notice); err != nil {
			metrics.TrialNotices.WithLabelValues(string(notice), "failed").Inc()
			report.Failures = append(report.Failures, Failure{OrganizationID: org.ID, Error: err.Error()})
			errs = multierror.Append(errs, fmt.Errorf("organization %s: %w", org.ID, err))
			continue
		}
		metrics.TrialNotices.WithLabelValues(string(notice), "sent").Inc()
		report.count(notice)
	}

	if err := errs.ErrorOrNil(); err != nil {
		logger.Warn("Some trial notices failed", map[string]interface{}{
			"failed": len(report.Failures),
			"error":  err.Error(),
		})
	}
	logger.Info("Trial notifications completed", map[string]interface{}{
		"checked":            report.Checked,
		"expiring_in_2_days": report.ExpiringInTwoDays,
		"expiring_tomorrow":  report.ExpiringTomorrow,
		"expired":            report.Expired,
	})

	return report, nil
}

func (n *Notifier) notify(ctx context.Context, org *models.Organization, notice Notice) error {
	owners, err := n.Store.ListOwners(ctx, org.ID)
	if err != nil {
		return fmt.Errorf("failed to list owners: %w", err)
	}
	if len(owners) == 0 {
		return fmt.Errorf("no owners to notify")
	}

	subject, body := n.compose(org, notice)

	var errs *multierror.Error
	for _, owner := range owners {
		if err := n.Sender.Send(ctx, owner.Email, subject, body); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", owner.Email, err))
		}
	}
	return errs.ErrorOrNil()
}

func (n *Notifier) compose(org *models.Organization, notice Notice) (string, string) {
	billingURL := strings.TrimRight(n.AppURL, "/") + "/billing"
	endDate := org.TrialEndsAt.UTC().Format("January 2, 2006")

	var subject, lead string
	switch notice {
	case NoticeExpiringInTwoDays:
		subject = "Your FleetShare trial ends in 2 days"
		lead = fmt.Sprintf("The trial for %s ends in 2 days, on %s.", org.Name, endDate)
	case NoticeExpiringTomorrow:
		subject = "Your FleetShare trial ends tomorrow"
		lead = fmt.Sprintf("The trial for %s ends tomorrow, %s.", org.Name, endDate)
	default:
		subject = "Your FleetShare trial has ended"
		lead = fmt.Sprintf("The trial for %s ends today. The organization will move to the Free plan.", org.Name)
	}

	body := fmt.Sprintf(`Hello,

%s

Choose a plan to keep every aircraft and team member you have added:
%s

The FleetShare Team`, lead, billingURL)

	return subject, body
}
