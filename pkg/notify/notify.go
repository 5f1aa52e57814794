package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"

	"github.com/LalitYangaldas/PriceWise/pkg/models"
)

// Decide classifies the change between the previously persisted product and
// the fresh snapshot. Exactly one category is returned; the precedence order
// below is fixed so a single change can never trigger two alerts.
//
// threshold is the ThresholdCrossed fraction of the original price, in
// (0, 1]; 0 disables the rule.
func Decide(prev *models.Product, snap *models.ProductSnapshot, threshold float64) models.Category {
	if prev.IsOutOfStock && !snap.IsOutOfStock {
		return models.CategoryBackInStock
	}
	if !models.HasPrice(snap.CurrentPrice) {
		return models.CategoryNone
	}
	if len(prev.PriceHistory) > 0 && snap.CurrentPrice < prev.LowestPrice {
		return models.CategoryLowestPriceEver
	}
	if threshold > 0 && models.HasPrice(prev.OriginalPrice) && prev.OriginalPrice > 0 &&
		snap.CurrentPrice < threshold*prev.OriginalPrice {
		return models.CategoryThresholdCrossed
	}
	if models.HasPrice(prev.CurrentPrice) && snap.CurrentPrice < prev.CurrentPrice {
		return models.CategoryPriceDrop
	}
	return models.CategoryNone
}

// Notification is the delivery handoff: who to tell, about what.
type Notification struct {
	Recipients []string
	ProductURL string
	Title      string
	Category   models.Category
}

// Notifier delivers an alert. Delivery is best-effort: a failed send is
// logged by the caller and never rolls back the persisted price update.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// SMTPConfig carries the delivery transport settings.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPNotifier sends plain-text alert mails.
type SMTPNotifier struct {
	cfg SMTPConfig
}

func NewSMTPNotifier(cfg SMTPConfig) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg}
}

var subjects = map[models.Category]string{
	models.CategoryPriceDrop:        "Price dropped",
	models.CategoryLowestPriceEver:  "Lowest price ever",
	models.CategoryThresholdCrossed: "Target price reached",
	models.CategoryBackInStock:      "Back in stock",
}

func (s *SMTPNotifier) Send(ctx context.Context, n Notification) error {
	if len(n.Recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject, ok := subjects[n.Category]
	if !ok {
		return fmt.Errorf("no subject for category %q", n.Category)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + strings.Join(n.Recipients, ", "),
		fmt.Sprintf("Subject: %s: %s", subject, n.Title),
		"",
		fmt.Sprintf("%s is worth another look: %s", n.Title, n.ProductURL),
	}, "\r\n")

	addr := s.cfg.Host + ":" + s.cfg.Port
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	if err := smtp.SendMail(addr, auth, s.cfg.From, n.Recipients, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogNotifier is the default delivery collaborator when no SMTP transport
// is configured. It only records what would have been sent.
type LogNotifier struct{}

func (LogNotifier) Send(_ context.Context, n Notification) error {
	log.Printf("notify: %s for %s -> %d recipient(s)", n.Category, n.ProductURL, len(n.Recipients))
	return nil
}
