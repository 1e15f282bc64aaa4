// Package sender превращает события жизненного цикла подписки в письма пользователям.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/habitup-billing/internal/lib/sl"
	"github.com/magabrotheeeer/habitup-billing/internal/lib/smtp"
	"github.com/magabrotheeeer/habitup-billing/internal/models"
)

const lookupTimeout = 5 * time.Second

type UserRepository interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type SenderService struct {
	repo      UserRepository
	transport smtp.Dialer
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(repo UserRepository, log *slog.Logger, transport smtp.Dialer) *SenderService {
	return &SenderService{
		repo:      repo,
		transport: transport,
		log:       log,
	}
}

// Notify обработчик сообщения из очереди. Ошибка возвращается только когда
// письмо стоит повторить: битые и неизвестные сообщения подтверждаются и отбрасываются.
func (s *SenderService) Notify(body []byte) error {
	var event models.LifecycleEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal message body, dropping", sl.Err(err))
		return nil
	}

	subject, text, ok := Compose(event)
	if !ok {
		s.log.Warn("unknown event type, dropping", "type", event.Type)
		return nil
	}

	if event.Email == "" {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()
		user, err := s.repo.GetUser(ctx, event.UserID)
		if err != nil {
			s.log.Warn("recipient unknown, dropping", sl.UserID(event.UserID), sl.Err(err))
			return nil
		}
		event.Email = user.Email
		if event.Name == "" {
			event.Name = user.Name
			subject, text, _ = Compose(event)
		}
	}

	if err := s.sendEmail([]string{event.Email}, subject, text); err != nil {
		return fmt.Errorf("services.sender.Notify: %w", err)
	}
	return nil
}

// Compose возвращает тему и текст письма для события.
func Compose(e models.LifecycleEvent) (string, string, bool) {
	name := e.Name
	if name == "" {
		name = "there"
	}
	amount := e.Amount.StringFixed(2) + " " + e.Currency
	end := e.EndDate.Format("02 Jan 2006")

	var subject, body string
	switch e.Type {
	case models.EventActivated:
		subject = "Your HabitUP subscription is active"
		body = fmt.Sprintf("Your %s plan is active until %s. We received %s.", e.PlanType, end, amount)
	case models.EventUpgraded:
		subject = "Your HabitUP plan was upgraded"
		body = fmt.Sprintf("You are now on the %s plan. Your billing period still ends on %s.", e.PlanType, end)
	case models.EventCancelled:
		subject = "Your HabitUP subscription was cancelled"
		body = fmt.Sprintf("Your %s subscription has been cancelled. Any refund due will reach your original payment method.", e.PlanType)
	case models.EventExtended:
		subject = "Your HabitUP subscription was extended"
		body = fmt.Sprintf("Good news: your %s subscription now runs until %s.", e.PlanType, end)
	case models.EventExpired:
		subject = "Your HabitUP subscription has expired"
		body = fmt.Sprintf("Your %s subscription ended on %s. Renew any time to keep your streaks going.", e.PlanType, end)
	case models.EventExpiring:
		subject = "Your HabitUP subscription ends soon"
		body = fmt.Sprintf("Your %s subscription ends on %s. Renew now to avoid interruption.", e.PlanType, end)
	case models.EventFailed:
		subject = "Your HabitUP payment did not go through"
		body = fmt.Sprintf("We could not process your payment of %s for the %s plan. Please try again.", amount, e.PlanType)
	default:
		return "", "", false
	}
	return subject, fmt.Sprintf("Hi %s,\r\n\r\n%s\r\n\r\nTeam HabitUP", name, body), true
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.From(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.From()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.From(), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", "to", to, "subject", subject)
	return nil
}
