package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/avelar-fin/loan-service/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendPaymentFailedNotice tells a borrower their payment failed, what was
// added to their balance and when the next attempt is due.
func (s *Sender) SendPaymentFailedNotice(to, name, amount, fee, nextDueDate string) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = "Payment Unsuccessful - Updated Payment Schedule"

	body := fmt.Sprintf(
		"Dear %s,\n\n", name,
	)
	body += fmt.Sprintf(
		"Your scheduled payment of $%s could not be collected.\n"+
			"A failed payment fee of $%s has been applied, and your remaining\n"+
			"payment schedule has been recalculated.\n"+
			"Your next payment is due on %s.\n\n"+
			"If you believe this is an error, please contact support.\n",
		amount, fee, nextDueDate,
	)
	body += "\nBest regards,\nAvelar Lending"
	e.Text = []byte(body)

	return s.send(e, to)
}

// SendPaymentReminder sends an upcoming or overdue payment reminder
func (s *Sender) SendPaymentReminder(to, name string, paymentDate time.Time, amount string, isOverdue bool) error {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	if isOverdue {
		e.Subject = "Overdue Loan Payment Notification"
	} else {
		e.Subject = "Upcoming Loan Payment Reminder"
	}

	body := fmt.Sprintf(
		"Dear %s,\n\n", name,
	)
	if isOverdue {
		body += fmt.Sprintf(
			"Your loan payment of $%s was due on %s and is now overdue.\n"+
				"Please make the payment as soon as possible to avoid a failed payment fee.\n",
			amount, paymentDate.Format("2006-01-02"),
		)
	} else {
		body += fmt.Sprintf(
			"This is a reminder that your loan payment of $%s is due on %s.\n"+
				"Please ensure sufficient funds are available in your account.\n",
			amount, paymentDate.Format("2006-01-02"),
		)
	}
	body += "\nBest regards,\nAvelar Lending"
	e.Text = []byte(body)

	return s.send(e, to)
}

func (s *Sender) send(e *email.Email, to string) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Infof("Email sent to %s: %s", to, e.Subject)
	return nil
}
