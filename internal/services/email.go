package services

import (
	"context"
	"fmt"
	"html"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/dinewithlocals/backend/internal/logger"
	"go.uber.org/zap"
)

// Mailer sends a single HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SESMailer sends mail through Amazon SES.
type SESMailer struct {
	client *ses.SES
	from   string
}

// NewSESMailer returns a LogMailer when SES cannot be configured, so
// callers never need a nil check.
func NewSESMailer(region, accessKey, secretKey, from string) (Mailer, error) {
	if region == "" || accessKey == "" || secretKey == "" || from == "" {
		logger.Log.Warn("SES not configured, emails will only be logged")
		return LogMailer{}, nil
	}
	sess, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return &SESMailer{client: ses.New(sess), from: from}, nil
}

func (m *SESMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(fmt.Sprintf("%s <%s>", companyName, m.from)),
		Destination: &ses.Destination{
			ToAddresses: []*string{aws.String(to)},
		},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &ses.Body{
				Html: &ses.Content{Data: aws.String(htmlBody), Charset: aws.String("UTF-8")},
			},
		},
	}
	if _, err := m.client.SendEmailWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	logger.Log.Debug("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// LogMailer only logs. Used in development and tests.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	logger.Log.Info("Email (not sent)", zap.String("to", to), zap.String("subject", subject))
	return nil
}

const companyName = "Dine with Locals"

// Common header template for all emails
const emailHeader = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; margin: 0; padding: 0;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<div style="text-align: center; margin-bottom: 30px; background-color: #f9f9f9; padding: 20px;">
			<h2 style="color: #d35400; margin: 0;">Dine with Locals</h2>
		</div>
`

// Common footer template for all emails
const emailFooter = `
		<div style="text-align: center; margin-top: 20px; font-size: 12px; color: #666; border-top: 1px solid #eee; padding-top: 20px;">
			<p>This is an automated message, please do not reply to this email.</p>
		</div>
	</div>
</body>
</html>
`

// PasswordResetEmail renders the OTP email.
func PasswordResetEmail(name, otp string) (subject, body string) {
	subject = "Your password reset code - " + companyName
	body = fmt.Sprintf(emailHeader+`
		<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
			<h1 style="color: #2c3e50; text-align: center;">Password Reset</h1>
			<p>Hello %s,</p>
			<p>Use this code to reset your password. It expires in 15 minutes.</p>
			<p style="font-size: 28px; letter-spacing: 6px; text-align: center;"><strong>%s</strong></p>
			<p>If you did not ask for a reset you can ignore this email.</p>
		</div>`+emailFooter,
		html.EscapeString(name), otp)
	return subject, body
}

// NotificationEmail renders a generic notification with a link to the app.
func NotificationEmail(frontendURL, title, message string) (subject, body string) {
	subject = title + " - " + companyName
	body = fmt.Sprintf(emailHeader+`
		<div style="background-color: #f9f9f9; padding: 20px; border-radius: 5px;">
			<h1 style="color: #2c3e50; text-align: center;">%s</h1>
			<p>%s</p>
			<div style="text-align: center; margin: 30px 0;">
				<a href="%s" style="background-color: #d35400; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px;">Open Dine with Locals</a>
			</div>
		</div>`+emailFooter,
		html.EscapeString(title), html.EscapeString(message), html.EscapeString(frontendURL))
	return subject, body
}
