package ports

import "context"

const (
	TemplateEmailVerification = "email_verification"
	TemplatePasswordReset     = "password_reset"
	TemplateWelcome           = "welcome"
)

type EmailSender interface {
	Send(ctx context.Context, address, template string, data map[string]any) error
}
