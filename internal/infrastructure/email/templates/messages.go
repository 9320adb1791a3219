package templates

import (
	"fmt"
	"strings"
)

// VerificationCodeProps fills the code email.
type VerificationCodeProps struct {
	BrandName      string
	Code           string
	ExpiresMinutes int
}

// MagicLinkProps fills the magic link email.
type MagicLinkProps struct {
	BrandName      string
	LinkURL        string
	ExpiresMinutes int
}

// GetVerificationCodeEmail returns the subject and HTML body of the code email.
func GetVerificationCodeEmail(props VerificationCodeProps) (string, string) {
	subject := fmt.Sprintf("Your verification code: %s", props.Code)
	content := strings.Join([]string{
		GetParagraph("Enter this code to unlock the rest of today's drills:"),
		GetCodeBlock(props.Code),
		GetParagraph(fmt.Sprintf("The code expires in %d minutes and works once.", props.ExpiresMinutes)),
	}, "\n")

	return subject, GetEmailLayout(EmailLayoutProps{
		Preheader: "Your verification code",
		Content:   content,
		BrandName: props.BrandName,
	})
}

// GetMagicLinkEmail returns the subject and HTML body of the magic link email.
func GetMagicLinkEmail(props MagicLinkProps) (string, string) {
	subject := "Confirm your email"
	content := strings.Join([]string{
		GetParagraph("Confirm your address with one click:"),
		GetButton(ButtonProps{Text: "Confirm email", URL: props.LinkURL}),
		GetParagraph(fmt.Sprintf("The link expires in %d minutes and works once.", props.ExpiresMinutes)),
	}, "\n")

	return subject, GetEmailLayout(EmailLayoutProps{
		Preheader: "Confirm your email address",
		Content:   content,
		BrandName: props.BrandName,
	})
}
