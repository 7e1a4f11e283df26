package mailer

import (
	"fmt"
	"html"
	"net/url"

	"gopkg.in/gomail.v2"
)

type IEmailService interface {
	SendMentionNotice(toEmail, actorName, projectID, excerpt string) error
}

type emailService struct {
	dialer      *gomail.Dialer
	from        string
	frontendURL string // used to build deep links
}

func NewEmailService(host string, port int, username, password, senderEmail, senderName, frontendURL string) IEmailService {
	m := gomail.NewMessage()
	return &emailService{
		dialer:      gomail.NewDialer(host, port, username, password),
		from:        m.FormatAddress(senderEmail, senderName),
		frontendURL: frontendURL,
	}
}

func (s *emailService) projectLink(projectID string) string {
	return fmt.Sprintf("%s/projects/%s", s.frontendURL, url.PathEscape(projectID))
}

func (s *emailService) SendMentionNotice(toEmail, actorName, projectID, excerpt string) error {
	link := s.projectLink(projectID)

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", fmt.Sprintf("%s mentioned you in a comment", actorName))

	m.SetBody("text/plain", fmt.Sprintf("%s wrote:\n\n%s\n\nOpen the manuscript: %s\n", actorName, excerpt, link))
	m.AddAlternative("text/html", fmt.Sprintf(`
		<div style="font-family: Georgia, serif; padding: 20px; color: #333;">
			<p><strong>%s</strong> mentioned you:</p>
			<blockquote style="border-left: 3px solid #4363d8; margin: 0; padding-left: 12px;">%s</blockquote>
			<p><a href="%s">Open the manuscript</a></p>
		</div>
	`, html.EscapeString(actorName), html.EscapeString(excerpt), html.EscapeString(link)))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mention notice to %s: %w", toEmail, err)
	}
	return nil
}
