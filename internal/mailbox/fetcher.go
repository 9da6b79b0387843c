package mailbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"bookings-assistant/internal/config"
)

// IncomingEmail is a message pulled from the staff mailbox, reduced to the
// fields the capture flow needs
type IncomingEmail struct {
	SenderEmail  string
	SenderName   string
	Subject      string
	Body         string
	ReceivedDate time.Time
}

// Fetcher pulls new messages from the staff mailbox
type Fetcher interface {
	FetchNewEmails(ctx context.Context) ([]IncomingEmail, error)
	Close() error
}

// GmailFetcher implements Fetcher using the Gmail API
type GmailFetcher struct {
	service   *gmail.Service
	userEmail string
	lastCheck time.Time
}

// IMAPFetcher implements Fetcher over IMAP
type IMAPFetcher struct {
	client    *client.Client
	lastCheck time.Time
}

// NewFetcher builds the configured mailbox fetcher
func NewFetcher(cfg *config.MailboxConfig) (Fetcher, error) {
	if cfg.UseIMAP {
		return NewIMAPFetcher(cfg)
	}
	return NewGmailFetcher(cfg)
}

// NewGmailFetcher creates a Gmail API fetcher
func NewGmailFetcher(cfg *config.MailboxConfig) (*GmailFetcher, error) {
	ctx := context.Background()

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}
	tokenSource := oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &GmailFetcher{
		service:   service,
		userEmail: cfg.UserEmail,
		lastCheck: time.Now().Add(-24 * time.Hour), // Start with emails from last 24 hours
	}, nil
}

// NewIMAPFetcher creates an IMAP fetcher
func NewIMAPFetcher(cfg *config.MailboxConfig) (*IMAPFetcher, error) {
	c, err := client.DialTLS(fmt.Sprintf("%s:%d", cfg.IMAPHost, cfg.IMAPPort), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IMAP server: %w", err)
	}

	if err := c.Login(cfg.IMAPUser, cfg.IMAPPassword); err != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	return &IMAPFetcher{
		client:    c,
		lastCheck: time.Now().Add(-24 * time.Hour),
	}, nil
}

// FetchNewEmails fetches messages received since the last check via the
// Gmail API
func (f *GmailFetcher) FetchNewEmails(ctx context.Context) ([]IncomingEmail, error) {
	query := fmt.Sprintf("after:%d", f.lastCheck.Unix())

	response, err := f.service.Users.Messages.List(f.userEmail).Q(query).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	var emails []IncomingEmail
	for _, msg := range response.Messages {
		full, err := f.service.Users.Messages.Get(f.userEmail, msg.Id).Format("full").Context(ctx).Do()
		if err != nil {
			logrus.Warnf("Failed to get message %s: %v", msg.Id, err)
			continue
		}

		email, err := f.parseMessage(full)
		if err != nil {
			logrus.Warnf("Failed to parse message %s: %v", msg.Id, err)
			continue
		}
		emails = append(emails, email)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

func (f *GmailFetcher) parseMessage(msg *gmail.Message) (IncomingEmail, error) {
	email := IncomingEmail{
		ReceivedDate: time.UnixMilli(msg.InternalDate).UTC(),
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			email.Subject = header.Value
		case "From":
			email.SenderEmail, email.SenderName = parseAddress(header.Value)
		}
	}

	if err := f.parseBody(msg.Payload, &email); err != nil {
		return email, err
	}
	return email, nil
}

// parseBody recursively walks the message parts looking for a plain text
// body; HTML is used only when no plain part exists
func (f *GmailFetcher) parseBody(part *gmail.MessagePart, email *IncomingEmail) error {
	if part.Body != nil && part.Body.Data != "" {
		data, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			return fmt.Errorf("failed to decode body data: %w", err)
		}

		switch part.MimeType {
		case "text/plain":
			email.Body = string(data)
		case "text/html":
			if email.Body == "" {
				email.Body = string(data)
			}
		}
	}

	for _, subPart := range part.Parts {
		if err := f.parseBody(subPart, email); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the Gmail fetcher
func (f *GmailFetcher) Close() error {
	// Gmail API service doesn't need explicit closing
	return nil
}

// FetchNewEmails fetches messages received since the last check via IMAP
func (f *IMAPFetcher) FetchNewEmails(ctx context.Context) ([]IncomingEmail, error) {
	if _, err := f.client.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = f.lastCheck

	uids, err := f.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	if len(uids) == 0 {
		f.lastCheck = time.Now()
		return []IncomingEmail{}, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- f.client.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchBody, imap.FetchUid}, messages)
	}()

	var emails []IncomingEmail
	for msg := range messages {
		email, err := f.parseMessage(msg)
		if err != nil {
			logrus.Warnf("Failed to parse IMAP message: %v", err)
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	f.lastCheck = time.Now()
	return emails, nil
}

func (f *IMAPFetcher) parseMessage(msg *imap.Message) (IncomingEmail, error) {
	email := IncomingEmail{}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		email.ReceivedDate = msg.Envelope.Date.UTC()
		if len(msg.Envelope.From) > 0 {
			email.SenderEmail = msg.Envelope.From[0].Address()
			email.SenderName = msg.Envelope.From[0].PersonalName
		}
	}

	if err := f.parseBody(msg, &email); err != nil {
		return email, err
	}
	return email, nil
}

func (f *IMAPFetcher) parseBody(msg *imap.Message, email *IncomingEmail) error {
	if msg.Body == nil {
		return nil
	}

	section := &imap.BodySectionName{}
	r := msg.GetBody(section)
	if r == nil {
		return fmt.Errorf("failed to get message body")
	}

	entity, err := message.Read(r)
	if err != nil {
		return fmt.Errorf("failed to read message: %w", err)
	}

	if mr := entity.MultipartReader(); mr != nil {
		for {
			p, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("failed to read part: %w", err)
			}

			content, err := io.ReadAll(p.Body)
			if err != nil {
				return fmt.Errorf("failed to read part body: %w", err)
			}

			contentType := p.Header.Get("Content-Type")
			if strings.Contains(contentType, "text/plain") {
				email.Body = string(content)
			} else if strings.Contains(contentType, "text/html") && email.Body == "" {
				email.Body = string(content)
			}
		}
	} else {
		content, err := io.ReadAll(entity.Body)
		if err != nil {
			return fmt.Errorf("failed to read message body: %w", err)
		}
		email.Body = string(content)
	}

	return nil
}

// Close logs out of the IMAP server
func (f *IMAPFetcher) Close() error {
	return f.client.Logout()
}

// parseAddress splits an RFC 5322 From header into address and display name
func parseAddress(header string) (addr, name string) {
	parsed, err := mail.ParseAddress(header)
	if err != nil {
		return strings.TrimSpace(header), ""
	}
	name = parsed.Name
	if decoded, err := new(mime.WordDecoder).DecodeHeader(parsed.Name); err == nil {
		name = decoded
	}
	return parsed.Address, name
}
