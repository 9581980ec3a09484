package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strconv"
	"strings"
	"time"

	emaildomain "mailmind/internal/email/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// TokenUpdateFunc is a callback invoked when the oauth token is refreshed
type TokenUpdateFunc func(token *oauth2.Token) error

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// Provider reads a Gmail mailbox. It implements both the mailbox provider
// and the change-lister capability (history-based incremental sync).
type Provider struct {
	srv      *gmail.Service
	pageSize int64
}

// NewProvider creates a Gmail provider for one user's mailbox. The token
// source refreshes transparently; onTokenRefresh is called so new tokens
// can be persisted.
func NewProvider(ctx context.Context, clientID, clientSecret string, token *oauth2.Token, pageSize int, onTokenRefresh TokenUpdateFunc) (*Provider, error) {
	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
	}

	// Wrap token source to detect refreshes
	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(ctx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	client := oauth2.NewClient(ctx, wrappedSource)
	srv, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %v", err)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	return &Provider{srv: srv, pageSize: int64(pageSize)}, nil
}

// ListRefs implements domain.MailboxProvider
func (p *Provider) ListRefs(ctx context.Context, window emaildomain.SyncWindow, pageToken string) (*emaildomain.RefPage, error) {
	call := p.srv.Users.Messages.List("me").MaxResults(p.pageSize).Context(ctx)
	if window.Mode == emaildomain.WindowRecent && window.Days > 0 {
		call = call.Q(fmt.Sprintf("newer_than:%dd", window.Days))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, classifyError(err)
	}

	page := &emaildomain.RefPage{NextToken: resp.NextPageToken}
	for _, m := range resp.Messages {
		page.Refs = append(page.Refs, emaildomain.MessageRef{RemoteID: m.Id})
	}
	return page, nil
}

// FetchMessage implements domain.MailboxProvider
func (p *Provider) FetchMessage(ctx context.Context, ref emaildomain.MessageRef) (*emaildomain.RawMessage, error) {
	msg, err := p.srv.Users.Messages.Get("me", ref.RemoteID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}
	return convertMessage(msg)
}

// FetchAttachment implements domain.MailboxProvider
func (p *Provider) FetchAttachment(ctx context.Context, messageRemoteID, attachmentRemoteID string) ([]byte, error) {
	part, err := p.srv.Users.Messages.Attachments.Get("me", messageRemoteID, attachmentRemoteID).Context(ctx).Do()
	if err != nil {
		return nil, classifyError(err)
	}
	data, err := base64.URLEncoding.DecodeString(part.Data)
	if err != nil {
		return nil, fmt.Errorf("decode attachment data: %w", err)
	}
	return data, nil
}

// ListChangedRefs implements domain.ChangeLister. sinceToken is a Gmail
// history ID; the returned token is the history ID to store for next time.
func (p *Provider) ListChangedRefs(ctx context.Context, sinceToken, pageToken string) (*emaildomain.RefPage, string, error) {
	startID, err := strconv.ParseUint(sinceToken, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid change token %q: %v", sinceToken, err)
	}

	call := p.srv.Users.History.List("me").StartHistoryId(startID).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", classifyError(err)
	}

	seen := make(map[string]bool)
	page := &emaildomain.RefPage{NextToken: resp.NextPageToken}
	collect := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			page.Refs = append(page.Refs, emaildomain.MessageRef{RemoteID: id})
		}
	}
	for _, h := range resp.History {
		for _, added := range h.MessagesAdded {
			if added.Message != nil {
				collect(added.Message.Id)
			}
		}
		for _, la := range h.LabelsAdded {
			if la.Message != nil {
				collect(la.Message.Id)
			}
		}
		for _, lr := range h.LabelsRemoved {
			if lr.Message != nil {
				collect(lr.Message.Id)
			}
		}
	}

	return page, strconv.FormatUint(resp.HistoryId, 10), nil
}

// LatestChangeToken implements domain.ChangeLister
func (p *Provider) LatestChangeToken(ctx context.Context) (string, error) {
	profile, err := p.srv.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return "", classifyError(err)
	}
	return strconv.FormatUint(profile.HistoryId, 10), nil
}

func classifyError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("gmail: %w: %v", emaildomain.ErrTransient, err)
	}
	switch apiErr.Code {
	case 401, 403:
		return fmt.Errorf("gmail: %w: %v", emaildomain.ErrAuthExpired, apiErr.Message)
	case 429:
		for _, h := range apiErr.Header.Values("Retry-After") {
			if secs, err := strconv.Atoi(h); err == nil {
				return &emaildomain.RateLimitedError{RetryAfter: time.Duration(secs) * time.Second}
			}
		}
		return &emaildomain.RateLimitedError{}
	}
	if apiErr.Code >= 500 {
		return fmt.Errorf("gmail error %d: %w", apiErr.Code, emaildomain.ErrTransient)
	}
	return err
}

func convertMessage(msg *gmail.Message) (*emaildomain.RawMessage, error) {
	// drafts and some minimal formats come back without a payload
	if msg.Payload == nil {
		return nil, fmt.Errorf("message %s has no payload: %w", msg.Id, emaildomain.ErrMalformedMessage)
	}

	from := getHeader(msg.Payload.Headers, "From")
	sender, senderName := from, ""
	if addr, err := mail.ParseAddress(from); err == nil {
		sender = addr.Address
		senderName = addr.Name
	} else if idx := strings.Index(from, "<"); idx > 0 {
		senderName = strings.TrimSpace(from[:idx])
		sender = strings.Trim(strings.TrimSpace(from[idx:]), "<>")
	}

	var recipients []string
	for _, part := range strings.Split(getHeader(msg.Payload.Headers, "To"), ",") {
		if part = strings.TrimSpace(part); part != "" {
			recipients = append(recipients, part)
		}
	}

	plainBody, htmlBody := getMessageBodies(msg.Payload)

	raw := &emaildomain.RawMessage{
		RemoteID:   msg.Id,
		ThreadID:   msg.ThreadId,
		Sender:     sender,
		SenderName: senderName,
		Recipients: recipients,
		Subject:    getHeader(msg.Payload.Headers, "Subject"),
		Snippet:    msg.Snippet,
		BodyText:   plainBody,
		BodyHTML:   htmlBody,
		Labels:     msg.LabelIds,
		IsRead:     !hasLabel(msg.LabelIds, "UNREAD"),
		ReceivedAt: time.Unix(msg.InternalDate/1000, 0),
	}

	raw.Attachments = getAttachments(msg.Payload)
	return raw, nil
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if header.Name == name {
			return header.Value
		}
	}
	return ""
}

func getMessageBodies(payload *gmail.MessagePart) (plain, html string) {
	// The payload itself may be the body
	if payload.Body != nil && payload.Body.Data != "" {
		if data, err := base64.URLEncoding.DecodeString(payload.Body.Data); err == nil {
			if payload.MimeType == "text/html" {
				return "", string(data)
			}
			return string(data), ""
		}
	}

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
					switch part.MimeType {
					case "text/html":
						html = string(data)
					case "text/plain":
						plain = string(data)
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}
	findBody(payload.Parts)
	return plain, html
}

func getAttachments(payload *gmail.MessagePart) []emaildomain.RawAttachment {
	var attachments []emaildomain.RawAttachment

	var findAttachments func(parts []*gmail.MessagePart)
	findAttachments = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
				attachments = append(attachments, emaildomain.RawAttachment{
					RemoteID:    part.Body.AttachmentId,
					Filename:    part.Filename,
					ContentType: part.MimeType,
					Size:        part.Body.Size,
				})
			}
			if len(part.Parts) > 0 {
				findAttachments(part.Parts)
			}
		}
	}

	findAttachments(payload.Parts)
	return attachments
}

func hasLabel(labels []string, labelID string) bool {
	for _, label := range labels {
		if label == labelID {
			return true
		}
	}
	return false
}
