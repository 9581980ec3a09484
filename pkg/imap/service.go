// Package imap implements a mailbox provider over IMAP. Attachments come
// inline with the message body, so fetched raw messages already carry their
// attachment bytes.
package imap

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	emaildomain "mailmind/internal/email/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/charset"
	"github.com/jhillyerd/enmime"
)

func init() {
	// non-UTF8 messages show up in the wild constantly
	imap.CharsetReader = charset.Reader
}

// Provider reads one IMAP mailbox. Each operation dials a fresh connection;
// IMAP servers drop idle ones too aggressively to make pooling worthwhile
// at this scale.
type Provider struct {
	addr     string
	username string
	password string
	mailbox  string
	pageSize int
}

func NewProvider(addr, username, password, mailbox string, pageSize int) *Provider {
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Provider{
		addr:     addr,
		username: username,
		password: password,
		mailbox:  mailbox,
		pageSize: pageSize,
	}
}

func (p *Provider) connect() (*client.Client, error) {
	c, err := client.DialTLS(p.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w: %v", p.addr, emaildomain.ErrTransient, err)
	}
	if err := c.Login(p.username, p.password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login %s: %w: %v", p.username, emaildomain.ErrAuthExpired, err)
	}
	if _, err := c.Select(p.mailbox, true); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", p.mailbox, err)
	}
	return c, nil
}

// ListRefs implements domain.MailboxProvider. The page token is a numeric
// offset into the UID list of a fresh search; UIDs are stable within a
// mailbox so re-searching between pages is safe.
func (p *Provider) ListRefs(ctx context.Context, window emaildomain.SyncWindow, pageToken string) (*emaildomain.RefPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	criteria := imap.NewSearchCriteria()
	if window.Mode == emaildomain.WindowRecent && window.Days > 0 {
		criteria.Since = time.Now().AddDate(0, 0, -window.Days)
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w: %v", emaildomain.ErrTransient, err)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	offset := 0
	if pageToken != "" {
		if offset, err = strconv.Atoi(pageToken); err != nil {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
	}
	if offset >= len(uids) {
		return &emaildomain.RefPage{}, nil
	}

	end := offset + p.pageSize
	if end > len(uids) {
		end = len(uids)
	}

	page := &emaildomain.RefPage{}
	for _, uid := range uids[offset:end] {
		page.Refs = append(page.Refs, emaildomain.MessageRef{RemoteID: strconv.FormatUint(uint64(uid), 10)})
	}
	if end < len(uids) {
		page.NextToken = strconv.Itoa(end)
	}
	return page, nil
}

// FetchMessage implements domain.MailboxProvider
func (p *Provider) FetchMessage(ctx context.Context, ref emaildomain.MessageRef) (*emaildomain.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	uid, err := strconv.ParseUint(ref.RemoteID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: bad uid %q", emaildomain.ErrMalformedMessage, ref.RemoteID)
	}

	c, err := p.connect()
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	seqset := new(imap.SeqSet)
	seqset.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchEnvelope, imap.FetchFlags, imap.FetchInternalDate, imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	msg := <-messages
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch uid %d: %w: %v", uid, emaildomain.ErrTransient, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("%w: uid %d not found", emaildomain.ErrMalformedMessage, uid)
	}

	return p.convertMessage(ref.RemoteID, msg, section)
}

// FetchAttachment implements domain.MailboxProvider. IMAP delivers
// attachments inline with the message, so this refetches and picks the part
// out by filename.
func (p *Provider) FetchAttachment(ctx context.Context, messageRemoteID, attachmentRemoteID string) ([]byte, error) {
	raw, err := p.FetchMessage(ctx, emaildomain.MessageRef{RemoteID: messageRemoteID})
	if err != nil {
		return nil, err
	}
	for _, att := range raw.Attachments {
		if att.RemoteID == attachmentRemoteID {
			return att.Data, nil
		}
	}
	return nil, fmt.Errorf("attachment %q not found in message %s", attachmentRemoteID, messageRemoteID)
}

func (p *Provider) convertMessage(remoteID string, msg *imap.Message, section *imap.BodySectionName) (*emaildomain.RawMessage, error) {
	body := msg.GetBody(section)
	if body == nil {
		return nil, fmt.Errorf("%w: no body section", emaildomain.ErrMalformedMessage)
	}

	env, err := enmime.ReadEnvelope(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse envelope: %v", emaildomain.ErrMalformedMessage, err)
	}

	raw := &emaildomain.RawMessage{
		RemoteID:   remoteID,
		Subject:    env.GetHeader("Subject"),
		BodyText:   env.Text,
		BodyHTML:   env.HTML,
		Labels:     []string{p.mailbox},
		IsRead:     hasFlag(msg.Flags, imap.SeenFlag),
		ReceivedAt: msg.InternalDate,
	}

	if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
		raw.Sender = addrs[0].Address
		raw.SenderName = addrs[0].Name
	} else {
		raw.Sender = env.GetHeader("From")
	}
	if addrs, err := env.AddressList("To"); err == nil {
		for _, a := range addrs {
			raw.Recipients = append(raw.Recipients, a.Address)
		}
	}

	for _, att := range env.Attachments {
		raw.Attachments = append(raw.Attachments, emaildomain.RawAttachment{
			RemoteID:    att.FileName,
			Filename:    att.FileName,
			ContentType: att.ContentType,
			Size:        int64(len(att.Content)),
			Data:        att.Content,
		})
	}

	return raw, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}
