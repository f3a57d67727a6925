package mail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/mailmind/mailmind/internal/logging"
)

const (
	me               = "me"
	fetchConcurrency = 4
)

// Service proxies mailbox operations to Gmail on behalf of a signed-in user.
type Service struct {
	oauth    *oauth2.Config
	store    CredentialStore
	pageSize int64
	apiOpts  []option.ClientOption
}

func NewService(oauth *oauth2.Config, store CredentialStore, pageSize int) *Service {
	return &Service{oauth: oauth, store: store, pageSize: int64(pageSize)}
}

func (s *Service) users(ctx context.Context, userID uuid.UUID) (*gmail.UsersService, error) {
	tok, err := s.store.Load(ctx, userID)
	if err != nil {
		return nil, err
	}

	src := &savingSource{
		base:   s.oauth.TokenSource(ctx, tok),
		last:   tok.AccessToken,
		save:   func(t *oauth2.Token) error { return s.store.Save(context.WithoutCancel(ctx), userID, t) },
		userID: userID,
	}
	opts := append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, src))}, s.apiOpts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail client: %w", err)
	}
	return svc.Users, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, category, pageToken string) (*Page, error) {
	users, err := s.users(ctx, userID)
	if err != nil {
		return nil, err
	}

	call := users.Messages.List(me).Q(queryFor(category)).MaxResults(s.pageSize).Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Do()
	if err != nil {
		return nil, classify("listing messages", err)
	}

	msgs := make([]Message, len(res.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, ref := range res.Messages {
		g.Go(func() error {
			full, err := users.Messages.Get(me, ref.Id).Format("full").Context(gctx).Do()
			if err != nil {
				return classify("fetching message", err)
			}
			msgs[i] = toMessage(full)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Page{Messages: msgs, NextPageToken: res.NextPageToken}, nil
}

func (s *Service) Send(ctx context.Context, userID uuid.UUID, d Draft) (*Sent, error) {
	raw, err := compose(envelope{To: d.To, Cc: d.Cc, Subject: d.Subject}, d.Content, d.Attachments)
	if err != nil {
		return nil, err
	}
	users, err := s.users(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.send(ctx, users, &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)})
}

// Reply answers the last message of a thread, addressed to its Reply-To or
// sender, and keeps the conversation threaded.
func (s *Service) Reply(ctx context.Context, userID uuid.UUID, threadID string, r Reply) (*Sent, error) {
	users, err := s.users(ctx, userID)
	if err != nil {
		return nil, err
	}

	thread, err := users.Threads.Get(me, threadID).
		Format("metadata").
		MetadataHeaders("Subject", "From", "Reply-To", "Message-ID", "References").
		Context(ctx).Do()
	if err != nil {
		return nil, classify("loading thread", err)
	}
	if len(thread.Messages) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}
	last := thread.Messages[len(thread.Messages)-1].Payload

	to := headerValue(last, "Reply-To")
	if to == "" {
		to = headerValue(last, "From")
	}
	subject := headerValue(last, "Subject")
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	msgID := headerValue(last, "Message-ID")

	raw, err := compose(envelope{
		To:         to,
		Subject:    subject,
		InReplyTo:  msgID,
		References: strings.TrimSpace(headerValue(last, "References") + " " + msgID),
	}, r.Content, r.Attachments)
	if err != nil {
		return nil, err
	}

	return s.send(ctx, users, &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: threadID,
	})
}

// Attachment returns the attachment body as Gmail's base64url string.
func (s *Service) Attachment(ctx context.Context, userID uuid.UUID, messageID, attachmentID string) (string, error) {
	users, err := s.users(ctx, userID)
	if err != nil {
		return "", err
	}
	att, err := users.Messages.Attachments.Get(me, messageID, attachmentID).Context(ctx).Do()
	if err != nil {
		return "", classify("fetching attachment", err)
	}
	if att.Data == "" {
		return "", fmt.Errorf("attachment %s: %w", attachmentID, ErrNotFound)
	}
	return att.Data, nil
}

func (s *Service) send(ctx context.Context, users *gmail.UsersService, m *gmail.Message) (*Sent, error) {
	out, err := users.Messages.Send(me, m).Context(ctx).Do()
	if err != nil {
		return nil, classify("sending message", err)
	}
	return &Sent{ID: out.Id, ThreadID: out.ThreadId}, nil
}

// savingSource persists every access token the base source refreshes, so the
// next request starts from the new token instead of refreshing again.
type savingSource struct {
	base   oauth2.TokenSource
	save   func(*oauth2.Token) error
	userID uuid.UUID

	mu   sync.Mutex
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.save(tok); err != nil {
			slog.Warn("mail: saving refreshed token", logging.UserID(s.userID.String()), logging.Err(err))
		}
	}
	return tok, nil
}
