package mail

import (
	"encoding/base64"
	"net/mail"
	"slices"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
)

const (
	noSubject     = "No Subject"
	unknownSender = "Unknown Sender"
)

func headerValue(p *gmail.MessagePart, name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func walkParts(p *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if p == nil {
		return
	}
	fn(p)
	for _, sub := range p.Parts {
		walkParts(sub, fn)
	}
}

// decodeBody accepts both padded and unpadded base64url, as Gmail emits either.
func decodeBody(data string) string {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		if b, err = base64.RawURLEncoding.DecodeString(data); err != nil {
			return ""
		}
	}
	return string(b)
}

// bodyText prefers the HTML alternative and falls back to plain text.
func bodyText(p *gmail.MessagePart) string {
	var html, plain string
	walkParts(p, func(part *gmail.MessagePart) {
		if part.Body == nil || part.Body.Data == "" || part.Filename != "" {
			return
		}
		switch part.MimeType {
		case "text/html":
			if html == "" {
				html = part.Body.Data
			}
		case "text/plain":
			if plain == "" {
				plain = part.Body.Data
			}
		}
	})
	if html != "" {
		return decodeBody(html)
	}
	return decodeBody(plain)
}

// sender splits a From header into display name and address. Headers that
// do not parse are kept verbatim as the address.
func sender(from string) (name, email string) {
	if from == "" {
		return unknownSender, ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.Trim(from, `"' `), from
	}
	if addr.Name == "" {
		return addr.Address, addr.Address
	}
	return addr.Name, addr.Address
}

func addressOnly(v string) string {
	if v == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(v); err == nil {
		return addr.Address
	}
	return v
}

func toMessage(m *gmail.Message) Message {
	p := m.Payload
	name, email := sender(headerValue(p, "From"))

	subject := headerValue(p, "Subject")
	if subject == "" {
		subject = noSubject
	}

	date := headerValue(p, "Date")
	if m.InternalDate > 0 {
		date = time.UnixMilli(m.InternalDate).UTC().Format(time.RFC3339)
	}

	labels := m.LabelIds
	if labels == nil {
		labels = []string{}
	}

	attachments := []AttachmentInfo{}
	walkParts(p, func(part *gmail.MessagePart) {
		if part.Filename == "" || part.Body == nil || part.Body.AttachmentId == "" {
			return
		}
		attachments = append(attachments, AttachmentInfo{
			ID:       part.Body.AttachmentId,
			Filename: part.Filename,
			MimeType: part.MimeType,
			Size:     part.Body.Size,
		})
	})

	return Message{
		ID:          m.Id,
		ThreadID:    m.ThreadId,
		Name:        name,
		Email:       email,
		Subject:     subject,
		Text:        bodyText(p),
		Date:        date,
		Read:        !slices.Contains(m.LabelIds, "UNREAD"),
		Labels:      labels,
		To:          headerValue(p, "To"),
		Cc:          headerValue(p, "Cc"),
		ReplyTo:     addressOnly(headerValue(p, "Reply-To")),
		Attachments: attachments,
	}
}
