package mail

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
)

const base64LineLen = 76

type envelope struct {
	To         string
	Cc         string
	Subject    string
	InReplyTo  string
	References string
}

// compose renders an RFC 5322 message with an HTML body and the given
// attachments as multipart/mixed.
func compose(env envelope, html string, attachments []Attachment) ([]byte, error) {
	to, err := addressList(env.To)
	if err != nil {
		return nil, fmt.Errorf("%w: to: %v", ErrInvalidDraft, err)
	}
	if to == "" {
		return nil, fmt.Errorf("%w: no recipient", ErrInvalidDraft)
	}
	cc, err := addressList(env.Cc)
	if err != nil {
		return nil, fmt.Errorf("%w: cc: %v", ErrInvalidDraft, err)
	}
	for _, v := range []string{env.Subject, env.InReplyTo, env.References} {
		if strings.ContainsAny(v, "\r\n") {
			return nil, fmt.Errorf("%w: header contains a line break", ErrInvalidDraft)
		}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	header("To", to)
	header("Cc", cc)
	header("Subject", mime.BEncoding.Encode("UTF-8", env.Subject))
	header("In-Reply-To", env.InReplyTo)
	header("References", env.References)
	header("MIME-Version", "1.0")
	header("Content-Type", mime.FormatMediaType("multipart/mixed", map[string]string{"boundary": mw.Boundary()}))
	buf.WriteString("\r\n")

	body, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, fmt.Errorf("creating body part: %w", err)
	}
	if err := writeBase64(body, []byte(html)); err != nil {
		return nil, err
	}

	for _, a := range attachments {
		data, err := base64.StdEncoding.DecodeString(a.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: attachment %q is not base64", ErrInvalidDraft, a.Name)
		}
		if strings.ContainsAny(a.Name, "\r\n") {
			return nil, fmt.Errorf("%w: attachment name contains a line break", ErrInvalidDraft)
		}

		ctype := "application/octet-stream"
		if mt, params, err := mime.ParseMediaType(a.Type); err == nil {
			ctype = mime.FormatMediaType(mt, params)
		}
		part, err := mw.CreatePart(textproto.MIMEHeader{
			"Content-Type":              {ctype},
			"Content-Disposition":       {mime.FormatMediaType("attachment", map[string]string{"filename": a.Name})},
			"Content-Transfer-Encoding": {"base64"},
		})
		if err != nil {
			return nil, fmt.Errorf("creating attachment part: %w", err)
		}
		if err := writeBase64(part, data); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

// addressList normalizes a comma separated recipient list.
func addressList(v string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", nil
	}
	addrs, err := mail.ParseAddressList(v)
	if err != nil {
		return "", err
	}
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return strings.Join(out, ", "), nil
}

func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 0 {
		n := min(len(enc), base64LineLen)
		if _, err := io.WriteString(w, enc[:n]+"\r\n"); err != nil {
			return fmt.Errorf("writing part: %w", err)
		}
		enc = enc[n:]
	}
	return nil
}
