package mail

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readParts parses a composed message and returns its header and decoded parts.
func readParts(t *testing.T, raw []byte) (mail.Header, []*multipart.Part, [][]byte) {
	t.Helper()
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	mt, params, err := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	require.NoError(t, err)
	require.Equal(t, "multipart/mixed", mt)

	var parts []*multipart.Part
	var bodies [][]byte
	mr := multipart.NewReader(msg.Body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		enc, err := io.ReadAll(p)
		require.NoError(t, err)
		dec, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(enc), "\r\n", ""))
		require.NoError(t, err)
		parts = append(parts, p)
		bodies = append(bodies, dec)
	}
	return msg.Header, parts, bodies
}

func TestCompose_BodyAndAttachment(t *testing.T) {
	raw, err := compose(envelope{
		To:      "Ana <ana@example.com>, bob@example.com",
		Cc:      "carol@example.com",
		Subject: "Relatório mensal",
	}, "<p>hello</p>", []Attachment{{
		Name: "report.pdf", Type: "application/pdf",
		Content: base64.StdEncoding.EncodeToString([]byte("%PDF-1.7")),
	}})
	require.NoError(t, err)

	header, parts, bodies := readParts(t, raw)
	assert.Equal(t, `"Ana" <ana@example.com>, <bob@example.com>`, header.Get("To"))
	assert.Equal(t, "<carol@example.com>", header.Get("Cc"))
	assert.Empty(t, header.Get("In-Reply-To"))

	subject, err := new(mime.WordDecoder).DecodeHeader(header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "Relatório mensal", subject)

	require.Len(t, parts, 2)
	assert.Equal(t, "text/html; charset=UTF-8", parts[0].Header.Get("Content-Type"))
	assert.Equal(t, "<p>hello</p>", string(bodies[0]))
	assert.Equal(t, "application/pdf", parts[1].Header.Get("Content-Type"))
	assert.Equal(t, "report.pdf", parts[1].FileName())
	assert.Equal(t, "%PDF-1.7", string(bodies[1]))
}

func TestCompose_ReplyHeaders(t *testing.T) {
	raw, err := compose(envelope{
		To:         "ana@example.com",
		Subject:    "Re: lunch",
		InReplyTo:  "<m2@example.com>",
		References: "<m1@example.com> <m2@example.com>",
	}, "ok", nil)
	require.NoError(t, err)

	header, parts, _ := readParts(t, raw)
	assert.Equal(t, "Re: lunch", header.Get("Subject"))
	assert.Equal(t, "<m2@example.com>", header.Get("In-Reply-To"))
	assert.Equal(t, "<m1@example.com> <m2@example.com>", header.Get("References"))
	assert.Len(t, parts, 1)
}

func TestCompose_UnknownTypeFallsBackToOctetStream(t *testing.T) {
	raw, err := compose(envelope{To: "ana@example.com"}, "x", []Attachment{{
		Name: "blob", Type: "not a media type",
		Content: base64.StdEncoding.EncodeToString([]byte{0, 1, 2}),
	}})
	require.NoError(t, err)

	_, parts, bodies := readParts(t, raw)
	require.Len(t, parts, 2)
	assert.Equal(t, "application/octet-stream", parts[1].Header.Get("Content-Type"))
	assert.Equal(t, []byte{0, 1, 2}, bodies[1])
}

func TestCompose_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  envelope
		atts []Attachment
	}{
		{name: "no recipient", env: envelope{To: " "}},
		{name: "bad address", env: envelope{To: "not an address"}},
		{name: "bad cc", env: envelope{To: "ana@example.com", Cc: "@@"}},
		{name: "header injection", env: envelope{To: "ana@example.com", Subject: "hi\r\nBcc: eve@example.com"}},
		{name: "attachment not base64", env: envelope{To: "ana@example.com"},
			atts: []Attachment{{Name: "a.txt", Content: "***"}}},
		{name: "attachment name injection", env: envelope{To: "ana@example.com"},
			atts: []Attachment{{Name: "a\n.txt", Content: "YQ=="}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compose(tt.env, "body", tt.atts)
			assert.ErrorIs(t, err, ErrInvalidDraft)
		})
	}
}
