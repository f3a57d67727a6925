package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnonymizeEmail(t *testing.T) {
	assert.Equal(t, "", AnonymizeEmail(""))

	a := AnonymizeEmail("ada@example.com")
	assert.True(t, strings.HasPrefix(a, "user:"))
	assert.Len(t, a, len("user:")+16)
	assert.Equal(t, a, AnonymizeEmail("ada@example.com"))
	assert.NotEqual(t, a, AnonymizeEmail("grace@example.com"))
}

func TestErr_NilIsOmitted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("ok", Err(nil))
	assert.NotContains(t, buf.String(), KeyError)

	buf.Reset()
	logger.Info("failed", Err(errors.New("boom")))
	assert.Contains(t, buf.String(), "error=boom")
}

func TestUserHash_NeverLogsRawEmail(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	logger.Info("signed in", UserHash("ada@example.com"))
	assert.NotContains(t, buf.String(), "ada@example.com")
	assert.Contains(t, buf.String(), KeyUserHash+"=user:")
}
