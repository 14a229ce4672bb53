package source

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/mikey/llm-mail-classifier/internal/core"
	"github.com/mikey/llm-mail-classifier/internal/utils"
)

// SMTPSource accepts messages over SMTP and hands them to the pipeline for
// classification. It is a pure intake: the session always succeeds once the
// message is parsed, and classification happens asynchronously.
type SMTPSource struct {
	pipeline      *core.Pipeline
	logger        *zap.Logger
	listenAddr    string
	maxBodySize   int
	textProcessor *utils.TextProcessor
	server        *smtp.Server
}

// NewSMTPSource creates a new SMTP message source
func NewSMTPSource(
	pipeline *core.Pipeline,
	logger *zap.Logger,
	listenAddr string,
	maxBodySize int,
	textProcessor *utils.TextProcessor,
) *SMTPSource {
	return &SMTPSource{
		pipeline:      pipeline,
		logger:        logger,
		listenAddr:    listenAddr,
		maxBodySize:   maxBodySize,
		textProcessor: textProcessor,
	}
}

// Start starts the SMTP intake server
func (s *SMTPSource) Start() error {
	s.server = smtp.NewServer(&smtpBackend{source: s})

	s.server.Addr = s.listenAddr
	s.server.Domain = "localhost"
	s.server.ReadTimeout = 30 * time.Second
	s.server.WriteTimeout = 30 * time.Second
	s.server.MaxMessageBytes = 30 * 1024 * 1024 // 30MB
	s.server.MaxRecipients = 50
	s.server.AllowInsecureAuth = true

	s.logger.Info("SMTP intake starting", zap.String("address", s.listenAddr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				s.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the SMTP intake server
func (s *SMTPSource) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	source *SMTPSource
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{source: b.source}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	source *SMTPSource
	sender string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
}

// AuthPlain handles PLAIN authentication (not needed for intake)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt accepts any recipient; routing is not the intake's concern
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	return nil
}

// Data parses the message and submits it to the pipeline
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.source.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.source.logger.Error("Failed to parse email message", zap.Error(err))
		return err
	}

	textContent, err := extractTextFromMessage(msg)
	if err != nil {
		s.source.logger.Error("Failed to extract text content", zap.Error(err))
		return err
	}

	from := msg.Header.Get("From")
	if from == "" {
		from = s.sender
	}

	message := &core.Message{
		ID:          messageIdentity(msg, rawData),
		From:        from,
		Subject:     msg.Header.Get("Subject"),
		BodyExcerpt: s.source.textProcessor.ProcessText(textContent, s.source.maxBodySize),
		ReceivedAt:  receivedAt(msg),
	}

	s.source.pipeline.Ingest(message)

	s.source.logger.Debug("Accepted message for classification",
		zap.String("message_id", message.ID),
		zap.String("from", message.From))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

// messageIdentity derives a stable identity for deduplication. The Message-ID
// header is preferred; messages without one fall back to a content hash so a
// redelivered copy still maps to the same identity.
func messageIdentity(msg *mail.Message, rawData []byte) string {
	if id := strings.Trim(msg.Header.Get("Message-ID"), "<> \t"); id != "" {
		return id
	}
	sum := sha256.Sum256(rawData)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// receivedAt uses the Date header when it parses, otherwise the arrival time.
func receivedAt(msg *mail.Message) time.Time {
	if t, err := msg.Header.Date(); err == nil {
		return t
	}
	return time.Now()
}
