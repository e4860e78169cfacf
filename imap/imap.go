// Package imap appends exported messages to a folder on an IMAP server.
package imap

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/dhcgn/mbox-search/mbox"
	"github.com/dhcgn/mbox-search/model"
)

var ErrEmptyMessage = errors.New("message has no content")

type Options struct {
	Host               string
	Port               int
	Username           string
	Password           string
	UseTLS             bool
	InsecureSkipVerify bool
	TargetFolder       string
}

// Uploader appends messages to the target folder. It connects on the first
// Export and must be closed afterwards.
type Uploader struct {
	opts    Options
	logger  *slog.Logger
	client  *imapclient.Client
	cleanup func()
}

func NewUploader(opts Options, logger *slog.Logger) (*Uploader, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{opts: opts, logger: logger}, nil
}

// Export appends msg without its mbox delimiter line. The internal date of
// the appended message is the record's Date when it has one.
func (u *Uploader) Export(ctx context.Context, msg model.RawMessage) error {
	content := toCRLF(mbox.Content(msg.Raw))
	if len(bytes.TrimSpace(content)) == 0 {
		return ErrEmptyMessage
	}

	if u.client == nil {
		client, cleanup, err := u.dial(ctx)
		if err != nil {
			return err
		}
		u.client, u.cleanup = client, cleanup
	}

	if err := u.appendMessage(msg.Record, content); err != nil {
		return err
	}
	u.logger.Debug("uploaded message", "offset", msg.Record.Offset, "target", u.targetFolder(), "bytes", len(content))
	return nil
}

// Close logs out and closes the connection, if one was opened.
func (u *Uploader) Close() error {
	if u.cleanup != nil {
		u.cleanup()
		u.cleanup = nil
		u.client = nil
	}
	return nil
}

func (u *Uploader) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(u.opts.Host, strconv.Itoa(u.opts.Port))
	options := &imapclient.Options{}

	var (
		client *imapclient.Client
		err    error
	)
	if u.opts.UseTLS {
		options.TLSConfig = &tls.Config{
			ServerName:         u.opts.Host,
			InsecureSkipVerify: u.opts.InsecureSkipVerify,
		}
		client, err = imapclient.DialTLS(address, options)
	} else {
		client, err = imapclient.DialInsecure(address, options)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(u.opts.Username, u.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if err := u.ensureMailbox(client); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	u.logger.Debug("imap connection established", "address", address, "user", u.opts.Username, "target", u.targetFolder(), "tls", u.opts.UseTLS)

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				u.logger.Warn("imap logout failed", "err", err)
			}
		}
		if err := client.Close(); err != nil {
			u.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}

func (u *Uploader) appendMessage(rec model.Record, content []byte) error {
	var opts *imapv2.AppendOptions
	if rec.HasDate() {
		opts = &imapv2.AppendOptions{Time: rec.Date}
	}

	cmd := u.client.Append(u.targetFolder(), int64(len(content)), opts)

	remaining := content
	for len(remaining) > 0 {
		n, err := cmd.Write(remaining)
		if err != nil {
			_ = cmd.Close()
			return fmt.Errorf("append write: %w", err)
		}
		if n == 0 {
			_ = cmd.Close()
			return fmt.Errorf("append write: wrote 0 bytes")
		}
		remaining = remaining[n:]
	}

	if err := cmd.Close(); err != nil {
		return fmt.Errorf("append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("append wait: %w", err)
	}
	return nil
}

func (u *Uploader) targetFolder() string {
	if u.opts.TargetFolder == "" {
		return "INBOX"
	}
	return u.opts.TargetFolder
}

func (u *Uploader) ensureMailbox(client *imapclient.Client) error {
	target := u.targetFolder()
	if err := client.Create(target, nil).Wait(); err != nil {
		var respErr *imapv2.Error
		if errors.As(err, &respErr) && respErr.Code == imapv2.ResponseCodeAlreadyExists {
			u.logger.Debug("imap mailbox already exists", "mailbox", target)
			return nil
		}
		return fmt.Errorf("ensure mailbox %s: %w", target, err)
	}

	u.logger.Info("imap mailbox created", "mailbox", target)
	return nil
}

// toCRLF converts bare LF line endings to CRLF as IMAP literals require.
func toCRLF(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b) + bytes.Count(b, []byte("\n")))
	for i, c := range b {
		if c == '\n' && (i == 0 || b[i-1] != '\r') {
			out.WriteByte('\r')
		}
		out.WriteByte(c)
	}
	return out.Bytes()
}
