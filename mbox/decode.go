package mbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"golang.org/x/net/html"

	"github.com/dhcgn/mbox-search/match"
	"github.com/dhcgn/mbox-search/model"
)

// maxNesting bounds how deep multiparts and enclosed messages are followed.
const maxNesting = 16

var errNoText = errors.New("no text part")

// Message is a decoded message ready for display and body matching.
type Message struct {
	model.Metadata

	// Body is the readable text of the message: its inline text/plain parts,
	// or its inline text/html parts when there is no plain text.
	Body string
	// SearchText holds every text part, attachments and enclosed messages
	// included, with HTML reduced to its visible text.
	SearchText string
	// RawBody is the undecoded body as stored in the archive.
	RawBody []byte
	// Fallback is set when the body could not be decoded and Body holds the
	// raw bytes with invalid sequences replaced.
	Fallback bool
	Warnings []model.Warning
}

// Decode turns the raw bytes of one mbox record, delimiter line included,
// into a Message. It never fails: undecodable content falls back to the raw
// body.
func Decode(raw []byte) Message {
	content := stripDelimiter(raw)
	header, rawBody := match.SplitRawMessage(content)
	meta, warnings := Extract(header)

	msg := Message{Metadata: meta, RawBody: rawBody, Warnings: warnings}

	text, err := decodeBody(content)
	switch {
	case errors.Is(err, errNoText):
		return msg
	case err != nil:
		msg.Fallback = true
		msg.Body = normalizeText(rawBody)
		msg.SearchText = msg.Body
		msg.Warnings = append(msg.Warnings, model.Warning{Kind: model.WarnDecode, Detail: err.Error()})
		return msg
	}

	msg.Body = text.display()
	msg.SearchText = strings.Join(text.all, "\n")
	if !text.exact {
		msg.Fallback = true
		msg.Warnings = append(msg.Warnings, model.Warning{Kind: model.WarnDecode, Detail: "body contains undecodable content"})
	}
	return msg
}

func stripDelimiter(raw []byte) []byte {
	if !bytes.HasPrefix(raw, delimiter) {
		return raw
	}
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		return raw[i+1:]
	}
	return nil
}

// bodyText collects the text parts of a MIME tree.
type bodyText struct {
	// plain and html hold the inline parts of the outer message.
	plain []string
	html  []string
	all   []string
	// exact is false when some part had an unknown charset or encoding, or
	// invalid UTF-8 after decoding.
	exact bool
}

func (b *bodyText) display() string {
	if len(b.plain) > 0 {
		return strings.Join(b.plain, "\n\n")
	}
	return strings.Join(b.html, "\n\n")
}

// decodeBody reads every text part of content. Parts are read whole.
func decodeBody(content []byte) (*bodyText, error) {
	entity, err := message.Read(bytes.NewReader(content))
	if entity == nil || (err != nil && !isRecoverable(err)) {
		if err == nil {
			err = errors.New("empty message")
		}
		return nil, fmt.Errorf("parse message: %w", err)
	}

	b := &bodyText{exact: err == nil}
	walkErr := b.collect(entity, 0, true)
	if walkErr != nil && len(b.all) == 0 {
		return nil, fmt.Errorf("read message: %w", walkErr)
	}
	if walkErr != nil {
		b.exact = false
	}
	if len(b.all) == 0 {
		return nil, errNoText
	}
	return b, nil
}

// collect adds the text found in e. Text inside attachments and enclosed
// messages is searchable but not displayed.
func (b *bodyText) collect(e *message.Entity, depth int, display bool) error {
	if depth > maxNesting {
		b.exact = false
		return nil
	}

	mediaType, _, _ := e.Header.ContentType()
	if mediaType == "" {
		mediaType = "text/plain"
	}
	if disp, _, _ := e.Header.ContentDisposition(); disp == "attachment" {
		display = false
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		return b.collectParts(e, depth, display)
	case mediaType == "message/rfc822" || mediaType == "message/global":
		inner, err := message.Read(e.Body)
		if inner == nil || (err != nil && !isRecoverable(err)) {
			b.exact = false
			return nil
		}
		if err != nil {
			b.exact = false
		}
		return b.collect(inner, depth+1, false)
	case !strings.HasPrefix(mediaType, "text/"):
		return nil
	}

	data, err := io.ReadAll(e.Body)
	if err != nil || !utf8.Valid(data) {
		b.exact = false
	}
	text := normalizeText(data)
	if mediaType == "text/html" {
		text = htmlToText(text)
	}
	b.all = append(b.all, text)

	switch {
	case !display:
	case mediaType == "text/plain":
		b.plain = append(b.plain, text)
	case mediaType == "text/html":
		b.html = append(b.html, text)
	}
	return nil
}

func (b *bodyText) collectParts(e *message.Entity, depth int, display bool) error {
	mr := e.MultipartReader()
	if mr == nil {
		return nil
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if part == nil || !isRecoverable(err) {
				return err
			}
			b.exact = false
		}
		if err := b.collect(part, depth+1, display); err != nil {
			return err
		}
	}
}

func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func normalizeText(b []byte) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	return strings.ReplaceAll(s, "\r\n", "\n")
}

var blockTags = map[string]bool{
	"br": true, "p": true, "div": true, "tr": true, "li": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true,
}

// htmlToText extracts the visible text of an HTML part, one line per block.
func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var (
		lines []string
		line  []string
		skip  int
	)
	breakLine := func() {
		if len(line) > 0 {
			lines = append(lines, strings.Join(line, " "))
			line = line[:0]
		}
	}

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			breakLine()
			return strings.Join(lines, "\n")
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tt == html.StartTagToken && (tag == "script" || tag == "style") {
				skip++
			}
			if blockTags[tag] {
				breakLine()
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if (tag == "script" || tag == "style") && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				breakLine()
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if words := strings.Fields(string(z.Text())); len(words) > 0 {
				line = append(line, strings.Join(words, " "))
			}
		}
	}
}
