package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/digkill/finassist/internal/models"
)

type ExportFormat string

const (
	ExportMarkdown ExportFormat = "md"
	ExportHTML     ExportFormat = "html"
	ExportJSON     ExportFormat = "json"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

type transcript struct {
	body        []byte
	contentType string
	ext         string
}

func renderTranscript(chat *models.Chat, format ExportFormat) (*transcript, error) {
	switch format {
	case ExportMarkdown, "":
		return &transcript{
			body:        []byte(transcriptMarkdown(chat)),
			contentType: "text/markdown; charset=utf-8",
			ext:         "md",
		}, nil
	case ExportHTML:
		body, err := transcriptHTML(chat)
		if err != nil {
			return nil, err
		}
		return &transcript{body: body, contentType: "text/html; charset=utf-8", ext: "html"}, nil
	case ExportJSON:
		body, err := json.MarshalIndent(chat, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode transcript: %w", err)
		}
		return &transcript{body: body, contentType: "application/json", ext: "json"}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func transcriptMarkdown(chat *models.Chat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", chatTitle(chat))
	for _, msg := range chat.Messages {
		speaker := "You"
		if msg.Role == models.RoleAssistant {
			speaker = "Assistant"
		}
		fmt.Fprintf(&b, "**%s** (%s)\n\n", speaker, msg.Timestamp.UTC().Format("2006-01-02 15:04 UTC"))
		b.WriteString(strings.TrimSpace(msg.Content))
		b.WriteString("\n\n")
		if len(msg.Citations) > 0 {
			b.WriteString("Sources:\n\n")
			for i, c := range msg.Citations {
				n := c.Index
				if n == 0 {
					n = i + 1
				}
				fmt.Fprintf(&b, "%d. <%s>\n", n, c.URL)
			}
			b.WriteString("\n")
		}
		b.WriteString("---\n\n")
	}
	return b.String()
}

func transcriptHTML(chat *models.Chat) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(transcriptMarkdown(chat)), &body); err != nil {
		return nil, fmt.Errorf("render transcript: %w", err)
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&out, "<title>%s</title>\n", html.EscapeString(chatTitle(chat)))
	out.WriteString("</head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func chatTitle(chat *models.Chat) string {
	if strings.TrimSpace(chat.Title) == "" {
		return "Untitled chat"
	}
	return chat.Title
}
