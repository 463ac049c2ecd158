package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/apex/log"
)

const messagesCSS = `<style>
    body {
        font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI',
                     Roboto, Helvetica, Arial, sans-serif;
        max-width: 800px;
        margin: 0 auto;
        padding: 20px;
        background: #f5f5f5;
    }
    h1 { color: #333; margin-bottom: 5px; }
    .stats { color: #666; margin-bottom: 20px; font-size: 14px; }
    .message {
        margin: 10px 0;
        padding: 10px 15px;
        border-radius: 18px;
        max-width: 70%;
        clear: both;
    }
    .sent { background: #007aff; color: white; float: right; }
    .received { background: #e9e9eb; color: #333; float: left; }
    .message-text { margin: 0; word-wrap: break-word; }
    .message-meta { font-size: 11px; margin-top: 5px; opacity: 0.7; }
    .sent .message-meta { color: #cce5ff; }
    .clearfix { clear: both; }
    .date-divider {
        text-align: center;
        color: #888;
        font-size: 12px;
        margin: 20px 0;
        clear: both;
    }
    .attachment { font-size: 12px; font-style: italic; margin-top: 5px; }
</style>`

const notesCSS = `<style>
    body {
        font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI',
                     Roboto, Helvetica, Arial, sans-serif;
        max-width: 900px;
        margin: 0 auto;
        padding: 20px;
        background: #fefcf3;
    }
    h1 { color: #333; }
    .stats { color: #666; margin-bottom: 30px; font-size: 14px; }
    .note {
        background: #fff;
        border: 1px solid #e0ddd4;
        border-radius: 8px;
        margin: 20px 0;
        padding: 20px;
        box-shadow: 0 1px 3px rgba(0,0,0,0.08);
    }
    .note-title { font-size: 18px; font-weight: 600; color: #333; margin: 0 0 10px 0; }
    .note-meta { font-size: 12px; color: #888; margin-bottom: 15px; }
    .note-meta span { margin-right: 15px; }
    .note-content { white-space: pre-wrap; line-height: 1.6; color: #444; }
    .badge {
        display: inline-block;
        padding: 2px 8px;
        border-radius: 10px;
        font-size: 11px;
        margin-left: 8px;
    }
    .badge-pinned { background: #fff3cd; color: #856404; }
    .badge-locked { background: #f8d7da; color: #721c24; }
</style>`

// WriteMessagesHTML writes messages as a chat-style HTML page: sent
// and received bubbles with a date divider whenever the calendar day
// changes between consecutive messages.
func WriteMessagesHTML(messages []Message, path, title string) error {
	var body strings.Builder
	var lastDay string

	for _, m := range messages {
		if !m.Date.IsZero() {
			day := m.Date.Format("2006-01-02")
			if day != lastDay {
				fmt.Fprintf(&body, "<div class=\"date-divider\">%s</div>\n", m.Date.Format("January 02, 2006"))
				lastDay = day
			}
		}

		class := "received"
		if m.Direction == DirectionSent {
			class = "sent"
		}
		text := m.Text
		if text == "" {
			text = "[No text]"
		}
		var timeStr string
		if !m.Date.IsZero() {
			timeStr = m.Date.Format("15:04")
		}
		var attach string
		if len(m.Attachments) > 0 {
			attach = fmt.Sprintf("<div class=\"attachment\">[%d attachment(s)]</div>", len(m.Attachments))
		}

		fmt.Fprintf(&body, `<div class="message %s">
    <p class="message-text">%s</p>
    %s
    <div class="message-meta">%s</div>
</div>
<div class="clearfix"></div>
`, class, html.EscapeString(text), attach, timeStr)
	}

	stats := fmt.Sprintf("Exported %d messages on %s", len(messages), time.Now().Format("2006-01-02 15:04"))
	if err := writeFile(path, []byte(htmlPage(title, messagesCSS, stats, body.String()))); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"count": len(messages),
		"path":  path,
	}).Info("wrote HTML export")
	return nil
}

// WriteNotesHTML writes notes as cards on a single HTML page.
func WriteNotesHTML(notes []Note, path, title string) error {
	var body strings.Builder

	for _, n := range notes {
		var badges string
		if n.IsPinned {
			badges += `<span class="badge badge-pinned">Pinned</span>`
		}
		if n.IsLocked {
			badges += `<span class="badge badge-locked">Locked</span>`
		}

		var dateInfo string
		switch {
		case !n.ModifiedDate.IsZero():
			dateInfo = n.ModifiedDate.Format("2006-01-02 15:04")
		case !n.CreatedDate.IsZero():
			dateInfo = n.CreatedDate.Format("2006-01-02 15:04")
		}
		var folderInfo string
		if n.FolderName != "" {
			folderInfo = " | " + html.EscapeString(n.FolderName)
		}

		fmt.Fprintf(&body, `<div class="note">
    <h2 class="note-title">%s%s</h2>
    <div class="note-meta"><span>%s</span><span>%s</span></div>
    <div class="note-content">%s</div>
</div>
`, html.EscapeString(n.Title), badges, dateInfo, folderInfo, html.EscapeString(n.Content))
	}

	stats := fmt.Sprintf("Exported %d notes on %s", len(notes), time.Now().Format("2006-01-02 15:04"))
	if err := writeFile(path, []byte(htmlPage(title, notesCSS, stats, body.String()))); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"count": len(notes),
		"path":  path,
	}).Info("wrote HTML export")
	return nil
}

func htmlPage(title, css, stats, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>%s</title>
    %s
</head>
<body>
    <h1>%s</h1>
    <div class="stats">%s</div>
%s</body>
</html>
`, html.EscapeString(title), css, html.EscapeString(title), stats, body)
}
