package message

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// Execute sends the text node content.
func (n *TextNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.TextData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected text data", protocol.ErrInvalidField))
	}

	body := execCtx.Interpolate(data.Text)

	var links []string
	if data.ExtractLinks {
		body, links = extractLinks(body)
	}

	messages := make([]models.OutboundMessage, 0, 4)

	switch {
	case data.ListMenu != nil:
		messages = append(messages, models.OutboundMessage{
			Type: models.MessageList,
			Text: strings.TrimSpace(body),
			List: interpolateMenu(execCtx, data.ListMenu),
		})
	case data.SplitParagraphs:
		for _, p := range splitParagraphs(body) {
			messages = append(messages, models.OutboundMessage{Type: models.MessageText, Text: p})
		}
	case strings.TrimSpace(body) != "":
		messages = append(messages, models.OutboundMessage{Type: models.MessageText, Text: body})
	}

	for _, link := range links {
		messages = append(messages, models.OutboundMessage{Type: models.MessageLink, Text: link})
	}

	for _, msg := range messages {
		err := execCtx.Send(ctx, node, msg)
		if err != nil {
			return protocol.Result{}, err
		}
	}

	return protocol.Follow(models.HandleDefault), nil
}

// splitParagraphs splits on blank lines and drops empty paragraphs.
func splitParagraphs(text string) []string {
	parts := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	paragraphs := make([]string, 0, len(parts))

	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	return paragraphs
}

// extractLinks removes the URLs from text and returns them in order.
func extractLinks(text string) (string, []string) {
	links := linkPattern.FindAllString(text, -1)
	if len(links) == 0 {
		return text, nil
	}

	stripped := linkPattern.ReplaceAllString(text, "")

	lines := strings.Split(stripped, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), links
}

func interpolateMenu(execCtx *protocol.ExecutionContext, menu *models.ListMenu) *models.ListMenu {
	out := &models.ListMenu{
		Title:       execCtx.Interpolate(menu.Title),
		Description: execCtx.Interpolate(menu.Description),
		ButtonText:  execCtx.Interpolate(menu.ButtonText),
		Footer:      execCtx.Interpolate(menu.Footer),
		Sections:    make([]models.ListMenuSection, 0, len(menu.Sections)),
	}

	for _, section := range menu.Sections {
		rows := make([]models.ListMenuItem, 0, len(section.Rows))
		for _, row := range section.Rows {
			rows = append(rows, models.ListMenuItem{
				ID:          row.ID,
				Title:       execCtx.Interpolate(row.Title),
				Description: execCtx.Interpolate(row.Description),
			})
		}

		out.Sections = append(out.Sections, models.ListMenuSection{
			Title: execCtx.Interpolate(section.Title),
			Rows:  rows,
		})
	}

	return out
}

// Execute sends the media file.
func (n *MediaNode) Execute(ctx context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.MediaData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected media data", protocol.ErrInvalidField))
	}

	mediaURL := execCtx.Interpolate(data.MediaURL)
	if mediaURL == "" && data.FileID == "" {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "mediaUrl", protocol.ErrMissingField)
	}

	err := execCtx.Send(ctx, node, models.OutboundMessage{
		Type:     models.MessageType(node.Type),
		MediaURL: mediaURL,
		FileID:   data.FileID,
		FileName: data.FileName,
		Caption:  execCtx.Interpolate(data.Caption),
	})
	if err != nil {
		return protocol.Result{}, err
	}

	return protocol.Follow(models.HandleDefault), nil
}

// Execute records the system message in the history only.
func (n *SystemMessageNode) Execute(_ context.Context, execCtx *protocol.ExecutionContext, node *models.Node) (protocol.Result, error) {
	data, ok := node.Data.(*models.SystemMessageData)
	if !ok {
		return protocol.Result{}, protocol.NewConfigError(node.ID, "data", fmt.Errorf("%w: expected system message data", protocol.ErrInvalidField))
	}

	execCtx.Record(models.RoleSystem, string(models.NodeTypeSystemMessage), execCtx.Interpolate(data.Text), node.ID)

	return protocol.Follow(models.HandleDefault), nil
}
