package notion

import (
	"context"
	"fmt"
	"strings"

	napi "github.com/jomei/notionapi"

	"github.com/rowkeeper/dbsync/internal/retryutil"
)

// FetchPageBody renders a page's block children as plain text, preserving
// headings, list markers, and link targets as inline annotations (§4.6).
func (c *Client) FetchPageBody(ctx context.Context, pageID string) (string, error) {
	var blocks []napi.Block

	cursor := napi.Cursor("")

	for {
		var resp *napi.GetChildrenResponse

		err := retryutil.Do(ctx, func(ctx context.Context) error {
			r, err := c.api.Block.GetChildren(ctx, napi.BlockID(pageID), &napi.Pagination{StartCursor: cursor, PageSize: 100})
			if err != nil {
				return c.classify(err)
			}

			resp = r

			return nil
		})
		if err != nil {
			return "", fmt.Errorf("notion: fetch body %s: %w", pageID, err)
		}

		blocks = append(blocks, resp.Results...)

		if !resp.HasMore {
			break
		}

		cursor = napi.Cursor(resp.NextCursor)
	}

	var b strings.Builder
	for _, blk := range blocks {
		b.WriteString(blockToText(blk))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n"), nil
}

func blockToText(blk napi.Block) string {
	switch b := blk.(type) {
	case *napi.Heading1Block:
		return "# " + richTextToText(b.Heading1.RichText)
	case *napi.Heading2Block:
		return "## " + richTextToText(b.Heading2.RichText)
	case *napi.Heading3Block:
		return "### " + richTextToText(b.Heading3.RichText)
	case *napi.ParagraphBlock:
		return richTextToText(b.Paragraph.RichText)
	case *napi.BulletedListItemBlock:
		return "- " + richTextToText(b.BulletedListItem.RichText)
	case *napi.NumberedListItemBlock:
		return "1. " + richTextToText(b.NumberedListItem.RichText)
	case *napi.ToDoBlock:
		mark := "[ ]"
		if b.ToDo.Checked {
			mark = "[x]"
		}

		return mark + " " + richTextToText(b.ToDo.RichText)
	case *napi.QuoteBlock:
		return "> " + richTextToText(b.Quote.RichText)
	case *napi.CodeBlock:
		return "```\n" + richTextToText(b.Code.RichText) + "\n```"
	default:
		return ""
	}
}

// richTextToText renders rich text as plain text, appending a "(href)"
// annotation after any linked span, matching §4.6's "links as inline
// annotations" requirement.
func richTextToText(rt []napi.RichText) string {
	var b strings.Builder

	for _, r := range rt {
		b.WriteString(r.PlainText)

		if r.Href != "" {
			fmt.Fprintf(&b, " (%s)", r.Href)
		}
	}

	return b.String()
}

// ReplacePageBody deletes the page's existing block children and appends
// new ones parsed from body's plain-text structure (§4.6's reciprocal
// parser: leading "#"/"##"/"###" headings, "- " bullets, "1. " numbered
// items, "[ ]"/"[x]" to-dos, "> " quotes, else paragraphs). Fenced code
// is not recognised: each non-blank line of a fenced block, the fences
// included, becomes its own paragraph.
func (c *Client) ReplacePageBody(ctx context.Context, pageID string, body string) error {
	if err := c.clearChildren(ctx, pageID); err != nil {
		return err
	}

	blocks := parseBody(body)
	if len(blocks) == 0 {
		return nil
	}

	return retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := c.api.Block.AppendChildren(ctx, napi.BlockID(pageID), &napi.AppendBlockChildrenRequest{Children: blocks})
		return c.classify(err)
	})
}

func (c *Client) clearChildren(ctx context.Context, pageID string) error {
	var existing []napi.Block

	cursor := napi.Cursor("")

	for {
		var resp *napi.GetChildrenResponse

		err := retryutil.Do(ctx, func(ctx context.Context) error {
			r, err := c.api.Block.GetChildren(ctx, napi.BlockID(pageID), &napi.Pagination{StartCursor: cursor, PageSize: 100})
			if err != nil {
				return c.classify(err)
			}

			resp = r

			return nil
		})
		if err != nil {
			return fmt.Errorf("notion: listing body blocks %s: %w", pageID, err)
		}

		existing = append(existing, resp.Results...)

		if !resp.HasMore {
			break
		}

		cursor = napi.Cursor(resp.NextCursor)
	}

	for _, blk := range existing {
		err := retryutil.Do(ctx, func(ctx context.Context) error {
			_, err := c.api.Block.Delete(ctx, blk.GetID())
			return c.classify(err)
		})
		if err != nil {
			return fmt.Errorf("notion: clearing body block %s: %w", pageID, err)
		}
	}

	return nil
}

func parseBody(body string) []napi.Block {
	var blocks []napi.Block

	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "### "):
			blocks = append(blocks, &napi.Heading3Block{BasicBlock: heading3Basic(), Heading3: napi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "### "))}})
		case strings.HasPrefix(trimmed, "## "):
			blocks = append(blocks, &napi.Heading2Block{BasicBlock: heading2Basic(), Heading2: napi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "## "))}})
		case strings.HasPrefix(trimmed, "# "):
			blocks = append(blocks, &napi.Heading1Block{BasicBlock: heading1Basic(), Heading1: napi.Heading{RichText: richText(strings.TrimPrefix(trimmed, "# "))}})
		case strings.HasPrefix(trimmed, "- "):
			blocks = append(blocks, &napi.BulletedListItemBlock{BasicBlock: basicBlock(napi.BlockTypeBulletedListItem), BulletedListItem: napi.ListItem{RichText: richText(strings.TrimPrefix(trimmed, "- "))}})
		case strings.HasPrefix(trimmed, "1. "):
			blocks = append(blocks, &napi.NumberedListItemBlock{BasicBlock: basicBlock(napi.BlockTypeNumberedListItem), NumberedListItem: napi.ListItem{RichText: richText(strings.TrimPrefix(trimmed, "1. "))}})
		case strings.HasPrefix(trimmed, "> "):
			blocks = append(blocks, &napi.QuoteBlock{BasicBlock: basicBlock(napi.BlockTypeQuote), Quote: napi.Quote{RichText: richText(strings.TrimPrefix(trimmed, "> "))}})
		case strings.HasPrefix(trimmed, "[ ] ") || strings.HasPrefix(trimmed, "[x] "):
			checked := strings.HasPrefix(trimmed, "[x] ")
			text := strings.TrimPrefix(strings.TrimPrefix(trimmed, "[ ] "), "[x] ")
			blocks = append(blocks, &napi.ToDoBlock{BasicBlock: basicBlock(napi.BlockTypeToDo), ToDo: napi.ToDo{RichText: richText(text), Checked: checked}})
		default:
			blocks = append(blocks, &napi.ParagraphBlock{BasicBlock: basicBlock(napi.BlockTypeParagraph), Paragraph: napi.Paragraph{RichText: richText(trimmed)}})
		}
	}

	return blocks
}

func basicBlock(t napi.BlockType) napi.BasicBlock {
	return napi.BasicBlock{Object: napi.ObjectTypeBlock, Type: t}
}

func heading1Basic() napi.BasicBlock { return basicBlock(napi.BlockTypeHeading1) }
func heading2Basic() napi.BasicBlock { return basicBlock(napi.BlockTypeHeading2) }
func heading3Basic() napi.BasicBlock { return basicBlock(napi.BlockTypeHeading3) }
