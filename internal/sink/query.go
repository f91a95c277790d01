package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jomei/notionapi"
)

// queryPageSize is the Notion maximum. Query and GetStatistics operate on a
// single page; collections larger than this are undercounted, reported via
// Stats.Truncated.
const queryPageSize = 100

// Query returns records matching the filter, newest first. All set conditions
// combine with AND. Limit bounds the page size; there is no multi-page
// traversal.
func (c *Client) Query(ctx context.Context, f Filter) ([]Record, error) {
	s, err := c.ensureSchema(ctx)
	if err != nil {
		return nil, err
	}

	limit := f.Limit
	if limit <= 0 || limit > queryPageSize {
		limit = queryPageSize
	}

	resp, err := c.api.QueryDatabase(ctx, c.dbID, &notionapi.DatabaseQueryRequest{
		Filter: buildFilter(s, f),
		Sorts: []notionapi.SortObject{
			{Property: s.Name(RoleDate), Direction: notionapi.SortOrderDESC},
		},
		PageSize: limit,
	})
	if err != nil {
		return nil, fmt.Errorf("query database: %w", err)
	}

	records := make([]Record, 0, len(resp.Results))
	for _, page := range resp.Results {
		records = append(records, recordFromPage(s, page))
	}
	return records, nil
}

// GetStatistics tallies one page of records by chat title and direction.
func (c *Client) GetStatistics(ctx context.Context) (*Stats, error) {
	s, err := c.ensureSchema(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.api.QueryDatabase(ctx, c.dbID, &notionapi.DatabaseQueryRequest{
		PageSize: queryPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("query database: %w", err)
	}

	stats := &Stats{
		PerChat:      make(map[string]int),
		PerDirection: make(map[string]int),
		Truncated:    resp.HasMore,
	}
	for _, page := range resp.Results {
		rec := recordFromPage(s, page)
		stats.TotalCount++
		if rec.Chat != "" {
			stats.PerChat[rec.Chat]++
		}
		if rec.Direction != "" {
			stats.PerDirection[string(rec.Direction)]++
		}
	}
	return stats, nil
}

// buildFilter translates the filter set into Notion's combinator. Returns nil
// when no condition is set.
func buildFilter(s *Schema, f Filter) notionapi.Filter {
	var conds []notionapi.Filter
	if f.ChatName != "" {
		conds = append(conds, notionapi.PropertyFilter{
			Property: s.Name(RoleChat),
			RichText: &notionapi.TextFilterCondition{Contains: f.ChatName},
		})
	}
	if f.Sender != "" {
		conds = append(conds, notionapi.PropertyFilter{
			Property: s.Name(RoleSender),
			RichText: &notionapi.TextFilterCondition{Contains: f.Sender},
		})
	}
	if f.Direction != "" {
		conds = append(conds, notionapi.PropertyFilter{
			Property: s.Name(RoleDirection),
			Select:   &notionapi.SelectFilterCondition{Equals: string(f.Direction)},
		})
	}
	if f.Start != nil {
		d := notionapi.Date(*f.Start)
		conds = append(conds, notionapi.PropertyFilter{
			Property: s.Name(RoleDate),
			Date:     &notionapi.DateFilterCondition{OnOrAfter: &d},
		})
	}
	if f.End != nil {
		d := notionapi.Date(*f.End)
		conds = append(conds, notionapi.PropertyFilter{
			Property: s.Name(RoleDate),
			Date:     &notionapi.DateFilterCondition{OnOrBefore: &d},
		})
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	}
	return notionapi.AndCompoundFilter(conds)
}

// recordFromPage maps page properties back through the schema.
func recordFromPage(s *Schema, page notionapi.Page) Record {
	props := page.Properties
	rec := Record{
		Text:       plainText(props[s.Name(RoleText)]),
		Sender:     plainText(props[s.Name(RoleSender)]),
		Chat:       plainText(props[s.Name(RoleChat)]),
		Direction:  Direction(selectName(props[s.Name(RoleDirection)])),
		MessageID:  numberValue(props[s.Name(RoleMessageID)]),
		MediaKind:  plainText(props[s.Name(RoleMedia)]),
		ChatID:     plainText(props[s.Name(RoleChatID)]),
		TopicID:    numberValue(props[s.Name(RoleTopicID)]),
		TopicTitle: plainText(props[s.Name(RoleTopicTitle)]),
		ThreadID:   numberValue(props[s.Name(RoleThreadID)]),
	}
	if rec.Text == "" {
		rec.Text = plainText(props[s.Name(RoleTitle)])
	}
	if ts, ok := dateValue(props[s.Name(RoleDate)]); ok {
		rec.Timestamp = ts
	}
	return rec
}

func plainText(p notionapi.Property) string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return joinRichText(v.Title)
	case *notionapi.RichTextProperty:
		return joinRichText(v.RichText)
	}
	return ""
}

func joinRichText(parts []notionapi.RichText) string {
	var out string
	for _, part := range parts {
		if part.PlainText != "" {
			out += part.PlainText
		} else if part.Text != nil {
			out += part.Text.Content
		}
	}
	return out
}

func selectName(p notionapi.Property) string {
	if v, ok := p.(*notionapi.SelectProperty); ok {
		return v.Select.Name
	}
	return ""
}

func numberValue(p notionapi.Property) int {
	if v, ok := p.(*notionapi.NumberProperty); ok {
		return int(v.Number)
	}
	return 0
}

func dateValue(p notionapi.Property) (time.Time, bool) {
	v, ok := p.(*notionapi.DateProperty)
	if !ok || v.Date == nil || v.Date.Start == nil {
		return time.Time{}, false
	}
	return time.Time(*v.Date.Start), true
}
