package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// subBatchSize records are created concurrently, then the pacer spaces
	// sub-batches to stay under the Notion rate limit.
	subBatchSize  = 10
	subBatchPause = 200 * time.Millisecond

	titleMaxLen = 100
)

// Config holds the sink credentials.
type Config struct {
	Token        string
	DatabaseID   string
	ParentPageID string
}

// Client talks to one Notion database acting as the message store. The
// database schema is resolved lazily, once per client, and repaired in place
// at most once per batch call when a validation failure reveals missing
// properties.
type Client struct {
	api          api
	dbID         notionapi.DatabaseID
	parentPageID string
	logger       *zap.Logger
	pacer        *Pacer

	mu     sync.Mutex
	schema *Schema
}

// New creates a sink client for the configured database.
func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		api:          &notionAPI{c: notionapi.NewClient(notionapi.Token(cfg.Token))},
		dbID:         notionapi.DatabaseID(cfg.DatabaseID),
		parentPageID: cfg.ParentPageID,
		logger:       logger,
		pacer:        NewPacer(subBatchPause),
	}
}

// Pacer spaces sub-batches at a fixed interval. It is a thin wrapper over a
// token bucket so the pacing policy is swappable in tests.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a pacer emitting one token per interval. A non-positive
// interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next token or context cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// ensureSchema resolves the database schema on first use.
func (c *Client) ensureSchema(ctx context.Context) (*Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema != nil {
		return c.schema, nil
	}
	db, err := c.api.GetDatabase(ctx, c.dbID)
	if err != nil {
		return nil, fmt.Errorf("get database schema: %w", err)
	}
	c.schema = resolveSchema(db)
	return c.schema, nil
}

// UpsertOne creates one entry. On a missing-property validation failure it
// reconciles the schema exactly once and retries the create once; a second
// failure propagates.
func (c *Client) UpsertOne(ctx context.Context, rec Record) (string, error) {
	s, err := c.ensureSchema(ctx)
	if err != nil {
		return "", err
	}

	id, err := c.createPage(ctx, s, rec)
	if err == nil {
		return id, nil
	}
	if !isMissingProperty(err) {
		return "", err
	}

	c.logger.Info("schema missing properties, reconciling", zap.Int("message_id", rec.MessageID))
	if err := c.ReconcileSchema(ctx); err != nil {
		return "", err
	}
	c.mu.Lock()
	s = c.schema
	c.mu.Unlock()
	return c.createPage(ctx, s, rec)
}

// UpsertBatch creates all records in sub-batches of subBatchSize, each
// sub-batch concurrently, pacing between sub-batches. At most one schema
// repair happens per call: on a missing-property failure with the repair
// still unspent, the schema is reconciled and the whole failing sub-batch is
// retried. Any other failure aborts the call; already-created IDs are
// returned alongside the error.
func (c *Client) UpsertBatch(ctx context.Context, records []Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	if _, err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	schemaRepaired := false

	for start := 0; start < len(records); start += subBatchSize {
		// Every sub-batch passes through the pacer. The bucket holds one
		// token, so the first emission is immediate and each later one lands
		// a full interval after the previous.
		if err := c.pacer.Wait(ctx); err != nil {
			return ids, err
		}
		end := start + subBatchSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		chunkIDs, missingSchema, err := c.createChunk(ctx, chunk)
		if err != nil && missingSchema && !schemaRepaired {
			c.logger.Info("schema missing properties, reconciling once for this batch",
				zap.Int("sub_batch_start", start))
			if rerr := c.ReconcileSchema(ctx); rerr != nil {
				return ids, rerr
			}
			schemaRepaired = true
			// Pages created before the repair are real; keep their IDs even
			// though the retry recreates the whole sub-batch.
			ids = append(ids, chunkIDs...)
			chunkIDs, _, err = c.createChunk(ctx, chunk)
		}
		if err != nil {
			ids = append(ids, chunkIDs...)
			return ids, fmt.Errorf("sub-batch starting at %d: %w", start, err)
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

// createChunk creates every record of one sub-batch concurrently and waits
// for all of them. It returns the IDs that were created, whether any failure
// was a missing-property validation error, and the first error.
func (c *Client) createChunk(ctx context.Context, chunk []Record) ([]string, bool, error) {
	c.mu.Lock()
	s := c.schema
	c.mu.Unlock()

	type result struct {
		id  string
		err error
	}
	results := make([]result, len(chunk))

	var wg sync.WaitGroup
	for i := range chunk {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := c.createPage(ctx, s, chunk[i])
			results[i] = result{id: id, err: err}
		}(i)
	}
	wg.Wait()

	var (
		ids           []string
		firstErr      error
		missingSchema bool
	)
	for _, r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			if isMissingProperty(r.err) {
				missingSchema = true
			}
			continue
		}
		ids = append(ids, r.id)
	}
	return ids, missingSchema, firstErr
}

// createPage maps a record onto the resolved schema and creates one page.
func (c *Client) createPage(ctx context.Context, s *Schema, rec Record) (string, error) {
	page, err := c.api.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.dbID,
		},
		Properties: buildProperties(s, rec),
	})
	if err != nil {
		return "", err
	}
	return string(page.ID), nil
}

// buildProperties maps a record to the database's property names. Optional
// fields are omitted when empty so they never create spurious values.
func buildProperties(s *Schema, rec Record) notionapi.Properties {
	date := notionapi.Date(rec.Timestamp)
	props := notionapi.Properties{
		s.Name(RoleTitle):  notionapi.TitleProperty{Title: richText(truncate(rec.Text, titleMaxLen))},
		s.Name(RoleText):   notionapi.RichTextProperty{RichText: richText(rec.Text)},
		s.Name(RoleSender): notionapi.RichTextProperty{RichText: richText(rec.Sender)},
		s.Name(RoleChat):   notionapi.RichTextProperty{RichText: richText(rec.Chat)},
		s.Name(RoleDate):   notionapi.DateProperty{Date: &notionapi.DateObject{Start: &date}},
		s.Name(RoleDirection): notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(rec.Direction)},
		},
		s.Name(RoleMessageID): notionapi.NumberProperty{Number: float64(rec.MessageID)},
	}
	if rec.MediaKind != "" {
		props[s.Name(RoleMedia)] = notionapi.RichTextProperty{RichText: richText(rec.MediaKind)}
	}
	if rec.ChatID != "" {
		props[s.Name(RoleChatID)] = notionapi.RichTextProperty{RichText: richText(rec.ChatID)}
	}
	if rec.TopicID != 0 {
		props[s.Name(RoleTopicID)] = notionapi.NumberProperty{Number: float64(rec.TopicID)}
	}
	if rec.TopicTitle != "" {
		props[s.Name(RoleTopicTitle)] = notionapi.RichTextProperty{RichText: richText(rec.TopicTitle)}
	}
	if rec.ThreadID != 0 {
		props[s.Name(RoleThreadID)] = notionapi.NumberProperty{Number: float64(rec.ThreadID)}
	}
	return props
}

// ReconcileSchema adds every missing required property in one schema-update
// call. A complete schema is a no-op; an existing title property, whatever
// its name, is reused rather than duplicated.
func (c *Client) ReconcileSchema(ctx context.Context) error {
	db, err := c.api.GetDatabase(ctx, c.dbID)
	if err != nil {
		return fmt.Errorf("get database schema: %w", err)
	}
	s := resolveSchema(db)

	missing := s.Missing()
	if len(missing) == 0 {
		c.mu.Lock()
		c.schema = s
		c.mu.Unlock()
		return nil
	}

	props := make(notionapi.PropertyConfigs, len(missing))
	for _, role := range missing {
		props[defaultNames[role]] = propertyConfig(role)
		s.bind(role)
	}

	if _, err := c.api.UpdateDatabase(ctx, c.dbID, &notionapi.DatabaseUpdateRequest{
		Properties: props,
	}); err != nil {
		return fmt.Errorf("update database schema: %w", err)
	}

	c.mu.Lock()
	c.schema = s
	c.mu.Unlock()

	names := make([]string, 0, len(missing))
	for _, role := range missing {
		names = append(names, defaultNames[role])
	}
	c.logger.Info("database schema reconciled", zap.Strings("added", names))
	return nil
}

// CreateDatabase provisions a new message database under the given parent
// page with the full required property schema and returns its ID.
func (c *Client) CreateDatabase(ctx context.Context, parentPageID, title string) (string, error) {
	db, err := c.api.CreateDatabase(ctx, &notionapi.DatabaseCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Title:      richText(title),
		Properties: fullPropertySet(),
	})
	if err != nil {
		return "", fmt.Errorf("create database: %w", err)
	}
	return string(db.ID), nil
}

// TestConnection verifies the configured database is reachable. It logs and
// returns false on failure, never an error.
func (c *Client) TestConnection(ctx context.Context) bool {
	if _, err := c.api.GetDatabase(ctx, c.dbID); err != nil {
		c.logger.Warn("notion connection test failed", zap.Error(err))
		return false
	}
	return true
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{Text: &notionapi.Text{Content: s}}}
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen])
}
