package notion

import (
	"context"
	"fmt"
	"log/slog"

	napi "github.com/jomei/notionapi"

	"github.com/rowkeeper/dbsync/internal/engine"
	"github.com/rowkeeper/dbsync/internal/retryutil"
	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// Client is the engine's remote-store client. It wraps notionapi.Client,
// adding the retry policy from internal/retryutil, translating errors into
// this package's sentinel types, and converting between notionapi's
// property values and the engine's canonical Cell representation.
// Client implements engine.RemoteClient.
type Client struct {
	api    *napi.Client
	logger *slog.Logger
}

var _ engine.RemoteClient = (*Client)(nil)

// NewClient builds a Client from an integration token. token is the opaque
// credential handle resolved by internal/credential.
func NewClient(token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		api:    napi.NewClient(napi.Token(token)),
		logger: logger,
	}
}

// Search enumerates every database reachable by the configured integration,
// driving the remote store's search endpoint to exhaustion one page at a
// time. Used by the discovery component (§4.2).
func (c *Client) Search(ctx context.Context) ([]engine.RemoteDatabaseSchema, error) {
	var out []engine.RemoteDatabaseSchema

	cursor := napi.Cursor("")

	for {
		var resp *napi.SearchResponse

		err := retryutil.Do(ctx, func(ctx context.Context) error {
			r, err := c.api.Search.Do(ctx, &napi.SearchRequest{
				Filter:      napi.SearchFilter{Property: "object", Value: "database"},
				StartCursor: cursor,
				PageSize:    100,
			})
			if err != nil {
				return c.classify(err)
			}

			resp = r

			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("notion: search databases: %w", err)
		}

		for _, res := range resp.Results {
			db, ok := res.(*napi.Database)
			if !ok {
				continue
			}

			out = append(out, toSchema(db))
		}

		if !resp.HasMore {
			break
		}

		cursor = napi.Cursor(resp.NextCursor)
	}

	return out, nil
}

// FetchSchema fetches a single database's current schema by ID. Used by the
// schema-sync component (§4.3) to compare against the canonical table's
// header row.
func (c *Client) FetchSchema(ctx context.Context, id sourceid.DatabaseID) (engine.RemoteDatabaseSchema, error) {
	var db *napi.Database

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		d, err := c.api.Database.Get(ctx, napi.DatabaseID(id.String()))
		if err != nil {
			return c.classify(err)
		}

		db = d

		return nil
	})
	if err != nil {
		return engine.RemoteDatabaseSchema{}, fmt.Errorf("notion: fetch schema %s: %w", id, err)
	}

	return toSchema(db), nil
}

// PaginateRows calls visit once per row of the given data source, in pages
// of up to 100, stopping at the first error visit returns.
func (c *Client) PaginateRows(ctx context.Context, ds sourceid.DataSourceID, visit func(engine.RemotePage) error) error {
	cursor := napi.Cursor("")

	for {
		var resp *napi.DataSourceQueryResponse

		err := retryutil.Do(ctx, func(ctx context.Context) error {
			r, err := c.api.DataSource.Query(ctx, napi.DataSourceID(ds.String()), &napi.DataSourceQueryRequest{
				StartCursor: cursor,
				PageSize:    100,
			})
			if err != nil {
				return c.classify(err)
			}

			resp = r

			return nil
		})
		if err != nil {
			return fmt.Errorf("notion: query data source %s: %w", ds, err)
		}

		for _, page := range resp.Results {
			rp := engine.RemotePage{
				PageID:       page.ID.String(),
				Values:       valuesToCells(page.Properties),
				LastEditedAt: page.LastEditedTime,
				Archived:     page.Archived,
			}

			if err := visit(rp); err != nil {
				return err
			}
		}

		if !resp.HasMore {
			return nil
		}

		cursor = napi.Cursor(resp.NextCursor)
	}
}

// CreateRow creates a new page under the given data source with the given
// values, returning the new page ID.
func (c *Client) CreateRow(ctx context.Context, ds sourceid.DataSourceID, values map[string]engine.Cell, table *engine.CanonicalTable) (string, error) {
	var page *napi.Page

	props := cellsToProperties(values, table.Columns)

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		p, err := c.api.Page.Create(ctx, &napi.PageCreateRequest{
			Parent:     napi.Parent{DataSourceID: napi.DataSourceID(ds.String())},
			Properties: props,
		})
		if err != nil {
			return c.classify(err)
		}

		page = p

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("notion: create row in %s: %w", ds, err)
	}

	return page.ID.String(), nil
}

// UpdateRow overwrites the given page's values.
func (c *Client) UpdateRow(ctx context.Context, pageID string, values map[string]engine.Cell, table *engine.CanonicalTable) error {
	props := cellsToProperties(values, table.Columns)

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := c.api.Page.Update(ctx, napi.PageID(pageID), &napi.PageUpdateRequest{Properties: props})
		return c.classify(err)
	})
	if err != nil {
		return fmt.Errorf("notion: update row %s: %w", pageID, err)
	}

	return nil
}

// ArchiveRow marks a page as archived (soft delete).
func (c *Client) ArchiveRow(ctx context.Context, pageID string) error {
	archived := true

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := c.api.Page.Update(ctx, napi.PageID(pageID), &napi.PageUpdateRequest{Archived: &archived})
		return c.classify(err)
	})
	if err != nil {
		return fmt.Errorf("notion: archive row %s: %w", pageID, err)
	}

	return nil
}

// EnsureRemoteColumn creates a new property on the remote database for a
// column the table has but the remote lacks (§4.3).
func (c *Client) EnsureRemoteColumn(ctx context.Context, id sourceid.DatabaseID, col engine.Column) error {
	cfg := map[string]napi.PropertyConfig{col.Name: schemaConfigForColumn(col)}

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := c.api.Database.Update(ctx, napi.DatabaseID(id.String()), &napi.DatabaseUpdateRequest{Properties: cfg})
		return c.classify(err)
	})
	if err != nil {
		return fmt.Errorf("notion: create property %q on %s: %w", col.Name, id, err)
	}

	return nil
}

// UnionSelectOptions adds any options not already present on a
// select/multi-select/status property (options are never removed, §4.3).
func (c *Client) UnionSelectOptions(ctx context.Context, id sourceid.DatabaseID, columnName string, options []string) error {
	schema, err := c.FetchSchema(ctx, id)
	if err != nil {
		return err
	}

	col := engine.Column{Name: columnName}

	for _, existing := range schema.Columns {
		if existing.Name == columnName {
			col = existing
			break
		}
	}

	union := options
	if len(col.Options) > 0 {
		seen := make(map[string]bool, len(col.Options))
		for _, o := range col.Options {
			seen[o] = true
		}

		union = append([]string{}, col.Options...)

		for _, o := range options {
			if !seen[o] {
				seen[o] = true
				union = append(union, o)
			}
		}
	}

	if col.Kind == "" {
		col.Kind = engine.KindSingleSelect
	}

	col.Options = union

	cfg := map[string]napi.PropertyConfig{columnName: schemaConfigForColumn(col)}

	err = retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := c.api.Database.Update(ctx, napi.DatabaseID(id.String()), &napi.DatabaseUpdateRequest{Properties: cfg})
		return c.classify(err)
	})
	if err != nil {
		return fmt.Errorf("notion: union options for %q on %s: %w", columnName, id, err)
	}

	return nil
}

// classify translates a raw notionapi error into one of this package's
// sentinel-wrapped errors, or leaves non-API errors (context cancellation,
// transport failures) untouched aside from marking retryable ones
// transient for internal/retryutil.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	if wrapped := classifyAPIError(err); wrapped != nil {
		if apiErr, ok := wrapped.(*Error); ok && isRetryable(apiErr.Err) {
			return retryutil.Transient(wrapped)
		}

		return wrapped
	}

	// Non-API error: network-level failure. Treat as transient, matching
	// the teacher's client.go doRetry behavior for plain transport errors.
	return retryutil.Transient(err)
}

func toSchema(db *napi.Database) engine.RemoteDatabaseSchema {
	title := ""
	for _, t := range db.Title {
		title += t.PlainText
	}

	var ds sourceid.DataSourceID
	if len(db.DataSources) > 0 {
		ds = sourceid.NewDataSourceID(db.DataSources[0].ID.String())
	}

	return engine.RemoteDatabaseSchema{
		RemoteDatabase: engine.RemoteDatabase{
			ID:          sourceid.NewDatabaseID(db.ID.String()),
			DataSource:  ds,
			DisplayName: title,
		},
		Columns: schemaToColumns(db),
	}
}
