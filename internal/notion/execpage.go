package notion

import (
	"context"
	"fmt"
	"time"

	napi "github.com/jomei/notionapi"

	"github.com/rowkeeper/dbsync/internal/engine"
	"github.com/rowkeeper/dbsync/internal/retryutil"
	"github.com/rowkeeper/dbsync/internal/sourceid"
)

// ExecutionPages adapts a Client to engine.ExecutionPageClient, addressing
// the well-known execution-log database named in Config.ExecutionDatabaseID
// (§4.9: "a page in a well-known database with fields {Start Time, Final
// Status, Script Name, Run Id, Environment, Script Id, Timezone, User
// Identifier}"). Kept as a thin wrapper distinct from Client's
// property-typed row methods since this page's field set is fixed, not
// derived from a canonical table.
type ExecutionPages struct {
	client     *Client
	databaseID string
}

var _ engine.ExecutionPageClient = (*ExecutionPages)(nil)

// NewExecutionPages builds an ExecutionPageClient targeting databaseID's
// data source.
func NewExecutionPages(client *Client, databaseID string) *ExecutionPages {
	return &ExecutionPages{client: client, databaseID: databaseID}
}

func (p *ExecutionPages) dataSourceID(ctx context.Context) (string, error) {
	schema, err := p.client.FetchSchema(ctx, sourceid.NewDatabaseID(p.databaseID))
	if err != nil {
		return "", err
	}

	if schema.DataSource.IsZero() {
		return "", fmt.Errorf("notion: execution database %s has no data source", p.databaseID)
	}

	return schema.DataSource.String(), nil
}

// CreateExecutionPage creates the remote execution page in Running state.
func (p *ExecutionPages) CreateExecutionPage(rec *engine.ExecutionRecord) (string, error) {
	ctx := context.Background()

	dsID, err := p.dataSourceID(ctx)
	if err != nil {
		return "", err
	}

	var page *napi.Page

	err = retryutil.Do(ctx, func(ctx context.Context) error {
		pg, err := p.client.api.Page.Create(ctx, &napi.PageCreateRequest{
			Parent:     napi.Parent{DataSourceID: napi.DataSourceID(dsID)},
			Properties: executionProperties(rec),
		})
		if err != nil {
			return p.client.classify(err)
		}

		page = pg

		return nil
	})
	if err != nil {
		return "", fmt.Errorf("notion: create execution page: %w", err)
	}

	return page.ID.String(), nil
}

// UpdateExecutionPage flushes the record's current state to the remote
// page. Final Status is included in the same property map as every other
// field, but callers only invoke this with a non-Running status once, at
// finalization, satisfying "the page's Final Status property is set last."
func (p *ExecutionPages) UpdateExecutionPage(pageID string, rec *engine.ExecutionRecord) error {
	ctx := context.Background()

	err := retryutil.Do(ctx, func(ctx context.Context) error {
		_, err := p.client.api.Page.Update(ctx, napi.PageID(pageID), &napi.PageUpdateRequest{
			Properties: executionProperties(rec),
		})
		return p.client.classify(err)
	})
	if err != nil {
		return fmt.Errorf("notion: update execution page %s: %w", pageID, err)
	}

	return nil
}

func executionProperties(rec *engine.ExecutionRecord) napi.Properties {
	tz, _ := time.Now().Zone()

	start := napi.Date(rec.StartTime)

	return napi.Properties{
		"Script Name":     &napi.TitleProperty{Title: richText(rec.ScriptName)},
		"Start Time":      &napi.DateProperty{Date: &napi.DateObject{Start: &start}},
		"Final Status":    &napi.SelectProperty{Select: napi.Option{Name: string(rec.Status)}},
		"Run Id":          &napi.RichTextProperty{RichText: richText(rec.RunID)},
		"Environment":     &napi.RichTextProperty{RichText: richText(rec.Environment)},
		"Script Id":       &napi.RichTextProperty{RichText: richText(rec.ScriptID)},
		"Timezone":        &napi.RichTextProperty{RichText: richText(tz)},
		"User Identifier": &napi.RichTextProperty{RichText: richText(rec.UserID)},
	}
}
