package sink

import (
	"context"
	"errors"
	"strings"

	"github.com/jomei/notionapi"
)

// api is the narrow slice of the Notion API the client consumes. Tests
// substitute fakes; production uses notionAPI.
type api interface {
	GetDatabase(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error)
	UpdateDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error)
	CreateDatabase(ctx context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	QueryDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

type notionAPI struct {
	c *notionapi.Client
}

func (n *notionAPI) GetDatabase(ctx context.Context, id notionapi.DatabaseID) (*notionapi.Database, error) {
	return n.c.Database.Get(ctx, id)
}

func (n *notionAPI) UpdateDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseUpdateRequest) (*notionapi.Database, error) {
	return n.c.Database.Update(ctx, id, req)
}

func (n *notionAPI) CreateDatabase(ctx context.Context, req *notionapi.DatabaseCreateRequest) (*notionapi.Database, error) {
	return n.c.Database.Create(ctx, req)
}

func (n *notionAPI) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return n.c.Page.Create(ctx, req)
}

func (n *notionAPI) QueryDatabase(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return n.c.Database.Query(ctx, id, req)
}

// errCodeValidationError is Notion's wire code for request-validation
// failures. The library exports the ErrorCode type but no constants for the
// individual codes.
const errCodeValidationError notionapi.ErrorCode = "validation_error"

// isMissingProperty reports whether err is the validation failure Notion
// returns when a page references a property the database does not define.
// Only this failure triggers the one-shot schema repair; every other error
// propagates untouched.
func isMissingProperty(err error) bool {
	var apiErr *notionapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code != errCodeValidationError {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "is not a property that exists") ||
		strings.Contains(msg, "does not exist")
}
