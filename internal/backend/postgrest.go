package backend

import (
	"context"
	"net/http"

	"github.com/johnmaccormick/mirDB/internal/logging"
)

type accessTokenKey struct{}

// WithAccessToken attaches the signed-in user's access token so table reads are
// evaluated under that user's row-level security policies.
func WithAccessToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, accessTokenKey{}, token)
}

// AccessTokenFromContext returns the token set by WithAccessToken, or "".
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenKey{}).(string)
	return token
}

// RESTQuerier reads tables through the PostgREST endpoint under /rest/v1.
type RESTQuerier struct {
	t      transport
	schema string
}

// NewRESTQuerier constructs a querier for the given project and schema.
func NewRESTQuerier(baseURL, apiKey, schema string, httpClient *http.Client) *RESTQuerier {
	return &RESTQuerier{t: newTransport(baseURL, apiKey, httpClient), schema: schema}
}

// Select implements Querier.
func (q *RESTQuerier) Select(ctx context.Context, query Query) ([]Row, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	ctx, span := logging.StartSpan(ctx, "postgrest.select")
	var rows []Row
	req := request{
		method: http.MethodGet,
		path:   "/rest/v1/" + query.Table,
		query:  query.Values(),
		bearer: AccessTokenFromContext(ctx),
	}
	if q.schema != "" {
		req.headers = map[string]string{"Accept-Profile": q.schema}
	}
	err := q.t.do(ctx, req, &rows)
	span.EndErr(err)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []Row{}
	}
	return rows, nil
}

var _ Querier = (*RESTQuerier)(nil)
