package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aluiziolira/divemeets-skill-rating/models"
)

const diverFields = `
    id
    firstName
    lastName
    gender
    finaAge
    hsGradYear
    springboardRating
    platformRating
    totalRating
    _ttl
    createdAt
    updatedAt
    _version
    _deleted
    _lastChangedAt
    __typename`

const (
	getDiverQuery = `
query getDiveMeetsDiver($id: ID!) {
  getDiveMeetsDiver(id: $id) {` + diverFields + `
  }
}`

	createDiverMutation = `
mutation createDiveMeetsDiver($createDiveMeetsDiverInput: CreateDiveMeetsDiverInput!,
                              $condition: ModelDiveMeetsDiverConditionInput) {
  createDiveMeetsDiver(input: $createDiveMeetsDiverInput, condition: $condition) {` + diverFields + `
  }
}`

	updateDiverMutation = `
mutation updateDiveMeetsDiver($updateDiveMeetsDiverInput: UpdateDiveMeetsDiverInput!,
                              $condition: ModelDiveMeetsDiverConditionInput) {
  updateDiveMeetsDiver(input: $updateDiveMeetsDiverInput, condition: $condition) {` + diverFields + `
  }
}`

	deleteDiverMutation = `
mutation deleteDiveMeetsDiver($deleteDiveMeetsDiverInput: DeleteDiveMeetsDiverInput!,
                              $condition: ModelDiveMeetsDiverConditionInput) {
  deleteDiveMeetsDiver(input: $deleteDiveMeetsDiverInput, condition: $condition) {` + diverFields + `
  }
}`

	listDiversQuery = `
query listDiveMeetsDivers($filter: ModelDiveMeetsDiverFilterInput, $limit: Int, $nextToken: String) {
  listDiveMeetsDivers(filter: $filter, limit: $limit, nextToken: $nextToken) {
    items {` + diverFields + `
    }
    nextToken
  }
}`
)

const listPageSize = 1000

// GraphQLStore talks to the hosted GraphQL record API.
type GraphQLStore struct {
	client   *resty.Client
	endpoint string
}

// NewGraphQLStore builds a store that authenticates with an API key header.
func NewGraphQLStore(endpoint, apiKey string) *GraphQLStore {
	client := resty.New()
	client.SetHeader("content-type", "application/json")
	client.SetHeader("x-api-key", apiKey)
	client.SetTimeout(30 * time.Second)

	instrumentResty(client, "divemeets-skill-rating/store")

	return &GraphQLStore{client: client, endpoint: endpoint}
}

// Client exposes the underlying HTTP client.
func (s *GraphQLStore) Client() *resty.Client {
	return s.client
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables"`
}

type graphQLError struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// diverNode is the wire shape of a DiveMeetsDiver.
type diverNode struct {
	ID                string  `json:"id"`
	FirstName         string  `json:"firstName"`
	LastName          string  `json:"lastName"`
	Gender            string  `json:"gender"`
	FinaAge           *int    `json:"finaAge"`
	HSGradYear        *int    `json:"hsGradYear"`
	SpringboardRating float64 `json:"springboardRating"`
	PlatformRating    float64 `json:"platformRating"`
	TotalRating       float64 `json:"totalRating"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
	Version           int     `json:"_version"`
	Deleted           *bool   `json:"_deleted"`
	LastChangedAt     int64   `json:"_lastChangedAt"`
}

func (n *diverNode) record() *models.DiverRecord {
	rec := &models.DiverRecord{
		ID:                n.ID,
		FirstName:         n.FirstName,
		LastName:          n.LastName,
		Gender:            n.Gender,
		FinaAge:           n.FinaAge,
		HSGradYear:        n.HSGradYear,
		SpringboardRating: n.SpringboardRating,
		PlatformRating:    n.PlatformRating,
		TotalRating:       n.TotalRating,
		Version:           n.Version,
		Deleted:           n.Deleted != nil && *n.Deleted,
		LastChangedAt:     fromMillis(n.LastChangedAt),
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, n.CreatedAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, n.UpdatedAt)
	return rec
}

func ratingInput(rec *models.DiverRecord) map[string]any {
	return map[string]any{
		"id":                rec.ID,
		"firstName":         rec.FirstName,
		"lastName":          rec.LastName,
		"gender":            rec.Gender,
		"finaAge":           rec.FinaAge,
		"hsGradYear":        rec.HSGradYear,
		"springboardRating": rec.SpringboardRating,
		"platformRating":    rec.PlatformRating,
		"totalRating":       rec.TotalRating,
	}
}

func (s *GraphQLStore) Get(ctx context.Context, id string) (*models.DiverRecord, error) {
	var data struct {
		Node *diverNode `json:"getDiveMeetsDiver"`
	}
	if err := s.execute(ctx, "getDiveMeetsDiver", getDiverQuery, map[string]any{"id": id}, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, ErrNotFound
	}
	return data.Node.record(), nil
}

func (s *GraphQLStore) Create(ctx context.Context, rec *models.DiverRecord) (*models.DiverRecord, error) {
	input := ratingInput(rec)
	input["_ttl"] = nil

	var data struct {
		Node *diverNode `json:"createDiveMeetsDiver"`
	}
	vars := map[string]any{"createDiveMeetsDiverInput": input}
	if err := s.execute(ctx, "createDiveMeetsDiver", createDiverMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, fmt.Errorf("createDiveMeetsDiver: empty result for %s", rec.ID)
	}
	return data.Node.record(), nil
}

func (s *GraphQLStore) Update(ctx context.Context, rec *models.DiverRecord, expectedVersion int) (*models.DiverRecord, error) {
	input := ratingInput(rec)
	input["_version"] = expectedVersion

	var data struct {
		Node *diverNode `json:"updateDiveMeetsDiver"`
	}
	vars := map[string]any{"updateDiveMeetsDiverInput": input}
	if err := s.execute(ctx, "updateDiveMeetsDiver", updateDiverMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.Node == nil {
		return nil, ErrNotFound
	}
	return data.Node.record(), nil
}

func (s *GraphQLStore) Delete(ctx context.Context, id string, expectedVersion int) error {
	var data struct {
		Node *diverNode `json:"deleteDiveMeetsDiver"`
	}
	vars := map[string]any{
		"deleteDiveMeetsDiverInput": map[string]any{"id": id, "_version": expectedVersion},
	}
	if err := s.execute(ctx, "deleteDiveMeetsDiver", deleteDiverMutation, vars, &data); err != nil {
		return err
	}
	if data.Node == nil {
		return ErrNotFound
	}
	return nil
}

// CountStale pages through every record and counts those last changed at or before the cutoff.
func (s *GraphQLStore) CountStale(ctx context.Context, before time.Time) (int, error) {
	cutoff := toMillis(before)
	count := 0
	var nextToken *string

	for {
		var data struct {
			List struct {
				Items     []diverNode `json:"items"`
				NextToken *string     `json:"nextToken"`
			} `json:"listDiveMeetsDivers"`
		}
		vars := map[string]any{"limit": listPageSize, "nextToken": nextToken}
		if err := s.execute(ctx, "listDiveMeetsDivers", listDiversQuery, vars, &data); err != nil {
			return 0, err
		}
		for _, item := range data.List.Items {
			if item.LastChangedAt <= cutoff {
				count++
			}
		}
		if data.List.NextToken == nil || *data.List.NextToken == "" {
			return count, nil
		}
		nextToken = data.List.NextToken
	}
}

func (s *GraphQLStore) execute(ctx context.Context, operation, query string, vars map[string]any, out any) error {
	var body graphQLResponse
	res, err := s.client.R().
		SetContext(ctx).
		SetBody(graphQLRequest{Query: query, OperationName: operation, Variables: vars}).
		SetResult(&body).
		Post(s.endpoint)
	if err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if res.IsError() {
		return fmt.Errorf("%s: http status %d", operation, res.StatusCode())
	}
	if len(body.Errors) > 0 {
		return graphQLFailure(operation, body.Errors)
	}
	if len(body.Data) == 0 {
		return fmt.Errorf("%s: response has no data", operation)
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("%s: decode data: %w", operation, err)
	}
	return nil
}

// graphQLFailure maps the API's conflict error types onto the store sentinels.
func graphQLFailure(operation string, errs []graphQLError) error {
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Message)
	}
	detail := strings.Join(messages, "; ")

	for _, e := range errs {
		switch {
		case e.ErrorType == "ConflictUnhandled":
			return fmt.Errorf("%s: %s: %w", operation, detail, ErrVersionConflict)
		case strings.Contains(e.ErrorType, "ConditionalCheckFailed"):
			if strings.HasPrefix(operation, "create") {
				return fmt.Errorf("%s: %s: %w", operation, detail, ErrAlreadyExists)
			}
			return fmt.Errorf("%s: %s: %w", operation, detail, ErrVersionConflict)
		}
	}
	return fmt.Errorf("%s: %s", operation, detail)
}
