package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/xaenox/campus-chat/internal/storage"
	"go.uber.org/zap"
)

const (
	TablePrograms   = "programs"
	TableFAQs       = "faqs"
	TableSchoolInfo = "schoolInfo"

	defaultLimit = 10
	maxLimit     = 50
)

// allowedTables is re-checked at execution time even though the schema
// already restricts the value set. Schema and execution logic can drift
// independently; keep both checks.
var allowedTables = map[string]bool{
	TablePrograms:   true,
	TableFAQs:       true,
	TableSchoolInfo: true,
}

// QuerySpec is the tool's input contract. Limit is a pointer so an
// explicit 0 is distinguishable from an omitted value.
type QuerySpec struct {
	Table      string `json:"table"`
	SearchText string `json:"searchText,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
	Category   string `json:"category,omitempty"`
	Code       string `json:"code,omitempty"`
	Key        string `json:"key,omitempty"`
}

// QueryResult always marshals successfully back to the model. Failures
// are reported as data in Error, never as a fault that aborts the turn.
type QueryResult struct {
	Table   string `json:"table,omitempty"`
	Count   int    `json:"count"`
	Results []any  `json:"results"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// QueryTool is the sole data-access capability granted to the model. It
// only ever reads, from exactly three tables.
type QueryTool struct {
	storage storage.Storage
	logger  *zap.Logger
}

func NewQueryTool(storage storage.Storage, logger *zap.Logger) *QueryTool {
	return &QueryTool{
		storage: storage,
		logger:  logger,
	}
}

func (t *QueryTool) Name() string { return "queryDatabase" }

func (t *QueryTool) Description() string {
	return "Query the school database for information about programs, FAQs, or general school information. " +
		"Use this to answer student questions with accurate data from the database."
}

func (t *QueryTool) NeedsApproval() bool { return false }

func (t *QueryTool) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"table": {
				Type: jsonschema.String,
				Enum: []string{TablePrograms, TableFAQs, TableSchoolInfo},
				Description: "The table to query: 'programs' for degree programs, 'faqs' for frequently asked questions, " +
					"'schoolInfo' for general school information",
			},
			"searchText": {
				Type:        jsonschema.String,
				Description: "Optional text to search for in the table (searches across text fields)",
			},
			"limit": {
				Type:        jsonschema.Integer,
				Description: "Maximum number of results to return (default: 10, max: 50)",
			},
			"category": {
				Type:        jsonschema.String,
				Description: "For FAQs: filter by category",
			},
			"code": {
				Type:        jsonschema.String,
				Description: "For programs: filter by program code",
			},
			"key": {
				Type:        jsonschema.String,
				Description: "For schoolInfo: filter by specific key",
			},
		},
		Required: []string{"table"},
	}
}

func (t *QueryTool) Execute(ctx context.Context, arguments json.RawMessage) (json.RawMessage, error) {
	spec, err := t.validateArguments(arguments)
	if err != nil {
		t.logger.Warn("Rejected query arguments failing schema validation", zap.Error(err))
		return marshalResult(failure("Invalid query arguments. Please provide a valid table and filters."))
	}
	return marshalResult(t.run(ctx, spec))
}

// validateArguments checks the raw arguments against the declared input
// schema before any query construction. The table enum is enforced here
// and again by the execution-time allow-list in run; the two checks are
// independent on purpose, since schema and execution logic can drift
// separately.
func (t *QueryTool) validateArguments(arguments json.RawMessage) (QuerySpec, error) {
	params := t.Parameters()

	var spec QuerySpec
	if err := jsonschema.VerifySchemaAndUnmarshal(params, arguments, &spec); err != nil {
		return QuerySpec{}, fmt.Errorf("arguments do not match schema: %w", err)
	}

	// VerifySchemaAndUnmarshal checks types and required fields but not
	// enum membership; enforce the table value set declared in the schema.
	for _, allowed := range params.Properties["table"].Enum {
		if spec.Table == allowed {
			return spec, nil
		}
	}
	return QuerySpec{}, fmt.Errorf("table %q is not in the schema enum", spec.Table)
}

func (t *QueryTool) run(ctx context.Context, spec QuerySpec) QueryResult {
	// Security: the enum in the schema restricts table already; this is
	// the second, execution-level allow-list check.
	if !allowedTables[spec.Table] {
		t.logger.Warn("Blocked query outside table allow-list", zap.String("table", spec.Table))
		return failure("Access denied. You can only query programs, faqs, or schoolInfo tables.")
	}

	if spec.Limit != nil && *spec.Limit < 0 {
		return failure("Invalid limit. The limit must be zero or greater.")
	}
	limit := defaultLimit
	if spec.Limit != nil {
		limit = *spec.Limit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var (
		results []any
		err     error
	)
	switch spec.Table {
	case TablePrograms:
		programs, qerr := t.storage.SearchPrograms(ctx, storage.ProgramFilter{
			Code:       spec.Code,
			SearchText: spec.SearchText,
			Limit:      limit,
		})
		err = qerr
		for _, p := range programs {
			results = append(results, p)
		}
	case TableFAQs:
		faqs, qerr := t.storage.SearchFAQs(ctx, storage.FAQFilter{
			Category:   spec.Category,
			SearchText: spec.SearchText,
			Limit:      limit,
		})
		err = qerr
		for _, f := range faqs {
			results = append(results, f)
		}
	case TableSchoolInfo:
		infos, qerr := t.storage.SearchSchoolInfo(ctx, storage.SchoolInfoFilter{
			Key:        spec.Key,
			SearchText: spec.SearchText,
			Limit:      limit,
		})
		err = qerr
		for _, info := range infos {
			results = append(results, info)
		}
	}

	if err != nil {
		t.logger.Error("Query tool execution failed",
			zap.Error(err),
			zap.String("table", spec.Table))
		return failure(fmt.Sprintf("Failed to query %s table. Please try again.", spec.Table))
	}

	result := QueryResult{
		Table:   spec.Table,
		Count:   len(results),
		Results: results,
	}
	if result.Count == 0 {
		result.Results = []any{}
		if spec.SearchText != "" {
			result.Message = fmt.Sprintf("No results found in %s matching %q", spec.Table, spec.SearchText)
		} else {
			result.Message = fmt.Sprintf("No results found in %s", spec.Table)
		}
	}
	return result
}

func failure(message string) QueryResult {
	return QueryResult{
		Error:   message,
		Count:   0,
		Results: []any{},
	}
}

func marshalResult(result QueryResult) (json.RawMessage, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		// QueryResult holds only marshalable values; treat this as a
		// query failure rather than aborting the turn.
		payload, _ = json.Marshal(failure("Failed to encode query result."))
	}
	return payload, nil
}
