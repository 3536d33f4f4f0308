package ghostwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/termsync/termsync/entry"
)

const insertMutation = `
mutation InsertTermsyncLog (
    $oplog: bigint!, $startDate: timestamptz, $endDate: timestamptz, $sourceIp: String,
    $destIp: String, $tool: String, $userContext: String, $command: String, $description: String,
    $output: String, $comments: String, $operatorName: String
) {
    insert_oplogEntry(objects: {
        oplog: $oplog,
        startDate: $startDate,
        endDate: $endDate,
        sourceIp: $sourceIp,
        destIp: $destIp,
        tool: $tool,
        userContext: $userContext,
        command: $command,
        description: $description,
        output: $output,
        comments: $comments,
        operatorName: $operatorName,
    }) {
        returning { id }
    }
}`

const updateMutation = `
mutation UpdateTermsyncLog (
    $gw_id: bigint!, $oplog: bigint!, $startDate: timestamptz, $endDate: timestamptz,
    $sourceIp: String, $destIp: String, $tool: String, $userContext: String, $command: String,
    $description: String, $output: String, $comments: String, $operatorName: String
) {
    update_oplogEntry(where: {
        id: {_eq: $gw_id}
    }, _set: {
        oplog: $oplog,
        startDate: $startDate,
        endDate: $endDate,
        sourceIp: $sourceIp,
        destIp: $destIp,
        tool: $tool,
        userContext: $userContext,
        command: $command,
        description: $description,
        output: $output,
        comments: $comments,
        operatorName: $operatorName,
    }) {
        returning { id }
    }
}`

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Insert *mutationResult `json:"insert_oplogEntry"`
		Update *mutationResult `json:"update_oplogEntry"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type mutationResult struct {
	Returning []struct {
		ID int `json:"id"`
	} `json:"returning"`
}

func (c *Client) createGraphQL(ctx context.Context, e *entry.Entry) (int, error) {
	vars := e.GraphQLVars()
	vars["oplog"] = c.oplogID

	resp, err := c.execute(ctx, insertMutation, vars)
	if err != nil {
		return 0, err
	}

	id, err := firstID(resp.Data.Insert)
	if err != nil {
		return 0, err
	}
	log.Printf("[ghostwriter] created entry %d via GraphQL", id)
	return id, nil
}

func (c *Client) updateGraphQL(ctx context.Context, gwID int, e *entry.Entry) (int, error) {
	vars := e.GraphQLVars()
	vars["oplog"] = c.oplogID
	vars["gw_id"] = gwID

	resp, err := c.execute(ctx, updateMutation, vars)
	if err != nil {
		return 0, err
	}

	id, err := firstID(resp.Data.Update)
	if err != nil {
		return 0, err
	}
	log.Printf("[ghostwriter] updated entry %d via GraphQL", id)
	return id, nil
}

func (c *Client) execute(ctx context.Context, query string, vars map[string]any) (*graphqlResponse, error) {
	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var resp graphqlResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed GraphQL response (status %d): %w", httpResp.StatusCode, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("ghostwriter: GraphQL query failed: %s", resp.Errors[0].Message)
	}
	return &resp, nil
}

// firstID extracts the id from a mutation's "returning" list. An update
// that matched no rows returns an empty list, which means the target entry
// does not exist.
func firstID(result *mutationResult) (int, error) {
	if result == nil {
		return 0, fmt.Errorf("ghostwriter: response carried no mutation data")
	}
	if len(result.Returning) == 0 {
		return 0, ErrNotFound
	}
	return result.Returning[0].ID, nil
}
