package dispatch

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/spf13/cast"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

// granteeNameUnresolvedTeam is used when a grant references a team the API
// cannot resolve; these are almost always the implicit org-wide group
// rather than a real missing team, so the call succeeds with this label.
const granteeNameUnresolvedTeam = "All Organization Members (implicit team)"

// payloadOf converts a response body into a tool payload. Binary bodies
// (pdf, png, xlsx downloads) are base64-encoded alongside their content
// type, the way the original server wrapped non-JSON responses.
func payloadOf(resp *sigma.Response) any {
	if resp.Payload != nil {
		return resp.Payload
	}
	if len(resp.Raw) == 0 {
		return map[string]any{}
	}
	if strings.HasPrefix(resp.ContentType, "text/") {
		return map[string]any{"data": string(resp.Raw), "contentType": resp.ContentType}
	}
	return map[string]any{
		"data":        base64.StdEncoding.EncodeToString(resp.Raw),
		"contentType": resp.ContentType,
		"encoding":    "base64",
	}
}

func shapeDefault(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result {
	return Success(payloadOf(resp), "")
}

// shapeList passes the upstream next-page cursor through untouched. The
// cursor is opaque; nothing here interprets it.
func shapeList(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result {
	nextPage := ""
	if m, ok := resp.Payload.(map[string]any); ok {
		if s, ok := m["nextPage"].(string); ok {
			nextPage = s
		} else if s, ok := m["nextPageToken"].(string); ok {
			nextPage = s
		}
	}
	return Success(payloadOf(resp), nextPage)
}

func shapeExport(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result {
	res := Success(payloadOf(resp), "")
	if m, ok := resp.Payload.(map[string]any); ok {
		res.QueryID, _ = m["queryId"].(string)
	}
	return res
}

// shapeDownload turns the upstream's "no content yet" answer into Pending.
// Each call is a single probe; retry scheduling belongs to the caller.
func shapeDownload(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result {
	if resp.Status == http.StatusNoContent || resp.IsEmpty() {
		return Pending(cast.ToString(args["query_id"]))
	}
	return Success(payloadOf(resp), "")
}

// shapeGrants enriches grant entries with grantee display names via
// auxiliary member/team lookups, deduplicated per call. Member lookups are
// best-effort; an unresolvable team gets the implicit-group sentinel.
func shapeGrants(ctx context.Context, c *sigma.Client, resp *sigma.Response, args map[string]any) Result {
	payload, ok := resp.Payload.(map[string]any)
	if !ok {
		return shapeList(ctx, c, resp, args)
	}
	entries, ok := payload["entries"].([]any)
	if !ok {
		return shapeList(ctx, c, resp, args)
	}

	names := map[string]string{}
	for _, raw := range entries {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		grantee, ok := entry["grantee"].(map[string]any)
		if !ok {
			continue
		}
		if memberID, _ := grantee["memberId"].(string); memberID != "" {
			if name := lookupName(ctx, c, names, "member:"+memberID, "/v2/members/"+memberID, memberName, ""); name != "" {
				entry["granteeName"] = name
			}
		} else if teamID, _ := grantee["teamId"].(string); teamID != "" {
			entry["granteeName"] = lookupName(ctx, c, names, "team:"+teamID, "/v2/teams/"+teamID, teamName, granteeNameUnresolvedTeam)
		}
	}
	return shapeList(ctx, c, resp, args)
}

// lookupName resolves one grantee display name, caching by key and
// falling back to the sentinel on any upstream failure.
func lookupName(ctx context.Context, c *sigma.Client, cache map[string]string, key, endpoint string, extract func(map[string]any) string, sentinel string) string {
	if name, ok := cache[key]; ok {
		return name
	}
	name := sentinel
	if resp, err := c.Do(ctx, http.MethodGet, endpoint, nil, nil); err == nil {
		if m, ok := resp.Payload.(map[string]any); ok {
			if extracted := extract(m); extracted != "" {
				name = extracted
			}
		}
	}
	cache[key] = name
	return name
}

func memberName(m map[string]any) string {
	first, _ := m["firstName"].(string)
	last, _ := m["lastName"].(string)
	if full := strings.TrimSpace(first + " " + last); full != "" {
		return full
	}
	email, _ := m["email"].(string)
	return email
}

func teamName(m map[string]any) string {
	name, _ := m["name"].(string)
	return name
}
