package dispatch

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cast"

	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

// Shared pagination arguments. Every list-style tool takes a limit and an
// opaque page cursor; the cursor is passed through to the API untouched.
func argLimit(def any) Arg {
	return Arg{
		Name: "limit", Type: "integer", In: "query",
		Default:     def,
		Description: "Number of results to return per page (max: 1000)",
	}
}

func argPage() Arg {
	return Arg{
		Name: "page", Type: "string", In: "query",
		Description: "Page token from nextPage in a previous response",
	}
}

func argWorkbookID() Arg {
	return Arg{
		Name: "workbook_id", Type: "string", In: "path", Required: true,
		Description: "Unique identifier of the workbook",
	}
}

func argElementID() Arg {
	return Arg{
		Name: "element_id", Type: "string", In: "path", Required: true,
		Description: "Unique identifier of the workbook element",
	}
}

// Export format legality per target. A full-workbook or single-page export
// renders a document; tabular formats are only meaningful for a single
// element.
var exportFormats = []string{"csv", "json", "jsonl", "xlsx", "pdf", "png"}

var legalExportFormats = map[string]map[string]bool{
	"workbook": {"pdf": true, "png": true, "xlsx": true},
	"page":     {"pdf": true, "png": true, "xlsx": true},
	"element":  {"csv": true, "json": true, "jsonl": true, "xlsx": true, "pdf": true, "png": true},
}

// exportTarget derives the export target from which identifiers are set.
func exportTarget(args map[string]any) string {
	if s, _ := args["element_id"].(string); s != "" {
		return "element"
	}
	if s, _ := args["page_id"].(string); s != "" {
		return "page"
	}
	return "workbook"
}

func validateExport(args map[string]any) error {
	pageID, _ := args["page_id"].(string)
	elementID, _ := args["element_id"].(string)
	if pageID != "" && elementID != "" {
		return sigma.NewError(sigma.KindInvalidArgument, "page_id and element_id are mutually exclusive; supply at most one")
	}
	target := exportTarget(args)
	format := cast.ToString(args["format"])
	if !legalExportFormats[target][format] {
		return sigma.NewError(sigma.KindInvalidArgument, "format %q is not legal for %s exports", format, target)
	}
	return nil
}

func buildExportBody(args map[string]any) (any, error) {
	format := map[string]any{"type": cast.ToString(args["format"])}
	if v, ok := args["layout"]; ok {
		format["layout"] = cast.ToString(v)
	}
	if v, ok := args["width_px"]; ok {
		format["widthPx"] = cast.ToInt(v)
	}
	if v, ok := args["height_px"]; ok {
		format["heightPx"] = cast.ToInt(v)
	}
	if v, ok := args["row_limit"]; ok {
		format["rowLimit"] = cast.ToInt(v)
	}
	if v, ok := args["offset"]; ok {
		format["offset"] = cast.ToInt(v)
	}

	body := map[string]any{"format": format}
	if v, _ := args["element_id"].(string); v != "" {
		body["elementId"] = v
	}
	if v, _ := args["page_id"].(string); v != "" {
		body["pageId"] = v
	}
	if v, _ := args["name"].(string); v != "" {
		body["name"] = v
	}
	return body, nil
}

// validateGrants checks that every grant entry targets exactly one of a
// member or a team.
func validateGrants(args map[string]any) error {
	grants, _ := args["grants"].([]any)
	if len(grants) == 0 {
		return sigma.NewError(sigma.KindInvalidArgument, "grants must contain at least one entry")
	}
	for i, raw := range grants {
		entry, ok := raw.(map[string]any)
		if !ok {
			return sigma.NewError(sigma.KindInvalidArgument, "grants[%d] must be an object", i)
		}
		memberID, _ := entry["member_id"].(string)
		teamID, _ := entry["team_id"].(string)
		switch {
		case memberID == "" && teamID == "":
			return sigma.NewError(sigma.KindInvalidArgument, "grants[%d] must specify member_id or team_id", i)
		case memberID != "" && teamID != "":
			return sigma.NewError(sigma.KindInvalidArgument, "grants[%d] must specify member_id or team_id, not both", i)
		}
		if perm := cast.ToString(entry["permission"]); perm != "view" && perm != "explore" && perm != "edit" {
			return sigma.NewError(sigma.KindInvalidArgument, "grants[%d] permission must be one of view, explore, edit", i)
		}
	}
	return nil
}

func buildGrantsBody(args map[string]any) (any, error) {
	grants, _ := args["grants"].([]any)
	out := make([]any, 0, len(grants))
	for _, raw := range grants {
		entry := raw.(map[string]any)
		grantee := map[string]any{}
		if memberID, _ := entry["member_id"].(string); memberID != "" {
			grantee["memberId"] = memberID
		} else {
			grantee["teamId"] = entry["team_id"]
		}
		out = append(out, map[string]any{
			"grantee":    grantee,
			"permission": cast.ToString(entry["permission"]),
		})
	}
	body := map[string]any{"grants": out}
	if tag, _ := args["version_tag"].(string); tag != "" {
		body["versionTagId"] = tag
	}
	return body, nil
}

// validateGrantScope enforces that exactly one scoping identifier is set
// for grant listing.
func validateGrantScope(args map[string]any) error {
	set := 0
	for _, name := range []string{"workbook_id", "member_id", "team_id"} {
		if s, _ := args[name].(string); s != "" {
			set++
		}
	}
	if set != 1 {
		return sigma.NewError(sigma.KindInvalidArgument, "exactly one of workbook_id, member_id, team_id must be supplied")
	}
	return nil
}

func routeGrantList(args map[string]any) (string, error) {
	if id, _ := args["workbook_id"].(string); id != "" {
		return "/v2/workbooks/" + url.PathEscape(id) + "/grants", nil
	}
	if id, _ := args["member_id"].(string); id != "" {
		return "/v2/members/" + url.PathEscape(id) + "/grants", nil
	}
	if id, _ := args["team_id"].(string); id != "" {
		return "/v2/teams/" + url.PathEscape(id) + "/grants", nil
	}
	return "", fmt.Errorf("no grant scope argument supplied")
}

// Tools returns the full Sigma tool table. The registry compiles it once
// at startup; Dispatch only ever reads it.
func Tools() []Tool {
	return []Tool{
		{
			Name:        "sigma_list_workbooks",
			Description: "List all Sigma Computing workbooks",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks",
			Args:        []Arg{argLimit(50), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_get_workbook",
			Description: "Get detailed information about a specific workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}",
			Args:        []Arg{argWorkbookID()},
		},
		{
			Name:        "sigma_create_workbook",
			Description: "Create a new Sigma Computing workbook",
			Method:      http.MethodPost,
			Path:        "/v2/workbooks",
			Args: []Arg{
				{Name: "name", Type: "string", In: "body", Required: true, Description: "Name of the workbook"},
				{Name: "description", Type: "string", In: "body", Description: "Description of the workbook"},
				{Name: "folder_id", Wire: "folderId", Type: "string", In: "body", Description: "ID of the folder to create the workbook in"},
			},
		},
		{
			Name:        "sigma_list_workbook_tags",
			Description: "Get version tags for a specific workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/tags",
			Args:        []Arg{argWorkbookID(), argLimit(nil), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_list_workbook_pages",
			Description: "List all pages contained within a specified workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/pages",
			Args: []Arg{
				argWorkbookID(), argLimit(nil), argPage(),
				{Name: "tag", Type: "string", In: "query", Description: "Tag name to read pages from a version-tagged workbook"},
				{Name: "bookmark_id", Wire: "bookmarkId", Type: "string", In: "query", Description: "Bookmark ID to read pages from a saved view"},
			},
			Shape: shapeList,
		},
		{
			Name:        "sigma_list_page_elements",
			Description: "List all elements from a specific page within a workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/pages/{page_id}/elements",
			Args: []Arg{
				argWorkbookID(),
				{Name: "page_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the workbook page"},
				argLimit(nil), argPage(),
				{Name: "tag", Type: "string", In: "query", Description: "Tag name to read elements from a version-tagged workbook"},
				{Name: "bookmark_id", Wire: "bookmarkId", Type: "string", In: "query", Description: "Bookmark ID to read elements from a saved view"},
			},
			Shape: shapeList,
		},
		{
			Name:        "sigma_get_element_query",
			Description: "Get the SQL query associated with a specific element in a workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/elements/{element_id}/query",
			Args:        []Arg{argWorkbookID(), argElementID(), argLimit(nil), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_get_element_lineage",
			Description: "Get the lineage and dependencies of a specific workbook element",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/lineage/elements/{element_id}",
			Args:        []Arg{argWorkbookID(), argElementID()},
		},
		{
			Name:        "sigma_list_element_columns",
			Description: "List columns associated with a specific element within a workbook",
			Method:      http.MethodGet,
			Path:        "/v2/workbooks/{workbook_id}/elements/{element_id}/columns",
			Args:        []Arg{argWorkbookID(), argElementID(), argLimit(nil), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_list_datasets",
			Description: "List all Sigma Computing datasets",
			Method:      http.MethodGet,
			Path:        "/v2/datasets",
			Args:        []Arg{argLimit(50), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_get_dataset",
			Description: "Get detailed information about a specific dataset",
			Method:      http.MethodGet,
			Path:        "/v2/datasets/{dataset_id}",
			Args: []Arg{
				{Name: "dataset_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the dataset"},
			},
		},
		{
			Name:        "sigma_materialize_dataset",
			Description: "Trigger materialization of a dataset in the cloud data warehouse",
			Method:      http.MethodPost,
			Path:        "/v2/datasets/{dataset_id}/materialize",
			Args: []Arg{
				{Name: "dataset_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the dataset"},
				{Name: "schedule", Type: "string", In: "body", Default: "manual", Description: "Materialization schedule"},
			},
		},
		{
			Name:        "sigma_list_members",
			Description: "List all organization members (paginated)",
			Method:      http.MethodGet,
			Path:        "/v2.1/members",
			Args: []Arg{
				argLimit(50), argPage(),
				{Name: "search", Type: "string", In: "query", Description: "Search filter for members (URL encode @ as %40 for emails)"},
				{Name: "include_archived", Wire: "includeArchived", Type: "boolean", In: "query", Description: "Include archived users in results"},
				{Name: "include_inactive", Wire: "includeInactive", Type: "boolean", In: "query", Description: "Include inactive users in results"},
			},
			Shape: shapeList,
		},
		{
			Name:        "sigma_get_member",
			Description: "Get detailed information about a specific organization member by ID",
			Method:      http.MethodGet,
			Path:        "/v2/members/{member_id}",
			Args: []Arg{
				{Name: "member_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the member"},
			},
		},
		{
			Name:        "sigma_create_member",
			Description: "Create a new member in the organization",
			Method:      http.MethodPost,
			Path:        "/v2/members",
			Args: []Arg{
				{Name: "email", Type: "string", In: "body", Required: true, Description: "Email address of the new member"},
				{Name: "first_name", Wire: "firstName", Type: "string", In: "body", Required: true, Description: "First name of the member"},
				{Name: "last_name", Wire: "lastName", Type: "string", In: "body", Required: true, Description: "Last name of the member"},
				{Name: "account_type", Wire: "accountType", Type: "string", In: "body", Default: "viewer", Enum: []string{"viewer", "creator", "admin"}, Description: "Account type for the member"},
			},
		},
		{
			Name:        "sigma_list_member_teams",
			Description: "List all teams for a specific organization member",
			Method:      http.MethodGet,
			Path:        "/v2/members/{member_id}/teams",
			Args: []Arg{
				{Name: "member_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the member"},
				argLimit(50), argPage(),
			},
			Shape: shapeList,
		},
		{
			Name:        "sigma_list_teams",
			Description: "List all teams in the organization",
			Method:      http.MethodGet,
			Path:        "/v2/teams",
			Args:        []Arg{argLimit(nil), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_list_account_types",
			Description: "List all account types available in the organization",
			Method:      http.MethodGet,
			Path:        "/v2/accountTypes",
			Args: []Arg{
				{Name: "page_size", Wire: "pageSize", Type: "integer", In: "query", Default: 50, Description: "Number of results to return per page (max: 1000)"},
				{Name: "page_token", Wire: "pageToken", Type: "string", In: "query", Description: "Page token for pagination"},
			},
			Shape: shapeList,
		},
		{
			Name:        "sigma_get_account_type_permissions",
			Description: "Get all feature permissions for a specific account type",
			Method:      http.MethodGet,
			Path:        "/v2/accountTypes/{account_type_id}/permissions",
			Args: []Arg{
				{Name: "account_type_id", Type: "string", In: "path", Required: true, Description: "Unique identifier of the account type"},
			},
		},
		{
			Name:        "sigma_list_connections",
			Description: "List data warehouse connection paths",
			Method:      http.MethodGet,
			Path:        "/v2/connections/paths",
			Args:        []Arg{argLimit(50), argPage()},
			Shape:       shapeList,
		},
		{
			Name:        "sigma_export_workbook",
			Description: "Start an export of a workbook, a single page, or a single element. Returns a queryId for sigma_download_export.",
			Method:      http.MethodPost,
			Path:        "/v2/workbooks/{workbook_id}/export",
			Args: []Arg{
				argWorkbookID(),
				{Name: "page_id", Type: "string", In: "body", Description: "Export only this page (pdf, png, xlsx)"},
				{Name: "element_id", Type: "string", In: "body", Description: "Export only this element (csv, json, jsonl, xlsx, pdf, png)"},
				{Name: "format", Type: "string", In: "body", Required: true, Enum: exportFormats, Description: "Export format; legality depends on the export target"},
				{Name: "layout", Type: "string", In: "body", Description: "Document layout for pdf exports"},
				{Name: "width_px", Type: "integer", In: "body", Description: "Image width in pixels for png exports"},
				{Name: "height_px", Type: "integer", In: "body", Description: "Image height in pixels for png exports"},
				{Name: "row_limit", Type: "integer", In: "body", Description: "Maximum number of rows for tabular exports"},
				{Name: "offset", Type: "integer", In: "body", Description: "Row offset for tabular exports"},
				{Name: "name", Type: "string", In: "body", Description: "Name for the exported file"},
			},
			Validate: validateExport,
			Body:     buildExportBody,
			Shape:    shapeExport,
		},
		{
			Name:        "sigma_download_export",
			Description: "Fetch the result of a previously started export. Reports pending while the export is still processing; retry later.",
			Method:      http.MethodGet,
			Path:        "/v2/query/{query_id}/download",
			Args: []Arg{
				{Name: "query_id", Type: "string", In: "path", Required: true, Description: "queryId returned by sigma_export_workbook"},
			},
			Shape: shapeDownload,
		},
		{
			Name:        "sigma_add_workbook_grants",
			Description: "Grant workbook access to members or teams",
			Method:      http.MethodPost,
			Path:        "/v2/workbooks/{workbook_id}/grants",
			Args: []Arg{
				argWorkbookID(),
				{
					Name: "grants", Type: "array", In: "body", Required: true,
					Description: "Grant entries; each targets exactly one of member_id or team_id",
					Items: map[string]any{
						"type": "object",
						"properties": map[string]any{
							"member_id":  map[string]any{"type": "string", "description": "Member to grant access to"},
							"team_id":    map[string]any{"type": "string", "description": "Team to grant access to"},
							"permission": map[string]any{"type": "string", "enum": []any{"view", "explore", "edit"}, "description": "Permission level"},
						},
						"required": []any{"permission"},
					},
				},
				{Name: "version_tag", Type: "string", In: "body", Description: "Scope the grants to a specific version-tagged state of the workbook"},
			},
			Validate: validateGrants,
			Body:     buildGrantsBody,
		},
		{
			Name:        "sigma_list_grants",
			Description: "List access grants scoped to exactly one of a workbook, a member, or a team, with grantee names resolved",
			Method:      http.MethodGet,
			Route:       routeGrantList,
			Args: []Arg{
				{Name: "workbook_id", Type: "string", In: "path", Description: "List grants on this workbook"},
				{Name: "member_id", Type: "string", In: "path", Description: "List grants held by this member"},
				{Name: "team_id", Type: "string", In: "path", Description: "List grants held by this team"},
				argLimit(nil), argPage(),
			},
			Validate: validateGrantScope,
			Shape:    shapeGrants,
		},
	}
}
