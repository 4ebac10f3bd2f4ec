package tools

import (
	"context"
	"fmt"
)

// schemaString builds a one-property object schema. Most builtin tools
// take a single string argument.
func schemaString(name, description string, required bool) map[string]any {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{"type": "string", "description": description},
		},
	}
	if required {
		schema["required"] = []string{name}
	}
	return schema
}

// KnowledgeBase answers questions from persisted community content.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, limit int) (string, error)
	RecentDigest(ctx context.Context) (string, error)
}

// KnowledgeTools builds the "knowledge" tool set handlers.
func KnowledgeTools(kb KnowledgeBase) []Tool {
	return []Tool{
		{
			Name:        "search_knowledge",
			UsageHint:   "Search past discussions, answers, and shared resources.",
			Description: "Searches the community knowledge base for content matching a query. Returns the most relevant excerpts.",
			InputSchema: schemaString("query", "What to search for", true),
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				query := StringArg(input, "query", "")
				if query == "" {
					return "", fmt.Errorf("query is required")
				}
				return kb.Search(ctx, query, IntArg(input, "limit", 5))
			},
		},
		{
			Name:        "get_recent_digest",
			UsageHint:   "Fetch the most recent community digest.",
			Description: "Returns the latest rendered community digest. Use when the user asks what happened recently.",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return kb.RecentDigest(ctx)
			},
		},
	}
}

// MemberDirectory resolves member profiles and stored insights.
type MemberDirectory interface {
	Lookup(ctx context.Context, memberID string) (string, error)
	Insights(ctx context.Context, memberID string) (string, error)
}

// MemberTools builds the "members" tool set handlers. These are
// user-scoped: they only make sense with live per-user context.
func MemberTools(dir MemberDirectory) []Tool {
	return []Tool{
		{
			Name:        "lookup_member",
			UsageHint:   "Look up a member's profile and membership status.",
			Description: "Fetches a member's profile, membership tier, and admin flags by member id.",
			InputSchema: schemaString("member_id", "The member to look up", true),
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				id := StringArg(input, "member_id", "")
				if id == "" {
					return "", fmt.Errorf("member_id is required")
				}
				return dir.Lookup(ctx, id)
			},
		},
		{
			Name:        "list_member_insights",
			UsageHint:   "List stored insights about a member.",
			Description: "Returns previously learned insights about a member, one per line.",
			InputSchema: schemaString("member_id", "The member whose insights to list", true),
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				id := StringArg(input, "member_id", "")
				if id == "" {
					return "", fmt.Errorf("member_id is required")
				}
				return dir.Insights(ctx, id)
			},
		},
	}
}

// BillingService answers billing and payment questions.
type BillingService interface {
	Status(ctx context.Context, accountID string) (string, error)
	PaymentHistory(ctx context.Context, accountID string, limit int) (string, error)
}

// BillingTools builds the precision-critical "billing" tool set handlers.
func BillingTools(billing BillingService) []Tool {
	return []Tool{
		{
			Name:        "get_billing_status",
			UsageHint:   "Check a subscription's current billing status.",
			Description: "Returns the current subscription state, plan, and next charge date for an account.",
			InputSchema: schemaString("account_id", "The account to check", true),
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				id := StringArg(input, "account_id", "")
				if id == "" {
					return "", fmt.Errorf("account_id is required")
				}
				return billing.Status(ctx, id)
			},
		},
		{
			Name:        "get_payment_history",
			UsageHint:   "Retrieve recent payments for an account.",
			Description: "Returns the most recent payments for an account, newest first.",
			InputSchema: schemaString("account_id", "The account whose payments to list", true),
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				id := StringArg(input, "account_id", "")
				if id == "" {
					return "", fmt.Errorf("account_id is required")
				}
				return billing.PaymentHistory(ctx, id, IntArg(input, "limit", 10))
			},
		},
	}
}

// AdminService exposes administrative statistics and moderation.
type AdminService interface {
	CommunityStats(ctx context.Context) (string, error)
	FlagContent(ctx context.Context, messageID, reason string) (string, error)
}

// AdminTools builds the user-scoped "admin" tool set handlers.
func AdminTools(admin AdminService) []Tool {
	return []Tool{
		{
			Name:        "get_community_stats",
			UsageHint:   "Fetch community activity statistics.",
			Description: "Returns member counts, activity levels, and recent trends for the community.",
			InputSchema: map[string]any{"type": "object"},
			Handler: func(ctx context.Context, _ map[string]any) (string, error) {
				return admin.CommunityStats(ctx)
			},
		},
		{
			Name:        "flag_content",
			UsageHint:   "Flag a message for moderator review.",
			Description: "Marks a message for moderator attention with a reason.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"message_id": map[string]any{"type": "string"},
					"reason":     map[string]any{"type": "string"},
				},
				"required": []string{"message_id"},
			},
			Handler: func(ctx context.Context, input map[string]any) (string, error) {
				id := StringArg(input, "message_id", "")
				if id == "" {
					return "", fmt.Errorf("message_id is required")
				}
				return admin.FlagContent(ctx, id, StringArg(input, "reason", "unspecified"))
			},
		},
	}
}

// WebSearcher performs a web search and returns rendered results.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// WebSearchTool builds the built-in web-search tool. The eval harness
// never registers it: web results make replays nondeterministic.
func WebSearchTool(searcher WebSearcher) Tool {
	return Tool{
		Name:        "web_search",
		UsageHint:   "Search the web for current information.",
		Description: "Searches the public web and returns a short list of results with snippets.",
		InputSchema: schemaString("query", "The search query", true),
		Handler: func(ctx context.Context, input map[string]any) (string, error) {
			query := StringArg(input, "query", "")
			if query == "" {
				return "", fmt.Errorf("query is required")
			}
			return searcher.Search(ctx, query)
		},
	}
}
