package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// KnowledgeInput searches help articles.
type KnowledgeInput struct {
	Query      string
	Category   string
	MaxResults int
}

// Summary implements Input.
func (in KnowledgeInput) Summary() string {
	return fmt.Sprintf("search %q category=%s max=%d", in.Query, in.Category, in.MaxResults)
}

// Article is a knowledge base entry.
type Article struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Content   string  `json:"content"`
	Relevance float64 `json:"relevance_score"`
}

// SearchResult is a ranked article list.
type SearchResult struct {
	Query    string    `json:"query"`
	Category string    `json:"category"`
	Articles []Article `json:"results"`
}

func (r SearchResult) String() string {
	ids := make([]string, 0, len(r.Articles))
	for _, a := range r.Articles {
		ids = append(ids, a.ID)
	}
	return fmt.Sprintf("%d articles: %s", len(r.Articles), strings.Join(ids, ", "))
}

// Format renders the articles for prompts.
func (r SearchResult) Format() string {
	if len(r.Articles) == 0 {
		return "No relevant articles found"
	}
	lines := make([]string, 0, len(r.Articles))
	for _, a := range r.Articles {
		lines = append(lines, fmt.Sprintf("- [%s] %s: %s", a.ID, a.Title, a.Content))
	}
	return strings.Join(lines, "\n")
}

// KnowledgeTool searches a fixed article set.
type KnowledgeTool struct {
	articles []Article
}

// NewKnowledgeTool creates the knowledge_base tool with the built-in articles.
func NewKnowledgeTool() *KnowledgeTool {
	return &KnowledgeTool{articles: []Article{
		{ID: "KB-001", Title: "How to reset your password", Category: "account", Relevance: 0.95,
			Content: "To reset your password, go to Settings > Security > Reset Password. You'll receive an email with a reset link."},
		{ID: "KB-002", Title: "Understanding your bill", Category: "billing", Relevance: 0.92,
			Content: "Your bill includes your subscription tier, any add-ons, and usage charges. Pro tier is $49.99/month."},
		{ID: "KB-003", Title: "Troubleshooting connection issues", Category: "technical", Relevance: 0.88,
			Content: "If you're experiencing connection issues, try: 1) Clear browser cache 2) Check firewall settings 3) Restart your device."},
		{ID: "KB-004", Title: "How to request a refund", Category: "billing", Relevance: 0.90,
			Content: "Refunds can be requested within 30 days of payment. Contact support with your payment ID and reason."},
		{ID: "KB-005", Title: "Updating account information", Category: "account", Relevance: 0.85,
			Content: "Update your email, name, or billing address in Settings > Account > Profile Information."},
		{ID: "KB-006", Title: "API rate limits explained", Category: "technical", Relevance: 0.87,
			Content: "API rate limits vary by tier: Free (100/day), Pro (1000/day), Enterprise (unlimited)."},
		{ID: "KB-007", Title: "Subscription upgrade process", Category: "billing", Relevance: 0.89,
			Content: "Upgrade your subscription at any time. You'll be prorated for the remaining time in your billing cycle."},
		{ID: "KB-008", Title: "Two-factor authentication setup", Category: "account", Relevance: 0.93,
			Content: "Enable 2FA in Settings > Security > Two-Factor Authentication. Use an authenticator app like Google Authenticator."},
	}}
}

// Name implements Tool.
func (t *KnowledgeTool) Name() string { return KnowledgeBase }

// Description implements Tool.
func (t *KnowledgeTool) Description() string {
	return "Search the knowledge base for help articles and documentation"
}

// Execute implements Tool.
func (t *KnowledgeTool) Execute(ctx context.Context, in Input) Outcome {
	q, isSearch := in.(KnowledgeInput)
	if !isSearch {
		return unsupported(t.Name(), in)
	}
	if err := ctx.Err(); err != nil {
		return fail("knowledge base: %v", err)
	}
	category := strings.ToLower(q.Category)
	if category == "" {
		category = "all"
	}
	limit := q.MaxResults
	if limit <= 0 {
		limit = 3
	}

	words := strings.Fields(strings.ToLower(q.Query))
	var results []Article
	for _, a := range t.articles {
		if category != "all" && a.Category != category {
			continue
		}
		title := strings.ToLower(a.Title)
		content := strings.ToLower(a.Content)
		for _, w := range words {
			if strings.Contains(title, w) {
				a.Relevance += 0.1
			}
			if strings.Contains(content, w) {
				a.Relevance += 0.05
			}
		}
		results = append(results, a)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Relevance > results[j].Relevance })
	return ok(SearchResult{Query: q.Query, Category: category, Articles: head(results, limit)})
}
