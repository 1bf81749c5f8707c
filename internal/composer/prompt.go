package composer

import (
	"fmt"

	"github.com/kalambet/gapscout/internal/search"
)

// Prompt is the system/user message pair sent to the chat-completion API.
type Prompt struct {
	System string
	User   string
}

const solverSystemPrompt = `You are an automation expert analyzing a manual workflow. Respond with ONLY valid JSON (no markdown, no code blocks, no explanations).

CRITICAL: The "action" field MUST be a JSON object, NOT a string.

Structure:
{
  "title": "Short problem name",
  "domain": "Industry category",
  "role": "Who faces this problem",
  "overview": "What they're manually doing (2-3 sentences with specific steps)",
  "gap": "Why it's still manual (2-3 sentences with real barriers from discussions)",
  "automation": "**Quick Win (No-Code):** Use [Tool X] at $Y/mo to [specific workflow]\n\n**Better (Low-Code):** Use [Approach] with [Tech] to [specific workflow]\n\n**Best (Full Automation):** Use [Enterprise Tool] at $Z/mo for [complete solution]",
  "action": {
    "diy": {
      "description": "How to build it yourself with specific tools",
      "resources": [
        {"type": "tutorial", "title": "Actual tutorial name", "url": "https://youtube.com/specific-video", "platform": "YouTube", "cost": "Free"},
        {"type": "tool", "title": "Make.com", "url": "https://make.com", "cost": "$9/mo"},
        {"type": "template", "title": "Template name", "url": "https://real-url.com", "platform": "Notion"}
      ]
    },
    "existing_solutions": [
      {"name": "Real Tool Name", "url": "https://actualtool.com", "cost": "$49/mo", "description": "Specific feature it provides"}
    ],
    "build_opportunity": {
      "viable": true,
      "reason": "Specific market gap based on discussions",
      "search_query": "relevant search for builder mode"
    }
  },
  "source_url": "URL of the discussion this analysis is mostly based on, copied exactly",
  "sentiment": {"frustration_level": 8, "urgency_score": 7, "willingness_to_pay": 6}
}

IMPORTANT RULES:
1. "action" MUST be a JSON object, never a string
2. Include 2-3 real resources with actual URLs (search YouTube/Google for real tutorials)
3. Include 2-3 real existing solutions with actual pricing
4. Use real tool names (Make.com, Zapier, n8n, etc.)
5. DO NOT use placeholder URLs like "https://..."
6. "source_url" must be one of the discussion URLs you were given
7. Sentiment scores are integers from 1 to 10
8. DO NOT wrap response in markdown code blocks`

const builderSystemPrompt = `You are a product researcher mining discussions for automation opportunities. Extract exactly 3 distinct problems. Respond with ONLY a valid JSON array (no markdown, no code blocks, no explanations).

Each element has: title, domain, role, overview, gap, automation, action (plain text), source_url, sentiment.

Example:
[
  {
    "title": "Manual Invoice Matching",
    "domain": "Finance",
    "role": "Bookkeeper",
    "overview": "Bookkeepers copy invoice lines into spreadsheets and match them against bank exports by hand every week.",
    "gap": "Bank exports differ per institution and small firms cannot justify enterprise reconciliation suites.",
    "automation": "**Quick Win (No-Code):** Zapier parser into Google Sheets\n\n**Better (Low-Code):** n8n workflow with OCR\n\n**Best (Full Automation):** Dedicated reconciliation SaaS",
    "action": "Day 1: collect sample exports. Day 2: build the parser. Day 3: pilot with one client.",
    "source_url": "https://www.reddit.com/r/Bookkeeping/comments/example",
    "sentiment": {"frustration_level": 7, "urgency_score": 6, "willingness_to_pay": 5}
  }
]

RULES:
1. Return an ARRAY of 3 objects, each a different problem
2. "source_url" must be one of the discussion URLs you were given
3. Sentiment scores are integers from 1 to 10
4. DO NOT wrap response in markdown code blocks`

// BuildPrompt selects the mode template and embeds the query and the
// rendered discussion context in the user message.
func BuildPrompt(mode search.Mode, query, discussions string) Prompt {
	system := solverSystemPrompt
	if mode == search.ModeBuilder {
		system = builderSystemPrompt
	}
	return Prompt{
		System: system,
		User:   fmt.Sprintf("Analyze: \"%s\"\n\nDiscussions:\n%s\n\nRespond with valid JSON only.", query, discussions),
	}
}
