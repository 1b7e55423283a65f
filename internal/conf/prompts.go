package conf

import "fmt"

// Summarization prompts. The operational directives are fixed: bounded
// length, organized by topic and channel, unsafe content redacted or
// generalized, and the "-san" honorific on author display names.

// BuildSummaryPrompts returns the (system, user-prefix) prompt pair for one
// summarization call. The caller appends the combined conversation document
// to the user prefix.
func BuildSummaryPrompts(tenantName string, isWeekly bool) (system, userPrefix string) {
	if isWeekly {
		return buildWeeklySystem(tenantName), weeklyUserPrefix
	}
	return buildDailySystem(tenantName), dailyUserPrefix
}

func buildDailySystem(tenantName string) string {
	return fmt.Sprintf(`You are an expert at summarizing chat logs for the '%s' workspace.
Survey all channels and produce a single integrated summary.`, tenantName)
}

func buildWeeklySystem(tenantName string) string {
	return fmt.Sprintf(`You are an expert at summarizing chat logs for the '%s' workspace.
Analyze a full week of activity from a high level and produce a concise, readable summary.`, tenantName)
}

const dailyUserPrefix = `Summarize the following chat channel conversations.

Key instructions:
- Summarize across all channels as one integrated report
- State clearly "who said what in #channel-name"
- Prioritize important information, decisions, and notable topics
- Keep the summary concise and readable (within 1800 characters)
- No preamble or meta commentary of any kind
- Structure the output with headings and bullet points
- Append the honorific "-san" to every author display name that appears

Safety instructions:
- Exclude or generalize any inappropriate, violent, or discriminatory content
- For sensitive topics, extract only the constructive aspects
- Ignore personal attacks and defamatory content
- Keep the overall summary positive and constructive

Conversations:

`

const weeklyUserPrefix = `The following is one week of chat channel conversations.

Key instructions:
- Summarize the week's activity as a whole
- Organize major topics, decisions, and progress
- Analyze activity trends per channel
- Highlight important events and notable discussions
- Mention shifts between the first and second half of the week, if any
- Keep the summary concise and readable (within 1800 characters)
- Structure the output with headings and bullet points
- Append the honorific "-san" to every author display name that appears

Safety instructions:
- Exclude or generalize any inappropriate, violent, or discriminatory content
- For sensitive topics, extract only the constructive aspects
- Ignore personal attacks and defamatory content
- Keep the overall summary positive and constructive

Conversations:

`
