package llm

import (
	"strings"
)

// Prompt templates for every classification and generation task. Variables
// use {name} placeholders filled by Render.
const (
	// PromptIntent classifies a turn into explore/plan/followup/chat.
	PromptIntent = `You are a travel planning assistant. Analyze the user's intent and classify their request.

Recent conversation:
{recent_context}

Current user message: "{user_input}"

Classification rules:
- "explore": user wants travel destination suggestions, browsing travel options, or asking "where should I go"
- "plan": user has a specific destination in mind and wants to plan a trip (e.g. "plan a trip to Paris")
- "followup": user asks about an aspect of a trip already discussed (weather, flights, budget, activities, nearby places)
- "chat": everything else - greetings, capability questions, non-travel topics

Only use "explore" when they specifically want travel destination suggestions.

Return JSON only: {"intent": "explore|plan|followup|chat", "confidence": 0.0-1.0, "rationale": "one sentence"}`

	// PromptExtraction pulls trip attributes out of a turn.
	PromptExtraction = `Extract specific trip planning details from: "{user_input}"

Context from conversation: {chat_context}

Only extract details that are EXPLICITLY mentioned or clearly implied.

Return JSON with any of these keys (only if stated/implied):
- destination: specific place name
- origin: departure city
- date: travel date (YYYY-MM-DD if possible)
- duration: number of days
- travelers: number of people
- budget: budget amount
- interests: comma-separated preference tags
- correction: true if the user is correcting an earlier detail ("actually", "change that", "not X, Y")

Return JSON only.`

	// PromptQueryKind classifies a follow-up question by plan section.
	PromptQueryKind = `Classify this travel-related question into the most relevant category:

User question: "{user_input}"
Destination: {destination}

Categories: weather, activities, nearby, budget, flights, general

Respond with just the category name.`

	// PromptSafetyInput screens user input for policy concerns.
	PromptSafetyInput = `You are a safety advisor for a travel planning assistant. Analyze this user request for safety concerns:

User request: "{user_input}"

Assess for illegal activities, dangerous or unethical requests, off-topic harmful content, irresponsible tourism, and inappropriate personal requests.

IMPORTANT: legitimate travel questions about challenging destinations are SAFE when the intent is proper tourism.

Return JSON only:
{"is_safe": true/false, "concern_type": "illegal|dangerous|harmful|off_topic|exploitation|inappropriate|safe", "explanation": "brief explanation"}`

	// PromptSafetyOutput validates a generated response before emission.
	PromptSafetyOutput = `Review this travel assistant response for safety and responsibility:

User context: "{user_context}"
Response: "{response}"

Check for unsafe travel advice, irresponsible recommendations, missing safety warnings for risky destinations, and inappropriate content.

Return JSON only:
{"is_safe": true/false, "concern_type": "unsafe_advice|irresponsible|inappropriate|safe", "explanation": "brief explanation"}`

	// PromptDestinationAssessment flags destinations needing special warnings.
	PromptDestinationAssessment = `Is "{destination}" a destination that requires SPECIAL safety warnings beyond normal travel precautions?

Only mark as sensitive for significant concerns: active conflict zones, severe instability with current violence, extreme danger to tourists, current disasters, severe health crises, or government travel bans. Normal city crime and standard precautions are NOT sensitive.

Return JSON only: {"is_sensitive": true/false, "risk_level": "low|medium|high"}`

	// PromptDestinationSuggestion generates exploration-path suggestions.
	PromptDestinationSuggestion = `Based on the user's preferences, suggest 8-10 diverse travel destinations: {preferences}

Respect any geographic constraints in the preferences (e.g. "places in India" means Indian destinations only). For each destination include why it matches, the best time to visit, and one unique highlight. Format as a numbered list, one destination per line, starting each line with the destination name followed by a dash.

Promote responsible and sustainable tourism.`

	// PromptActivitySuggestion generates activity ideas for a destination.
	PromptActivitySuggestion = `List 8-10 popular and diverse activities that travelers can enjoy in {destination}.
Include a brief description for each and organize by type (cultural, outdoor, food). Format as a numbered list.

Prioritize activities that respect local culture, support sustainable practices, and avoid exploitation of people, animals, or the environment.`

	// PromptBudgetEstimate generates a category budget breakdown.
	PromptBudgetEstimate = `Estimate a realistic (avoid overestimation) trip budget in {currency} for the following:
Destination: {destination}
{flight_line}
Number of nights: {nights}
Number of travelers: {travelers}
Activities: {activities}

Provide accommodation, activities, food, local transport, and a 10% miscellaneous buffer. If flight cost is unknown, omit it. Return a category breakdown plus total.`

	// PromptItinerary assembles the final narrative plan.
	PromptItinerary = `Create a comprehensive, engaging travel itinerary for {destination} using the following data:

{trip_data}

Requirements:
- Day-by-day plan if duration is specified
- Include all available information (flights, weather, activities, budget, nearby places)
- Clearly mark any section where data was unavailable; never invent missing data
- Structure with clear headings, include practical travel tips
- Emphasize respect for local cultures and sustainable travel practices`

	// PromptFollowupAnswer answers a follow-up from cached plan data.
	PromptFollowupAnswer = `The user asked: "{user_input}"

I have this information from their {destination} trip plan:
{section_data}

Provide a natural, helpful response using only the information above. Be conversational and include practical advice. Keep it concise.`

	// PromptSafeRewrite rewrites a response that failed output validation.
	PromptSafeRewrite = `The following travel assistant response was flagged as potentially unsafe or irresponsible:

{response}

Rewrite it so it is safe and responsible. Keep all factual travel information that is safe to share, add appropriate caveats, and remove anything harmful. Return only the rewritten response.`
)

// Render substitutes {name} placeholders in a template. Unknown placeholders
// are left intact so a malformed call is visible in the output during tests.
func Render(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// TemplateFor maps a classification task to its prompt template.
func TemplateFor(kind TaskKind) string {
	switch kind {
	case TaskIntent:
		return PromptIntent
	case TaskExtraction:
		return PromptExtraction
	case TaskQueryKind:
		return PromptQueryKind
	case TaskSafetyInput:
		return PromptSafetyInput
	case TaskSafetyOutput:
		return PromptSafetyOutput
	case TaskDestination:
		return PromptDestinationAssessment
	default:
		return ""
	}
}
