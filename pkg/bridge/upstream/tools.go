package upstream

import "github.com/vango-go/voicebridge/pkg/bridge/protocol"

// Tool names the model may invoke mid-conversation.
const (
	ToolExtractQuote        = "extract_quote"
	ToolScheduleAppointment = "schedule_appointment"
	ToolEndCall             = "end_call"
)

// ToolDeclarations returns the function set declared to the endpoint.
// tool_choice stays "auto"; the model decides when to call them.
func ToolDeclarations() []protocol.Tool {
	return []protocol.Tool{
		{
			Type:        "function",
			Name:        ToolExtractQuote,
			Description: "Record a price quote heard during the call.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"price": map[string]any{
						"type":        "number",
						"description": "Quoted price in dollars.",
					},
					"item": map[string]any{
						"type":        "string",
						"description": "What the price is for.",
					},
					"waitTime": map[string]any{
						"type":        "string",
						"description": "Quoted wait or turnaround time, if mentioned.",
					},
					"notes": map[string]any{
						"type":        "string",
						"description": "Any caveats or conditions attached to the quote.",
					},
				},
				"required": []string{"price", "item"},
			},
		},
		{
			Type:        "function",
			Name:        ToolScheduleAppointment,
			Description: "Record an appointment agreed during the call.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"date": map[string]any{
						"type":        "string",
						"description": "Agreed date, e.g. 2026-09-01.",
					},
					"service": map[string]any{
						"type":        "string",
						"description": "What the appointment is for.",
					},
					"time": map[string]any{
						"type":        "string",
						"description": "Agreed time of day, if mentioned.",
					},
					"confirmationNumber": map[string]any{
						"type":        "string",
						"description": "Confirmation or booking reference, if given.",
					},
				},
				"required": []string{"date", "service"},
			},
		},
		{
			Type:        "function",
			Name:        ToolEndCall,
			Description: "Signal that the task is complete or cannot proceed. Advisory only; say goodbye after calling it.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"reason": map[string]any{
						"type":        "string",
						"description": "Why the call is ending.",
					},
					"success": map[string]any{
						"type":        "boolean",
						"description": "Whether the task was accomplished.",
					},
					"summary": map[string]any{
						"type":        "string",
						"description": "One-sentence summary of the outcome.",
					},
				},
				"required": []string{"reason", "success"},
			},
		},
	}
}
