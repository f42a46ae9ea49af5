package llm

import (
	"encoding/json"

	"google.golang.org/genai"

	"github.com/baronchat/baron/internal/conv"
)

// toContents maps stored conversation turns to SDK contents. Parts the
// store knows nothing about are skipped rather than guessed at.
func toContents(history []conv.Turn) []*genai.Content {
	if len(history) == 0 {
		return nil
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		content := &genai.Content{Role: string(toRole(turn.Role))}
		for _, p := range turn.Parts {
			if gp := toGenaiPart(p); gp != nil {
				content.Parts = append(content.Parts, gp)
			}
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return contents
}

func toRole(role string) genai.Role {
	if role == conv.RoleModel {
		return genai.RoleModel
	}
	return genai.RoleUser
}

func toGenaiPart(p conv.Part) *genai.Part {
	switch {
	case p.Text != "":
		return &genai.Part{Text: p.Text}
	case p.Call != nil:
		return &genai.Part{FunctionCall: &genai.FunctionCall{
			Name: p.Call.Name,
			Args: p.Call.Args,
		}}
	case p.Result != nil:
		return &genai.Part{FunctionResponse: &genai.FunctionResponse{
			Name:     p.Result.Name,
			Response: p.Result.Response,
		}}
	}
	return nil
}

// toCountContents maps turns for token counting. Call and result parts
// are billed as the JSON text they occupy on the wire, so they are
// flattened to text parts holding their encoding; anything that fails
// to encode is skipped.
func toCountContents(history []conv.Turn) []*genai.Content {
	if len(history) == 0 {
		return nil
	}

	contents := make([]*genai.Content, 0, len(history))
	for _, turn := range history {
		content := &genai.Content{Role: string(toRole(turn.Role))}
		for _, p := range turn.Parts {
			var payload any
			switch {
			case p.Text != "":
				content.Parts = append(content.Parts, &genai.Part{Text: p.Text})
				continue
			case p.Call != nil:
				payload = p.Call.Args
			case p.Result != nil:
				payload = p.Result.Response
			default:
				continue
			}
			raw, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{Text: string(raw)})
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return contents
}

// toMessageParts maps outgoing parts to the by-value form that
// SendMessageStream takes.
func toMessageParts(parts []conv.Part) []genai.Part {
	out := make([]genai.Part, 0, len(parts))
	for _, p := range parts {
		if gp := toGenaiPart(p); gp != nil {
			out = append(out, *gp)
		}
	}
	return out
}
