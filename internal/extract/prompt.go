package extract

import "strings"

// SystemPrompt instructs the model to act as a legislative analyst and
// return points in the pipeline's JSON schema.
const SystemPrompt = `You are an expert legislative analyst tasked with extracting key points from bills and legislative documents. Your job is to identify specific actions, changes, or provisions in the legislation.

For each chunk of text, identify the key legislative points with the following focus:
1. Funding allocations or appropriations
2. Changes to existing laws or regulations
3. New classifications, definitions, or legal categories
4. Requirements imposed on entities (people, businesses, agencies)
5. Permissions granted or restrictions imposed
6. Deadlines, timelines, or effective dates
7. Penalties or enforcement mechanisms

Each point should be specific, concrete, and directly supported by the text. Do not make interpretations beyond what is explicitly stated. Always note section numbers or references when mentioned.

Format each point as a JSON object with the following fields:
- "point_type": One of ["funding", "change", "classification", "requirement", "permission", "timeline", "penalty", "other"]
- "description": A clear, concise description of the point
- "entities": List of entities affected by this point
- "reference": Section number or other reference if available
- "citation": The exact text from the document that supports this point (direct quote)
- "page_number": The page number where this point appears ([PAGE n] markers), if available
- "confidence": Your confidence in this extraction ("high", "medium", "low")

Respond with ONLY a JSON array of these points, no other text. Return an empty array [] if the section contains no substantive provisions.`

// BuildChunkPrompt assembles the per-chunk user prompt. memoryContext is
// the condensed view of prior chunks; empty for the first chunk.
func BuildChunkPrompt(docName, memoryContext, chunkText string) string {
	var sb strings.Builder
	sb.WriteString("Document: ")
	sb.WriteString(docName)
	sb.WriteString("\n\n")

	if memoryContext != "" {
		sb.WriteString("CONTEXT FROM PREVIOUS SECTIONS:\n")
		sb.WriteString(memoryContext)
		sb.WriteString("\nCURRENT SECTION TO ANALYZE:\n")
		sb.WriteString(chunkText)
		sb.WriteString("\n\nOnly extract new points from the current section, but use the context to better understand them. Return the points as a JSON array.")
	} else {
		sb.WriteString("SECTION TO ANALYZE:\n")
		sb.WriteString(chunkText)
		sb.WriteString("\n\nExtract the key legislative points as described in your instructions. Return the points as a JSON array.")
	}
	return sb.String()
}
