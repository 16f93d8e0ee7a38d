package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// If the prompt is not found, implementations should return the
	// built-in default or an error for unknown names.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names used by the ask pipeline.
// None of the templates take format placeholders; request-specific
// context is sent as a separate user message.
const (
	// PromptPlanner selects the most relevant chunks for a question.
	PromptPlanner = "planner"

	// PromptAnswerStrict asks for a JSON answer with claims, citations and quotes.
	PromptAnswerStrict = "answer_strict"

	// PromptAnswerLoose asks for prose with [n] markers and a SOURCES block.
	PromptAnswerLoose = "answer_loose"

	// PromptRepair restates the schema after an invalid answer.
	PromptRepair = "repair"

	// PromptRepairFinal offers a minimal skeleton as a last attempt.
	PromptRepairFinal = "repair_final"
)
