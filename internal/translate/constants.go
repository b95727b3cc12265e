// Package translate turns a batch of stable region texts into translations.
// Texts are tagged <|i|> so several regions share one chat completion, the
// reply is parsed back per region, and results are cached and remembered as
// conversation context per game.
package translate

import "time"

// MissingPlaceholder fills regions the model dropped from its reply.
const MissingPlaceholder = "[Translation missing]"

// Chat endpoint.
const (
	CompletionsPath  = "/chat/completions"
	DefaultTimeout   = 60 * time.Second
	maxResponseBytes = 4 << 20
	maxErrorBody     = 512
)

const systemPrompt = "You are a professional game translator. The user sends lines prefixed " +
	"with tags such as <|1|>, <|2|>. Translate only the text after each tag into %s. " +
	"Reproduce every tag exactly as given, one per line, in the same order. " +
	"Do not merge, drop or renumber tags and do not add any other text."

const userInstruction = "Translate the following tagged lines into %s. Keep the <|n|> tags unchanged."
