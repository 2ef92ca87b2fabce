package embedded

import (
	_ "embed"
)

// Embed prompt data files
//
//go:embed data/rewrite/system_prompt.txt
var RewriteSystemPromptTxt []byte
