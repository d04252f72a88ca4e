// Package autoload 以匿名 import 觸發各 Provider Factory 的 init() 註冊
package autoload

import (
	_ "leoactivation/pkg/llm/gemini"
	_ "leoactivation/pkg/llm/gemma"
	_ "leoactivation/pkg/llm/openaicompat"
)
