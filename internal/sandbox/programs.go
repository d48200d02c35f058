package sandbox

import (
	_ "embed"

	"github.com/dop251/goja"

	"gamesmith/studio/internal/bundle"
)

//go:embed prelude.js
var preludeJS string

// The runtime scripts are compiled once and shared across contexts; goja
// programs are immutable.
var (
	preludeProgram     = goja.MustCompile("prelude.js", preludeJS, true)
	interceptorProgram = goja.MustCompile("interceptor.js", bundle.InterceptorSource(), true)
	gamekitProgram     = goja.MustCompile("gamekit.js", bundle.GameKitSource(), true)
)
