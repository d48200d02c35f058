package bundle

import _ "embed"

// The two runtime scripts injected into every preview document. The console
// bridge must run first so every later script, GameKit included, logs
// through it.

//go:embed interceptor.js
var interceptorJS string

//go:embed gamekit.js
var gamekitJS string

//go:embed placeholder.html
var placeholderHTML string

// InterceptorSource returns the console bridge script. The headless runner
// evaluates the same source so diagnostics match what a browser would relay.
func InterceptorSource() string {
	return interceptorJS
}

// GameKitSource returns the GameKit runtime script.
func GameKitSource() string {
	return gamekitJS
}
