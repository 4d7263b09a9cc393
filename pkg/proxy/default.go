package proxy

import (
	"net/http"
	"sync"
)

var (
	defaultOnce     sync.Once
	defaultSelector *Selector
)

// Default returns the process-wide selector. Its fallback policy is
// http.ProxyFromEnvironment. It lives for the whole process.
func Default() *Selector {
	defaultOnce.Do(func() {
		defaultSelector = NewSelector(http.ProxyFromEnvironment)
	})
	return defaultSelector
}

// InstallDefault installs Default on http.DefaultTransport. Only the first
// call has an effect; the selector is never uninstalled.
func InstallDefault() *Selector {
	sel := Default()
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		sel.Install(t)
	}
	return sel
}
