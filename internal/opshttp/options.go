package opshttp

import (
	"net/http"

	"github.com/onterra/onterra-web/internal/health"
)

type Options struct {
	Port        int
	Metrics     http.Handler
	EnablePprof bool
	Health      health.Probe
	Readiness   health.Probe

	// Registry and PageCache back the /debug/registry and /debug/pagecache
	// endpoints; either may be nil.
	Registry  RegistryView
	PageCache PageCacheView
}
