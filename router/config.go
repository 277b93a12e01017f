// Copyright (c) 2024 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package router

// HandlerConfig declares one named handler.
type HandlerConfig struct {
	Name   string            `config:"name"`
	Kind   string            `config:"kind"`
	Params map[string]string `config:"params"`

	// Root overrides the router's filesystem root for this handler.
	Root string `config:"root"`

	// Queue runs the handler's requests on a dedicated named queue.
	Queue string `config:"queue"`

	Preload bool `config:"preload"`
}

// FilterConfig declares one named filter.
type FilterConfig struct {
	Name   string            `config:"name"`
	Kind   string            `config:"kind"`
	Params map[string]string `config:"params"`
}

// Mapping routes a path pattern to a handler name.
type Mapping struct {
	Pattern string `config:"pattern"`
	Handler string `config:"handler"`
}

// FilterMapping wraps every path matching Pattern with the named filters.
type FilterMapping struct {
	Pattern string   `config:"pattern"`
	Filters []string `config:"filters"`
}

// Config is the routing configuration applied by [Router.Configure].
type Config struct {
	Handlers       []HandlerConfig `config:"handlers"`
	Filters        []FilterConfig  `config:"filters"`
	Mappings       []Mapping       `config:"mappings"`
	FilterMappings []FilterMapping `config:"filter_mappings"`
}
