// Package config models one packaging invocation.
//
// A [Config] is assembled from CLI flags merged with an optional YAML
// application config file, validated once, and treated as immutable from
// then on. Validation fails fast on unknown features, conflicting SDK
// artifact sources, and colliding model names, before any resolution or
// engine work starts.
package config
