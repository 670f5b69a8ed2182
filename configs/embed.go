// Package configs provides embedded configuration templates for medrank.
//
// Templates are embedded at build time with //go:embed so they ship in
// every distribution, source builds and binary releases alike.
//
// The templates are used by:
//   - cmd/medrank/cmd/init.go: creates .medrank.yaml in the project root
//   - cmd/medrank/cmd/config.go: creates ~/.config/medrank/config.yaml
//
// Configuration hierarchy (see internal/config Load()):
//  1. Compiled defaults (internal/config NewConfig())
//  2. User config (~/.config/medrank/config.yaml)
//  3. Project config (.medrank.yaml)
//  4. Environment variables (MEDRANK_* plus the benchmark variables)
//
// To change a template, edit the .yaml file here and rebuild.
package configs

import _ "embed"

// UserConfigTemplate is the machine-level template: model hosts,
// semantic provider, telemetry and logging. Created by
// `medrank config init` at ~/.config/medrank/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string

// ProjectConfigTemplate is the project-level template: corpus location,
// ranking variant and benchmark settings, version-controlled with the
// dataset. Created by `medrank init` at .medrank.yaml.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
