// Package configs provides the embedded configuration template for vana.
//
// The template is embedded at build time with go:embed so it is available
// in every distribution. It is written out by 'vana config init'.
//
// Configuration precedence (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/vana/config.yaml)
//  3. Project config (.vana.yaml)
//  4. Environment variables (VANA_*)
package configs

import _ "embed"

// ConfigTemplate is the annotated configuration template written by
// 'vana config init'.
//
//go:embed config.example.yaml
var ConfigTemplate string
