// Package nl2sql turns a natural-language apparel search into one SQL
// statement through a pluggable Translator.
package nl2sql

import "context"

const DefaultConfigName = "apparel_cfg"

type TableContext struct {
	TableName  string     `json:"table_name"`
	Columns    []string   `json:"columns"`
	SampleRows [][]string `json:"sample_rows"`
}

type Request struct {
	// ConfigName selects the translator's domain configuration.
	ConfigName      string         `json:"config_name"`
	NaturalLanguage string         `json:"natural_language"`
	Tables          []TableContext `json:"tables"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
