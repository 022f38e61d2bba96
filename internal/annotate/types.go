package annotate

// structuredResponse is the JSON-contract shape the engine asks the LLM
// to emit (spec.md §4.E.2 step 2): evidence, reasoning, final_output,
// is_negated, date. Reflected into a JSON schema by llmclient.SchemaFor so
// the contract and this type can never drift.
type structuredResponse struct {
	Evidence    string    `json:"evidence"`
	Reasoning   string    `json:"reasoning"`
	FinalOutput string    `json:"final_output" jsonschema:"required"`
	IsNegated   bool      `json:"is_negated"`
	Date        *dateJSON `json:"date,omitempty"`
}

// dateJSON is the wire shape of the structured response's date field.
type dateJSON struct {
	DateValue string `json:"date_value"`
	Source    string `json:"source"`
	CSVDate   string `json:"csv_date,omitempty"`
}
