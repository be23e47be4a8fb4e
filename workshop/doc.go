// Package workshop holds the prompt definitions of the five risk-analysis workshop
// steps as YAML manifests, embedded in the binary.
//
// A manifest carries the system instruction, a text/template user prompt, the response
// schema and post-conditions for one step:
//
//	id: risk-sources
//	step: 2
//	title: Risk sources
//	variables:
//	  required: [context, security_baseline]
//	system: |
//	  Tu es un agent EBIOS RM ...
//	prompt: |
//	  Contexte: "{{ .context }}".
//	response_schema:
//	  type: array
//	  items: {type: object}
//	post_conditions:
//	  min_items:
//	    "": 3
//
// Templates may use truncate_chars, truncate_tokens and to_json. Step.Render checks
// that every variable is supplied and returns a llmrelay.Request ready for
// service.Service; Step.Checker feeds the self-critique loop.
package workshop
