// Package configstore is the reference configuration store for llmrelay.
//
// A Store holds one llmrelay.Config snapshot: the selected provider plus the settings
// of every known provider, pre-filled with defaults. Snapshots are deep copies, so a
// reader never observes a later change. Every change is published to subscribers,
// which is how the invocation service learns that its cached adapter is stale.
//
// Sources, lowest precedence first: Default, a YAML file (LoadFile / Parse) and the
// environment (ApplyEnv):
//
//	provider: anthropic
//	providers:
//	  anthropic:
//	    api_key: sk-ant-...
//	    model: claude-sonnet-4-20250514
//	  ollama:
//	    base_url: http://gpu-box:11434
//	    options:
//	      temperature: 0.1
package configstore
