package model

// AppError is the shared error payload carried by every typed error in this
// tool. Stage names the pipeline step that failed: load_config, fetch_rules,
// persist_cache, build_rules, merge_proxies, write_output.
type AppError struct {
	Code    string
	Message string
	Stage   string

	URL     string // remote source, when the failure is network-bound
	Path    string // local file, when the failure is filesystem-bound
	Snippet string // offending input fragment, <= 200 chars
	Hint    string
}
