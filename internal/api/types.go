package api

// RunRequest is the POST /v1/runs body.
type RunRequest struct {
	Argv           []string          `json:"argv"`
	Workdir        string            `json:"workdir,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	TimeoutSeconds float64           `json:"timeout_seconds,omitempty"`
}

// RunResponse is the successful POST /v1/runs reply.
type RunResponse struct {
	ID         string `json:"id"`
	ExitCode   int    `json:"exit_code"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	DurationMS int64  `json:"duration_ms"`
}

// RunSummary is one entry in GET /v1/runs.
type RunSummary struct {
	ID         string   `json:"id"`
	Argv       []string `json:"argv"`
	Status     string   `json:"status"`
	ExitCode   int      `json:"exit_code"`
	StartedAt  string   `json:"started_at"`
	DurationMS int64    `json:"duration_ms"`
}

// RunDetail is the GET /v1/runs/{id} reply.
type RunDetail struct {
	RunSummary
	Workdir string `json:"workdir,omitempty"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Detail  string `json:"detail,omitempty"`
}

// HealthResponse is the GET /healthz reply.
type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
	// Pid is set for timeout errors so the caller can terminate the
	// still-running child.
	Pid int `json:"pid,omitempty"`
}
