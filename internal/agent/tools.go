package agent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ToolKind names one of the tools the model may call. The set is closed.
type ToolKind string

const (
	ToolSearch       ToolKind = "search"
	ToolEnsureJob    ToolKind = "ensure_job"
	ToolTriggerBuild ToolKind = "trigger_build"
	ToolGetStatus    ToolKind = "get_status"
	ToolFetchConsole ToolKind = "fetch_console"
)

// Tools lists every ToolKind in prompt order.
var Tools = []ToolKind{ToolSearch, ToolEnsureJob, ToolTriggerBuild, ToolGetStatus, ToolFetchConsole}

// Jenkins reports whether the tool needs a Jenkins server.
func (k ToolKind) Jenkins() bool {
	return k != ToolSearch
}

func (k ToolKind) valid() bool {
	for _, t := range Tools {
		if t == k {
			return true
		}
	}
	return false
}

// ── Arguments ───────────────────────────────────────────────

type searchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (a *searchArgs) validate() error {
	if strings.TrimSpace(a.Query) == "" {
		return errors.New("query is required")
	}
	if a.TopK < 0 || a.TopK > 20 {
		return errors.New("top_k must be between 1 and 20")
	}
	return nil
}

type ensureJobArgs struct {
	Job      string `json:"job,omitempty"`
	Template string `json:"template,omitempty"`
}

type triggerBuildArgs struct {
	Job string `json:"job,omitempty"`
}

type buildArgs struct {
	Job   string `json:"job,omitempty"`
	Build int    `json:"build"`
}

func (a *buildArgs) validate() error {
	if a.Build <= 0 {
		return errors.New("build must be a positive build number")
	}
	return nil
}

// decodeArgs decodes raw into dst, rejecting unknown fields. Missing
// arguments decode as an empty object.
func decodeArgs(raw json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null" {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("arguments: %w", err)
	}
	return nil
}

// ── Tool descriptions ───────────────────────────────────────

var toolDocs = map[ToolKind]string{
	ToolSearch:       `search the indexed codebase. Arguments: {"query": string, "top_k": int (optional, default 5)}`,
	ToolEnsureJob:    `make sure a Jenkins job exists, creating it from a template if needed. Arguments: {"job": string (optional), "template": string (optional)}`,
	ToolTriggerBuild: `start a build of a Jenkins job and return its build number. Arguments: {"job": string (optional)}`,
	ToolGetStatus:    `read the status of a build: queued, running, success, failure or unknown. Arguments: {"job": string (optional), "build": int}`,
	ToolFetchConsole: `read the console output of a build with detected issues. Arguments: {"job": string (optional), "build": int}`,
}

// ── Results ─────────────────────────────────────────────────

// toolError is the structured result of a failed tool call.
type toolError struct {
	Code   string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

const (
	errInvalidToolCall = "invalid_tool_call"
	errUnknownTool     = "unknown_tool"
	errToolUnavailable = "tool_unavailable"
	errToolFailed      = "tool_failed"
)

func (e toolError) Error() string { return e.Code + ": " + e.Detail }

func (e toolError) String() string {
	b, _ := json.Marshal(e)
	return string(b)
}
