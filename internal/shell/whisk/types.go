package whisk

import (
	"encoding/json"

	"github.com/artpar/fndeploy/internal/core/annotations"
)

// KeyValue is the wire form of parameters and annotations.
type KeyValue = annotations.KeyValue

// Exec describes an action's code. A sequence carries Components instead of
// code.
type Exec struct {
	Kind       string   `json:"kind"`
	Code       *string  `json:"code,omitempty"`
	Image      string   `json:"image,omitempty"`
	Main       string   `json:"main,omitempty"`
	Binary     bool     `json:"binary,omitempty"`
	Components []string `json:"components,omitempty"`
}

// Limits are the platform's execution limits for an action.
type Limits struct {
	Timeout     int `json:"timeout,omitempty"`
	Memory      int `json:"memory,omitempty"`
	Logs        int `json:"logs,omitempty"`
	Concurrency int `json:"concurrency,omitempty"`
}

// Action is a platform action.
type Action struct {
	Namespace   string     `json:"namespace,omitempty"`
	Name        string     `json:"name,omitempty"`
	Version     string     `json:"version,omitempty"`
	Publish     bool       `json:"publish,omitempty"`
	Exec        *Exec      `json:"exec,omitempty"`
	Annotations []KeyValue `json:"annotations,omitempty"`
	Parameters  []KeyValue `json:"parameters,omitempty"`
	Limits      *Limits    `json:"limits,omitempty"`
}

// EntityRef names an entity contained in a package.
type EntityRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// Package is a platform package.
type Package struct {
	Namespace   string      `json:"namespace,omitempty"`
	Name        string      `json:"name,omitempty"`
	Version     string      `json:"version,omitempty"`
	Publish     bool        `json:"publish"`
	Annotations []KeyValue  `json:"annotations,omitempty"`
	Parameters  []KeyValue  `json:"parameters,omitempty"`
	Actions     []EntityRef `json:"actions,omitempty"`
}

// ActivationResponse is the outcome part of an activation record.
type ActivationResponse struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Activation is the record of one action invocation.
type Activation struct {
	ActivationID string              `json:"activationId"`
	Namespace    string              `json:"namespace"`
	Name         string              `json:"name"`
	Version      string              `json:"version,omitempty"`
	Start        int64               `json:"start,omitempty"`
	End          int64               `json:"end,omitempty"`
	Response     *ActivationResponse `json:"response,omitempty"`
	Logs         []string            `json:"logs,omitempty"`
}
