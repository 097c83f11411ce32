package engine

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/artpar/fndeploy/internal/core/response"
	"github.com/artpar/fndeploy/internal/shell/whisk"
)

var (
	// ErrBuildTimedOut is reported when a remote build outlives BuildTimeout.
	ErrBuildTimedOut = errors.New("Build timed out")

	// ErrNoBuildResult is reported when a remote build ends without an outcome.
	ErrNoBuildResult = errors.New("Remote build failed to provide a result")
)

// buildResult is the result a successful remote build activation returns.
type buildResult struct {
	Transcript []string           `json:"transcript"`
	Outcome    *response.Response `json:"outcome"`
}

// processRemoteBuild waits for a remote build activation and turns it into a
// response. A successful build's outcome becomes the response verbatim.
func (d *Deployer) processRemoteBuild(ctx context.Context, activationID, label string) response.Response {
	activation, err := d.waitForActivation(ctx, activationID, label)
	if err != nil {
		return response.WrapError(err, label+" (waiting for remote build response)")
	}

	if activation.Response == nil || !activation.Response.Success {
		raw, _ := json.MarshalIndent(activation, "", "  ")
		out := response.Empty()
		out.Failures = append(out.Failures, response.Failure{
			Context:    label + " (running remote build)",
			Err:        errors.New(buildErrorMessage(activation)),
			Activation: string(raw),
		})
		return out
	}

	var result buildResult
	if err := json.Unmarshal(activation.Response.Result, &result); err != nil {
		return response.WrapError(err, label+" (running remote build)")
	}
	if len(result.Transcript) > 0 {
		d.feedback.Progress("Transcript of remote build session for %s:", label)
		for _, line := range result.Transcript {
			d.feedback.Progress("%s", line)
		}
	}
	if result.Outcome == nil {
		return response.WrapError(ErrNoBuildResult, label+" (running remote build)")
	}
	return response.Combine(*result.Outcome)
}

// waitForActivation polls until the activation record exists. It gives up
// with ErrBuildTimedOut after BuildTimeout.
func (d *Deployer) waitForActivation(ctx context.Context, id, label string) (*whisk.Activation, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.cfg.BuildTimeout)
	defer cancel()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		activation, err := d.platform.GetActivation(waitCtx, id)
		if err == nil {
			return activation, nil
		}
		if waitCtx.Err() != nil {
			return nil, waitError(ctx, waitCtx)
		}
		if !whisk.IsNotFound(err) {
			return nil, err
		}
		d.feedback.Progress("Processing of %s is still running remotely ...", label)

		select {
		case <-waitCtx.Done():
			return nil, waitError(ctx, waitCtx)
		case <-ticker.C:
		}
	}
}

func waitError(parent, wait context.Context) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(wait.Err(), context.DeadlineExceeded) {
		return ErrBuildTimedOut
	}
	return wait.Err()
}

// buildErrorMessage extracts the human readable part of a failed build's
// error: the text after the last "Error:" marker.
func buildErrorMessage(activation *whisk.Activation) string {
	msg := ErrNoBuildResult.Error()
	if activation.Response == nil || len(activation.Response.Result) == 0 {
		return msg
	}
	var result struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(activation.Response.Result, &result) != nil || len(result.Error) == 0 {
		return msg
	}

	var text string
	if json.Unmarshal(result.Error, &text) != nil {
		var nested struct {
			Message *string `json:"message"`
		}
		if json.Unmarshal(result.Error, &nested) != nil || nested.Message == nil {
			return msg
		}
		text = *nested.Message
	}
	parts := strings.Split(text, "Error:")
	return parts[len(parts)-1]
}
