package triggers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/artpar/fndeploy/internal/core/project"
	"golang.org/x/sync/errgroup"
)

// Helper actions of the legacy backend.
const (
	createAction = "/nimbella/triggers/create"
	deleteAction = "/nimbella/triggers/delete"
	listAction   = "/nimbella/triggers/list"
)

// Invoker runs an action blocking and returns its result.
type Invoker interface {
	InvokeAction(ctx context.Context, name string, params map[string]any) (json.RawMessage, error)
}

// LegacyClient manages triggers by invoking helper actions.
type LegacyClient struct {
	invoker Invoker
	logger  *slog.Logger
}

// NewLegacyClient creates a legacy trigger client.
func NewLegacyClient(invoker Invoker, logger *slog.Logger) *LegacyClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyClient{invoker: invoker, logger: logger.With("component", "triggers", "backend", "legacy")}
}

// Deploy installs all triggers concurrently.
func (c *LegacyClient) Deploy(ctx context.Context, triggers []project.Trigger, function, _ string) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, trigger := range triggers {
		g.Go(func() error {
			params := map[string]any{
				"triggerName": trigger.Name,
				"function":    function,
				"sourceType":  trigger.SourceType,
				"cron":        trigger.Cron,
				"withBody":    trigger.WithBody,
				"overwrite":   true,
				"enabled":     trigger.Enabled,
			}
			if _, err := c.invoker.InvokeAction(ctx, createAction, params); err != nil {
				return fmt.Errorf("create trigger %s: %w", trigger.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Undeploy removes triggers one at a time.
func (c *LegacyClient) Undeploy(ctx context.Context, names []string, _ string) error {
	for _, name := range names {
		c.logger.Debug("undeploying trigger", "trigger", name)
		if _, err := c.invoker.InvokeAction(ctx, deleteAction, map[string]any{"triggerName": name}); err != nil {
			return fmt.Errorf("delete trigger %s: %w", name, err)
		}
	}
	return nil
}

// List returns trigger names known to the scheduler.
func (c *LegacyClient) List(ctx context.Context, _, function string) ([]string, error) {
	params := map[string]any{}
	if function != "" {
		params["function"] = function
	}
	raw, err := c.invoker.InvokeAction(ctx, listAction, params)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	var result struct {
		Items []struct {
			TriggerName string `json:"triggerName"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode trigger list: %w", err)
	}
	names := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		names = append(names, item.TriggerName)
	}
	return names, nil
}
