package triggers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/fndeploy/internal/core/project"
	"github.com/digitalocean/godo"
	"golang.org/x/oauth2"
)

// scheduledType is the API's trigger type for cron triggers.
const scheduledType = "SCHEDULED"

// functionsAPI is the part of godo.FunctionsService used here.
type functionsAPI interface {
	ListTriggers(ctx context.Context, namespace string) ([]godo.FunctionsTrigger, *godo.Response, error)
	CreateTrigger(ctx context.Context, namespace string, opts *godo.FunctionsTriggerCreateRequest) (*godo.FunctionsTrigger, *godo.Response, error)
	DeleteTrigger(ctx context.Context, namespace, trigger string) (*godo.Response, error)
}

// APIClient manages triggers through the DigitalOcean functions API.
type APIClient struct {
	functions functionsAPI
	logger    *slog.Logger
}

// NewAPIClient creates an API client against cfg.APIEndpoint.
func NewAPIClient(cfg Config, logger *slog.Logger) (*APIClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIToken}))
	client, err := godo.New(httpClient, godo.SetBaseURL(cfg.APIEndpoint), godo.SetUserAgent("fndeploy"))
	if err != nil {
		return nil, fmt.Errorf("create functions api client: %w", err)
	}
	return &APIClient{
		functions: client.Functions,
		logger:    logger.With("component", "triggers", "backend", "api"),
	}, nil
}

// Deploy creates each trigger.
func (c *APIClient) Deploy(ctx context.Context, triggers []project.Trigger, function, namespace string) error {
	for _, trigger := range triggers {
		req := &godo.FunctionsTriggerCreateRequest{
			Name:      trigger.Name,
			Type:      scheduledType,
			Function:  function,
			IsEnabled: trigger.Enabled,
			ScheduledDetails: &godo.TriggerScheduledDetails{
				Cron: trigger.Cron,
				Body: trigger.WithBody,
			},
		}
		if _, _, err := c.functions.CreateTrigger(ctx, namespace, req); err != nil {
			return fmt.Errorf("create trigger %s: %w", trigger.Name, err)
		}
		c.logger.Debug("trigger created", "trigger", trigger.Name, "function", function)
	}
	return nil
}

// Undeploy deletes each trigger.
func (c *APIClient) Undeploy(ctx context.Context, names []string, namespace string) error {
	for _, name := range names {
		if _, err := c.functions.DeleteTrigger(ctx, namespace, name); err != nil {
			return fmt.Errorf("delete trigger %s: %w", name, err)
		}
	}
	return nil
}

// List returns the names of the namespace's triggers, filtered by function
// when one is given.
func (c *APIClient) List(ctx context.Context, namespace, function string) ([]string, error) {
	triggers, _, err := c.functions.ListTriggers(ctx, namespace)
	if err != nil {
		return nil, fmt.Errorf("list triggers: %w", err)
	}
	names := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if function != "" && t.Function != function {
			continue
		}
		names = append(names, t.Name)
	}
	return names, nil
}
