package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscription    = errors.New("pubsub domain subscription is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client receives LMS domain events. PUBSUB_EMULATOR_HOST is honoured by the
// underlying SDK.
type Client struct {
	sdk          *pubsub.Client
	subscription string
	receive      config.PubSubConfig
}

// NewClient dials Pub/Sub and fails fast when the domain subscription is
// missing, since the worker has nothing to do without it.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	path, err := subscriptionPath(project, cfg.DomainSubscription)
	if err != nil {
		return nil, err
	}

	sdk, err := pubsub.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{sdk: sdk, subscription: path, receive: cfg}
	if err := c.Ping(ctx); err != nil {
		_ = sdk.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "subscription", path), "pubsub client initialized")
	}
	return c, nil
}

// subscriptionPath accepts a bare subscription id or a full resource name.
func subscriptionPath(project, name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", errNoSubscription
	case strings.HasPrefix(name, "projects/"):
		if !strings.Contains(name, "/subscriptions/") {
			return "", fmt.Errorf("malformed subscription resource %q", name)
		}
		return name, nil
	}
	return "projects/" + project + "/subscriptions/" + name, nil
}

// DomainSubscription returns a subscriber tuned by the configured flow control.
func (c *Client) DomainSubscription() *pubsub.Subscriber {
	if c == nil || c.sdk == nil {
		return nil
	}
	sub := c.sdk.Subscriber(c.subscription)
	if c.receive.MaxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = c.receive.MaxOutstanding
	}
	if c.receive.Goroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = c.receive.Goroutines
	}
	return sub
}

// Ping confirms the domain subscription exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sdk == nil {
		return errNotInitialized
	}
	_, err := c.sdk.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: c.subscription})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("subscription %q does not exist", c.subscription)
	default:
		return fmt.Errorf("checking subscription %q: %w", c.subscription, err)
	}
}

func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}
