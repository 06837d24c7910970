// Package identity resolves the name under which a relay instance provisions
// its queues.
package identity

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"

	errspkg "github.com/drblury/statusrelay/internal/runtime/errors"
	"github.com/drblury/statusrelay/internal/runtime/ids"
	"github.com/drblury/statusrelay/internal/runtime/jsoncodec"
)

// Resolver returns the identity of the running instance.
type Resolver interface {
	Resolve(ctx context.Context) (string, error)
}

// Static always resolves to the same identity.
type Static string

func (s Static) Resolve(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty static identity", errspkg.ErrInstanceIdentity)
	}
	return string(s), nil
}

// Local returns a Static resolver with a fresh local-<ulid> identity.
func Local() Static {
	return Static(ids.LocalInstanceID())
}

// ECSMetadata reads the task ARN from the ECS task metadata endpoint v4 and
// uses its task id as the identity.
type ECSMetadata struct {
	BaseURI string
	Client  *http.Client
}

type taskMetadata struct {
	TaskARN string `json:"TaskARN"`
}

func (m ECSMetadata) Resolve(ctx context.Context) (string, error) {
	if m.BaseURI == "" {
		return "", fmt.Errorf("%w: metadata endpoint not configured", errspkg.ErrInstanceIdentity)
	}
	client := m.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(m.BaseURI, "/")+"/task", nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errspkg.ErrInstanceIdentity, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errspkg.ErrInstanceIdentity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("%w: metadata endpoint answered %d", errspkg.ErrInstanceIdentity, resp.StatusCode)
	}

	var meta taskMetadata
	if err := jsoncodec.Decode(resp.Body, &meta); err != nil {
		return "", fmt.Errorf("%w: decode task metadata: %v", errspkg.ErrInstanceIdentity, err)
	}
	return TaskID(meta.TaskARN)
}

// TaskID extracts the task id from arn:aws:ecs:region:account:task/cluster/id.
func TaskID(taskARN string) (string, error) {
	if taskARN == "" {
		return "", fmt.Errorf("%w: task metadata has no TaskARN", errspkg.ErrInstanceIdentity)
	}
	parsed, err := arn.Parse(taskARN)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errspkg.ErrInstanceIdentity, err)
	}
	parts := strings.Split(parsed.Resource, "/")
	if len(parts) < 3 || parts[0] != "task" || parts[2] == "" {
		return "", fmt.Errorf("%w: unexpected task arn %q", errspkg.ErrInstanceIdentity, taskARN)
	}
	return parts[2], nil
}

// New picks the resolver for the given settings. A static id wins over the
// metadata endpoint.
func New(staticID, metadataURI string) Resolver {
	if staticID != "" {
		return Static(staticID)
	}
	return ECSMetadata{BaseURI: metadataURI}
}
