// Package dockerclient narrows the Docker Engine API down to the seven
// operations container-guard needs, behind an interface a test double
// can implement without a daemon.
package dockerclient

import (
	"context"
	"fmt"
	"regexp"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// ContainerInfo is the subset of Docker's container inspect response
// container-guard's policy engine and CLI care about.
type ContainerInfo struct {
	ID     string
	Name   string
	Image  string
	Status string // Docker's raw state string: running, paused, exited, ...
}

// Client is the narrow Docker Engine surface container-guard depends
// on. The production implementation wraps github.com/docker/docker/client;
// tests substitute an in-memory fake.
type Client interface {
	ListContainers(ctx context.Context) ([]ContainerInfo, error)
	InspectContainer(ctx context.Context, id string) (ContainerInfo, error)
	PauseContainer(ctx context.Context, id string) error
	UnpauseContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string) error
	DisconnectNetwork(ctx context.Context, networkID, containerID string) error
	Ping(ctx context.Context) error
}

// idPattern matches the 1-64 character ASCII-hex container ID shape
// Docker itself generates. Every ID-taking call below validates against
// it before touching the network — list and ping take no ID and are
// exempt.
var idPattern = regexp.MustCompile(`^[0-9a-fA-F]{1,64}$`)

// ValidateID rejects anything that isn't a well-formed Docker container
// ID, so a malformed or injected value never reaches the Engine API.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("dockerclient: invalid container id %q", id)
	}
	return nil
}

type dockerSDKClient struct {
	cli *client.Client
}

// NewFromEnv builds a Client from the standard DOCKER_HOST/DOCKER_* env
// vars, matching the teacher's own docker-client bootstrap idiom.
func NewFromEnv() (Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("dockerclient: connect: %w", err)
	}
	return &dockerSDKClient{cli: cli}, nil
}

func (d *dockerSDKClient) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("dockerclient: list: %w", err)
	}
	out := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = c.Names[0]
		}
		out = append(out, ContainerInfo{ID: c.ID, Name: name, Image: c.Image, Status: c.State})
	}
	return out, nil
}

func (d *dockerSDKClient) InspectContainer(ctx context.Context, id string) (ContainerInfo, error) {
	if err := ValidateID(id); err != nil {
		return ContainerInfo{}, err
	}
	resp, err := d.cli.ContainerInspect(ctx, id)
	if err != nil {
		return ContainerInfo{}, fmt.Errorf("dockerclient: inspect %s: %w", id, err)
	}
	name := resp.Name
	status := ""
	if resp.State != nil {
		status = resp.State.Status
	}
	return ContainerInfo{ID: resp.ID, Name: name, Image: resp.Config.Image, Status: status}, nil
}

func (d *dockerSDKClient) PauseContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := d.cli.ContainerPause(ctx, id); err != nil {
		return fmt.Errorf("dockerclient: pause %s: %w", id, err)
	}
	return nil
}

func (d *dockerSDKClient) UnpauseContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := d.cli.ContainerUnpause(ctx, id); err != nil {
		return fmt.Errorf("dockerclient: unpause %s: %w", id, err)
	}
	return nil
}

func (d *dockerSDKClient) StopContainer(ctx context.Context, id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if err := d.cli.ContainerStop(ctx, id, container.StopOptions{}); err != nil {
		return fmt.Errorf("dockerclient: stop %s: %w", id, err)
	}
	return nil
}

func (d *dockerSDKClient) DisconnectNetwork(ctx context.Context, networkID, containerID string) error {
	if err := ValidateID(containerID); err != nil {
		return err
	}
	if err := d.cli.NetworkDisconnect(ctx, networkID, containerID, true); err != nil {
		return fmt.Errorf("dockerclient: disconnect %s from %s: %w", containerID, networkID, err)
	}
	return nil
}

func (d *dockerSDKClient) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	if err != nil {
		return fmt.Errorf("dockerclient: ping: %w", err)
	}
	return nil
}
