package exporter

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
)

// dockerAPI is the subset of *client.Client used for exports.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExport(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// Docker exports tenant containers' filesystems as gzipped tarballs.
type Docker struct {
	logger zerolog.Logger
	cli    dockerAPI
	label  string
}

// NewDocker connects to the Docker Engine at host (empty uses DOCKER_HOST or
// the default socket). Tenant containers are those carrying label.
func NewDocker(logger zerolog.Logger, host, label string) (*Docker, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return newDocker(logger, cli, label), nil
}

func newDocker(logger zerolog.Logger, cli dockerAPI, label string) *Docker {
	return &Docker{
		logger: logger.With().Str("component", "docker-exporter").Logger(),
		cli:    cli,
		label:  label,
	}
}

// ListTenantContainers returns the names of all tenant containers on the
// node, running or not, sorted by name.
func (d *Docker) ListTenantContainers(ctx context.Context) ([]string, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", d.label)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers with label %s: %w", d.label, err)
	}

	names := make([]string, 0, len(containers))
	for _, c := range containers {
		if len(c.Names) == 0 {
			continue
		}
		names = append(names, strings.TrimPrefix(c.Names[0], "/"))
	}
	sort.Strings(names)
	return names, nil
}

// Export writes the container filesystem to {dir}/{name}.tar.gz and returns the path.
func (d *Docker) Export(ctx context.Context, name, dir string) (path string, err error) {
	path = filepath.Join(dir, name+".tar.gz")
	d.logger.Info().Str("container", name).Str("path", path).Msg("exporting container")

	rc, err := d.cli.ContainerExport(ctx, name)
	if err != nil {
		return "", fmt.Errorf("export container %s: %w", name, err)
	}
	defer rc.Close()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
		if err != nil {
			os.Remove(path)
			path = ""
		}
	}()

	gz := gzip.NewWriter(f)
	if _, err := io.Copy(gz, rc); err != nil {
		gz.Close()
		return path, fmt.Errorf("compress export of %s: %w", name, err)
	}
	if err := gz.Close(); err != nil {
		return path, fmt.Errorf("finish gzip for %s: %w", name, err)
	}
	return path, nil
}
